// Package tools implements the retrieval tool set: catalog cone search and
// lookups, semantic paper search, knowledge-graph traversal, and sandboxed
// code execution.
//
// Every tool is registered twice from the same handler: with Genkit for the
// model tool-calling loop, and with the Registry for schema-validated
// direct dispatch (used by the stats surface and tests).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/taarya/taarya/internal/log"
)

// Registry dispatches tool invocations by name. Inputs are validated
// against the tool's JSON schema before the handler runs.
//
// Safe for concurrent use after registration.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
	logger  log.Logger
}

type registryEntry struct {
	schema *jsonschema.Resolved
	invoke func(ctx context.Context, input map[string]any) (Result, error)
}

// NewRegistry creates an empty registry.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{entries: make(map[string]registryEntry), logger: logger}
}

// register adds a handler under name, inferring the input schema from In.
func register[In any](r *Registry, name string, handler func(*ai.ToolContext, In) (Result, error)) error {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("inferring schema for %s: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolving schema for %s: %w", name, err)
	}

	invoke := func(ctx context.Context, input map[string]any) (Result, error) {
		raw, err := json.Marshal(input)
		if err != nil {
			return errorResult(ErrCodeValidation, fmt.Sprintf("input is not serializable: %v", err)), nil
		}
		var typed In
		if err := json.Unmarshal(raw, &typed); err != nil {
			return errorResult(ErrCodeValidation, fmt.Sprintf("input does not match %s schema: %v", name, err)), nil
		}
		return handler(&ai.ToolContext{Context: ctx}, typed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.entries[name] = registryEntry{schema: resolved, invoke: invoke}
	return nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refs resolves the registered names to Genkit tool references for
// generation requests.
func (r *Registry) Refs(g *genkit.Genkit) []ai.ToolRef {
	names := r.Names()
	refs := make([]ai.ToolRef, 0, len(names))
	for _, name := range names {
		if tool := genkit.LookupTool(g, name); tool != nil {
			refs = append(refs, tool)
		}
	}
	return refs
}

// Invoke validates the input against the tool's schema and runs it.
// Unknown names and schema violations come back as error Results; a Go
// error is returned only for infrastructure failures.
func (r *Registry) Invoke(ctx context.Context, name string, input map[string]any) (Result, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("unknown tool invoked", "tool", name)
		return errorResult(ErrCodeUnknownTool, fmt.Sprintf("no tool named %q", name)), nil
	}

	if input == nil {
		input = map[string]any{}
	}
	if err := entry.schema.Validate(input); err != nil {
		r.logger.Warn("tool input rejected", "tool", name, "error", err)
		return errorResult(ErrCodeValidation, fmt.Sprintf("input for %s rejected: %v", name, err)), nil
	}

	return entry.invoke(ctx, input)
}

// InvokeAll runs independent invocations concurrently and returns results
// in input order. Used only for direct dispatch of calls with no data
// dependencies; dependent calls flow through the model loop sequentially.
func (r *Registry) InvokeAll(ctx context.Context, invocations []Invocation) ([]Result, error) {
	results := make([]Result, len(invocations))
	g, ctx := errgroup.WithContext(ctx)
	for i, inv := range invocations {
		g.Go(func() error {
			res, err := r.Invoke(ctx, inv.Tool, inv.Input)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("invoking tools: %w", err)
	}
	return results, nil
}

// Deps carries the backends the tool set is built from. Papers, Graph, and
// Sandbox are optional; a nil backend leaves its tools unregistered.
// QueryTimeout bounds each backend call; zero leaves calls unbounded.
type Deps struct {
	Catalog      Catalog
	Papers       PaperSearcher
	Graph        GraphTraverser
	Sandbox      *Sandbox
	QueryTimeout time.Duration
	Logger       log.Logger
}

// Register builds the full tool set: every tool is defined with Genkit for
// the model loop and added to the returned Registry for direct dispatch.
func Register(g *genkit.Genkit, deps Deps) (*Registry, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	r := NewRegistry(logger)

	sp, err := NewSpatial(deps.Catalog, logger)
	if err != nil {
		return nil, err
	}
	sp.timeout = deps.QueryTimeout
	if _, err := RegisterSpatial(g, sp); err != nil {
		return nil, err
	}
	if err := register(r, ConeSearchName, sp.ConeSearch); err != nil {
		return nil, err
	}
	if err := register(r, StarLookupName, sp.StarLookup); err != nil {
		return nil, err
	}
	if err := register(r, NearbyStarsName, sp.NearbyStars); err != nil {
		return nil, err
	}
	if err := register(r, CountStarsName, sp.CountStars); err != nil {
		return nil, err
	}

	if deps.Papers != nil {
		se, err := NewSemantic(deps.Papers, logger)
		if err != nil {
			return nil, err
		}
		se.timeout = deps.QueryTimeout
		if _, err := RegisterSemantic(g, se); err != nil {
			return nil, err
		}
		if err := register(r, SemanticSearchName, se.Search); err != nil {
			return nil, err
		}
	}

	if deps.Graph != nil {
		gt, err := NewGraph(deps.Graph, logger)
		if err != nil {
			return nil, err
		}
		gt.timeout = deps.QueryTimeout
		if _, err := RegisterGraph(g, gt); err != nil {
			return nil, err
		}
		if err := register(r, GraphTraverseName, gt.Traverse); err != nil {
			return nil, err
		}
	}

	if deps.Sandbox != nil {
		if _, err := RegisterSandbox(g, deps.Sandbox); err != nil {
			return nil, err
		}
		if err := register(r, CodeExecutionName, deps.Sandbox.Execute); err != nil {
			return nil, err
		}
	}

	logger.Info("tool set registered", "tools", r.Names())
	return r, nil
}
