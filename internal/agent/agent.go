// Package agent orchestrates a query through the retrieval tools: the
// model plans tool calls, the tools run, and the final answer is checked
// against the retrieved data before it is returned.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/taarya/taarya/internal/log"
	"github.com/taarya/taarya/internal/tools"
)

// Sentinel errors for the failure policy. Both map to an {error} response
// at the API boundary.
var (
	// ErrPlanning indicates generation itself failed.
	ErrPlanning = errors.New("planning failed")
	// ErrAllToolsFailed indicates every tool call failed and no answer
	// could be synthesized.
	ErrAllToolsFailed = errors.New("all tool calls failed")
)

const systemPrompt = `You are TaarYa, a research assistant for astronomy.
You answer questions about stars, clusters, and published papers using the
available tools. Rules:
- Use cone_search, star_lookup, find_nearby_stars, or count_stars_in_region
  for anything positional. Coordinates are degrees (ICRS), parallax is in
  milliarcseconds.
- Use semantic_search for conceptual questions and cite the returned paper
  titles when you use passage content.
- Use graph_traverse for questions about paper mentions, cluster
  membership, or citations.
- Use code_execution only for small computations over data you already
  retrieved.
- Base every numeric statement on tool output. If the tools return nothing
  relevant, say so instead of guessing.`

// Config holds orchestrator settings.
type Config struct {
	// ModelName is the provider-qualified model, e.g. "googleai/gemini-2.5-flash".
	ModelName string
	// MaxTurns bounds the tool-calling loop.
	MaxTurns int
}

// Response is a successful answer with its audit trail.
type Response struct {
	Answer      string             `json:"answer"`
	ToolsUsed   []tools.Invocation `json:"tools_used"`
	ToolOutputs []tools.Output     `json:"tool_outputs"`
}

// Agent runs queries through the model tool-calling loop.
// Stateless across requests: history travels with each call.
type Agent struct {
	g        *genkit.Genkit
	registry *tools.Registry
	cfg      Config
	logger   log.Logger
}

// New creates an Agent.
func New(g *genkit.Genkit, registry *tools.Registry, cfg Config, logger log.Logger) (*Agent, error) {
	if g == nil {
		return nil, errors.New("agent: genkit instance is nil")
	}
	if registry == nil {
		return nil, errors.New("agent: tool registry is nil")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 5
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Agent{g: g, registry: registry, cfg: cfg, logger: logger}, nil
}

// Ask answers one query. History roles must already be normalized; the
// caller owns session state.
func (a *Agent) Ask(ctx context.Context, query string, history []Message) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrPlanning)
	}

	a.logger.Info("agent query started", "query_len", len(query), "history_len", len(history))

	messages := toModelMessages(TruncateHistory(history))
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(query)))

	opts := []ai.GenerateOption{
		ai.WithSystem(systemPrompt),
		ai.WithMessages(messages...),
		ai.WithTools(a.registry.Refs(a.g)...),
		ai.WithMaxTurns(a.cfg.MaxTurns),
	}
	if a.cfg.ModelName != "" {
		opts = append(opts, ai.WithModelName(a.cfg.ModelName))
	}

	resp, err := genkit.Generate(ctx, a.g, opts...)
	if err != nil {
		a.logger.Error("agent generation failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}

	invocations, outputs, failed := collectToolTrail(resp)
	answer := strings.TrimSpace(resp.Text())

	if len(invocations) > 0 && failed == len(invocations) && answer == "" {
		a.logger.Warn("agent query failed", "invocations", len(invocations))
		return nil, ErrAllToolsFailed
	}
	if answer == "" {
		return nil, fmt.Errorf("%w: model returned no answer", ErrPlanning)
	}

	answer = flagUnverified(answer, UnverifiedClaims(answer, outputs))

	a.logger.Info("agent query succeeded",
		"tools_used", len(invocations), "tools_failed", failed, "answer_len", len(answer))
	return &Response{
		Answer:      answer,
		ToolsUsed:   invocations,
		ToolOutputs: outputs,
	}, nil
}

// collectToolTrail walks the generation history and gathers every tool
// request and response, plus the number of failed calls.
func collectToolTrail(resp *ai.ModelResponse) ([]tools.Invocation, []tools.Output, int) {
	var msgs []*ai.Message
	if resp.Request != nil {
		msgs = append(msgs, resp.Request.Messages...)
	}
	if resp.Message != nil {
		msgs = append(msgs, resp.Message)
	}

	invocations := []tools.Invocation{}
	outputs := []tools.Output{}
	failed := 0
	for _, msg := range msgs {
		for _, part := range msg.Content {
			switch {
			case part.ToolRequest != nil:
				invocations = append(invocations, tools.Invocation{
					Tool:  part.ToolRequest.Name,
					Input: toInputMap(part.ToolRequest.Input),
				})
			case part.ToolResponse != nil:
				data, ok := normalizeOutput(part.ToolResponse.Output)
				if !ok {
					failed++
				}
				outputs = append(outputs, tools.Output{
					Tool: part.ToolResponse.Name,
					Data: data,
				})
			}
		}
	}
	return invocations, outputs, failed
}

// normalizeOutput extracts the data payload from a tool result and reports
// whether the call succeeded. Unrecognized shapes pass through as-is.
func normalizeOutput(output any) (any, bool) {
	switch r := output.(type) {
	case tools.Result:
		if r.Status == tools.StatusError {
			return map[string]any{"error": r.Error}, false
		}
		return r.Data, true
	case *tools.Result:
		if r == nil {
			return nil, false
		}
		return normalizeOutput(*r)
	case map[string]any:
		if status, ok := r["status"].(string); ok {
			if status == string(tools.StatusError) {
				return map[string]any{"error": r["error"]}, false
			}
			return r["data"], true
		}
		return r, true
	default:
		return output, true
	}
}

func toInputMap(input any) map[string]any {
	if m, ok := input.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
