package tools

// graphtool.go defines the graph_traverse tool over the knowledge graph.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/taarya/taarya/internal/graph"
	"github.com/taarya/taarya/internal/log"
)

// GraphTraverseName is the Genkit tool name for knowledge-graph traversal.
const GraphTraverseName = "graph_traverse"

// GraphTraverser defines the traversal operation the tool needs.
// *graph.Store satisfies this.
type GraphTraverser interface {
	Traverse(ctx context.Context, entity, relation string, maxHops int) (graph.Traversal, error)
}

// GraphTraverseInput defines input for the graph_traverse tool.
type GraphTraverseInput struct {
	Entity       string `json:"entity" jsonschema_description:"Starting entity: a star source_id, cluster name, or paper id"`
	RelationType string `json:"relation_type" jsonschema_description:"Relationship to follow: MENTIONED_IN, MEMBER_OF, or CITES"`
	MaxHops      int    `json:"max_hops,omitempty" jsonschema_description:"Traversal depth (1-3, default 1)"`
}

// Graph holds dependencies for the graph_traverse handler.
type Graph struct {
	traverser GraphTraverser
	timeout   time.Duration // per-call budget, 0 = unbounded
	logger    log.Logger
}

// NewGraph creates a Graph instance.
func NewGraph(traverser GraphTraverser, logger log.Logger) (*Graph, error) {
	if traverser == nil {
		return nil, fmt.Errorf("traverser is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Graph{traverser: traverser, logger: logger}, nil
}

// RegisterGraph registers the graph_traverse tool with Genkit.
func RegisterGraph(g *genkit.Genkit, gt *Graph) ([]ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if gt == nil {
		return nil, fmt.Errorf("Graph is required")
	}

	return []ai.Tool{
		genkit.DefineTool(g, GraphTraverseName,
			"Traverse the astronomy knowledge graph from an entity along one "+
				"relationship type. Relations: MENTIONED_IN (star to papers), "+
				"MEMBER_OF (star to clusters), CITES (paper to papers). "+
				"max_hops is capped at 3. "+
				"Returns: the reached nodes with labels and properties. "+
				"Use this for questions about which papers mention a star, "+
				"cluster membership, or citation chains.",
			gt.Traverse),
	}, nil
}

// Traverse walks the knowledge graph.
func (gt *Graph) Traverse(ctx *ai.ToolContext, input GraphTraverseInput) (Result, error) {
	gt.logger.Info("GraphTraverse called",
		"entity", input.Entity, "relation", input.RelationType, "max_hops", input.MaxHops)

	if input.Entity == "" {
		return errorResult(ErrCodeValidation, "entity must not be empty"), nil
	}

	qctx, cancel := withBudget(toolCtx(ctx), gt.timeout)
	defer cancel()

	traversal, err := gt.traverser.Traverse(qctx, input.Entity, input.RelationType, input.MaxHops)
	if err != nil {
		if c := toolCtx(ctx); c.Err() != nil && errors.Is(err, context.Canceled) {
			return Result{}, fmt.Errorf("graph traversal canceled: %w", err)
		}
		gt.logger.Warn("GraphTraverse failed", "entity", input.Entity, "error", err)
		switch {
		case errors.Is(err, graph.ErrUnknownRelation):
			return errorResult(ErrCodeValidation, err.Error()), nil
		case errors.Is(err, context.DeadlineExceeded):
			return errorResult(ErrCodeTimeout, "graph traversal exceeded its time budget"), nil
		default:
			return errorResult(ErrCodeExecution, "graph traversal failed"), nil
		}
	}

	gt.logger.Info("GraphTraverse succeeded", "entity", input.Entity, "nodes", len(traversal.Nodes))
	return Result{Status: StatusSuccess, Data: traversal}, nil
}
