package tools

// semantic.go defines the semantic_search tool over the paper index.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/taarya/taarya/internal/log"
	"github.com/taarya/taarya/internal/papers"
)

// SemanticSearchName is the Genkit tool name for paper passage search.
const SemanticSearchName = "semantic_search"

// Default and maximum passage counts for semantic search.
const (
	DefaultPassages = 5
	MaxPassages     = 20
)

// PaperSearcher defines the retrieval operation the tool needs.
// *papers.Store satisfies this.
type PaperSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]papers.Result, error)
}

// SemanticSearchInput defines input for the semantic_search tool.
type SemanticSearchInput struct {
	Query string `json:"query" jsonschema_description:"The search query in natural language"`
	Limit int    `json:"limit,omitempty" jsonschema_description:"Maximum passages to return (1-20, default 5)"`
}

// Semantic holds dependencies for the semantic_search handler.
type Semantic struct {
	searcher PaperSearcher
	timeout  time.Duration // per-call budget, 0 = unbounded
	logger   log.Logger
}

// NewSemantic creates a Semantic instance.
func NewSemantic(searcher PaperSearcher, logger log.Logger) (*Semantic, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Semantic{searcher: searcher, logger: logger}, nil
}

// RegisterSemantic registers the semantic_search tool with Genkit.
func RegisterSemantic(g *genkit.Genkit, se *Semantic) ([]ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if se == nil {
		return nil, fmt.Errorf("Semantic is required")
	}

	return []ai.Tool{
		genkit.DefineTool(g, SemanticSearchName,
			"Search indexed astronomy papers for passages related to a topic. "+
				"Returns: ranked passages with paper title, authors, and similarity score. "+
				"Cite the returned titles when using passage content in an answer. "+
				"Use this for conceptual questions about clusters, stellar populations, "+
				"methods, or published results. Default limit: 5. Maximum: 20.",
			se.Search),
	}, nil
}

// Search runs semantic search over the paper index.
func (se *Semantic) Search(ctx *ai.ToolContext, input SemanticSearchInput) (Result, error) {
	se.logger.Info("SemanticSearch called", "query", input.Query, "limit", input.Limit)

	if input.Query == "" {
		return errorResult(ErrCodeValidation, "query must not be empty"), nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultPassages
	}
	if limit > MaxPassages {
		limit = MaxPassages
	}

	qctx, cancel := withBudget(toolCtx(ctx), se.timeout)
	defer cancel()

	results, err := se.searcher.Search(qctx, input.Query, limit)
	if err != nil {
		if c := toolCtx(ctx); c.Err() != nil && errors.Is(err, context.Canceled) {
			return Result{}, fmt.Errorf("semantic search canceled: %w", err)
		}
		se.logger.Warn("SemanticSearch failed", "query", input.Query, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return errorResult(ErrCodeTimeout, "semantic search exceeded its time budget"), nil
		}
		return errorResult(ErrCodeExecution, "semantic search failed"), nil
	}

	se.logger.Info("SemanticSearch succeeded", "query", input.Query, "result_count", len(results))
	return Result{
		Status: StatusSuccess,
		Data: map[string]any{
			"query":        input.Query,
			"result_count": len(results),
			"passages":     results,
		},
	}, nil
}
