// Package papers stores paper passages with embeddings and answers
// semantic search queries over them.
//
// Embeddings are generated through a genkit embedder and stored in a
// pgvector column; similarity is cosine. The embedder and the schema must
// agree on VectorDimension.
package papers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/taarya/taarya/internal/log"
)

// VectorDimension is the embedding width of the paper_chunks schema.
const VectorDimension = 768

// Querier defines the database operations Store needs.
// *pgxpool.Pool satisfies this.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Passage is one indexed chunk of a paper.
type Passage struct {
	PaperID    string     `json:"paper_id"`
	Title      string     `json:"title"`
	Authors    string     `json:"authors,omitempty"`
	Published  *time.Time `json:"published,omitempty"`
	ChunkIndex int        `json:"chunk_index"`
	Content    string     `json:"content"`
}

// Result is a passage with its similarity score in [0, 1].
type Result struct {
	Passage
	Score float64 `json:"score"`
}

// IndexStats describes the vector index for the stats endpoint.
type IndexStats struct {
	Status      string `json:"status"`
	PointsCount int64  `json:"points_count"`
	Exists      bool   `json:"exists"`
}

// Store manages paper passages with vector search.
// Safe for concurrent use.
type Store struct {
	db       Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a paper store.
func New(db Querier, embedder ai.Embedder, logger log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("papers: db is nil")
	}
	if embedder == nil {
		return nil, errors.New("papers: embedder is nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

// Index embeds and upserts the given passages. Passages are embedded in a
// single batch request; a conflict on (paper_id, chunk_index) replaces the
// stored content and embedding.
func (s *Store) Index(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}

	docs := make([]*ai.Document, len(passages))
	for i, p := range passages {
		docs[i] = &ai.Document{Content: []*ai.Part{ai.NewTextPart(p.Content)}}
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return fmt.Errorf("generating embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(passages) {
		return fmt.Errorf("embedder returned %d embeddings for %d passages",
			len(resp.Embeddings), len(passages))
	}

	for i, p := range passages {
		vec := resp.Embeddings[i].Embedding
		if len(vec) != VectorDimension {
			return fmt.Errorf("embedding for %s/%d has dimension %d, want %d",
				p.PaperID, p.ChunkIndex, len(vec), VectorDimension)
		}

		_, err := s.db.Exec(ctx, `
			INSERT INTO paper_chunks
				(paper_id, title, authors, published, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (paper_id, chunk_index) DO UPDATE
				SET title = EXCLUDED.title,
				    authors = EXCLUDED.authors,
				    published = EXCLUDED.published,
				    content = EXCLUDED.content,
				    embedding = EXCLUDED.embedding`,
			p.PaperID, p.Title, p.Authors, p.Published, p.ChunkIndex, p.Content,
			pgvector.NewVector(vec))
		if err != nil {
			return fmt.Errorf("upserting passage %s/%d: %w", p.PaperID, p.ChunkIndex, err)
		}
	}

	s.logger.Debug("indexed passages", "count", len(passages))
	return nil
}

// Search returns the limit most similar passages to the query, ordered by
// descending cosine similarity.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if query == "" {
		return nil, errors.New("papers: empty query")
	}
	if limit <= 0 {
		limit = 5
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{{Content: []*ai.Part{ai.NewTextPart(query)}}},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("papers: embedder returned no embedding for query")
	}

	rows, err := s.db.Query(ctx, `
		SELECT paper_id, title, authors, published, chunk_index, content,
		       1 - (embedding <=> $1) AS score
		FROM paper_chunks
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(resp.Embeddings[0].Embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("searching passages: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.PaperID, &r.Title, &r.Authors, &r.Published,
			&r.ChunkIndex, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("scanning passage row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passage rows: %w", err)
	}

	s.logger.Debug("semantic search succeeded", "query_len", len(query), "results", len(results))
	return results, nil
}

// Stats reports index size and health for the stats endpoint.
// A query failure degrades to status "unavailable" rather than an error so
// one dead backend does not break the whole stats response.
func (s *Store) Stats(ctx context.Context) IndexStats {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM paper_chunks`).Scan(&count)
	if err != nil {
		s.logger.Warn("vector index stats failed", "error", err)
		return IndexStats{Status: "unavailable"}
	}
	return IndexStats{Status: "green", PointsCount: count, Exists: true}
}
