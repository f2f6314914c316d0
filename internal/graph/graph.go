// Package graph traverses the astronomy knowledge graph stored in Neo4j.
//
// Graph shape: (:Star)-[:MENTIONED_IN]->(:Paper),
// (:Star)-[:MEMBER_OF]->(:Cluster), (:Paper)-[:CITES]->(:Paper).
// Stars are keyed by source_id, papers by paper_id, clusters by name.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/taarya/taarya/internal/log"
)

// Relationship types known to the graph. Traverse rejects anything else;
// relation names are interpolated into Cypher and must never come from
// user input unchecked.
const (
	RelMentionedIn = "MENTIONED_IN"
	RelMemberOf    = "MEMBER_OF"
	RelCites       = "CITES"
)

// MaxHops bounds variable-length traversals.
const MaxHops = 3

// ErrUnknownRelation indicates a relation type outside the graph schema.
var ErrUnknownRelation = errors.New("unknown relation type")

// Paper is a paper node projection.
type Paper struct {
	PaperID string `json:"paper_id"`
	Title   string `json:"title"`
	Year    int64  `json:"year,omitempty"`
}

// Node is a generic traversal result node.
type Node struct {
	Labels []string       `json:"labels"`
	Props  map[string]any `json:"properties"`
}

// Traversal is the result of a generic graph walk.
type Traversal struct {
	Entity   string `json:"entity"`
	Relation string `json:"relation"`
	Hops     int    `json:"hops"`
	Nodes    []Node `json:"nodes"`
}

// Stats describes the graph for the stats endpoint.
type Stats struct {
	Status        string `json:"status"`
	Stars         int64  `json:"stars"`
	Papers        int64  `json:"papers"`
	Clusters      int64  `json:"clusters"`
	Relationships int64  `json:"relationships"`
}

// Store runs read queries against the knowledge graph.
// Safe for concurrent use; the driver manages its own connection pool.
type Store struct {
	driver neo4j.DriverWithContext
	logger log.Logger
}

// New creates a graph store over an established driver.
func New(driver neo4j.DriverWithContext, logger log.Logger) (*Store, error) {
	if driver == nil {
		return nil, errors.New("graph: driver is nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{driver: driver, logger: logger}, nil
}

// StarPapers returns papers mentioning the given star, newest first.
func (s *Store) StarPapers(ctx context.Context, sourceID int64) ([]Paper, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, `
		MATCH (s:Star {source_id: $source_id})-[:MENTIONED_IN]->(p:Paper)
		RETURN p.paper_id AS paper_id, p.title AS title, p.year AS year
		ORDER BY p.year DESC`,
		map[string]any{"source_id": sourceID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("querying star papers: %w", err)
	}
	return recordsToPapers(result.Records), nil
}

// ClusterMembers returns source identifiers of stars in the named cluster.
func (s *Store) ClusterMembers(ctx context.Context, cluster string) ([]int64, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, `
		MATCH (st:Star)-[:MEMBER_OF]->(c:Cluster {name: $name})
		RETURN st.source_id AS source_id
		ORDER BY st.source_id`,
		map[string]any{"name": cluster},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("querying cluster members: %w", err)
	}

	members := make([]int64, 0, len(result.Records))
	for _, rec := range result.Records {
		if id, ok := recordInt(rec, "source_id"); ok {
			members = append(members, id)
		}
	}
	return members, nil
}

// PapersAboutTopic returns papers whose title contains the topic,
// case-insensitively.
func (s *Store) PapersAboutTopic(ctx context.Context, topic string, limit int) ([]Paper, error) {
	if limit <= 0 {
		limit = 20
	}
	result, err := neo4j.ExecuteQuery(ctx, s.driver, `
		MATCH (p:Paper)
		WHERE toLower(p.title) CONTAINS toLower($topic)
		RETURN p.paper_id AS paper_id, p.title AS title, p.year AS year
		ORDER BY p.year DESC
		LIMIT $limit`,
		map[string]any{"topic": topic, "limit": limit},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("querying papers by topic: %w", err)
	}
	return recordsToPapers(result.Records), nil
}

// Traverse walks from the entity along the given relation type up to
// maxHops hops (clamped to [1, MaxHops]) and returns the reached nodes.
// The entity is matched as a star source_id when numeric, otherwise as a
// cluster name or paper_id.
func (s *Store) Traverse(ctx context.Context, entity, relation string, maxHops int) (Traversal, error) {
	switch relation {
	case RelMentionedIn, RelMemberOf, RelCites:
	default:
		return Traversal{}, fmt.Errorf("%w: %q", ErrUnknownRelation, relation)
	}

	hops := ClampHops(maxHops)

	params := map[string]any{"name": entity}
	match := `(start {name: $name})`
	if id, err := strconv.ParseInt(entity, 10, 64); err == nil {
		params = map[string]any{"source_id": id}
		match = `(start:Star {source_id: $source_id})`
	} else if relation == RelCites {
		params = map[string]any{"paper_id": entity}
		match = `(start:Paper {paper_id: $paper_id})`
	}

	// Relation and hop count are validated above; only params carry input.
	query := fmt.Sprintf(`
		MATCH %s-[:%s*1..%d]-(node)
		RETURN DISTINCT labels(node) AS labels, properties(node) AS props
		LIMIT 50`, match, relation, hops)

	result, err := neo4j.ExecuteQuery(ctx, s.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return Traversal{}, fmt.Errorf("traversing graph: %w", err)
	}

	nodes := make([]Node, 0, len(result.Records))
	for _, rec := range result.Records {
		var n Node
		if labels, ok := rec.Get("labels"); ok {
			if ls, ok := labels.([]any); ok {
				for _, l := range ls {
					if str, ok := l.(string); ok {
						n.Labels = append(n.Labels, str)
					}
				}
			}
		}
		if props, ok := rec.Get("props"); ok {
			if m, ok := props.(map[string]any); ok {
				n.Props = m
			}
		}
		nodes = append(nodes, n)
	}

	s.logger.Debug("graph traversal succeeded",
		"entity", entity, "relation", relation, "hops", hops, "nodes", len(nodes))
	return Traversal{Entity: entity, Relation: relation, Hops: hops, Nodes: nodes}, nil
}

// Stats reports node and relationship counts for the stats endpoint.
// Degrades to status "unavailable" instead of failing.
func (s *Store) Stats(ctx context.Context) Stats {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, `
		MATCH (n)
		OPTIONAL MATCH ()-[r]->()
		RETURN count(DISTINCT CASE WHEN n:Star THEN n END) AS stars,
		       count(DISTINCT CASE WHEN n:Paper THEN n END) AS papers,
		       count(DISTINCT CASE WHEN n:Cluster THEN n END) AS clusters,
		       count(DISTINCT r) AS relationships`,
		nil,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil || len(result.Records) == 0 {
		s.logger.Warn("graph stats failed", "error", err)
		return Stats{Status: "unavailable"}
	}

	rec := result.Records[0]
	stats := Stats{Status: "green"}
	stats.Stars, _ = recordInt(rec, "stars")
	stats.Papers, _ = recordInt(rec, "papers")
	stats.Clusters, _ = recordInt(rec, "clusters")
	stats.Relationships, _ = recordInt(rec, "relationships")
	return stats
}

// Close shuts down the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	if err := s.driver.Close(ctx); err != nil {
		return fmt.Errorf("closing neo4j driver: %w", err)
	}
	return nil
}

// ClampHops bounds a requested hop count to [1, MaxHops].
func ClampHops(hops int) int {
	if hops < 1 {
		return 1
	}
	if hops > MaxHops {
		return MaxHops
	}
	return hops
}

func recordsToPapers(records []*neo4j.Record) []Paper {
	papers := make([]Paper, 0, len(records))
	for _, rec := range records {
		var p Paper
		if v, ok := rec.Get("paper_id"); ok {
			if str, ok := v.(string); ok {
				p.PaperID = str
			}
		}
		if v, ok := rec.Get("title"); ok {
			if str, ok := v.(string); ok {
				p.Title = str
			}
		}
		p.Year, _ = recordInt(rec, "year")
		papers = append(papers, p)
	}
	return papers
}

func recordInt(rec *neo4j.Record, key string) (int64, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}
