// Package api exposes the research assistant over HTTP: the agent
// endpoint, direct catalog and paper queries, backend stats, and the
// session store for the dashboard.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/taarya/taarya/internal/agent"
	"github.com/taarya/taarya/internal/catalog"
	"github.com/taarya/taarya/internal/graph"
	"github.com/taarya/taarya/internal/log"
	"github.com/taarya/taarya/internal/papers"
	"github.com/taarya/taarya/internal/session"
)

// Asker answers natural-language queries through the tool loop.
type Asker interface {
	Ask(ctx context.Context, query string, history []agent.Message) (*agent.Response, error)
}

// Catalog serves spatial star queries.
type Catalog interface {
	ConeSearch(ctx context.Context, ra, dec, radius float64, limit int, opts ...catalog.ConeOption) ([]catalog.Entry, int64, error)
	Count(ctx context.Context, ra, dec, radius float64) (int64, error)
	Lookup(ctx context.Context, sourceID int64) (catalog.Entry, error)
	Nearby(ctx context.Context, sourceID int64, radius float64, limit int) ([]catalog.Entry, error)
	TotalStars(ctx context.Context) (int64, error)
}

// Papers serves semantic passage search.
type Papers interface {
	Search(ctx context.Context, query string, limit int) ([]papers.Result, error)
	Stats(ctx context.Context) papers.IndexStats
}

// Graph serves knowledge-graph lookups and stats.
type Graph interface {
	StarPapers(ctx context.Context, sourceID int64) ([]graph.Paper, error)
	ClusterMembers(ctx context.Context, cluster string) ([]int64, error)
	PapersAboutTopic(ctx context.Context, topic string, limit int) ([]graph.Paper, error)
	Stats(ctx context.Context) graph.Stats
}

// Pinger checks database liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig wires the server's dependencies.
type ServerConfig struct {
	Logger log.Logger

	Agent    Asker
	Catalog  Catalog
	Papers   Papers
	Graph    Graph
	Sessions *session.Store
	Pool     Pinger

	CORSOrigins []string
	TrustProxy  bool
	RateBurst   int
}

// Server is the HTTP API.
type Server struct {
	cfg    ServerConfig
	logger log.Logger
}

// NewServer creates a Server. Agent and Catalog are required; the other
// backends degrade to 503 when absent.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("api: agent is nil")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("api: catalog is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Server{cfg: cfg, logger: cfg.Logger}, nil
}

// Handler builds the route table wrapped in the middleware stack.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/agent/ask", s.handleAsk)

	mux.HandleFunc("GET /api/stars/cone-search", s.handleConeSearch)
	mux.HandleFunc("GET /api/stars/count", s.handleCount)
	mux.HandleFunc("GET /api/stars/lookup/{source_id}", s.handleLookup)
	mux.HandleFunc("GET /api/stars/nearby/{source_id}", s.handleNearby)
	mux.HandleFunc("GET /api/stars/cluster/{name}", s.handleClusterMembers)

	mux.HandleFunc("GET /api/papers/search", s.handlePaperSearch)
	mux.HandleFunc("GET /api/papers/by-star/{source_id}", s.handlePapersByStar)
	mux.HandleFunc("GET /api/papers/topic", s.handlePapersByTopic)

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleAppendSession)
	mux.HandleFunc("POST /api/sessions/archive", s.handleArchiveSession)
	mux.HandleFunc("POST /api/sessions/{id}/restore", s.handleRestoreSession)
	mux.HandleFunc("DELETE /api/sessions", s.handleClearSessions)

	return chain(mux,
		recovery(s.logger),
		requestID(),
		logging(s.logger),
		cors(s.cfg.CORSOrigins),
		rateLimit(s.logger, s.cfg.RateBurst, s.cfg.TrustProxy),
	)
}
