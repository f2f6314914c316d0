package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/taarya/taarya/internal/agent"
	"github.com/taarya/taarya/internal/catalog"
	"github.com/taarya/taarya/internal/graph"
	"github.com/taarya/taarya/internal/papers"
	"github.com/taarya/taarya/internal/session"
)

// Paper search limits mirror the semantic tool.
const (
	defaultPaperLimit = 5
	maxPaperLimit     = 20
)

// Topic listing limits for the graph-backed paper lookup.
const (
	defaultTopicLimit = 20
	maxTopicLimit     = 50
)

// Nearby defaults mirror the find_nearby_stars tool.
const (
	defaultNearbyRadius = 0.1
	defaultNearbyLimit  = 20
)

type askRequest struct {
	Query   string `json:"query"`
	History []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"chat_history"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, s.logger, http.StatusBadRequest, "query is required")
		return
	}

	history := make([]agent.Message, 0, len(req.History))
	for _, m := range req.History {
		role, ok := agent.NormalizeRole(m.Role)
		if !ok {
			writeError(w, s.logger, http.StatusBadRequest, "unknown role "+strconv.Quote(m.Role))
			return
		}
		history = append(history, agent.Message{Role: role, Content: m.Content})
	}

	resp, err := s.cfg.Agent.Ask(r.Context(), req.Query, history)
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrAllToolsFailed):
			writeError(w, s.logger, http.StatusBadGateway, "all tool calls failed")
		case errors.Is(err, agent.ErrPlanning):
			writeError(w, s.logger, http.StatusBadGateway, "planning failed: "+err.Error())
		default:
			writeError(w, s.logger, http.StatusInternalServerError, "agent error")
		}
		return
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}

type coneResponse struct {
	Stars []catalog.Entry `json:"stars"`
	Count int64           `json:"count"`
}

func (s *Server) handleConeSearch(w http.ResponseWriter, r *http.Request) {
	ra, err := queryFloat(r, "ra")
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	dec, err := queryFloat(r, "dec")
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	radius, err := queryFloat(r, "radius")
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", catalog.DefaultLimit)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}

	var opts []catalog.ConeOption
	if v := r.URL.Query().Get("mag_limit"); v != "" {
		mag, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, s.logger, http.StatusBadRequest, "mag_limit must be a number")
			return
		}
		opts = append(opts, catalog.WithMagnitudeLimit(mag))
	}
	if v := r.URL.Query().Get("min_parallax"); v != "" {
		parallax, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, s.logger, http.StatusBadRequest, "min_parallax must be a number")
			return
		}
		opts = append(opts, catalog.WithMinParallax(parallax))
	}

	stars, count, err := s.cfg.Catalog.ConeSearch(r.Context(), ra, dec, radius, limit, opts...)
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	if stars == nil {
		stars = []catalog.Entry{}
	}
	writeJSON(w, s.logger, http.StatusOK, coneResponse{Stars: stars, Count: count})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	ra, err := queryFloat(r, "ra")
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	dec, err := queryFloat(r, "dec")
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	radius, err := queryFloat(r, "radius")
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}

	count, err := s.cfg.Catalog.Count(r.Context(), ra, dec, radius)
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]int64{"count": count})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(r.PathValue("source_id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "source_id must be an integer")
		return
	}

	entry, err := s.cfg.Catalog.Lookup(r.Context(), sourceID)
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, entry)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(r.PathValue("source_id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "source_id must be an integer")
		return
	}
	radius := defaultNearbyRadius
	if v := r.URL.Query().Get("radius"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, s.logger, http.StatusBadRequest, "radius must be a number")
			return
		}
	}
	limit, err := queryInt(r, "limit", defaultNearbyLimit)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}

	stars, err := s.cfg.Catalog.Nearby(r.Context(), sourceID, radius, limit)
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	if stars == nil {
		stars = []catalog.Entry{}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"stars": stars, "count": len(stars)})
}

func (s *Server) handlePaperSearch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Papers == nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "paper search is not configured")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, s.logger, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := queryInt(r, "limit", defaultPaperLimit)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	if limit < 1 || limit > maxPaperLimit {
		limit = defaultPaperLimit
	}

	results, err := s.cfg.Papers.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "paper search failed")
		return
	}
	if results == nil {
		results = []papers.Result{}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) graphOrUnavailable(w http.ResponseWriter) Graph {
	if s.cfg.Graph == nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "knowledge graph is not configured")
		return nil
	}
	return s.cfg.Graph
}

func (s *Server) handlePapersByStar(w http.ResponseWriter, r *http.Request) {
	g := s.graphOrUnavailable(w)
	if g == nil {
		return
	}
	sourceID, err := strconv.ParseInt(r.PathValue("source_id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "source_id must be an integer")
		return
	}

	results, err := g.StarPapers(r.Context(), sourceID)
	if err != nil {
		s.logger.Error("graph query failed", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "graph query failed")
		return
	}
	if results == nil {
		results = []graph.Paper{}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"source_id": sourceID,
		"papers":    results,
		"count":     len(results),
	})
}

func (s *Server) handlePapersByTopic(w http.ResponseWriter, r *http.Request) {
	g := s.graphOrUnavailable(w)
	if g == nil {
		return
	}
	topic := r.URL.Query().Get("q")
	if topic == "" {
		writeError(w, s.logger, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := queryInt(r, "limit", defaultTopicLimit)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	if limit < 1 || limit > maxTopicLimit {
		limit = defaultTopicLimit
	}

	results, err := g.PapersAboutTopic(r.Context(), topic, limit)
	if err != nil {
		s.logger.Error("graph query failed", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "graph query failed")
		return
	}
	if results == nil {
		results = []graph.Paper{}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"topic":  topic,
		"papers": results,
		"count":  len(results),
	})
}

func (s *Server) handleClusterMembers(w http.ResponseWriter, r *http.Request) {
	g := s.graphOrUnavailable(w)
	if g == nil {
		return
	}
	name := r.PathValue("name")

	members, err := g.ClusterMembers(r.Context(), name)
	if err != nil {
		s.logger.Error("graph query failed", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "graph query failed")
		return
	}
	if members == nil {
		members = []int64{}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"cluster":    name,
		"source_ids": members,
		"count":      len(members),
	})
}

type statsResponse struct {
	PostgreSQL  postgresStats     `json:"postgresql"`
	VectorIndex papers.IndexStats `json:"vector_index"`
	Neo4j       graph.Stats       `json:"neo4j"`
}

type postgresStats struct {
	Status     string `json:"status"`
	TotalStars int64  `json:"total_stars"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		PostgreSQL:  postgresStats{Status: "unavailable"},
		VectorIndex: papers.IndexStats{Status: "unavailable"},
		Neo4j:       graph.Stats{Status: "unavailable"},
	}

	if total, err := s.cfg.Catalog.TotalStars(r.Context()); err == nil {
		resp.PostgreSQL = postgresStats{Status: "connected", TotalStars: total}
	}
	if s.cfg.Papers != nil {
		resp.VectorIndex = s.cfg.Papers.Stats(r.Context())
	}
	if s.cfg.Graph != nil {
		resp.Neo4j = s.cfg.Graph.Stats(r.Context())
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pool != nil {
		if err := s.cfg.Pool.Ping(r.Context()); err != nil {
			writeError(w, s.logger, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}

// archiveSummary is the archive list projection; messages are omitted.
type archiveSummary struct {
	ID           int64  `json:"id"`
	Timestamp    string `json:"timestamp"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
}

func summarize(archives []session.Session) []archiveSummary {
	out := make([]archiveSummary, 0, len(archives))
	for _, a := range archives {
		out = append(out, archiveSummary{
			ID:           a.ID,
			Timestamp:    a.Timestamp.UTC().Format(time.RFC3339),
			Title:        a.Title,
			MessageCount: len(a.Messages),
		})
	}
	return out
}

func (s *Server) sessionsOrUnavailable(w http.ResponseWriter) *session.Store {
	if s.cfg.Sessions == nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "sessions are not configured")
		return nil
	}
	return s.cfg.Sessions
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	store := s.sessionsOrUnavailable(w)
	if store == nil {
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"active":   store.Active(),
		"archives": summarize(store.ListArchives()),
	})
}

func (s *Server) handleAppendSession(w http.ResponseWriter, r *http.Request) {
	store := s.sessionsOrUnavailable(w)
	if store == nil {
		return
	}
	var req struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	role, ok := agent.NormalizeRole(req.Role)
	if !ok {
		writeError(w, s.logger, http.StatusBadRequest, "unknown role "+strconv.Quote(req.Role))
		return
	}
	if req.Content == "" {
		writeError(w, s.logger, http.StatusBadRequest, "content is required")
		return
	}
	store.Append(agent.Message{Role: role, Content: req.Content})
	writeJSON(w, s.logger, http.StatusCreated, map[string]any{"messages": len(store.Active())})
}

func (s *Server) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	store := s.sessionsOrUnavailable(w)
	if store == nil {
		return
	}
	sess, ok := store.ArchiveCurrent()
	if !ok {
		writeJSON(w, s.logger, http.StatusOK, map[string]any{"archived": false})
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"archived": true,
		"session":  summarize([]session.Session{sess})[0],
	})
}

func (s *Server) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	store := s.sessionsOrUnavailable(w)
	if store == nil {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "id must be an integer")
		return
	}
	sess, err := store.Restore(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, s.logger, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, s.logger, http.StatusInternalServerError, "restore failed")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"restored": summarize([]session.Session{sess})[0],
		"active":   store.Active(),
	})
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	store := s.sessionsOrUnavailable(w)
	if store == nil {
		return
	}
	store.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// writeCatalogError maps catalog errors onto HTTP statuses.
func (s *Server) writeCatalogError(w http.ResponseWriter, err error) {
	var ve *catalog.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, s.logger, http.StatusBadRequest, ve.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, s.logger, http.StatusNotFound, "star not found")
	default:
		s.logger.Error("catalog query failed", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "catalog query failed")
	}
}

func queryFloat(r *http.Request, name string) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, errors.New(name + " is required")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.New(name + " must be a number")
	}
	return f, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}
