// Package app wires the application together: database pool, migrations,
// Genkit with the configured AI provider, the knowledge-graph driver, the
// retrieval stores, the tool registry, and the agent.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taarya/taarya/internal/agent"
	"github.com/taarya/taarya/internal/catalog"
	"github.com/taarya/taarya/internal/config"
	"github.com/taarya/taarya/internal/graph"
	"github.com/taarya/taarya/internal/log"
	"github.com/taarya/taarya/internal/papers"
	"github.com/taarya/taarya/internal/session"
	"github.com/taarya/taarya/internal/tools"
)

// App is the application container. Built by Setup, released by Close.
type App struct {
	Config *config.Config

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Catalog  *catalog.Store
	Papers   *papers.Store
	Graph    *graph.Store
	Registry *tools.Registry
	Agent    *agent.Agent
	Sessions *session.Store

	logger      log.Logger
	otelCleanup func()
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	a.logger.Info("shutting down application")

	var firstErr error
	if a.Graph != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := a.Graph.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.logger.Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return firstErr
}
