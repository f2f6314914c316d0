package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/taarya/taarya/db"
	"github.com/taarya/taarya/internal/agent"
	"github.com/taarya/taarya/internal/catalog"
	"github.com/taarya/taarya/internal/config"
	"github.com/taarya/taarya/internal/graph"
	"github.com/taarya/taarya/internal/log"
	"github.com/taarya/taarya/internal/papers"
	"github.com/taarya/taarya/internal/session"
	"github.com/taarya/taarya/internal/tools"
)

const (
	pingTimeout  = 5 * time.Second
	closeTimeout = 5 * time.Second
)

// Setup creates and initializes the application. Returns an App with
// embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Catalog, err = catalog.New(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating catalog store: %w", err)
	}

	a.Papers, err = papers.New(pool, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating paper store: %w", err)
	}

	a.Graph, err = provideGraph(cfg, logger)
	if err != nil {
		return nil, err
	}

	sandbox, err := tools.NewSandbox("", cfg.SandboxTimeout(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}

	a.Registry, err = tools.Register(g, tools.Deps{
		Catalog:      a.Catalog,
		Papers:       a.Papers,
		Graph:        a.Graph,
		Sandbox:      sandbox,
		QueryTimeout: cfg.QueryTimeout(),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	a.Agent, err = agent.New(g, a.Registry, agent.Config{
		ModelName: cfg.FullModelName(),
		MaxTurns:  cfg.MaxTurns,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	a.Sessions, err = provideSessionStore(logger)
	if err != nil {
		return nil, err
	}

	logger.Info("application initialized",
		"provider", cfg.Provider,
		"model", cfg.FullModelName(),
		"tools", len(a.Registry.Names()))
	return a, nil
}

// provideOtelShutdown registers an OTLP HTTP exporter with Genkit's tracer
// provider. Must run before provideGenkit. An empty OTLP host disables
// tracing.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.OTLPHost == "" {
		return func() {}
	}

	// os.Setenv is not concurrent-safe, but this runs exactly once during
	// startup before goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPHost),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled", "collector", cfg.OTLPHost, "service", cfg.ServiceName)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default, via the googleai plugin) and ollama.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
		return g, nil
	}
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Ollama embedders are keyed by server address.
		return ollama.Embedder(g, cfg.OllamaHost)
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideGraph creates the Neo4j driver and graph store. The driver is
// lazy; connectivity problems surface per-query and degrade the stats
// endpoint instead of failing startup.
func provideGraph(cfg *config.Config, logger log.Logger) (*graph.Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	return graph.New(driver, logger)
}

// provideSessionStore creates the session store persisting to
// ~/.taarya/sessions.json.
func provideSessionStore(logger log.Logger) (*session.Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	persister, err := session.NewFilePersister(filepath.Join(home, ".taarya", "sessions.json"))
	if err != nil {
		return nil, fmt.Errorf("creating session persister: %w", err)
	}
	store, err := session.New(persister, logger)
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	return store, nil
}
