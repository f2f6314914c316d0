// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.taarya/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, embedder for the agent orchestrator
//   - Catalog: PostgreSQL connection for the star catalog and vector index
//   - Graph: Neo4j connection for the knowledge graph
//   - Serve: HTTP listen address, CORS origins, rate limiting
//
// Sensitive values (passwords) are masked in MarshalJSON and never logged.
// Validation is fail-fast: Load returns an error before any backend is
// touched when a value is out of range.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidNeo4jURI indicates the Neo4j URI is malformed.
	ErrInvalidNeo4jURI = errors.New("invalid Neo4j URI")

	// ErrInvalidTimeout indicates a backend timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidMaxTurns indicates the agent turn bound is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
)

// DefaultEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 supports truncation to 768 dimensions, matching the
// paper_chunks pgvector schema; see papers.VectorDimension.
const DefaultEmbedderModel = "gemini-embedding-001"

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"`       // "gemini" (default) or "ollama"
	ModelName     string  `mapstructure:"model_name" json:"model_name"`   // e.g. "gemini-2.5-flash", "llama3.3"
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTurns      int     `mapstructure:"max_turns" json:"max_turns"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// PostgreSQL (star catalog + vector index)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Neo4j (knowledge graph)
	Neo4jURI      string `mapstructure:"neo4j_uri" json:"neo4j_uri"`
	Neo4jUser     string `mapstructure:"neo4j_user" json:"neo4j_user"`
	Neo4jPassword string `mapstructure:"neo4j_password" json:"neo4j_password"` // SENSITIVE: masked in MarshalJSON

	// Backend call budgets, in seconds. Every external call (spatial SQL,
	// vector search, graph traversal, sandboxed execution) carries one.
	QueryTimeoutSec   int `mapstructure:"query_timeout_sec" json:"query_timeout_sec"`
	SandboxTimeoutSec int `mapstructure:"sandbox_timeout_sec" json:"sandbox_timeout_sec"`

	// Serve mode
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Tracing (optional; empty host disables the exporter)
	OTLPHost    string `mapstructure:"otlp_host" json:"otlp_host"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".taarya")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.0)
	viper.SetDefault("max_turns", 5)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "taarya")
	viper.SetDefault("postgres_password", "taarya_dev_password")
	viper.SetDefault("postgres_db_name", "astronomy")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("neo4j_uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j_user", "neo4j")
	viper.SetDefault("neo4j_password", "")

	viper.SetDefault("query_timeout_sec", 10)
	viper.SetDefault("sandbox_timeout_sec", 15)

	viper.SetDefault("cors_origins", []string{"http://localhost:4200"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	viper.SetDefault("service_name", "taarya")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence is
// checked in Validate() when the gemini provider is selected.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "TAARYA_PROVIDER")
	mustBind("model_name", "TAARYA_MODEL_NAME")
	mustBind("ollama_host", "TAARYA_OLLAMA_HOST")
	mustBind("neo4j_uri", "NEO4J_URI")
	mustBind("neo4j_user", "NEO4J_USER")
	mustBind("neo4j_password", "NEO4J_PASSWORD")
	mustBind("cors_origins", "TAARYA_CORS_ORIGINS")
	mustBind("trust_proxy", "TAARYA_TRUST_PROXY")
	mustBind("rate_burst", "TAARYA_RATE_BURST")
	mustBind("otlp_host", "TAARYA_OTLP_HOST")
}

// parseDatabaseURL applies DATABASE_URL when set. It has the highest
// priority for PostgreSQL settings so container deployments can override
// the whole connection in one variable.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &c.PostgresPort); err != nil {
			return fmt.Errorf("malformed port %q: %w", p, err)
		}
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		c.PostgresDBName = name
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// PostgresURL returns the postgres:// connection URL (for migrations).
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser), url.QueryEscape(c.PostgresPassword),
		c.PostgresHost, c.PostgresPort, c.PostgresDBName, c.PostgresSSLMode)
}

// PostgresConnectionString returns the keyword/value connection string for pgx.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword,
		c.PostgresDBName, c.PostgresSSLMode)
}

// QueryTimeout returns the per-call budget for catalog, vector, and graph
// backends.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

// SandboxTimeout returns the wall-clock budget for one code_execution call.
func (c *Config) SandboxTimeout() time.Duration {
	return time.Duration(c.SandboxTimeoutSec) * time.Second
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	if c.Provider == ProviderOllama {
		return ProviderOllama + "/" + c.ModelName
	}
	return ProviderGoogleAI + "/" + c.ModelName
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid substring matching against real secret fragments.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 bytes or
// fewer are fully masked; longer ones keep the first and last 2 characters
// for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.Neo4jPassword = maskSecret(a.Neo4jPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
