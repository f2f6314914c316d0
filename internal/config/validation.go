package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Validate checks all configuration values and returns the first error
// found. Called by Load after unmarshalling; a Config that fails here never
// reaches a backend.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateModels(); err != nil {
		return err
	}
	if err := c.validatePostgres(); err != nil {
		return err
	}
	if err := c.validateNeo4j(); err != nil {
		return err
	}
	if err := c.validateBudgets(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProvider() error {
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: provider %q requires GEMINI_API_KEY or GOOGLE_API_KEY",
				ErrInvalidProvider, c.Provider)
		}
	case ProviderOllama:
		if _, err := url.ParseRequestURI(c.OllamaHost); err != nil {
			return fmt.Errorf("%w: ollama host %q: %v", ErrInvalidProvider, c.OllamaHost, err)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}
	return nil
}

func (c *Config) validateModels() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEmbedderModel)
	}
	if c.MaxTurns < 1 || c.MaxTurns > 20 {
		return fmt.Errorf("%w: %d (must be 1-20)", ErrInvalidMaxTurns, c.MaxTurns)
	}
	return nil
}

func (c *Config) validatePostgres() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresDBName)
	}
	return nil
}

func (c *Config) validateNeo4j() error {
	u, err := url.Parse(c.Neo4jURI)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidNeo4jURI, c.Neo4jURI, err)
	}
	switch u.Scheme {
	case "bolt", "bolt+s", "neo4j", "neo4j+s":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidNeo4jURI, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrInvalidNeo4jURI, c.Neo4jURI)
	}
	return nil
}

func (c *Config) validateBudgets() error {
	if c.QueryTimeoutSec < 1 || c.QueryTimeoutSec > 300 {
		return fmt.Errorf("%w: query_timeout_sec %d (must be 1-300)",
			ErrInvalidTimeout, c.QueryTimeoutSec)
	}
	if c.SandboxTimeoutSec < 1 || c.SandboxTimeoutSec > 300 {
		return fmt.Errorf("%w: sandbox_timeout_sec %d (must be 1-300)",
			ErrInvalidTimeout, c.SandboxTimeoutSec)
	}
	return nil
}
