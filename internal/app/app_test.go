package app

import (
	"context"
	"testing"

	"github.com/taarya/taarya/internal/config"
	"github.com/taarya/taarya/internal/log"
)

func TestSetupRequiresConfig(t *testing.T) {
	if _, err := Setup(context.Background(), nil, log.NewNop()); err == nil {
		t.Error("Setup(nil config) succeeded")
	}
}

func TestClosePartialApp(t *testing.T) {
	// Close must be safe on an app whose setup never completed.
	a := &App{logger: log.NewNop()}
	if err := a.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestOtelDisabledWithoutHost(t *testing.T) {
	cleanup := provideOtelShutdown(context.Background(), &config.Config{}, log.NewNop())
	if cleanup == nil {
		t.Fatal("cleanup func is nil")
	}
	cleanup() // must be a harmless no-op
}
