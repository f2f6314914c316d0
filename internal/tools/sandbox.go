package tools

// sandbox.go defines the code_execution tool. Snippets run in a separate
// interpreter process with an isolated environment, a private working
// directory, and a wall-clock budget. Input data is piped in as JSON on
// stdin rather than interpolated into the snippet.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/taarya/taarya/internal/log"
)

// CodeExecutionName is the Genkit tool name for sandboxed snippet execution.
const CodeExecutionName = "code_execution"

// Sandbox limits.
const (
	// MaxSnippetSize caps the snippet length in bytes.
	MaxSnippetSize = 20_000
	// MaxCaptureSize caps captured stdout and stderr, each.
	MaxCaptureSize = 64 * 1024
	// DefaultSandboxTimeout applies when no budget is configured.
	DefaultSandboxTimeout = 15 * time.Second
)

// CodeExecutionInput defines input for the code_execution tool.
type CodeExecutionInput struct {
	Code string `json:"code" jsonschema_description:"Python snippet to run. Prior tool output is available as JSON on stdin"`
	Data any    `json:"data,omitempty" jsonschema_description:"Data to pass to the snippet, serialized as JSON on stdin"`
}

// Sandbox holds configuration for snippet execution.
type Sandbox struct {
	interpreter string
	timeout     time.Duration
	logger      log.Logger
}

// NewSandbox creates a Sandbox. An empty interpreter defaults to python3,
// a zero timeout to DefaultSandboxTimeout.
func NewSandbox(interpreter string, timeout time.Duration, logger log.Logger) (*Sandbox, error) {
	if interpreter == "" {
		interpreter = "python3"
	}
	if timeout <= 0 {
		timeout = DefaultSandboxTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Sandbox{interpreter: interpreter, timeout: timeout, logger: logger}, nil
}

// RegisterSandbox registers the code_execution tool with Genkit.
func RegisterSandbox(g *genkit.Genkit, sb *Sandbox) ([]ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if sb == nil {
		return nil, fmt.Errorf("Sandbox is required")
	}

	return []ai.Tool{
		genkit.DefineTool(g, CodeExecutionName,
			"Run a short Python snippet over data from earlier tool calls, "+
				"for unit conversions, statistics, or small computations. "+
				"The data argument is serialized as JSON and supplied on stdin; "+
				"read it with json.load(sys.stdin). Print results to stdout. "+
				"No network access, no environment, isolated working directory, "+
				"hard wall-clock timeout. Files written to the working directory "+
				"are returned as artifact names.",
			sb.Execute),
	}, nil
}

// Execute runs the snippet and captures its output.
// Snippet failures and timeouts are business errors in Result.Error; only
// context cancellation from the caller returns a Go error.
func (sb *Sandbox) Execute(ctx *ai.ToolContext, input CodeExecutionInput) (Result, error) {
	sb.logger.Info("CodeExecution called", "code_size", len(input.Code))

	if input.Code == "" {
		return errorResult(ErrCodeValidation, "code must not be empty"), nil
	}
	if len(input.Code) > MaxSnippetSize {
		return errorResult(ErrCodeValidation,
			fmt.Sprintf("snippet size %d exceeds maximum %d bytes", len(input.Code), MaxSnippetSize)), nil
	}

	stdin, err := json.Marshal(input.Data)
	if err != nil {
		return errorResult(ErrCodeValidation, fmt.Sprintf("data is not serializable: %v", err)), nil
	}

	workdir, err := os.MkdirTemp("", "taarya-sandbox-*")
	if err != nil {
		return Result{}, fmt.Errorf("creating sandbox workdir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workdir); rmErr != nil {
			sb.logger.Warn("sandbox cleanup failed", "workdir", workdir, "error", rmErr)
		}
	}()

	snippet := filepath.Join(workdir, "snippet.py")
	if err := os.WriteFile(snippet, []byte(input.Code), 0o600); err != nil {
		return Result{}, fmt.Errorf("writing snippet: %w", err)
	}

	parent := toolCtx(ctx)
	execCtx, cancel := context.WithTimeout(parent, sb.timeout)
	defer cancel()

	// -I: isolated mode (no user site, no env-derived sys.path), -S: skip
	// site import. Environment is reduced to a minimal PATH so the snippet
	// inherits no credentials.
	cmd := exec.CommandContext(execCtx, sb.interpreter, "-I", "-S", snippet)
	cmd.Dir = workdir
	cmd.Env = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "HOME=" + workdir}
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if parent.Err() != nil && errors.Is(parent.Err(), context.Canceled) {
		return Result{}, fmt.Errorf("code execution canceled: %w", parent.Err())
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		sb.logger.Warn("CodeExecution timed out", "timeout", sb.timeout)
		return errorResult(ErrCodeTimeout,
			fmt.Sprintf("snippet exceeded the %s execution budget", sb.timeout)), nil
	}

	if runErr != nil {
		sb.logger.Warn("CodeExecution failed", "error", runErr, "stderr_size", stderr.Len())
		return Result{
			Status: StatusError,
			Error: &Error{
				Code:    ErrCodeExecution,
				Message: "snippet execution failed",
				Details: map[string]any{
					"stderr":     truncate(stderr.String(), MaxCaptureSize),
					"elapsed_ms": elapsed.Milliseconds(),
				},
			},
		}, nil
	}

	artifacts := sb.collectArtifacts(workdir)

	sb.logger.Info("CodeExecution succeeded",
		"elapsed_ms", elapsed.Milliseconds(), "stdout_size", stdout.Len(), "artifacts", len(artifacts))
	return Result{
		Status: StatusSuccess,
		Data: map[string]any{
			"stdout":     truncate(stdout.String(), MaxCaptureSize),
			"stderr":     truncate(stderr.String(), MaxCaptureSize),
			"elapsed_ms": elapsed.Milliseconds(),
			"artifacts":  artifacts,
		},
	}, nil
}

// collectArtifacts lists files the snippet left in the workdir, excluding
// the snippet itself.
func (sb *Sandbox) collectArtifacts(workdir string) []string {
	entries, err := os.ReadDir(workdir)
	if err != nil {
		sb.logger.Warn("listing sandbox artifacts failed", "error", err)
		return nil
	}

	artifacts := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "snippet.py" {
			continue
		}
		artifacts = append(artifacts, entry.Name())
	}
	return artifacts
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n... [truncated]"
}
