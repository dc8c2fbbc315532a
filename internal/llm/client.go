package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/iotloader/internal/models"
)

const DefaultTimeout = 60 * time.Second

// Request is one model invocation. Backends must request JSON-object output
// at temperature 0.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// Response is the raw text returned by a backend. Usage is nil when the
// provider did not report it.
type Response struct {
	Text  string
	Usage *models.GenerationUsage
}

// Backend is a generative model provider.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
	Close() error
}

// Result is the outcome of a successful Client.Generate call.
type Result struct {
	Text     string
	Usage    *models.GenerationUsage
	Attempts int
}

// Client wraps a Backend with a per-call timeout and a bounded, sequential
// retry policy. It holds no per-run state and is safe for concurrent use.
type Client struct {
	backend Backend
	timeout time.Duration
}

// NewClient creates a Client. A non-positive timeout selects DefaultTimeout.
func NewClient(backend Backend, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{backend: backend, timeout: timeout}
}

func (c *Client) Name() string { return c.backend.Name() }

func (c *Client) Close() error { return c.backend.Close() }

// Generate calls the backend at most retries+1 times. Timeouts, transient API
// errors and transport errors are retried immediately; a non-transient API
// error or caller cancellation ends the loop.
func (c *Client) Generate(ctx context.Context, model, systemPrompt, userPrompt string, retries int) (Result, error) {
	if retries < 0 {
		retries = 0
	}
	req := Request{Model: model, SystemPrompt: systemPrompt, UserPrompt: userPrompt}
	logCtx := slog.With("backend", c.backend.Name(), "model", model)

	var last *GenerationError
	attempts := 0
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("generation aborted: %w", err)
		}
		attempts++

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.backend.Generate(callCtx, req)
		callErr := callCtx.Err()
		cancel()

		if err == nil {
			return Result{
				Text:     StripFences(resp.Text),
				Usage:    resp.Usage,
				Attempts: attempts,
			}, nil
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("generation aborted: %w", ctx.Err())
		}

		last = classify(err, callErr)
		if !last.Transient {
			break
		}
		if attempt < retries {
			logCtx.Warn("Model call failed, will retry.",
				"attempt", attempts,
				"maxAttempts", retries+1,
				"kind", string(last.Kind),
				"error", err,
			)
		}
	}
	last.Attempts = attempts
	logCtx.Error("Model call failed.", "kind", string(last.Kind), "attempts", attempts, "error", last.Err)
	return Result{}, last
}

// StripFences trims whitespace and removes a surrounding markdown code fence
// if the model added one despite the JSON output mode.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
