// Package llm wraps Genkit model calls with the resilience policy used
// across repwise: proactive rate limiting and exponential-backoff retry
// on transient provider failures.
//
// The coach session and memory extractor both call through this client
// so that every LLM request shares one retry/ratelimit path.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// ErrNoGenkit indicates the client was constructed without a Genkit instance.
var ErrNoGenkit = errors.New("genkit instance is required")

// Config contains all required parameters for the client.
type Config struct {
	Genkit    *genkit.Genkit
	Logger    *slog.Logger
	ModelName string // Provider-qualified model name (e.g. "googleai/gemini-2.5-flash")

	// Retry settings (zero-value uses defaults).
	Retry RetryConfig

	// RateLimiter is optional; nil installs the default
	// 10 req/s sustained, burst of 30.
	RateLimiter *rate.Limiter
}

// Client executes Genkit generate calls with retry and rate limiting.
// Client is stateless apart from its immutable configuration and is
// safe for concurrent use.
type Client struct {
	g         *genkit.Genkit
	modelName string
	retry     RetryConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Genkit == nil {
		return nil, ErrNoGenkit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &Client{
		g:         cfg.Genkit,
		modelName: cfg.ModelName,
		retry:     retry,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// Genkit exposes the underlying Genkit instance for tool lookup.
func (c *Client) Genkit() *genkit.Genkit { return c.g }

// ModelName returns the provider-qualified model name.
func (c *Client) ModelName() string { return c.modelName }

// Generate runs a generate call with the client's model, retrying
// transient failures. Rate-limit class errors get the full retry
// budget; other transient errors give up after transientMaxRetries.
func (c *Client) Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	if c.modelName != "" {
		opts = append(opts, ai.WithModelName(c.modelName))
	}

	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		// Rate limit each attempt, not just the first.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := genkit.Generate(ctx, c.g, opts...)
		if err == nil {
			c.logger.Debug("generate succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}

		lastErr = err

		class := classifyError(err)
		if class == errPermanent {
			return nil, fmt.Errorf("generate: %w", err)
		}
		// Non-rate-limit transient errors get a smaller budget.
		if class == errTransient && attempt >= transientMaxRetries {
			break
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying after error",
			"attempt", attempt+1,
			"delay", delay,
			"class", class,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after retries (elapsed: %v): %w", time.Since(start), lastErr)
}
