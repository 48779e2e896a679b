package llm

import (
	"strings"
	"time"
)

// RetryConfig configures the retry behavior for LLM calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum retry attempts for rate-limit errors
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns the defaults: five attempts starting at
// one second for rate-limit errors, capped at thirty seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      5,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// transientMaxRetries bounds retries for non-rate-limit transient
// failures (network, 5xx).
const transientMaxRetries = 3

// errClass buckets provider errors for retry decisions.
type errClass string

const (
	errRateLimit errClass = "rate_limit"
	errTransient errClass = "transient"
	errPermanent errClass = "permanent"
)

// Error substrings by class, matched case-insensitively.
//
// NOTE: string matching because Genkit and provider SDKs do not expose
// typed errors for transient failures. Re-evaluate if Genkit adds
// structured error types.
var (
	rateLimitPatterns = []string{"rate limit", "quota exceeded", "429", "resource exhausted"}
	transientPatterns = []string{"500", "502", "503", "504", "unavailable", "connection reset", "timeout", "temporary"}
)

// classifyError buckets an error for the retry loop.
func classifyError(err error) errClass {
	if err == nil {
		return errPermanent
	}
	msg := strings.ToLower(err.Error())
	for _, p := range rateLimitPatterns {
		if strings.Contains(msg, p) {
			return errRateLimit
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return errTransient
		}
	}
	return errPermanent
}
