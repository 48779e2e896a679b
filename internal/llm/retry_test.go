package llm

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errClass
	}{
		{"rate limit text", errors.New("Rate Limit exceeded"), errRateLimit},
		{"quota", errors.New("quota exceeded for model"), errRateLimit},
		{"http 429", errors.New("server returned 429"), errRateLimit},
		{"resource exhausted", errors.New("rpc error: RESOURCE EXHAUSTED"), errRateLimit},
		{"http 503", errors.New("503 service unavailable"), errTransient},
		{"connection reset", errors.New("read: connection reset by peer"), errTransient},
		{"timeout", errors.New("request timeout"), errTransient},
		{"bad request", errors.New("400 invalid argument"), errPermanent},
		{"schema error", errors.New("response did not match schema"), errPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyErrorNil(t *testing.T) {
	if got := classifyError(nil); got != errPermanent {
		t.Errorf("classifyError(nil) = %v, want permanent", got)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.InitialInterval <= 0 || cfg.MaxInterval < cfg.InitialInterval {
		t.Errorf("intervals inconsistent: initial=%v max=%v", cfg.InitialInterval, cfg.MaxInterval)
	}
}
