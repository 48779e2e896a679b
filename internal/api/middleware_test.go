package api

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/repwise/repwise/internal/log"
)

// hijackRecorder is a ResponseRecorder that supports hijacking, the way
// a real server connection does.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (r *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.hijacked = true
	server, _ := net.Pipe()
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

func TestLoggingMiddlewarePassesHijackThrough(t *testing.T) {
	// The websocket upgrader asserts http.Hijacker directly on the
	// writer it gets, so the wrapper must satisfy it.
	handler := loggingMiddleware(log.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer does not implement http.Hijacker")
		}
		conn, _, err := h.Hijack()
		if err != nil {
			t.Fatalf("Hijack: %v", err)
		}
		conn.Close()
	}))

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/llm/coach/a/b", nil))
	if !rec.hijacked {
		t.Error("hijack did not reach the underlying writer")
	}
}

func TestLoggingMiddlewareHijackUnsupported(t *testing.T) {
	handler := loggingMiddleware(log.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer does not implement http.Hijacker")
		}
		if _, _, err := h.Hijack(); err == nil {
			t.Error("Hijack over a plain recorder should fail")
		}
	}))

	// Plain recorder: no Hijacker underneath.
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
}
