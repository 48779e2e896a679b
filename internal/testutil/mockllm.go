// Package testutil provides shared testing utilities for the repwise
// project: a deterministic mock LLM registered as a Genkit model, a
// discard logger, and a PostgreSQL test container helper.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic LLM responses for testing. It matches
// the last user message against registered patterns and returns the
// corresponding scripted response.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	calls    []MockCall
}

type mockRule struct {
	pattern  string            // substring match, case-insensitive
	response string            // text response
	chunks   []string          // text streamed chunk by chunk (nil = one chunk)
	thinking string            // reasoning emitted before the text, if any
	tools    []*ai.ToolRequest // tool calls to request (nil = text only)
	once     bool              // consumed after first match
	used     bool
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage  string // last user message text
	Response     string // response text returned
	ToolResults  int    // tool response parts present in the request
	MessageCount int    // total messages in the request
}

// NewMockLLM creates a mock LLM with the given fallback response,
// returned when no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. When the last user
// message contains the pattern (case-insensitive), the response is
// returned. First registered match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), response: response})
}

// AddThinkingResponse registers a response preceded by a reasoning
// chunk, exercising thinking passthrough in the session.
func (m *MockLLM) AddThinkingResponse(pattern, thinking, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), thinking: thinking, response: response})
}

// AddChunkedResponse registers a response streamed as multiple text
// chunks, one callback invocation each. The full response text is the
// concatenation of the chunks. Useful for exercising mid-stream
// interruption.
func (m *MockLLM) AddChunkedResponse(pattern string, chunks ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: strings.Join(chunks, ""),
		chunks:   chunks,
	})
}

// AddToolResponse registers a pattern that triggers tool calls on its
// first match only; subsequent matches fall through to later rules.
// This models the two-pass shape: pass 1 requests tools, pass 2
// (same user message, tool results attached) produces text.
func (m *MockLLM) AddToolResponse(pattern string, tools []*ai.ToolRequest, textResponse string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: textResponse,
		tools:    tools,
		once:     true,
	})
}

// AddJSONResponse registers a structured-output response: v is
// marshaled and returned as the message text, which resp.Output
// parses back into the caller's schema.
func (m *MockLLM) AddJSONResponse(pattern string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling mock response: %w", err)
	}
	m.AddResponse(pattern, string(data))
	return nil
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Reset clears recorded calls and rule consumption state.
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	for i := range m.rules {
		m.rules[i].used = false
	}
}

// RegisterModel registers the mock as a Genkit model named
// "mock/test-model" and returns the reference.
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
			Media:      false,
		},
	}, m.generate)
}

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	toolResults := 0
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if userText == "" && req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
		}
		for _, p := range req.Messages[i].Content {
			if p.Kind == ai.PartToolResponse {
				toolResults++
			}
		}
	}

	m.mu.Lock()
	var matched *mockRule
	lower := strings.ToLower(userText)
	for i := range m.rules {
		r := &m.rules[i]
		if r.used || !strings.Contains(lower, r.pattern) {
			continue
		}
		matched = r
		if r.once {
			r.used = true
		}
		break
	}

	responseText := m.fallback
	thinking := ""
	var chunks []string
	var tools []*ai.ToolRequest
	if matched != nil {
		responseText = matched.response
		thinking = matched.thinking
		chunks = matched.chunks
		tools = matched.tools
	}

	m.calls = append(m.calls, MockCall{
		UserMessage:  userText,
		Response:     responseText,
		ToolResults:  toolResults,
		MessageCount: len(req.Messages),
	})
	m.mu.Unlock()

	if cb != nil {
		if thinking != "" {
			part := &ai.Part{Kind: ai.PartReasoning, Text: thinking}
			_ = cb(ctx, &ai.ModelResponseChunk{Content: []*ai.Part{part}})
		}
		// Tool calls stream before text, like real providers.
		for _, tr := range tools {
			_ = cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{{Kind: ai.PartToolRequest, ToolRequest: tr}},
			})
		}
		if len(chunks) == 0 {
			chunks = []string{responseText}
		}
		for _, c := range chunks {
			_ = cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{ai.NewTextPart(c)},
			})
		}
	}

	var parts []*ai.Part
	for _, tr := range tools {
		parts = append(parts, &ai.Part{Kind: ai.PartToolRequest, ToolRequest: tr})
	}
	parts = append(parts, ai.NewTextPart(responseText))

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{Role: ai.RoleModel, Content: parts},
	}, nil
}
