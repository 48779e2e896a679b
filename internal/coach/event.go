// Package coach implements the conversation core: per-connection
// session state, the two-pass tool streaming protocol, system prompt
// assembly from bundle-derived context, and the exercise lookup tools
// exposed to the model.
package coach

// EventType discriminates the chunks a session streams to its client.
type EventType string

const (
	// EventThinking carries a model reasoning trace. Never part of the
	// assistant reply body.
	EventThinking EventType = "thinking"
	// EventContent carries reply text; the concatenation of all content
	// events of one turn is the assistant message.
	EventContent EventType = "content"
	// EventComplete ends a turn; Length is the reply length in bytes.
	EventComplete EventType = "complete"
	// EventError reports a turn failure.
	EventError EventType = "error"
)

// Event is one chunk of a session turn.
type Event struct {
	Type   EventType `json:"type"`
	Text   string    `json:"text,omitempty"`
	Length int       `json:"length,omitempty"`
}

// EmitFunc receives stream events in order. Returning an error stops
// the turn; the session treats it like a client disconnect.
type EmitFunc func(Event) error
