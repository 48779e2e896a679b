// Package memory extracts long-term user memory from conversations.
//
// Memory lives inside the latest complete context bundle as a flat list
// of dated, categorized notes. The extractor runs an LLM structured-
// output call in two modes: a full merge when a conversation closes,
// and a lighter append during mid-session history compaction.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/model"
	"github.com/repwise/repwise/internal/store"
)

// ExtractionResult is the structured output schema for both prompts.
// Thought carries the model's explicit reasoning; only Notes persist.
type ExtractionResult struct {
	Thought string             `json:"thought"`
	Notes   []model.MemoryNote `json:"notes"`
}

// LLM is the slice of the llm client the extractor needs.
type LLM interface {
	Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// Storage is the slice of the store the extractor needs.
type Storage interface {
	Messages(ctx context.Context, scope store.Scope, conversationID uuid.UUID) ([]model.Message, error)
	LatestCompleteBundle(ctx context.Context, scope store.Scope, userID uuid.UUID) (*model.UserContextBundle, error)
	UpdateAIMemory(ctx context.Context, scope store.Scope, bundleID uuid.UUID, memory *model.AIMemory) error
	AppendAIMemory(ctx context.Context, scope store.Scope, bundleID uuid.UUID, notes []model.MemoryNote) error
}

// Extractor merges conversation content into a user's long-term memory.
type Extractor struct {
	llm     LLM
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

// Config configures an Extractor.
type Config struct {
	LLM     LLM
	Storage Storage
	Logger  *slog.Logger
	Now     func() time.Time // test hook
}

// New creates an Extractor.
func New(cfg Config) (*Extractor, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("memory extractor: llm is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("memory extractor: storage is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Extractor{llm: cfg.LLM, storage: cfg.Storage, logger: cfg.Logger, now: cfg.Now}, nil
}

// Extract runs the full post-conversation merge: load the transcript
// and current memory, ask the model for a merged note list, overwrite
// the bundle's memory subtree. A malformed model response keeps the
// previous memory untouched.
func (e *Extractor) Extract(ctx context.Context, userID, conversationID uuid.UUID) error {
	scope := store.AdminScope()

	messages, err := e.storage.Messages(ctx, scope, conversationID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	b, err := e.storage.LatestCompleteBundle(ctx, scope, userID)
	if err != nil {
		return fmt.Errorf("loading bundle: %w", err)
	}
	if b == nil {
		// Nowhere to persist memory yet; the next bundle regeneration
		// will create one and a later conversation picks it up.
		e.logger.Info("memory extraction skipped, no complete bundle", "user_id", userID)
		return nil
	}

	current := &model.AIMemory{Notes: []model.MemoryNote{}}
	if b.AIMemory != nil {
		current = b.AIMemory
	}

	prompt := mergePrompt(current.Notes, messages, e.now())
	result, ok := e.generate(ctx, prompt)
	if !ok {
		// Invalid model output; skip this cycle, memory stays as-is.
		return nil
	}

	if err := e.storage.UpdateAIMemory(ctx, scope, b.ID, &model.AIMemory{Notes: result.Notes}); err != nil {
		return fmt.Errorf("writing memory: %w", err)
	}
	e.logger.Info("memory extracted",
		"user_id", userID,
		"conversation_id", conversationID,
		"notes", len(result.Notes))
	return nil
}

// AppendSessionMemory summarizes compacted history into
// conversation_summary notes appended to the bundle's memory. An empty
// note list from the model is valid and writes nothing.
func (e *Extractor) AppendSessionMemory(ctx context.Context, userID uuid.UUID, messages []model.Message, bundleID uuid.UUID) error {
	if len(messages) == 0 {
		return nil
	}

	prompt := compactionPrompt(messages)
	result, ok := e.generate(ctx, prompt)
	if !ok {
		return fmt.Errorf("session memory extraction produced no usable output")
	}
	if len(result.Notes) == 0 {
		return nil
	}

	date := e.now().Format("2006-01-02")
	notes := make([]model.MemoryNote, 0, len(result.Notes))
	for _, n := range result.Notes {
		// Compaction notes are always summaries dated now, whatever
		// the model claims.
		notes = append(notes, model.MemoryNote{
			Text:     n.Text,
			Date:     date,
			Category: model.NoteConversationSummary,
		})
	}

	if err := e.storage.AppendAIMemory(ctx, store.AdminScope(), bundleID, notes); err != nil {
		return fmt.Errorf("appending session memory: %w", err)
	}
	e.logger.Info("session memory appended", "user_id", userID, "notes", len(notes))
	return nil
}

// generate runs the structured-output call. The llm client already
// retries rate limits and transient failures; this layer only handles
// output validity. Returns ok=false on any malformed response.
func (e *Extractor) generate(ctx context.Context, prompt string) (*ExtractionResult, bool) {
	resp, err := e.llm.Generate(ctx,
		ai.WithSystem(prompt),
		ai.WithPrompt("Produce the JSON result now."),
		ai.WithOutputType(ExtractionResult{}),
	)
	if err != nil {
		e.logger.Warn("memory extraction call failed", "error", err)
		return nil, false
	}

	var result ExtractionResult
	if err := resp.Output(&result); err != nil {
		e.logger.Warn("memory extraction output malformed", "error", err)
		return nil, false
	}
	if result.Notes == nil {
		result.Notes = []model.MemoryNote{}
	}
	return &result, true
}

func mergePrompt(current []model.MemoryNote, messages []model.Message, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(`You maintain the long-term memory of a fitness coaching user.
Merge the existing memory notes with what the conversation below reveals.

Rules:
- Each note is one atomic fact, a single sentence.
- A fact the user reconfirmed gets today's date.
- Delete notes the conversation contradicts.
- Recategorize conversation_summary notes into a concrete category.
- Combine closely related facts into one note.
- Never store current ability or PR numbers; workout analytics track those. Competition results are kept.
- Categories: goal, injury, preference, equipment, nutrition, recovery, general.

Today is `)
	sb.WriteString(now.Format("2006-01-02"))
	sb.WriteString(".\n\nEXISTING MEMORY:\n")
	if len(current) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, n := range current {
		fmt.Fprintf(&sb, "- [%s] %s (noted: %s)\n", n.Category, n.Text, n.Date)
	}
	sb.WriteString("\nCONVERSATION:\n")
	writeTranscript(&sb, messages)
	return sb.String()
}

func compactionPrompt(messages []model.Message) string {
	var sb strings.Builder
	sb.WriteString(`Summarize the conversation below into atomic facts worth remembering
about the user. One sentence per fact. If nothing is worth keeping,
return an empty notes list. Every note uses category "conversation_summary".

CONVERSATION:
`)
	writeTranscript(&sb, messages)
	return sb.String()
}

func writeTranscript(sb *strings.Builder, messages []model.Message) {
	for _, m := range messages {
		fmt.Fprintf(sb, "%s: %s\n", m.Role, m.Content)
	}
}
