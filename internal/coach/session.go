package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/model"
	"github.com/repwise/repwise/internal/store"
)

// ErrNotInitialized indicates ProcessMessage ran before Initialize.
// This is a programmer error, not a runtime condition.
var ErrNotInitialized = errors.New("session used before Initialize")

// ErrAlreadyInitialized indicates Initialize was called twice.
var ErrAlreadyInitialized = errors.New("session already initialized")

// LLM is the slice of the llm client a session needs.
type LLM interface {
	Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// Storage is the slice of the store a session needs.
type Storage interface {
	GetOrCreateConversation(ctx context.Context, scope store.Scope, conversationID, userID uuid.UUID) (*model.Conversation, error)
	Messages(ctx context.Context, scope store.Scope, conversationID uuid.UUID) ([]model.Message, error)
	AppendMessages(ctx context.Context, scope store.Scope, conversationID uuid.UUID, msgs []model.Message) error
	LatestCompleteBundle(ctx context.Context, scope store.Scope, userID uuid.UUID) (*model.UserContextBundle, error)
	Profile(ctx context.Context, scope store.Scope, userID uuid.UUID) (*model.UserProfile, error)
}

// MemoryAppender summarizes compacted history into bundle memory.
type MemoryAppender interface {
	AppendSessionMemory(ctx context.Context, userID uuid.UUID, messages []model.Message, bundleID uuid.UUID) error
}

// compactionState tracks the background history-compaction task.
type compactionState int

const (
	compactionIdle compactionState = iota
	compactionExtracting
	compactionReady
)

// SessionConfig configures a Session.
type SessionConfig struct {
	LLM     LLM
	Storage Storage
	Tools   *Tools
	Memory  MemoryAppender
	Logger  *slog.Logger

	// ToolRefs are passed to the model on pass 1. Registered once at
	// startup via Tools.Register.
	ToolRefs []ai.ToolRef

	// CompactionThreshold triggers compaction when history exceeds it
	// (strictly greater). CompactionKeep messages survive verbatim.
	// Zero values default to 30 and 10.
	CompactionThreshold int
	CompactionKeep      int

	// BackgroundCtx outlives individual turns; compaction runs on it.
	BackgroundCtx context.Context
	// WG tracks background tasks for graceful shutdown.
	WG *sync.WaitGroup

	Trace *Trace
	Now   func() time.Time // test hook
}

// Session is the per-connection conversation state machine. Turns
// serialize: the caller must not invoke ProcessMessage again until the
// previous call returned. Background compaction is the only concurrent
// writer and touches only the compaction fields, under mu.
type Session struct {
	llm     LLM
	storage Storage
	tools   *Tools
	memory  MemoryAppender
	logger  *slog.Logger

	toolRefs  []ai.ToolRef
	threshold int
	keep      int
	bgCtx     context.Context
	wg        *sync.WaitGroup
	trace     *Trace
	now       func() time.Time

	conversationID uuid.UUID
	userID         uuid.UUID
	scope          store.Scope

	initialized bool
	isImperial  bool
	fmtCtx      FormattedContext
	bundle      *model.UserContextBundle
	history     []model.Message

	mu         sync.Mutex
	compaction compactionState
	cutoff     int
}

// NewSession creates an uninitialized session for one connection.
func NewSession(conversationID, userID uuid.UUID, cfg SessionConfig) (*Session, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("session: llm is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("session: storage is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("session: tools are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CompactionThreshold <= 0 {
		cfg.CompactionThreshold = 30
	}
	if cfg.CompactionKeep <= 0 {
		cfg.CompactionKeep = 10
	}
	if cfg.BackgroundCtx == nil {
		cfg.BackgroundCtx = context.Background()
	}
	if cfg.Trace == nil {
		cfg.Trace = NewTrace()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		llm:            cfg.LLM,
		storage:        cfg.Storage,
		tools:          cfg.Tools,
		memory:         cfg.Memory,
		logger:         cfg.Logger.With("conversation_id", conversationID, "user_id", userID),
		toolRefs:       cfg.ToolRefs,
		threshold:      cfg.CompactionThreshold,
		keep:           cfg.CompactionKeep,
		bgCtx:          cfg.BackgroundCtx,
		wg:             cfg.WG,
		trace:          cfg.Trace,
		now:            cfg.Now,
		conversationID: conversationID,
		userID:         userID,
		scope:          store.UserScope(userID),
	}, nil
}

// Trace exposes the session's telemetry ring.
func (s *Session) Trace() *Trace { return s.trace }

// History returns the in-memory message history. Test and debug use.
func (s *Session) History() []model.Message { return s.history }

// Initialize loads prior messages, the latest complete bundle, and the
// profile, then renders the prompt context. Must run exactly once
// before ProcessMessage. Missing bundle or profile degrade to empty
// context sections; the session still works for brand-new users.
func (s *Session) Initialize(ctx context.Context) error {
	if s.initialized {
		return ErrAlreadyInitialized
	}

	if _, err := s.storage.GetOrCreateConversation(ctx, s.scope, s.conversationID, s.userID); err != nil {
		return fmt.Errorf("opening conversation: %w", err)
	}

	msgs, err := s.storage.Messages(ctx, s.scope, s.conversationID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	s.history = msgs

	bundle, err := s.storage.LatestCompleteBundle(ctx, s.scope, s.userID)
	if err != nil {
		s.logger.Warn("loading bundle", "error", err)
	}
	s.bundle = bundle

	profile, err := s.storage.Profile(ctx, s.scope, s.userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("loading profile", "error", err)
	}
	if profile != nil {
		s.isImperial = profile.IsImperial
	}

	s.fmtCtx = FormatContext(bundle, profile, s.now())
	s.initialized = true
	s.trace.Record("initialize", fmt.Sprintf("history=%d bundle=%v", len(msgs), bundle != nil), 0)
	s.logger.Info("session initialized", "history", len(msgs), "has_bundle", bundle != nil)
	return nil
}

// ProcessMessage runs one two-pass turn, emitting stream events. The
// turn guarantees at most one user-visible reply even when tools run.
// On cancellation the partial reply is committed to history so the
// conversation stays coherent on reconnect.
func (s *Session) ProcessMessage(ctx context.Context, text string, emit EmitFunc) error {
	if !s.initialized {
		return ErrNotInitialized
	}

	turnStart := s.now()
	s.applyCompactionIfReady(ctx)

	userMsg := model.Message{
		ID:             uuid.New(),
		ConversationID: s.conversationID,
		Role:           model.RoleUser,
		Content:        text,
	}

	reply, err := s.runTurn(ctx, text, emit)
	if err != nil {
		// Client dropped mid-stream: the partial reply is the committed
		// assistant message so follow-ups stay coherent.
		if reply != "" && (errors.Is(err, context.Canceled) || ctx.Err() != nil) {
			s.commitTurn(userMsg, reply)
			s.trace.Record("turn_cancelled", fmt.Sprintf("partial=%d bytes", len(reply)), s.now().Sub(turnStart))
			return err
		}
		s.trace.Record("turn_failed", err.Error(), s.now().Sub(turnStart))
		if emitErr := emit(Event{Type: EventError, Text: "something went wrong, please try again"}); emitErr != nil {
			return emitErr
		}
		return err
	}

	s.commitTurn(userMsg, reply)
	s.maybeStartCompaction()
	s.trace.Record("turn_complete", fmt.Sprintf("reply=%d bytes", len(reply)), s.now().Sub(turnStart))
	return emit(Event{Type: EventComplete, Length: len(reply)})
}

// runTurn executes pass 1 and, when tools were requested, pass 2.
// It returns the text streamed to the client so far even on error.
func (s *Session) runTurn(ctx context.Context, text string, emit EmitFunc) (string, error) {
	messages := s.buildMessages(text)

	var (
		current   string
		toolsSeen bool
		emitErr   error
		firstTok  bool
		turnStart = s.now()
	)
	streamCb := func(_ context.Context, chunk *ai.ModelResponseChunk) error {
		for _, part := range chunk.Content {
			switch {
			case part.Kind == ai.PartReasoning:
				// Reasoning is surfaced but never counts toward the reply.
				if err := emit(Event{Type: EventThinking, Text: part.Text}); err != nil {
					emitErr = err
					return err
				}
			case part.Kind == ai.PartToolRequest:
				toolsSeen = true
			case part.Kind == ai.PartText && part.Text != "":
				if toolsSeen {
					// Speculative text after a tool call never reaches
					// the client; pass 2 produces the real reply.
					continue
				}
				if !firstTok {
					firstTok = true
					s.trace.Record("first_token", "", s.now().Sub(turnStart))
				}
				if err := emit(Event{Type: EventContent, Text: part.Text}); err != nil {
					emitErr = err
					return err
				}
				current += part.Text
			}
		}
		return nil
	}

	resp, err := s.llm.Generate(ctx,
		ai.WithSystem(BuildSystemPrompt(s.fmtCtx, "")),
		ai.WithMessages(messages...),
		ai.WithTools(s.toolRefs...),
		ai.WithReturnToolRequests(true),
		ai.WithStreaming(streamCb),
	)
	if emitErr != nil {
		return current, emitErr
	}
	if err != nil {
		return current, fmt.Errorf("pass 1: %w", err)
	}

	toolReqs := resp.ToolRequests()
	if len(toolReqs) == 0 {
		if current == "" {
			// Non-streaming providers deliver everything in the final
			// response only.
			current = resp.Text()
			if current != "" {
				if err := emit(Event{Type: EventContent, Text: current}); err != nil {
					return "", err
				}
			}
		}
		return current, nil
	}

	s.trace.Record("tool_requests", fmt.Sprintf("count=%d", len(toolReqs)), 0)
	return s.runPassTwo(ctx, messages, resp, toolReqs, emit)
}

// runPassTwo executes the buffered tool calls in parallel, rebuilds the
// system prompt with the fetched exercises, and streams the final
// reply. Pass 1 text is discarded; the reply starts fresh.
func (s *Session) runPassTwo(ctx context.Context, messages []*ai.Message, passOne *ai.ModelResponse, toolReqs []*ai.ToolRequest, emit EmitFunc) (string, error) {
	type toolResult struct {
		req     *ai.ToolRequest
		records []ExerciseRecord
		err     error
	}

	start := s.now()
	results := make([]toolResult, len(toolReqs))
	var wg sync.WaitGroup
	for i, req := range toolReqs {
		wg.Add(1)
		go func(i int, req *ai.ToolRequest) {
			defer wg.Done()
			records, err := s.tools.Execute(ctx, req.Name, req.Input)
			results[i] = toolResult{req: req, records: records, err: err}
		}(i, req)
	}
	wg.Wait()
	s.trace.Record("tools_executed", fmt.Sprintf("count=%d", len(toolReqs)), s.now().Sub(start))

	// Aggregate per tool, dropping duplicate ids across calls of the
	// same tool, and enrich strength rows with last-tracked data.
	byTool := map[string][]ExerciseRecord{}
	seen := map[string]map[uuid.UUID]bool{}
	for i := range results {
		r := &results[i]
		if r.err != nil {
			s.logger.Warn("tool execution failed", "tool", r.req.Name, "error", r.err)
			continue
		}
		if seen[r.req.Name] == nil {
			seen[r.req.Name] = map[uuid.UUID]bool{}
		}
		for j := range r.records {
			rec := r.records[j]
			if seen[r.req.Name][rec.ID] {
				continue
			}
			seen[r.req.Name][rec.ID] = true
			if r.req.Name == ToolStrengthExercises {
				rec.LastTracked = s.lastTracked(rec.ID)
			}
			byTool[r.req.Name] = append(byTool[r.req.Name], rec)
		}
	}

	// Re-invocation transcript: pass-1 assistant stub with its tool
	// calls, one tool response per call, then the reinforcement nudge.
	reMessages := append([]*ai.Message{}, messages...)
	reMessages = append(reMessages, passOne.Message)
	for i := range results {
		r := &results[i]
		var output any
		if r.err != nil {
			output = fmt.Sprintf("Error: %v", r.err)
		} else {
			output = r.records
		}
		reMessages = append(reMessages, ai.NewMessage(ai.RoleTool, nil,
			ai.NewToolResponsePart(&ai.ToolResponse{
				Name:   r.req.Name,
				Ref:    r.req.Ref,
				Output: output,
			})))
	}
	reMessages = append(reMessages, ai.NewMessage(ai.RoleSystem, nil, ai.NewTextPart(reinforcementMessage)))

	var (
		current string
		emitErr error
	)
	streamCb := func(_ context.Context, chunk *ai.ModelResponseChunk) error {
		for _, part := range chunk.Content {
			switch part.Kind {
			case ai.PartReasoning:
				if err := emit(Event{Type: EventThinking, Text: part.Text}); err != nil {
					emitErr = err
					return err
				}
			case ai.PartText:
				if part.Text == "" {
					continue
				}
				if err := emit(Event{Type: EventContent, Text: part.Text}); err != nil {
					emitErr = err
					return err
				}
				current += part.Text
			}
		}
		return nil
	}

	resp, err := s.llm.Generate(ctx,
		ai.WithSystem(BuildSystemPrompt(s.fmtCtx, renderAvailableExercises(byTool))),
		ai.WithMessages(reMessages...),
		ai.WithStreaming(streamCb),
	)
	if emitErr != nil {
		return current, emitErr
	}
	if err != nil {
		return current, fmt.Errorf("pass 2: %w", err)
	}
	if current == "" {
		current = resp.Text()
		if current != "" {
			if err := emit(Event{Type: EventContent, Text: current}); err != nil {
				return "", err
			}
		}
	}
	return current, nil
}

// lastTracked scans recent workouts newest-first for the heaviest set
// of the given exercise.
func (s *Session) lastTracked(exerciseID uuid.UUID) *LastTracked {
	if s.bundle == nil {
		return nil
	}
	var best *LastTracked
	for _, w := range s.bundle.RecentWorkouts {
		for _, e := range w.Exercises {
			if e.ExerciseDefinitionID == nil || *e.ExerciseDefinitionID != exerciseID {
				continue
			}
			for _, set := range e.Sets {
				if set.WeightKg == nil || set.Reps == nil {
					continue
				}
				if best == nil || *set.WeightKg > best.WeightKg {
					best = &LastTracked{
						WeightKg: *set.WeightKg,
						Reps:     *set.Reps,
						Date:     w.CreatedAt.Format("2006-01-02"),
					}
				}
			}
		}
	}
	return best
}

// buildMessages converts persisted history plus the new user text into
// the model transcript.
func (s *Session) buildMessages(text string) []*ai.Message {
	messages := make([]*ai.Message, 0, len(s.history)+1)
	for _, m := range s.history {
		switch m.Role {
		case model.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}
	return append(messages, ai.NewUserMessage(ai.NewTextPart(text)))
}

// commitTurn appends the exchanged pair to in-memory history and
// persists it. Persistence failures are logged, not fatal: the session
// keeps its in-memory view.
func (s *Session) commitTurn(userMsg model.Message, reply string) {
	assistantMsg := model.Message{
		ID:             uuid.New(),
		ConversationID: s.conversationID,
		Role:           model.RoleAssistant,
		Content:        reply,
	}
	s.history = append(s.history, userMsg, assistantMsg)

	persistCtx, cancel := context.WithTimeout(s.bgCtx, 10*time.Second)
	defer cancel()
	if err := s.storage.AppendMessages(persistCtx, s.scope, s.conversationID, []model.Message{userMsg, assistantMsg}); err != nil {
		s.logger.Warn("persisting turn", "error", err)
	}
}

// maybeStartCompaction spawns the background memory extraction when
// history is strictly above the threshold. At exactly the threshold
// nothing happens.
func (s *Session) maybeStartCompaction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compaction != compactionIdle || len(s.history) <= s.threshold {
		return
	}
	if s.memory == nil || s.bundle == nil {
		// No bundle means nowhere to persist notes yet.
		return
	}

	s.compaction = compactionExtracting
	s.cutoff = len(s.history) - s.keep
	older := make([]model.Message, s.cutoff)
	copy(older, s.history[:s.cutoff])
	bundleID := s.bundle.ID

	if s.wg != nil {
		s.wg.Add(1)
	}
	go func() {
		if s.wg != nil {
			defer s.wg.Done()
		}
		err := s.memory.AppendSessionMemory(s.bgCtx, s.userID, older, bundleID)

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.logger.Warn("history compaction failed", "error", err)
			s.compaction = compactionIdle // retried after the next turn
			return
		}
		s.compaction = compactionReady
		s.logger.Info("history compacted", "summarized", len(older))
	}()
}

// applyCompactionIfReady truncates history and refreshes the prompt
// context at the start of the next turn after compaction finished, so
// the fresh summary notes flow into the system prompt.
func (s *Session) applyCompactionIfReady(ctx context.Context) {
	s.mu.Lock()
	if s.compaction != compactionReady {
		s.mu.Unlock()
		return
	}
	cutoff := s.cutoff
	s.compaction = compactionIdle
	s.cutoff = 0
	s.mu.Unlock()

	if cutoff > 0 && cutoff <= len(s.history) {
		s.history = append([]model.Message{}, s.history[cutoff:]...)
	}

	bundle, err := s.storage.LatestCompleteBundle(ctx, s.scope, s.userID)
	if err != nil {
		s.logger.Warn("reloading bundle after compaction", "error", err)
		return
	}
	profile, err := s.storage.Profile(ctx, s.scope, s.userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("reloading profile after compaction", "error", err)
	}
	if bundle != nil {
		s.bundle = bundle
	}
	s.fmtCtx = FormatContext(s.bundle, profile, s.now())
	s.trace.Record("compaction_applied", fmt.Sprintf("dropped=%d", cutoff), 0)
}
