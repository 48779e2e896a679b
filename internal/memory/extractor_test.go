package memory

import (
	"context"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/llm"
	"github.com/repwise/repwise/internal/log"
	"github.com/repwise/repwise/internal/model"
	"github.com/repwise/repwise/internal/store"
	"github.com/repwise/repwise/internal/testutil"
)

type fakeStorage struct {
	messages    []model.Message
	bundle      *model.UserContextBundle
	updated     *model.AIMemory
	updatedID   uuid.UUID
	appended    []model.MemoryNote
	appendedID  uuid.UUID
	updateCalls int
	appendCalls int
}

func (f *fakeStorage) Messages(_ context.Context, _ store.Scope, _ uuid.UUID) ([]model.Message, error) {
	return f.messages, nil
}

func (f *fakeStorage) LatestCompleteBundle(_ context.Context, _ store.Scope, _ uuid.UUID) (*model.UserContextBundle, error) {
	return f.bundle, nil
}

func (f *fakeStorage) UpdateAIMemory(_ context.Context, _ store.Scope, bundleID uuid.UUID, memory *model.AIMemory) error {
	f.updateCalls++
	f.updatedID = bundleID
	f.updated = memory
	return nil
}

func (f *fakeStorage) AppendAIMemory(_ context.Context, _ store.Scope, bundleID uuid.UUID, notes []model.MemoryNote) error {
	f.appendCalls++
	f.appendedID = bundleID
	f.appended = notes
	return nil
}

func newTestExtractor(t *testing.T, mock *testutil.MockLLM, storage *fakeStorage) *Extractor {
	t.Helper()

	g := genkit.Init(context.Background())
	mock.RegisterModel(g)
	client, err := llm.New(llm.Config{
		Genkit:    g,
		Logger:    log.NewNop(),
		ModelName: "mock/test-model",
	})
	if err != nil {
		t.Fatalf("llm.New: %v", err)
	}

	e, err := New(Config{
		LLM:     client,
		Storage: storage,
		Logger:  log.NewNop(),
		Now:     func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func messages(texts ...string) []model.Message {
	out := make([]model.Message, len(texts))
	for i, txt := range texts {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		out[i] = model.Message{ID: uuid.New(), Role: role, Content: txt, SequenceNumber: i + 1}
	}
	return out
}

func TestExtractMergesAndOverwrites(t *testing.T) {
	bundleID := uuid.New()
	storage := &fakeStorage{
		messages: messages("my shoulder hurts again", "noted, we will go easy"),
		bundle: &model.UserContextBundle{
			ID: bundleID,
			AIMemory: &model.AIMemory{Notes: []model.MemoryNote{
				{Text: "Training for a 5k", Date: "2025-05-01", Category: model.NoteGoal},
			}},
		},
	}

	mock := testutil.NewMockLLM("{}")
	if err := mock.AddJSONResponse("JSON result", ExtractionResult{
		Thought: "shoulder issue reconfirmed",
		Notes: []model.MemoryNote{
			{Text: "Training for a 5k", Date: "2025-05-01", Category: model.NoteGoal},
			{Text: "Recurring shoulder pain", Date: "2025-06-15", Category: model.NoteInjury},
		},
	}); err != nil {
		t.Fatal(err)
	}

	e := newTestExtractor(t, mock, storage)
	if err := e.Extract(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if storage.updateCalls != 1 {
		t.Fatalf("UpdateAIMemory called %d times, want 1", storage.updateCalls)
	}
	if storage.updatedID != bundleID {
		t.Error("memory written to wrong bundle")
	}
	if got := len(storage.updated.Notes); got != 2 {
		t.Errorf("merged notes = %d, want 2", got)
	}
}

func TestExtractEmptyConversationIsNoop(t *testing.T) {
	storage := &fakeStorage{bundle: &model.UserContextBundle{ID: uuid.New()}}
	mock := testutil.NewMockLLM("{}")

	e := newTestExtractor(t, mock, storage)
	if err := e.Extract(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if storage.updateCalls != 0 {
		t.Error("UpdateAIMemory called for an empty conversation")
	}
	if len(mock.Calls()) != 0 {
		t.Error("LLM invoked for an empty conversation")
	}
}

func TestExtractNoBundleSkips(t *testing.T) {
	storage := &fakeStorage{messages: messages("hello", "hi")}
	mock := testutil.NewMockLLM("{}")

	e := newTestExtractor(t, mock, storage)
	if err := e.Extract(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if storage.updateCalls != 0 {
		t.Error("UpdateAIMemory called with no bundle to write to")
	}
}

func TestExtractMalformedOutputKeepsMemory(t *testing.T) {
	storage := &fakeStorage{
		messages: messages("hello", "hi"),
		bundle:   &model.UserContextBundle{ID: uuid.New()},
	}
	mock := testutil.NewMockLLM("this is not json at all")

	e := newTestExtractor(t, mock, storage)
	if err := e.Extract(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Extract should skip the cycle, got error: %v", err)
	}
	if storage.updateCalls != 0 {
		t.Error("malformed output must not overwrite existing memory")
	}
}

func TestAppendSessionMemoryForcesCategoryAndDate(t *testing.T) {
	storage := &fakeStorage{}
	mock := testutil.NewMockLLM("{}")
	if err := mock.AddJSONResponse("JSON result", ExtractionResult{
		Notes: []model.MemoryNote{
			{Text: "Discussed a push/pull split", Date: "1999-01-01", Category: model.NoteGoal},
		},
	}); err != nil {
		t.Fatal(err)
	}

	e := newTestExtractor(t, mock, storage)
	bundleID := uuid.New()
	err := e.AppendSessionMemory(context.Background(), uuid.New(), messages("let's plan", "sure"), bundleID)
	if err != nil {
		t.Fatalf("AppendSessionMemory: %v", err)
	}

	if storage.appendCalls != 1 {
		t.Fatalf("AppendAIMemory called %d times, want 1", storage.appendCalls)
	}
	if storage.appendedID != bundleID {
		t.Error("notes appended to wrong bundle")
	}
	note := storage.appended[0]
	if note.Category != model.NoteConversationSummary {
		t.Errorf("category = %q, want conversation_summary", note.Category)
	}
	if note.Date != "2025-06-15" {
		t.Errorf("date = %q, want today's date", note.Date)
	}
}

func TestAppendSessionMemoryEmptyNotesWritesNothing(t *testing.T) {
	storage := &fakeStorage{}
	mock := testutil.NewMockLLM("{}")
	if err := mock.AddJSONResponse("JSON result", ExtractionResult{Notes: []model.MemoryNote{}}); err != nil {
		t.Fatal(err)
	}

	e := newTestExtractor(t, mock, storage)
	err := e.AppendSessionMemory(context.Background(), uuid.New(), messages("small talk", "indeed"), uuid.New())
	if err != nil {
		t.Fatalf("AppendSessionMemory: %v", err)
	}
	if storage.appendCalls != 0 {
		t.Error("empty note list must not hit the store")
	}
}
