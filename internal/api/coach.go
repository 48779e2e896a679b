package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/repwise/repwise/internal/coach"
	"github.com/repwise/repwise/internal/memory"
)

// clientMessage is an inbound websocket frame.
type clientMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// serverMessage is an outbound websocket frame.
type serverMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Auth happens upstream; the API itself is origin-agnostic.
	CheckOrigin: func(*http.Request) bool { return true },
}

type coachHandler struct {
	logger    *slog.Logger
	store     coach.Storage
	llm       coach.LLM
	tools     *coach.Tools
	toolRefs  []ai.ToolRef
	extractor *memory.Extractor
	traces    *coach.TraceRegistry

	timeout   int // heartbeat timeout, seconds
	threshold int
	keep      int
	bgCtx     context.Context
	wg        *sync.WaitGroup
}

// serve upgrades the connection and runs the session loop. One
// goroutine per connection; turns serialize on the read loop, which is
// the ordering guarantee ProcessMessage requires.
func (h *coachHandler) serve(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.PathValue("conversation_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_conversation_id", "conversation id must be a UUID", h.logger)
		return
	}
	userID, err := uuid.Parse(r.PathValue("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id", "user id must be a UUID", h.logger)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := h.logger.With("conversation_id", conversationID, "user_id", userID)

	sessionCfg := coach.SessionConfig{
		LLM:                 h.llm,
		Storage:             h.store,
		Tools:               h.tools,
		Logger:              logger,
		ToolRefs:            h.toolRefs,
		CompactionThreshold: h.threshold,
		CompactionKeep:      h.keep,
		BackgroundCtx:       h.bgCtx,
		WG:                  h.wg,
	}
	if h.extractor != nil {
		sessionCfg.Memory = h.extractor
	}
	session, err := coach.NewSession(conversationID, userID, sessionCfg)
	if err != nil {
		logger.Error("creating session", "error", err)
		h.closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}

	h.traces.Register(conversationID, session.Trace())
	defer h.traces.Deregister(conversationID)

	// The connection context cancels in-flight turns on teardown so the
	// session can commit partial replies.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := session.Initialize(ctx); err != nil {
		logger.Error("initializing session", "error", err)
		h.closeWith(conn, websocket.CloseInternalServerErr, "initialization failed")
		return
	}

	// Memory extraction fires when the conversation ends, however the
	// connection went away.
	defer h.extractOnClose(logger, userID, conversationID)

	if err := h.send(conn, serverMessage{Type: "connection_status", Data: "connected"}); err != nil {
		return
	}

	heartbeat := time.Duration(h.timeout) * time.Second
	for {
		_ = conn.SetReadDeadline(time.Now().Add(heartbeat))
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				logger.Info("client closed connection")
			case errors.Is(err, context.Canceled):
			default:
				if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
					logger.Info("heartbeat timeout, closing")
					h.closeWith(conn, websocket.CloseGoingAway, "heartbeat timeout")
				} else {
					logger.Warn("websocket read failed", "error", err)
				}
			}
			return
		}

		switch msg.Type {
		case "heartbeat":
			if err := h.send(conn, serverMessage{Type: "heartbeat_ack", Data: msg.Timestamp}); err != nil {
				return
			}
		case "message":
			if err := h.processTurn(ctx, conn, session, msg.Message); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("turn failed", "error", err)
			}
		default:
			if err := h.send(conn, serverMessage{Type: "error", Data: map[string]string{
				"message": "unknown message type",
			}}); err != nil {
				return
			}
		}
	}
}

// processTurn streams one session turn onto the websocket.
func (h *coachHandler) processTurn(ctx context.Context, conn *websocket.Conn, session *coach.Session, text string) error {
	return session.ProcessMessage(ctx, text, func(e coach.Event) error {
		switch e.Type {
		case coach.EventThinking:
			return h.send(conn, serverMessage{Type: "thinking", Data: e.Text})
		case coach.EventContent:
			return h.send(conn, serverMessage{Type: "content", Data: e.Text})
		case coach.EventComplete:
			return h.send(conn, serverMessage{Type: "complete", Data: map[string]int{"length": e.Length}})
		case coach.EventError:
			return h.send(conn, serverMessage{Type: "error", Data: map[string]string{"message": e.Text}})
		default:
			return nil
		}
	})
}

func (h *coachHandler) send(conn *websocket.Conn, msg serverMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *coachHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// extractOnClose runs post-conversation memory extraction detached
// from the connection lifetime.
func (h *coachHandler) extractOnClose(logger *slog.Logger, userID, conversationID uuid.UUID) {
	if h.extractor == nil {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(h.bgCtx, 2*time.Minute)
		defer cancel()
		if err := h.extractor.Extract(ctx, userID, conversationID); err != nil {
			logger.Warn("memory extraction failed", "error", err)
		}
	}()
}
