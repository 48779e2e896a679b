package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/repwise/repwise/internal/testutil"
)

// dialCoach connects to the coach websocket and consumes the initial
// connection_status frame.
func dialCoach(t *testing.T, ts *httptest.Server, conversationID, userID uuid.UUID) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/llm/coach/" + conversationID.String() + "/" + userID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	var first serverMessage
	if err := readFrame(t, conn, &first); err != nil {
		t.Fatalf("reading connection_status: %v", err)
	}
	if first.Type != "connection_status" {
		t.Fatalf("first frame type = %q, want %q", first.Type, "connection_status")
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, v *serverMessage) error {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn.ReadJSON(v)
}

func sendFrame(t *testing.T, conn *websocket.Conn, msg clientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

func TestCoachWebSocketTurn(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	mock.AddResponse("bench", "Bench is looking strong. Keep the arch tight.")
	env := newServerEnv(t, &apiStorage{}, mock)

	ts := httptest.NewServer(env.server)
	defer ts.Close()

	conn := dialCoach(t, ts, uuid.New(), uuid.New())

	sendFrame(t, conn, clientMessage{Type: "message", Message: "How is my bench going?"})

	var content strings.Builder
	var sawComplete bool
	for !sawComplete {
		var frame serverMessage
		if err := readFrame(t, conn, &frame); err != nil {
			t.Fatalf("reading turn frames: %v", err)
		}
		switch frame.Type {
		case "content":
			s, _ := frame.Data.(string)
			content.WriteString(s)
		case "complete":
			sawComplete = true
		case "error":
			t.Fatalf("unexpected error frame: %v", frame.Data)
		}
	}
	if got := content.String(); !strings.Contains(got, "Bench is looking strong") {
		t.Errorf("streamed content = %q, want bench reply", got)
	}
}

func TestCoachWebSocketHeartbeat(t *testing.T) {
	env := newServerEnv(t, &apiStorage{}, testutil.NewMockLLM("ok"))

	ts := httptest.NewServer(env.server)
	defer ts.Close()

	conn := dialCoach(t, ts, uuid.New(), uuid.New())

	sent := time.Now().UnixMilli()
	sendFrame(t, conn, clientMessage{Type: "heartbeat", Timestamp: sent})

	var ack serverMessage
	if err := readFrame(t, conn, &ack); err != nil {
		t.Fatalf("reading heartbeat_ack: %v", err)
	}
	if ack.Type != "heartbeat_ack" {
		t.Fatalf("frame type = %q, want %q", ack.Type, "heartbeat_ack")
	}
	ts64, ok := ack.Data.(float64)
	if !ok || int64(ts64) != sent {
		t.Errorf("ack timestamp = %v, want %d", ack.Data, sent)
	}
}

func TestCoachWebSocketUnknownType(t *testing.T) {
	env := newServerEnv(t, &apiStorage{}, testutil.NewMockLLM("ok"))

	ts := httptest.NewServer(env.server)
	defer ts.Close()

	conn := dialCoach(t, ts, uuid.New(), uuid.New())

	sendFrame(t, conn, clientMessage{Type: "bogus"})

	var frame serverMessage
	if err := readFrame(t, conn, &frame); err != nil {
		t.Fatalf("reading error frame: %v", err)
	}
	if frame.Type != "error" {
		t.Fatalf("frame type = %q, want %q", frame.Type, "error")
	}
}

func TestCoachWebSocketTracesLiveSession(t *testing.T) {
	env := newServerEnv(t, &apiStorage{}, testutil.NewMockLLM("ok"))

	ts := httptest.NewServer(env.server)
	defer ts.Close()

	conversationID := uuid.New()
	conn := dialCoach(t, ts, conversationID, uuid.New())

	// The session registers its trace under the conversation id while
	// the connection is open.
	resp, err := http.Get(ts.URL + "/api/debug/sessions/" + conversationID.String() + "/trace")
	if err != nil {
		t.Fatalf("fetching trace: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trace status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		SessionID uuid.UUID         `json:"session_id"`
		Entries   []json.RawMessage `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding trace: %v", err)
	}
	if body.SessionID != conversationID {
		t.Errorf("session_id = %s, want %s", body.SessionID, conversationID)
	}
	if len(body.Entries) == 0 {
		t.Error("live session should have at least the initialize entry")
	}

	// A clean close deregisters the trace.
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/api/debug/sessions/" + conversationID.String() + "/trace")
		if err != nil {
			t.Fatalf("fetching trace after close: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("trace still registered after close")
}
