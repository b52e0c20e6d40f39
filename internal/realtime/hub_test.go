package realtime

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubReconnectAndOrdering(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := uuid.New().String()

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventGraphProgress, Data: map[string]any{"progress": 15}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventGraphCompleted, Data: map[string]any{"progress": 100}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventGraphProgress {
		t.Fatalf("first event: want=%s got=%s", SSEEventGraphProgress, got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventGraphCompleted {
		t.Fatalf("second event: want=%s got=%s", SSEEventGraphCompleted, got.Event)
	}

	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("subscribers after close: want=0 got=%d", n)
	}

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventGraphFailed})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventGraphFailed {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventGraphFailed, got.Event)
	}
}

func TestSSEHubIgnoresOtherChannels(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "a")
	hub.AddChannel(client, "  ")

	hub.Broadcast(SSEMessage{Channel: "b", Event: SSEEventGraphProgress})
	hub.Broadcast(SSEMessage{Event: SSEEventGraphProgress})
	select {
	case msg := <-client.Outbound:
		t.Fatalf("unexpected message: %+v", msg)
	default:
	}

	hub.RemoveChannel(client, "a")
	if n := hub.Subscribers("a"); n != 0 {
		t.Fatalf("subscribers: want=0 got=%d", n)
	}
}

func TestWriteEventFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	err := WriteEvent(rec, SSEMessage{Channel: "c", Event: SSEEventGraphProgress, Data: map[string]any{"step": "analyzeInput"}})
	if err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: GraphProgress\ndata: {") || !strings.HasSuffix(body, "}\n\n") {
		t.Fatalf("framing: got %q", body)
	}
	if !strings.Contains(body, `"step":"analyzeInput"`) {
		t.Fatalf("payload: got %q", body)
	}
}

func TestStreamStopsAfterLastMessage(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "run")
	hub.Broadcast(SSEMessage{Channel: "run", Event: SSEEventGraphProgress})
	hub.Broadcast(SSEMessage{Channel: "run", Event: SSEEventGraphCompleted})
	hub.Broadcast(SSEMessage{Channel: "run", Event: SSEEventGraphProgress})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/stream", nil)
	hub.Stream(rec, req, client, func(m SSEMessage) bool { return m.Event == SSEEventGraphCompleted })

	body := rec.Body.String()
	if n := strings.Count(body, "event: "); n != 2 {
		t.Fatalf("events written: want=2 got=%d (%q)", n, body)
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("content type: got %q", rec.Header().Get("Content-Type"))
	}
}
