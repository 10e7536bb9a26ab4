package fanout

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServeSSE(t *testing.T) {
	m := newTestManager()
	conn := m.Connect("alice", []string{"proj-a"}, TransportSSE)
	m.BroadcastRealtime("proj-a", "INV01", "inverter", map[string]any{"v": 1})
	// Removing the connection closes the outbox after the queued frames.
	m.Disconnect(conn.ID())

	rec := httptest.NewRecorder()
	if err := m.ServeSSE(context.Background(), rec, conn); err != nil {
		t.Fatalf("ServeSSE() error = %v", err)
	}

	h := rec.Header()
	for key, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	} {
		if got := h.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: connected\ndata: {") {
		t.Errorf("stream does not start with the preamble: %q", body)
	}
	if !strings.Contains(body, "event: realtime-data\ndata: {\"projectId\":\"proj-a\",\"deviceId\":\"INV01\"") {
		t.Errorf("realtime frame missing: %q", body)
	}
	if strings.Count(body, "\n\n") != 2 {
		t.Errorf("want 2 frames, got %q", body)
	}
}

func TestServeSSEStopsOnContextDone(t *testing.T) {
	m := newTestManager()
	conn := m.Connect("alice", nil, TransportSSE)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	if err := m.ServeSSE(ctx, rec, conn); err != nil {
		t.Fatalf("ServeSSE() error = %v", err)
	}
	if m.ConnectionCount() != 0 {
		t.Error("connection not removed when the client went away")
	}
}
