package fanout

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager(Options{HeartbeatInterval: time.Hour, SendBuffer: 8})
}

// drain reads every frame currently queued on conn.
func drain(conn *Connection) []Frame {
	var frames []Frame
	for {
		select {
		case f, ok := <-conn.Frames():
			if !ok {
				return frames
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func events(frames []Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Event
	}
	return out
}

func TestConnectQueuesPreamble(t *testing.T) {
	m := newTestManager()
	conn := m.Connect("alice", []string{"proj-a"}, TransportSSE)
	defer m.Disconnect(conn.ID())

	frames := drain(conn)
	if len(frames) != 1 || frames[0].Event != EventConnected {
		t.Fatalf("frames = %v, want [connected]", events(frames))
	}
	var body map[string]any
	if err := json.Unmarshal(frames[0].Data, &body); err != nil {
		t.Fatalf("preamble is not JSON: %v", err)
	}
	if body["connectionId"] != conn.ID() {
		t.Errorf("connectionId = %v, want %s", body["connectionId"], conn.ID())
	}
	if m.ConnectionCount() != 1 || m.UserConnectionCount("alice") != 1 {
		t.Errorf("counts = %d/%d, want 1/1", m.ConnectionCount(), m.UserConnectionCount("alice"))
	}
}

func TestBroadcastRealtimeRespectsProjects(t *testing.T) {
	m := newTestManager()
	a := m.Connect("alice", []string{"proj-a"}, TransportSSE)
	b := m.Connect("bob", []string{"proj-b"}, TransportSSE)
	ab := m.Connect("carol", []string{"proj-a", "proj-b"}, TransportWebSocket)
	drain(a)
	drain(b)
	drain(ab)

	sent := m.BroadcastRealtime("proj-a", "INV01", "inverter", map[string]any{"temp": 40.0})
	if sent != 2 {
		t.Errorf("BroadcastRealtime() = %d, want 2", sent)
	}

	if got := events(drain(a)); len(got) != 1 || got[0] != EventRealtimeData {
		t.Errorf("alice got %v", got)
	}
	if got := drain(b); len(got) != 0 {
		t.Errorf("bob got %v, want nothing", events(got))
	}
	frames := drain(ab)
	if len(frames) != 1 {
		t.Fatalf("carol got %v", events(frames))
	}

	var data RealtimeData
	if err := json.Unmarshal(frames[0].Data, &data); err != nil {
		t.Fatalf("decoding realtime data: %v", err)
	}
	if data.ProjectID != "proj-a" || data.DeviceID != "INV01" || data.Payload["temp"] != 40.0 {
		t.Errorf("data = %+v", data)
	}
}

func TestSendToUser(t *testing.T) {
	m := newTestManager()
	first := m.Connect("alice", []string{"proj-a"}, TransportSSE)
	second := m.Connect("alice", []string{"proj-a"}, TransportWebSocket)
	other := m.Connect("bob", []string{"proj-a"}, TransportSSE)
	drain(first)
	drain(second)
	drain(other)

	n := Notification{ID: "n-1", Title: "Alert: Hot", Message: "temp is 60", RuleID: "r-1", CreatedAt: "2026-03-01T12:00:00Z"}
	if sent := m.SendToUser("alice", n); sent != 2 {
		t.Errorf("SendToUser() = %d, want 2", sent)
	}
	if len(drain(first)) != 1 || len(drain(second)) != 1 {
		t.Error("alice's connections did not both receive the notification")
	}
	if len(drain(other)) != 0 {
		t.Error("bob received alice's notification")
	}

	if sent := m.SendToUser("nobody", n); sent != 0 {
		t.Errorf("SendToUser(offline) = %d, want 0", sent)
	}
}

func TestBroadcastNotification(t *testing.T) {
	m := newTestManager()
	a := m.Connect("alice", nil, TransportSSE)
	b := m.Connect("bob", nil, TransportSSE)
	drain(a)
	drain(b)

	sent := m.BroadcastNotification([]string{"alice", "bob", "carol"}, Notification{ID: "n-1", Title: "t"})
	if sent != 2 {
		t.Errorf("BroadcastNotification() = %d, want 2", sent)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	m := newTestManager()
	conn := m.Connect("alice", []string{"proj-a"}, TransportSSE)

	if !m.Disconnect(conn.ID()) {
		t.Fatal("first Disconnect() = false")
	}
	if m.Disconnect(conn.ID()) {
		t.Error("second Disconnect() = true")
	}
	if m.ConnectionCount() != 0 || m.UserConnectionCount("alice") != 0 {
		t.Errorf("counts after disconnect = %d/%d", m.ConnectionCount(), m.UserConnectionCount("alice"))
	}
	if len(m.ActiveUserIDs()) != 0 {
		t.Errorf("ActiveUserIDs() = %v", m.ActiveUserIDs())
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done() not closed after disconnect")
	}
	drain(conn) // outbox must be closed, not blocking
	if _, ok := <-conn.Frames(); ok {
		t.Error("outbox still open")
	}

	if sent := m.BroadcastRealtime("proj-a", "d", "t", nil); sent != 0 {
		t.Errorf("broadcast after disconnect reached %d connections", sent)
	}
}

func TestHeartbeat(t *testing.T) {
	m := NewManager(Options{HeartbeatInterval: 10 * time.Millisecond, SendBuffer: 8})
	conn := m.Connect("alice", nil, TransportSSE)
	defer m.Disconnect(conn.ID())

	<-conn.Frames() // preamble
	select {
	case f := <-conn.Frames():
		if f.Event != EventHeartbeat {
			t.Errorf("event = %q, want heartbeat", f.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat")
	}
}

func TestFullOutboxDropsForThatConnectionOnly(t *testing.T) {
	m := NewManager(Options{HeartbeatInterval: time.Hour, SendBuffer: 2})
	slow := m.Connect("alice", []string{"p"}, TransportSSE)
	fast := m.Connect("bob", []string{"p"}, TransportSSE)
	drain(fast)

	// slow holds the preamble; one more fills it.
	for i := 0; i < 3; i++ {
		m.BroadcastRealtime("p", "d", "t", nil)
		drain(fast)
	}
	if slow.Dropped() != 2 {
		t.Errorf("slow dropped = %d, want 2", slow.Dropped())
	}
	if fast.Dropped() != 0 {
		t.Errorf("fast dropped = %d, want 0", fast.Dropped())
	}
}

func TestUpdateProjects(t *testing.T) {
	m := newTestManager()
	conn := m.Connect("alice", []string{"proj-a"}, TransportSSE)
	drain(conn)

	if !m.UpdateProjects(conn.ID(), []string{"proj-b"}) {
		t.Fatal("UpdateProjects() = false")
	}
	if m.BroadcastRealtime("proj-a", "d", "t", nil) != 0 {
		t.Error("connection still receives its old project")
	}
	if m.BroadcastRealtime("proj-b", "d", "t", nil) != 1 {
		t.Error("connection does not receive its new project")
	}
	if m.UpdateProjects("missing", nil) {
		t.Error("UpdateProjects(missing) = true")
	}
}

func TestCloseAll(t *testing.T) {
	m := newTestManager()
	a := m.Connect("alice", []string{"p"}, TransportSSE)
	b := m.Connect("bob", []string{"p"}, TransportSSE)
	drain(a)
	drain(b)

	m.CloseAll()

	for _, conn := range []*Connection{a, b} {
		frames := drain(conn)
		if len(frames) != 1 || frames[0].Event != EventShutdown {
			t.Errorf("%s got %v, want [server-shutdown]", conn.UserID(), events(frames))
		}
		if _, ok := <-conn.Frames(); ok {
			t.Errorf("%s outbox still open", conn.UserID())
		}
	}
	if m.ConnectionCount() != 0 || len(m.ActiveUserIDs()) != 0 {
		t.Error("indices not cleared")
	}
	if m.Disconnect(a.ID()) {
		t.Error("Disconnect after CloseAll removed something")
	}
}

func TestCloseAllDeliversShutdownThroughFullOutbox(t *testing.T) {
	tests := []struct {
		name       string
		buffer     int
		broadcasts int
		wantFrames []string
	}{
		{"room left", 4, 1, []string{EventRealtimeData, EventShutdown}},
		{"exactly full", 2, 2, []string{EventRealtimeData, EventShutdown}},
		{"overflowing", 3, 5, []string{EventRealtimeData, EventRealtimeData, EventShutdown}},
		{"single slot", 1, 2, []string{EventShutdown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Options{HeartbeatInterval: time.Hour, SendBuffer: tt.buffer})
			conn := m.Connect("alice", []string{"p"}, TransportSSE)
			drain(conn)
			for i := 0; i < tt.broadcasts; i++ {
				m.BroadcastRealtime("p", "d", "t", nil)
			}

			m.CloseAll()

			got := events(drain(conn))
			if len(got) != len(tt.wantFrames) {
				t.Fatalf("frames = %v, want %v", got, tt.wantFrames)
			}
			for i := range got {
				if got[i] != tt.wantFrames[i] {
					t.Errorf("frames = %v, want %v", got, tt.wantFrames)
					break
				}
			}
			if _, ok := <-conn.Frames(); ok {
				t.Error("outbox still open")
			}
		})
	}
}

func TestStats(t *testing.T) {
	m := newTestManager()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	m.Connect("alice", []string{"proj-b", "proj-a"}, TransportSSE)
	m.Connect("alice", nil, TransportWebSocket)
	m.Connect("bob", nil, TransportSSE)

	m.now = func() time.Time { return base.Add(5 * time.Second) }
	stats := m.Stats()
	if stats.TotalConnections != 3 || stats.TotalUsers != 2 {
		t.Errorf("totals = %d/%d, want 3/2", stats.TotalConnections, stats.TotalUsers)
	}
	for _, c := range stats.Connections {
		if c.DurationMS != 5000 {
			t.Errorf("duration = %d, want 5000", c.DurationMS)
		}
	}

	mine := m.UserConnections("alice")
	if len(mine) != 2 {
		t.Fatalf("UserConnections() = %d, want 2", len(mine))
	}
	if got := m.ActiveUserIDs(); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("ActiveUserIDs() = %v", got)
	}
}

func TestConcurrentConnectBroadcastDisconnect(t *testing.T) {
	m := newTestManager()
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			conn := m.Connect("u", []string{"p"}, TransportSSE)
			m.BroadcastRealtime("p", "d", "t", nil)
			m.SendToUser("u", Notification{ID: "n"})
			m.Disconnect(conn.ID())
			m.Disconnect(conn.ID())
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	if m.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount() = %d, want 0", m.ConnectionCount())
	}
}
