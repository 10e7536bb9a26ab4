package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/telemetry-core/internal/device"
	"github.com/nerrad567/telemetry-core/internal/fanout"
	"github.com/nerrad567/telemetry-core/internal/notification"
	"github.com/nerrad567/telemetry-core/internal/project"
	"github.com/nerrad567/telemetry-core/internal/queue"
	"github.com/nerrad567/telemetry-core/internal/rules"
	"github.com/nerrad567/telemetry-core/internal/testutil"
	"github.com/nerrad567/telemetry-core/internal/topic"
)

type mockFinder struct {
	devices map[string]*device.Device
	err     error
}

func (m *mockFinder) FindByExternalID(_ context.Context, externalID, siteID string) (*device.Device, error) {
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.devices[siteID+"/"+externalID]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d, nil
}

type broadcast struct {
	projectID, deviceID, deviceType string
	payload                         map[string]any
}

type mockBroadcaster struct {
	mu         sync.Mutex
	broadcasts []broadcast
	pushed     map[string][]fanout.Notification
}

func (m *mockBroadcaster) BroadcastRealtime(projectID, deviceID, deviceType string, payload map[string]any) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, broadcast{projectID, deviceID, deviceType, payload})
	return 1
}

func (m *mockBroadcaster) SendToUser(userID string, n fanout.Notification) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushed == nil {
		m.pushed = make(map[string][]fanout.Notification)
	}
	m.pushed[userID] = append(m.pushed[userID], n)
	return 1
}

type mockEvaluator struct {
	mu        sync.Mutex
	triggered []rules.Triggered
	err       error
	lastObs   rules.Observation
	calls     int
}

func (m *mockEvaluator) ActiveRules(context.Context, string) ([]rules.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	active := make([]rules.Rule, 0, len(m.triggered))
	for _, t := range m.triggered {
		active = append(active, t.Rule)
	}
	return active, nil
}

func (m *mockEvaluator) EvaluateAll(_ []rules.Rule, _ map[string]any, obs rules.Observation) []rules.Triggered {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastObs = obs
	return m.triggered
}

type mockRecipients struct {
	users []string
	err   error
}

func (m *mockRecipients) Recipients(context.Context, string) ([]string, error) {
	return m.users, m.err
}

type mockNotifications struct {
	mu      sync.Mutex
	created []notification.Input
	failFor string
}

func (m *mockNotifications) Create(_ context.Context, in notification.Input) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.UserID == m.failFor {
		return nil, errors.New("insert failed")
	}
	m.created = append(m.created, in)
	return &notification.Notification{
		ID: "n-" + in.UserID, UserID: in.UserID, RuleID: in.RuleID, Title: in.Title,
		Message: in.Message, Data: in.Data, Status: notification.StatusUnread,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *mockLogger) Debug(string, ...any) {}
func (l *mockLogger) Info(string, ...any)  {}
func (l *mockLogger) Error(string, ...any) {}
func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

var receivedAt = time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC)

func realtimeJob(raw string, payload map[string]any) *queue.Job {
	d, _ := topic.Parse(raw)
	return &queue.Job{
		ID:       "job-1",
		Attempts: 1,
		Data: queue.Ingestion{
			Topic:      raw,
			Descriptor: d,
			Payload:    payload,
			ReceivedAt: receivedAt,
		},
	}
}

type fixture struct {
	finder        *mockFinder
	live          *mockBroadcaster
	evaluator     *mockEvaluator
	recipients    *mockRecipients
	notifications *mockNotifications
	logger        *mockLogger
	processor     *Processor
}

func newFixture() *fixture {
	f := &fixture{
		finder: &mockFinder{devices: map[string]*device.Device{
			"site-a/INV01": {
				ID: "dev-1", ProjectID: "proj-a", SiteID: "site-a", ExternalID: "INV01",
				Name: "Roof inverter", DeviceType: "inverter", IsOnline: true,
			},
		}},
		live:          &mockBroadcaster{},
		evaluator:     &mockEvaluator{},
		recipients:    &mockRecipients{users: []string{"alice", "bob"}},
		notifications: &mockNotifications{},
		logger:        &mockLogger{},
	}
	f.processor = NewProcessor(f.finder, f.live, f.evaluator, f.recipients, f.notifications)
	f.processor.SetLogger(f.logger)
	return f
}

const inverterTopic = "data/site-a/realtime/INV01/inverter_core/GW1"

func hotTrigger() rules.Triggered {
	return rules.Triggered{
		Rule: rules.Rule{ID: "r-1", DeviceID: "dev-1", Name: "Hot", Type: rules.TypeThreshold, Field: "battVolt"},
		Result: rules.Result{
			Triggered: true, Message: "battVolt is 60 (threshold: > 55)",
			ActualValue: 60.0, ExpectedValue: 55.0,
		},
	}
}

func TestHandleBroadcastsWithoutRules(t *testing.T) {
	f := newFixture()
	payload := map[string]any{"battVolt": 60.0}

	if err := f.processor.Handle(context.Background(), realtimeJob(inverterTopic, payload)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(f.live.broadcasts) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(f.live.broadcasts))
	}
	b := f.live.broadcasts[0]
	if b.projectID != "proj-a" || b.deviceID != "INV01" || b.deviceType != "inverter_core" {
		t.Errorf("broadcast = %+v", b)
	}
	if f.evaluator.lastObs.Online == nil || !*f.evaluator.lastObs.Online {
		t.Error("online flag not passed to evaluation")
	}
	if !f.evaluator.lastObs.At.Equal(receivedAt) {
		t.Errorf("observation time = %v, want %v", f.evaluator.lastObs.At, receivedAt)
	}
	if len(f.notifications.created) != 0 {
		t.Error("notifications created without a trigger")
	}
}

func TestHandleUnknownDevice(t *testing.T) {
	f := newFixture()

	err := f.processor.Handle(context.Background(), realtimeJob("data/site-b/realtime/INV01/inverter_core/GW1", nil))
	if err != nil {
		t.Fatalf("Handle() error = %v, want nil", err)
	}
	if len(f.live.broadcasts) != 0 || f.evaluator.calls != 0 {
		t.Error("unknown device was processed")
	}
	if len(f.logger.warns) != 1 || f.logger.warns[0] != "Device not found for realtime data" {
		t.Errorf("warnings = %v", f.logger.warns)
	}
}

func TestHandleLoadErrorsAreRetriedBeforeBroadcast(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *fixture)
	}{
		{"device lookup", func(f *fixture) { f.finder.err = errors.New("database locked") }},
		{"rule loading", func(f *fixture) { f.evaluator.err = errors.New("rules table locked") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.evaluator.triggered = []rules.Triggered{hotTrigger()}
			tt.prepare(f)
			job := realtimeJob(inverterTopic, map[string]any{"battVolt": 60.0})

			if err := f.processor.Handle(context.Background(), job); err == nil {
				t.Fatal("Handle() error = nil, want an error so the job is retried")
			}
			if len(f.live.broadcasts) != 0 {
				t.Error("broadcast before the failed load")
			}

			// The retried attempt broadcasts exactly once.
			f.finder.err = nil
			f.evaluator.err = nil
			if err := f.processor.Handle(context.Background(), job); err != nil {
				t.Fatalf("retried Handle() error = %v", err)
			}
			if len(f.live.broadcasts) != 1 {
				t.Errorf("broadcasts after retry = %d, want 1", len(f.live.broadcasts))
			}
			if len(f.notifications.created) != 2 {
				t.Errorf("created after retry = %d, want 2", len(f.notifications.created))
			}
		})
	}
}

func TestHandleCreatesNotifications(t *testing.T) {
	f := newFixture()
	f.evaluator.triggered = []rules.Triggered{hotTrigger()}

	if err := f.processor.Handle(context.Background(), realtimeJob(inverterTopic, map[string]any{"battVolt": 60.0})); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(f.notifications.created) != 2 {
		t.Fatalf("created = %d, want 2", len(f.notifications.created))
	}
	in := f.notifications.created[0]
	if in.UserID != "alice" || in.RuleID != "r-1" || in.Title != "Alert: Hot" {
		t.Errorf("input = %+v", in)
	}
	if in.Message != "battVolt is 60 (threshold: > 55)" {
		t.Errorf("message = %q", in.Message)
	}
	wantData := map[string]any{
		"ruleType":      rules.TypeThreshold,
		"field":         "battVolt",
		"deviceId":      "INV01",
		"deviceName":    "Roof inverter",
		"deviceType":    "inverter",
		"siteId":        "site-a",
		"actualValue":   60.0,
		"expectedValue": 55.0,
		"timestamp":     "2026-03-01T11:59:00Z",
	}
	for k, want := range wantData {
		if in.Data[k] != want {
			t.Errorf("data[%s] = %v, want %v", k, in.Data[k], want)
		}
	}

	for _, user := range []string{"alice", "bob"} {
		pushed := f.live.pushed[user]
		if len(pushed) != 1 || pushed[0].ID != "n-"+user || pushed[0].CreatedAt != "2026-03-01T12:00:00Z" {
			t.Errorf("pushed to %s = %+v", user, pushed)
		}
	}
}

func TestHandleDefaultMessage(t *testing.T) {
	f := newFixture()
	trig := hotTrigger()
	trig.Result.Message = ""
	f.evaluator.triggered = []rules.Triggered{trig}

	f.processor.Handle(context.Background(), realtimeJob(inverterTopic, nil)) //nolint:errcheck // asserted via mocks
	if got := f.notifications.created[0].Message; got != "Notification rule triggered" {
		t.Errorf("message = %q", got)
	}
}

func TestHandleEffectsAreIndependent(t *testing.T) {
	t.Run("notification failure for one user", func(t *testing.T) {
		f := newFixture()
		f.evaluator.triggered = []rules.Triggered{hotTrigger()}
		f.notifications.failFor = "alice"

		if err := f.processor.Handle(context.Background(), realtimeJob(inverterTopic, nil)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
		if len(f.live.broadcasts) != 1 {
			t.Error("broadcast suppressed")
		}
		if len(f.notifications.created) != 1 || f.notifications.created[0].UserID != "bob" {
			t.Errorf("created = %+v, want bob only", f.notifications.created)
		}
		if len(f.live.pushed["alice"]) != 0 {
			t.Error("failed notification was pushed")
		}
	})

	t.Run("recipient failure", func(t *testing.T) {
		f := newFixture()
		f.evaluator.triggered = []rules.Triggered{hotTrigger(), hotTrigger()}
		f.recipients.err = errors.New("projects unavailable")

		if err := f.processor.Handle(context.Background(), realtimeJob(inverterTopic, nil)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
		if len(f.notifications.created) != 0 {
			t.Error("notifications created without recipients")
		}
	})
}

// TestHandleEndToEnd wires the SQLite repositories, the rule engine and
// a fan-out manager.
func TestHandleEndToEnd(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedProject(t, db, "proj-a", "site-a", "alice", "bob")
	testutil.SeedDevice(t, db, "dev-1", "proj-a", "INV01", "inverter", true)

	ruleRepo := rules.NewSQLiteRepository(db.DB)
	value := 55.0
	if err := ruleRepo.Create(context.Background(), &rules.Rule{
		DeviceID: "dev-1", Name: "High voltage", Type: rules.TypeThreshold,
		Field: "battVolt", Operator: rules.OpGreater, Value: &value, IsActive: true,
	}); err != nil {
		t.Fatalf("creating rule: %v", err)
	}

	live := fanout.NewManager(fanout.Options{HeartbeatInterval: time.Hour})
	conn := live.Connect("bob", []string{"proj-a"}, fanout.TransportSSE)
	defer live.Disconnect(conn.ID())
	<-conn.Frames() // preamble

	notifications := notification.NewSQLiteRepository(db.DB)
	p := NewProcessor(
		device.NewRegistry(device.NewSQLiteRepository(db.DB), device.DefaultCacheTTL),
		live,
		rules.NewEngine(ruleRepo),
		project.NewSQLiteRepository(db.DB),
		notifications,
	)

	if err := p.Handle(context.Background(), realtimeJob(inverterTopic, map[string]any{"battVolt": 60.0})); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if got := testutil.CountRows(t, db, "notifications"); got != 2 {
		t.Errorf("notifications = %d, want 2", got)
	}
	var got []string
	for len(got) < 2 {
		select {
		case f := <-conn.Frames():
			got = append(got, f.Event)
		case <-time.After(time.Second):
			t.Fatalf("events = %v, want realtime-data and notification", got)
		}
	}
	if got[0] != fanout.EventRealtimeData || got[1] != fanout.EventNotification {
		t.Errorf("events = %v", got)
	}

	unread, err := notifications.ListUnread(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("ListUnread() error = %v", err)
	}
	if len(unread) != 1 || unread[0].Title != "Alert: High voltage" {
		t.Errorf("alice's unread = %+v", unread)
	}
}
