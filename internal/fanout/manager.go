package fanout

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names.
const (
	EventConnected    = "connected"
	EventHeartbeat    = "heartbeat"
	EventRealtimeData = "realtime-data"
	EventNotification = "notification"
	EventShutdown     = "server-shutdown"
)

// Transport names recorded on connections.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

const (
	defaultHeartbeat  = 30 * time.Second
	defaultSendBuffer = 64
)

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Manager.
type Options struct {
	// HeartbeatInterval between heartbeat events. Defaults to 30s.
	HeartbeatInterval time.Duration

	// SendBuffer is the outbox capacity of each connection. Defaults to 64.
	SendBuffer int
}

// RealtimeData is the body of a realtime-data event.
type RealtimeData struct {
	ProjectID  string         `json:"projectId"`
	DeviceID   string         `json:"deviceId"`
	DeviceType string         `json:"deviceType"`
	Payload    map[string]any `json:"payload"`
	Timestamp  string         `json:"timestamp"`
}

// Notification is the body of a notification event.
type Notification struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	RuleID    string         `json:"ruleId"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

// ConnectionInfo describes one open connection.
type ConnectionInfo struct {
	ConnectionID string   `json:"connectionId"`
	UserID       string   `json:"userId"`
	Transport    string   `json:"transport"`
	ProjectIDs   []string `json:"projectIds"`
	ConnectedAt  string   `json:"connectedAt"`
	DurationMS   int64    `json:"duration"`
	Dropped      int64    `json:"dropped"`
}

// Stats summarises the manager's connections.
type Stats struct {
	TotalConnections int              `json:"totalConnections"`
	TotalUsers       int              `json:"totalUsers"`
	Connections      []ConnectionInfo `json:"connections"`
}

// Manager owns every live connection.
//
// All methods are safe for concurrent use. Connect and removal take the
// write lock; sends snapshot the recipients under the read lock and then
// write to outboxes without holding it.
type Manager struct {
	heartbeat  time.Duration
	sendBuffer int
	logger     Logger
	metrics    *Metrics
	now        func() time.Time

	mu     sync.RWMutex
	conns  map[string]*Connection
	byUser map[string]map[string]*Connection
}

// NewManager creates a manager.
func NewManager(opts Options) *Manager {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeat
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	return &Manager{
		heartbeat:  opts.HeartbeatInterval,
		sendBuffer: opts.SendBuffer,
		logger:     noopLogger{},
		now:        time.Now,
		conns:      make(map[string]*Connection),
		byUser:     make(map[string]map[string]*Connection),
	}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// SetMetrics attaches Prometheus metrics. Nil disables them.
func (m *Manager) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// Connect registers a connection for userID authorised for projectIDs.
// The connected preamble is already queued when Connect returns, and a
// heartbeat runs until the connection is removed.
func (m *Manager) Connect(userID string, projectIDs []string, transport string) *Connection {
	conn := newConnection(uuid.NewString(), userID, transport, projectIDs, m.sendBuffer, m.now())

	m.send(conn, EventConnected, map[string]any{
		"message":      "Live connection established",
		"connectionId": conn.id,
		"timestamp":    m.timestamp(),
	})

	m.mu.Lock()
	m.conns[conn.id] = conn
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]*Connection)
	}
	m.byUser[userID][conn.id] = conn
	total := len(m.conns)
	m.mu.Unlock()

	m.metrics.setConnections(total)
	m.logger.Info("live connection established",
		"connection_id", conn.id,
		"user_id", userID,
		"transport", transport,
		"projects", len(projectIDs),
		"total_connections", total,
	)

	go m.runHeartbeat(conn)
	return conn
}

func (m *Manager) runHeartbeat(conn *Connection) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-conn.Done():
			return
		case <-ticker.C:
			m.send(conn, EventHeartbeat, map[string]any{"timestamp": m.timestamp()})
		}
	}
}

// Disconnect removes a connection and closes its outbox. Calling it for
// an unknown or already removed connection is a no-op; the return value
// reports whether anything was removed.
func (m *Manager) Disconnect(connectionID string) bool {
	m.mu.Lock()
	conn, ok := m.conns[connectionID]
	if ok {
		m.removeLocked(conn)
	}
	total := len(m.conns)
	m.mu.Unlock()

	if !ok {
		return false
	}
	conn.finish(nil)
	m.metrics.setConnections(total)
	m.logger.Info("live connection closed",
		"connection_id", connectionID,
		"user_id", conn.userID,
		"total_connections", total,
	)
	return true
}

func (m *Manager) removeLocked(conn *Connection) {
	delete(m.conns, conn.id)
	if userConns := m.byUser[conn.userID]; userConns != nil {
		delete(userConns, conn.id)
		if len(userConns) == 0 {
			delete(m.byUser, conn.userID)
		}
	}
}

// BroadcastRealtime sends a realtime-data event to every connection
// authorised for projectID and returns how many accepted it.
func (m *Manager) BroadcastRealtime(projectID, deviceID, deviceType string, payload map[string]any) int {
	frame, ok := m.encode(EventRealtimeData, RealtimeData{
		ProjectID:  projectID,
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Payload:    payload,
		Timestamp:  m.timestamp(),
	})
	if !ok {
		return 0
	}

	m.mu.RLock()
	targets := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		if conn.authorized(projectID) {
			targets = append(targets, conn)
		}
	}
	m.mu.RUnlock()

	sent := m.deliver(targets, frame)
	if sent > 0 {
		m.logger.Debug("realtime data broadcast", "project_id", projectID, "device_id", deviceID, "recipients", sent)
	}
	return sent
}

// SendToUser sends a notification to every connection of userID. A user
// with no open connection is skipped silently; nothing is queued.
func (m *Manager) SendToUser(userID string, n Notification) int {
	frame, ok := m.encode(EventNotification, n)
	if !ok {
		return 0
	}
	return m.sendFrameToUser(userID, frame, n.ID)
}

// BroadcastNotification sends n to each listed user.
func (m *Manager) BroadcastNotification(userIDs []string, n Notification) int {
	frame, ok := m.encode(EventNotification, n)
	if !ok {
		return 0
	}
	sent := 0
	for _, userID := range userIDs {
		sent += m.sendFrameToUser(userID, frame, n.ID)
	}
	return sent
}

func (m *Manager) sendFrameToUser(userID string, frame Frame, notificationID string) int {
	m.mu.RLock()
	userConns := m.byUser[userID]
	targets := make([]*Connection, 0, len(userConns))
	for _, conn := range userConns {
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		m.logger.Debug("no live connections for user", "user_id", userID)
		return 0
	}
	sent := m.deliver(targets, frame)
	m.logger.Info("notification pushed", "user_id", userID, "notification_id", notificationID, "connections", sent)
	return sent
}

// UpdateProjects replaces a connection's authorised projects.
func (m *Manager) UpdateProjects(connectionID string, projectIDs []string) bool {
	m.mu.RLock()
	conn, ok := m.conns[connectionID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	conn.setProjects(projectIDs)
	m.logger.Info("live connection projects updated", "connection_id", connectionID, "projects", len(projectIDs))
	return true
}

// CloseAll sends server-shutdown to every connection, closes them and
// clears the indices.
func (m *Manager) CloseAll() {
	frame, _ := m.encode(EventShutdown, map[string]any{
		"message":   "Server is shutting down",
		"timestamp": m.timestamp(),
	})

	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[string]*Connection)
	m.byUser = make(map[string]map[string]*Connection)
	m.mu.Unlock()

	m.logger.Info("closing all live connections", "count", len(conns))
	for _, conn := range conns {
		if conn.finish(&frame) {
			m.metrics.recordSent(EventShutdown)
		}
	}
	m.metrics.setConnections(0)
}

// ConnectionCount returns the number of open connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// UserConnectionCount returns the number of open connections of userID.
func (m *Manager) UserConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID])
}

// ActiveUserIDs returns the users with at least one connection, sorted.
func (m *Manager) ActiveUserIDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.byUser))
	for id := range m.byUser {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// UserConnections describes the open connections of userID.
func (m *Manager) UserConnections(userID string) []ConnectionInfo {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.byUser[userID]))
	for _, conn := range m.byUser[userID] {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()
	return m.describe(conns)
}

// Stats returns a snapshot of every connection, oldest first.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	users := len(m.byUser)
	m.mu.RUnlock()

	return Stats{
		TotalConnections: len(conns),
		TotalUsers:       users,
		Connections:      m.describe(conns),
	}
}

func (m *Manager) describe(conns []*Connection) []ConnectionInfo {
	now := m.now()
	out := make([]ConnectionInfo, 0, len(conns))
	for _, conn := range conns {
		out = append(out, ConnectionInfo{
			ConnectionID: conn.id,
			UserID:       conn.userID,
			Transport:    conn.transport,
			ProjectIDs:   conn.ProjectIDs(),
			ConnectedAt:  conn.connectedAt.UTC().Format(time.RFC3339Nano),
			DurationMS:   now.Sub(conn.connectedAt).Milliseconds(),
			Dropped:      conn.Dropped(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt != out[j].ConnectedAt {
			return out[i].ConnectedAt < out[j].ConnectedAt
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

func (m *Manager) send(conn *Connection, event string, data any) bool {
	frame, ok := m.encode(event, data)
	if !ok {
		return false
	}
	return m.deliver([]*Connection{conn}, frame) == 1
}

func (m *Manager) deliver(targets []*Connection, frame Frame) int {
	sent := 0
	for _, conn := range targets {
		if conn.trySend(frame) {
			sent++
			m.metrics.recordSent(frame.Event)
			continue
		}
		m.metrics.recordDropped(frame.Event)
		m.logger.Debug("live event dropped", "connection_id", conn.id, "event", frame.Event)
	}
	return sent
}

func (m *Manager) encode(event string, data any) (Frame, bool) {
	b, err := json.Marshal(data)
	if err != nil {
		m.logger.Error("failed to encode live event", "event", event, "error", err)
		return Frame{}, false
	}
	return Frame{Event: event, Data: b}, true
}

func (m *Manager) timestamp() string {
	return m.now().UTC().Format(time.RFC3339Nano)
}
