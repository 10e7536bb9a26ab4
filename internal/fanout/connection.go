package fanout

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Frame is one encoded event waiting to be written to a transport.
type Frame struct {
	Event string
	Data  []byte
}

// Connection is one live stream held open by a user.
type Connection struct {
	id          string
	userID      string
	transport   string
	connectedAt time.Time

	projectsMu sync.RWMutex
	projects   map[string]struct{}

	// mu guards closed and the send channel close.
	mu     sync.Mutex
	closed bool
	send   chan Frame
	done   chan struct{}

	dropped atomic.Int64
}

func newConnection(id, userID, transport string, projectIDs []string, buffer int, now time.Time) *Connection {
	return &Connection{
		id:          id,
		userID:      userID,
		transport:   transport,
		connectedAt: now,
		projects:    projectSet(projectIDs),
		send:        make(chan Frame, buffer),
		done:        make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// UserID returns the owning user.
func (c *Connection) UserID() string { return c.userID }

// Frames returns the outbox. It is closed when the connection is removed.
func (c *Connection) Frames() <-chan Frame { return c.send }

// Done is closed when the connection is removed from its manager.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Dropped returns how many events were discarded because the outbox was full.
func (c *Connection) Dropped() int64 { return c.dropped.Load() }

// ProjectIDs returns the authorised projects, sorted.
func (c *Connection) ProjectIDs() []string {
	c.projectsMu.RLock()
	defer c.projectsMu.RUnlock()
	ids := make([]string, 0, len(c.projects))
	for id := range c.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Connection) authorized(projectID string) bool {
	c.projectsMu.RLock()
	defer c.projectsMu.RUnlock()
	_, ok := c.projects[projectID]
	return ok
}

func (c *Connection) setProjects(projectIDs []string) {
	c.projectsMu.Lock()
	c.projects = projectSet(projectIDs)
	c.projectsMu.Unlock()
}

// trySend queues f without blocking. It reports false when the
// connection is closed or its outbox is full.
func (c *Connection) trySend(f Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- f:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// finish optionally queues a last frame, then closes the outbox.
// A full outbox gives up its oldest frames to make room for last.
// Only the first call has any effect.
func (c *Connection) finish(last *Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if last != nil {
	queued:
		for {
			select {
			case c.send <- *last:
				break queued
			default:
			}
			select {
			case <-c.send:
				c.dropped.Add(1)
			default:
			}
		}
	}
	c.closed = true
	close(c.send)
	close(c.done)
	return true
}

func projectSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
