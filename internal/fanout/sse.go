package fanout

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ServeSSE streams conn's events to w as Server-Sent Events until the
// connection is removed or ctx ends (the client went away). The
// connection is always removed before ServeSSE returns.
func (m *Manager) ServeSSE(ctx context.Context, w http.ResponseWriter, conn *Connection) error {
	defer m.Disconnect(conn.ID())

	rc := http.NewResponseController(w)
	// Live streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{}) //nolint:errcheck // unsupported on some writers

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return fmt.Errorf("flushing stream headers: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-conn.Frames():
			if !ok {
				return nil
			}
			if err := writeSSEFrame(w, frame); err != nil {
				return err
			}
			if err := rc.Flush(); err != nil {
				return fmt.Errorf("flushing event: %w", err)
			}
		}
	}
}

// writeSSEFrame writes one event. Frame data is compact JSON and never
// contains a newline.
func writeSSEFrame(w http.ResponseWriter, f Frame) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, f.Data); err != nil {
		return fmt.Errorf("writing event %s: %w", f.Event, err)
	}
	return nil
}
