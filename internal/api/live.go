package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/telemetry-core/internal/fanout"
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// liveProjects resolves the caller's projects for a new live connection.
// It writes the error response and returns false when none are available.
func (s *Server) liveProjects(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	p := principalFrom(r.Context())
	projects, err := s.projects.AccessibleProjectIDs(r.Context(), p.UserID)
	if err != nil {
		s.logger.Error("loading accessible projects failed", "user_id", p.UserID, "error", err)
		writeInternalError(w, "failed to load projects")
		return nil, false
	}
	if len(projects) == 0 {
		writeForbidden(w, "no accessible projects")
		return nil, false
	}
	return projects, true
}

// handleLiveSSE streams live events as Server-Sent Events. It blocks
// for the life of the stream.
func (s *Server) handleLiveSSE(w http.ResponseWriter, r *http.Request) {
	projects, ok := s.liveProjects(w, r)
	if !ok {
		return
	}
	p := principalFrom(r.Context())

	conn := s.live.Connect(p.UserID, projects, fanout.TransportSSE)
	if err := s.live.ServeSSE(r.Context(), w, conn); err != nil {
		s.logger.Debug("live stream ended", "connection_id", conn.ID(), "error", err)
	}
}

// handleLiveWebSocket upgrades the request and streams live events as
// WebSocket text frames.
func (s *Server) handleLiveWebSocket(w http.ResponseWriter, r *http.Request) {
	projects, ok := s.liveProjects(w, r)
	if !ok {
		return
	}
	p := principalFrom(r.Context())

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := s.live.Connect(p.UserID, projects, fanout.TransportWebSocket)
	s.live.ServeWebSocket(ws, conn, s.liveOpts)
}

func (s *Server) handleLiveMyConnections(w http.ResponseWriter, r *http.Request) {
	conns := s.live.UserConnections(principalFrom(r.Context()).UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": conns,
		"count":       len(conns),
	})
}

func (s *Server) handleLiveStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.live.Stats())
}
