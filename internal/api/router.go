package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/telemetry-core/internal/auth"
)

// healthCheckTimeout bounds each dependency probe in GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metricsOn {
		r.Handle(s.metricsAt, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/realtime", func(r chi.Router) {
				r.Use(requirePermission(auth.PermRealtimeSubscribe))
				r.Post("/subscribe", s.handleRealtimeSubscribe)
				r.Post("/unsubscribe", s.handleRealtimeUnsubscribe)
				r.Post("/unsubscribe-all", s.handleRealtimeUnsubscribeAll)
				r.Get("/subscriptions", s.handleRealtimeSubscriptions)
				r.With(requirePermission(auth.PermSystemAdmin)).Get("/active", s.handleRealtimeActive)
			})

			r.Route("/live", func(r chi.Router) {
				r.Use(requirePermission(auth.PermLiveRead))
				r.Get("/sse", s.handleLiveSSE)
				r.Get("/ws", s.handleLiveWebSocket)
				r.Get("/my-connections", s.handleLiveMyConnections)
				r.With(requirePermission(auth.PermSystemAdmin)).Get("/stats", s.handleLiveStats)
			})

			r.Route("/queues", func(r chi.Router) {
				r.Use(requirePermission(auth.PermQueueManage))
				r.Get("/", s.handleQueueStats)
				r.Get("/{lane}/failed", s.handleQueueFailed)
				r.Post("/{lane}/failed/{id}/retry", s.handleQueueRetry)
			})

			r.Route("/rules", func(r chi.Router) {
				r.Use(requirePermission(auth.PermRuleManage))
				r.Post("/", s.handleCreateRule)
				r.Get("/device/{deviceId}", s.handleListDeviceRules)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRule)
					r.Patch("/", s.handleUpdateRule)
					r.Delete("/", s.handleDeleteRule)
				})
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Use(requirePermission(auth.PermNotificationRead))
				r.Get("/", s.handleListNotifications)
				r.Get("/unread-count", s.handleUnreadCount)
				r.Post("/read-all", s.handleMarkAllRead)
				r.Post("/{id}/read", s.handleMarkRead)
			})

			r.With(requirePermission(auth.PermHistoryRead)).
				Get("/history/{kind}/{deviceId}", s.handleHistory)

			r.With(requirePermission(auth.PermSystemAdmin)).
				Get("/system/metrics", s.handleSystemMetrics)
		})
	})

	return r
}

// handleHealth reports the state of each dependency. Any failing
// dependency turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := true

	probe := func(name string, fn func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	if s.db != nil {
		probe("database", s.db.PingContext)
	}
	if s.queue != nil {
		probe("queue_store", s.queue.Ping)
	}
	for name, b := range s.brokers {
		probe(name, b.HealthCheck)
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
