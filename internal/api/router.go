package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{name}", s.handleGetDevice)
		})

		r.Get("/hats", s.handleListHats)
		r.Get("/owners", s.handleListOwners)
		r.Get("/audit", s.handleListAudit)
	})

	return r
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// handleHealth reports "ok" when the control socket is listening and every
// configured dependency answers; otherwise "degraded" with a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Checks:        make(map[string]string),
	}

	mark := func(name string, err error) {
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			return
		}
		resp.Checks[name] = "ok"
	}

	if s.control != nil {
		if s.control.Stats().Listening {
			mark("control_socket", nil)
		} else {
			mark("control_socket", errNotListening)
		}
	}
	if s.db != nil {
		mark("database", s.db.HealthCheck(r.Context()))
	}
	if s.mqtt != nil {
		mark("mqtt", s.mqtt.HealthCheck(r.Context()))
	}
	if s.influx != nil {
		mark("influxdb", s.influx.HealthCheck(r.Context()))
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
