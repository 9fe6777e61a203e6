package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/stayspot-realtime/internal/connection"
	"github.com/rickgao/stayspot-realtime/internal/inbox"
	"github.com/rickgao/stayspot-realtime/internal/version"
	"github.com/rickgao/stayspot-realtime/internal/writer"
)

// statusSource is the read side of the connection manager.
type statusSource interface {
	Status() connection.Status
	Heartbeat() (connection.HeartbeatSample, bool)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// serverDeps holds what the status endpoints report on. db and journal are
// nil when the journal is disabled.
type serverDeps struct {
	instance string
	conn     statusSource
	rooms    func() []string
	tail     *inbox.Ring[tailEvent]
	db       pinger
	journal  *writer.Journal
	logger   *slog.Logger
}

// createHealthHandler creates the HTTP handler for health and status checks.
func createHealthHandler(d serverDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		s := d.conn.Status()
		health.Components["socket"] = s.State
		switch s.State {
		case connection.StateConnected:
		case connection.StateFailed:
			health.Status = "unhealthy"
		default:
			health.Status = "degraded"
		}

		if d.db != nil {
			if err := d.db.Ping(ctx); err != nil {
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
				health.Components["journal_db"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["journal_db"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			d.logger.Debug("failed to write health response", "error", err)
		}
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			Instance  string                      `json:"instance"`
			Version   string                      `json:"version"`
			Status    connection.Status           `json:"status"`
			Heartbeat *connection.HeartbeatSample `json:"heartbeat,omitempty"`
			Rooms     []string                    `json:"rooms"`
			Tail      *inbox.Stats                `json:"tail,omitempty"`
			Journal   *writer.Metrics             `json:"journal,omitempty"`
		}{
			Instance: d.instance,
			Version:  version.String(),
			Status:   d.conn.Status(),
			Rooms:    d.rooms(),
		}

		if hb, ok := d.conn.Heartbeat(); ok {
			resp.Heartbeat = &hb
		}
		if d.tail != nil {
			stats := d.tail.Stats()
			resp.Tail = &stats
		}
		if d.journal != nil {
			metrics := d.journal.Stats()
			resp.Journal = &metrics
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			d.logger.Debug("failed to write status response", "error", err)
		}
	})

	return mux
}
