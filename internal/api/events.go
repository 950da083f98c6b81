package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/memobackup/internal/events"
	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
)

// StreamEvent is one server-sent event on /api/events.
type StreamEvent struct {
	Type      string    `json:"type"` // connected, status, sync_completed, keepalive
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

const keepaliveInterval = 30 * time.Second

// handleEvents streams status changes and sync outcomes until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bus == nil {
		s.Error(w, r, ferrors.NewError(ferrors.CategoryRuntime, "event stream unavailable").Build())
		return
	}

	statuses, unsubStatus := events.Subscribe[events.StatusChanged](s.cfg.Bus, 16)
	defer unsubStatus()
	completions, unsubCompleted := events.Subscribe[events.SyncCompleted](s.cfg.Bus, 16)
	defer unsubCompleted()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.sendSSEEvent(w, StreamEvent{Type: "connected", Timestamp: time.Now(), Data: s.cfg.Coordinator.Status()})

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Event stream closed (client disconnect)")
			return
		case <-s.closing:
			slog.Debug("Event stream closed (server shutdown)")
			return
		case <-keepalive.C:
			s.sendSSEEvent(w, StreamEvent{Type: "keepalive", Timestamp: time.Now()})
		case evt, ok := <-statuses:
			if !ok {
				return
			}
			s.sendSSEEvent(w, StreamEvent{Type: "status", Timestamp: evt.At, Data: evt})
		case evt, ok := <-completions:
			if !ok {
				return
			}
			s.sendSSEEvent(w, StreamEvent{Type: "sync_completed", Timestamp: evt.CompletedAt, Data: evt})
		}
	}
}

func (s *Server) sendSSEEvent(w http.ResponseWriter, event StreamEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal SSE event", logfields.Error(err))
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
