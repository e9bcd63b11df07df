package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-auth/internal/constants"
	"github.com/kozaktomas/face-auth/internal/logging"
)

// EventsHandler streams session updates to the browser
type EventsHandler struct {
	session   Session
	logger    *zap.Logger
	keepAlive time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(s Session, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		session:   s,
		logger:    logging.Component(logger, "http"),
		keepAlive: constants.SSEKeepAliveInterval,
	}
}

// setupSSEConnection sets the SSE headers. On failure it writes an error
// response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// Stream sends the current session snapshot followed by every update until
// the client disconnects or the session shuts down.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	sub := h.session.Subscribe()
	defer h.session.Unsubscribe(sub)
	h.logger.Debug("event listener connected", zap.String("listener", sub.ID))

	sendSSEEvent(w, flusher, "session", h.session.Snapshot())

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keepalive\n\n")
			flusher.Flush()
		case update, ok := <-sub.C:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, update.Type, update)
		}
	}
}

// sendSSEEvent sends a Server-Sent Event.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
