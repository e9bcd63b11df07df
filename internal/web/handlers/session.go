package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-auth/internal/capture"
	"github.com/kozaktomas/face-auth/internal/facestore"
	"github.com/kozaktomas/face-auth/internal/logging"
	"github.com/kozaktomas/face-auth/internal/session"
)

// Session is the session controller as used by the HTTP handlers.
type Session interface {
	Snapshot() session.Snapshot
	SetMode(m capture.Mode)
	Back() error
	StartCamera() error
	StopCamera()
	RegisterFace(name string) (facestore.Identity, error)
	LatestFrame() *capture.Frame
	Subscribe() *session.Subscription
	Unsubscribe(sub *session.Subscription)
}

// SessionHandler handles session and camera commands
type SessionHandler struct {
	session Session
	logger  *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(s Session, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		session: s,
		logger:  logging.Component(logger, "http"),
	}
}

// SetModeRequest represents a mode change request
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// Get returns the session snapshot
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.session.Snapshot())
}

// SetMode switches between registration and recognition
func (h *SessionHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req SetModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	mode, err := capture.ParseMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.session.SetMode(mode)
	respondJSON(w, http.StatusOK, h.session.Snapshot())
}

// Back leaves the authenticated page and restarts capture in recognition mode
func (h *SessionHandler) Back(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Back(); err != nil {
		h.logger.Warn("back: camera restart failed", zap.Error(err))
		respondCameraError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.session.Snapshot())
}

// StartCamera starts capture
func (h *SessionHandler) StartCamera(w http.ResponseWriter, r *http.Request) {
	if err := h.session.StartCamera(); err != nil {
		h.logger.Warn("camera start failed", zap.Error(err))
		respondCameraError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.session.Snapshot())
}

// StopCamera stops capture and releases the device
func (h *SessionHandler) StopCamera(w http.ResponseWriter, r *http.Request) {
	h.session.StopCamera()
	respondJSON(w, http.StatusOK, h.session.Snapshot())
}

func respondCameraError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrAuthenticated):
		respondError(w, http.StatusConflict, "session is authenticated")
	case errors.Is(err, capture.ErrDeviceUnavailable), errors.Is(err, capture.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, "camera unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "failed to start camera")
	}
}
