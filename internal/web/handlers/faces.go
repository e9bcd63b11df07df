package handlers

import (
	"errors"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-auth/internal/facestore"
	"github.com/kozaktomas/face-auth/internal/logging"
)

// FaceLister lists enrolled identities.
type FaceLister interface {
	Snapshot() []facestore.Identity
}

// FacesHandler handles enrollment endpoints
type FacesHandler struct {
	session Session
	faces   FaceLister
	logger  *zap.Logger
}

// NewFacesHandler creates a new faces handler
func NewFacesHandler(s Session, faces FaceLister, logger *zap.Logger) *FacesHandler {
	return &FacesHandler{
		session: s,
		faces:   faces,
		logger:  logging.Component(logger, "http"),
	}
}

// FaceResponse represents an enrolled identity in API responses
type FaceResponse struct {
	Name string `json:"name"`
	File string `json:"file"`
}

// RegisterRequest represents a face registration request
type RegisterRequest struct {
	Name string `json:"name"`
}

func faceToResponse(id facestore.Identity) FaceResponse {
	return FaceResponse{Name: id.Name, File: filepath.Base(id.Path)}
}

// List returns enrolled identities in name order
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities := h.faces.Snapshot()
	response := make([]FaceResponse, len(identities))
	for i := range identities {
		response[i] = faceToResponse(identities[i])
	}
	respondJSON(w, http.StatusOK, response)
}

// Register enrolls the face currently in front of the camera
func (h *FacesHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.session.RegisterFace(req.Name)
	if err != nil {
		var verr *facestore.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.logger.Error("failed to register face",
			zap.String(logging.FieldIdentity, sanitizeForLog(req.Name)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to store face")
		return
	}

	respondJSON(w, http.StatusCreated, faceToResponse(id))
}
