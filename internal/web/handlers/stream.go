package handlers

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-auth/internal/capture"
	"github.com/kozaktomas/face-auth/internal/constants"
	"github.com/kozaktomas/face-auth/internal/logging"
)

// StreamHandler serves the annotated camera preview
type StreamHandler struct {
	session      Session
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(s Session, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		session:      s,
		logger:       logging.Component(logger, "http"),
		pollInterval: constants.StreamPollInterval,
	}
}

func encodeFrame(f *capture.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: constants.StreamJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding frame %d: %w", f.Seq, err)
	}
	return buf.Bytes(), nil
}

// Frame returns the latest annotated frame as a JPEG
func (h *StreamHandler) Frame(w http.ResponseWriter, r *http.Request) {
	f := h.session.LatestFrame()
	if f == nil || f.Image == nil {
		respondError(w, http.StatusNotFound, "no frame available")
		return
	}

	data, err := encodeFrame(f)
	if err != nil {
		h.logger.Error("failed to encode frame", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to encode frame")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// MJPEG streams frames as multipart/x-mixed-replace until the client
// disconnects. Frames are sent only when a newer one is available.
func (h *StreamHandler) MJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(constants.MJPEGBoundary); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start stream")
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+constants.MJPEGBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		if f := h.session.LatestFrame(); f != nil && f.Image != nil && f.Seq != lastSeq {
			if err := writeFramePart(mw, f); err != nil {
				h.logger.Debug("preview stream ended", zap.Error(err))
				return
			}
			flusher.Flush()
			lastSeq = f.Seq
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeFramePart(mw *multipart.Writer, f *capture.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":   {"image/jpeg"},
		"Content-Length": {strconv.Itoa(len(data))},
	})
	if err != nil {
		return fmt.Errorf("creating part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
