package capture

import (
	"errors"
	"image"

	"github.com/kozaktomas/face-auth/internal/facestore"
)

var (
	// ErrDeviceUnavailable is returned when the camera cannot be opened.
	ErrDeviceUnavailable = errors.New("camera device unavailable")

	// ErrClosed is returned by Start after Shutdown.
	ErrClosed = errors.New("capture loop shut down")
)

// FrameSource opens the camera device.
type FrameSource interface {
	Open() (Device, error)
}

// Device is an open camera. Read returns false when no frame is available
// (device closed or read failure). Each returned frame is owned by the caller.
type Device interface {
	Read() (*image.RGBA, bool)
	Close() error
}

// Detector locates the primary face in a frame.
type Detector interface {
	Detect(frame image.Image) (image.Rectangle, bool)
}

// FaceIndex is the part of the face store used during verification.
type FaceIndex interface {
	Snapshot() []facestore.Identity
	WriteScratch(face image.Image) (string, error)
	RemoveScratch() error
}
