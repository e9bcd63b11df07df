// Package constants provides shared constants used by the HTTP surface.
package constants

import "time"

// Request constants
const (
	// MaxRequestBodySize caps JSON command bodies
	MaxRequestBodySize = 1 << 20
)

// Streaming constants
const (
	// StreamPollInterval is how often the MJPEG stream checks for a new frame
	StreamPollInterval = 30 * time.Millisecond

	// StreamJPEGQuality is the JPEG quality of preview frames
	StreamJPEGQuality = 80

	// SSEKeepAliveInterval is the interval between SSE comment pings
	SSEKeepAliveInterval = 15 * time.Second

	// MJPEGBoundary separates parts of the multipart preview stream
	MJPEGBoundary = "frame"
)
