package capture

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// EventKind identifies what an Event carries.
type EventKind string

const (
	EventRecognitionResult EventKind = "recognition_result"
	EventStatusMessage     EventKind = "status_message"
	EventCameraStopped     EventKind = "camera_stopped"
)

// Event is published by the loop to its single consumer.
type Event struct {
	Kind          EventKind `json:"type"`
	Name          string    `json:"name,omitempty"`
	Authenticated bool      `json:"authenticated"`
	Message       string    `json:"message,omitempty"`
	DurationMs    int       `json:"duration_ms,omitempty"`
	Time          time.Time `json:"time"`
}

// RecognitionResult reports the outcome of one verification attempt.
func RecognitionResult(name string, authenticated bool) Event {
	return Event{Kind: EventRecognitionResult, Name: name, Authenticated: authenticated, Time: time.Now()}
}

// StatusMessage is a transient message for the display.
func StatusMessage(text string, d time.Duration) Event {
	return Event{Kind: EventStatusMessage, Message: text, DurationMs: int(d.Milliseconds()), Time: time.Now()}
}

// CameraStopped reports that the device was released.
func CameraStopped() Event {
	return Event{Kind: EventCameraStopped, Time: time.Now()}
}

// Frame is an annotated camera frame ready for display.
type Frame struct {
	Image *image.RGBA
	Faces int
	Seq   uint64
	At    time.Time
}

// Mode selects what the loop does with a detected face.
type Mode int

const (
	ModeRegistration Mode = iota
	ModeRecognition
)

func (m Mode) String() string {
	switch m {
	case ModeRecognition:
		return "recognition"
	default:
		return "registration"
	}
}

// ParseMode parses "registration" or "recognition".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "registration":
		return ModeRegistration, nil
	case "recognition":
		return ModeRecognition, nil
	default:
		return ModeRegistration, fmt.Errorf("unknown mode %q", s)
	}
}

// ModeFunc reports the current mode. It is called from the loop goroutine
// and must be safe for concurrent use.
type ModeFunc func() Mode
