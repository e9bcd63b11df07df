// Package session owns the authentication session: it consumes the capture
// loop's output, tracks the session state and mode, and turns UI commands
// into loop and face store operations.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-auth/internal/capture"
	"github.com/kozaktomas/face-auth/internal/facestore"
	"github.com/kozaktomas/face-auth/internal/logging"
)

const (
	statusDuration      = 3 * time.Second
	statusErrorDuration = 5 * time.Second

	msgNotAuthenticated = "Not authenticated to access"
)

// ErrAuthenticated is returned by StartCamera while a session is
// authenticated. Back ends the session and restarts capture.
var ErrAuthenticated = errors.New("session is authenticated")

// State is the session state.
type State int

const (
	StateBrowsing State = iota
	StateAuthenticated
)

func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "browsing"
}

// Loop is the capture loop as seen by the controller.
type Loop interface {
	Start() error
	Stop()
	Shutdown()
	Running() bool
	LastFace() image.Image
	Events() <-chan capture.Event
	Frames() <-chan capture.Frame
}

// Enroller stores reference faces.
type Enroller interface {
	Enroll(name string, face image.Image) (facestore.Identity, error)
}

// ModeSwitch holds the current capture mode. Its Get method is handed to the
// capture loop as a capture.ModeFunc.
type ModeSwitch struct {
	v atomic.Int32
}

func NewModeSwitch(m capture.Mode) *ModeSwitch {
	s := &ModeSwitch{}
	s.Set(m)
	return s
}

func (s *ModeSwitch) Get() capture.Mode  { return capture.Mode(s.v.Load()) }
func (s *ModeSwitch) Set(m capture.Mode) { s.v.Store(int32(m)) }

// Snapshot describes the session at one point in time.
type Snapshot struct {
	State         string `json:"state"`
	Mode          string `json:"mode"`
	Identity      string `json:"identity,omitempty"`
	CameraRunning bool   `json:"camera_running"`
}

// Controller is the single consumer of a capture loop.
type Controller struct {
	loop   Loop
	faces  Enroller
	mode   *ModeSwitch
	logger *zap.Logger

	updates *Broadcaster
	latest  atomic.Pointer[capture.Frame]

	// cmdMu serializes commands that start or stop the loop.
	cmdMu sync.Mutex

	mu       sync.Mutex
	state    State
	identity string
}

// New creates a controller in the browsing state.
func New(loop Loop, faces Enroller, mode *ModeSwitch, logger *zap.Logger) *Controller {
	if mode == nil {
		mode = NewModeSwitch(capture.ModeRegistration)
	}
	return &Controller{
		loop:    loop,
		faces:   faces,
		mode:    mode,
		logger:  logging.Component(logger, "session"),
		updates: NewBroadcaster(),
	}
}

// Run consumes loop events and frames until ctx is done or the loop channels
// are closed.
func (c *Controller) Run(ctx context.Context) {
	events, frames := c.loop.Events(), c.loop.Frames()
	for events != nil || frames != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleEvent(ev)
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			c.latest.Store(&f)
		}
	}
}

func (c *Controller) handleEvent(ev capture.Event) {
	switch ev.Kind {
	case capture.EventRecognitionResult:
		c.handleResult(ev)
	case capture.EventStatusMessage:
		c.updates.Send(Update{Type: UpdateStatusMessage, Message: ev.Message, Data: ev})
	case capture.EventCameraStopped:
		c.latest.Store(nil)
		c.updates.Send(Update{Type: UpdateCameraStopped, Data: ev})
		c.sendSession()
	default:
		c.logger.Warn("unknown capture event", zap.String("event", string(ev.Kind)))
	}
}

func (c *Controller) handleResult(ev capture.Event) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	if c.state == StateAuthenticated {
		c.mu.Unlock()
		c.logger.Debug("ignoring late recognition result", zap.String(logging.FieldIdentity, ev.Name))
		return
	}
	if !ev.Authenticated || ev.Name == "" {
		c.mu.Unlock()
		c.updates.Send(Update{Type: UpdateRecognitionResult, Data: ev})
		c.updates.Send(Update{
			Type:    UpdateStatusMessage,
			Message: msgNotAuthenticated,
			Data:    capture.StatusMessage(msgNotAuthenticated, statusDuration),
		})
		return
	}
	c.state = StateAuthenticated
	c.identity = ev.Name
	c.mu.Unlock()

	c.logger.Info("authenticated", zap.String(logging.FieldIdentity, ev.Name))
	c.loop.Stop()
	c.updates.Send(Update{Type: UpdateRecognitionResult, Message: "Welcome " + ev.Name, Data: ev})
	c.sendSession()
}

// Back ends an authenticated session, switches to recognition mode and
// restarts capture. It is a no-op while browsing.
func (c *Controller) Back() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	if c.state != StateAuthenticated {
		c.mu.Unlock()
		return nil
	}
	c.state = StateBrowsing
	c.identity = ""
	c.mu.Unlock()

	c.mode.Set(capture.ModeRecognition)
	err := c.loop.Start()
	c.sendSession()
	if err != nil {
		return fmt.Errorf("restarting camera: %w", err)
	}
	return nil
}

// SetMode switches between registration and recognition.
func (c *Controller) SetMode(m capture.Mode) {
	c.mode.Set(m)
	c.logger.Info("mode changed", zap.Stringer("mode", m))
	c.sendSession()
}

// StartCamera starts capture. It fails with ErrAuthenticated while a session
// is authenticated.
func (c *Controller) StartCamera() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	authenticated := c.state == StateAuthenticated
	c.mu.Unlock()
	if authenticated {
		return ErrAuthenticated
	}

	err := c.loop.Start()
	c.sendSession()
	return err
}

// StopCamera stops capture and releases the device.
func (c *Controller) StopCamera() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	c.loop.Stop()
}

// RegisterFace enrolls the most recently detected face under name. The
// outcome is also broadcast as a status message.
func (c *Controller) RegisterFace(name string) (facestore.Identity, error) {
	id, err := c.faces.Enroll(name, c.loop.LastFace())
	if err != nil {
		msg, d := registerFailure(err)
		c.logger.Warn("face registration failed", zap.Error(err))
		c.sendStatus(msg, d)
		return facestore.Identity{}, err
	}
	c.sendStatus("✅ Face registered: "+id.Name, statusDuration)
	return id, nil
}

func registerFailure(err error) (string, time.Duration) {
	var verr *facestore.ValidationError
	if errors.As(err, &verr) {
		switch {
		case verr.Field == "face":
			return "❌ No valid face detected!", statusDuration
		case verr.Reason == "please enter a name":
			return "❌ Please enter a name!", statusDuration
		default:
			return "❌ " + verr.Error(), statusDuration
		}
	}
	return "❌ Error: " + err.Error(), statusErrorDuration
}

func (c *Controller) sendStatus(text string, d time.Duration) {
	c.updates.Send(Update{Type: UpdateStatusMessage, Message: text, Data: capture.StatusMessage(text, d)})
}

func (c *Controller) sendSession() {
	snap := c.Snapshot()
	c.updates.Send(Update{Type: UpdateSessionChanged, Data: snap})
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:         c.state.String(),
		Mode:          c.mode.Get().String(),
		Identity:      c.identity,
		CameraRunning: c.loop.Running(),
	}
}

// State returns the session state and the authenticated identity, if any.
func (c *Controller) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.identity
}

// LatestFrame returns the newest annotated frame, or nil when capture is
// stopped.
func (c *Controller) LatestFrame() *capture.Frame {
	return c.latest.Load()
}

// Subscribe registers a UI listener.
func (c *Controller) Subscribe() *Subscription {
	return c.updates.Subscribe()
}

func (c *Controller) Unsubscribe(sub *Subscription) {
	c.updates.Unsubscribe(sub)
}

// Shutdown stops the loop for good and closes every listener.
func (c *Controller) Shutdown() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	c.loop.Shutdown()
	c.updates.Close()
	c.logger.Info("session shut down")
}
