// Package capture runs the camera pipeline: it pulls frames, detects the
// primary face, verifies it against the enrolled faces when in recognition
// mode and publishes annotated frames and results to a single consumer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-auth/internal/logging"
	"github.com/kozaktomas/face-auth/internal/matcher"
)

const (
	DefaultCooldown      = 500 * time.Millisecond
	DefaultFrameInterval = 30 * time.Millisecond
	defaultEventBuffer   = 32

	statusDuration      = 3 * time.Second
	statusErrorDuration = 5 * time.Second
)

// Options tunes the loop. Zero values fall back to defaults.
type Options struct {
	Cooldown      time.Duration
	FrameInterval time.Duration
	Mode          ModeFunc
	Now           func() time.Time
	EventBuffer   int
}

// Loop owns the camera device while it runs.
type Loop struct {
	source   FrameSource
	detector Detector
	faces    FaceIndex
	matcher  matcher.Matcher
	logger   *zap.Logger

	frameInterval time.Duration
	mode          ModeFunc
	now           func() time.Time

	events chan Event
	frames chan Frame

	// Single-slot handoff of the latest detected face.
	lastFace atomic.Pointer[image.RGBA]

	// Touched only by the loop goroutine; runs are sequential.
	cooldown *Cooldown
	seq      uint64

	ctlMu sync.Mutex // serializes Start, Stop and Shutdown

	mu      sync.Mutex
	running bool
	closed  bool
	dev     Device
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoop creates a stopped loop. Call Start to open the device.
func NewLoop(source FrameSource, detector Detector, faces FaceIndex, m matcher.Matcher, logger *zap.Logger, opts Options) *Loop {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.Mode == nil {
		opts.Mode = func() Mode { return ModeRegistration }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}

	return &Loop{
		source:        source,
		detector:      detector,
		faces:         faces,
		matcher:       m,
		logger:        logging.Component(logger, "capture"),
		frameInterval: opts.FrameInterval,
		mode:          opts.Mode,
		now:           opts.Now,
		events:        make(chan Event, opts.EventBuffer),
		frames:        make(chan Frame, 1),
		cooldown:      NewCooldown(opts.Cooldown),
	}
}

// Events returns the event stream. It is closed by Shutdown.
func (l *Loop) Events() <-chan Event {
	return l.events
}

// Frames returns the annotated frame stream. Only the newest frame is kept
// when the consumer falls behind. It is closed by Shutdown.
func (l *Loop) Frames() <-chan Frame {
	return l.frames
}

// LastFace returns the most recent detected face, or nil if the latest frame
// had none.
func (l *Loop) LastFace() image.Image {
	if face := l.lastFace.Load(); face != nil {
		return face
	}
	return nil
}

// Running reports whether the capture goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start opens the device and starts the capture goroutine. It is a no-op
// when the loop is already running.
func (l *Loop) Start() error {
	l.ctlMu.Lock()
	defer l.ctlMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.running {
		l.mu.Unlock()
		l.logger.Info("camera already running")
		return nil
	}
	prev := l.done
	l.mu.Unlock()

	// A goroutine that ended on device loss may still be returning.
	if prev != nil {
		<-prev
	}

	dev, err := l.source.Open()
	if err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		l.logger.Error("failed to open camera", zap.Error(err))
		l.emitNow(StatusMessage("❌ Camera unavailable", statusErrorDuration))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.mu.Lock()
	l.dev = dev
	l.running = true
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go l.run(ctx, dev, done)
	l.logger.Info("camera started")
	return nil
}

// Stop halts the capture goroutine, waits for it to exit and releases the
// device. Calling Stop on a stopped loop is a no-op.
func (l *Loop) Stop() {
	l.ctlMu.Lock()
	defer l.ctlMu.Unlock()
	l.stop()
}

func (l *Loop) stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		l.logger.Info("camera already stopped or not initialized")
		return
	}
	l.running = false
	dev, cancel, done := l.dev, l.cancel, l.done
	l.dev = nil
	l.mu.Unlock()

	cancel()
	// After the join no read can be in flight.
	<-done

	if err := dev.Close(); err != nil {
		l.logger.Warn("failed to release camera", zap.Error(err))
	}
	l.lastFace.Store(nil)
	l.emitNow(CameraStopped())
	l.logger.Info("camera stopped")
}

// Shutdown stops the loop for good and closes the output channels.
func (l *Loop) Shutdown() {
	l.ctlMu.Lock()
	defer l.ctlMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.stop()

	l.mu.Lock()
	done := l.done
	l.closed = true
	l.mu.Unlock()
	if done != nil {
		<-done
	}

	close(l.events)
	close(l.frames)
	l.logger.Info("capture loop shut down")
}

func (l *Loop) run(ctx context.Context, dev Device, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}
		if !l.runOnce(ctx, dev) {
			if ctx.Err() == nil {
				l.deviceLost(dev)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.frameInterval):
		}
	}
}

// deviceLost ends a run whose device stopped producing frames. There is no
// retry; a new Start is required.
func (l *Loop) deviceLost(dev Device) {
	l.mu.Lock()
	if !l.running || l.dev != dev {
		// Stop already owns the release.
		l.mu.Unlock()
		return
	}
	l.running = false
	l.dev = nil
	l.mu.Unlock()

	if err := dev.Close(); err != nil {
		l.logger.Warn("failed to release camera", zap.Error(err))
	}
	l.lastFace.Store(nil)
	l.logger.Warn("camera stopped delivering frames")
	l.emitNow(StatusMessage("❌ Camera disconnected", statusErrorDuration))
	l.emitNow(CameraStopped())
}

// runOnce processes a single frame. It returns false when the device has no
// frame to give.
func (l *Loop) runOnce(ctx context.Context, dev Device) bool {
	frame, ok := dev.Read()
	if !ok || frame == nil {
		return false
	}
	if ctx.Err() != nil {
		return true
	}

	faces := 0
	var face *image.RGBA
	if rect, found := l.detector.Detect(frame); found {
		face = cropFace(frame, rect)
		if face != nil {
			faces = 1
			drawFaceMarker(frame, rect)
		}
	}
	l.lastFace.Store(face)

	if face != nil {
		now := l.now()
		if l.mode() == ModeRecognition && l.cooldown.Ready(now) {
			l.attemptVerification(ctx, face)
			l.cooldown.Mark(now)
		}
	}

	drawFaceCount(frame, faces)
	l.seq++
	l.publishFrame(Frame{Image: frame, Faces: faces, Seq: l.seq, At: l.now()})
	return true
}

// attemptVerification compares face with every enrolled identity in name
// order and emits the first match, or a negative result.
func (l *Loop) attemptVerification(ctx context.Context, face *image.RGBA) {
	logger := l.logger.With(zap.String(logging.FieldAttempt, uuid.NewString()))

	scratch, err := l.faces.WriteScratch(face)
	if err != nil {
		logger.Warn("failed to write scratch face", zap.Error(err))
		l.emit(ctx, RecognitionResult("", false))
		return
	}
	defer func() {
		if err := l.faces.RemoveScratch(); err != nil {
			logger.Warn("failed to remove scratch face", zap.Error(err))
		}
	}()

	identities := l.faces.Snapshot()
	logger.Debug("verifying face", zap.Int("identities", len(identities)))

	for _, id := range identities {
		if ctx.Err() != nil {
			return
		}
		result, err := l.matcher.Verify(ctx, scratch, id.Path)
		if err != nil {
			logger.Warn("comparison failed, treating as non-match",
				zap.String(logging.FieldIdentity, id.Name), zap.Error(err))
			continue
		}
		logger.Debug("compared face",
			zap.String(logging.FieldIdentity, id.Name),
			zap.Bool("verified", result.Verified),
			zap.Float64("distance", result.Distance))
		if result.Verified {
			logger.Info("face recognized", zap.String(logging.FieldIdentity, id.Name))
			l.emit(ctx, RecognitionResult(id.Name, true))
			return
		}
	}

	logger.Info("no matching face")
	l.emit(ctx, RecognitionResult("", false))
}

// emit delivers an event from the loop goroutine, giving up when the run is
// cancelled so a consumer calling Stop never deadlocks.
func (l *Loop) emit(ctx context.Context, ev Event) {
	select {
	case l.events <- ev:
	case <-ctx.Done():
		l.logger.Debug("event dropped, capture stopping", zap.String("event", string(ev.Kind)))
	}
}

// emitNow delivers an event without blocking.
func (l *Loop) emitNow(ev Event) {
	select {
	case l.events <- ev:
	default:
		l.logger.Warn("event buffer full, dropping event", zap.String("event", string(ev.Kind)))
	}
}

// publishFrame replaces any frame the consumer has not picked up yet.
func (l *Loop) publishFrame(f Frame) {
	select {
	case l.frames <- f:
		return
	default:
	}
	select {
	case <-l.frames:
	default:
	}
	select {
	case l.frames <- f:
	default:
	}
}
