package handlers

import (
	"encoding/json"
	"image"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kozaktomas/face-auth/internal/capture"
	"github.com/kozaktomas/face-auth/internal/facestore"
	"github.com/kozaktomas/face-auth/internal/session"
)

// fakeSession records commands and returns canned results
type fakeSession struct {
	mu sync.Mutex

	snapshot    session.Snapshot
	backErr     error
	startErr    error
	registerErr error
	frame       *capture.Frame
	updates     chan session.Update

	modes        []capture.Mode
	stops        int
	registered   []string
	unsubscribed int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		snapshot: session.Snapshot{State: "browsing", Mode: "registration", CameraRunning: true},
		updates:  make(chan session.Update, 8),
	}
}

func (s *fakeSession) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *fakeSession) SetMode(m capture.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes = append(s.modes, m)
	s.snapshot.Mode = m.String()
}

func (s *fakeSession) Back() error { return s.backErr }

func (s *fakeSession) StartCamera() error { return s.startErr }

func (s *fakeSession) StopCamera() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.snapshot.CameraRunning = false
}

func (s *fakeSession) RegisterFace(name string) (facestore.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registerErr != nil {
		return facestore.Identity{}, s.registerErr
	}
	if _, err := facestore.NormalizeName(name); err != nil {
		return facestore.Identity{}, err
	}
	s.registered = append(s.registered, name)
	return facestore.Identity{Name: name, Path: filepath.Join("faces", name+".jpg")}, nil
}

func (s *fakeSession) LatestFrame() *capture.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *fakeSession) Subscribe() *session.Subscription {
	return &session.Subscription{ID: "test-listener", C: s.updates}
}

func (s *fakeSession) Unsubscribe(*session.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed++
}

type staticFaces []facestore.Identity

func (f staticFaces) Snapshot() []facestore.Identity { return f }

var errPermission = &facestore.StorageError{Op: "write", Path: "faces/alice.jpg", Err: os.ErrPermission}

func testFrame(seq uint64) *capture.Frame {
	return &capture.Frame{Image: image.NewRGBA(image.Rect(0, 0, 32, 24)), Seq: seq}
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
