// Package facestore keeps enrolled reference faces as one image file per
// identity in a single directory.
package facestore

import (
	"errors"
	"image"
	"image/jpeg"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-auth/internal/logging"
)

const (
	// ScratchName is the reserved file used while a detected face is verified.
	// It is dot-prefixed so a directory scan never indexes it.
	ScratchName = ".verify-scratch.jpg"

	canonicalExt = ".jpg"
	jpegQuality  = 95
)

// imageExts lists the extensions recognized when scanning the directory.
var imageExts = []string{".jpg", ".jpeg", ".png"}

// Identity is an enrolled person and their reference image.
type Identity struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Store is the face directory plus its in-memory index.
type Store struct {
	dir    string
	logger *zap.Logger

	mu    sync.RWMutex
	index map[string]Identity

	// writeMu serializes enrollments so each one is followed by its own rescan.
	writeMu sync.Mutex
}

// New creates a store rooted at dir. Call Load to populate the index.
func New(dir string, logger *zap.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logging.Component(logger, "facestore"),
		index:  make(map[string]Identity),
	}
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load rescans the directory and replaces the index. A missing directory is
// created and treated as an empty store. On any scan failure the index is
// emptied (never left partial) and the error is returned.
func (s *Store) Load() (map[string]Identity, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.replace(map[string]Identity{})
		return map[string]Identity{}, &StorageError{Op: "create directory", Path: s.dir, Err: err}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.replace(map[string]Identity{})
		return map[string]Identity{}, &StorageError{Op: "scan", Path: s.dir, Err: err}
	}

	// os.ReadDir sorts by file name, so on a stem collision the later
	// extension (".jpeg" < ".jpg" < ".png") wins.
	index := make(map[string]Identity, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !slices.Contains(imageExts, strings.ToLower(ext)) {
			continue
		}
		name := stemName(entry.Name(), ext)
		if name == "" {
			continue
		}
		index[name] = Identity{Name: name, Path: filepath.Join(s.dir, entry.Name())}
		s.logger.Debug("loaded face", zap.String(logging.FieldIdentity, name), zap.String(logging.FieldPath, index[name].Path))
	}

	s.replace(index)
	s.logger.Info("face index loaded", zap.Int("count", len(index)), zap.String("dir", s.dir))

	out := make(map[string]Identity, len(index))
	for k, v := range index {
		out[k] = v
	}
	return out, nil
}

func (s *Store) replace(index map[string]Identity) {
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
}

// Enroll writes face as the reference image for name, replacing any previous
// image for the same name, and refreshes the index.
func (s *Store) Enroll(name string, face image.Image) (Identity, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Identity{}, err
	}
	if face == nil || face.Bounds().Empty() {
		return Identity{}, &ValidationError{Field: "face", Reason: "no valid face detected"}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Identity{}, &StorageError{Op: "create directory", Path: s.dir, Err: err}
	}

	path := filepath.Join(s.dir, name+canonicalExt)
	if err := writeJPEG(s.dir, path, face); err != nil {
		return Identity{}, err
	}
	s.removeSiblings(name)

	if _, err := s.Load(); err != nil {
		return Identity{}, err
	}

	s.logger.Info("registered face", zap.String(logging.FieldIdentity, name), zap.String(logging.FieldPath, path))
	return Identity{Name: name, Path: path}, nil
}

// removeSiblings deletes images of the same identity stored under another
// extension, keeping one image per identity.
func (s *Store) removeSiblings(name string) {
	for _, ext := range imageExts {
		if ext == canonicalExt {
			continue
		}
		path := filepath.Join(s.dir, name+ext)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove stale face image", zap.String(logging.FieldPath, path), zap.Error(err))
		}
	}
}

// Snapshot returns a copy of the index ordered by name. Later enrollments do
// not affect a snapshot that was already taken.
func (s *Store) Snapshot() []Identity {
	s.mu.RLock()
	out := make([]Identity, 0, len(s.index))
	for _, id := range s.index {
		out = append(out, id)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Identity) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Lookup returns the identity enrolled under name.
func (s *Store) Lookup(name string) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.index[canonicalName(name)]
	return id, ok
}

// Len returns the number of enrolled identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// ScratchPath returns the location of the verification scratch file.
func (s *Store) ScratchPath() string {
	return filepath.Join(s.dir, ScratchName)
}

// WriteScratch stores face in the scratch file and returns its path.
func (s *Store) WriteScratch(face image.Image) (string, error) {
	if face == nil || face.Bounds().Empty() {
		return "", &ValidationError{Field: "face", Reason: "empty face image"}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &StorageError{Op: "create directory", Path: s.dir, Err: err}
	}
	path := s.ScratchPath()
	if err := writeJPEG(s.dir, path, face); err != nil {
		return "", err
	}
	return path, nil
}

// RemoveScratch deletes the scratch file. A missing file is not an error.
func (s *Store) RemoveScratch() error {
	path := s.ScratchPath()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// writeJPEG encodes img into a temp file next to path and renames it into
// place, so a concurrent scan sees either the old file or the complete new one.
func writeJPEG(dir, path string, img image.Image) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*"+canonicalExt)
	if err != nil {
		return &StorageError{Op: "create", Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &StorageError{Op: "encode", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}
