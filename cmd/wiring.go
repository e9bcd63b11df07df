package cmd

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/kozaktomas/face-auth/internal/camera"
	"github.com/kozaktomas/face-auth/internal/config"
	"github.com/kozaktomas/face-auth/internal/facestore"
	"github.com/kozaktomas/face-auth/internal/matcher"
)

// embeddingTimeout bounds a single request to the embedding service.
const embeddingTimeout = 30 * time.Second

// newMatcher builds the comparison backend selected by the configuration.
func newMatcher(cfg *config.Config, logger *zap.Logger) matcher.Matcher {
	switch cfg.Matcher.ResolvedBackend() {
	case config.BackendEmbedding:
		logger.Info("using embedding matcher",
			zap.String("url", cfg.Matcher.EmbeddingURL),
			zap.Float64("threshold", cfg.Matcher.DistanceThreshold))
		client := matcher.NewEmbeddingClient(cfg.Matcher.EmbeddingURL, &http.Client{Timeout: embeddingTimeout})
		return matcher.NewEmbeddingMatcher(client, cfg.Matcher.DistanceThreshold)
	default:
		logger.Info("using perceptual hash matcher", zap.Int("threshold", cfg.Matcher.HashThreshold))
		return matcher.NewHashMatcher(cfg.Matcher.HashThreshold)
	}
}

// openStore creates the face store and loads its index. A scan failure is
// logged and leaves the store empty.
func openStore(cfg *config.Config, logger *zap.Logger) *facestore.Store {
	store := facestore.New(cfg.Faces.Dir, logger)
	if _, err := store.Load(); err != nil {
		logger.Warn("failed to load enrolled faces, starting empty", zap.Error(err))
	}
	return store
}

// loadImage decodes a JPEG or PNG file.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", path, err)
	}
	return img, nil
}

// detectFace returns the largest face in img, cropped.
func detectFace(cfg *config.Config, img image.Image, logger *zap.Logger) (image.Image, error) {
	detector, err := camera.NewDetector(cfg.Detector, logger)
	if err != nil {
		return nil, err
	}
	defer detector.Close()

	rect, ok := detector.Detect(img)
	if !ok {
		return nil, &facestore.ValidationError{Field: "face", Reason: "no valid face detected"}
	}
	face := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(face, face.Bounds(), img, rect.Min, draw.Src)
	return face, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
