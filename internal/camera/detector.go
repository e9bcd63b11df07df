package camera

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/kozaktomas/face-auth/internal/config"
	"github.com/kozaktomas/face-auth/internal/logging"
)

var cascadeDirs = []string{
	"/usr/local/share/opencv4/haarcascades",
	"/usr/share/opencv4/haarcascades",
	"/opt/homebrew/share/opencv4/haarcascades",
}

// Detector finds the largest frontal face using a Haar cascade.
type Detector struct {
	mu           sync.Mutex
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
}

// NewDetector loads the cascade from cfg.CascadePath. When that fails the
// same file name is tried in the usual OpenCV install locations.
func NewDetector(cfg config.DetectorConfig, logger *zap.Logger) (*Detector, error) {
	logger = logging.Component(logger, "detector")

	classifier := gocv.NewCascadeClassifier()
	candidates := []string{cfg.CascadePath}
	for _, dir := range cascadeDirs {
		candidates = append(candidates, filepath.Join(dir, filepath.Base(cfg.CascadePath)))
	}

	loaded := ""
	for _, path := range candidates {
		if classifier.Load(path) {
			loaded = path
			break
		}
	}
	if loaded == "" {
		classifier.Close()
		return nil, fmt.Errorf("failed to load face cascade classifier from %s or alternative paths", cfg.CascadePath)
	}
	logger.Info("face detector initialized",
		zap.String(logging.FieldPath, loaded),
		zap.Int("min_size", cfg.MinSize))

	return &Detector{
		classifier:   classifier,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		minSize:      image.Pt(cfg.MinSize, cfg.MinSize),
	}, nil
}

// Detect returns the largest face in frame, if any.
func (d *Detector) Detect(frame image.Image) (image.Rectangle, bool) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return image.Rectangle{}, false
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(gray, d.scaleFactor, d.minNeighbors, 0, d.minSize, image.Point{})
	d.mu.Unlock()

	r, ok := largestRect(rects)
	if !ok {
		return image.Rectangle{}, false
	}
	return r.Add(frame.Bounds().Min), true
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}

func largestRect(rects []image.Rectangle) (image.Rectangle, bool) {
	if len(rects) == 0 {
		return image.Rectangle{}, false
	}
	best := rects[0]
	for _, r := range rects[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	return best, true
}
