// Package camera adapts an OpenCV video device and Haar cascade to the
// capture pipeline.
package camera

import (
	"fmt"
	"image"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"

	"github.com/kozaktomas/face-auth/internal/capture"
	"github.com/kozaktomas/face-auth/internal/logging"
)

// Source opens a video capture device by index ("0") or by path or URL.
type Source struct {
	device string
	logger *zap.Logger
}

func NewSource(device string, logger *zap.Logger) *Source {
	return &Source{device: device, logger: logging.Component(logger, "camera")}
}

// Open acquires the device.
func (s *Source) Open() (capture.Device, error) {
	var id any = s.device
	if n, err := strconv.Atoi(s.device); err == nil {
		id = n
	}

	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", capture.ErrDeviceUnavailable, s.device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", capture.ErrDeviceUnavailable, s.device)
	}

	s.logger.Info("opened video device", zap.String("device", s.device))
	return &device{vc: vc, mat: gocv.NewMat(), logger: s.logger}, nil
}

type device struct {
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	logger *zap.Logger
	once   sync.Once
}

// Read grabs the next frame. Only the capture goroutine reads, and Close is
// called after that goroutine has exited.
func (d *device) Read() (*image.RGBA, bool) {
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, false
	}
	img, err := d.mat.ToImage()
	if err != nil {
		d.logger.Warn("failed to convert frame", zap.Error(err))
		return nil, false
	}
	return toRGBA(img), true
}

func (d *device) Close() error {
	var err error
	d.once.Do(func() {
		d.mat.Close()
		err = d.vc.Close()
	})
	return err
}

// toRGBA returns img as an *image.RGBA with a zero origin, copying when needed.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
