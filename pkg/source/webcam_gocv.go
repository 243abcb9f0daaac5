//go:build gocv

package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// WebcamConfig configures a local camera
type WebcamConfig struct {
	Device      int
	Width       int
	Height      int
	JPEGQuality int
}

// WebcamSource grabs stills from a local camera through OpenCV
type WebcamSource struct {
	cfg     WebcamConfig
	capture *gocv.VideoCapture
	img     gocv.Mat
	mu      sync.Mutex
}

// NewWebcamSource opens the camera device
func NewWebcamSource(cfg WebcamConfig) (*WebcamSource, error) {
	webcam, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture device %d: %w", cfg.Device, err)
	}
	if cfg.Width > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 90
	}

	return &WebcamSource{
		cfg:     cfg,
		capture: webcam,
		img:     gocv.NewMat(),
	}, nil
}

// Name returns the source name
func (s *WebcamSource) Name() string {
	return fmt.Sprintf("webcam (device %d)", s.cfg.Device)
}

// Capture reads one frame and encodes it as JPEG. A camera that is still
// warming up yields empty frames, which are reported as ErrUnavailable.
func (s *WebcamSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, ErrUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return Frame{}, ErrUnavailable
	}
	if ok := s.capture.Read(&s.img); !ok || s.img.Empty() {
		return Frame{}, ErrUnavailable
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.img, []int{gocv.IMWriteJpegQuality, s.cfg.JPEGQuality})
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return Frame{
		Data:        data,
		ContentType: "image/jpeg",
		CapturedAt:  time.Now(),
	}, nil
}

// Close releases the camera
func (s *WebcamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}
	s.img.Close()
	err := s.capture.Close()
	s.capture = nil
	return err
}
