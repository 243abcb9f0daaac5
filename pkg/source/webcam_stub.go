//go:build !gocv

package source

import (
	"context"
	"fmt"
)

// WebcamConfig configures a local camera
type WebcamConfig struct {
	Device      int
	Width       int
	Height      int
	JPEGQuality int
}

// WebcamSource is only functional in builds with the gocv tag
type WebcamSource struct{}

// NewWebcamSource fails: this binary was built without OpenCV support
func NewWebcamSource(cfg WebcamConfig) (*WebcamSource, error) {
	return nil, fmt.Errorf("webcam source requires a build with -tags gocv (device %d)", cfg.Device)
}

// Name returns the source name
func (s *WebcamSource) Name() string {
	return "webcam (unavailable)"
}

// Capture always reports ErrUnavailable
func (s *WebcamSource) Capture(ctx context.Context) (Frame, error) {
	return Frame{}, ErrUnavailable
}

// Close is a no-op
func (s *WebcamSource) Close() error {
	return nil
}
