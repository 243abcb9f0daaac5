package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrUnavailable is returned when the device has no frame ready yet
// (not opened, no permission, transient read failure). Callers skip the
// sample instead of treating it as a failure.
var ErrUnavailable = errors.New("no frame available")

// Frame is a single still taken from a live source
type Frame struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// DataURL renders the frame as a base64 data URL
func (f Frame) DataURL() string {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// Source produces still snapshots from a live capture device.
//
// Capture must return promptly: when nothing is ready it returns
// ErrUnavailable rather than blocking.
type Source interface {
	Capture(ctx context.Context) (Frame, error)

	// Name returns the source name (for logging)
	Name() string
}

// Config selects and configures a source
type Config struct {
	Kind         string // "snapshot", "directory", "webcam"
	SnapshotURL  string
	Directory    string
	WebcamDevice int
	ReadTimeout  time.Duration
	JPEGQuality  int
	FrameWidth   int
	FrameHeight  int
}

// New creates the configured source
func New(cfg Config) (Source, error) {
	switch cfg.Kind {
	case "snapshot", "":
		if cfg.SnapshotURL == "" {
			return nil, fmt.Errorf("snapshot URL not configured")
		}
		log.Printf("Using snapshot source at %s", cfg.SnapshotURL)
		return NewSnapshotSource(cfg.SnapshotURL, cfg.ReadTimeout), nil

	case "directory", "dir":
		if cfg.Directory == "" {
			return nil, fmt.Errorf("source directory not configured")
		}
		log.Printf("Using directory source at %s", cfg.Directory)
		return NewDirectorySource(cfg.Directory)

	case "webcam", "camera":
		log.Printf("Using webcam source on device %d", cfg.WebcamDevice)
		webcam, err := NewWebcamSource(WebcamConfig{
			Device:      cfg.WebcamDevice,
			Width:       cfg.FrameWidth,
			Height:      cfg.FrameHeight,
			JPEGQuality: cfg.JPEGQuality,
		})
		if err != nil {
			return nil, err
		}
		return webcam, nil

	default:
		return nil, fmt.Errorf("unknown source: %s (supported: snapshot, directory, webcam)", cfg.Kind)
	}
}
