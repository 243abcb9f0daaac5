package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/valentinpelus/posturewatch/internal/capture"
	"github.com/valentinpelus/posturewatch/pkg/types"
)

// Mode is what the session is currently doing. Uploading and Live are
// mutually exclusive; entering one always leaves the other.
type Mode int

const (
	Idle Mode = iota
	Uploading
	Live
)

func (m Mode) String() string {
	switch m {
	case Uploading:
		return "uploading"
	case Live:
		return "live"
	default:
		return "idle"
	}
}

// MarshalText renders the mode name in JSON
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ValidationError is reported before any analysis call is attempted
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	// ErrNoClip is returned when analysis is requested with nothing staged
	ErrNoClip = &ValidationError{Message: "Please select a video file to upload."}

	// ErrBusy is returned while a clip analysis is running
	ErrBusy = errors.New("a clip analysis is already in progress")
)

// ClipPreview describes the staged clip
type ClipPreview struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int       `json:"size"`
	ContentType string    `json:"content_type"`
	StagedAt    time.Time `json:"staged_at"`
}

func (p ClipPreview) String() string {
	return fmt.Sprintf("%s (%d bytes)", p.Name, p.Size)
}

// Snapshot is the state shown to the user
type Snapshot struct {
	SessionID string                `json:"session_id"`
	Mode      Mode                  `json:"mode"`
	Capture   string                `json:"capture"`
	Busy      bool                  `json:"busy"`
	Clip      *ClipPreview          `json:"clip,omitempty"`
	Error     string                `json:"error,omitempty"`
	Feedback  []types.FeedbackEntry `json:"feedback"`
	Stats     capture.Stats         `json:"capture_stats"`
}
