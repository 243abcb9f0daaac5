package analysis

import (
	"context"
	"time"

	"github.com/valentinpelus/posturewatch/pkg/source"
)

// Clip is a pre-recorded video submitted for batch analysis
type Clip struct {
	Name        string
	ContentType string
	Data        []byte
}

// FrameAnalyzer analyzes a single still
type FrameAnalyzer interface {
	// AnalyzeFrame returns the issue labels found in the frame.
	// An empty list means no problems were detected.
	AnalyzeFrame(ctx context.Context, frame source.Frame) ([]string, error)
}

// ClipAnalyzer analyzes a whole clip
type ClipAnalyzer interface {
	// AnalyzeClip returns one issue list per analyzed unit, in clip order
	AnalyzeClip(ctx context.Context, clip Clip) ([][]string, error)
}

// Client is the full Analysis Service contract used by a session
type Client interface {
	FrameAnalyzer
	ClipAnalyzer

	// Name returns the client name (for logging)
	Name() string
}

// Config holds the configuration for analysis backends
type Config struct {
	FrameBackend string // "service", "bedrock"

	// Analysis Service endpoints
	VideoURL     string
	FrameURL     string
	ClipTimeout  time.Duration
	FrameTimeout time.Duration

	// AWS Bedrock-specific
	BedrockRegion string // e.g., "us-east-1"
	BedrockModel  string // e.g., "anthropic.claude-3-5-sonnet-20241022-v2:0"
}
