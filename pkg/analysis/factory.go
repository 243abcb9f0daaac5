package analysis

import (
	"context"
	"fmt"
	"log"

	"github.com/valentinpelus/posturewatch/pkg/source"
)

// Factory creates analysis clients based on configuration
type Factory struct {
	config Config
}

// NewFactory creates a new client factory
func NewFactory(config Config) *Factory {
	return &Factory{config: config}
}

// CreateClient creates the configured client. Clips always go to the
// Analysis Service; frames go to the configured frame backend.
func (f *Factory) CreateClient(ctx context.Context) (Client, error) {
	if f.config.VideoURL == "" {
		return nil, fmt.Errorf("video analysis URL not configured")
	}

	service := NewServiceClient(f.config.VideoURL, f.config.FrameURL, f.config.ClipTimeout, f.config.FrameTimeout)

	switch f.config.FrameBackend {
	case "service", "":
		if f.config.FrameURL == "" {
			return nil, fmt.Errorf("frame analysis URL not configured")
		}
		log.Printf("Using Analysis Service for clips (%s) and frames (%s)", f.config.VideoURL, f.config.FrameURL)
		return service, nil

	case "bedrock", "aws":
		bedrock, err := NewBedrockAnalyzer(ctx, f.config.BedrockRegion, f.config.BedrockModel, f.config.FrameTimeout)
		if err != nil {
			return nil, err
		}
		log.Printf("Using Analysis Service for clips and %s for frames in %s", bedrock.Name(), bedrock.region)
		return &splitClient{frames: bedrock, clips: service, name: "Analysis Service + " + bedrock.Name()}, nil

	default:
		return nil, fmt.Errorf("unknown frame backend: %s (supported: service, bedrock)", f.config.FrameBackend)
	}
}

// splitClient routes frames and clips to different backends
type splitClient struct {
	frames FrameAnalyzer
	clips  ClipAnalyzer
	name   string
}

func (c *splitClient) Name() string {
	return c.name
}

func (c *splitClient) AnalyzeFrame(ctx context.Context, frame source.Frame) ([]string, error) {
	return c.frames.AnalyzeFrame(ctx, frame)
}

func (c *splitClient) AnalyzeClip(ctx context.Context, clip Clip) ([][]string, error) {
	return c.clips.AnalyzeClip(ctx, clip)
}
