package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valentinpelus/posturewatch/internal/capture"
	"github.com/valentinpelus/posturewatch/internal/config"
	"github.com/valentinpelus/posturewatch/internal/handler"
	"github.com/valentinpelus/posturewatch/internal/server"
	"github.com/valentinpelus/posturewatch/internal/session"
	"github.com/valentinpelus/posturewatch/internal/stream"
	"github.com/valentinpelus/posturewatch/pkg/analysis"
	"github.com/valentinpelus/posturewatch/pkg/archive"
	"github.com/valentinpelus/posturewatch/pkg/slack"
	"github.com/valentinpelus/posturewatch/pkg/source"
)

// shutdownTimeout bounds how long in-flight work may take on exit
const shutdownTimeout = 15 * time.Second

// App holds all application dependencies
type App struct {
	Config        *config.Config
	Source        source.Source
	Analysis      analysis.Client
	Loop          *capture.Loop
	Controller    *session.Controller
	Hub           *stream.Hub
	Archive       *archive.Store
	ArchiveWriter *archive.Writer
	SlackClient   *slack.Client
	Server        *server.Server
}

// New initializes a new application with all dependencies
func New(ctx context.Context) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	src, err := source.New(source.Config{
		Kind:         cfg.Source,
		SnapshotURL:  cfg.SourceURL,
		Directory:    cfg.SourceDir,
		WebcamDevice: cfg.WebcamDevice,
		ReadTimeout:  cfg.CaptureInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture source: %w", err)
	}

	client, err := analysis.NewFactory(analysis.Config{
		FrameBackend:  cfg.FrameBackend,
		VideoURL:      cfg.VideoURL,
		FrameURL:      cfg.FrameURL,
		ClipTimeout:   cfg.ClipTimeout,
		FrameTimeout:  cfg.FrameTimeout,
		BedrockRegion: cfg.BedrockRegion,
		BedrockModel:  cfg.BedrockModel,
	}).CreateClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analysis client: %w", err)
	}

	a := &App{
		Config:      cfg,
		Source:      src,
		Analysis:    client,
		Hub:         stream.NewHub(),
		SlackClient: slack.NewClient(cfg.SlackWebhookURL),
	}

	opts := session.Options{
		LiveCapacity: cfg.LiveHistoryCapacity,
		Publisher:    a.Hub,
	}

	// Archive is optional; the app keeps working without it
	if cfg.ArchiveEnabled {
		store, err := archive.NewStore(cfg.ArchiveDatabaseURL)
		if err != nil {
			log.Printf("WARNING: Failed to initialize archive: %v", err)
			log.Printf("Continuing without archive support")
		} else if err := store.Migrate(ctx); err != nil {
			log.Printf("WARNING: Failed to migrate archive schema: %v", err)
			store.Close()
		} else {
			a.Archive = store
			a.ArchiveWriter = archive.NewWriter(store, 0)
			opts.Recorder = a.ArchiveWriter
			log.Printf("✅ Archive enabled")
		}
	}

	if a.SlackClient.IsConfigured() {
		opts.Notifier = a.SlackClient
	}

	a.Loop = capture.New(src, client, capture.Options{Interval: cfg.CaptureInterval})
	a.Controller = session.NewController(client, a.Loop, opts)

	var stats handler.StatsSource
	if a.Archive != nil {
		stats = a.Archive
	}
	maxUpload := int64(cfg.MaxUploadMB) << 20
	a.Server = server.New(cfg.Port, cfg.AuthToken,
		handler.NewSessionHandler(a.Controller, stats, maxUpload),
		a.Hub,
		cfg.ClipTimeout+time.Minute,
	)

	return a, nil
}

// Run serves until ctx is cancelled, then shuts everything down
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Hub.Run(gctx)
	})

	if a.ArchiveWriter != nil {
		g.Go(func() error {
			return a.ArchiveWriter.Run(gctx)
		})
	}

	g.Go(a.Server.Start)

	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.Controller.Shutdown(shutdownTimeout); err != nil {
			log.Printf("Capture shutdown: %v", err)
		}
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.close()
	return err
}

func (a *App) close() {
	if closer, ok := a.Source.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Printf("Failed to close capture source: %v", err)
		}
	}
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			log.Printf("Failed to close archive: %v", err)
		}
	}
}

// LogStartupInfo logs application startup information
func (a *App) LogStartupInfo() {
	log.Printf("Starting posturewatch on port %s", a.Config.Port)
	log.Printf("Analysis client: %s", a.Analysis.Name())
	log.Printf("Capture source: %s every %s (live history %d)", a.Source.Name(), a.Config.CaptureInterval, a.Config.LiveHistoryCapacity)

	if a.Config.AuthToken != "" {
		log.Printf("API authentication: enabled (Bearer token required)")
	} else {
		log.Printf("API authentication: disabled (WARNING: anyone can drive the session)")
	}

	if a.Archive != nil {
		log.Printf("Archive: enabled")
	} else {
		log.Printf("Archive: disabled")
	}

	if a.SlackClient.IsConfigured() {
		log.Printf("Slack clip summaries: enabled")
	} else {
		log.Printf("Slack clip summaries: disabled")
	}
}
