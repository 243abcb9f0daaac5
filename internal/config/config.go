package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port      string `yaml:"port"`
	AuthToken string `yaml:"auth_token"`

	// Analysis Service endpoints
	VideoURL      string        `yaml:"backend_video_url"`
	FrameURL      string        `yaml:"backend_frame_url"`
	ClipTimeout   time.Duration `yaml:"clip_timeout"`
	FrameTimeout  time.Duration `yaml:"frame_timeout"`
	FrameBackend  string        `yaml:"frame_backend"` // "service" or "bedrock"
	BedrockRegion string        `yaml:"bedrock_region"`
	BedrockModel  string        `yaml:"bedrock_model"`

	// Live capture
	CaptureInterval     time.Duration `yaml:"capture_interval"`
	LiveHistoryCapacity int           `yaml:"live_history_capacity"`
	Source              string        `yaml:"source"` // "snapshot", "directory" or "webcam"
	SourceURL           string        `yaml:"source_url"`
	SourceDir           string        `yaml:"source_dir"`
	WebcamDevice        int           `yaml:"webcam_device"`

	// Archive
	ArchiveEnabled     bool   `yaml:"archive_enabled"`
	ArchiveDatabaseURL string `yaml:"archive_database_url"`

	SlackWebhookURL string `yaml:"slack_webhook_url"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
}

func defaults() *Config {
	return &Config{
		Port:                "8080",
		ClipTimeout:         10 * time.Minute,
		FrameTimeout:        10 * time.Second,
		FrameBackend:        "service",
		BedrockRegion:       "us-east-1",
		BedrockModel:        "anthropic.claude-3-5-sonnet-20241022-v2:0",
		CaptureInterval:     500 * time.Millisecond,
		LiveHistoryCapacity: 10,
		Source:              "snapshot",
		MaxUploadMB:         512,
	}
}

// LoadConfig loads configuration from the optional CONFIG_FILE and then
// from environment variables, which take precedence.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.AuthToken = getEnv("AUTH_TOKEN", cfg.AuthToken)
	cfg.VideoURL = getEnv("BACKEND_VIDEO_URL", cfg.VideoURL)
	cfg.FrameURL = getEnv("BACKEND_FRAME_URL", cfg.FrameURL)
	cfg.ClipTimeout = getEnvDuration("CLIP_TIMEOUT", cfg.ClipTimeout)
	cfg.FrameTimeout = getEnvDuration("FRAME_TIMEOUT", cfg.FrameTimeout)
	cfg.FrameBackend = getEnv("FRAME_BACKEND", cfg.FrameBackend)
	cfg.BedrockRegion = getEnv("BEDROCK_REGION", cfg.BedrockRegion)
	cfg.BedrockModel = getEnv("BEDROCK_MODEL", cfg.BedrockModel)
	cfg.CaptureInterval = getEnvDuration("CAPTURE_INTERVAL", cfg.CaptureInterval)
	cfg.LiveHistoryCapacity = getEnvInt("LIVE_HISTORY_CAPACITY", cfg.LiveHistoryCapacity)
	cfg.Source = getEnv("SOURCE", cfg.Source)
	cfg.SourceURL = getEnv("SOURCE_URL", cfg.SourceURL)
	cfg.SourceDir = getEnv("SOURCE_DIR", cfg.SourceDir)
	cfg.WebcamDevice = getEnvInt("WEBCAM_DEVICE", cfg.WebcamDevice)
	cfg.ArchiveEnabled = getEnvBool("ARCHIVE_ENABLED", cfg.ArchiveEnabled)
	cfg.ArchiveDatabaseURL = getEnv("ARCHIVE_DATABASE_URL", cfg.ArchiveDatabaseURL)
	cfg.SlackWebhookURL = getEnv("SLACK_WEBHOOK_URL", cfg.SlackWebhookURL)
	cfg.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", cfg.MaxUploadMB)

	return cfg, nil
}

// Validate checks that required values are present and in range
func (c *Config) Validate() error {
	var errs []error

	if c.VideoURL == "" {
		errs = append(errs, errors.New("BACKEND_VIDEO_URL is required"))
	}
	if c.FrameBackend != "bedrock" && c.FrameURL == "" {
		errs = append(errs, errors.New("BACKEND_FRAME_URL is required"))
	}
	if c.ClipTimeout <= 0 || c.FrameTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.CaptureInterval <= 0 {
		errs = append(errs, errors.New("CAPTURE_INTERVAL must be positive"))
	}
	if c.LiveHistoryCapacity < 1 {
		errs = append(errs, errors.New("LIVE_HISTORY_CAPACITY must be at least 1"))
	}
	if c.MaxUploadMB < 1 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be at least 1"))
	}
	if c.ArchiveEnabled && c.ArchiveDatabaseURL == "" {
		errs = append(errs, errors.New("ARCHIVE_DATABASE_URL is required when the archive is enabled"))
	}

	switch c.Source {
	case "snapshot", "":
		if c.SourceURL == "" {
			errs = append(errs, errors.New("SOURCE_URL is required for the snapshot source"))
		}
	case "directory", "dir":
		if c.SourceDir == "" {
			errs = append(errs, errors.New("SOURCE_DIR is required for the directory source"))
		}
	case "webcam", "camera":
	default:
		errs = append(errs, fmt.Errorf("unknown SOURCE %q", c.Source))
	}

	return errors.Join(errs...)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an int environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool accepts anything strconv.ParseBool does
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration reads a Go duration ("500ms", "10m") or a plain number
// of milliseconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
