package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SnapshotSource pulls stills from a camera's HTTP snapshot endpoint
type SnapshotSource struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewSnapshotSource creates a snapshot source. The timeout bounds each
// capture so a stalled camera never holds up the capture loop.
func NewSnapshotSource(url string, timeout time.Duration) *SnapshotSource {
	if timeout <= 0 {
		timeout = 400 * time.Millisecond
	}
	return &SnapshotSource{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// Name returns the source name
func (s *SnapshotSource) Name() string {
	return fmt.Sprintf("snapshot (%s)", s.url)
}

// Capture fetches one still. Any failure to obtain an image is reported
// as ErrUnavailable.
func (s *SnapshotSource) Capture(ctx context.Context) (Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Frame{}, fmt.Errorf("%w: camera returned status %d", ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(data) == 0 {
		return Frame{}, ErrUnavailable
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return Frame{
		Data:        data,
		ContentType: contentType,
		CapturedAt:  time.Now(),
	}, nil
}
