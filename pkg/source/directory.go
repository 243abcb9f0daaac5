package source

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// DirectorySource replays the still images of a directory in name order,
// wrapping around at the end.
type DirectorySource struct {
	dir   string
	files []string
	next  int
	mu    sync.Mutex
}

// NewDirectorySource lists the images in dir. An empty directory is not
// an error: captures report ErrUnavailable until images appear on a
// later Rescan.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	s := &DirectorySource{dir: dir}
	if err := s.Rescan(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the source name
func (s *DirectorySource) Name() string {
	return fmt.Sprintf("directory (%s)", s.dir)
}

// Rescan refreshes the list of images
func (s *DirectorySource) Rescan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Strings(files)

	s.mu.Lock()
	s.files = files
	s.next = 0
	s.mu.Unlock()
	return nil
}

// Capture returns the next image in the rotation
func (s *DirectorySource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, ErrUnavailable
	}

	s.mu.Lock()
	if len(s.files) == 0 {
		s.mu.Unlock()
		return Frame{}, ErrUnavailable
	}
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return Frame{}, ErrUnavailable
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "image/jpeg"
	}

	return Frame{
		Data:        data,
		ContentType: contentType,
		CapturedAt:  time.Now(),
	}, nil
}
