package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valentinpelus/posturewatch/pkg/source"
)

func testFrame() source.Frame {
	return source.Frame{Data: []byte{0xff, 0xd8, 0xff}, ContentType: "image/jpeg", CapturedAt: time.Now()}
}

func TestAnalyzeFrame_SendsDataURL(t *testing.T) {
	var got frameRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"issues": ["slouching", "forward head"]}`))
	}))
	defer srv.Close()

	c := NewServiceClient(srv.URL+"/video", srv.URL, time.Second, time.Second)
	issues, err := c.AnalyzeFrame(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Equal(t, []string{"slouching", "forward head"}, issues)
	assert.True(t, strings.HasPrefix(got.Image, "data:image/jpeg;base64,"))
}

func TestAnalyzeFrame_MissingIssuesMeansNone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewServiceClient(srv.URL, srv.URL, time.Second, time.Second)
	issues, err := c.AnalyzeFrame(context.Background(), testFrame())
	require.NoError(t, err)
	assert.NotNil(t, issues)
	assert.Empty(t, issues)
}

func TestAnalyzeClip_BatchScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "clip.mp4", header.Filename)
		assert.Equal(t, "video-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"per_frame_feedback": [
			{"frame": 0, "issues": []},
			{"frame": 1, "issues": ["slouching"]},
			{"frame": 2, "issues": []}
		]}`))
	}))
	defer srv.Close()

	c := NewServiceClient(srv.URL, srv.URL+"/frame", time.Second, time.Second)
	results, err := c.AnalyzeClip(context.Background(), Clip{Name: "clip.mp4", ContentType: "video/mp4", Data: []byte("video-bytes")})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Empty(t, results[0])
	assert.Equal(t, []string{"slouching"}, results[1])
	assert.Empty(t, results[2])
}

func TestAnalyzeClip_AcceptsAlternateKeys(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"frames key", `{"frames": [{"issues": ["a"]}, {"issues": []}]}`, 2},
		{"results key", `{"results": [{"issues": ["a"]}]}`, 1},
		{"bare array", `[{"issues": []}, {}, {"issues": ["b"]}]`, 3},
		{"no list", `{"status": "ok"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewServiceClient(srv.URL, srv.URL, time.Second, time.Second)
			results, err := c.AnalyzeClip(context.Background(), Clip{Name: "c.mp4", Data: []byte("x")})
			require.NoError(t, err)
			assert.Len(t, results, tt.want)
		})
	}
}

func TestServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   ErrorKind
		wantStatus int
		wantMsg    string
	}{
		{"detail string", 422, `{"detail": "unsupported codec"}`, ServerRejected, 422, "unsupported codec"},
		{"detail list", 422, `{"detail": [{"msg": "field required"}]}`, ServerRejected, 422, "field required"},
		{"message field", 500, `{"message": "model crashed"}`, ServerRejected, 500, "model crashed"},
		{"no message", 503, `oops`, ServerRejected, 503, "Unknown error"},
		{"invalid success body", 200, `not json`, ServerRejected, 200, "invalid response body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewServiceClient(srv.URL, srv.URL, time.Second, time.Second)
			_, err := c.AnalyzeFrame(context.Background(), testFrame())

			var aerr *Error
			require.True(t, errors.As(err, &aerr))
			assert.Equal(t, tt.wantKind, aerr.Kind)
			assert.Equal(t, tt.wantStatus, aerr.Status)
			assert.Equal(t, tt.wantMsg, aerr.Message)
		})
	}
}

func TestNoResponse(t *testing.T) {
	c := NewServiceClient("http://127.0.0.1:1/video", "http://127.0.0.1:1/frame", time.Second, time.Second)

	_, err := c.AnalyzeFrame(context.Background(), testFrame())
	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, NoResponse, aerr.Kind)
}

func TestFrameTimeoutIsNoResponse(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewServiceClient(srv.URL, srv.URL, time.Second, 30*time.Millisecond)
	_, err := c.AnalyzeFrame(context.Background(), testFrame())

	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, NoResponse, aerr.Kind)
}

func TestClientErrors(t *testing.T) {
	c := NewServiceClient("http://[::1]:namedport", "::not a url", time.Second, time.Second)

	_, err := c.AnalyzeFrame(context.Background(), testFrame())
	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, ClientError, aerr.Kind)

	_, err = c.AnalyzeFrame(context.Background(), source.Frame{})
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, ClientError, aerr.Kind)

	_, err = c.AnalyzeClip(context.Background(), Clip{Name: "empty.mp4"})
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, ClientError, aerr.Kind)
}
