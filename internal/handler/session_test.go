package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valentinpelus/posturewatch/internal/session"
	"github.com/valentinpelus/posturewatch/pkg/analysis"
	"github.com/valentinpelus/posturewatch/pkg/archive"
)

type fakeController struct {
	selected   *analysis.Clip
	analyzeErr error
	startErr   error
	stopped    int
	state      session.Snapshot
	analyzeCtx context.Context
}

func (f *fakeController) SelectClip(clip analysis.Clip) error {
	f.selected = &clip
	f.state.Mode = session.Uploading
	return nil
}

func (f *fakeController) ClearClip() error {
	f.selected = nil
	return nil
}

func (f *fakeController) AnalyzeClip(ctx context.Context) error {
	f.analyzeCtx = ctx
	return f.analyzeErr
}

func (f *fakeController) StartLive() error {
	if f.startErr == nil {
		f.state.Mode = session.Live
	}
	return f.startErr
}

func (f *fakeController) StopLive() {
	f.stopped++
	f.state.Mode = session.Idle
}

func (f *fakeController) State() session.Snapshot {
	return f.state
}

type fakeStats struct{}

func (fakeStats) Stats(ctx context.Context, topLabels int) (*archive.Stats, error) {
	return &archive.Stats{TotalEntries: 3, WithIssues: 1, ByIssue: map[string]int{"slouching": 1}}, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleSelectClip(t *testing.T) {
	ctrl := &fakeController{}
	h := NewSessionHandler(ctrl, nil, 1<<20)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "squat.mp4")
	require.NoError(t, err)
	part.Write([]byte("fake video bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/clip", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.HandleSelectClip(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ctrl.selected)
	assert.Equal(t, "squat.mp4", ctrl.selected.Name)
	assert.Equal(t, []byte("fake video bytes"), ctrl.selected.Data)
	assert.Equal(t, "uploading", decode(t, rec)["mode"])
}

func TestHandleSelectClipMissingFile(t *testing.T) {
	ctrl := &fakeController{}
	h := NewSessionHandler(ctrl, nil, 1<<20)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/clip", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.HandleSelectClip(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please select a video file to upload.", decode(t, rec)["error"])
	assert.Nil(t, ctrl.selected)
}

func TestHandleAnalyzeClipOutlivesClient(t *testing.T) {
	ctrl := &fakeController{state: session.Snapshot{Mode: session.Uploading}}
	h := NewSessionHandler(ctrl, nil, 1<<20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/clip/analyze", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	h.HandleAnalyzeClip(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ctrl.analyzeCtx)
	assert.NoError(t, ctrl.analyzeCtx.Err())
}

func TestHandleAnalyzeClipErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		stateError string
		wantStatus int
		wantError  string
	}{
		{
			name:       "no clip",
			err:        session.ErrNoClip,
			stateError: session.ErrNoClip.Message,
			wantStatus: http.StatusBadRequest,
			wantError:  "Please select a video file to upload.",
		},
		{
			name:       "busy",
			err:        session.ErrBusy,
			wantStatus: http.StatusConflict,
			wantError:  session.ErrBusy.Error(),
		},
		{
			name:       "service failure",
			err:        &analysis.Error{Kind: analysis.ServerRejected, Status: 500, Message: "model crashed"},
			stateError: "Server Error: 500 - model crashed",
			wantStatus: http.StatusBadGateway,
			wantError:  "Server Error: 500 - model crashed",
		},
		{
			name:       "unexpected failure",
			err:        errors.New("boom"),
			stateError: "An unexpected error occurred during video analysis.",
			wantStatus: http.StatusBadGateway,
			wantError:  "An unexpected error occurred during video analysis.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{analyzeErr: tt.err, state: session.Snapshot{Error: tt.stateError}}
			h := NewSessionHandler(ctrl, nil, 1<<20)

			rec := httptest.NewRecorder()
			h.HandleAnalyzeClip(rec, httptest.NewRequest(http.MethodPost, "/api/clip/analyze", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.wantError, body["error"])
			assert.NotNil(t, body["state"])
		})
	}
}

func TestHandleLive(t *testing.T) {
	ctrl := &fakeController{}
	h := NewSessionHandler(ctrl, nil, 1<<20)

	rec := httptest.NewRecorder()
	h.HandleStartLive(rec, httptest.NewRequest(http.MethodPost, "/api/live/start", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "live", decode(t, rec)["mode"])

	for i := 0; i < 2; i++ {
		rec = httptest.NewRecorder()
		h.HandleStopLive(rec, httptest.NewRequest(http.MethodPost, "/api/live/stop", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, "idle", decode(t, rec)["mode"])

	ctrl.startErr = session.ErrBusy
	rec = httptest.NewRecorder()
	h.HandleStartLive(rec, httptest.NewRequest(http.MethodPost, "/api/live/start", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleStats(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSessionHandler(&fakeController{}, nil, 1<<20).HandleStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	NewSessionHandler(&fakeController{}, fakeStats{}, 1<<20).HandleStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(3), body["total_entries"])
	assert.Equal(t, map[string]interface{}{"slouching": float64(1)}, body["by_issue"])
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}
