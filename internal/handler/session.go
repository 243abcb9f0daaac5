package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/valentinpelus/posturewatch/internal/capture"
	"github.com/valentinpelus/posturewatch/internal/session"
	"github.com/valentinpelus/posturewatch/pkg/analysis"
	"github.com/valentinpelus/posturewatch/pkg/archive"
)

// statsLabels is how many issue labels /api/stats reports
const statsLabels = 10

// Controller is the session surface driven over HTTP
type Controller interface {
	SelectClip(clip analysis.Clip) error
	ClearClip() error
	AnalyzeClip(ctx context.Context) error
	StartLive() error
	StopLive()
	State() session.Snapshot
}

// StatsSource reports archive statistics
type StatsSource interface {
	Stats(ctx context.Context, topLabels int) (*archive.Stats, error)
}

// SessionHandler exposes the session commands as JSON endpoints
type SessionHandler struct {
	controller Controller
	stats      StatsSource
	maxUpload  int64
}

// NewSessionHandler creates a handler. stats may be nil when the archive
// is disabled.
func NewSessionHandler(controller Controller, stats StatsSource, maxUploadBytes int64) *SessionHandler {
	return &SessionHandler{
		controller: controller,
		stats:      stats,
		maxUpload:  maxUploadBytes,
	}
}

type errorResponse struct {
	Error string            `json:"error"`
	State *session.Snapshot `json:"state,omitempty"`
}

// HandleSelectClip stages the uploaded multipart "file"
func (h *SessionHandler) HandleSelectClip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Video file is too large."})
			return
		}
		if errors.Is(err, http.ErrMissingFile) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: session.ErrNoClip.Message})
			return
		}
		log.Printf("Failed to read clip upload: %v", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Failed to read the uploaded file."})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("Failed to read clip upload: %v", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Failed to read the uploaded file."})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	clip := analysis.Clip{Name: header.Filename, ContentType: contentType, Data: data}
	if err := h.controller.SelectClip(clip); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.State())
}

// HandleClearClip drops the staged clip
func (h *SessionHandler) HandleClearClip(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.ClearClip(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.State())
}

// HandleAnalyzeClip runs the batch analysis and answers when it finishes.
// The analysis outlives the request: a client that goes away does not
// cancel it, and the clip timeout still bounds it.
func (h *SessionHandler) HandleAnalyzeClip(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.AnalyzeClip(context.WithoutCancel(r.Context())); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.State())
}

// HandleStartLive enters live mode
func (h *SessionHandler) HandleStartLive(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.StartLive(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.State())
}

// HandleStopLive leaves live mode
func (h *SessionHandler) HandleStopLive(w http.ResponseWriter, r *http.Request) {
	h.controller.StopLive()
	writeJSON(w, http.StatusOK, h.controller.State())
}

// HandleState returns the current session snapshot
func (h *SessionHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.State())
}

// HandleStats returns archive statistics
func (h *SessionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "archive is not enabled"})
		return
	}

	stats, err := h.stats.Stats(r.Context(), statsLabels)
	if err != nil {
		log.Printf("Failed to get archive stats: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read archive stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeError maps a controller error to a status. The message is the one
// the controller recorded, falling back to the error text.
func (h *SessionHandler) writeError(w http.ResponseWriter, err error) {
	state := h.controller.State()
	msg := state.Error
	if msg == "" {
		msg = err.Error()
	}
	writeJSON(w, statusFor(err), errorResponse{Error: msg, State: &state})
}

func statusFor(err error) int {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy), errors.Is(err, capture.ErrRunning):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// HandleHealth handles health check requests
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
