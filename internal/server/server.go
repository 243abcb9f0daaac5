package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/valentinpelus/posturewatch/internal/handler"
	"github.com/valentinpelus/posturewatch/internal/middleware"
)

// Server wraps the HTTP server
type Server struct {
	port           string
	sessionHandler *handler.SessionHandler
	stream         http.Handler
	authMiddleware *middleware.AuthMiddleware
	httpServer     *http.Server
}

// New creates a new HTTP server. writeTimeout must cover a full clip
// analysis since /api/clip/analyze answers when it finishes.
func New(port, authToken string, sessionHandler *handler.SessionHandler, stream http.Handler, writeTimeout time.Duration) *Server {
	s := &Server{
		port:           port,
		sessionHandler: sessionHandler,
		stream:         stream,
		authMiddleware: middleware.NewAuthMiddleware(authToken),
	}
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}
	return s
}

// Routes configures HTTP routes
func (s *Server) Routes() http.Handler {
	auth := s.authMiddleware.Authenticate
	h := s.sessionHandler

	mux := http.NewServeMux()
	mux.Handle("POST /api/clip", auth(http.HandlerFunc(h.HandleSelectClip)))
	mux.Handle("DELETE /api/clip", auth(http.HandlerFunc(h.HandleClearClip)))
	mux.Handle("POST /api/clip/analyze", auth(http.HandlerFunc(h.HandleAnalyzeClip)))
	mux.Handle("POST /api/live/start", auth(http.HandlerFunc(h.HandleStartLive)))
	mux.Handle("POST /api/live/stop", auth(http.HandlerFunc(h.HandleStopLive)))
	mux.Handle("GET /api/state", auth(http.HandlerFunc(h.HandleState)))
	mux.Handle("GET /api/stats", auth(http.HandlerFunc(h.HandleStats)))
	mux.Handle("GET /ws", auth(s.stream))
	mux.HandleFunc("GET /health", handler.HandleHealth)
	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Printf("HTTP server listening on :%s", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
