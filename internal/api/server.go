// Package api implements the local HTTP API and serves the browser UI.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"github.com/aide-agent/aide/internal/agent"
	"github.com/aide-agent/aide/internal/config"
	"github.com/aide-agent/aide/internal/events"
	"github.com/aide-agent/aide/internal/health"
	"github.com/aide-agent/aide/internal/input"
	"github.com/aide-agent/aide/internal/learning"
	"github.com/aide-agent/aide/internal/productivity"
	"github.com/aide-agent/aide/internal/store"
	"github.com/aide-agent/aide/internal/system"
	"github.com/aide-agent/aide/internal/web"
)

// Chatter handles one user utterance end to end. The agent implements
// it; tests substitute a fake.
type Chatter interface {
	Process(ctx context.Context, message string) (*agent.Reply, error)
}

// Speaker is the voice surface the API needs.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Pointer reports mouse and screen geometry.
type Pointer interface {
	MousePosition(ctx context.Context) (input.Point, error)
	ScreenSize(ctx context.Context) (input.Size, error)
}

// Deps collects the server's collaborators. Store and Agent are
// required; the rest may be nil, in which case their routes answer 503.
type Deps struct {
	Agent        Chatter
	Store        *store.Store
	Voice        Speaker
	System       *system.System
	Productivity *productivity.Store
	Learning     *learning.Store
	Health       *health.Store
	Input        Pointer
	Bus          *events.Bus
}

// Server is the HTTP API server.
type Server struct {
	listen config.ListenConfig
	cors   config.CORSConfig
	deps   Deps
	logger *slog.Logger
	server *http.Server
}

// NewServer creates an API server. Call Start to begin serving.
func NewServer(listen config.ListenConfig, corsCfg config.CORSConfig, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		listen: listen,
		cors:   corsCfg,
		deps:   deps,
		logger: logger,
	}
}

// Handler builds the full route table with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)

	mux.HandleFunc("GET /api/tasks", s.handleTaskList)
	mux.HandleFunc("POST /api/tasks", s.handleTaskCreate)
	mux.HandleFunc("PUT /api/tasks/{id}", s.handleTaskToggle)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleTaskDelete)

	mux.HandleFunc("GET /api/reminders", s.handleReminderList)
	mux.HandleFunc("POST /api/reminders", s.handleReminderCreate)

	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("POST /api/memory/query", s.handleMemoryQuery)

	mux.HandleFunc("POST /api/speak", s.handleSpeak)
	mux.HandleFunc("POST /api/voice/transcribe", s.handleTranscribe)

	mux.HandleFunc("GET /api/system/info", s.handleSystemInfo)
	mux.HandleFunc("GET /api/productivity/stats", s.handleProductivityStats)
	mux.HandleFunc("GET /api/learning/flashcards", s.handleFlashcards)
	mux.HandleFunc("GET /api/learning/stats", s.handleLearningStats)
	mux.HandleFunc("GET /api/health/stats", s.handleHealthStats)

	mux.HandleFunc("GET /api/input/mouse_position", s.handleMousePosition)
	mux.HandleFunc("GET /api/input/screen_size", s.handleScreenSize)

	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("/", web.Handler())

	origins := s.cors.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})

	return s.withLogging(c.Handler(mux))
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.listen.Address, s.listen.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	addr := s.listen.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.listen.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// writeJSON encodes v to w, logging failures at debug level. Errors
// here typically mean the client disconnected mid-response.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
