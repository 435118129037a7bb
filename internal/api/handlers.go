package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aide-agent/aide/internal/store"
	"github.com/aide-agent/aide/internal/voice"
)

// --- chat ---

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.deps.Agent.Process(r.Context(), req.Message)
	if err != nil {
		s.logger.Error("chat request failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "chat failed: "+err.Error())
		return
	}
	s.writeJSON(w, reply)
}

// --- tasks ---

type taskCreateRequest struct {
	Text string `json:"text"`
	// Due is optional: RFC3339, "2006-01-02 15:04", "15:04", or "in N minutes".
	Due string `json:"due,omitempty"`
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.deps.Store.ListTasks(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "list tasks: "+err.Error())
		return
	}
	s.writeJSON(w, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req taskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.errorResponse(w, http.StatusBadRequest, "text is required")
		return
	}

	var dueAt *time.Time
	if req.Due != "" {
		due, err := store.ParseWhen(req.Due, time.Now())
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid due time: "+err.Error())
			return
		}
		dueAt = &due
	}

	task, err := s.deps.Store.CreateTask(r.Context(), req.Text, dueAt)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "create task: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, task)
}

func (s *Server) handleTaskToggle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid task id")
		return
	}

	task, err := s.deps.Store.ToggleTask(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, task)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid task id")
		return
	}

	if err := s.deps.Store.DeleteTask(r.Context(), id); err != nil {
		s.errorResponse(w, http.StatusNotFound, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- reminders ---

type reminderCreateRequest struct {
	Text string `json:"text"`
	Time string `json:"time"`
}

func (s *Server) handleReminderList(w http.ResponseWriter, r *http.Request) {
	reminders, err := s.deps.Store.ListReminders(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "list reminders: "+err.Error())
		return
	}
	s.writeJSON(w, map[string]any{"reminders": reminders, "count": len(reminders)})
}

func (s *Server) handleReminderCreate(w http.ResponseWriter, r *http.Request) {
	var req reminderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" || req.Time == "" {
		s.errorResponse(w, http.StatusBadRequest, "text and time are required")
		return
	}

	triggerAt, err := store.ParseWhen(req.Time, time.Now())
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid trigger time: "+err.Error())
		return
	}

	reminder, err := s.deps.Store.CreateReminder(r.Context(), req.Text, triggerAt)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "create reminder: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, reminder)
}

// --- logs and memory ---

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	logs, err := s.deps.Store.RecentLogs(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "query logs: "+err.Error())
		return
	}
	s.writeJSON(w, map[string]any{"logs": logs, "count": len(logs)})
}

type memoryQueryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) handleMemoryQuery(w http.ResponseWriter, r *http.Request) {
	var req memoryQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.errorResponse(w, http.StatusBadRequest, "query is required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	turns, err := s.deps.Store.SearchTurns(r.Context(), req.Query, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "search: "+err.Error())
		return
	}
	s.writeJSON(w, map[string]any{"turns": turns, "count": len(turns)})
}

// --- voice ---

type speakRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if s.deps.Voice == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "voice not configured")
		return
	}

	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.errorResponse(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := s.deps.Voice.Speak(r.Context(), req.Text); err != nil {
		if errors.Is(err, voice.ErrDisabled) {
			s.errorResponse(w, http.StatusServiceUnavailable, "voice is disabled")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "speak: "+err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.deps.Voice == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "voice not configured")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	text, err := s.deps.Voice.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "transcribe: "+err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"text": text})
}

// --- stats ---

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	if s.deps.System == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "system info not configured")
		return
	}
	s.writeJSON(w, s.deps.System.CollectInfo())
}

func (s *Server) handleProductivityStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Productivity == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "productivity tracking not configured")
		return
	}
	stats, err := s.deps.Productivity.CollectStats(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "stats: "+err.Error())
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	if s.deps.Learning == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "learning tracking not configured")
		return
	}
	cards, err := s.deps.Learning.ListFlashcards(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "list flashcards: "+err.Error())
		return
	}
	s.writeJSON(w, map[string]any{"flashcards": cards, "count": len(cards)})
}

func (s *Server) handleLearningStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Learning == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "learning tracking not configured")
		return
	}
	stats, err := s.deps.Learning.CollectStats(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "stats: "+err.Error())
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) handleHealthStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "health tracking not configured")
		return
	}
	stats, err := s.deps.Health.CollectStats(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "stats: "+err.Error())
		return
	}
	s.writeJSON(w, stats)
}

// --- input ---

func (s *Server) handleMousePosition(w http.ResponseWriter, r *http.Request) {
	if s.deps.Input == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "input control not configured")
		return
	}
	pos, err := s.deps.Input.MousePosition(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "mouse position: "+err.Error())
		return
	}
	s.writeJSON(w, pos)
}

func (s *Server) handleScreenSize(w http.ResponseWriter, r *http.Request) {
	if s.deps.Input == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "input control not configured")
		return
	}
	size, err := s.deps.Input.ScreenSize(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "screen size: "+err.Error())
		return
	}
	s.writeJSON(w, size)
}

// --- health probe ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "healthy"})
}
