package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/rotation.report/internal/config"
	"github.com/banshee-data/rotation.report/internal/db"
	"github.com/banshee-data/rotation.report/internal/magrev"
	"github.com/banshee-data/rotation.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// ApplyTuningFunc rebuilds the detector stack from new tuning values. It
// is supplied by main, where the detectors are constructed.
type ApplyTuningFunc func(*config.TuningConfig) error

// TuningSettingKey is the settings-store key under which runtime tuning
// overrides are persisted across restarts.
const TuningSettingKey = "tuning"

type Server struct {
	manager     *magrev.Manager
	db          *db.DB
	sessions    *SessionController
	tuning      *config.TuningConfig
	applyTuning ApplyTuningFunc
	units       string
}

// NewServer creates the API server. db may be nil when persistence is
// disabled; session listing endpoints then return 404.
func NewServer(manager *magrev.Manager, database *db.DB, sessions *SessionController, tuning *config.TuningConfig, applyTuning ApplyTuningFunc, angleUnits string) *Server {
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	if !units.IsValid(angleUnits) {
		angleUnits = units.Radians
	}
	return &Server{
		manager:     manager,
		db:          database,
		sessions:    sessions,
		tuning:      tuning,
		applyTuning: applyTuning,
		units:       angleUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/session/start", s.startSession)
	mux.HandleFunc("/api/session/stop", s.stopSession)
	mux.HandleFunc("/api/reset", s.resetDetector)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.showSession)
	mux.HandleFunc("/api/live", s.streamLive)
	mux.HandleFunc("/debug/sessionchart", s.showSessionChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// StatusResponse is the /api/status payload.
type StatusResponse struct {
	magrev.Snapshot
	PhaseAngle float64        `json:"phase_angle"`
	Units      string         `json:"units"`
	Algorithms []string       `json:"algorithms"`
	Session    *ActiveSession `json:"session,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap := s.manager.Snapshot()
	resp := StatusResponse{
		Snapshot:   snap,
		PhaseAngle: units.ConvertAngle(snap.PhaseAngle, s.units),
		Units:      s.units,
		Algorithms: s.manager.Algorithms(),
	}
	if s.sessions != nil {
		resp.Session = s.sessions.Active()
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
	}
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.sessions == nil {
		s.writeJSONError(w, http.StatusNotFound, "Sessions not configured")
		return
	}

	session, created, err := s.sessions.Start(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start session: %v", err))
		return
	}
	if created {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(session)
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.sessions == nil {
		s.writeJSONError(w, http.StatusNotFound, "Sessions not configured")
		return
	}

	session, err := s.sessions.Stop(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusConflict, fmt.Sprintf("Failed to stop session: %v", err))
		return
	}
	json.NewEncoder(w).Encode(session)
}

func (s *Server) resetDetector(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.manager.Reset()
	json.NewEncoder(w).Encode(s.manager.Snapshot())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(s.tuning)
	case http.MethodPost:
		s.updateConfig(w, r)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var update config.TuningConfig
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid config JSON: %v", err))
		return
	}

	merged := s.tuning.Merge(&update)
	if err := merged.Validate(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid configuration: %v", err))
		return
	}

	if s.applyTuning != nil {
		if err := s.applyTuning(merged); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to apply configuration: %v", err))
			return
		}
	}
	if merged.GetAlgorithm() != s.manager.Algorithm() {
		if err := s.manager.SetAlgorithm(merged.GetAlgorithm()); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Failed to switch algorithm: %v", err))
			return
		}
	}
	if s.sessions != nil {
		s.sessions.SetCircumferenceM(merged.GetWheelCircumferenceM())
	}
	s.tuning = merged

	// Persist the override set so it survives restarts.
	if s.db != nil {
		if payload, err := json.Marshal(merged); err == nil {
			if err := s.db.SaveSetting(r.Context(), TuningSettingKey, string(payload)); err != nil {
				log.Printf("[API] failed to persist tuning: %v", err)
			}
		}
	}
	json.NewEncoder(w).Encode(s.tuning)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "Persistence not configured")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := s.db.ListSessions(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	json.NewEncoder(w).Encode(sessions)
}

// SessionDetail is the /api/sessions/{id} payload.
type SessionDetail struct {
	db.SessionSummary
	Events []db.RevolutionEventRow `json:"events,omitempty"`
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "Persistence not configured")
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	summary, err := s.db.GetSessionSummary(r.Context(), sessionID)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load session: %v", err))
		return
	}

	detail := SessionDetail{SessionSummary: *summary}
	if r.URL.Query().Get("events") == "1" {
		events, err := s.db.SessionEvents(r.Context(), sessionID)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load events: %v", err))
			return
		}
		detail.Events = events
	}
	json.NewEncoder(w).Encode(detail)
}
