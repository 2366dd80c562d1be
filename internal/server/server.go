package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/bootguard/internal/metrics"
	"github.com/psantana5/bootguard/pkg/classifier"
	"github.com/psantana5/bootguard/pkg/engine"
	"github.com/psantana5/bootguard/pkg/logging"
)

// Server exposes the engine over HTTP so a supervisor or dashboard can
// query startup health and push crash reports.
type Server struct {
	engine *engine.Engine
	met    *metrics.Metrics
	log    *logging.Logger
	http   *http.Server
}

// Config holds the HTTP server settings. An empty APIKey leaves the
// API open.
type Config struct {
	ListenAddr   string
	APIKey       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8085",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func New(cfg Config, eng *engine.Engine, met *metrics.Metrics, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewLogger(logging.INFO, false)
	}
	s := &Server{engine: eng, met: met, log: log}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/check", s.handleCheck).Methods("POST")
	api.HandleFunc("/report", s.handleReport).Methods("GET")
	api.HandleFunc("/issues", s.handleIssues).Methods("GET")
	api.HandleFunc("/recover", s.handleRecover).Methods("POST")
	api.HandleFunc("/crash", s.handleCrash).Methods("POST")
	api.HandleFunc("/safemode", s.handleSafeModeExit).Methods("DELETE")

	if met != nil {
		router.Handle("/metrics", met.Handler()).Methods("GET")
	}

	var handler http.Handler = router
	handler = loggingMiddleware(s.log, handler)
	if cfg.APIKey != "" {
		handler = authMiddleware(cfg.APIKey, handler)
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.log.Info("API server listening", map[string]interface{}{"addr": s.http.Addr})
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// HTTPServer exposes the underlying server for shutdown wiring.
func (s *Server) HTTPServer() *http.Server { return s.http }

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.http.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"safe_mode": s.engine.SafeMode().Active(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.SafeMode().Status())
}

// handleCheck runs a full startup check on demand.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.RunStartupCheck(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Startup check failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleIssues runs validation only, without triggering recovery or
// the safe-mode decision.
func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Validator().ValidateAll())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Analytics().GenerateReport())
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	results := s.engine.RunRecovery()
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// CrashRequest is an externally reported fault.
type CrashRequest struct {
	Category  string `json:"category"`
	Message   string `json:"message"`
	Component string `json:"component"`
}

func (s *Server) handleCrash(w http.ResponseWriter, r *http.Request) {
	var req CrashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "Crash message is required", http.StatusBadRequest)
		return
	}

	fault := classifier.Fault{
		Category:  classifier.ParseCategory(req.Category),
		Message:   req.Message,
		Component: req.Component,
	}
	report := s.engine.HandleFault(fault)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"report":            report,
		"suggested_actions": s.engine.SuggestActions(fault),
	})
}

func (s *Server) handleSafeModeExit(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "manual exit via API"
	}
	changed := s.engine.ExitSafeMode(reason, false, false)
	if !changed {
		http.Error(w, "Safe mode is not active", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.SafeMode().Status())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
