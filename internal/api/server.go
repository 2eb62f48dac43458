package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hnswdb/internal/shard"
	"hnswdb/internal/vdberr"
)

// Version is the server's reported build version for /health.
const Version = "0.1.0"

// Server wires the shard controller into the HTTP surface: a plain
// http.ServeMux and one handler method per route, matching the pack's
// own hand-rolled JSON servers rather than reaching for a router
// framework the corpus never uses.
type Server struct {
	shard     *shard.Controller
	log       *slog.Logger
	keys      map[string]struct{}
	startedAt time.Time
	mux       *http.ServeMux
}

// NewServer builds a Server bound to one shard controller. keys is the
// configured set of opaque caller keys; an empty set disables
// authentication entirely (every request is accepted).
func NewServer(ctrl *shard.Controller, log *slog.Logger, keys []string) *Server {
	if log == nil {
		log = slog.Default()
	}
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}

	s := &Server{
		shard:     ctrl,
		log:       log,
		keys:      keySet,
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler so Server can be passed straight to
// http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/vector/insert", s.authenticated(s.handleInsert))
	s.mux.HandleFunc("/api/vector/batch-insert", s.authenticated(s.handleBatchInsert))
	s.mux.HandleFunc("/api/vector/search", s.authenticated(s.handleSearch))
	s.mux.HandleFunc("/api/vector/get/", s.authenticated(s.handleGet))
	s.mux.HandleFunc("/api/vector/delete", s.authenticated(s.handleDelete))
	s.mux.HandleFunc("/api/vector/stats", s.authenticated(s.handleStats))
}

// Authenticate reports whether key is one of the configured caller
// keys. An empty configured key set means authentication is disabled.
func (s *Server) Authenticate(key string) bool {
	if len(s.keys) == 0 {
		return true
	}
	_, ok := s.keys[key]
	return ok
}

// authenticated wraps handler with the opaque-key check: every
// surface except /health requires it.
func (s *Server) authenticated(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if !s.authenticateConstantTime(key) {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key", "")
			return
		}
		handler(w, r)
	}
}

// authenticateConstantTime compares key against the configured set using
// subtle.ConstantTimeCompare, so a caller probing valid keys cannot learn
// anything from response-time variance.
func (s *Server) authenticateConstantTime(key string) bool {
	if len(s.keys) == 0 {
		return true
	}
	for configured := range s.keys {
		if len(configured) == len(key) && subtle.ConstantTimeCompare([]byte(configured), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storage := "ok"
	vectorIndex := "ok"

	if _, err := s.shard.Stats(r.Context()); err != nil {
		storage = "degraded"
		vectorIndex = "degraded"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Service:       "hnswdb",
		Version:       Version,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Checks: map[string]string{
			"storage":      storage,
			"vector_index": vectorIndex,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: message, Code: code})
}

// statusForError maps a shard-layer error to an HTTP status code.
func statusForError(err error) int {
	ae, ok := err.(*vdberr.Error)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ae.Category {
	case vdberr.CategoryValidation:
		return http.StatusBadRequest
	case vdberr.CategoryConflict:
		return http.StatusConflict
	case vdberr.CategoryNotFound:
		return http.StatusNotFound
	case vdberr.CategoryCapacity:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeShardError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error(), vdberr.GetCode(err))
}
