// Package mockapi is a local stand-in for the remote verification
// service, used by the hidden mock-server command and by integration
// style tests. Jobs progress through the real status sequence one
// stage per status fetch, so watch loops exercise their full path.
package mockapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/stelatos/starkverify/pkg/api"
)

// maxPayloadBytes mirrors the production service's 10MB request cap.
const maxPayloadBytes = 10 * 1024 * 1024

type jobState struct {
	job     api.VerificationJob
	script  []api.JobStatus
	fetches int
}

// Server is the mock verification service.
type Server struct {
	host   string
	port   int
	router chi.Router

	mu   sync.Mutex
	jobs map[string]*jobState
}

// New builds a mock server listening on host:port.
func New(host string, port int) *Server {
	s := &Server{
		host: host,
		port: port,
		jobs: make(map[string]*jobState),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/class-verify/{classHash}", s.handleSubmit)
	r.Get("/class-verify/job/{jobID}", s.handleStatus)
	r.Get("/classes/{classHash}", s.handleClass)
	s.router = r

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// ListenAndServe runs the server until the listener fails or is
// closed.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

type submitRequest struct {
	Name         string            `json:"name"`
	ContractFile string            `json:"contract_file"`
	License      string            `json:"license"`
	Files        map[string]string `json:"files"`
}

// scriptFor decides how a job will progress. Contract names carry
// failure markers so batch and watch behavior can be exercised
// without a real backend.
func scriptFor(name string) ([]api.JobStatus, string) {
	lowered := strings.ToLower(name)
	switch {
	case strings.Contains(lowered, "compile_fail"):
		return []api.JobStatus{api.StatusSubmitted, api.StatusProcessing, api.StatusCompileFailed},
			"Couldn't connect to cairo compilation service"
	case strings.Contains(lowered, "fail"):
		return []api.JobStatus{api.StatusSubmitted, api.StatusProcessing, api.StatusCompiled, api.StatusFail},
			"class hash does not match the compiled class"
	default:
		return []api.JobStatus{api.StatusSubmitted, api.StatusProcessing, api.StatusCompiled, api.StatusSuccess}, ""
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	classHash := chi.URLParam(r, "classHash")

	body := http.MaxBytesReader(w, r.Body, maxPayloadBytes)
	var req submitRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "no files in submission")
		return
	}
	if !hasManifest(req.Files) {
		writeError(w, http.StatusBadRequest, "submission is missing Scarb.toml")
		return
	}

	jobID := uuid.NewString()
	script, failureMessage := scriptFor(req.Name)

	now := float64(time.Now().Unix())
	state := &jobState{
		job: api.VerificationJob{
			JobID:            jobID,
			Status:           script[0],
			ClassHash:        classHash,
			Name:             req.Name,
			ContractFile:     req.ContractFile,
			License:          req.License,
			CreatedTimestamp: now,
			UpdatedTimestamp: now,
			Message:          failureMessage,
		},
		script: script,
	}
	// The failure message only surfaces once the terminal stage is
	// reached; clear it for the initial record.
	if !script[0].IsTerminal() {
		state.job.Message = ""
	}

	s.mu.Lock()
	s.jobs[jobID] = state
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.jobs[jobID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// Advance one stage per fetch until the script ends.
	idx := state.fetches
	if idx >= len(state.script) {
		idx = len(state.script) - 1
	}
	state.fetches++

	status := state.script[idx]
	state.job.Status = status
	state.job.UpdatedTimestamp = float64(time.Now().Unix())
	if status.IsTerminal() && status != api.StatusSuccess {
		_, failureMessage := scriptFor(state.job.Name)
		state.job.Message = failureMessage
	}

	writeJSON(w, http.StatusOK, state.job)
}

// handleClass answers the on-chain class lookup. A class exists once
// a verification job has been submitted for its hash.
func (s *Server) handleClass(w http.ResponseWriter, r *http.Request) {
	classHash := chi.URLParam(r, "classHash")

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, state := range s.jobs {
		if state.job.ClassHash == classHash {
			writeJSON(w, http.StatusOK, map[string]string{"class_hash": classHash})
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func hasManifest(files map[string]string) bool {
	for name := range files {
		if name == "Scarb.toml" || strings.HasSuffix(name, "/Scarb.toml") {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
