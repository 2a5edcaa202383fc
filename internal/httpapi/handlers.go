package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subforge/internal/batch"
)

type enqueueJobRequest struct {
	MediaPath   string `json:"media_path"`
	ClipStartMs int64  `json:"clip_start_ms"`
	ClipEndMs   int64  `json:"clip_end_ms"`
	Backend     string `json:"backend"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.coordinator.List())
	case http.MethodPost:
		var req enqueueJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.MediaPath == "" {
			writeError(w, http.StatusBadRequest, "media_path is required")
			return
		}
		if req.ClipEndMs < req.ClipStartMs {
			writeError(w, http.StatusBadRequest, "clip_end_ms must not precede clip_start_ms")
			return
		}
		if req.Backend == "" {
			req.Backend = s.defaultBackend
		}

		job, created := s.coordinator.Enqueue(batch.EnqueueRequest{
			SourcePath: req.MediaPath,
			ClipStart:  time.Duration(req.ClipStartMs) * time.Millisecond,
			ClipEnd:    time.Duration(req.ClipEndMs) * time.Millisecond,
			Backend:    req.Backend,
		})
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id = strings.TrimSuffix(id, "/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, ok := s.coordinator.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		err := s.coordinator.RemoveJob(id)
		switch {
		case errors.Is(err, batch.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, batch.ErrJobProcessing):
			writeError(w, http.StatusConflict, "job is currently processing")
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleBatchStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	err := s.coordinator.Start()
	switch {
	case errors.Is(err, batch.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "batch is already running")
	case errors.Is(err, batch.ErrEmptyQueue):
		writeError(w, http.StatusUnprocessableEntity, "no pending jobs in queue")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	}
}

func (s *Server) handleBatchCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.coordinator.Cancel()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) handleBatchStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":  s.coordinator.Running(),
		"counters": s.coordinator.Counters(),
	})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	candidates, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
