// Package api exposes the admin HTTP surface: queue status, job
// inspection, sequence triggering, and manual sweeps.
//
// All endpoints speak JSON. The handler is a plain http.Handler and can
// be mounted under any mux or served directly.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/engine"
	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
)

// Server serves the admin API for an engine.
type Server struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates the admin API handler for the given engine.
func NewServer(eng *engine.Engine, opts ...Option) http.Handler {
	s := &Server{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/jobs", s.listJobs)
		r.Get("/jobs/{jobID}", s.getJob)
		r.Post("/jobs/purge-sent", s.purgeSent)
		r.Get("/sequences", s.listSequences)
		r.Get("/sequences/{name}", s.getSequence)
		r.Post("/sequences/{name}/trigger", s.triggerSequence)
		r.Post("/sweep", s.sweep)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	store := s.eng.Sequencer().Store()
	if err := store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.eng.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := job.ListOpts{
		SequenceID: q.Get("sequence"),
	}
	if state := q.Get("state"); state != "" {
		js := job.State(state)
		if !js.Valid() {
			writeError(w, http.StatusBadRequest, errors.New("unknown state: "+state))
			return
		}
		opts.State = js
	}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	jobs, err := s.eng.Jobs(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	j, err := s.eng.Job(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, cadence.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type purgeResponse struct {
	Purged int64 `json:"purged"`
}

func (s *Server) purgeSent(w http.ResponseWriter, r *http.Request) {
	n, err := s.eng.PurgeSent(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, purgeResponse{Purged: n})
}

type sequenceSummary struct {
	ID          string        `json:"id"`
	Description string        `json:"description,omitempty"`
	Steps       int           `json:"steps"`
	Source      string        `json:"source,omitempty"`
	Span        time.Duration `json:"span"`
}

func (s *Server) listSequences(w http.ResponseWriter, r *http.Request) {
	catalog := s.eng.Catalog()
	names := catalog.Names()

	out := make([]sequenceSummary, 0, len(names))
	for _, name := range names {
		def, err := catalog.Get(name)
		if err != nil {
			continue
		}
		var span time.Duration
		for _, step := range def.Steps {
			if step.Delay > span {
				span = step.Delay
			}
		}
		out = append(out, sequenceSummary{
			ID:          def.ID,
			Description: def.Description,
			Steps:       len(def.Steps),
			Source:      def.Source,
			Span:        span,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type stepDetail struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject"`
	Delay        time.Duration `json:"delay"`
	Label        string        `json:"label,omitempty"`
	CallToAction string        `json:"call_to_action,omitempty"`
}

type sequenceDetail struct {
	ID          string       `json:"id"`
	Description string       `json:"description,omitempty"`
	Source      string       `json:"source,omitempty"`
	Steps       []stepDetail `json:"steps"`
}

func (s *Server) getSequence(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, err := s.eng.Catalog().Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	detail := sequenceDetail{
		ID:          def.ID,
		Description: def.Description,
		Source:      def.Source,
		Steps:       make([]stepDetail, 0, len(def.Steps)),
	}
	for _, step := range def.Steps {
		detail.Steps = append(detail.Steps, stepDetail{
			ID:           step.ID,
			Subject:      step.Subject,
			Delay:        step.Delay,
			Label:        step.Label,
			CallToAction: step.CallToAction,
		})
	}
	writeJSON(w, http.StatusOK, detail)
}

type triggerRequest struct {
	EntityID string            `json:"entity_id"`
	Bindings map[string]string `json:"bindings"`
}

type triggerResponse struct {
	JobIDs []id.JobID `json:"job_ids"`
}

func (s *Server) triggerSequence(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.EntityID == "" {
		writeError(w, http.StatusBadRequest, errors.New("entity_id is required"))
		return
	}

	jobIDs, err := s.eng.StartSequence(r.Context(), name, req.EntityID, req.Bindings)
	if err != nil {
		if errors.Is(err, cadence.ErrSequenceNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("sequence triggered via api",
		"sequence", name,
		"entity_id", req.EntityID,
		"jobs", len(jobIDs),
	)
	writeJSON(w, http.StatusAccepted, triggerResponse{JobIDs: jobIDs})
}

type sweepResponse struct {
	Processed int `json:"processed"`
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	n, err := s.eng.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Processed: n})
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid numeric parameter: " + raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
