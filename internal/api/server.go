package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"report-scheduler/internal/jobhistory"
	"report-scheduler/internal/notify"
	"report-scheduler/internal/scheduler"
	"report-scheduler/internal/store"
	"report-scheduler/internal/telemetry"
)

// Jobs is the part of the scheduler the admin surface drives.
type Jobs interface {
	Jobs() []scheduler.JobInfo
	RunNow(ctx context.Context, name string) error
}

// Limiter guards manual job runs.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// Server wires HTTP handlers for the admin API.
type Server struct {
	jobs    Jobs
	history jobhistory.Claimer
	queries store.Queries
	limiter Limiter
	logger  *zap.Logger
}

// New constructs the admin server. limiter may be nil.
func New(jobs Jobs, history jobhistory.Claimer, q store.Queries, limiter Limiter, logger *zap.Logger) *Server {
	return &Server{
		jobs:    jobs,
		history: history,
		queries: q,
		limiter: limiter,
		logger:  logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/jobs", s.handleListJobs)
	r.Post("/jobs/{name}/run", s.handleRunJob)
	r.Get("/outbox", s.handleOutbox)
	r.Get("/mart/imports", s.handleMartImports)
	return r
}

type jobView struct {
	Name      string     `json:"name"`
	Interval  string     `json:"interval"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	history, err := s.history.History(r.Context())
	if err != nil {
		s.logger.Error("load job history", zap.Error(err))
		http.Error(w, "failed to load job history", http.StatusInternalServerError)
		return
	}
	lastRun := make(map[string]time.Time, len(history))
	for _, h := range history {
		lastRun[h.JobName] = h.LastRunAt
	}

	jobs := s.jobs.Jobs()
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		v := jobView{Name: j.Name, Interval: j.Interval.String()}
		if t, ok := lastRun[j.Name]; ok {
			v.LastRunAt = &t
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), fmt.Sprintf("rl:admin:%s", name))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	start := time.Now()
	err := s.jobs.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "failed", "error": err.Error()})
		return
	}
	s.logger.Info("manual job run", zap.String("job", name), zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "took": time.Since(start).String()})
}

type outboxItem struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	ToAddresses []string  `json:"to_addresses"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	count, err := s.queries.CountOutboxEmails(r.Context())
	if err != nil {
		http.Error(w, "failed to count outbox", http.StatusInternalServerError)
		return
	}
	emails, err := s.queries.PendingOutboxEmails(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to read outbox", http.StatusInternalServerError)
		return
	}
	items := make([]outboxItem, 0, len(emails))
	for _, e := range emails {
		kind := "unknown"
		if a, err := notify.Unmarshal(e.Action); err == nil {
			kind = string(a.Kind())
		}
		items = append(items, outboxItem{ID: e.ID, Kind: kind, ToAddresses: e.ToAddresses, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": count, "items": items})
}

func (s *Server) handleMartImports(w http.ResponseWriter, r *http.Request) {
	records, err := s.queries.ListMartImportedReports(r.Context(), queryLimit(r, 100))
	if err != nil {
		http.Error(w, "failed to read imports", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func queryLimit(r *http.Request, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || v <= 0 {
		return def
	}
	if v > 1000 {
		return 1000
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
