package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/netdiag/internal/config"
	"github.com/hamed0406/netdiag/internal/domain"
	apimw "github.com/hamed0406/netdiag/internal/httpapi/middleware"
	"github.com/hamed0406/netdiag/internal/logging"
	"github.com/hamed0406/netdiag/internal/notify"
	"github.com/hamed0406/netdiag/internal/probe"
	"github.com/hamed0406/netdiag/internal/repo"
	"github.com/hamed0406/netdiag/internal/scheduler"
)

const (
	maxBodyBytes    = 1 << 20
	maxConcurrency  = 64
	defaultListSize = 20
)

type Server struct {
	Logger   *zap.Logger
	Runs     repo.RunStore
	Prober   probe.Prober
	Notifier *notify.RunNotifier

	Defaults    config.Defaults
	Concurrency int
	Deadline    time.Duration // default and upper bound for a submitted run
}

func NewServer(l *zap.Logger, runs repo.RunStore, p probe.Prober, cfg *config.Config) *Server {
	return &Server{
		Logger:      l,
		Runs:        runs,
		Prober:      p,
		Defaults:    cfg.Defaults,
		Concurrency: cfg.Concurrency,
		Deadline:    cfg.Deadline,
	}
}

func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, rpm, burst int) http.Handler {
	r := chi.NewRouter()
	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(rpm, burst))
		r.Use(apimw.RequireAny(keys))

		r.Get("/kinds", s.handleKinds)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.With(apimw.RequireAdmin(keys)).Post("/runs", s.handleCreateRun)
	})
	return r
}

// probePayload mirrors a [[probe]] table, with durations as strings ("2s").
type probePayload struct {
	Kind    string            `json:"kind"`
	Target  string            `json:"target"`
	Timeout string            `json:"timeout,omitempty"`
	Retries *int              `json:"retries,omitempty"`
	Backoff string            `json:"backoff,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

type runPayload struct {
	Probes      []probePayload `json:"probes"`
	Concurrency int            `json:"concurrency,omitempty"`
	Deadline    string         `json:"deadline,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var p runPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	probes, deadline, err := s.parse(p)
	if err != nil {
		writeErrors(w, err)
		return
	}
	reqs, err := config.BuildRequests(probes, s.Defaults)
	if err != nil {
		writeErrors(w, err)
		return
	}

	concurrency := s.Concurrency
	if p.Concurrency > 0 {
		concurrency = min(p.Concurrency, maxConcurrency)
	}

	run := domain.Run{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	sched := scheduler.New(s.Prober,
		scheduler.WithSink(logging.NewTracer(s.Logger, run.ID)),
		scheduler.WithBackoffCap(s.Defaults.BackoffCap),
	)
	rep, err := sched.Run(r.Context(), reqs, concurrency, deadline)
	if err != nil {
		s.Logger.Error("run_start_error", zap.String("run_id", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start run")
		return
	}
	run.FinishedAt = time.Now().UTC()
	run.Report = rep

	if err := s.Runs.Add(r.Context(), run); err != nil {
		s.Logger.Warn("run_store_error", zap.String("run_id", run.ID), zap.Error(err))
	}
	if _, err := s.Notifier.Notify(r.Context(), run); err != nil {
		s.Logger.Warn("run_notify_error", zap.String("run_id", run.ID), zap.Error(err))
	}

	s.Logger.Info("run_created",
		zap.String("run_id", run.ID),
		zap.Int("probes", len(reqs)),
		zap.String("run_status", string(rep.Summary.Status)),
	)
	writeJSON(w, http.StatusCreated, run)
}

// parse converts the payload into probe definitions and the effective run
// deadline, which never exceeds the server's own.
func (s *Server) parse(p runPayload) ([]config.Probe, time.Duration, error) {
	var errs error
	dur := func(field, v string) time.Duration {
		if v == "" {
			return 0
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = multierr.Append(errs, errors.New(field+": "+err.Error()))
		}
		return d
	}

	probes := make([]config.Probe, 0, len(p.Probes))
	for i, pp := range p.Probes {
		prefix := "probes[" + strconv.Itoa(i) + "]"
		probes = append(probes, config.Probe{
			Kind:    pp.Kind,
			Target:  pp.Target,
			Timeout: dur(prefix+".timeout", pp.Timeout),
			Retries: pp.Retries,
			Backoff: dur(prefix+".backoff", pp.Backoff),
			Params:  pp.Params,
		})
	}

	deadline := s.Deadline
	if d := dur("deadline", p.Deadline); d > 0 && (s.Deadline <= 0 || d < s.Deadline) {
		deadline = d
	}
	return probes, deadline, errs
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.Runs.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}

	type runSummary struct {
		ID         string         `json:"id"`
		StartedAt  time.Time      `json:"started_at"`
		FinishedAt time.Time      `json:"finished_at"`
		Summary    domain.Summary `json:"summary"`
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary{run.ID, run.StartedAt, run.FinishedAt, run.Report.Summary})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Runs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"kinds":       domain.Kinds(),
		"dns_records": probe.RecordTypes,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeErrors reports every validation problem at once.
func writeErrors(w http.ResponseWriter, err error) {
	list := multierr.Errors(err)
	msgs := make([]string, 0, len(list))
	for _, e := range list {
		msgs = append(msgs, e.Error())
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid run", "problems": msgs})
}
