package logging

import (
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/netdiag/internal/domain"
)

// Tracer writes scheduler events as structured log entries.
type Tracer struct {
	log *zap.Logger
}

// NewTracer tags every event with runID when it is not empty.
func NewTracer(log *zap.Logger, runID string) *Tracer {
	if log == nil {
		log = zap.NewNop()
	}
	if runID != "" {
		log = log.With(zap.String("run_id", runID))
	}
	return &Tracer{log: log}
}

func (t *Tracer) AttemptStarted(req domain.ProbeRequest, attempt int) {
	t.log.Info("probe_attempt_start",
		zap.String("request_id", string(req.ID)),
		zap.String("kind", string(req.Kind)),
		zap.String("target", req.Target),
		zap.Int("attempt", attempt),
	)
}

func (t *Tracer) AttemptFinished(req domain.ProbeRequest, out domain.ProbeOutcome) {
	fields := []zap.Field{
		zap.String("request_id", string(req.ID)),
		zap.String("kind", string(req.Kind)),
		zap.String("target", req.Target),
		zap.Int("attempt", out.Attempt),
		zap.String("status", out.Status.String()),
		zap.Float64("latency_ms", out.LatencyMS()),
	}
	if out.Failure != domain.FailureNone {
		fields = append(fields, zap.String("failure", string(out.Failure)))
	}
	if out.Error != "" {
		fields = append(fields, zap.String("error", out.Error))
	}

	switch {
	case out.Failure == domain.FailureInternal:
		t.log.Error("probe_attempt_end", fields...)
	case out.Succeeded():
		t.log.Info("probe_attempt_end", fields...)
	default:
		t.log.Warn("probe_attempt_end", fields...)
	}
}

func (t *Tracer) RetryScheduled(req domain.ProbeRequest, nextAttempt int, wait time.Duration) {
	t.log.Info("probe_retry",
		zap.String("request_id", string(req.ID)),
		zap.Int("next_attempt", nextAttempt),
		zap.Duration("backoff", wait),
	)
}

func (t *Tracer) RunFinished(rep domain.RunReport, elapsed time.Duration) {
	s := rep.Summary
	t.log.Info("run_summary",
		zap.Int("total", s.Total),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Int("timed_out", s.TimedOut),
		zap.Int("cancelled", s.Cancelled),
		zap.String("run_status", string(s.Status)),
		zap.Duration("elapsed", elapsed),
	)
}
