package scheduler

import (
	"time"

	"github.com/hamed0406/netdiag/internal/domain"
)

// EventSink receives trace events from a run. Calls arrive from many
// goroutines at once, so implementations must be safe for concurrent use.
type EventSink interface {
	AttemptStarted(req domain.ProbeRequest, attempt int)
	AttemptFinished(req domain.ProbeRequest, out domain.ProbeOutcome)
	RetryScheduled(req domain.ProbeRequest, nextAttempt int, wait time.Duration)
	RunFinished(report domain.RunReport, elapsed time.Duration)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) AttemptStarted(domain.ProbeRequest, int)                  {}
func (NopSink) AttemptFinished(domain.ProbeRequest, domain.ProbeOutcome) {}
func (NopSink) RetryScheduled(domain.ProbeRequest, int, time.Duration)   {}
func (NopSink) RunFinished(domain.RunReport, time.Duration)              {}
