// Package scheduler runs a batch of probe requests under a concurrency cap
// and a run deadline, applying the retry policy to each request.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/netdiag/internal/domain"
	"github.com/hamed0406/netdiag/internal/probe"
	"github.com/hamed0406/netdiag/internal/report"
	"github.com/hamed0406/netdiag/internal/retry"
)

const defaultGrace = 250 * time.Millisecond

var (
	ErrNilProber   = errors.New("scheduler: nil prober")
	ErrDuplicateID = errors.New("scheduler: duplicate request id")
)

type Scheduler struct {
	prober     probe.Prober
	sink       EventSink
	clock      Clock
	backoffCap time.Duration
	grace      time.Duration
}

type Option func(*Scheduler)

func WithSink(s EventSink) Option {
	return func(sc *Scheduler) {
		if s != nil {
			sc.sink = s
		}
	}
}

func WithClock(c Clock) Option {
	return func(sc *Scheduler) {
		if c != nil {
			sc.clock = c
		}
	}
}

// WithBackoffCap bounds every backoff wait. Zero leaves waits uncapped.
func WithBackoffCap(d time.Duration) Option {
	return func(sc *Scheduler) { sc.backoffCap = d }
}

// WithGrace sets how long Run waits for in-flight requests to wind down once
// the run deadline has passed.
func WithGrace(d time.Duration) Option {
	return func(sc *Scheduler) {
		if d >= 0 {
			sc.grace = d
		}
	}
}

func New(p probe.Prober, opts ...Option) *Scheduler {
	s := &Scheduler{
		prober: p,
		sink:   NopSink{},
		clock:  realClock{},
		grace:  defaultGrace,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// tracker is shared between a request's goroutine and the collector.
type tracker struct {
	started atomic.Int32
}

type finished struct {
	index    int
	terminal domain.Terminal
}

// Run executes every request and returns exactly one report entry per
// request, in submission order. At most maxConcurrency requests hold a slot
// at once; a slot is held for a request's whole attempt sequence. When
// deadline (or ctx) expires, unfinished requests are cancelled and recorded
// as timed out. An error is returned only when the batch cannot start.
func (s *Scheduler) Run(ctx context.Context, reqs []domain.ProbeRequest, maxConcurrency int, deadline time.Duration) (domain.RunReport, error) {
	if s.prober == nil {
		return domain.RunReport{}, ErrNilProber
	}
	seen := make(map[domain.RequestID]struct{}, len(reqs))
	for _, r := range reqs {
		if _, dup := seen[r.ID]; dup {
			return domain.RunReport{}, fmt.Errorf("%w: %q", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	start := s.clock.Now()
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	trackers := make([]*tracker, len(reqs))
	for i := range trackers {
		trackers[i] = &tracker{}
	}

	// Buffered to len(reqs) so goroutines still running after Run returns
	// never block on send.
	done := make(chan finished, len(reqs))
	sem := make(chan struct{}, maxConcurrency)
	var admitted atomic.Int32
	admitterDone := make(chan struct{})

	go func() {
		defer close(admitterDone)
		for i := range reqs {
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				return
			}
			if runCtx.Err() != nil {
				<-sem
				return
			}
			admitted.Add(1)
			go func(i int) {
				defer func() { <-sem }()
				done <- finished{index: i, terminal: s.runRequest(runCtx, reqs[i], trackers[i])}
			}(i)
		}
	}()

	terminals := make(map[domain.RequestID]domain.Terminal, len(reqs))
	collect := func(f finished) {
		terminals[reqs[f.index].ID] = f.terminal
	}

	for len(terminals) < len(reqs) && runCtx.Err() == nil {
		select {
		case f := <-done:
			collect(f)
		case <-runCtx.Done():
		}
	}

	if len(terminals) < len(reqs) {
		<-admitterDone
		grace := time.NewTimer(s.grace)
	wait:
		for len(terminals) < int(admitted.Load()) {
			select {
			case f := <-done:
				collect(f)
			case <-grace.C:
				break wait
			}
		}
		grace.Stop()

		reason := runCtx.Err()
		for i, r := range reqs {
			if _, ok := terminals[r.ID]; ok {
				continue
			}
			n := int(trackers[i].started.Load())
			if n == 0 {
				// never admitted; the aggregator records it
				continue
			}
			terminals[r.ID] = cancelledTerminal(r, nil, n, reason)
		}
	}

	rep := report.Aggregate(reqs, terminals)
	s.sink.RunFinished(rep, s.clock.Now().Sub(start))
	return rep, nil
}

// runRequest drives one request through the attempt/backoff state machine.
func (s *Scheduler) runRequest(ctx context.Context, req domain.ProbeRequest, tr *tracker) domain.Terminal {
	policy := retry.ForRequest(req, s.backoffCap)
	var history []domain.ProbeOutcome

	action := policy.Next(history)
	for {
		next := len(history) + 1
		if action.After > 0 {
			s.sink.RetryScheduled(req, next, action.After)
			select {
			case <-s.clock.After(action.After):
			case <-ctx.Done():
				return cancelledTerminal(req, history, len(history), ctx.Err())
			}
		}
		if ctx.Err() != nil {
			return cancelledTerminal(req, history, len(history), ctx.Err())
		}

		tr.started.Store(int32(next))
		s.sink.AttemptStarted(req, next)
		out := s.attempt(ctx, req, next)
		s.sink.AttemptFinished(req, out)
		history = append(history, out)

		if !out.Succeeded() && ctx.Err() != nil {
			return cancelledTerminal(req, history, next, ctx.Err())
		}

		action = policy.Next(history)
		if !action.Retry {
			state := domain.StateStoppedFailure
			if action.Final.Succeeded() {
				state = domain.StateSucceeded
			}
			return domain.Terminal{Outcome: action.Final, Attempts: next, State: state}
		}
	}
}

// attempt runs the prober once. A panic is confined to this request and
// becomes a terminal internal failure tagged with an incident id.
func (s *Scheduler) attempt(ctx context.Context, req domain.ProbeRequest, n int) (out domain.ProbeOutcome) {
	started := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			out = domain.ProbeOutcome{
				Status:    domain.StatusFailure,
				Failure:   domain.FailureInternal,
				Error:     fmt.Sprintf("prober panic (incident %s): %v", uuid.NewString(), r),
				StartedAt: started,
				Latency:   s.clock.Now().Sub(started),
			}
		}
		out.RequestID = req.ID
		out.Attempt = n
	}()

	// Each attempt gets its own budget; the run context still caps the
	// whole request.
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	return s.prober.Execute(ctx, req, n)
}

func cancelledTerminal(req domain.ProbeRequest, history []domain.ProbeOutcome, attempts int, reason error) domain.Terminal {
	out := domain.ProbeOutcome{RequestID: req.ID, Attempt: attempts}
	if len(history) > 0 {
		out = history[len(history)-1]
	}
	out.Status = domain.StatusTimedOut
	out.Failure = domain.FailureNone
	if reason != nil {
		out.Error = "cancelled: " + reason.Error()
	} else {
		out.Error = "cancelled"
	}
	return domain.Terminal{Outcome: out, Attempts: attempts, State: domain.StateCancelled}
}
