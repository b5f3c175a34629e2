package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/netdiag/internal/domain"
)

// Repeater runs the same batch in rounds, like ping -c/-i.
type Repeater struct {
	Logger      *zap.Logger
	Scheduler   *Scheduler
	Count       int // 0 repeats until ctx is cancelled
	Interval    time.Duration
	Concurrency int
	Deadline    time.Duration // per round
}

func NewRepeater(
	logger *zap.Logger,
	s *Scheduler,
	count int,
	interval time.Duration,
	concurrency int,
	deadline time.Duration,
) *Repeater {
	if logger == nil {
		logger = zap.NewNop()
	}
	if count < 0 {
		count = 0
	}
	if interval < 0 {
		interval = 0
	}
	return &Repeater{
		Logger:      logger,
		Scheduler:   s,
		Count:       count,
		Interval:    interval,
		Concurrency: concurrency,
		Deadline:    deadline,
	}
}

// Round is one pass over the batch as handed to the Repeater callback.
type Round struct {
	N      int
	Report domain.RunReport

	// Interrupted is set when ctx ended while the round was running. Such a
	// round is shown but does not count toward the worst status, unless it
	// is the only round there is.
	Interrupted bool
}

// Run does an immediate round, then one per tick, calling onRound after
// each. It returns the worst status over completed rounds and how many
// rounds completed.
func (r *Repeater) Run(ctx context.Context, reqs []domain.ProbeRequest, onRound func(Round)) (domain.RunStatus, int, error) {
	worst := domain.RunAllSuccess
	rounds, completed := 0, 0

	runOnce := func() error {
		rep, err := r.Scheduler.Run(ctx, reqs, r.Concurrency, r.Deadline)
		if err != nil {
			return err
		}
		rounds++
		interrupted := ctx.Err() != nil
		if !interrupted {
			completed++
		}
		if !interrupted || completed == 0 {
			worst = domain.Worse(worst, rep.Summary.Status)
		}
		r.Logger.Debug("repeat_round",
			zap.Int("round", rounds),
			zap.Bool("interrupted", interrupted),
			zap.String("run_status", string(rep.Summary.Status)),
			zap.Int("succeeded", rep.Summary.Succeeded),
			zap.Int("total", rep.Summary.Total),
		)
		if onRound != nil {
			onRound(Round{N: rounds, Report: rep, Interrupted: interrupted})
		}
		return nil
	}

	// immediate pass
	if err := runOnce(); err != nil {
		return worst, completed, err
	}
	if r.Count == 1 {
		return worst, completed, nil
	}

	var tick <-chan time.Time
	if r.Interval > 0 {
		t := time.NewTicker(r.Interval)
		defer t.Stop()
		tick = t.C
	}

	for r.Count == 0 || rounds < r.Count {
		if ctx.Err() != nil {
			r.Logger.Info("repeat_stopped", zap.Int("rounds", completed))
			return worst, completed, nil
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				r.Logger.Info("repeat_stopped", zap.Int("rounds", completed))
				return worst, completed, nil
			case <-tick:
			}
		}
		if err := runOnce(); err != nil {
			return worst, completed, err
		}
	}
	return worst, completed, nil
}
