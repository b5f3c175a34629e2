package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/netdiag/internal/domain"
)

// Message is one run notification. Status lets a channel pick a colour or
// priority.
type Message struct {
	Title  string
	Text   string
	Status domain.RunStatus
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Multi fans a message out to every notifier and returns all failures.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, msg))
	}
	return err
}

// maxListed bounds the problem lines in one message.
const maxListed = 20

// RunNotifier turns finished runs into messages. Runs where every probe
// succeeded are skipped unless OnSuccess is set.
type RunNotifier struct {
	Notifier  Notifier
	OnSuccess bool
}

// Notify reports whether a message was sent.
func (r *RunNotifier) Notify(ctx context.Context, run domain.Run) (bool, error) {
	if r == nil || r.Notifier == nil {
		return false, nil
	}
	s := run.Report.Summary
	if s.Status == domain.RunAllSuccess && !r.OnSuccess {
		return false, nil
	}
	msg := Message{
		Title:  fmt.Sprintf("netdiag %s: %d/%d probes succeeded", s.Status, s.Succeeded, s.Total),
		Text:   Describe(run),
		Status: s.Status,
	}
	if err := r.Notifier.Send(ctx, msg); err != nil {
		return false, fmt.Errorf("notify run %s: %w", run.ID, err)
	}
	return true, nil
}

// Describe lists the probes that did not succeed, one per line.
func Describe(run domain.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s finished %s\n", run.ID, run.FinishedAt.UTC().Format("2006-01-02T15:04:05Z"))
	listed := 0
	for _, e := range run.Report.Entries {
		if e.Outcome.Succeeded() {
			continue
		}
		if listed == maxListed {
			fmt.Fprintf(&b, "... and %d more\n", run.Report.Summary.Total-run.Report.Summary.Succeeded-listed)
			break
		}
		listed++
		status := e.Outcome.Status.String()
		if e.Outcome.Failure != domain.FailureNone {
			status += " (" + string(e.Outcome.Failure) + ")"
		}
		fmt.Fprintf(&b, "• %s %s %s: %s after %d attempt(s)\n", e.Request.ID, e.Request.Kind, e.Request.Target, status, e.Attempts)
	}
	return strings.TrimRight(b.String(), "\n")
}
