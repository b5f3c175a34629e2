// Package report turns scheduler terminals into the ordered run report and
// renders it for people and machines.
package report

import (
	"github.com/hamed0406/netdiag/internal/domain"
)

// Aggregate builds the report in submission order. A request with no
// terminal is recorded as cancelled with zero attempts. Aggregate has no side
// effects, so calling it twice with the same input yields equal reports.
func Aggregate(requests []domain.ProbeRequest, terminals map[domain.RequestID]domain.Terminal) domain.RunReport {
	entries := make([]domain.Entry, 0, len(requests))
	for _, req := range requests {
		t, ok := terminals[req.ID]
		if !ok {
			t = domain.Terminal{
				Outcome: domain.ProbeOutcome{
					RequestID: req.ID,
					Status:    domain.StatusTimedOut,
					Error:     "not started before run deadline",
				},
				State: domain.StateCancelled,
			}
		}
		entries = append(entries, domain.Entry{
			Request:  req,
			Outcome:  t.Outcome,
			Attempts: t.Attempts,
			State:    t.State,
		})
	}
	return domain.RunReport{Entries: entries, Summary: Summarize(entries)}
}

// Summarize counts entries by final status. An empty batch is all_success.
func Summarize(entries []domain.Entry) domain.Summary {
	s := domain.Summary{Total: len(entries)}
	for _, e := range entries {
		switch e.Outcome.Status {
		case domain.StatusSuccess:
			s.Succeeded++
		case domain.StatusTimedOut:
			s.TimedOut++
		default:
			s.Failed++
		}
		if e.State == domain.StateCancelled {
			s.Cancelled++
		}
	}

	switch {
	case s.Succeeded == s.Total:
		s.Status = domain.RunAllSuccess
	case s.Succeeded == 0:
		s.Status = domain.RunAllFailure
	default:
		s.Status = domain.RunPartialFailure
	}
	return s
}
