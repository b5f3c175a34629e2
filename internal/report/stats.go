package report

import (
	"time"

	"github.com/hamed0406/netdiag/internal/domain"
)

// TargetStats summarizes one destination of a request across repeated
// rounds. Dial kinds get one row per resolved address; other kinds and
// rounds that never reached an address land on a row with no destination.
type TargetStats struct {
	ID          domain.RequestID `json:"id" yaml:"id"`
	Kind        domain.Kind      `json:"kind" yaml:"kind"`
	Target      string           `json:"target" yaml:"target"`
	Destination string           `json:"destination,omitempty" yaml:"destination,omitempty"`
	Sent        int              `json:"sent" yaml:"sent"`
	Received    int              `json:"received" yaml:"received"`
	Loss        float64          `json:"loss_percent" yaml:"loss_percent"`
	Min         time.Duration    `json:"min" yaml:"min"`
	Avg         time.Duration    `json:"avg" yaml:"avg"`
	Max         time.Duration    `json:"max" yaml:"max"`

	total time.Duration
}

type statsKey struct {
	id   domain.RequestID
	dest string
}

func (s *TargetStats) add(ok bool, lat time.Duration) {
	s.Sent++
	if !ok {
		return
	}
	s.Received++
	s.total += lat
	if s.Received == 1 || lat < s.Min {
		s.Min = lat
	}
	if lat > s.Max {
		s.Max = lat
	}
}

// Stats folds a series of reports for the same batch into per-destination
// counters. A round counts as sent once the request had at least one attempt;
// latency figures only cover successful rounds.
func Stats(reports []domain.RunReport) []TargetStats {
	var out []TargetStats
	index := make(map[statsKey]int)
	row := func(e domain.Entry, dest string) *TargetStats {
		k := statsKey{e.Request.ID, dest}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, TargetStats{ID: e.Request.ID, Kind: e.Request.Kind, Target: e.Request.Target, Destination: dest})
		}
		return &out[i]
	}

	for _, r := range reports {
		for _, e := range r.Entries {
			addrs := e.Outcome.Detail.Addresses
			switch {
			case e.Attempts == 0:
				row(e, "")
			case len(addrs) == 0:
				row(e, "").add(e.Outcome.Succeeded(), e.Outcome.Latency)
			default:
				for _, a := range addrs {
					row(e, a.Address).add(a.Status == domain.StatusSuccess, a.Latency)
				}
			}
		}
	}

	// Drop placeholder rows left by unstarted rounds once the request has
	// real destinations.
	hasDest := make(map[domain.RequestID]bool)
	for _, s := range out {
		if s.Destination != "" {
			hasDest[s.ID] = true
		}
	}
	kept := out[:0]
	for _, s := range out {
		if s.Destination == "" && s.Sent == 0 && hasDest[s.ID] {
			continue
		}
		if s.Received > 0 {
			s.Avg = s.total / time.Duration(s.Received)
		}
		if s.Sent > 0 {
			s.Loss = float64(s.Sent-s.Received) / float64(s.Sent) * 100
		}
		s.total = 0
		kept = append(kept, s)
	}
	return kept
}
