package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/netdiag/internal/domain"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

func Formats() []Format { return []Format{FormatTable, FormatJSON, FormatYAML} }

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// entryView is the flattened, unit-explicit shape shared by json and yaml.
type entryView struct {
	ID          domain.RequestID       `json:"id" yaml:"id"`
	Kind        domain.Kind            `json:"kind" yaml:"kind"`
	Target      string                 `json:"target" yaml:"target"`
	Status      string                 `json:"status" yaml:"status"`
	Failure     domain.FailureKind     `json:"failure,omitempty" yaml:"failure,omitempty"`
	Error       string                 `json:"error,omitempty" yaml:"error,omitempty"`
	State       domain.State           `json:"state" yaml:"state"`
	Attempts    int                    `json:"attempts" yaml:"attempts"`
	LatencyMS   float64                `json:"latency_ms" yaml:"latency_ms"`
	Source      string                 `json:"source,omitempty" yaml:"source,omitempty"`
	Destination string                 `json:"destination,omitempty" yaml:"destination,omitempty"`
	Addresses   []addressView          `json:"addresses,omitempty" yaml:"addresses,omitempty"`
	Records     []string               `json:"records,omitempty" yaml:"records,omitempty"`
	StatusCode  int                    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Interfaces  []domain.InterfaceInfo `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
}

type addressView struct {
	Address   string             `json:"address" yaml:"address"`
	Source    string             `json:"source,omitempty" yaml:"source,omitempty"`
	Status    string             `json:"status" yaml:"status"`
	Failure   domain.FailureKind `json:"failure,omitempty" yaml:"failure,omitempty"`
	Error     string             `json:"error,omitempty" yaml:"error,omitempty"`
	LatencyMS float64            `json:"latency_ms" yaml:"latency_ms"`
}

func addressViews(in []domain.AddressResult) []addressView {
	if len(in) == 0 {
		return nil
	}
	out := make([]addressView, 0, len(in))
	for _, a := range in {
		out = append(out, addressView{
			Address:   a.Address,
			Source:    a.Source,
			Status:    a.Status.String(),
			Failure:   a.Failure,
			Error:     a.Error,
			LatencyMS: round2(float64(a.Latency) / float64(time.Millisecond)),
		})
	}
	return out
}

type reportView struct {
	Entries []entryView    `json:"entries" yaml:"entries"`
	Summary domain.Summary `json:"summary" yaml:"summary"`
}

func view(r domain.RunReport) reportView {
	v := reportView{Entries: make([]entryView, 0, len(r.Entries)), Summary: r.Summary}
	for _, e := range r.Entries {
		o := e.Outcome
		v.Entries = append(v.Entries, entryView{
			ID:          e.Request.ID,
			Kind:        e.Request.Kind,
			Target:      e.Request.Target,
			Status:      o.Status.String(),
			Failure:     o.Failure,
			Error:       o.Error,
			State:       e.State,
			Attempts:    e.Attempts,
			LatencyMS:   round2(o.LatencyMS()),
			Source:      o.Detail.Source,
			Destination: o.Detail.Destination,
			Addresses:   addressViews(o.Detail.Addresses),
			Records:     o.Detail.Records,
			StatusCode:  o.Detail.StatusCode,
			Interfaces:  o.Detail.Interfaces,
		})
	}
	return v
}

// Render writes the report in the requested format.
func Render(w io.Writer, f Format, r domain.RunReport) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view(r))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view(r)); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable, "":
		return renderTable(w, r)
	default:
		return fmt.Errorf("unknown output format %q", f)
	}
}

func renderTable(w io.Writer, r domain.RunReport) error {
	if len(r.Entries) > 0 {
		data := pterm.TableData{{"ID", "KIND", "TARGET", "STATUS", "ATTEMPTS", "LATENCY", "DETAIL"}}
		for _, e := range r.Entries {
			data = append(data, []string{
				string(e.Request.ID),
				string(e.Request.Kind),
				e.Request.Target,
				statusText(e),
				strconv.Itoa(e.Attempts),
				fmt.Sprintf("%.2fms", e.Outcome.LatencyMS()),
				detailText(e.Outcome),
			})
		}
		s, err := pterm.DefaultTable.WithHasHeader(true).WithData(data).Srender()
		if err != nil {
			return fmt.Errorf("render table: %w", err)
		}
		if _, err := fmt.Fprintln(w, s); err != nil {
			return err
		}
	}

	sum := r.Summary
	_, err := fmt.Fprintf(w, "%d probes: %d succeeded, %d failed, %d timed out (%d cancelled) => %s\n",
		sum.Total, sum.Succeeded, sum.Failed, sum.TimedOut, sum.Cancelled, sum.Status)
	return err
}

// RenderStats writes the per-target summary of a repeated run.
func RenderStats(w io.Writer, stats []TargetStats) error {
	if len(stats) == 0 {
		return nil
	}
	data := pterm.TableData{{"ID", "TARGET", "DESTINATION", "SENT", "RECEIVED", "LOSS", "MIN", "AVG", "MAX"}}
	for _, s := range stats {
		dest := s.Destination
		if dest == "" {
			dest = "-"
		}
		data = append(data, []string{
			string(s.ID),
			s.Target,
			dest,
			strconv.Itoa(s.Sent),
			strconv.Itoa(s.Received),
			fmt.Sprintf("%.1f%%", s.Loss),
			ms(s.Min),
			ms(s.Avg),
			ms(s.Max),
		})
	}
	out, err := pterm.DefaultTable.WithHasHeader(true).WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render stats: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func statusText(e domain.Entry) string {
	s := e.Outcome.Status.String()
	if e.Outcome.Failure != domain.FailureNone {
		s += " (" + string(e.Outcome.Failure) + ")"
	}
	if e.State == domain.StateCancelled {
		s += " [cancelled]"
	}
	return s
}

func detailText(o domain.ProbeOutcome) string {
	text := outcomeText(o)
	if n := len(o.Detail.Addresses); n > 1 {
		ok := 0
		for _, a := range o.Detail.Addresses {
			if a.Status == domain.StatusSuccess {
				ok++
			}
		}
		text += fmt.Sprintf(" [%d/%d addresses ok]", ok, n)
	}
	return text
}

func outcomeText(o domain.ProbeOutcome) string {
	if !o.Succeeded() {
		return o.Error
	}
	d := o.Detail
	switch {
	case len(d.Interfaces) > 0:
		parts := make([]string, 0, len(d.Interfaces))
		for _, i := range d.Interfaces {
			if len(i.Addrs) > 0 {
				parts = append(parts, i.Name+" "+strings.Join(i.Addrs, ","))
			} else {
				parts = append(parts, i.Name)
			}
		}
		return strings.Join(parts, "; ")
	case d.StatusCode != 0:
		return "HTTP " + strconv.Itoa(d.StatusCode)
	case len(d.Records) > 0:
		return strings.Join(d.Records, ", ")
	case d.Source != "" || d.Destination != "":
		return d.Source + " -> " + d.Destination
	}
	return ""
}

func ms(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
