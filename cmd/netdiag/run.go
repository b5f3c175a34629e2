package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/netdiag/internal/config"
	"github.com/hamed0406/netdiag/internal/domain"
	"github.com/hamed0406/netdiag/internal/logging"
	"github.com/hamed0406/netdiag/internal/notify"
	"github.com/hamed0406/netdiag/internal/probe"
	"github.com/hamed0406/netdiag/internal/report"
	"github.com/hamed0406/netdiag/internal/scheduler"
)

var runKeys = map[string]string{
	"tcp":         "tcp",
	"udp":         "udp",
	"dns":         "dns",
	"iface":       "iface",
	"http":        "http",
	"concurrency": "concurrency",
	"deadline":    "deadline",
	"output":      "output",
	"repeat":      "repeat",
	"interval":    "interval",
	"resolver":    "resolver",
	"timeout":     "defaults.timeout",
	"retries":     "defaults.retries",
	"backoff":     "defaults.backoff",
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured probes and print a report",
		Long: `Run every probe from the config file plus the shorthand flags, at most
--concurrency at a time, and print one report in submission order.

With --repeat other than 1 the batch runs again every --interval and a
per-target loss and latency summary is printed at the end. --repeat 0
keeps going until interrupted.

Example:
  netdiag run --tcp example.com:443,example.org:80 --dns example.com
  netdiag run --udp 10.0.0.1:53 --iface all -o json
  netdiag run -c netdiag.toml --repeat 5 --interval 2s`,
		Args: cobra.NoArgs,
		RunE: a.runProbes,
	}

	f := cmd.Flags()
	f.StringSlice("tcp", nil, "tcp_connect targets (host:port)")
	f.StringSlice("udp", nil, "udp_ping targets (host:port)")
	f.StringSlice("dns", nil, "dns_resolve names")
	f.StringSlice("iface", nil, "interface_list names, or all")
	f.StringSlice("http", nil, "http_get URLs")
	f.IntP("concurrency", "n", 8, "probes in flight at once")
	f.Duration("deadline", 30*time.Second, "deadline for the whole run, 0 disables")
	f.StringP("output", "o", string(report.FormatTable), "output format: table, json, yaml")
	f.Int("repeat", 1, "rounds to run, 0 repeats until interrupted")
	f.Duration("interval", time.Second, "pause between rounds")
	f.String("resolver", "", "DNS server (host:port) for dns_resolve")
	f.Duration("timeout", 2*time.Second, "default per-attempt timeout")
	f.Int("retries", 2, "default retries after the first attempt")
	f.Duration("backoff", 200*time.Millisecond, "default backoff base")
	return cmd
}

// roundTimer records how long the last scheduler run took so each round can
// be stamped with its own start time.
type roundTimer struct {
	scheduler.EventSink
	elapsed time.Duration
}

func (t *roundTimer) RunFinished(rep domain.RunReport, elapsed time.Duration) {
	t.elapsed = elapsed
	t.EventSink.RunFinished(rep, elapsed)
}

func (a *app) runProbes(cmd *cobra.Command, _ []string) error {
	cfg, err := a.load(cmd, runKeys)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	reqs, err := cfg.Requests()
	if err != nil {
		return fmt.Errorf("invalid probes: %w", err)
	}
	format, err := report.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}

	logger, err := a.logger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	timer := &roundTimer{EventSink: logging.NewTracer(logger, runID)}
	sched := scheduler.New(
		probe.NewRegistry(probe.Config{Resolver: cfg.Resolver}),
		scheduler.WithSink(timer),
		scheduler.WithBackoffCap(cfg.Defaults.BackoffCap),
	)
	rep := scheduler.NewRepeater(logger, sched, cfg.Repeat, cfg.Interval, cfg.Concurrency, cfg.Deadline)
	notifier := newRunNotifier(cfg.Notify)
	repeating := cfg.Repeat != 1

	logger.Info("run_start",
		zap.String("run_id", runID),
		zap.Int("probes", len(reqs)),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Duration("deadline", cfg.Deadline),
		zap.Int("repeat", cfg.Repeat),
	)

	var (
		reports   []domain.RunReport
		cut       []domain.RunReport
		renderErr error
		last      domain.RunStatus
	)
	out := cmd.OutOrStdout()
	worst, rounds, err := rep.Run(ctx, reqs, func(rd scheduler.Round) {
		r := rd.Report
		if rd.Interrupted {
			cut = append(cut, r)
		} else {
			reports = append(reports, r)
		}

		if repeating {
			switch format {
			case report.FormatTable:
				if rd.Interrupted {
					fmt.Fprintf(out, "round %d (interrupted)\n", rd.N)
				} else {
					fmt.Fprintf(out, "round %d\n", rd.N)
				}
			case report.FormatYAML:
				if rd.N > 1 {
					fmt.Fprintln(out, "---")
				}
			}
		}
		if err := report.Render(out, format, r); err != nil && renderErr == nil {
			renderErr = err
		}

		// Only status changes are worth a message while repeating. A round
		// cut short by Ctrl-C says nothing about the targets.
		if rd.Interrupted && rd.N > 1 {
			return
		}
		if rd.N == 1 || r.Summary.Status != last {
			finished := time.Now().UTC()
			run := domain.Run{
				ID:         roundID(runID, rd.N, repeating),
				StartedAt:  finished.Add(-timer.elapsed),
				FinishedAt: finished,
				Report:     r,
			}
			notifyRun(ctx, logger, notifier, run)
		}
		last = r.Summary.Status
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if renderErr != nil {
		return fmt.Errorf("render: %w", renderErr)
	}

	if len(reports) == 0 {
		reports = cut
	}
	if repeating && format == report.FormatTable && len(reports) > 0 {
		fmt.Fprintln(out)
		if err := report.RenderStats(out, report.Stats(reports)); err != nil {
			return fmt.Errorf("render: %w", err)
		}
	}

	logger.Info("run_done",
		zap.String("run_id", runID),
		zap.Int("rounds", rounds),
		zap.String("run_status", string(worst)),
	)
	if code := worst.ExitCode(); code != domain.ExitAllSuccess {
		return &exitError{code: code}
	}
	return nil
}

func roundID(runID string, round int, repeating bool) string {
	if !repeating {
		return runID
	}
	return runID + "-" + strconv.Itoa(round)
}

// newRunNotifier returns nil when no webhook is configured.
func newRunNotifier(n config.Notify) *notify.RunNotifier {
	slack := notify.NewSlack(n.SlackWebhook)
	if slack == nil {
		return nil
	}
	return &notify.RunNotifier{Notifier: slack, OnSuccess: n.OnSuccess}
}

func notifyRun(ctx context.Context, logger *zap.Logger, n *notify.RunNotifier, run domain.Run) {
	// A cancelled run still gets reported.
	ctx = context.WithoutCancel(ctx)
	sent, err := n.Notify(ctx, run)
	if err != nil {
		logger.Warn("run_notify_error", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	if sent {
		logger.Info("run_notified", zap.String("run_id", run.ID))
	}
}
