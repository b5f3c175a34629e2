package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/hamed0406/netdiag/internal/config"
	"github.com/hamed0406/netdiag/internal/domain"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate the configuration without probing anything.

Every problem is listed, not just the first. Settings that are legal but
probably unintended (an unauthenticated serve API, no notifier) are
printed as warnings.

Exit codes:
  0 - config is valid
  1 - config is invalid (details printed to stderr)

Example:
  netdiag validate -c netdiag.toml
  NETDIAG_TCP=example.com:443 netdiag validate`,
		Args: cobra.NoArgs,
		RunE: a.validate,
	}
}

func (a *app) validate(cmd *cobra.Command, _ []string) error {
	cfg, err := a.load(cmd, nil)
	if err != nil {
		return err
	}

	errs := cfg.Validate()
	reqs, rerr := cfg.Requests()
	errs = multierr.Append(errs, rerr)
	if errs != nil {
		var b strings.Builder
		b.WriteString("invalid config:")
		for _, e := range multierr.Errors(errs) {
			b.WriteString("\n  - " + e.Error())
		}
		return fmt.Errorf("%s", b.String())
	}

	out := cmd.OutOrStdout()
	ok := func(format string, args ...any) { fmt.Fprintf(out, "✔ "+format+"\n", args...) }
	warn := func(msg string) { fmt.Fprintln(out, "⚠ "+msg) }

	ok("config is valid")
	ok("%d probes: %s", len(reqs), kindCounts(reqs))
	ok("concurrency %d, deadline %s, output %s", cfg.Concurrency, cfg.Deadline, cfg.Output)
	if cfg.Repeat != 1 {
		ok("repeat %d every %s", cfg.Repeat, cfg.Interval)
	}
	for _, w := range warnings(cfg) {
		warn(w)
	}
	return nil
}

func kindCounts(reqs []domain.ProbeRequest) string {
	counts := make(map[domain.Kind]int)
	for _, r := range reqs {
		counts[r.Kind]++
	}
	parts := make([]string, 0, len(counts))
	for _, k := range domain.Kinds() {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	return strings.Join(parts, ", ")
}

func warnings(cfg *config.Config) []string {
	var w []string
	if cfg.Deadline == 0 {
		w = append(w, "deadline is 0; a hung target can hold the run open until every retry is spent")
	}
	if cfg.Repeat == 0 {
		w = append(w, "repeat is 0; run keeps going until interrupted")
	}
	if cfg.Notify.SlackWebhook == "" && cfg.Notify.OnSuccess {
		w = append(w, "notify.on_success is set but notify.slack_webhook is empty")
	}
	if len(cfg.Serve.APIKeys) == 0 && len(cfg.Serve.AdminKeys) == 0 {
		w = append(w, "serve.api_keys and serve.admin_keys are empty; serve accepts unauthenticated runs")
	} else if len(cfg.Serve.AdminKeys) == 0 {
		w = append(w, "serve.admin_keys is empty; any api key may start runs")
	}
	if len(cfg.Serve.AllowedOrigins) == 0 {
		w = append(w, "serve.allowed_origins is empty; any origin may call the API")
	}
	return w
}
