// Package main is the entry point for the netdiag CLI.
//
// Usage:
//
//	netdiag run --tcp example.com:443 --dns example.com   # probe and report
//	netdiag run -c netdiag.toml --repeat 0 --interval 5s  # keep probing until Ctrl-C
//	netdiag validate -c netdiag.toml                      # check a config file
//	netdiag serve -c netdiag.toml                         # HTTP API for on-demand runs
//	netdiag version
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hamed0406/netdiag/internal/config"
	"github.com/hamed0406/netdiag/internal/domain"
	"github.com/hamed0406/netdiag/internal/logging"
)

// exitError carries a process exit code without an error message, used when
// a run completes but not every probe succeeded.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "exit status " + strconv.Itoa(e.code) }

// app holds what every subcommand shares: one viper instance and the
// output streams.
type app struct {
	v       *viper.Viper
	cfgFile string
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: config.NewViper(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "netdiag",
		Short: "Concurrent network diagnostics",
		Long: `netdiag runs connectivity probes (TCP connect, UDP ping, DNS resolution,
local interface listing and HTTP GET) concurrently, with per-probe timeouts
and retries, and prints one ordered report.

Exit codes:
  0 - every probe succeeded
  1 - netdiag could not run (bad flags or config)
  2 - some probes failed
  3 - every probe failed

Every setting can come from a TOML file (--config, or ./netdiag.toml),
from NETDIAG_* environment variables, or from flags. Flags win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "path to a TOML config file")
	pf.String("log-dir", "", "write rotating JSON logs to this directory")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("log-console", false, "also write logs to stderr")

	root.AddCommand(newRunCmd(a), newValidateCmd(a), newServeCmd(a), newVersionCmd())
	return root
}

// persistentKeys maps root flags to config keys.
var persistentKeys = map[string]string{
	"log-dir":     "log.dir",
	"log-level":   "log.level",
	"log-console": "log.console",
}

// load binds the command's flags on top of env and file settings, then
// decodes the merged configuration. Binding happens per invocation because
// run and serve share flag names.
func (a *app) load(cmd *cobra.Command, keys map[string]string) (*config.Config, error) {
	if err := bindFlags(a.v, cmd.Flags(), persistentKeys); err != nil {
		return nil, err
	}
	if err := bindFlags(a.v, cmd.Flags(), keys); err != nil {
		return nil, err
	}
	return config.Load(a.v, a.cfgFile)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func (a *app) logger(l config.Log) (*zap.Logger, error) {
	logger, err := logging.NewLogger(logging.Options{
		Dir:     l.Dir,
		Level:   l.Level,
		Console: l.Console,
		Stderr:  a.stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}

// execute runs the CLI and maps the outcome to a process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return domain.ExitAllSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(stderr, "netdiag:", err)
	return domain.ExitFatal
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
