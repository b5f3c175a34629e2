package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/hamed0406/netdiag/internal/domain"
	"github.com/hamed0406/netdiag/internal/probe"
	"github.com/hamed0406/netdiag/internal/report"
)

const EnvPrefix = "NETDIAG"

type Config struct {
	Concurrency int           `mapstructure:"concurrency"` // simultaneous requests in flight
	Deadline    time.Duration `mapstructure:"deadline"`    // whole run; 0 disables
	Output      string        `mapstructure:"output"`      // table, json or yaml
	Repeat      int           `mapstructure:"repeat"`      // rounds; 0 repeats until interrupted
	Interval    time.Duration `mapstructure:"interval"`    // pause between rounds
	Resolver    string        `mapstructure:"resolver"`    // custom DNS server for dns_resolve

	Defaults Defaults `mapstructure:"defaults"`
	Log      Log      `mapstructure:"log"`
	Notify   Notify   `mapstructure:"notify"`
	Serve    Serve    `mapstructure:"serve"`

	Probes []Probe `mapstructure:"probe"`

	// Shorthand targets from --tcp, --udp, --dns, --iface and --http.
	TCP   []string `mapstructure:"tcp"`
	UDP   []string `mapstructure:"udp"`
	DNS   []string `mapstructure:"dns"`
	Iface []string `mapstructure:"iface"`
	HTTP  []string `mapstructure:"http"`
}

// Defaults apply to every probe that leaves the setting out.
type Defaults struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
	BackoffCap time.Duration `mapstructure:"backoff_cap"`
}

type Log struct {
	Dir     string `mapstructure:"dir"` // empty disables the rotating file
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type Notify struct {
	SlackWebhook string `mapstructure:"slack_webhook"`
	OnSuccess    bool   `mapstructure:"on_success"`
}

type Serve struct {
	Addr           string   `mapstructure:"addr"`
	APIKeys        []string `mapstructure:"api_keys"`
	AdminKeys      []string `mapstructure:"admin_keys"`
	RPM            int      `mapstructure:"rpm"`
	Burst          int      `mapstructure:"burst"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	KeepRuns       int      `mapstructure:"keep_runs"`
}

// Probe is one [[probe]] table. Retries is a pointer so an explicit 0 can be
// told apart from "use the default".
type Probe struct {
	Kind    string            `mapstructure:"kind" json:"kind"`
	Target  string            `mapstructure:"target" json:"target"`
	Timeout time.Duration     `mapstructure:"timeout" json:"timeout,omitempty"`
	Retries *int              `mapstructure:"retries" json:"retries,omitempty"`
	Backoff time.Duration     `mapstructure:"backoff" json:"backoff,omitempty"`
	Params  map[string]string `mapstructure:"params" json:"params,omitempty"`
}

// NewViper returns a viper instance with every default set and environment
// overrides enabled (NETDIAG_DEFAULTS_TIMEOUT=5s and so on).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("concurrency", 8)
	v.SetDefault("deadline", "30s")
	v.SetDefault("output", string(report.FormatTable))
	v.SetDefault("repeat", 1)
	v.SetDefault("interval", "1s")
	v.SetDefault("resolver", "")

	v.SetDefault("defaults.timeout", "2s")
	v.SetDefault("defaults.retries", 2)
	v.SetDefault("defaults.backoff", "200ms")
	v.SetDefault("defaults.backoff_cap", "5s")

	v.SetDefault("log.dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)

	v.SetDefault("notify.slack_webhook", "")
	v.SetDefault("notify.on_success", false)

	v.SetDefault("serve.addr", "127.0.0.1:8080")
	v.SetDefault("serve.api_keys", []string{})
	v.SetDefault("serve.admin_keys", []string{})
	v.SetDefault("serve.rpm", 60)
	v.SetDefault("serve.burst", 10)
	v.SetDefault("serve.allowed_origins", []string{})
	v.SetDefault("serve.keep_runs", 50)

	// Registered so AutomaticEnv can see them without a file or flag.
	for _, k := range []string{"tcp", "udp", "dns", "iface", "http"} {
		v.SetDefault(k, []string{})
	}
	return v
}

// Load reads the TOML file at path (or ./netdiag.toml when path is empty and
// the file exists) and decodes the merged configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("netdiag")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the run-wide settings. Probe problems are reported by
// Requests.
func (c *Config) Validate() error {
	var err error
	if c.Concurrency < 1 {
		err = multierr.Append(err, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Deadline < 0 {
		err = multierr.Append(err, fmt.Errorf("deadline must not be negative, got %s", c.Deadline))
	}
	if _, ferr := report.ParseFormat(c.Output); ferr != nil {
		err = multierr.Append(err, ferr)
	}
	if c.Repeat < 0 {
		err = multierr.Append(err, fmt.Errorf("repeat must not be negative, got %d", c.Repeat))
	}
	if c.Interval < 0 {
		err = multierr.Append(err, fmt.Errorf("interval must not be negative, got %s", c.Interval))
	}
	if c.Defaults.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("defaults.timeout must be positive, got %s", c.Defaults.Timeout))
	}
	if c.Defaults.Retries < 0 {
		err = multierr.Append(err, fmt.Errorf("defaults.retries must not be negative, got %d", c.Defaults.Retries))
	}
	if c.Defaults.Backoff < 0 || c.Defaults.BackoffCap < 0 {
		err = multierr.Append(err, errors.New("defaults.backoff and defaults.backoff_cap must not be negative"))
	}
	return err
}

// AllProbes returns the file probes followed by the shorthand ones.
func (c *Config) AllProbes() []Probe {
	out := append([]Probe(nil), c.Probes...)
	add := func(kind domain.Kind, targets []string) {
		for _, t := range targets {
			for _, part := range strings.Split(t, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, Probe{Kind: string(kind), Target: part})
				}
			}
		}
	}
	add(domain.KindTCPConnect, c.TCP)
	add(domain.KindUDPPing, c.UDP)
	add(domain.KindDNSResolve, c.DNS)
	add(domain.KindInterfaceList, c.Iface)
	add(domain.KindHTTPGet, c.HTTP)
	return out
}

// Requests builds the ordered, validated batch. Every invalid probe is
// reported, not just the first.
func (c *Config) Requests() ([]domain.ProbeRequest, error) {
	return BuildRequests(c.AllProbes(), c.Defaults)
}

// BuildRequests turns probe definitions into requests with IDs p1..pN in the
// given order.
func BuildRequests(probes []Probe, d Defaults) ([]domain.ProbeRequest, error) {
	if len(probes) == 0 {
		return nil, errors.New("no probes configured")
	}

	var errs error
	reqs := make([]domain.ProbeRequest, 0, len(probes))
	for i, p := range probes {
		r := domain.ProbeRequest{
			ID:           domain.RequestID(fmt.Sprintf("p%d", i+1)),
			Kind:         domain.Kind(strings.ToLower(strings.TrimSpace(p.Kind))),
			Target:       strings.TrimSpace(p.Target),
			Timeout:      d.Timeout,
			RetryMax:     d.Retries,
			RetryBackoff: d.Backoff,
		}
		if p.Timeout != 0 {
			r.Timeout = p.Timeout
		}
		if p.Retries != nil {
			r.RetryMax = *p.Retries
		}
		if p.Backoff != 0 {
			r.RetryBackoff = p.Backoff
		}
		if len(p.Params) > 0 {
			r.Params = make(domain.Params, len(p.Params))
			for k, v := range p.Params {
				r.Params[strings.ToLower(k)] = v
			}
		}

		if err := probe.CheckRequest(r); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("probe %d (%s %q): %w", i+1, r.Kind, r.Target, err))
			continue
		}
		reqs = append(reqs, r)
	}
	if errs != nil {
		return nil, errs
	}
	return reqs, nil
}
