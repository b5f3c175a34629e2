package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/netdiag/internal/domain"
)

const sampleTOML = `
concurrency = 4
deadline = "10s"
output = "json"
repeat = 3
interval = "250ms"

[defaults]
timeout = "1s"
retries = 1
backoff = "50ms"

[log]
level = "debug"

[serve]
api_keys = ["pub_a", "pub_b"]
admin_keys = ["adm_x"]

[[probe]]
kind = "tcp_connect"
target = "example.com:443"
retries = 0

[[probe]]
kind = "dns_resolve"
target = "example.com"
timeout = "500ms"
[probe.params]
record = "mx"
server = "1.1.1.1"
`

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netdiag.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(NewViper(), writeTOML(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Concurrency != 4 || cfg.Deadline != 10*time.Second || cfg.Output != "json" {
		t.Fatalf("globals wrong: %+v", cfg)
	}
	if cfg.Repeat != 3 || cfg.Interval != 250*time.Millisecond {
		t.Fatalf("repeat wrong: %d %s", cfg.Repeat, cfg.Interval)
	}
	if cfg.Defaults.Timeout != time.Second || cfg.Defaults.Retries != 1 || cfg.Defaults.BackoffCap != 5*time.Second {
		t.Fatalf("defaults wrong: %+v", cfg.Defaults)
	}
	if cfg.Log.Level != "debug" || cfg.Serve.Addr != "127.0.0.1:8080" {
		t.Fatalf("log/serve wrong: %+v %+v", cfg.Log, cfg.Serve)
	}
	if len(cfg.Serve.APIKeys) != 2 || cfg.Serve.AdminKeys[0] != "adm_x" {
		t.Fatalf("keys wrong: %+v", cfg.Serve)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	reqs, err := cfg.Requests()
	if err != nil {
		t.Fatalf("requests: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("want 2 requests, got %d", len(reqs))
	}
	tcp, dns := reqs[0], reqs[1]
	if tcp.ID != "p1" || tcp.RetryMax != 0 || tcp.Timeout != time.Second || tcp.RetryBackoff != 50*time.Millisecond {
		t.Fatalf("tcp request wrong: %+v", tcp)
	}
	if dns.ID != "p2" || dns.Kind != domain.KindDNSResolve || dns.Timeout != 500*time.Millisecond || dns.RetryMax != 1 {
		t.Fatalf("dns request wrong: %+v", dns)
	}
	if dns.Params.String("record", "") != "mx" || dns.Params.String("server", "") != "1.1.1.1" {
		t.Fatalf("dns params wrong: %+v", dns.Params)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("NETDIAG_CONCURRENCY", "16")
	t.Setenv("NETDIAG_DEFAULTS_TIMEOUT", "3s")
	t.Setenv("NETDIAG_TCP", "a.example:80,b.example:81")

	cfg, err := Load(NewViper(), writeTOML(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Concurrency != 16 || cfg.Defaults.Timeout != 3*time.Second {
		t.Fatalf("env not applied: %+v", cfg)
	}
	reqs, err := cfg.Requests()
	if err != nil {
		t.Fatalf("requests: %v", err)
	}
	if len(reqs) != 4 || reqs[2].Target != "a.example:80" || reqs[3].ID != "p4" {
		t.Fatalf("shorthand probes wrong: %+v", reqs)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	v := NewViper()
	v.Set("dns", []string{"example.com"})
	v.Set("iface", []string{"all"})

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Concurrency != 8 || cfg.Deadline != 30*time.Second || cfg.Output != "table" || cfg.Repeat != 1 {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
	reqs, err := cfg.Requests()
	if err != nil {
		t.Fatalf("requests: %v", err)
	}
	if len(reqs) != 2 || reqs[0].Kind != domain.KindDNSResolve || reqs[1].Kind != domain.KindInterfaceList {
		t.Fatalf("unexpected requests %+v", reqs)
	}
	if reqs[0].Timeout != 2*time.Second || reqs[0].RetryMax != 2 || reqs[0].RetryBackoff != 200*time.Millisecond {
		t.Fatalf("defaults not applied: %+v", reqs[0])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("want error for missing config file")
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := &Config{
		Concurrency: 0,
		Deadline:    -time.Second,
		Output:      "xml",
		Repeat:      -1,
		Defaults:    Defaults{Timeout: 0, Retries: -2},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("want validation error")
	}
	if n := len(multierr.Errors(err)); n != 6 {
		t.Fatalf("want 6 problems, got %d: %v", n, err)
	}
}

func TestRequests_RejectsBadProbes(t *testing.T) {
	neg := -1
	cfg := &Config{
		Defaults: Defaults{Timeout: time.Second},
		Probes: []Probe{
			{Kind: "tcp_connect", Target: "ok.example:443"},
			{Kind: "tcp_connect", Target: "no-port.example"},
			{Kind: "icmp_echo", Target: "x"},
			{Kind: "dns_resolve", Target: "example.com", Params: map[string]string{"record": "soa"}},
			{Kind: "udp_ping", Target: "x:53", Retries: &neg},
		},
	}
	_, err := cfg.Requests()
	if err == nil {
		t.Fatal("want error")
	}
	errs := multierr.Errors(err)
	if len(errs) != 4 {
		t.Fatalf("want 4 problems, got %d: %v", len(errs), err)
	}
	if !strings.Contains(errs[0].Error(), "probe 2") {
		t.Fatalf("error should name the probe: %v", errs[0])
	}
}

func TestRequests_EmptyBatch(t *testing.T) {
	if _, err := (&Config{}).Requests(); err == nil {
		t.Fatal("want error for empty batch")
	}
}

func TestAllProbes_ShorthandOrder(t *testing.T) {
	cfg := &Config{
		Probes: []Probe{{Kind: "http_get", Target: "https://example.com"}},
		TCP:    []string{"a:1"},
		UDP:    []string{"b:2"},
		DNS:    []string{"c.example"},
		Iface:  []string{"lo"},
		HTTP:   []string{"d.example"},
	}
	got := cfg.AllProbes()
	want := []string{"http_get", "tcp_connect", "udp_ping", "dns_resolve", "interface_list", "http_get"}
	if len(got) != len(want) {
		t.Fatalf("want %d probes, got %d", len(want), len(got))
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Fatalf("probe %d: want %s got %s", i, k, got[i].Kind)
		}
	}
}
