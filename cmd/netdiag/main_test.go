package main

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hamed0406/netdiag/internal/domain"
)

// executeCmd runs the CLI with args and returns the exit code and captured
// output streams.
func executeCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func listenTCP(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return ln.Addr().String()
}

// closedTCPAddr returns a loopback address nothing listens on.
func closedTCPAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestRun_AllSuccessJSON(t *testing.T) {
	addr := listenTCP(t)
	code, out, errOut := executeCmd(t, "run", "--tcp", addr, "--tcp", addr, "-o", "json")
	if code != domain.ExitAllSuccess {
		t.Fatalf("want exit 0, got %d (stderr %q)", code, errOut)
	}

	var rep struct {
		Entries []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"entries"`
		Summary domain.Summary `json:"summary"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rep.Entries) != 2 || rep.Entries[0].ID != "p1" || rep.Entries[1].ID != "p2" {
		t.Fatalf("unexpected entries %+v", rep.Entries)
	}
	if rep.Summary.Status != domain.RunAllSuccess {
		t.Fatalf("want all_success, got %s", rep.Summary.Status)
	}
}

func TestRun_ExitCodeFollowsRunStatus(t *testing.T) {
	up, down := listenTCP(t), closedTCPAddr(t)

	code, out, _ := executeCmd(t, "run", "--tcp", up+","+down, "--retries", "0")
	if code != domain.ExitPartialFailure {
		t.Fatalf("want exit %d, got %d\n%s", domain.ExitPartialFailure, code, out)
	}
	if !strings.Contains(out, "partial_failure") {
		t.Fatalf("table should carry the summary line:\n%s", out)
	}

	code, _, _ = executeCmd(t, "run", "--tcp", down, "--retries", "0")
	if code != domain.ExitAllFailure {
		t.Fatalf("want exit %d, got %d", domain.ExitAllFailure, code)
	}
}

func TestRun_RepeatPrintsStats(t *testing.T) {
	addr := listenTCP(t)
	code, out, _ := executeCmd(t, "run", "--tcp", addr, "--repeat", "3", "--interval", "1ms")
	if code != domain.ExitAllSuccess {
		t.Fatalf("want exit 0, got %d", code)
	}
	if strings.Count(out, "round ") != 3 {
		t.Fatalf("want 3 rounds:\n%s", out)
	}
	if !strings.Contains(out, "LOSS") {
		t.Fatalf("want stats table:\n%s", out)
	}
}

func TestRun_BadInputIsFatal(t *testing.T) {
	cases := [][]string{
		{"run"},
		{"run", "--tcp", "no-port"},
		{"run", "--tcp", "127.0.0.1:1", "-o", "xml"},
		{"run", "stray-arg"},
	}
	for _, args := range cases {
		code, _, errOut := executeCmd(t, args...)
		if code != domain.ExitFatal {
			t.Fatalf("%v: want exit 1, got %d", args, code)
		}
		if !strings.HasPrefix(errOut, "netdiag:") {
			t.Fatalf("%v: want error on stderr, got %q", args, errOut)
		}
	}
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netdiag.toml")
	body := `
[[probe]]
kind = "tcp_connect"
target = "example.com:443"

[[probe]]
kind = "dns_resolve"
target = "example.com"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("NETDIAG_DNS", "example.org")
	code, out, errOut := executeCmd(t, "validate", "-c", path)
	if code != 0 {
		t.Fatalf("want exit 0, got %d (%s)", code, errOut)
	}
	for _, want := range []string{"config is valid", "3 probes: 1 tcp_connect, 2 dns_resolve", "serve.api_keys"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	t.Setenv("NETDIAG_DNS", "")
	if err := os.WriteFile(path, []byte("concurrency = 0\n[[probe]]\nkind = \"bogus\"\ntarget = \"x\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	code, _, errOut = executeCmd(t, "validate", "-c", path)
	if code != domain.ExitFatal || strings.Count(errOut, "\n  - ") != 2 {
		t.Fatalf("want both problems listed, got %d %q", code, errOut)
	}
}

func TestVersion(t *testing.T) {
	code, out, _ := executeCmd(t, "version")
	if code != 0 || !strings.HasPrefix(out, "netdiag, version") {
		t.Fatalf("unexpected version output %d %q", code, out)
	}
}
