package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/netdiag/internal/config"
	"github.com/hamed0406/netdiag/internal/domain"
	apimw "github.com/hamed0406/netdiag/internal/httpapi/middleware"
	"github.com/hamed0406/netdiag/internal/probe"
	"github.com/hamed0406/netdiag/internal/repo/memory"
)

// ---- test helpers ----

func fakeProber() probe.Prober {
	return probe.Func(func(ctx context.Context, req domain.ProbeRequest, attempt int) domain.ProbeOutcome {
		out := domain.ProbeOutcome{RequestID: req.ID, Attempt: attempt, Status: domain.StatusSuccess, Latency: time.Millisecond}
		if strings.HasPrefix(req.Target, "down") {
			out.Status, out.Failure = domain.StatusFailure, domain.FailurePermissionDenied
		}
		return out
	})
}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Concurrency: 4,
		Deadline:    5 * time.Second,
		Defaults:    config.Defaults{Timeout: time.Second, Retries: 1, Backoff: time.Millisecond},
	}
	srv := NewServer(zap.NewNop(), memory.New(10), fakeProber(), cfg)
	keys := apimw.Keys{Public: []string{"pub_test"}, Admin: []string{"adm_test"}}

	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, nil, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ---- tests ----

func TestHealthz(t *testing.T) {
	ts := setupServer(t)
	if resp := do(t, http.MethodGet, ts.URL+"/healthz", "", ""); resp.StatusCode != 200 {
		t.Fatalf("want 200 got %d", resp.StatusCode)
	}
}

func TestCreateRun_StoreAndFetch(t *testing.T) {
	ts := setupServer(t)
	body := `{"probes":[
		{"kind":"tcp_connect","target":"up.example:443"},
		{"kind":"dns_resolve","target":"down.example","retries":0,"params":{"record":"mx"}}
	],"deadline":"2s"}`

	resp := do(t, http.MethodPost, ts.URL+"/api/runs", "adm_test", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201 got %d", resp.StatusCode)
	}
	var run domain.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID == "" || len(run.Report.Entries) != 2 {
		t.Fatalf("unexpected run %+v", run)
	}
	if run.Report.Summary.Status != domain.RunPartialFailure {
		t.Fatalf("want partial_failure, got %s", run.Report.Summary.Status)
	}
	if e := run.Report.Entries[1]; e.Request.ID != "p2" || e.Attempts != 1 || e.Outcome.Failure != domain.FailurePermissionDenied {
		t.Fatalf("unexpected second entry %+v", e)
	}

	get := do(t, http.MethodGet, ts.URL+"/api/runs/"+run.ID, "pub_test", "")
	if get.StatusCode != 200 {
		t.Fatalf("get: want 200 got %d", get.StatusCode)
	}

	list := do(t, http.MethodGet, ts.URL+"/api/runs?limit=5", "pub_test", "")
	var rows []map[string]any
	if err := json.NewDecoder(list.Body).Decode(&rows); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != run.ID {
		t.Fatalf("unexpected list %v", rows)
	}
}

func TestCreateRun_ValidationProblems(t *testing.T) {
	ts := setupServer(t)
	body := `{"probes":[
		{"kind":"tcp_connect","target":"no-port"},
		{"kind":"bogus","target":"x"},
		{"kind":"udp_ping","target":"x:53","timeout":"soon"}
	]}`
	resp := do(t, http.MethodPost, ts.URL+"/api/runs", "adm_test", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 got %d", resp.StatusCode)
	}
	var out struct {
		Problems []string `json:"problems"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if len(out.Problems) != 1 || !strings.Contains(out.Problems[0], "timeout") {
		t.Fatalf("duration errors are reported first: %v", out.Problems)
	}

	resp = do(t, http.MethodPost, ts.URL+"/api/runs", "adm_test", `{"probes":[{"kind":"tcp_connect","target":"no-port"},{"kind":"bogus","target":"x"}]}`)
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusBadRequest || len(out.Problems) != 2 {
		t.Fatalf("want 2 problems, got %d %v", resp.StatusCode, out.Problems)
	}

	if resp := do(t, http.MethodPost, ts.URL+"/api/runs", "adm_test", `{"probes":[]}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty batch: want 400 got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/runs", "adm_test", `not json`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json: want 400 got %d", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	ts := setupServer(t)
	body := `{"probes":[{"kind":"tcp_connect","target":"up:1"}]}`

	if resp := do(t, http.MethodPost, ts.URL+"/api/runs", "pub_test", body); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("public key POST: want 403 got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/runs", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no key: want 401 got %d", resp.StatusCode)
	}
}

func TestGetRun_NotFoundAndBadLimit(t *testing.T) {
	ts := setupServer(t)
	if resp := do(t, http.MethodGet, ts.URL+"/api/runs/nope", "pub_test", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/runs?limit=0", "pub_test", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 got %d", resp.StatusCode)
	}
}

func TestKinds(t *testing.T) {
	ts := setupServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/api/kinds", "pub_test", "")
	var out map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out["kinds"]) != len(domain.Kinds()) {
		t.Fatalf("unexpected kinds %v", out)
	}
}

func TestParse_DeadlineNeverExceedsServer(t *testing.T) {
	s := &Server{Deadline: 5 * time.Second}
	_, d, err := s.parse(runPayload{Deadline: "1m"})
	if err != nil || d != 5*time.Second {
		t.Fatalf("want capped 5s, got %v %v", d, err)
	}
	_, d, _ = s.parse(runPayload{Deadline: "1s"})
	if d != time.Second {
		t.Fatalf("want 1s, got %v", d)
	}
}
