package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/netdiag/internal/domain"
)

func httpReq(target string, timeout time.Duration) domain.ProbeRequest {
	return domain.ProbeRequest{ID: "h1", Kind: domain.KindHTTPGet, Target: target, Timeout: timeout}
}

func TestHTTPProber_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer s.Close()

	out := NewHTTPProber("test").Execute(context.Background(), httpReq(s.URL, 2*time.Second), 1)
	if !out.Succeeded() {
		t.Fatalf("want success, got %+v", out)
	}
	if out.Detail.StatusCode != 200 {
		t.Fatalf("want status 200, got %d", out.Detail.StatusCode)
	}
	if out.Latency < 0 || out.Attempt != 1 || out.RequestID != "h1" {
		t.Fatalf("bad bookkeeping: %+v", out)
	}
}

func TestHTTPProber_HeadNotAllowedFallsBackToGet(t *testing.T) {
	var gets int
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gets++
		w.WriteHeader(204)
	}))
	defer s.Close()

	r := httpReq(s.URL, 2*time.Second)
	r.Params = domain.Params{"method": "head"}
	out := NewHTTPProber("").Execute(context.Background(), r, 1)
	if !out.Succeeded() || gets != 1 || out.Detail.StatusCode != 204 {
		t.Fatalf("expected GET fallback success, gets=%d out=%+v", gets, out)
	}
}

func TestHTTPProber_DefaultsToGet(t *testing.T) {
	var method string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	defer s.Close()

	out := NewHTTPProber("").Execute(context.Background(), httpReq(s.URL, 2*time.Second), 1)
	if !out.Succeeded() || method != http.MethodGet {
		t.Fatalf("want a GET, got %q %+v", method, out)
	}
}

func TestHTTPProber_RedirectToMissingPageFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/gone", http.StatusMovedPermanently)
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	out := NewHTTPProber("").Execute(context.Background(), httpReq(s.URL+"/", 2*time.Second), 1)
	if out.Status != domain.StatusFailure || out.Failure != domain.FailureHTTPClientError {
		t.Fatalf("want http_client_error from the redirect target, got %+v", out)
	}
	if out.Detail.StatusCode != 404 || out.Detail.Destination != s.URL+"/gone" {
		t.Fatalf("detail should describe the final response: %+v", out.Detail)
	}
}

func TestHTTPProber_RedirectLimit(t *testing.T) {
	var hops int
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, "/next", http.StatusFound)
	}))
	defer s.Close()

	r := httpReq(s.URL, 2*time.Second)
	r.Params = domain.Params{"max_redirects": "2"}
	out := NewHTTPProber("").Execute(context.Background(), r, 1)
	if out.Failure != domain.FailureHTTPClientError || !strings.Contains(out.Error, "too many redirects") {
		t.Fatalf("want a redirect loop to fail, got %+v", out)
	}
	if hops != 3 {
		t.Fatalf("want the original request plus 2 redirects, got %d", hops)
	}

	r.Params = domain.Params{"max_redirects": "0"}
	out = NewHTTPProber("").Execute(context.Background(), r, 1)
	if !out.Succeeded() || out.Detail.StatusCode != http.StatusFound {
		t.Fatalf("max_redirects=0 should report the 302 itself, got %+v", out)
	}
}

func TestHTTPProber_BadParams(t *testing.T) {
	for _, p := range []domain.Params{{"method": "POST"}, {"max_redirects": "-1"}, {"max_redirects": "x"}} {
		r := httpReq("127.0.0.1:1", time.Second)
		r.Params = p
		out := NewHTTPProber("").Execute(context.Background(), r, 1)
		if out.Failure != domain.FailureMalformedTarget {
			t.Fatalf("%v: want malformed_target, got %+v", p, out)
		}
	}
}

func TestHTTPProber_Status500IsRetryableFailure(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	out := NewHTTPProber("").Execute(context.Background(), httpReq(s.URL, 2*time.Second), 1)
	if out.Status != domain.StatusFailure || out.Failure != domain.FailureHTTPServerError {
		t.Fatalf("want http_server_error, got %+v", out)
	}
	if out.Detail.StatusCode != 500 {
		t.Fatalf("want status 500, got %d", out.Detail.StatusCode)
	}
}

func TestHTTPProber_Status404(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	defer s.Close()

	out := NewHTTPProber("").Execute(context.Background(), httpReq(s.URL, 2*time.Second), 1)
	if out.Failure != domain.FailureHTTPClientError {
		t.Fatalf("want http_client_error, got %+v", out)
	}
}

func TestHTTPProber_TimeoutIsTimedOut(t *testing.T) {
	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer s.Close()
	defer close(release)

	out := NewHTTPProber("").Execute(context.Background(), httpReq(s.URL, 50*time.Millisecond), 1)
	if out.Status != domain.StatusTimedOut {
		t.Fatalf("want timed_out, got %+v", out)
	}
	if out.Error == "" {
		t.Fatalf("want non-empty error message")
	}
}
