package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/hamed0406/netdiag/internal/domain"
)

// DefaultMaxRedirects matches net/http's own redirect limit.
const DefaultMaxRedirects = 10

var (
	errHTTPServer       = errors.New("server error status")
	errHTTPClient       = errors.New("client error status")
	errTooManyRedirects = errors.New("too many redirects")
)

// HTTPProber issues one GET per attempt and follows redirects up to the
// "max_redirects" param. The "method" param may ask for HEAD instead, in
// which case a 405 falls back to GET. The final response decides the
// outcome: 2xx and 3xx count as success.
type HTTPProber struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPProber(userAgent string) *HTTPProber {
	return &HTTPProber{
		Client: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true, Proxy: http.ProxyFromEnvironment},
		},
		UserAgent: userAgent,
	}
}

func (h *HTTPProber) Execute(ctx context.Context, req domain.ProbeRequest, attempt int) domain.ProbeOutcome {
	out := begin(req, attempt)

	target := httpTarget(req.Target)
	method, limit, err := httpParams(req.Params)
	if err != nil {
		return finish(out, err)
	}

	ctx, cancel := attemptContext(ctx, req)
	defer cancel()

	client := h.redirectClient(limit)
	code, final, err := h.do(ctx, client, method, target)
	if err == nil && code == http.StatusMethodNotAllowed && method == http.MethodHead {
		code, final, err = h.do(ctx, client, http.MethodGet, target)
	}
	if err != nil {
		return finish(out, err)
	}

	out.Detail.Destination = final
	out.Detail.StatusCode = code
	switch {
	case code >= 500:
		err = errors.Wrapf(errHTTPServer, "%d %s", code, http.StatusText(code))
	case code >= 400:
		err = errors.Wrapf(errHTTPClient, "%d %s", code, http.StatusText(code))
	default:
		out.Detail.Records = []string{fmt.Sprintf("%d %s", code, http.StatusText(code))}
	}
	return finish(out, err)
}

// redirectClient returns a shallow copy of the shared client that stops
// after limit hops. A limit of zero reports the first response as is.
func (h *HTTPProber) redirectClient(limit int) *http.Client {
	c := *h.Client
	c.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		if limit == 0 {
			return http.ErrUseLastResponse
		}
		if len(via) > limit {
			return errors.Wrapf(errTooManyRedirects, "stopped after %d", limit)
		}
		return nil
	}
	return &c
}

// do returns the final status code and the URL that produced it.
func (h *HTTPProber) do(ctx context.Context, c *http.Client, method, target string) (int, string, error) {
	r, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, "", errors.Wrapf(ErrMalformedTarget, "%v", err)
	}
	if h.UserAgent != "" {
		r.Header.Set("User-Agent", h.UserAgent)
	}
	resp, err := c.Do(r)
	if err != nil {
		return 0, "", err
	}
	resp.Body.Close()
	return resp.StatusCode, resp.Request.URL.String(), nil
}

func httpTarget(target string) string {
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "http://" + target
	}
	return target
}

func httpParams(p domain.Params) (string, int, error) {
	method := strings.ToUpper(p.String("method", http.MethodGet))
	if method != http.MethodGet && method != http.MethodHead {
		return "", 0, errors.Wrapf(ErrMalformedTarget, "method %q", method)
	}
	limit, err := p.Int("max_redirects", DefaultMaxRedirects)
	if err != nil || limit < 0 {
		return "", 0, errors.Wrapf(ErrMalformedTarget, "max_redirects %q", p["max_redirects"])
	}
	return method, limit, nil
}
