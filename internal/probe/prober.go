package probe

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hamed0406/netdiag/internal/domain"
)

// Prober executes exactly one attempt of one request. Implementations must
// honour req.Timeout and ctx, release every socket they open, and report
// I/O errors through the returned outcome instead of panicking.
type Prober interface {
	Execute(ctx context.Context, req domain.ProbeRequest, attempt int) domain.ProbeOutcome
}

// Func adapts a plain function to the Prober interface.
type Func func(ctx context.Context, req domain.ProbeRequest, attempt int) domain.ProbeOutcome

func (f Func) Execute(ctx context.Context, req domain.ProbeRequest, attempt int) domain.ProbeOutcome {
	return f(ctx, req, attempt)
}

var (
	ErrMalformedTarget   = errors.New("malformed target")
	ErrNoRecords         = errors.New("no records returned")
	ErrInterfaceNotFound = errors.New("interface not found")
	ErrUnsupportedKind   = errors.New("unsupported probe kind")
)

// Config holds settings shared by every prober in a registry.
type Config struct {
	// Resolver is a "host:port" DNS server used instead of the system
	// resolver, both for dns_resolve and for the names dial probers expand.
	// A dns_resolve request's "server" param takes precedence.
	Resolver string

	// UserAgent is sent by the http_get prober.
	UserAgent string
}

// attemptContext bounds one attempt by the request timeout.
func attemptContext(ctx context.Context, req domain.ProbeRequest) (context.Context, context.CancelFunc) {
	if req.Timeout > 0 {
		return context.WithTimeout(ctx, req.Timeout)
	}
	return context.WithCancel(ctx)
}

func begin(req domain.ProbeRequest, attempt int) domain.ProbeOutcome {
	return domain.ProbeOutcome{
		RequestID: req.ID,
		Attempt:   attempt,
		StartedAt: time.Now(),
	}
}

// finish stamps latency and classification onto an outcome.
func finish(out domain.ProbeOutcome, err error) domain.ProbeOutcome {
	out.Latency = time.Since(out.StartedAt)
	out.Status, out.Failure = Classify(err)
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
