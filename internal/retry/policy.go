// Package retry decides whether a probe request gets another attempt and how
// long to wait before it. Nothing here performs I/O or sleeps.
package retry

import (
	"time"

	"github.com/hamed0406/netdiag/internal/domain"
)

// Policy is the retry policy for one request.
type Policy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration // 0 means uncapped

	// Retryable overrides the default failure classification when set.
	Retryable func(domain.FailureKind) bool
}

// ForRequest derives the policy from the request's own retry settings.
func ForRequest(req domain.ProbeRequest, backoffCap time.Duration) Policy {
	return Policy{MaxRetries: req.RetryMax, Base: req.RetryBackoff, Cap: backoffCap}
}

// Action is the policy decision after an attempt.
type Action struct {
	Retry bool
	After time.Duration
	Final domain.ProbeOutcome // set when Retry is false
}

// Next inspects the attempts made so far, oldest first. An empty history
// means the first attempt should start right away.
func (p Policy) Next(history []domain.ProbeOutcome) Action {
	if len(history) == 0 {
		return Action{Retry: true}
	}
	last := history[len(history)-1]
	attempts := len(history)

	switch last.Status {
	case domain.StatusSuccess:
		return Action{Final: last}
	case domain.StatusFailure:
		if !p.retryable(last.Failure) {
			return Action{Final: last}
		}
	}

	if attempts > p.maxRetries() {
		return Action{Final: last}
	}
	return Action{Retry: true, After: p.Backoff(attempts)}
}

// Backoff returns the wait before attempt n+1, i.e. after n failed attempts:
// Base * 2^(n-1), capped. It never decreases as n grows.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := 1; i < n; i++ {
		if d > maxDuration/2 {
			d = maxDuration
			break
		}
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			break
		}
	}
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	return d
}

func (p Policy) maxRetries() int {
	if p.MaxRetries < 0 {
		return 0
	}
	return p.MaxRetries
}

func (p Policy) retryable(k domain.FailureKind) bool {
	if p.Retryable != nil {
		return p.Retryable(k)
	}
	return Retryable(k)
}

const maxDuration = time.Duration(1<<63 - 1)

// Retryable is the default classification. Kinds that describe the target or
// the local host (bad name, missing permission, unknown interface) cannot
// change between attempts.
func Retryable(k domain.FailureKind) bool {
	switch k {
	case domain.FailureConnRefused,
		domain.FailureConnReset,
		domain.FailureUnreachable,
		domain.FailureDNSTemporary,
		domain.FailureDNS,
		domain.FailureHTTPServerError,
		domain.FailureUnknown:
		return true
	}
	return false
}
