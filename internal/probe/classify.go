package probe

import (
	"context"
	"net"
	"os"
	"syscall"

	"github.com/pkg/errors"

	"github.com/hamed0406/netdiag/internal/domain"
)

// Classify maps an attempt error onto the outcome taxonomy. A timeout is
// never reported as a failure.
func Classify(err error) (domain.Status, domain.FailureKind) {
	if err == nil {
		return domain.StatusSuccess, domain.FailureNone
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return domain.StatusTimedOut, domain.FailureNone
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return domain.StatusFailure, domain.FailureNameNotFound
		case dnsErr.IsTimeout:
			return domain.StatusTimedOut, domain.FailureNone
		case dnsErr.IsTemporary:
			return domain.StatusFailure, domain.FailureDNSTemporary
		default:
			return domain.StatusFailure, domain.FailureDNS
		}
	}

	if k := sentinelKind(err); k != domain.FailureNone {
		return domain.StatusFailure, k
	}
	if k := errnoKind(err); k != domain.FailureNone {
		return domain.StatusFailure, k
	}

	var addrErr *net.AddrError
	var parseErr *net.ParseError
	if errors.As(err, &addrErr) || errors.As(err, &parseErr) {
		return domain.StatusFailure, domain.FailureMalformedTarget
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.StatusTimedOut, domain.FailureNone
	}

	return domain.StatusFailure, domain.FailureUnknown
}

func sentinelKind(err error) domain.FailureKind {
	switch {
	case errors.Is(err, ErrMalformedTarget):
		return domain.FailureMalformedTarget
	case errors.Is(err, ErrNoRecords):
		return domain.FailureNoRecords
	case errors.Is(err, ErrInterfaceNotFound):
		return domain.FailureInterfaceNotFound
	case errors.Is(err, ErrUnsupportedKind):
		return domain.FailureUnsupportedKind
	case errors.Is(err, errHTTPServer):
		return domain.FailureHTTPServerError
	case errors.Is(err, errHTTPClient), errors.Is(err, errTooManyRedirects):
		return domain.FailureHTTPClientError
	}
	return domain.FailureNone
}

func errnoKind(err error) domain.FailureKind {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return domain.FailureConnRefused
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return domain.FailureConnReset
	case errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETDOWN),
		errors.Is(err, syscall.EHOSTDOWN):
		return domain.FailureUnreachable
	case errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, os.ErrPermission):
		return domain.FailurePermissionDenied
	case errors.Is(err, syscall.EADDRINUSE),
		errors.Is(err, syscall.EADDRNOTAVAIL):
		return domain.FailureBind
	}
	return domain.FailureNone
}
