package probe

import (
	"net/url"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/hamed0406/netdiag/internal/domain"
)

// CheckRequest reports whether a request is well formed for its kind, using
// the same parsing the probers apply at run time. It never touches the
// network.
func CheckRequest(req domain.ProbeRequest) error {
	if !req.Kind.Valid() {
		return errors.Wrapf(ErrUnsupportedKind, "%q", req.Kind)
	}
	if req.Kind != domain.KindInterfaceList && strings.TrimSpace(req.Target) == "" {
		return errors.Wrap(ErrMalformedTarget, "empty target")
	}
	if req.Timeout < 0 || req.RetryBackoff < 0 || req.RetryMax < 0 {
		return errors.New("timeout, retries and backoff must not be negative")
	}

	switch req.Kind {
	case domain.KindTCPConnect, domain.KindUDPPing:
		base := "tcp"
		if req.Kind == domain.KindUDPPing {
			base = "udp"
		}
		if _, err := hostPort(req.Target, req.Params); err != nil {
			return err
		}
		network, err := dialNetwork(base, req.Params)
		if err != nil {
			return err
		}
		if _, err := localAddr(network, req.Params); err != nil {
			return err
		}
	case domain.KindDNSResolve:
		name := extractHost(req.Target)
		if name == "" || strings.ContainsAny(name, " /") {
			return errors.Wrapf(ErrMalformedTarget, "name %q", req.Target)
		}
		record := strings.ToLower(req.Params.String("record", "ip"))
		if !slices.Contains(RecordTypes, record) {
			return errors.Wrapf(ErrMalformedTarget, "record type %q", record)
		}
	case domain.KindHTTPGet:
		target := strings.TrimSpace(req.Target)
		if !strings.Contains(target, "://") {
			target = "http://" + target
		}
		u, err := url.Parse(target)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.Wrapf(ErrMalformedTarget, "url %q", req.Target)
		}
		if _, _, err := httpParams(req.Params); err != nil {
			return err
		}
	}
	return nil
}
