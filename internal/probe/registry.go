package probe

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/prometheus/common/version"

	"github.com/hamed0406/netdiag/internal/domain"
)

// Registry dispatches each request to the prober registered for its kind,
// which keeps the scheduler kind-agnostic.
type Registry struct {
	probers map[domain.Kind]Prober
}

// NewRegistry returns a registry with every built-in kind registered.
func NewRegistry(cfg Config) *Registry {
	ua := cfg.UserAgent
	if ua == "" {
		ua = fmt.Sprintf("netdiag/%s", version.Version)
	}
	hosts := resolverFor(cfg.Resolver)
	r := &Registry{probers: make(map[domain.Kind]Prober)}
	r.Register(domain.KindTCPConnect, &TCPProber{Resolver: hosts})
	r.Register(domain.KindUDPPing, &UDPProber{Resolver: hosts})
	r.Register(domain.KindDNSResolve, NewDNSProber(cfg.Resolver))
	r.Register(domain.KindInterfaceList, NewInterfaceProber(nil))
	r.Register(domain.KindHTTPGet, NewHTTPProber(ua))
	return r
}

// Register adds or replaces the prober for a kind.
func (r *Registry) Register(k domain.Kind, p Prober) {
	r.probers[k] = p
}

func (r *Registry) Execute(ctx context.Context, req domain.ProbeRequest, attempt int) domain.ProbeOutcome {
	p, ok := r.probers[req.Kind]
	if !ok {
		return finish(begin(req, attempt), errors.Wrapf(ErrUnsupportedKind, "%q", req.Kind))
	}
	return p.Execute(ctx, req, attempt)
}
