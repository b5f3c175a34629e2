package probe

import (
	"context"
	"net"

	"github.com/hamed0406/netdiag/internal/domain"
)

// TCPProber resolves the target and opens one TCP connection per address,
// closing each right after the handshake. The attempt succeeds only when
// every address accepts.
type TCPProber struct {
	Resolver HostResolver
}

func NewTCPProber() *TCPProber { return &TCPProber{} }

func (p *TCPProber) Execute(ctx context.Context, req domain.ProbeRequest, attempt int) domain.ProbeOutcome {
	out := begin(req, attempt)

	address, err := hostPort(req.Target, req.Params)
	if err != nil {
		return finish(out, err)
	}
	network, err := dialNetwork("tcp", req.Params)
	if err != nil {
		return finish(out, err)
	}
	local, err := localAddr(network, req.Params)
	if err != nil {
		return finish(out, err)
	}

	ctx, cancel := attemptContext(ctx, req)
	defer cancel()

	addrs, err := resolveAddrs(ctx, p.Resolver, network, address)
	if err != nil {
		return finish(out, err)
	}

	d := net.Dialer{LocalAddr: local}
	results, err := probeEach(ctx, addrs, !fixedSourcePort(req.Params), func(ctx context.Context, _ int, address string) (string, error) {
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return "", err
		}
		defer conn.Close()
		return conn.LocalAddr().String(), nil
	})
	describeAddrs(&out.Detail, results)
	return finish(out, err)
}
