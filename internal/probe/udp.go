package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/hamed0406/netdiag/internal/domain"
)

const (
	defaultUDPPayload = "ping"
	maxPacketSize     = 65507
)

// UDPProber sends one datagram to every resolved address and waits for any
// reply. A closed port on the far side usually comes back as ICMP
// port-unreachable, which the kernel reports as a refused connection on the
// connected socket.
type UDPProber struct {
	Resolver HostResolver
}

func NewUDPProber() *UDPProber { return &UDPProber{} }

func (p *UDPProber) Execute(ctx context.Context, req domain.ProbeRequest, attempt int) domain.ProbeOutcome {
	out := begin(req, attempt)

	address, err := hostPort(req.Target, req.Params)
	if err != nil {
		return finish(out, err)
	}
	network, err := dialNetwork("udp", req.Params)
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

	payload := []byte(req.Params.String("payload", defaultUDPPayload))
	replies := make([]int, len(addrs))
	d := net.Dialer{LocalAddr: local}
	results, err := probeEach(ctx, addrs, !fixedSourcePort(req.Params), func(ctx context.Context, i int, address string) (string, error) {
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return "", err
		}
		defer conn.Close()
		n, err := exchange(ctx, conn, payload)
		replies[i] = n
		return conn.LocalAddr().String(), err
	})
	describeAddrs(&out.Detail, results)

	for i, r := range results {
		switch {
		case r.Status != domain.StatusSuccess:
		case len(results) == 1:
			out.Detail.Records = append(out.Detail.Records, fmt.Sprintf("reply %d bytes", replies[i]))
		default:
			out.Detail.Records = append(out.Detail.Records, fmt.Sprintf("%s reply %d bytes", r.Address, replies[i]))
		}
	}
	return finish(out, err)
}

// exchange writes the payload and waits for one datagram back.
func exchange(ctx context.Context, conn net.Conn, payload []byte) (int, error) {
	// Datagram reads ignore ctx, so expire the socket deadline with it.
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(payload); err != nil {
		return 0, errors.Wrap(err, "send")
	}
	buf := make([]byte, maxPacketSize)
	n, err := conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errors.Wrap(err, "receive")
	}
	return n, nil
}
