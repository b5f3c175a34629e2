package probe

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/hamed0406/netdiag/internal/domain"
)

// InterfaceLister is the single OS call behind the interface_list kind.
type InterfaceLister func(ctx context.Context) (psnet.InterfaceStatList, error)

// InterfaceProber enumerates local interfaces. Target "*", "all" or "" lists
// every interface; anything else must name one.
type InterfaceProber struct {
	list InterfaceLister
}

func NewInterfaceProber(list InterfaceLister) *InterfaceProber {
	if list == nil {
		list = psnet.InterfacesWithContext
	}
	return &InterfaceProber{list: list}
}

func (p *InterfaceProber) Execute(ctx context.Context, req domain.ProbeRequest, attempt int) domain.ProbeOutcome {
	out := begin(req, attempt)

	ctx, cancel := attemptContext(ctx, req)
	defer cancel()

	type listed struct {
		ifaces psnet.InterfaceStatList
		err    error
	}
	done := make(chan listed, 1)
	go func() {
		ifaces, err := p.list(ctx)
		done <- listed{ifaces, err}
	}()

	var res listed
	select {
	case res = <-done:
	case <-ctx.Done():
		return finish(out, ctx.Err())
	}
	if res.err != nil {
		return finish(out, errors.Wrap(res.err, "list interfaces"))
	}

	want := strings.TrimSpace(req.Target)
	all := want == "" || want == "*" || strings.EqualFold(want, "all")

	for _, s := range res.ifaces {
		if !all && s.Name != want {
			continue
		}
		info := domain.InterfaceInfo{
			Name:         s.Name,
			Index:        s.Index,
			MTU:          s.MTU,
			HardwareAddr: s.HardwareAddr,
			Flags:        s.Flags,
		}
		for _, a := range s.Addrs {
			info.Addrs = append(info.Addrs, a.Addr)
		}
		out.Detail.Interfaces = append(out.Detail.Interfaces, info)
	}

	if !all && len(out.Detail.Interfaces) == 0 {
		return finish(out, errors.Wrapf(ErrInterfaceNotFound, "%q", want))
	}
	return finish(out, nil)
}
