package probe

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hamed0406/netdiag/internal/domain"
)

// hostPort builds the dial address. The port comes from the target itself
// ("host:port", "[v6]:port") or from the "port" param.
func hostPort(target string, params domain.Params) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" || strings.Contains(target, "://") {
		return "", errors.Wrapf(ErrMalformedTarget, "target %q", target)
	}

	if port := params.String("port", ""); port != "" {
		if err := checkPort(port); err != nil {
			return "", err
		}
		if _, _, err := net.SplitHostPort(target); err == nil {
			return "", errors.Wrapf(ErrMalformedTarget, "target %q already carries a port, drop it or the port param", target)
		}
		host := strings.TrimSuffix(strings.TrimPrefix(target, "["), "]")
		return net.JoinHostPort(host, port), nil
	}

	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return "", errors.Wrapf(ErrMalformedTarget, "target %q: %v", target, err)
	}
	if host == "" {
		return "", errors.Wrapf(ErrMalformedTarget, "target %q: empty host", target)
	}
	if err := checkPort(port); err != nil {
		return "", err
	}
	return target, nil
}

func checkPort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return errors.Wrapf(ErrMalformedTarget, "port %q", port)
	}
	return nil
}

// dialNetwork narrows "tcp"/"udp" to a single address family when the
// request asks for one, or when the "source" param pins it.
func dialNetwork(base string, params domain.Params) (string, error) {
	var network string
	switch v := params.String("ip_version", ""); v {
	case "", "any", "all":
		network = base
	case "4", "v4", "ipv4":
		network = base + "4"
	case "6", "v6", "ipv6":
		network = base + "6"
	default:
		return "", errors.Wrapf(ErrMalformedTarget, "ip_version %q", v)
	}

	src, err := netip.ParseAddr(params.String("source", ""))
	if err != nil {
		return network, nil
	}
	family := base + "6"
	if src.Unmap().Is4() {
		family = base + "4"
	}
	if network != base && network != family {
		return "", errors.Wrapf(ErrMalformedTarget, "source %s does not match ip_version %s", src, params["ip_version"])
	}
	return family, nil
}

// HostResolver is the part of *net.Resolver the dial probers use.
type HostResolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// resolveAddrs expands a "host:port" dial address into one address per
// distinct IP of the dial family, in resolver order. IP literals pass
// through untouched.
func resolveAddrs(ctx context.Context, r HostResolver, network, address string) ([]string, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedTarget, "target %q: %v", address, err)
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return []string{address}, nil
	}
	if r == nil {
		r = net.DefaultResolver
	}

	want := "ip"
	switch {
	case strings.HasSuffix(network, "4"):
		want = "ip4"
	case strings.HasSuffix(network, "6"):
		want = "ip6"
	}
	ips, err := r.LookupNetIP(ctx, want, host)
	if err != nil {
		return nil, err
	}

	seen := make(map[netip.Addr]bool, len(ips))
	var addrs []string
	for _, ip := range ips {
		ip = ip.Unmap()
		if seen[ip] || (want == "ip4" && !ip.Is4()) || (want == "ip6" && !ip.Is6()) {
			continue
		}
		seen[ip] = true
		addrs = append(addrs, net.JoinHostPort(ip.String(), port))
	}
	if len(addrs) == 0 {
		return nil, errors.Wrapf(ErrNoRecords, "%s has no %s address", host, want)
	}
	return addrs, nil
}

// addrFunc exercises a single address and returns the local address it
// used.
type addrFunc func(ctx context.Context, i int, address string) (source string, err error)

// probeEach runs fn against every address and returns the per-address
// results together with the first error in address order. Addresses run
// in parallel unless a fixed source port forces them through one socket
// at a time.
func probeEach(ctx context.Context, addrs []string, parallel bool, fn addrFunc) ([]domain.AddressResult, error) {
	results := make([]domain.AddressResult, len(addrs))
	errs := make([]error, len(addrs))
	one := func(i int) {
		start := time.Now()
		src, err := fn(ctx, i, addrs[i])
		res := domain.AddressResult{Address: addrs[i], Source: src, Latency: time.Since(start)}
		res.Status, res.Failure = Classify(err)
		if err != nil {
			res.Error = err.Error()
		}
		results[i], errs[i] = res, err
	}

	if parallel && len(addrs) > 1 {
		var wg sync.WaitGroup
		for i := range addrs {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				one(i)
			}()
		}
		wg.Wait()
	} else {
		for i := range addrs {
			one(i)
		}
	}

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// describeAddrs copies per-address results onto the detail.
func describeAddrs(d *domain.Detail, results []domain.AddressResult) {
	d.Addresses = results
	if len(results) == 0 {
		return
	}
	pick := results[0]
	for _, r := range results {
		if r.Status == domain.StatusSuccess {
			pick = r
			break
		}
	}
	d.Source, d.Destination = pick.Source, pick.Address
}

// localAddr returns the bind address from the "source" and "source_port"
// params, or nil to let the kernel choose.
func localAddr(network string, params domain.Params) (net.Addr, error) {
	src := params.String("source", "")
	port, err := params.Int("source_port", 0)
	if err != nil || port < 0 || port > 65535 {
		return nil, errors.Wrapf(ErrMalformedTarget, "source_port %q", params["source_port"])
	}
	if src == "" && port == 0 {
		return nil, nil
	}

	var ip net.IP
	if src != "" {
		a, err := netip.ParseAddr(src)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedTarget, "source %q", src)
		}
		ip = net.IP(a.AsSlice())
	}

	if strings.HasPrefix(network, "udp") {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}
	return &net.TCPAddr{IP: ip, Port: port}, nil
}

// fixedSourcePort reports whether every address must share one local port.
func fixedSourcePort(params domain.Params) bool {
	n, err := params.Int("source_port", 0)
	return err == nil && n > 0
}
