package probe

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/hamed0406/netdiag/internal/domain"
)

// RecordTypes are the values accepted by the dns_resolve "record" param.
var RecordTypes = []string{"ip", "a", "aaaa", "cname", "mx", "ns", "txt", "ptr"}

// DNSProber resolves one name per attempt through the system resolver or a
// configured DNS server.
type DNSProber struct {
	server string
}

func NewDNSProber(server string) *DNSProber {
	return &DNSProber{server: server}
}

func (p *DNSProber) Execute(ctx context.Context, req domain.ProbeRequest, attempt int) domain.ProbeOutcome {
	out := begin(req, attempt)

	name := extractHost(req.Target)
	if name == "" || strings.ContainsAny(name, " /") {
		return finish(out, errors.Wrapf(ErrMalformedTarget, "name %q", req.Target))
	}
	record := strings.ToLower(req.Params.String("record", "ip"))
	server := req.Params.String("server", p.server)

	ctx, cancel := attemptContext(ctx, req)
	defer cancel()

	records, err := lookup(ctx, resolverFor(server), record, name)
	if err != nil {
		return finish(out, err)
	}
	if len(records) == 0 {
		return finish(out, errors.Wrapf(ErrNoRecords, "%s %s", record, name))
	}
	out.Detail.Destination = name
	if server != "" {
		out.Detail.Source = server
	}
	out.Detail.Records = records
	return finish(out, nil)
}

func lookup(ctx context.Context, r *net.Resolver, record, name string) ([]string, error) {
	switch record {
	case "ip", "a", "aaaa":
		network := map[string]string{"ip": "ip", "a": "ip4", "aaaa": "ip6"}[record]
		ips, err := r.LookupIP(ctx, network, name)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(ips))
		for _, ip := range ips {
			out = append(out, ip.String())
		}
		return out, nil
	case "cname":
		cname, err := r.LookupCNAME(ctx, name)
		if err != nil {
			return nil, err
		}
		return []string{strings.TrimSuffix(cname, ".")}, nil
	case "mx":
		mxs, err := r.LookupMX(ctx, name)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(mxs))
		for _, mx := range mxs {
			out = append(out, fmt.Sprintf("%d %s", mx.Pref, strings.TrimSuffix(mx.Host, ".")))
		}
		return out, nil
	case "ns":
		nss, err := r.LookupNS(ctx, name)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(nss))
		for _, ns := range nss {
			out = append(out, strings.TrimSuffix(ns.Host, "."))
		}
		return out, nil
	case "txt":
		return r.LookupTXT(ctx, name)
	case "ptr":
		names, err := r.LookupAddr(ctx, name)
		if err != nil {
			return nil, err
		}
		for i := range names {
			names[i] = strings.TrimSuffix(names[i], ".")
		}
		return names, nil
	default:
		return nil, errors.Wrapf(ErrMalformedTarget, "record type %q", record)
	}
}

// resolverFor dials the given DNS server over UDP, or returns the OS
// resolver when server is empty.
func resolverFor(server string) *net.Resolver {
	if server == "" {
		return net.DefaultResolver
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "udp", server)
		},
	}
}

// extractHost accepts bare names as well as URLs and host:port pairs.
func extractHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}
	if h, _, err := net.SplitHostPort(raw); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
}
