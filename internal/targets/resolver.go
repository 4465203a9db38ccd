package targets

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
)

const (
	resolvConfPath        = "/etc/resolv.conf"
	fallbackServer        = "8.8.8.8:53"
	defaultResolveTimeout = 5 * time.Second
)

// Resolver turns a hostname into addresses.
type Resolver interface {
	Resolve(ctx context.Context, hostname string) ([]netip.Addr, error)
}

// DNSResolver queries A then AAAA records against one DNS server.
type DNSResolver struct {
	server string
	client *dns.Client
}

// DefaultServer returns the first nameserver of /etc/resolv.conf, or
// 8.8.8.8:53 when none is configured.
func DefaultServer() string {
	cfg, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(cfg.Servers) == 0 {
		return fallbackServer
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// NewDNSResolver creates a resolver for server (host:port). An empty server
// uses DefaultServer.
func NewDNSResolver(server string) *DNSResolver {
	if server == "" {
		server = DefaultServer()
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: defaultResolveTimeout},
	}
}

// Server returns the nameserver address in use.
func (r *DNSResolver) Server() string {
	return r.server
}

// Resolve returns IPv4 addresses followed by IPv6 addresses. A name that
// does not exist yields an empty slice and no error.
func (r *DNSResolver) Resolve(ctx context.Context, hostname string) ([]netip.Addr, error) {
	var addrs []netip.Addr
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := r.query(ctx, hostname, qtype)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, found...)
	}
	return addrs, nil
}

func (r *DNSResolver) query(ctx context.Context, hostname string, qtype uint16) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(hostname), qtype)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return nil, fmt.Errorf("dns query %s %s: %w", dns.TypeToString[qtype], hostname, err)
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("dns query %s %s: %s", dns.TypeToString[qtype], hostname, dns.RcodeToString[in.Rcode])
	}

	var addrs []netip.Addr
	for _, rr := range in.Answer {
		var ip net.IP
		switch rec := rr.(type) {
		case *dns.A:
			ip = rec.A
		case *dns.AAAA:
			ip = rec.AAAA
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}
	return addrs, nil
}

// ResolveTarget checks that a hostname target resolves to at least one
// address. IP and CIDR targets pass through untouched.
func ResolveTarget(ctx context.Context, r Resolver, t Target) ([]netip.Addr, error) {
	if t.Kind != KindHostname {
		if t.Kind == KindIP {
			return []netip.Addr{t.Addr}, nil
		}
		return nil, nil
	}

	addrs, err := r.Resolve(ctx, t.Hostname)
	if err != nil {
		return nil, errors.ErrInvalidTarget(t.Raw, fmt.Sprintf("hostname lookup failed: %v", err))
	}
	if len(addrs) == 0 {
		return nil, errors.ErrInvalidTarget(t.Raw, "hostname does not resolve")
	}
	logging.Debug("Resolved target hostname", "target", t.Raw, "addresses", len(addrs))
	return addrs, nil
}
