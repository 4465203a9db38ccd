// Package targets parses scan target specifications and resolves hostnames
// before they reach the scan engine.
package targets

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/hostsweep/internal/errors"
)

// Widest ranges accepted, so a mistyped prefix cannot launch a huge sweep.
const (
	minIPv4PrefixBits = 16
	minIPv6PrefixBits = 112
)

// Kind classifies a target specification.
type Kind int

const (
	KindIP Kind = iota
	KindCIDR
	KindHostname
)

func (k Kind) String() string {
	switch k {
	case KindIP:
		return "ip"
	case KindCIDR:
		return "cidr"
	case KindHostname:
		return "hostname"
	default:
		return "unknown"
	}
}

// Target is a parsed target specification.
type Target struct {
	Raw      string
	Kind     Kind
	Addr     netip.Addr
	Prefix   netip.Prefix
	Hostname string
}

// String returns the target as given.
func (t Target) String() string {
	return t.Raw
}

var hostnameValidator = validator.New()

// Parse classifies spec as an IP literal, a CIDR range or an RFC 1123
// hostname. Anything else is a target error.
func Parse(spec string) (Target, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Target{}, errors.ErrInvalidTarget(spec, "target is empty")
	}

	if addr, err := netip.ParseAddr(raw); err == nil {
		return Target{Raw: raw, Kind: KindIP, Addr: addr}, nil
	}

	if strings.Contains(raw, "/") {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return Target{}, errors.ErrInvalidTarget(raw, "malformed CIDR range")
		}
		minBits := minIPv4PrefixBits
		if prefix.Addr().Is6() {
			minBits = minIPv6PrefixBits
		}
		if prefix.Bits() < minBits {
			return Target{}, errors.ErrInvalidTarget(raw,
				fmt.Sprintf("CIDR range wider than /%d is not allowed", minBits))
		}
		return Target{Raw: raw, Kind: KindCIDR, Prefix: prefix, Addr: prefix.Addr()}, nil
	}

	// A fully qualified name may end in the root label.
	host := strings.TrimSuffix(raw, ".")
	if looksNumeric(host) {
		return Target{}, errors.ErrInvalidTarget(raw, "not a valid IP address")
	}
	if err := hostnameValidator.Var(host, "hostname_rfc1123"); err != nil {
		return Target{}, errors.ErrInvalidTarget(raw, "not a valid hostname")
	}
	return Target{Raw: raw, Kind: KindHostname, Hostname: strings.ToLower(host)}, nil
}

// looksNumeric catches dotted or colon-separated numbers such as 999.1.1.1
// that the hostname grammar would otherwise accept.
func looksNumeric(s string) bool {
	if !strings.ContainsAny(s, ".:") {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ':' {
			return false
		}
	}
	return true
}
