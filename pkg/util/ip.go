package util

import (
	"fmt"
	"net/netip"
)

// ParseHostOrPrefix parses a CIDR prefix, accepting a bare address as a host
// route (fpmsyncd omits the /32 or /128 for host routes). The result is masked.
func ParseHostOrPrefix(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid prefix %q", s)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// ParseAddrList parses a comma-separated address list such as the nexthop
// field of an APPL_DB ROUTE_TABLE entry.
func ParseAddrList(s string) ([]netip.Addr, error) {
	parts := SplitCommaSeparated(s)
	addrs := make([]netip.Addr, 0, len(parts))
	for _, p := range parts {
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", p, err)
		}
		addrs = append(addrs, addr.Unmap())
	}
	return addrs, nil
}

// IsUnspecifiedNextHop reports whether addr is the 0.0.0.0 / :: placeholder
// SONiC writes for directly connected routes.
func IsUnspecifiedNextHop(addr netip.Addr) bool {
	return !addr.IsValid() || addr.IsUnspecified()
}
