package resolver

import (
	"fmt"
	"net/netip"
)

// parseLiteral parses host as a literal IPv4/IPv6 address. IPv6 literals may
// be bracketed ("[::1]") per RFC 3986; brackets are stripped before parsing.
func parseLiteral(host string) (netip.Addr, error) {
	if len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolver: not a literal address: %w", err)
	}
	return addr, nil
}
