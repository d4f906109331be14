package xcdserver

import (
	"fmt"
	"net"
)

// parseCIDR parses a subnet string, returning both the parsed network
// address and the *net.IPNet describing its range, the way create_network
// validates the subnet argument before handing it to netalloc.
func parseCIDR(s string) (net.IP, *net.IPNet, error) {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid subnet %q: %w", s, err)
	}
	return ip, ipnet, nil
}

// lastAddrOf returns the broadcast (highest) address of an IPv4 subnet,
// used as a network's default allocation range upper bound.
func lastAddrOf(n *net.IPNet) net.IP {
	ip4 := n.IP.To4()
	mask := n.Mask
	last := make(net.IP, 4)
	for i := range ip4 {
		last[i] = ip4[i] | ^mask[i]
	}
	return last
}
