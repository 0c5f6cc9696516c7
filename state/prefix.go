package state

import (
	"net"
	"net/netip"

	"github.com/cilium/cilium/pkg/ip"
	"github.com/gaissmai/bart"
)

func toIPNets(prefixes []netip.Prefix) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(prefixes))
	for _, p := range prefixes {
		if p.IsValid() {
			nets = append(nets, &net.IPNet{
				IP:   p.Addr().AsSlice(),
				Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
			})
		}
	}
	return nets
}

func fromIPNets(nets []*net.IPNet) []netip.Prefix {
	output := make([]netip.Prefix, 0, len(nets))
	for _, n := range nets {
		if addr, ok := netip.AddrFromSlice(n.IP); ok {
			ones, _ := n.Mask.Size()
			output = append(output, netip.PrefixFrom(addr.Unmap(), ones))
		}
	}
	return output
}

// CoalescePrefix merges adjacent and overlapping prefixes into the smallest covering set
func CoalescePrefix(prefixes []netip.Prefix) []netip.Prefix {
	ipv4, ipv6 := ip.CoalesceCIDRs(toIPNets(prefixes))
	return fromIPNets(append(ipv4, ipv6...))
}

// SubtractPrefix returns the address space of includes not covered by excludes
func SubtractPrefix(includes, excludes []netip.Prefix) []netip.Prefix {
	// RemoveCIDRs can only carve an exclude out of an include that contains it,
	// so includes covered by an exclude are dropped here
	covered := bart.Table[struct{}]{}
	for _, p := range excludes {
		if p.IsValid() {
			covered.Insert(p.Masked(), struct{}{})
		}
	}
	remaining := make([]netip.Prefix, 0, len(includes))
	for _, p := range includes {
		if !p.IsValid() {
			continue
		}
		if _, ok := covered.LookupPrefix(p.Masked()); !ok {
			remaining = append(remaining, p.Masked())
		}
	}
	if len(remaining) == 0 {
		return []netip.Prefix{}
	}
	result := ip.RemoveCIDRs(toIPNets(remaining), toIPNets(excludes))
	ipv4, ipv6 := ip.CoalesceCIDRs(result)
	return fromIPNets(append(ipv4, ipv6...))
}
