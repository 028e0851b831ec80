// Package address models the load-balancer address list published onto
// Ingress status, and its canonical sort order.
package address

import "sort"

// Address is either {IP}, {Hostname}, or both.
type Address struct {
	IP       string
	Hostname string
}

// Sort orders addrs so that every entry carrying an IP precedes every
// entry that doesn't; within the IP-bearing group the order is ascending
// lexicographic IP, and within the no-IP group the input's relative order
// is preserved.
func Sort(addrs []Address) []Address {
	out := make([]Address, len(addrs))
	copy(out, addrs)
	sort.SliceStable(out, func(i, j int) bool {
		iHasIP := out[i].IP != ""
		jHasIP := out[j].IP != ""
		if iHasIP != jHasIP {
			return iHasIP
		}
		if iHasIP && jHasIP {
			return out[i].IP < out[j].IP
		}
		return false
	})
	return out
}

// Equal reports whether two address lists hold the same entries in the
// same order. The status publisher does not call it: it patches every
// matching Ingress without comparing against the current status.
func Equal(lhs, rhs []Address) bool {
	if len(lhs) != len(rhs) {
		return false
	}
	for i := range lhs {
		if lhs[i] != rhs[i] {
			return false
		}
	}
	return true
}
