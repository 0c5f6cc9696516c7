package state

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// Route is a single path to a prefix. Routes are plain values and are cloned on insert.
type Route struct {
	Id        uint32
	Prefix    netip.Prefix
	ASPath    []uint32
	Interface int
	LocalPref uint32
	MED       uint32
}

func (r Route) ASPathLen() int {
	return len(r.ASPath)
}

func (r Route) IsLocal() bool {
	return r.Interface == LocalInterface
}

// NeighbourAS is the AS the route was learned from, or 0 for local routes
func (r Route) NeighbourAS() uint32 {
	if len(r.ASPath) == 0 {
		return 0
	}
	return r.ASPath[0]
}

func (r Route) HasAS(as uint32) bool {
	return slices.Contains(r.ASPath, as)
}

func (r Route) Clone() Route {
	r.ASPath = slices.Clone(r.ASPath)
	return r
}

// SameAttributes compares everything except the id
func (r Route) SameAttributes(o Route) bool {
	return r.Prefix == o.Prefix &&
		r.Interface == o.Interface &&
		r.LocalPref == o.LocalPref &&
		r.MED == o.MED &&
		slices.Equal(r.ASPath, o.ASPath)
}

func (r Route) String() string {
	path := make([]string, 0, len(r.ASPath))
	for _, as := range r.ASPath {
		path = append(path, fmt.Sprint(as))
	}
	iface := fmt.Sprint(r.Interface)
	if r.IsLocal() {
		iface = "local"
	}
	return fmt.Sprintf("(%s id: %d, if: %s, lp: %d, med: %d, path: [%s])",
		r.Prefix, r.Id, iface, r.LocalPref, r.MED, strings.Join(path, " "))
}
