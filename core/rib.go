package core

import (
	"cmp"
	"errors"
	"net/netip"
	"slices"

	"github.com/encodeous/bgpsim/state"
	"github.com/gaissmai/bart"
)

var (
	ErrTableFull        = errors.New("raw routing table is full")
	ErrRouteIdExhausted = errors.New("route ids exhausted")
)

// RawTable holds every candidate route, at most one per interface for each prefix, in arrival order
type RawTable struct {
	routes bart.Table[[]state.Route]
	size   int
	nextId uint32
	// MaxRoutes bounds the number of stored candidates, 0 is unbounded
	MaxRoutes int
}

func (t *RawTable) Len() int {
	return t.size
}

func (t *RawTable) allocId() (uint32, error) {
	if t.nextId == state.MaxRouteId {
		return 0, ErrRouteIdExhausted
	}
	t.nextId++
	return t.nextId, nil
}

// Insert stores route, replacing the previous candidate from the same interface.
// A replacement with identical attributes keeps the existing id.
func (t *RawTable) Insert(route state.Route) (state.Route, error) {
	route = route.Clone()
	route.Prefix = route.Prefix.Masked()
	cands, _ := t.routes.Get(route.Prefix)
	idx := slices.IndexFunc(cands, func(r state.Route) bool {
		return r.Interface == route.Interface
	})
	if idx != -1 && cands[idx].SameAttributes(route) {
		return cands[idx], nil
	}
	if idx == -1 && t.MaxRoutes > 0 && t.size >= t.MaxRoutes {
		return state.Route{}, ErrTableFull
	}
	id, err := t.allocId()
	if err != nil {
		return state.Route{}, err
	}
	route.Id = id
	cands = slices.Clone(cands)
	if idx != -1 {
		cands = slices.Delete(cands, idx, idx+1)
		t.size--
	}
	cands = append(cands, route)
	t.size++
	t.routes.Insert(route.Prefix, cands)
	return route, nil
}

// Remove deletes the candidate for prefix learned on iface
func (t *RawTable) Remove(prefix netip.Prefix, iface int) (state.Route, bool) {
	prefix = prefix.Masked()
	cands, ok := t.routes.Get(prefix)
	if !ok {
		return state.Route{}, false
	}
	idx := slices.IndexFunc(cands, func(r state.Route) bool {
		return r.Interface == iface
	})
	if idx == -1 {
		return state.Route{}, false
	}
	removed := cands[idx]
	t.size--
	if len(cands) == 1 {
		t.routes.Delete(prefix)
		return removed, true
	}
	t.routes.Insert(prefix, slices.Delete(slices.Clone(cands), idx, idx+1))
	return removed, true
}

// RemoveInterface deletes every candidate learned on iface and returns the affected prefixes
func (t *RawTable) RemoveInterface(iface int) []netip.Prefix {
	affected := make([]netip.Prefix, 0)
	for prefix, cands := range t.routes.All() {
		if slices.ContainsFunc(cands, func(r state.Route) bool {
			return r.Interface == iface
		}) {
			affected = append(affected, prefix)
		}
	}
	for _, prefix := range affected {
		t.Remove(prefix, iface)
	}
	return affected
}

// Candidates returns a copy of the candidates for prefix
func (t *RawTable) Candidates(prefix netip.Prefix) []state.Route {
	cands, _ := t.routes.Get(prefix.Masked())
	out := make([]state.Route, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Clone())
	}
	return out
}

func (t *RawTable) Prefixes() []netip.Prefix {
	out := make([]netip.Prefix, 0)
	for prefix := range t.routes.All() {
		out = append(out, prefix)
	}
	slices.SortFunc(out, comparePrefix)
	return out
}

// Routes returns every candidate, ordered by prefix then arrival
func (t *RawTable) Routes() []state.Route {
	out := make([]state.Route, 0, t.size)
	for _, prefix := range t.Prefixes() {
		out = append(out, t.Candidates(prefix)...)
	}
	return out
}

func (t *RawTable) Clear() {
	t.routes = bart.Table[[]state.Route]{}
	t.size = 0
	t.nextId = 0
}

func comparePrefix(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return cmp.Compare(a.Bits(), b.Bits())
}
