package core

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/encodeous/bgpsim/state"
	"github.com/gaissmai/bart"
)

// LocalOriginPref ranks locally originated routes above anything learned from a peer
const LocalOriginPref = ^uint32(0)

// Peers is the output side of the routing table
type Peers interface {
	Interfaces() []int
	IsValid(iface int) bool
	SendUpdate(iface int, adv state.RouteUpdate)
	SendWithdraw(iface int, prefix netip.Prefix)
	Log(event RouterEvent, desc string, args ...any)
}

// RouteChange describes a main table transition. Old or New is nil when the prefix appears or disappears.
type RouteChange struct {
	At     time.Duration
	Router string
	Prefix netip.Prefix
	Old    *state.Route
	New    *state.Route
}

func (c RouteChange) String() string {
	switch {
	case c.New == nil:
		return fmt.Sprintf("[%s] %s: withdrawn %s", c.At, c.Router, c.Prefix)
	case c.Old == nil:
		return fmt.Sprintf("[%s] %s: selected %s", c.At, c.Router, c.New)
	}
	return fmt.Sprintf("[%s] %s: replaced %s with %s", c.At, c.Router, c.Old, c.New)
}

// RoutingTable owns the raw and main tables, and turns candidate changes into advertisements and withdrawals
type RoutingTable struct {
	Name      string
	AS        uint32
	LocalPref uint32 // advertised with every update
	MED       uint32 // advertised with every update
	Resync    bool

	raw       RawTable
	main      bart.Table[state.Route]
	overrides map[uint32]uint32
	peers     Peers
	// OnChange observes main table transitions
	OnChange func(RouteChange)
}

func NewRoutingTable(cfg state.RouterCfg, sess state.SessionCfg, peers Peers) *RoutingTable {
	t := &RoutingTable{
		Name:      cfg.Name,
		AS:        cfg.AS,
		LocalPref: cfg.LocalPref,
		MED:       cfg.MED,
		Resync:    sess.Resync,
		overrides: make(map[uint32]uint32),
		peers:     peers,
	}
	t.raw.MaxRoutes = sess.MaxRoutes
	for as, pref := range cfg.LocalPrefOverrides {
		t.overrides[as] = pref
	}
	return t
}

// IngestUpdate stores a route learned on from and propagates the selection change, if any.
// A route whose AS path already contains our AS is treated as a withdrawal from that interface.
func (t *RoutingTable) IngestUpdate(route state.Route, from int) error {
	route = route.Clone()
	route.Prefix = route.Prefix.Masked()
	route.Interface = from
	if from != state.LocalInterface {
		if route.HasAS(t.AS) {
			t.peers.Log(LoopRejected, "as path contains our as", "prefix", route.Prefix, "path", route.ASPath, "if", from)
			t.IngestWithdraw(route.Prefix, from)
			return nil
		}
		if pref, ok := t.overrides[route.NeighbourAS()]; ok {
			route.LocalPref = pref
		}
	}
	stored, err := t.raw.Insert(route)
	if err != nil {
		if errors.Is(err, ErrRouteIdExhausted) {
			t.peers.Log(RouteIdExhausted, "dropping route", "prefix", route.Prefix, "if", from)
			// the previous candidate from this interface is stale now
			t.IngestWithdraw(route.Prefix, from)
		} else {
			t.peers.Log(TableFull, "dropping route", "prefix", route.Prefix, "if", from, "size", t.raw.Len())
		}
		return fmt.Errorf("ingest %s from interface %d: %w", route.Prefix, from, err)
	}
	t.reselect(stored.Prefix, from)
	return nil
}

// IngestWithdraw removes the candidate learned on from and propagates the selection change, if any
func (t *RoutingTable) IngestWithdraw(prefix netip.Prefix, from int) {
	prefix = prefix.Masked()
	if _, ok := t.raw.Remove(prefix, from); !ok {
		return
	}
	t.reselect(prefix, from)
}

// OnSessionDown purges every candidate learned on iface, recomputing only the affected prefixes
func (t *RoutingTable) OnSessionDown(iface int) {
	for _, prefix := range t.raw.RemoveInterface(iface) {
		t.reselect(prefix, iface)
	}
}

// OnSessionUp leaves the tables alone. With resync enabled, the peer is sent the whole main table.
func (t *RoutingTable) OnSessionUp(iface int) {
	if !t.Resync || !t.peers.IsValid(iface) {
		return
	}
	routes := t.MainRoutes()
	t.peers.Log(TableResync, "sending main table", "if", iface, "routes", len(routes))
	for _, route := range routes {
		if route.Interface == iface {
			continue
		}
		t.peers.SendUpdate(iface, t.export(route))
	}
}

// Originate installs a locally originated route for prefix
func (t *RoutingTable) Originate(prefix netip.Prefix) error {
	return t.IngestUpdate(state.Route{
		Prefix:    prefix,
		LocalPref: LocalOriginPref,
	}, state.LocalInterface)
}

func (t *RoutingTable) StopOriginating(prefix netip.Prefix) {
	t.IngestWithdraw(prefix, state.LocalInterface)
}

// SetLocalPreference overrides the local preference of routes subsequently learned from as
func (t *RoutingTable) SetLocalPreference(as uint32, pref uint32) {
	t.overrides[as] = pref
}

func (t *RoutingTable) RemoveLocalPreference(as uint32) {
	delete(t.overrides, as)
}

// Clear drops every route, withdrawing them from valid peers
func (t *RoutingTable) Clear() {
	prefixes := t.raw.Prefixes()
	t.raw.Clear()
	for _, prefix := range prefixes {
		t.reselect(prefix, state.LocalInterface)
	}
}

func (t *RoutingTable) export(route state.Route) state.RouteUpdate {
	path := make([]uint32, 0, len(route.ASPath)+1)
	path = append(path, t.AS)
	path = append(path, route.ASPath...)
	return state.RouteUpdate{
		Prefix:    route.Prefix,
		ASPath:    path,
		LocalPref: t.LocalPref,
		MED:       t.MED,
	}
}

func (t *RoutingTable) reselect(prefix netip.Prefix, from int) {
	best, ok := SelectBest(t.raw.Candidates(prefix))
	cur, had := t.main.Get(prefix)

	if !ok {
		if !had {
			return
		}
		t.main.Delete(prefix)
		t.peers.Log(RouteWithdrawn, "no candidates left", "prefix", prefix)
		t.notify(prefix, &cur, nil)
		for _, iface := range t.peers.Interfaces() {
			if iface != from && t.peers.IsValid(iface) {
				t.peers.SendWithdraw(iface, prefix)
			}
		}
		return
	}
	if had && cur.Id == best.Id {
		t.peers.Log(RouteUnchanged, "selection unchanged", "prefix", prefix, "route", best)
		return
	}

	t.main.Insert(prefix, best.Clone())
	if had {
		t.peers.Log(RouteReplaced, "new best route", "prefix", prefix, "old", cur, "new", best)
		t.notify(prefix, &cur, &best)
	} else {
		t.peers.Log(RouteSelected, "new route", "prefix", prefix, "route", best)
		t.notify(prefix, nil, &best)
	}

	adv := t.export(best)
	for _, iface := range t.peers.Interfaces() {
		if !t.peers.IsValid(iface) {
			continue
		}
		if iface == from {
			// we previously offered from a path through someone else, which we no longer use
			if iface == best.Interface && had && cur.Interface != from {
				t.peers.SendWithdraw(iface, prefix)
			}
			continue
		}
		t.peers.SendUpdate(iface, adv)
	}
}

func (t *RoutingTable) notify(prefix netip.Prefix, old, next *state.Route) {
	if t.OnChange == nil {
		return
	}
	ch := RouteChange{Router: t.Name, Prefix: prefix}
	if old != nil {
		o := old.Clone()
		ch.Old = &o
	}
	if next != nil {
		n := next.Clone()
		ch.New = &n
	}
	t.OnChange(ch)
}

// Lookup returns the longest-prefix match for addr in the main table
func (t *RoutingTable) Lookup(addr netip.Addr) (state.Route, bool) {
	r, ok := t.main.Lookup(addr)
	if !ok {
		return state.Route{}, false
	}
	return r.Clone(), true
}

// LookupPrefix returns the selected route for exactly prefix
func (t *RoutingTable) LookupPrefix(prefix netip.Prefix) (state.Route, bool) {
	r, ok := t.main.Get(prefix.Masked())
	if !ok {
		return state.Route{}, false
	}
	return r.Clone(), true
}

func (t *RoutingTable) MainRoutes() []state.Route {
	out := make([]state.Route, 0)
	for _, r := range t.main.All() {
		out = append(out, r.Clone())
	}
	slices.SortFunc(out, func(a, b state.Route) int {
		return comparePrefix(a.Prefix, b.Prefix)
	})
	return out
}

func (t *RoutingTable) RawRoutes() []state.Route {
	return t.raw.Routes()
}

func (t *RoutingTable) RawLen() int {
	return t.raw.Len()
}

// Coverage is the address space reachable through the main table, coalesced
func (t *RoutingTable) Coverage() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0)
	for prefix := range t.main.All() {
		prefixes = append(prefixes, prefix)
	}
	return state.CoalescePrefix(prefixes)
}

func dumpRoutes(title string, routes []state.Route) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%s (%d routes)\n", title, len(routes)))
	for _, r := range routes {
		sb.WriteString("  ")
		sb.WriteString(r.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *RoutingTable) StringMain() string {
	return dumpRoutes(t.Name+" main table", t.MainRoutes())
}

func (t *RoutingTable) StringRaw() string {
	return dumpRoutes(t.Name+" raw table", t.RawRoutes())
}
