package core

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/bgpsim/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// PeerHarness records everything the routing table asks its peers to do
type PeerHarness struct {
	ifaces  []int
	valid   map[int]bool
	actions []HarnessEvent
}

func NewPeerHarness(ifaces ...int) *PeerHarness {
	h := &PeerHarness{valid: make(map[int]bool)}
	for _, i := range ifaces {
		h.ifaces = append(h.ifaces, i)
		h.valid[i] = true
	}
	return h
}

func (h *PeerHarness) SetValid(iface int, valid bool) {
	h.valid[iface] = valid
}

func (h *PeerHarness) Interfaces() []int {
	return slices.Clone(h.ifaces)
}

func (h *PeerHarness) IsValid(iface int) bool {
	return h.valid[iface]
}

func (h *PeerHarness) SendUpdate(iface int, adv state.RouteUpdate) {
	h.actions = append(h.actions, MakeEvent("UPDATE_ROUTE", iface, adv.Prefix, adv.ASPath, adv.LocalPref, adv.MED))
}

func (h *PeerHarness) SendWithdraw(iface int, prefix netip.Prefix) {
	h.actions = append(h.actions, MakeEvent("WITHDRAW_ROUTE", iface, prefix))
}

func (h *PeerHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns the recorded sends and forgets them. Logs are kept.
func (h *PeerHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	logs := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		} else {
			logs = append(logs, action)
		}
	}
	h.actions = logs
	return x
}

// GetLogs returns every router event recorded so far
func (h *PeerHarness) GetLogs() []RouterEvent {
	x := make([]RouterEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action.Args[0].(RouterEvent))
		}
	}
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg, cmpopts.EquateComparable(netip.Prefix{})) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

func (e HarnessEvents) Count(msg string) int {
	n := 0
	for _, event := range e {
		if event.Message == msg {
			n++
		}
	}
	return n
}

func MakeRoute(prefix string, lp, med uint32, path ...uint32) state.Route {
	return state.Route{
		Prefix:    netip.MustParsePrefix(prefix),
		ASPath:    path,
		LocalPref: lp,
		MED:       med,
	}
}

func NewTestTable(as uint32, h *PeerHarness) *RoutingTable {
	return NewRoutingTable(state.RouterCfg{
		Name:      "a",
		AS:        as,
		LocalPref: 100,
	}, state.SessionCfg{}, h)
}

var routeOpts = cmp.Options{
	cmpopts.EquateComparable(netip.Prefix{}),
	cmpopts.EquateEmpty(),
}
