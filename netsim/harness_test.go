package netsim

import (
	"io"
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/bgpsim/core"
	"github.com/encodeous/bgpsim/state"
	"github.com/stretchr/testify/require"
)

func router(name string, as uint32, prefixes ...string) state.RouterCfg {
	cfg := state.RouterCfg{Name: name, AS: as}
	for _, p := range prefixes {
		cfg.Prefixes = append(cfg.Prefixes, netip.MustParsePrefix(p))
	}
	return cfg
}

func testSession() state.SessionCfg {
	return state.SessionCfg{
		HoldDown:          9 * time.Second,
		KeepaliveFraction: 3,
		ConnectRetry:      30 * time.Second,
		Resync:            true,
		QuietAnomalies:    true,
	}
}

func newTestSim(t *testing.T, cfg *state.SimulationCfg, realtime bool) *Simulation {
	sim, err := New(cfg, Options{
		Realtime:  realtime,
		LogOutput: io.Discard,
		Context:   t.Context(),
	})
	require.NoError(t, err)
	require.NoError(t, sim.Start())
	t.Cleanup(sim.Stop)
	return sim
}

// ifaceTo finds the interface router uses to reach neighbor
func ifaceTo(t *testing.T, r *core.Router, neighbor string) int {
	for i, ic := range r.Interfaces {
		if ic.Neighbor == neighbor {
			return i
		}
	}
	t.Fatalf("%s has no interface to %s", r.Name, neighbor)
	return -1
}

func lookup(t *testing.T, sim *Simulation, name, prefix string) (state.Route, bool) {
	var (
		route state.Route
		ok    bool
	)
	require.NoError(t, sim.Inspect(name, func(r *core.Router) error {
		route, ok = r.Table.LookupPrefix(netip.MustParsePrefix(prefix))
		return nil
	}))
	return route, ok
}

func sessionUp(t *testing.T, sim *Simulation, name, neighbor string) bool {
	var up bool
	require.NoError(t, sim.Inspect(name, func(r *core.Router) error {
		up = r.Sessions.IsValid(ifaceTo(t, r, neighbor))
		return nil
	}))
	return up
}
