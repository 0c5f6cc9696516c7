package core

import (
	"io"
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/bgpsim/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestRouter(t *testing.T, sess state.SessionCfg) (*Router, *state.State, *wire, *state.VirtualClock) {
	clock := state.NewVirtualClock()
	w := &wire{t: t}
	sess.HoldDown = 9 * time.Second
	sess.KeepaliveFraction = 3
	sess.OpenPolicy = state.OpenIgnore
	s, _, err := NewState(Options{
		Router: state.RouterCfg{
			Name:       "a",
			AS:         65000,
			Identifier: "a",
			LocalPref:  100,
			Prefixes:   []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
		},
		Session:    sess,
		Interfaces: []state.InterfaceCfg{{Neighbor: "b", NeighborInterface: 0}},
		Transport:  w,
		Clock:      clock,
		LogOutput:  io.Discard,
		Context:    t.Context(),
	})
	require.NoError(t, err)
	require.NoError(t, InitModules(s))
	t.Cleanup(func() {
		Stop(s)
	})
	return Get[*Router](s), s, w, clock
}

func encode(t *testing.T, msg *state.Message) []byte {
	frame, err := state.MarshalMessage(msg)
	require.NoError(t, err)
	return frame
}

func TestRouterBootstrapsAndOriginates(t *testing.T) {
	r, s, w, clock := newTestRouter(t, state.SessionCfg{Resync: true})
	assert.True(t, s.Started.Load())

	best, ok := r.Table.LookupPrefix(netip.MustParsePrefix("10.0.0.0/8"))
	require.True(t, ok)
	assert.True(t, best.IsLocal())

	clock.RunUntil(0)
	open, ok := w.find(0, state.MsgOpen)
	require.True(t, ok)
	assert.False(t, open.Open.Reply)
	w.take()

	r.Deliver(encode(t, openMsg(0, false)))
	assert.True(t, r.Sessions.IsValid(0))
	upd, ok := w.find(0, state.MsgUpdate)
	require.True(t, ok)
	assert.Equal(t, []uint32{65000}, upd.Update.ASPath)
}

func TestRouterDropsMalformedFrames(t *testing.T) {
	r, _, _, _ := newTestRouter(t, state.SessionCfg{})
	r.Deliver([]byte{0xff, 0xff, 0xff})
	assert.Equal(t, uint64(1), r.Sessions.Anomalies()[Malformed])
}

func TestRouterShutdownRevive(t *testing.T) {
	r, _, w, clock := newTestRouter(t, state.SessionCfg{Resync: true})
	clock.RunUntil(0)
	r.Deliver(encode(t, openMsg(0, false)))
	r.Deliver(encode(t, updateMsg(0, "192.168.0.0/16", 65001)))
	w.take()

	r.Shutdown()
	assert.False(t, r.Sessions.IsValid(0))
	assert.Empty(t, r.Table.MainRoutes())
	assert.Equal(t, 0, r.Table.RawLen())
	_, ok := w.find(0, state.MsgNotification)
	assert.True(t, ok)

	// nothing is accepted while down
	r.Deliver(encode(t, openMsg(0, false)))
	assert.False(t, r.Sessions.IsValid(0))

	w.take()
	require.NoError(t, r.Revive())
	_, ok = w.find(0, state.MsgOpen)
	assert.True(t, ok)
	_, ok = r.Table.LookupPrefix(netip.MustParsePrefix("10.0.0.0/8"))
	assert.True(t, ok)

	// reviving a running router does nothing
	w.take()
	require.NoError(t, r.Revive())
	assert.Empty(t, w.take())
}

// nextChange waits for the next traced change of prefix, skipping changes published before the listener joined
func nextChange(t *testing.T, changes <-chan any, prefix netip.Prefix) RouteChange {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ch := <-changes:
			if change := ch.(RouteChange); change.Prefix == prefix {
				return change
			}
		case <-timeout:
			t.Fatalf("change of %s was not traced", prefix)
		}
	}
}

func TestRouterTracesChanges(t *testing.T) {
	defer goleak.VerifyNone(t)
	r, s, _, clock := newTestRouter(t, state.SessionCfg{})
	changes := make(chan any, 8)
	trace := Get[*RouteTrace](s)
	trace.Register(changes)

	prefix := netip.MustParsePrefix("172.16.0.0/12")
	clock.Advance(time.Second)
	require.NoError(t, r.Originate(prefix))
	change := nextChange(t, changes, prefix)
	assert.Equal(t, "a", change.Router)
	assert.Equal(t, time.Second, change.At)
	assert.Nil(t, change.Old)
	assert.NotNil(t, change.New)

	r.StopOriginating(prefix)
	change = nextChange(t, changes, prefix)
	assert.Nil(t, change.New)
	assert.NotNil(t, change.Old)

	trace.Unregister(changes)
	Stop(s)
}

func TestRouterInspect(t *testing.T) {
	r, _, _, clock := newTestRouter(t, state.SessionCfg{})
	clock.RunUntil(0)
	r.Deliver(encode(t, openMsg(0, false)))
	r.Deliver(encode(t, updateMsg(0, "192.168.0.0/16", 65001)))
	r.Deliver(encode(t, openMsg(0, false)))

	out := r.Inspect()
	assert.Contains(t, out, "Router a (AS 65000, id a)")
	assert.Contains(t, out, "if 0 -> b")
	assert.Contains(t, out, "peer n0, AS 65001")
	assert.Contains(t, out, "192.168.0.0/16")
	assert.Contains(t, out, "duplicate open: 1")
}
