package netsim

import (
	"testing"
	"time"

	"github.com/encodeous/bgpsim/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	clock  state.Clock
	frames []byte
	at     []time.Duration
}

func (r *recorder) Deliver(frame []byte) {
	r.frames = append(r.frames, frame[0])
	r.at = append(r.at, r.clock.Now())
}

func newTestNetwork(t *testing.T, link state.LinkCfg) (*Network, *state.VirtualClock, *recorder) {
	cfg := &state.SimulationCfg{
		Routers: []state.RouterCfg{{Name: "a"}, {Name: "b"}},
		Graph:   []string{"a, b"},
		Links:   []state.LinkCfg{link},
		Seed:    42,
	}
	n, err := NewNetwork(cfg)
	require.NoError(t, err)
	clock := state.NewVirtualClock()
	rec := &recorder{clock: clock}
	n.Attach("a", clock, &recorder{clock: clock})
	n.Attach("b", clock, rec)
	return n, clock, rec
}

func TestNetworkDeliversAfterLatency(t *testing.T) {
	n, clock, rec := newTestNetwork(t, state.LinkCfg{A: "a", B: "b", Latency: 5 * time.Millisecond})
	require.NoError(t, n.Send("a", 0, []byte{1}))
	clock.Advance(4 * time.Millisecond)
	assert.Empty(t, rec.frames)
	clock.Advance(time.Millisecond)
	assert.Equal(t, []byte{1}, rec.frames)
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, rec.at)

	stats, err := n.Stats("a", "b")
	require.NoError(t, err)
	assert.Equal(t, LinkStats{Sent: 1, Delivered: 1}, stats)
}

func TestNetworkKeepsOrderUnderJitter(t *testing.T) {
	n, clock, rec := newTestNetwork(t, state.LinkCfg{A: "a", B: "b", Latency: time.Millisecond, Jitter: 50 * time.Millisecond})
	for i := range 100 {
		require.NoError(t, n.Send("a", 0, []byte{byte(i)}))
		clock.Advance(100 * time.Microsecond)
	}
	clock.Advance(time.Second)
	require.Len(t, rec.frames, 100)
	for i, b := range rec.frames {
		assert.Equal(t, byte(i), b)
	}
}

func TestNetworkLoss(t *testing.T) {
	n, clock, rec := newTestNetwork(t, state.LinkCfg{A: "a", B: "b", Latency: time.Millisecond, Loss: 1})
	require.NoError(t, n.Send("a", 0, []byte{1}))
	clock.Advance(time.Second)
	assert.Empty(t, rec.frames)
	stats, _ := n.Stats("a", "b")
	assert.Equal(t, uint64(1), stats.Dropped)
}

func TestNetworkLinkDown(t *testing.T) {
	n, clock, rec := newTestNetwork(t, state.LinkCfg{A: "a", B: "b", Latency: 10 * time.Millisecond})
	require.NoError(t, n.Send("a", 0, []byte{1}))
	require.NoError(t, n.SetLinkState("b", "a", false))
	assert.ErrorIs(t, n.Send("a", 0, []byte{2}), ErrLinkDown)

	// the frame already in flight is lost too
	clock.Advance(time.Second)
	assert.Empty(t, rec.frames)

	require.NoError(t, n.SetLinkState("a", "b", true))
	require.NoError(t, n.Send("a", 0, []byte{3}))
	clock.Advance(time.Second)
	assert.Equal(t, []byte{3}, rec.frames)

	assert.ErrorIs(t, n.Send("a", 5, []byte{4}), ErrNoLink)
	assert.ErrorIs(t, n.SetLinkState("a", "c", true), ErrNoLink)
	assert.Equal(t, []state.Pair[string, string]{{V1: "a", V2: "b"}}, n.Links())
}
