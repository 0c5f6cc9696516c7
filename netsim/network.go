package netsim

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/encodeous/bgpsim/perf"
	"github.com/encodeous/bgpsim/state"
)

var (
	ErrLinkDown = errors.New("link is down")
	ErrNoLink   = errors.New("no such link")
)

// Receiver accepts frames for a router. Deliver is always called on the router's task.
type Receiver interface {
	Deliver(frame []byte)
}

// Link is a bidirectional channel between two router interfaces.
// Each direction delivers in order, even when jitter would reorder frames.
type Link struct {
	Cfg   state.LinkCfg
	Down  bool
	ends  [2]port
	last  [2]time.Duration
	stats [2]LinkStats
}

type LinkStats struct {
	Sent      uint64
	Delivered uint64
	Dropped   uint64
}

type port struct {
	router string
	iface  int
}

type endpoint struct {
	link *Link
	side int
}

type host struct {
	clock    state.Clock
	receiver Receiver
}

// Network carries frames between routers with the delay, jitter and loss of each link
type Network struct {
	mu    sync.Mutex
	rng   *rand.Rand
	links map[state.Pair[string, string]]*Link
	ports map[string][]endpoint
	hosts map[string]host
}

func NewNetwork(cfg *state.SimulationCfg) (*Network, error) {
	wiring, err := cfg.Wiring()
	if err != nil {
		return nil, err
	}
	n := &Network{
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		links: make(map[state.Pair[string, string]]*Link),
		ports: make(map[string][]endpoint),
		hosts: make(map[string]host),
	}
	for _, name := range cfg.RouterNames() {
		n.ports[name] = make([]endpoint, len(wiring[name]))
	}
	for _, name := range cfg.RouterNames() {
		for iface, ic := range wiring[name] {
			key := state.MakeSortedPair(name, ic.Neighbor)
			link, ok := n.links[key]
			if !ok {
				link = &Link{Cfg: cfg.LinkBetween(key.V1, key.V2)}
				link.ends[0] = port{router: key.V1}
				link.ends[1] = port{router: key.V2}
				n.links[key] = link
			}
			side := 0
			if name == key.V2 {
				side = 1
			}
			link.ends[side].iface = iface
			n.ports[name][iface] = endpoint{link: link, side: side}
		}
	}
	return n, nil
}

// Attach registers the clock and receiver frames for router are delivered through
func (n *Network) Attach(router string, clock state.Clock, receiver Receiver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hosts[router] = host{clock: clock, receiver: receiver}
}

// Transport returns the data plane of a single router
func (n *Network) Transport(router string) state.Transport {
	return state.TransportFunc(func(iface int, frame []byte) error {
		return n.Send(router, iface, frame)
	})
}

// Send puts a frame on the link behind iface of router. Frames lost on the wire are not reported.
func (n *Network) Send(router string, iface int, frame []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	ports := n.ports[router]
	if iface < 0 || iface >= len(ports) {
		return fmt.Errorf("%w: %s/%d", ErrNoLink, router, iface)
	}
	ep := ports[iface]
	link := ep.link
	if link.Down {
		return fmt.Errorf("%w: %s-%s", ErrLinkDown, link.ends[0].router, link.ends[1].router)
	}
	link.stats[ep.side].Sent++
	if link.Cfg.Loss > 0 && n.rng.Float64() < link.Cfg.Loss {
		link.stats[ep.side].Dropped++
		perf.FramesDropped.Add(1)
		return nil
	}
	dst := link.ends[1-ep.side]
	h, ok := n.hosts[dst.router]
	if !ok {
		link.stats[ep.side].Dropped++
		perf.FramesDropped.Add(1)
		return nil
	}

	delay := link.Cfg.Latency
	if link.Cfg.Jitter > 0 {
		delay += time.Duration(n.rng.Int64N(int64(link.Cfg.Jitter)))
	}
	now := h.clock.Now()
	at := max(now+delay, link.last[ep.side])
	link.last[ep.side] = at
	perf.DeliveryLatencyUs.Add(float64((at - now).Microseconds()))

	side := ep.side
	buf := append([]byte(nil), frame...)
	h.clock.Schedule(at-now, state.TimerTag{Kind: state.DeliveryTimer, Owner: dst.router, Interface: dst.iface}, func(state.TimerTag) {
		n.mu.Lock()
		down := link.Down
		if down {
			link.stats[side].Dropped++
		} else {
			link.stats[side].Delivered++
		}
		n.mu.Unlock()
		if down {
			// frames in flight are lost with the link
			perf.FramesDropped.Add(1)
			return
		}
		perf.FramesDelivered.Add(1)
		h.receiver.Deliver(buf)
	})
	return nil
}

// SetLinkState brings the link between a and b up or down
func (n *Network) SetLinkState(a, b string, up bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	link, ok := n.links[state.MakeSortedPair(a, b)]
	if !ok {
		return fmt.Errorf("%w: %s-%s", ErrNoLink, a, b)
	}
	link.Down = !up
	return nil
}

// Stats returns the frame counters of the a to b direction
func (n *Network) Stats(a, b string) (LinkStats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := state.MakeSortedPair(a, b)
	link, ok := n.links[key]
	if !ok {
		return LinkStats{}, fmt.Errorf("%w: %s-%s", ErrNoLink, a, b)
	}
	if key.V1 == a {
		return link.stats[0], nil
	}
	return link.stats[1], nil
}

func (n *Network) Links() []state.Pair[string, string] {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]state.Pair[string, string], 0, len(n.links))
	for k := range n.links {
		out = append(out, k)
	}
	state.SortPairs(out)
	return out
}
