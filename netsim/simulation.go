package netsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/encodeous/bgpsim/core"
	"github.com/encodeous/bgpsim/state"
)

var ErrUnknownRouter = errors.New("unknown router")

type Options struct {
	// Realtime runs every router on its own main loop against the wall clock.
	// Otherwise all routers share one VirtualClock driven by Run.
	Realtime  bool
	LogLevel  slog.Level
	LogOutput io.Writer
	Context   context.Context
}

type node struct {
	name     string
	state    *state.State
	dispatch chan func(*state.State) error
	router   *core.Router
}

// Simulation is a set of routers joined by a Network
type Simulation struct {
	Cfg   *state.SimulationCfg
	Net   *Network
	Clock *state.VirtualClock // nil when realtime
	Log   *slog.Logger

	realtime bool
	ctx      context.Context
	cancel   context.CancelCauseFunc
	nodes    map[string]*node
	wg       sync.WaitGroup
	errs     chan error
	started  bool
	start    time.Time
}

// New expands and validates cfg, then prepares every router without starting it
func New(cfg *state.SimulationCfg, opts Options) (*Simulation, error) {
	state.ExpandSimulationConfig(cfg)
	if err := state.SimulationConfigValidator(cfg); err != nil {
		return nil, err
	}
	wiring, err := cfg.Wiring()
	if err != nil {
		return nil, err
	}
	network, err := NewNetwork(cfg)
	if err != nil {
		return nil, err
	}
	parent := opts.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	sim := &Simulation{
		Cfg:      cfg,
		Net:      network,
		realtime: opts.Realtime,
		ctx:      ctx,
		cancel:   cancel,
		nodes:    make(map[string]*node),
		errs:     make(chan error, len(cfg.Routers)),
		start:    time.Now(),
	}
	if !opts.Realtime {
		sim.Clock = state.NewVirtualClock()
	}
	sim.Log, err = core.NewLogger("sim", opts.LogLevel, opts.LogOutput, "", sim.Now)
	if err != nil {
		cancel(err)
		return nil, err
	}

	for _, rt := range cfg.Routers {
		copts := core.Options{
			Router:     rt,
			Session:    cfg.Session,
			Interfaces: wiring[rt.Name],
			Transport:  network.Transport(rt.Name),
			LogLevel:   opts.LogLevel,
			LogOutput:  opts.LogOutput,
			Context:    ctx,
		}
		if sim.Clock != nil {
			copts.Clock = sim.Clock
		}
		s, dispatch, err := core.NewState(copts)
		if err != nil {
			cancel(err)
			return nil, fmt.Errorf("failed to create router %s: %w", rt.Name, err)
		}
		sim.nodes[rt.Name] = &node{name: rt.Name, state: s, dispatch: dispatch}
	}
	return sim, nil
}

// Now is the simulated time, or the time since the simulation was created when running in realtime
func (sim *Simulation) Now() time.Duration {
	if sim.Clock != nil {
		return sim.Clock.Now()
	}
	return time.Since(sim.start)
}

func (sim *Simulation) Routers() []string {
	return sim.Cfg.RouterNames()
}

// Start initializes every router and schedules the scripted events
func (sim *Simulation) Start() error {
	if sim.started {
		return errors.New("simulation already started")
	}
	sim.started = true
	for _, name := range sim.Routers() {
		n := sim.nodes[name]
		if err := core.InitModules(n.state); err != nil {
			return fmt.Errorf("failed to start router %s: %w", name, err)
		}
		n.router = core.Get[*core.Router](n.state)
		sim.Net.Attach(name, n.state.Clock, n.router)
	}
	for _, ev := range sim.Cfg.Events {
		sim.schedule(ev)
	}
	if !sim.realtime {
		return nil
	}
	for _, name := range sim.Routers() {
		n := sim.nodes[name]
		sim.wg.Add(1)
		go func() {
			defer sim.wg.Done()
			pprof.Do(context.Background(), pprof.Labels("router", n.name), func(context.Context) {
				if err := core.MainLoop(n.state, n.dispatch); err != nil {
					sim.errs <- err
				}
			})
		}()
	}
	return nil
}

func (sim *Simulation) schedule(ev state.EventCfg) {
	n := sim.nodes[ev.Router]
	delay := ev.At
	if sim.Clock != nil {
		delay = max(ev.At-sim.Clock.Now(), 0)
	}
	n.state.ScheduleTask(func(s *state.State) error {
		sim.Log.Info("event", "action", ev.Action, "router", ev.Router, "peer", ev.Peer, "prefix", ev.Prefix)
		return sim.apply(n, ev)
	}, delay)
}

func (sim *Simulation) apply(n *node, ev state.EventCfg) error {
	switch ev.Action {
	case state.ActionLinkDown:
		return sim.Net.SetLinkState(ev.Router, ev.Peer, false)
	case state.ActionLinkUp:
		return sim.Net.SetLinkState(ev.Router, ev.Peer, true)
	case state.ActionShutdown:
		n.router.Shutdown()
	case state.ActionRevive:
		return n.router.Revive()
	case state.ActionOriginate:
		if err := n.router.Originate(ev.Prefix); err != nil {
			// a full table is not fatal to the router
			sim.Log.Warn("failed to originate", "router", n.name, "prefix", ev.Prefix, "error", err)
		}
	case state.ActionWithdraw:
		n.router.StopOriginating(ev.Prefix)
	default:
		return fmt.Errorf("unknown event action %q", ev.Action)
	}
	return nil
}

// Run advances the simulation by d. On the virtual clock it returns the number of events fired.
func (sim *Simulation) Run(d time.Duration) (int, error) {
	if !sim.started {
		return 0, errors.New("simulation not started")
	}
	if sim.Clock != nil {
		fired := sim.Clock.Advance(d)
		return fired, sim.Err()
	}
	select {
	case <-time.After(d):
	case <-sim.ctx.Done():
	case err := <-sim.errs:
		return 0, err
	}
	return 0, sim.Err()
}

// Err reports why the first router stopped, if any has
func (sim *Simulation) Err() error {
	for _, name := range sim.Routers() {
		s := sim.nodes[name].state
		if s.Context.Err() != nil && !sim.stopping() {
			return fmt.Errorf("router %s stopped: %w", name, context.Cause(s.Context))
		}
	}
	return nil
}

func (sim *Simulation) stopping() bool {
	return sim.ctx.Err() != nil
}

// Router returns the router module. It must only be touched from the router's task, see Inspect.
func (sim *Simulation) Router(name string) (*core.Router, bool) {
	n, ok := sim.nodes[name]
	if !ok || n.router == nil {
		return nil, false
	}
	return n.router, true
}

// Inspect runs fun on the router's task and waits for it
func (sim *Simulation) Inspect(name string, fun func(r *core.Router) error) error {
	n, ok := sim.nodes[name]
	if !ok || n.router == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRouter, name)
	}
	if !sim.realtime {
		return fun(n.router)
	}
	_, err := n.state.DispatchWait(func(s *state.State) (any, error) {
		return nil, fun(n.router)
	})
	return err
}

// SetLinkState changes a link immediately
func (sim *Simulation) SetLinkState(a, b string, up bool) error {
	return sim.Net.SetLinkState(a, b, up)
}

// Schedule adds an event after the simulation has been created
func (sim *Simulation) Schedule(ev state.EventCfg) error {
	if _, ok := sim.nodes[ev.Router]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRouter, ev.Router)
	}
	sim.schedule(ev)
	return nil
}

// Unreachable lists the originated address space the router has no route to
func (sim *Simulation) Unreachable(name string) ([]netip.Prefix, error) {
	var coverage []netip.Prefix
	err := sim.Inspect(name, func(r *core.Router) error {
		coverage = r.Table.Coverage()
		return nil
	})
	if err != nil {
		return nil, err
	}
	wanted := make([]netip.Prefix, 0)
	for _, rt := range sim.Cfg.Routers {
		wanted = append(wanted, rt.Prefixes...)
	}
	return state.SubtractPrefix(wanted, coverage), nil
}

// Converged reports whether every router has a route to every configured prefix
func (sim *Simulation) Converged() (bool, error) {
	for _, name := range sim.Routers() {
		missing, err := sim.Unreachable(name)
		if err != nil {
			return false, err
		}
		if len(missing) != 0 {
			return false, nil
		}
	}
	return true, nil
}

// Stop tears down every router. Main loops stop their own router, so they are waited on first.
func (sim *Simulation) Stop() {
	sim.cancel(errors.New("simulation stopped"))
	sim.wg.Wait()
	for _, name := range sim.Routers() {
		core.Stop(sim.nodes[name].state)
	}
}
