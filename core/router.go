package core

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/bgpsim/perf"
	"github.com/encodeous/bgpsim/state"
)

// Router glues the session manager and routing table to the transport
type Router struct {
	*state.State
	Sessions *SessionManager
	Table    *RoutingTable
}

func (r *Router) Init(s *state.State) error {
	s.Log.Debug("init router", "as", s.AS, "interfaces", len(s.Interfaces))
	r.State = s
	r.Sessions = NewSessionManager(s)
	r.Table = NewRoutingTable(s.RouterCfg, s.Session, r.Sessions)
	r.Sessions.sink = r.Table

	trace, traced := TryGet[*RouteTrace](s)
	r.Table.OnChange = func(ch RouteChange) {
		perf.RouteChanges.Add(1)
		if traced {
			ch.At = s.Clock.Now()
			trace.Submit(ch)
		}
	}

	for _, prefix := range s.Prefixes {
		if err := r.Table.Originate(prefix); err != nil {
			return fmt.Errorf("failed to originate %s: %w", prefix, err)
		}
	}

	s.RepeatTask(r.reportStats, state.StatsInterval)
	s.RepeatTask(r.gc, state.GcInterval)
	s.ScheduleTask(func(s *state.State) error {
		r.Sessions.Bootstrap()
		return nil
	}, s.StartDelay)
	return nil
}

func (r *Router) Cleanup(s *state.State) error {
	if r.Sessions != nil {
		r.Sessions.StopAll()
	}
	return nil
}

func (r *Router) reportStats(s *state.State) error {
	perf.RawTableSize.Add(float64(r.Table.RawLen()))
	valid := 0
	for _, info := range r.Sessions.Snapshot() {
		if info.Valid {
			valid++
		}
	}
	sent, received := r.Sessions.Counters()
	s.Log.Debug("router stats", "sessions", valid, "raw", r.Table.RawLen(), "main", len(r.Table.MainRoutes()), "sent", sent, "received", received)
	return nil
}

func (r *Router) gc(s *state.State) error {
	r.Sessions.anomalyLog.DeleteExpired()
	return nil
}

// Deliver decodes a frame from the data plane. It must run on the router's task.
func (r *Router) Deliver(frame []byte) {
	if r.Stopping.Load() {
		return
	}
	perf.MessagesReceived.Add(1)
	perf.BytesReceived.Add(float64(len(frame)))
	msg, err := state.UnmarshalMessage(frame)
	if err != nil {
		r.Sessions.anomaly(-1, Malformed, "error", err, "len", len(frame))
		return
	}
	r.Sessions.OnMessage(msg)
}

// Shutdown notifies every peer, stops all sessions and clears the tables
func (r *Router) Shutdown() {
	r.Log.Info("shutting down router")
	r.Sessions.Shutdown("administrative shutdown")
	r.Table.Clear()
}

// Revive re-originates the configured prefixes and reopens every session
func (r *Router) Revive() error {
	if !r.Sessions.AdminDown() {
		return nil
	}
	r.Log.Info("reviving router")
	for _, prefix := range r.Prefixes {
		if err := r.Table.Originate(prefix); err != nil {
			return err
		}
	}
	r.Sessions.Bootstrap()
	return nil
}

func (r *Router) Originate(prefix netip.Prefix) error {
	return r.Table.Originate(prefix)
}

func (r *Router) StopOriginating(prefix netip.Prefix) {
	r.Table.StopOriginating(prefix)
}
