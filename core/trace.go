package core

import (
	"github.com/dustin/go-broadcast"
	"github.com/encodeous/bgpsim/state"
)

// RouteTrace publishes every main table change to registered listeners
type RouteTrace struct {
	broadcast.Broadcaster
}

func (n *RouteTrace) Init(s *state.State) error {
	n.Broadcaster = broadcast.NewBroadcaster(1024)
	return nil
}

func (n *RouteTrace) Cleanup(s *state.State) error {
	return n.Broadcaster.Close()
}
