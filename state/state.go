package state

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type Module interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on the router's cooperative task
type State struct {
	*Env
	Modules map[string]Module
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	RouterCfg
	Session    SessionCfg
	Interfaces []InterfaceCfg
	Context    context.Context
	Cancel     context.CancelCauseFunc
	Log        *slog.Logger
	Clock      Clock
	Transport  Transport
	Started    atomic.Bool
	Stopping   atomic.Bool
	bound      atomic.Pointer[State]
}

// Transport hands serialized frames to the data plane. Delivery is at-most-once.
type Transport interface {
	SendOutbound(iface int, frame []byte) error
}

type TransportFunc func(iface int, frame []byte) error

func (f TransportFunc) SendOutbound(iface int, frame []byte) error {
	return f(iface, frame)
}
