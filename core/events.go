package core

import "fmt"

type RouterEvent int

// trace events

const (
	RouteSelected RouterEvent = iota
	RouteReplaced
	RouteWithdrawn
	RouteUnchanged
	LoopRejected
	SessionEstablished
	SessionExpired
	SessionStopped
	TableResync
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	TableFull
	RouteIdExhausted
)

func (e RouterEvent) String() string {
	switch e {
	case RouteSelected:
		return "RouteSelected"
	case RouteReplaced:
		return "RouteReplaced"
	case RouteWithdrawn:
		return "RouteWithdrawn"
	case RouteUnchanged:
		return "RouteUnchanged"
	case LoopRejected:
		return "LoopRejected"
	case SessionEstablished:
		return "SessionEstablished"
	case SessionExpired:
		return "SessionExpired"
	case SessionStopped:
		return "SessionStopped"
	case TableResync:
		return "TableResync"
	case InconsistentState:
		return "InconsistentState"
	case TableFull:
		return "TableFull"
	case RouteIdExhausted:
		return "RouteIdExhausted"
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

func (e RouterEvent) IsWarning() bool {
	return e >= InconsistentState
}

// AnomalyKind classifies messages that were dropped instead of processed
type AnomalyKind int

const (
	UnknownInterface AnomalyKind = iota
	NotEstablished
	DuplicateOpen
	Malformed
	SendFailed
	numAnomalyKinds
)

func (k AnomalyKind) String() string {
	switch k {
	case UnknownInterface:
		return "unknown interface"
	case NotEstablished:
		return "session not established"
	case DuplicateOpen:
		return "duplicate open"
	case Malformed:
		return "malformed message"
	case SendFailed:
		return "send failed"
	}
	return fmt.Sprintf("AnomalyKind(%d)", int(k))
}
