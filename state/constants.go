package state

import "time"

const (
	// LocalInterface marks a route originated by this router rather than learned from a peer.
	LocalInterface = -1
	MaxRouteId     = ^uint32(0)
)

var (
	DefaultHoldDown          = 180 * time.Second
	DefaultKeepaliveFraction = 3
	DefaultConnectRetry      = 30 * time.Second
	DefaultLocalPref         = uint32(100)
	DefaultLinkLatency       = 10 * time.Millisecond

	// AnomalyLogTTL suppresses repeated anomaly logs for the same interface and kind
	AnomalyLogTTL = 5 * time.Second
	StatsInterval = 60 * time.Second
	GcInterval    = 10 * time.Second
	SlowDispatch  = 4 * time.Millisecond
)
