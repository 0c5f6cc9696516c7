package core

import (
	"time"

	"github.com/encodeous/bgpsim/state"
)

// sessionHost receives the timer-driven side effects of a PeerSession
type sessionHost interface {
	sendKeepalive(iface int)
	sessionExpired(iface int)
	retryConnect(iface int)
}

// PeerSession tracks liveness of the peering on one interface.
// While valid, the hold-down and keepalive timers are both armed. While invalid, both are cancelled.
type PeerSession struct {
	Interface int
	Neighbor  state.InterfaceCfg
	PeerId    string
	PeerAS    uint32

	EstablishedAt time.Duration
	Established   uint64
	Expired       uint64

	valid        bool
	holdDown     time.Duration
	keepalive    time.Duration
	connectRetry time.Duration
	clock        state.Clock
	owner        string
	host         sessionHost

	holdTimer      state.TimerHandle
	keepaliveTimer state.TimerHandle
	retryTimer     state.TimerHandle
}

func NewPeerSession(iface int, neighbor state.InterfaceCfg, owner string, cfg state.SessionCfg, clock state.Clock, host sessionHost) *PeerSession {
	return &PeerSession{
		Interface:    iface,
		Neighbor:     neighbor,
		holdDown:     cfg.HoldDown,
		keepalive:    cfg.Keepalive(),
		connectRetry: cfg.ConnectRetry,
		clock:        clock,
		owner:        owner,
		host:         host,
	}
}

func (p *PeerSession) Tag(kind state.TimerKind) state.TimerTag {
	return state.TimerTag{Kind: kind, Owner: p.owner, Interface: p.Interface}
}

func (p *PeerSession) IsValid() bool {
	return p.valid
}

func (p *PeerSession) HoldDown() time.Duration {
	return p.holdDown
}

func (p *PeerSession) Keepalive() time.Duration {
	return p.keepalive
}

// Start binds the peer and arms both timers. It returns false and does nothing if the session is already valid.
func (p *PeerSession) Start(peerId string, peerAS uint32) bool {
	if p.valid {
		return false
	}
	p.PeerId = peerId
	p.PeerAS = peerAS
	p.valid = true
	p.EstablishedAt = p.clock.Now()
	p.Established++
	p.CancelRetry()
	p.ResetHoldDown()
	p.ResetKeepalive()
	return true
}

// Stop cancels both timers and invalidates the session. It returns whether the session was valid.
func (p *PeerSession) Stop() bool {
	p.clock.Cancel(p.holdTimer)
	p.clock.Cancel(p.keepaliveTimer)
	p.holdTimer = 0
	p.keepaliveTimer = 0
	wasValid := p.valid
	p.valid = false
	return wasValid
}

func (p *PeerSession) ResetHoldDown() {
	if !p.valid {
		return
	}
	p.clock.Cancel(p.holdTimer)
	p.holdTimer = p.clock.Schedule(p.holdDown, p.Tag(state.HoldDownTimer), p.onHoldDownExpiry)
}

func (p *PeerSession) ResetKeepalive() {
	if !p.valid {
		return
	}
	p.clock.Cancel(p.keepaliveTimer)
	p.keepaliveTimer = p.clock.Schedule(p.keepalive, p.Tag(state.KeepaliveTimer), p.onKeepaliveDue)
}

func (p *PeerSession) onHoldDownExpiry(state.TimerTag) {
	p.holdTimer = 0
	if !p.valid {
		return
	}
	p.Stop()
	p.Expired++
	p.host.sessionExpired(p.Interface)
}

func (p *PeerSession) onKeepaliveDue(state.TimerTag) {
	p.keepaliveTimer = 0
	if !p.valid {
		return
	}
	p.host.sendKeepalive(p.Interface)
	// a successful send already re-armed the timer
	if p.valid && p.keepaliveTimer == 0 {
		p.ResetKeepalive()
	}
}

// ScheduleRetry arms the connect-retry timer while the session is down
func (p *PeerSession) ScheduleRetry() {
	if p.valid || p.connectRetry <= 0 || p.retryTimer != 0 {
		return
	}
	p.retryTimer = p.clock.Schedule(p.connectRetry, p.Tag(state.ConnectRetryTimer), p.onRetry)
}

func (p *PeerSession) CancelRetry() {
	p.clock.Cancel(p.retryTimer)
	p.retryTimer = 0
}

func (p *PeerSession) onRetry(state.TimerTag) {
	p.retryTimer = 0
	if p.valid {
		return
	}
	p.host.retryConnect(p.Interface)
}

// SessionInfo is a point-in-time view of a session for diagnostics
type SessionInfo struct {
	Interface     int           `json:"interface"`
	Neighbor      string        `json:"neighbor"`
	PeerId        string        `json:"peer_id,omitempty"`
	PeerAS        uint32        `json:"peer_as,omitempty"`
	Valid         bool          `json:"valid"`
	EstablishedAt time.Duration `json:"established_at,omitempty"`
	Established   uint64        `json:"established"`
	Expired       uint64        `json:"expired"`
}

func (p *PeerSession) Snapshot() SessionInfo {
	return SessionInfo{
		Interface:     p.Interface,
		Neighbor:      p.Neighbor.Neighbor,
		PeerId:        p.PeerId,
		PeerAS:        p.PeerAS,
		Valid:         p.valid,
		EstablishedAt: p.EstablishedAt,
		Established:   p.Established,
		Expired:       p.Expired,
	}
}
