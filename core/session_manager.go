package core

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"sync"

	"github.com/encodeous/bgpsim/perf"
	"github.com/encodeous/bgpsim/state"
	"github.com/jellydator/ttlcache/v3"
)

var ErrUnknownInterface = errors.New("unknown interface")

// RouteSink receives the routing side effects of session traffic
type RouteSink interface {
	IngestUpdate(route state.Route, from int) error
	IngestWithdraw(prefix netip.Prefix, from int)
	OnSessionUp(iface int)
	OnSessionDown(iface int)
}

type anomalyKey = state.Pair[int, AnomalyKind]

// SessionManager owns the sessions of one router and is the entry point for every inbound message
type SessionManager struct {
	cfg       state.RouterCfg
	sess      state.SessionCfg
	log       *slog.Logger
	clock     state.Clock
	transport state.Transport
	sink      RouteSink
	sessions  map[int]*PeerSession
	adminDown bool

	// sendMu covers encode, send and the keepalive reset that follows
	sendMu     sync.Mutex
	anomalies  [numAnomalyKinds]uint64
	anomalyLog *ttlcache.Cache[anomalyKey, struct{}]
	sent       uint64
	received   uint64
}

func NewSessionManager(s *state.State) *SessionManager {
	m := &SessionManager{
		cfg:       s.RouterCfg,
		sess:      s.Session,
		log:       s.Log,
		clock:     s.Clock,
		transport: s.Transport,
		sessions:  make(map[int]*PeerSession),
		anomalyLog: ttlcache.New[anomalyKey, struct{}](
			ttlcache.WithTTL[anomalyKey, struct{}](state.AnomalyLogTTL),
			ttlcache.WithDisableTouchOnHit[anomalyKey, struct{}](),
		),
	}
	for i, iface := range s.Interfaces {
		m.sessions[i] = NewPeerSession(i, iface, s.Name, s.Session, s.Clock, m)
	}
	return m
}

func (m *SessionManager) Session(iface int) (*PeerSession, bool) {
	p, ok := m.sessions[iface]
	return p, ok
}

func (m *SessionManager) Interfaces() []int {
	ifaces := make([]int, 0, len(m.sessions))
	for i := range m.sessions {
		ifaces = append(ifaces, i)
	}
	slices.Sort(ifaces)
	return ifaces
}

func (m *SessionManager) IsValid(iface int) bool {
	p, ok := m.sessions[iface]
	return ok && p.IsValid()
}

func (m *SessionManager) Snapshot() []SessionInfo {
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, i := range m.Interfaces() {
		out = append(out, m.sessions[i].Snapshot())
	}
	return out
}

// Anomalies returns how many messages were dropped for each reason
func (m *SessionManager) Anomalies() map[AnomalyKind]uint64 {
	out := make(map[AnomalyKind]uint64)
	for k, v := range m.anomalies {
		if v != 0 {
			out[AnomalyKind(k)] = v
		}
	}
	return out
}

func (m *SessionManager) anomaly(iface int, kind AnomalyKind, args ...any) {
	m.anomalies[kind]++
	perf.Anomalies.Add(1)
	if m.sess.QuietAnomalies {
		return
	}
	key := anomalyKey{V1: iface, V2: kind}
	if m.anomalyLog.Has(key) {
		return
	}
	m.anomalyLog.Set(key, struct{}{}, ttlcache.DefaultTTL)
	args = append([]any{"if", iface, "kind", kind.String()}, args...)
	if kind == UnknownInterface || kind == Malformed {
		m.log.Error("dropped unroutable message", args...)
		return
	}
	m.log.Warn("protocol anomaly", args...)
}

// OnMessage handles one inbound message, in arrival order for its session
func (m *SessionManager) OnMessage(msg *state.Message) {
	m.received++
	iface := int(msg.Interface)
	p, ok := m.sessions[iface]
	if !ok {
		m.anomaly(iface, UnknownInterface, "type", msg.Type, "from", msg.Identifier)
		return
	}
	if m.adminDown {
		m.log.Debug("dropping message while shut down", "if", iface, "type", msg.Type)
		return
	}

	if !p.IsValid() {
		if msg.Type == state.MsgOpen {
			m.establish(p, msg)
			return
		}
		m.anomaly(iface, NotEstablished, "type", msg.Type, "from", msg.Identifier)
		return
	}

	switch msg.Type {
	case state.MsgKeepalive:
		p.ResetHoldDown()
	case state.MsgUpdate:
		p.ResetHoldDown()
		_ = m.sink.IngestUpdate(state.Route{
			Prefix:    msg.Update.Prefix,
			ASPath:    msg.Update.ASPath,
			LocalPref: msg.Update.LocalPref,
			MED:       msg.Update.MED,
		}, iface)
	case state.MsgWithdraw:
		p.ResetHoldDown()
		m.sink.IngestWithdraw(msg.Withdraw.Prefix, iface)
	case state.MsgOpen:
		p.ResetHoldDown()
		if msg.Open != nil && msg.Open.Reply {
			// second half of a simultaneous open
			return
		}
		m.anomaly(iface, DuplicateOpen, "from", msg.Identifier, "policy", m.sess.OpenPolicy)
		if m.sess.OpenPolicy == state.OpenReset {
			m.teardown(p, "peer reopened session")
			m.establish(p, msg)
			return
		}
		// the peer lost its side of the session, answer so it can come back up
		m.sendOpen(iface, true)
	case state.MsgNotification:
		reason := "notification"
		if msg.Notification != nil {
			reason = fmt.Sprintf("notification: %s %s", msg.Notification.Code, msg.Notification.Reason)
		}
		m.teardown(p, reason)
	}
}

func (m *SessionManager) establish(p *PeerSession, msg *state.Message) {
	if !p.Start(msg.Identifier, msg.AS) {
		return
	}
	perf.SessionsUp.Add(1)
	m.Log(SessionEstablished, "session established", "if", p.Interface, "peer", p.PeerId, "as", p.PeerAS)
	if msg.Open == nil || !msg.Open.Reply {
		m.sendOpen(p.Interface, true)
	}
	m.sink.OnSessionUp(p.Interface)
}

// teardown stops a valid session and purges its routes
func (m *SessionManager) teardown(p *PeerSession, reason string) {
	if !p.Stop() {
		return
	}
	perf.SessionsDown.Add(1)
	m.Log(SessionStopped, "session stopped", "if", p.Interface, "peer", p.PeerId, "reason", reason)
	m.sink.OnSessionDown(p.Interface)
	if !m.adminDown {
		p.ScheduleRetry()
	}
}

func (m *SessionManager) sessionExpired(iface int) {
	p := m.sessions[iface]
	perf.SessionsDown.Add(1)
	m.Log(SessionExpired, "hold-down expired", "if", iface, "peer", p.PeerId, "hold", p.HoldDown())
	m.sink.OnSessionDown(iface)
	_ = m.SendToDataPlane(iface, &state.Message{
		Type:         state.MsgNotification,
		Notification: &state.Notification{Code: state.NotifyHoldTimerExpired},
	})
	if !m.adminDown {
		p.ScheduleRetry()
	}
}

func (m *SessionManager) sendKeepalive(iface int) {
	_ = m.SendToDataPlane(iface, &state.Message{Type: state.MsgKeepalive})
}

func (m *SessionManager) retryConnect(iface int) {
	if m.adminDown {
		return
	}
	m.sendOpen(iface, false)
	m.sessions[iface].ScheduleRetry()
}

func (m *SessionManager) sendOpen(iface int, reply bool) {
	_ = m.SendToDataPlane(iface, &state.Message{
		Type: state.MsgOpen,
		Open: &state.OpenParams{HoldDown: m.sess.HoldDown, Reply: reply},
	})
}

// Bootstrap sends the initial OPEN on every interface
func (m *SessionManager) Bootstrap() {
	m.adminDown = false
	for _, iface := range m.Interfaces() {
		m.sendOpen(iface, false)
		m.sessions[iface].ScheduleRetry()
	}
}

// AdminStop tears down the session on iface, telling the peer why
func (m *SessionManager) AdminStop(iface int, reason string) error {
	p, ok := m.sessions[iface]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInterface, iface)
	}
	if p.IsValid() {
		_ = m.SendToDataPlane(iface, &state.Message{
			Type:         state.MsgNotification,
			Notification: &state.Notification{Code: state.NotifyCease, Reason: reason},
		})
	}
	m.teardown(p, reason)
	return nil
}

// Shutdown stops every session and refuses new ones until Bootstrap is called again
func (m *SessionManager) Shutdown(reason string) {
	m.adminDown = true
	for _, iface := range m.Interfaces() {
		_ = m.AdminStop(iface, reason)
		m.sessions[iface].CancelRetry()
	}
}

func (m *SessionManager) AdminDown() bool {
	return m.adminDown
}

// StopAll cancels every timer without notifying peers
func (m *SessionManager) StopAll() {
	for _, p := range m.sessions {
		p.Stop()
		p.CancelRetry()
	}
	m.anomalyLog.DeleteAll()
}

// SendToDataPlane encodes msg for iface and hands it to the transport. A successful send counts as keepalive activity.
func (m *SessionManager) SendToDataPlane(iface int, msg *state.Message) error {
	p, ok := m.sessions[iface]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInterface, iface)
	}
	msg.Interface = int32(p.Neighbor.NeighborInterface)
	msg.Identifier = m.cfg.Identifier
	msg.AS = m.cfg.AS

	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	frame, err := state.MarshalMessage(msg)
	if err != nil {
		m.anomaly(iface, SendFailed, "type", msg.Type, "error", err)
		return err
	}
	if err = m.transport.SendOutbound(iface, frame); err != nil {
		m.anomaly(iface, SendFailed, "type", msg.Type, "error", err)
		return err
	}
	m.sent++
	perf.MessagesSent.Add(1)
	perf.BytesSent.Add(float64(len(frame)))
	p.ResetKeepalive()
	return nil
}

func (m *SessionManager) SendUpdate(iface int, adv state.RouteUpdate) {
	_ = m.SendToDataPlane(iface, &state.Message{Type: state.MsgUpdate, Update: &adv})
}

func (m *SessionManager) SendWithdraw(iface int, prefix netip.Prefix) {
	_ = m.SendToDataPlane(iface, &state.Message{Type: state.MsgWithdraw, Withdraw: &state.RouteWithdraw{Prefix: prefix}})
}

func (m *SessionManager) Log(event RouterEvent, desc string, args ...any) {
	if event.IsWarning() {
		m.log.Warn(fmt.Sprintf("%s %s", event.String(), desc), args...)
		return
	}
	m.log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
}

func (m *SessionManager) Counters() (sent, received uint64) {
	return m.sent, m.received
}
