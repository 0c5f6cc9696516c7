package state

import (
	"fmt"
	"net/netip"
	"time"
)

type MessageType uint8

const (
	MsgOpen MessageType = iota + 1
	MsgKeepalive
	MsgUpdate
	MsgWithdraw
	MsgNotification
)

func (t MessageType) Valid() bool {
	return t >= MsgOpen && t <= MsgNotification
}

func (t MessageType) String() string {
	switch t {
	case MsgOpen:
		return "OPEN"
	case MsgKeepalive:
		return "KEEPALIVE"
	case MsgUpdate:
		return "UPDATE"
	case MsgWithdraw:
		return "WITHDRAW"
	case MsgNotification:
		return "NOTIFICATION"
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

type NotificationCode uint8

const (
	NotifyCease NotificationCode = iota + 1
	NotifyHoldTimerExpired
	NotifyAdminReset
)

func (c NotificationCode) String() string {
	switch c {
	case NotifyCease:
		return "cease"
	case NotifyHoldTimerExpired:
		return "hold timer expired"
	case NotifyAdminReset:
		return "administrative reset"
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

type OpenParams struct {
	HoldDown time.Duration
	// Reply is set on the OPEN sent in answer to a peer's OPEN
	Reply bool
}

type RouteUpdate struct {
	Prefix    netip.Prefix
	ASPath    []uint32
	LocalPref uint32
	MED       uint32
}

type RouteWithdraw struct {
	Prefix netip.Prefix
}

type Notification struct {
	Code   NotificationCode
	Reason string
}

// Message is the unit exchanged between routers.
// Interface names the session on the receiving router.
type Message struct {
	Type         MessageType
	Interface    int32
	Identifier   string
	AS           uint32
	Open         *OpenParams
	Update       *RouteUpdate
	Withdraw     *RouteWithdraw
	Notification *Notification
}

func (m *Message) String() string {
	desc := fmt.Sprintf("%s if: %d from: %s/%d", m.Type, m.Interface, m.Identifier, m.AS)
	switch {
	case m.Update != nil:
		desc += fmt.Sprintf(" prefix: %s path: %v lp: %d med: %d", m.Update.Prefix, m.Update.ASPath, m.Update.LocalPref, m.Update.MED)
	case m.Withdraw != nil:
		desc += fmt.Sprintf(" prefix: %s", m.Withdraw.Prefix)
	case m.Notification != nil:
		desc += fmt.Sprintf(" code: %s reason: %q", m.Notification.Code, m.Notification.Reason)
	case m.Open != nil:
		desc += fmt.Sprintf(" hold: %s reply: %t", m.Open.HoldDown, m.Open.Reply)
	}
	return desc
}
