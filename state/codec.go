package state

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Frames use the protobuf wire format. Field numbers:
//
//	Message:      1 type, 2 interface, 3 identifier, 4 as, 5 open, 6 update, 7 withdraw, 8 notification
//	OpenParams:   1 hold_down_ms, 2 reply
//	RouteUpdate:  1 prefix, 2 as_path (packed), 3 local_pref, 4 med
//	RouteWithdraw: 1 prefix
//	Notification: 1 code, 2 reason

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

func MarshalMessage(m *Message) ([]byte, error) {
	if !m.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, m.Type)
	}
	b := make([]byte, 0, 64)
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Interface)))
	if m.Identifier != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, m.Identifier)
	}
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.AS))

	if m.Open != nil {
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.VarintType)
		sub = protowire.AppendVarint(sub, uint64(m.Open.HoldDown.Milliseconds()))
		sub = protowire.AppendTag(sub, 2, protowire.VarintType)
		sub = protowire.AppendVarint(sub, protowire.EncodeBool(m.Open.Reply))
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	if m.Update != nil {
		pfx, err := m.Update.Prefix.MarshalBinary()
		if err != nil {
			return nil, err
		}
		var sub, path []byte
		sub = protowire.AppendTag(sub, 1, protowire.BytesType)
		sub = protowire.AppendBytes(sub, pfx)
		for _, as := range m.Update.ASPath {
			path = protowire.AppendVarint(path, uint64(as))
		}
		sub = protowire.AppendTag(sub, 2, protowire.BytesType)
		sub = protowire.AppendBytes(sub, path)
		sub = protowire.AppendTag(sub, 3, protowire.VarintType)
		sub = protowire.AppendVarint(sub, uint64(m.Update.LocalPref))
		sub = protowire.AppendTag(sub, 4, protowire.VarintType)
		sub = protowire.AppendVarint(sub, uint64(m.Update.MED))
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	if m.Withdraw != nil {
		pfx, err := m.Withdraw.Prefix.MarshalBinary()
		if err != nil {
			return nil, err
		}
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.BytesType)
		sub = protowire.AppendBytes(sub, pfx)
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	if m.Notification != nil {
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.VarintType)
		sub = protowire.AppendVarint(sub, uint64(m.Notification.Code))
		sub = protowire.AppendTag(sub, 2, protowire.BytesType)
		sub = protowire.AppendString(sub, m.Notification.Reason)
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b, nil
}

// fieldFunc consumes the value of one field and returns the number of bytes read, or a negative protowire error
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

func walkFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func UnmarshalMessage(b []byte) (*Message, error) {
	m := &Message{}
	var typ, iface, as uint64
	var ident, open, update, withdraw, notif []byte
	var sawType bool
	err := walkFields(b, func(num protowire.Number, wt protowire.Type, b []byte) int {
		switch num {
		case 1:
			sawType = true
			return consumeVarint(wt, b, &typ)
		case 2:
			return consumeVarint(wt, b, &iface)
		case 3:
			return consumeBytes(wt, b, &ident)
		case 4:
			return consumeVarint(wt, b, &as)
		case 5:
			return consumeBytes(wt, b, &open)
		case 6:
			return consumeBytes(wt, b, &update)
		case 7:
			return consumeBytes(wt, b, &withdraw)
		case 8:
			return consumeBytes(wt, b, &notif)
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	if !sawType {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	m.Type = MessageType(typ)
	if !m.Type.Valid() || typ > 0xff {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	if v := int64(iface); v > math.MaxInt32 || v < math.MinInt32 {
		return nil, fmt.Errorf("%w: interface %d out of range", ErrMalformed, v)
	}
	if as > math.MaxUint32 {
		return nil, fmt.Errorf("%w: as %d out of range", ErrMalformed, as)
	}
	m.Interface = int32(int64(iface))
	m.Identifier = string(ident)
	m.AS = uint32(as)

	if open != nil {
		var hold, reply uint64
		err = walkFields(open, func(num protowire.Number, wt protowire.Type, b []byte) int {
			switch num {
			case 1:
				return consumeVarint(wt, b, &hold)
			case 2:
				return consumeVarint(wt, b, &reply)
			}
			return 0
		})
		if err != nil {
			return nil, err
		}
		m.Open = &OpenParams{
			HoldDown: time.Duration(hold) * time.Millisecond,
			Reply:    protowire.DecodeBool(reply),
		}
	}
	if update != nil {
		var pfx, path []byte
		var lp, med uint64
		err = walkFields(update, func(num protowire.Number, wt protowire.Type, b []byte) int {
			switch num {
			case 1:
				return consumeBytes(wt, b, &pfx)
			case 2:
				return consumeBytes(wt, b, &path)
			case 3:
				return consumeVarint(wt, b, &lp)
			case 4:
				return consumeVarint(wt, b, &med)
			}
			return 0
		})
		if err != nil {
			return nil, err
		}
		prefix, err := decodePrefix(pfx)
		if err != nil {
			return nil, err
		}
		asPath := make([]uint32, 0)
		for len(path) > 0 {
			v, n := protowire.ConsumeVarint(path)
			if n < 0 {
				return nil, fmt.Errorf("%w: as path: %w", ErrMalformed, protowire.ParseError(n))
			}
			asPath = append(asPath, uint32(v))
			path = path[n:]
		}
		m.Update = &RouteUpdate{
			Prefix:    prefix,
			ASPath:    asPath,
			LocalPref: uint32(lp),
			MED:       uint32(med),
		}
	}
	if withdraw != nil {
		var pfx []byte
		err = walkFields(withdraw, func(num protowire.Number, wt protowire.Type, b []byte) int {
			if num == 1 {
				return consumeBytes(wt, b, &pfx)
			}
			return 0
		})
		if err != nil {
			return nil, err
		}
		prefix, err := decodePrefix(pfx)
		if err != nil {
			return nil, err
		}
		m.Withdraw = &RouteWithdraw{Prefix: prefix}
	}
	if notif != nil {
		var code uint64
		var reason []byte
		err = walkFields(notif, func(num protowire.Number, wt protowire.Type, b []byte) int {
			switch num {
			case 1:
				return consumeVarint(wt, b, &code)
			case 2:
				return consumeBytes(wt, b, &reason)
			}
			return 0
		})
		if err != nil {
			return nil, err
		}
		m.Notification = &Notification{Code: NotificationCode(code), Reason: string(reason)}
	}

	switch m.Type {
	case MsgUpdate:
		if m.Update == nil {
			return nil, fmt.Errorf("%w: UPDATE without route", ErrMalformed)
		}
	case MsgWithdraw:
		if m.Withdraw == nil {
			return nil, fmt.Errorf("%w: WITHDRAW without prefix", ErrMalformed)
		}
	case MsgOpen:
		if m.Open == nil {
			m.Open = &OpenParams{}
		}
	}
	return m, nil
}

func decodePrefix(b []byte) (netip.Prefix, error) {
	var p netip.Prefix
	if err := p.UnmarshalBinary(b); err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: prefix: %w", ErrMalformed, err)
	}
	if !p.IsValid() {
		return netip.Prefix{}, fmt.Errorf("%w: invalid prefix", ErrMalformed)
	}
	return p.Masked(), nil
}
