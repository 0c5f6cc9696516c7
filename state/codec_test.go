package state

import (
	"math"
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodecRoundTrip(t *testing.T) {
	msgs := []*Message{
		{Type: MsgOpen, Interface: 1, Identifier: "r0", AS: 65000, Open: &OpenParams{HoldDown: 180 * time.Second, Reply: true}},
		{Type: MsgKeepalive, Interface: 0, Identifier: "r1", AS: 65001},
		{Type: MsgUpdate, Interface: 2, Identifier: "r2", AS: 65002, Update: &RouteUpdate{
			Prefix:    netip.MustParsePrefix("10.0.0.0/8"),
			ASPath:    []uint32{65002, 65010},
			LocalPref: 200,
			MED:       5,
		}},
		{Type: MsgWithdraw, Interface: 0, Identifier: "r2", AS: 65002, Withdraw: &RouteWithdraw{
			Prefix: netip.MustParsePrefix("2001:db8::/32"),
		}},
		{Type: MsgNotification, Interface: 0, Identifier: "r3", AS: 4200000000, Notification: &Notification{
			Code: NotifyCease, Reason: "shutdown",
		}},
	}
	for _, m := range msgs {
		t.Run(m.Type.String(), func(t *testing.T) {
			b, err := MarshalMessage(m)
			require.NoError(t, err)
			got, err := UnmarshalMessage(b)
			require.NoError(t, err)
			if diff := cmp.Diff(m, got, cmpopts.EquateComparable(netip.Prefix{})); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCodecMasksPrefix(t *testing.T) {
	b, err := MarshalMessage(&Message{Type: MsgWithdraw, Withdraw: &RouteWithdraw{Prefix: netip.MustParsePrefix("10.1.2.3/8")}})
	require.NoError(t, err)
	m, err := UnmarshalMessage(b)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParsePrefix("10.0.0.0/8"), m.Withdraw.Prefix)
}

func TestCodecRejectsUnknownType(t *testing.T) {
	_, err := MarshalMessage(&Message{Type: 42})
	assert.ErrorIs(t, err, ErrUnknownType)

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	_, err = UnmarshalMessage(b)
	assert.ErrorIs(t, err, ErrUnknownType)

	b = b[:0]
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 256+uint64(MsgOpen))
	_, err = UnmarshalMessage(b)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestCodecRejectsMalformed(t *testing.T) {
	_, err := UnmarshalMessage([]byte{0xff})
	assert.ErrorIs(t, err, ErrMalformed)

	// UPDATE without a payload
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(MsgUpdate))
	_, err = UnmarshalMessage(b)
	assert.ErrorIs(t, err, ErrMalformed)

	// missing type
	_, err = UnmarshalMessage(nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodecRejectsOutOfRangeFields(t *testing.T) {
	frame := func(num protowire.Number, v uint64) []byte {
		var b []byte
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(MsgKeepalive))
		b = protowire.AppendTag(b, num, protowire.VarintType)
		return protowire.AppendVarint(b, v)
	}

	_, err := UnmarshalMessage(frame(2, 1<<32))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = UnmarshalMessage(frame(2, uint64(math.MaxInt32)+1))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = UnmarshalMessage(frame(4, 1<<32))
	assert.ErrorIs(t, err, ErrMalformed)

	// negative interfaces survive the round trip and are left to session lookup
	m, err := UnmarshalMessage(frame(2, uint64(int64(-1))))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), m.Interface)
}

func TestCodecSkipsUnknownFields(t *testing.T) {
	b, err := MarshalMessage(&Message{Type: MsgKeepalive, Interface: 3, AS: 7})
	require.NoError(t, err)
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	m, err := UnmarshalMessage(b)
	require.NoError(t, err)
	assert.Equal(t, MsgKeepalive, m.Type)
	assert.Equal(t, int32(3), m.Interface)
}
