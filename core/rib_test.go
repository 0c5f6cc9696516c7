package core

import (
	"net/netip"
	"testing"

	"github.com/encodeous/bgpsim/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onIface(r state.Route, iface int) state.Route {
	r.Interface = iface
	return r
}

func TestRawTableInsertAssignsIds(t *testing.T) {
	var raw RawTable
	a, err := raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	require.NoError(t, err)
	b, err := raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 2), 1))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), a.Id)
	assert.Equal(t, uint32(2), b.Id)
	assert.Equal(t, 2, raw.Len())
	assert.Len(t, raw.Candidates(netip.MustParsePrefix("10.0.0.0/8")), 2)
}

func TestRawTableReplacesSameInterface(t *testing.T) {
	var raw RawTable
	_, err := raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	require.NoError(t, err)
	next, err := raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1, 3), 0))
	require.NoError(t, err)

	cands := raw.Candidates(netip.MustParsePrefix("10.0.0.0/8"))
	require.Len(t, cands, 1)
	assert.Equal(t, next.Id, cands[0].Id)
	assert.Equal(t, []uint32{1, 3}, cands[0].ASPath)
	assert.Equal(t, 1, raw.Len())
}

func TestRawTableIdenticalKeepsId(t *testing.T) {
	var raw RawTable
	first, err := raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	require.NoError(t, err)
	again, err := raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	require.NoError(t, err)
	assert.Equal(t, first.Id, again.Id)
	assert.Equal(t, 1, raw.Len())
}

func TestRawTableMasksPrefix(t *testing.T) {
	var raw RawTable
	r, err := raw.Insert(onIface(MakeRoute("10.1.2.3/8", 100, 0, 1), 0))
	require.NoError(t, err)
	assert.Equal(t, netip.MustParsePrefix("10.0.0.0/8"), r.Prefix)
	assert.Len(t, raw.Candidates(netip.MustParsePrefix("10.0.0.0/8")), 1)
}

func TestRawTableRemove(t *testing.T) {
	var raw RawTable
	p := netip.MustParsePrefix("10.0.0.0/8")
	_, _ = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	_, _ = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 2), 1))

	_, ok := raw.Remove(p, 5)
	assert.False(t, ok)

	removed, ok := raw.Remove(p, 0)
	assert.True(t, ok)
	assert.Equal(t, 0, removed.Interface)
	assert.Equal(t, 1, raw.Len())

	_, ok = raw.Remove(p, 1)
	assert.True(t, ok)
	assert.Empty(t, raw.Candidates(p))
	assert.Empty(t, raw.Prefixes())
}

func TestRawTableRemoveInterface(t *testing.T) {
	var raw RawTable
	_, _ = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	_, _ = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 2), 1))
	_, _ = raw.Insert(onIface(MakeRoute("192.168.0.0/16", 100, 0, 1), 0))
	_, _ = raw.Insert(onIface(MakeRoute("172.16.0.0/12", 100, 0, 2), 1))

	affected := raw.RemoveInterface(0)
	want := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.0.0/16"),
	}
	assert.ElementsMatch(t, want, affected)
	assert.Equal(t, 2, raw.Len())
	for _, r := range raw.Routes() {
		assert.Equal(t, 1, r.Interface)
	}
}

func TestRawTableCapacity(t *testing.T) {
	raw := RawTable{MaxRoutes: 2}
	_, err := raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	require.NoError(t, err)
	_, err = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 2), 1))
	require.NoError(t, err)

	_, err = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 3), 2))
	assert.ErrorIs(t, err, ErrTableFull)
	assert.Equal(t, 2, raw.Len())

	// replacing an existing candidate does not grow the table
	_, err = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1, 4), 0))
	assert.NoError(t, err)
}

func TestRawTableIdExhaustion(t *testing.T) {
	var raw RawTable
	_, err := raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	require.NoError(t, err)
	raw.nextId = state.MaxRouteId

	_, err = raw.Insert(onIface(MakeRoute("11.0.0.0/8", 100, 0, 1), 0))
	assert.ErrorIs(t, err, ErrRouteIdExhausted)

	// emptying the table does not recycle ids
	raw.RemoveInterface(0)
	assert.Zero(t, raw.Len())
	_, err = raw.Insert(onIface(MakeRoute("11.0.0.0/8", 100, 0, 1), 0))
	assert.ErrorIs(t, err, ErrRouteIdExhausted)

	// only a cleared table starts over
	raw.Clear()
	r, err := raw.Insert(onIface(MakeRoute("11.0.0.0/8", 100, 0, 1), 0))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), r.Id)
}

func TestRawTableIdsMonotonic(t *testing.T) {
	var raw RawTable
	r, err := raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), r.Id)

	raw.Remove(netip.MustParsePrefix("10.0.0.0/8"), 0)
	assert.Zero(t, raw.Len())
	r, err = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), r.Id)
}

func TestRawTableRoutesOrdered(t *testing.T) {
	var raw RawTable
	_, _ = raw.Insert(onIface(MakeRoute("192.168.0.0/16", 100, 0, 1), 0))
	_, _ = raw.Insert(onIface(MakeRoute("10.0.0.0/16", 100, 0, 1), 0))
	_, _ = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	_, _ = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 2), 1))

	got := make([]string, 0)
	for _, r := range raw.Routes() {
		got = append(got, r.Prefix.String())
	}
	want := []string{"10.0.0.0/8", "10.0.0.0/8", "10.0.0.0/16", "192.168.0.0/16"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("route order mismatch (-want +got):\n%s", diff)
	}
}

func TestRawTableCandidatesAreCopies(t *testing.T) {
	var raw RawTable
	_, _ = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1, 2), 0))
	cands := raw.Candidates(netip.MustParsePrefix("10.0.0.0/8"))
	cands[0].ASPath[0] = 99
	again := raw.Candidates(netip.MustParsePrefix("10.0.0.0/8"))
	assert.Equal(t, []uint32{1, 2}, again[0].ASPath)
}

func TestRawTableClear(t *testing.T) {
	var raw RawTable
	_, _ = raw.Insert(onIface(MakeRoute("10.0.0.0/8", 100, 0, 1), 0))
	raw.Clear()
	assert.Equal(t, 0, raw.Len())
	assert.Empty(t, raw.Routes())
}
