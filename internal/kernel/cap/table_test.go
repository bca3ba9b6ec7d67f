package cap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helion-os/helion/internal/kernel/kerr"
)

type fakeObject struct {
	kind     Kind
	released int
}

func (f *fakeObject) Kind() Kind { return f.kind }
func (f *fakeObject) Release()   { f.released++ }

func newEndpointCap(rights Rights, badge uint64) (Capability, *fakeObject) {
	obj := &fakeObject{kind: KindEndpoint}
	return Capability{Object: obj, Rights: rights, Badge: badge}, obj
}

func TestInsertPicksLowestFreeSlot(t *testing.T) {
	arena := NewArena()
	table := arena.NewTable(1, 4)

	c, _ := newEndpointCap(RightSend, 0)
	s0, err := table.Insert(c)
	require.NoError(t, err)
	s1, err := table.Insert(c)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), s0)
	assert.Equal(t, uint32(1), s1)

	require.NoError(t, table.Revoke(s0))
	s2, err := table.Insert(c)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), s2)
}

func TestInsertTableFull(t *testing.T) {
	arena := NewArena()
	table := arena.NewTable(1, 2)
	c, _ := newEndpointCap(RightSend, 0)

	for i := 0; i < 2; i++ {
		_, err := table.Insert(c)
		require.NoError(t, err)
	}
	_, err := table.Insert(c)
	assert.ErrorIs(t, err, kerr.ErrTableFull)
}

func TestLookupFailures(t *testing.T) {
	arena := NewArena()
	table := arena.NewTable(1, 4)

	_, err := table.Lookup(0, RightSend)
	assert.ErrorIs(t, err, kerr.ErrInvalidCapability)

	c, _ := newEndpointCap(RightSend, 0)
	slot, err := table.Insert(c)
	require.NoError(t, err)

	_, err = table.Lookup(slot, RightReceive)
	assert.ErrorIs(t, err, kerr.ErrPermissionDenied)

	_, err = table.LookupKind(slot, KindMemoryRegion, RightSend)
	assert.ErrorIs(t, err, kerr.ErrInvalidCapability)

	got, err := table.Lookup(slot, RightSend)
	require.NoError(t, err)
	assert.Equal(t, c.Object, got.Object)
}

func TestDeriveAttenuation(t *testing.T) {
	arena := NewArena()
	table := arena.NewTable(1, 8)

	c, _ := newEndpointCap(RightSend|RightReceive|RightGrant, 0)
	slot, err := table.Insert(c)
	require.NoError(t, err)

	// Subset derivation succeeds and carries the new badge.
	child, err := table.Derive(slot, RightSend, 7)
	require.NoError(t, err)
	got, err := table.Lookup(child, RightSend)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Badge)
	assert.Equal(t, RightSend, got.Rights)

	// Amplification fails.
	_, err = table.Derive(child, RightSend|RightReceive, 0)
	assert.ErrorIs(t, err, kerr.ErrPermissionDenied)

	// The law holds across chains.
	grandchild, err := table.Derive(child, RightSend, 9)
	require.NoError(t, err)
	gc, err := table.Lookup(grandchild, 0)
	require.NoError(t, err)
	assert.True(t, gc.Rights.SubsetOf(got.Rights))
	assert.True(t, got.Rights.SubsetOf(c.Rights))
}

func TestGrantClampsRights(t *testing.T) {
	arena := NewArena()
	src := arena.NewTable(1, 4)
	dst := arena.NewTable(2, 4)

	c, _ := newEndpointCap(RightSend|RightGrant, 0)
	slot, err := src.Insert(c)
	require.NoError(t, err)

	// Requested receive right is silently dropped: never amplified.
	dstSlot, err := src.Grant(dst, slot, RightSend|RightReceive, 42)
	require.NoError(t, err)
	got, err := dst.Lookup(dstSlot, 0)
	require.NoError(t, err)
	assert.Equal(t, RightSend|RightGrant, got.Rights)
	assert.Equal(t, uint64(42), got.Badge)
}

func TestGrantRequiresGrantRight(t *testing.T) {
	arena := NewArena()
	src := arena.NewTable(1, 4)
	dst := arena.NewTable(2, 4)

	c, _ := newEndpointCap(RightSend, 0)
	slot, err := src.Insert(c)
	require.NoError(t, err)

	_, err = src.Grant(dst, slot, RightSend, 0)
	assert.ErrorIs(t, err, kerr.ErrPermissionDenied)
}

func TestRevokeTransitiveAcrossTables(t *testing.T) {
	arena := NewArena()
	a := arena.NewTable(1, 8)
	b := arena.NewTable(2, 8)

	c, obj := newEndpointCap(RightsAll, 0)
	root, err := a.Insert(c)
	require.NoError(t, err)

	child, err := a.Derive(root, RightSend|RightGrant, 1)
	require.NoError(t, err)
	granted, err := a.Grant(b, child, RightSend, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, arena.Refs(obj))

	// Revoking the intermediate derivation invalidates B's grant too.
	require.NoError(t, a.Revoke(child))
	_, err = b.Lookup(granted, 0)
	assert.ErrorIs(t, err, kerr.ErrInvalidCapability)

	// The root survives, and the object is still alive.
	_, err = a.Lookup(root, RightSend)
	require.NoError(t, err)
	assert.Equal(t, 1, arena.Refs(obj))
	assert.Equal(t, 0, obj.released)

	// Dropping the root releases the object exactly once.
	require.NoError(t, a.Revoke(root))
	assert.Equal(t, 0, arena.Refs(obj))
	assert.Equal(t, 1, obj.released)
}

func TestRevokeEmptySlot(t *testing.T) {
	arena := NewArena()
	table := arena.NewTable(1, 4)
	assert.ErrorIs(t, table.Revoke(3), kerr.ErrInvalidCapability)
}

func TestDestroyAllRevokesDerivedInOtherTables(t *testing.T) {
	arena := NewArena()
	a := arena.NewTable(1, 8)
	b := arena.NewTable(2, 8)

	c, obj := newEndpointCap(RightsAll, 0)
	root, err := a.Insert(c)
	require.NoError(t, err)
	granted, err := a.Grant(b, root, RightSend, 0)
	require.NoError(t, err)

	a.DestroyAll()

	_, err = b.Lookup(granted, 0)
	assert.ErrorIs(t, err, kerr.ErrInvalidCapability)
	assert.Equal(t, 1, obj.released)

	// A destroyed table rejects further use.
	_, err = a.Insert(c)
	assert.ErrorIs(t, err, kerr.ErrInvalidCapability)
}

func TestParseRights(t *testing.T) {
	r, ok := ParseRights([]string{"send", "map", "read"})
	require.True(t, ok)
	assert.Equal(t, RightSend|RightMap|RightRead, r)

	_, ok = ParseRights([]string{"send", "fly"})
	assert.False(t, ok)

	assert.Equal(t, "send|map|read", r.String())
	assert.Equal(t, "none", Rights(0).String())
}

func TestGrantAllAtomicOnFullTable(t *testing.T) {
	arena := NewArena()
	src := arena.NewTable(1, 8)
	dst := arena.NewTable(2, 2)

	c, _ := newEndpointCap(RightsAll, 0)
	slots := make([]Transfer, 3)
	for i := range slots {
		s, err := src.Insert(c)
		require.NoError(t, err)
		slots[i] = Transfer{Slot: s, Rights: RightSend, Badge: uint64(i)}
	}

	_, err := src.GrantAll(dst, slots)
	assert.ErrorIs(t, err, kerr.ErrTableFull)
	assert.Equal(t, 0, dst.Used())

	granted, err := src.GrantAll(dst, slots[:2])
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, granted)
	assert.Equal(t, 2, dst.Used())
}

func TestGrantAllRejectsBatchOnSingleBadEntry(t *testing.T) {
	arena := NewArena()
	src := arena.NewTable(1, 8)
	dst := arena.NewTable(2, 8)

	grantable, _ := newEndpointCap(RightsAll, 0)
	sendOnly, _ := newEndpointCap(RightSend, 0)
	s0, err := src.Insert(grantable)
	require.NoError(t, err)
	s1, err := src.Insert(sendOnly)
	require.NoError(t, err)

	_, err = src.GrantAll(dst, []Transfer{
		{Slot: s0, Rights: RightSend},
		{Slot: s1, Rights: RightSend},
	})
	assert.ErrorIs(t, err, kerr.ErrPermissionDenied)
	assert.Equal(t, 0, dst.Used())

	_, err = src.GrantAll(dst, []Transfer{
		{Slot: s0, Rights: RightSend},
		{Slot: 7, Rights: RightSend},
	})
	assert.ErrorIs(t, err, kerr.ErrInvalidCapability)
	assert.Equal(t, 0, dst.Used())
}

func TestGrantAllClampsRightsAndLinksDerivation(t *testing.T) {
	arena := NewArena()
	src := arena.NewTable(1, 4)
	dst := arena.NewTable(2, 4)

	c, obj := newEndpointCap(RightSend|RightGrant, 0)
	s, err := src.Insert(c)
	require.NoError(t, err)

	granted, err := src.GrantAll(dst, []Transfer{
		{Slot: s, Rights: RightsAll, Badge: 9},
	})
	require.NoError(t, err)

	got, err := dst.Lookup(granted[0], RightSend)
	require.NoError(t, err)
	assert.Equal(t, RightSend|RightGrant, got.Rights)
	assert.Equal(t, uint64(9), got.Badge)

	require.NoError(t, src.Revoke(s))
	_, err = dst.Lookup(granted[0], RightSend)
	assert.ErrorIs(t, err, kerr.ErrInvalidCapability)
	assert.Equal(t, 1, obj.released)
}
