package vspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/kerr"
	"github.com/helion-os/helion/internal/kernel/pmm"
)

const frameSize = 4096

func newManager(t *testing.T, frames uint64) (*Manager, *pmm.Allocator) {
	t.Helper()
	alloc := pmm.New(frames)
	return NewManager(alloc, frameSize), alloc
}

func TestMapAndTranslate(t *testing.T) {
	m, _ := newManager(t, 32)
	s := m.NewSpace(1)

	region, err := m.NewRegion(2*frameSize, cap.RightRead|cap.RightWrite, false)
	require.NoError(t, err)

	require.NoError(t, m.Map(s, region, 0x10000, cap.RightRead, cap.MemRights))

	phys, err := m.Translate(s, 0x10000+frameSize+12)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), phys%frameSize)

	_, err = m.Translate(s, 0x20000)
	assert.ErrorIs(t, err, kerr.ErrPageFault)
}

func TestMapOverlap(t *testing.T) {
	m, _ := newManager(t, 32)
	s := m.NewSpace(1)

	r1, err := m.NewRegion(2*frameSize, cap.MemRights, false)
	require.NoError(t, err)
	r2, err := m.NewRegion(frameSize, cap.MemRights, false)
	require.NoError(t, err)

	require.NoError(t, m.Map(s, r1, 0x10000, cap.RightRead, cap.MemRights))
	err = m.Map(s, r2, 0x10000+frameSize, cap.RightRead, cap.MemRights)
	assert.ErrorIs(t, err, kerr.ErrOverlap)

	// Adjacent is fine.
	require.NoError(t, m.Map(s, r2, 0x10000+2*frameSize, cap.RightRead, cap.MemRights))
}

func TestMapPermissionCeilings(t *testing.T) {
	m, _ := newManager(t, 32)
	s := m.NewSpace(1)

	region, err := m.NewRegion(frameSize, cap.RightRead|cap.RightWrite, false)
	require.NoError(t, err)

	// A read-only capability cannot map writable, even though the region
	// itself allows writes.
	err = m.Map(s, region, 0x1000, cap.RightWrite, cap.RightRead)
	assert.ErrorIs(t, err, kerr.ErrPermissionDenied)

	// Nobody maps beyond the region's ceiling.
	err = m.Map(s, region, 0x1000, cap.RightExec, cap.MemRights)
	assert.ErrorIs(t, err, kerr.ErrPermissionDenied)

	require.NoError(t, m.Map(s, region, 0x1000, cap.RightRead, cap.RightRead))
}

func TestUnmapSplitsMapping(t *testing.T) {
	m, _ := newManager(t, 32)
	s := m.NewSpace(1)

	region, err := m.NewRegion(4*frameSize, cap.MemRights, false)
	require.NoError(t, err)
	require.NoError(t, m.Map(s, region, 0x10000, cap.RightRead, cap.MemRights))

	// Cut the middle two frames out.
	require.NoError(t, m.Unmap(s, 0x10000+frameSize, 2*frameSize))

	_, err = m.Translate(s, 0x10000)
	require.NoError(t, err)
	_, err = m.Translate(s, 0x10000+frameSize)
	assert.ErrorIs(t, err, kerr.ErrPageFault)
	_, err = m.Translate(s, 0x10000+2*frameSize)
	assert.ErrorIs(t, err, kerr.ErrPageFault)

	// The tail still translates to the right frame.
	tail, err := m.Translate(s, 0x10000+3*frameSize)
	require.NoError(t, err)
	head, err := m.Translate(s, 0x10000)
	require.NoError(t, err)
	assert.NotEqual(t, head, tail)

	assert.Len(t, m.Dump(s), 2)
}

func TestUnmapRangeNotFullyMapped(t *testing.T) {
	m, _ := newManager(t, 32)
	s := m.NewSpace(1)

	region, err := m.NewRegion(frameSize, cap.MemRights, false)
	require.NoError(t, err)
	require.NoError(t, m.Map(s, region, 0x10000, cap.RightRead, cap.MemRights))

	err = m.Unmap(s, 0x10000, 2*frameSize)
	assert.ErrorIs(t, err, kerr.ErrNotFound)

	// State unchanged.
	_, err = m.Translate(s, 0x10000)
	require.NoError(t, err)
}

func TestExclusiveTransferOnMap(t *testing.T) {
	m, _ := newManager(t, 32)
	a := m.NewSpace(1)
	b := m.NewSpace(2)

	region, err := m.NewRegion(frameSize, cap.MemRights, false)
	require.NoError(t, err)
	require.NoError(t, m.Map(a, region, 0x10000, cap.RightRead, cap.MemRights))

	// Mapping the non-shared region into B pulls it out of A.
	require.NoError(t, m.Map(b, region, 0x30000, cap.RightRead, cap.MemRights))

	_, err = m.Translate(a, 0x10000)
	assert.ErrorIs(t, err, kerr.ErrPageFault)
	_, err = m.Translate(b, 0x30000)
	require.NoError(t, err)
}

func TestSharedRegionMapsTwice(t *testing.T) {
	m, _ := newManager(t, 32)
	a := m.NewSpace(1)
	b := m.NewSpace(2)

	region, err := m.NewRegion(frameSize, cap.MemRights, true)
	require.NoError(t, err)
	require.NoError(t, m.Map(a, region, 0x10000, cap.RightRead, cap.MemRights))
	require.NoError(t, m.Map(b, region, 0x30000, cap.RightRead, cap.MemRights))

	_, err = m.Translate(a, 0x10000)
	require.NoError(t, err)
	_, err = m.Translate(b, 0x30000)
	require.NoError(t, err)
}

func TestTransferAtomicOnOverlap(t *testing.T) {
	m, _ := newManager(t, 32)
	a := m.NewSpace(1)
	b := m.NewSpace(2)

	region, err := m.NewRegion(frameSize, cap.MemRights, false)
	require.NoError(t, err)
	blocker, err := m.NewRegion(frameSize, cap.MemRights, false)
	require.NoError(t, err)

	require.NoError(t, m.Map(a, region, 0x10000, cap.RightRead, cap.MemRights))
	require.NoError(t, m.Map(b, blocker, 0x30000, cap.RightRead, cap.MemRights))

	err = m.Transfer(a, b, region, 0x30000, cap.RightRead, cap.MemRights)
	assert.ErrorIs(t, err, kerr.ErrOverlap)

	// Nothing moved: A still translates.
	_, err = m.Translate(a, 0x10000)
	require.NoError(t, err)
}

func TestTransferMovesMapping(t *testing.T) {
	m, _ := newManager(t, 32)
	a := m.NewSpace(1)
	b := m.NewSpace(2)

	region, err := m.NewRegion(2*frameSize, cap.MemRights, false)
	require.NoError(t, err)
	require.NoError(t, m.Map(a, region, 0x10000, cap.RightWrite, cap.MemRights))

	require.NoError(t, m.Transfer(a, b, region, 0x50000, cap.RightWrite, cap.MemRights))

	_, err = m.Translate(a, 0x10000)
	assert.ErrorIs(t, err, kerr.ErrPageFault)
	_, err = m.Translate(b, 0x50000+frameSize)
	require.NoError(t, err)
}

func TestRegionReleaseFreesFrames(t *testing.T) {
	m, alloc := newManager(t, 16)
	s := m.NewSpace(1)

	region, err := m.NewRegion(4*frameSize, cap.MemRights, false)
	require.NoError(t, err)
	require.NoError(t, m.Map(s, region, 0x10000, cap.RightRead, cap.MemRights))
	assert.Equal(t, uint64(12), alloc.Stats().Free)

	region.Release()

	_, err = m.Translate(s, 0x10000)
	assert.ErrorIs(t, err, kerr.ErrPageFault)
	assert.Equal(t, uint64(16), alloc.Stats().Free)
}

func TestNewRegionOutOfMemory(t *testing.T) {
	m, alloc := newManager(t, 4)
	before := alloc.Stats()
	_, err := m.NewRegion(8*frameSize, cap.MemRights, false)
	assert.ErrorIs(t, err, kerr.ErrOutOfMemory)
	assert.Equal(t, before, alloc.Stats())
}
