package vspace

import (
	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/pmm"
)

// Region is a set of physical frames with a permission ceiling. A region is
// reachable only through capabilities; when the last capability naming it is
// revoked the arena fires Release, which unmaps it everywhere and returns
// the frames.
type Region struct {
	id     uint64
	frames []pmm.Frame
	perms  cap.Rights // RWX ceiling, immutable
	shared bool
	mgr    *Manager

	// spaces currently mapping this region, maintained under mgr.mu
	mappedIn map[*Space]int
}

// ID returns the region's kernel-assigned identifier.
func (r *Region) ID() uint64 { return r.id }

// Size returns the region size in bytes.
func (r *Region) Size() uint64 { return uint64(len(r.frames)) * r.mgr.frameSize }

// Perms returns the region's permission ceiling.
func (r *Region) Perms() cap.Rights { return r.perms }

// Shared reports whether the region may be mapped by several address spaces
// at once. Set at creation; a non-shared region moves exclusively.
func (r *Region) Shared() bool { return r.shared }

// Kind implements cap.Object.
func (r *Region) Kind() cap.Kind { return cap.KindMemoryRegion }

// Release implements cap.Object: unmap everywhere and free the frames.
func (r *Region) Release() {
	r.mgr.releaseRegion(r)
}
