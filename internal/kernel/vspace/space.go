package vspace

import (
	"sort"
	"sync"

	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/kerr"
	"github.com/helion-os/helion/internal/kernel/pmm"
)

// mapping is one contiguous virtual range backed by a window into a region.
type mapping struct {
	vaddr  uint64
	size   uint64
	offset uint64 // byte offset into the region
	region *Region
	perms  cap.Rights
}

// Space is a per-process virtual address space: a sorted list of
// non-overlapping mappings. Mutated only through Manager calls.
type Space struct {
	pid      uint64
	mappings []mapping
}

// MappingDump is a display view of one mapping.
type MappingDump struct {
	Vaddr  uint64 `json:"vaddr"`
	Size   uint64 `json:"size"`
	Region uint64 `json:"region"`
	Perms  string `json:"perms"`
}

// Manager builds and mutates address spaces. One mutex guards all spaces and
// region mapping state: exclusive region transfer touches two spaces
// atomically, so per-space locks would not do.
type Manager struct {
	mu        sync.Mutex
	alloc     *pmm.Allocator
	frameSize uint64
	nextID    uint64
}

// NewManager creates a manager backed by the given frame allocator.
func NewManager(alloc *pmm.Allocator, frameSize uint64) *Manager {
	if frameSize == 0 {
		frameSize = pmm.DefaultFrameSize
	}
	return &Manager{alloc: alloc, frameSize: frameSize, nextID: 1}
}

// FrameSize returns the configured frame granularity.
func (m *Manager) FrameSize() uint64 { return m.frameSize }

// NewSpace creates an empty address space for pid.
func (m *Manager) NewSpace(pid uint64) *Space {
	return &Space{pid: pid}
}

// NewRegion allocates frames for a region of size bytes (rounded up to whole
// frames) with the given permission ceiling.
func (m *Manager) NewRegion(size uint64, perms cap.Rights, shared bool) (*Region, error) {
	if size == 0 {
		return nil, kerr.ErrInvalidArgument
	}
	count := (size + m.frameSize - 1) / m.frameSize
	frames, err := m.alloc.Allocate(count)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()
	return &Region{
		id:       id,
		frames:   frames,
		perms:    perms & cap.MemRights,
		shared:   shared,
		mgr:      m,
		mappedIn: make(map[*Space]int),
	}, nil
}

// AdoptRegion wraps frames that were reserved at boot (device MMIO windows)
// in a region. The frames must already be marked allocated; Release returns
// them like any other region's.
func (m *Manager) AdoptRegion(frames []pmm.Frame, perms cap.Rights, shared bool) *Region {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()
	return &Region{
		id:       id,
		frames:   frames,
		perms:    perms & cap.MemRights,
		shared:   shared,
		mgr:      m,
		mappedIn: make(map[*Space]int),
	}
}

// Map inserts region into s at vaddr. perms must be within both the mapping
// capability's rights and the region's ceiling. Mapping a non-shared region
// that another space holds transfers it: the source mappings are removed in
// the same critical section.
func (m *Manager) Map(s *Space, region *Region, vaddr uint64, perms, capRights cap.Rights) error {
	perms &= cap.MemRights
	if vaddr%m.frameSize != 0 {
		return kerr.ErrInvalidArgument
	}
	if !perms.SubsetOf(capRights) || !perms.SubsetOf(region.perms) {
		return kerr.ErrPermissionDenied
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s.overlapsLocked(vaddr, region.Size()) {
		return kerr.ErrOverlap
	}
	if !region.shared {
		for other := range region.mappedIn {
			if other != s {
				other.removeRegionLocked(region)
				delete(region.mappedIn, other)
			}
		}
	}
	s.insertLocked(mapping{
		vaddr:  vaddr,
		size:   region.Size(),
		offset: 0,
		region: region,
		perms:  perms,
	})
	region.mappedIn[s]++
	return nil
}

// Unmap removes [vaddr, vaddr+size) from s. The range must be fully covered
// by existing mappings; a partial-range unmap splits the mapping it cuts.
func (m *Manager) Unmap(s *Space, vaddr, size uint64) error {
	if size == 0 || vaddr%m.frameSize != 0 || size%m.frameSize != 0 {
		return kerr.ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !s.coversLocked(vaddr, size) {
		return kerr.ErrNotFound
	}

	end := vaddr + size
	affected := make(map[*Region]bool)
	next := make([]mapping, 0, len(s.mappings)+1)
	for _, mp := range s.mappings {
		mpEnd := mp.vaddr + mp.size
		if mpEnd <= vaddr || mp.vaddr >= end {
			next = append(next, mp)
			continue
		}
		affected[mp.region] = true
		// Keep the head and/or tail the cut leaves behind.
		if mp.vaddr < vaddr {
			next = append(next, mapping{
				vaddr:  mp.vaddr,
				size:   vaddr - mp.vaddr,
				offset: mp.offset,
				region: mp.region,
				perms:  mp.perms,
			})
		}
		if mpEnd > end {
			next = append(next, mapping{
				vaddr:  end,
				size:   mpEnd - end,
				offset: mp.offset + (end - mp.vaddr),
				region: mp.region,
				perms:  mp.perms,
			})
		}
	}
	sort.Slice(next, func(i, j int) bool { return next[i].vaddr < next[j].vaddr })
	s.mappings = next

	for r := range affected {
		count := 0
		for _, mp := range s.mappings {
			if mp.region == r {
				count++
			}
		}
		if count == 0 {
			delete(r.mappedIn, s)
		} else {
			r.mappedIn[s] = count
		}
	}
	return nil
}

// Translate resolves a virtual address to a physical one. Fails with
// PageFault when the address is unmapped; the trap path turns that into a
// message to the faulting process, never a kernel panic.
func (m *Manager) Translate(s *Space, vaddr uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mp := range s.mappings {
		if vaddr < mp.vaddr || vaddr >= mp.vaddr+mp.size {
			continue
		}
		byteOff := mp.offset + (vaddr - mp.vaddr)
		frame := mp.region.frames[byteOff/m.frameSize]
		return uint64(frame)*m.frameSize + byteOff%m.frameSize, nil
	}
	return 0, kerr.ErrPageFault
}

// Transfer atomically moves region from src to dst at vaddr. Either the
// region ends fully mapped in dst and absent from src, or (on Overlap at the
// destination) nothing changes. This is the zero-copy IPC path.
func (m *Manager) Transfer(src, dst *Space, region *Region, vaddr uint64, perms, capRights cap.Rights) error {
	perms &= cap.MemRights
	if vaddr%m.frameSize != 0 {
		return kerr.ErrInvalidArgument
	}
	if !perms.SubsetOf(capRights) || !perms.SubsetOf(region.perms) {
		return kerr.ErrPermissionDenied
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if dst.overlapsLocked(vaddr, region.Size()) {
		return kerr.ErrOverlap
	}
	src.removeRegionLocked(region)
	delete(region.mappedIn, src)
	dst.insertLocked(mapping{
		vaddr:  vaddr,
		size:   region.Size(),
		offset: 0,
		region: region,
		perms:  perms,
	})
	region.mappedIn[dst]++
	return nil
}

// DestroySpace removes every mapping; called on process destruction. The
// regions themselves live on until their capabilities go.
func (m *Manager) DestroySpace(s *Space) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mp := range s.mappings {
		delete(mp.region.mappedIn, s)
	}
	s.mappings = nil
}

// Dump lists the space's mappings for display.
func (m *Manager) Dump(s *Space) []MappingDump {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MappingDump, 0, len(s.mappings))
	for _, mp := range s.mappings {
		out = append(out, MappingDump{
			Vaddr:  mp.vaddr,
			Size:   mp.size,
			Region: mp.region.id,
			Perms:  mp.perms.String(),
		})
	}
	return out
}

func (m *Manager) releaseRegion(r *Region) {
	m.mu.Lock()
	for s := range r.mappedIn {
		s.removeRegionLocked(r)
	}
	r.mappedIn = make(map[*Space]int)
	frames := r.frames
	r.frames = nil
	m.mu.Unlock()

	if frames != nil {
		m.alloc.Free(frames)
	}
}

func (s *Space) overlapsLocked(vaddr, size uint64) bool {
	end := vaddr + size
	for _, mp := range s.mappings {
		if vaddr < mp.vaddr+mp.size && mp.vaddr < end {
			return true
		}
	}
	return false
}

func (s *Space) coversLocked(vaddr, size uint64) bool {
	// Mappings are sorted and non-overlapping; walk the range forward.
	cursor := vaddr
	end := vaddr + size
	for _, mp := range s.mappings {
		if cursor >= end {
			break
		}
		if mp.vaddr+mp.size <= cursor {
			continue
		}
		if mp.vaddr > cursor {
			return false
		}
		cursor = mp.vaddr + mp.size
	}
	return cursor >= end
}

func (s *Space) insertLocked(mp mapping) {
	i := sort.Search(len(s.mappings), func(i int) bool {
		return s.mappings[i].vaddr > mp.vaddr
	})
	s.mappings = append(s.mappings, mapping{})
	copy(s.mappings[i+1:], s.mappings[i:])
	s.mappings[i] = mp
}

func (s *Space) removeRegionLocked(r *Region) {
	next := s.mappings[:0]
	for _, mp := range s.mappings {
		if mp.region != r {
			next = append(next, mp)
		}
	}
	s.mappings = next
}
