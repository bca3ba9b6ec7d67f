package pmm

import (
	"sync"

	"github.com/helion-os/helion/internal/kernel/kerr"
)

// Frame identifies a single physical page frame.
type Frame uint64

// DefaultFrameSize is the frame granularity assumed by the rest of the
// kernel. The allocator itself only deals in frame indices.
const DefaultFrameSize = 4096

// Allocator tracks free and used physical frames with a bitmap. A set bit
// means the frame is allocated.
type Allocator struct {
	mu     sync.Mutex
	bitmap []uint64
	total  uint64
	free   uint64
}

// Stats is a point-in-time view of frame accounting.
type Stats struct {
	Total uint64 `json:"total"`
	Free  uint64 `json:"free"`
	Used  uint64 `json:"used"`
}

// New creates an allocator managing frames [0, total).
func New(total uint64) *Allocator {
	return &Allocator{
		bitmap: make([]uint64, (total+63)/64),
		total:  total,
		free:   total,
	}
}

// Reserve marks a frame range as allocated at boot time, for ranges the
// boot manifest declares off-limits (kernel image, MMIO holes). Reserving an
// already-allocated frame is an invariant violation.
func (a *Allocator) Reserve(start, count uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for f := start; f < start+count; f++ {
		if f >= a.total {
			kerr.Invariant("pmm", "reserve of frame %d beyond total %d", f, a.total)
		}
		if a.isSet(f) {
			kerr.Invariant("pmm", "reserve of already-allocated frame %d", f)
		}
		a.set(f)
		a.free--
	}
}

// Allocate returns count frames, scattered. Fails with OutOfMemory and no
// state change when fewer than count frames are free.
func (a *Allocator) Allocate(count uint64) ([]Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if count == 0 {
		return nil, kerr.ErrInvalidArgument
	}
	if count > a.free {
		return nil, kerr.ErrOutOfMemory
	}

	frames := make([]Frame, 0, count)
	for f := uint64(0); f < a.total && uint64(len(frames)) < count; f++ {
		if !a.isSet(f) {
			a.set(f)
			frames = append(frames, Frame(f))
		}
	}
	a.free -= count
	return frames, nil
}

// Free returns frames to the pool. Freeing a frame that is not currently
// allocated indicates kernel-internal corruption and is fatal.
func (a *Allocator) Free(frames []Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, frame := range frames {
		f := uint64(frame)
		if f >= a.total {
			kerr.Invariant("pmm", "free of frame %d beyond total %d", f, a.total)
		}
		if !a.isSet(f) {
			kerr.Invariant("pmm", "double free of frame %d", f)
		}
		a.clear(f)
		a.free++
	}
}

// Stats reports current frame accounting.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Total: a.total,
		Free:  a.free,
		Used:  a.total - a.free,
	}
}

func (a *Allocator) isSet(f uint64) bool {
	return a.bitmap[f/64]&(1<<(f%64)) != 0
}

func (a *Allocator) set(f uint64) {
	a.bitmap[f/64] |= 1 << (f % 64)
}

func (a *Allocator) clear(f uint64) {
	a.bitmap[f/64] &^= 1 << (f % 64)
}
