package proc

import (
	"sync"
	"time"

	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/kerr"
	"github.com/helion-os/helion/internal/kernel/vspace"
)

// Process is the unit of isolation: one capability table, one address space,
// one thread state. Nothing reaches another process's internals except
// through capabilities.
type Process struct {
	PID       uint64
	Name      string
	Table     *cap.Table
	Space     *vspace.Space
	CreatedAt time.Time
}

// Handle is the ProcessControl capability object naming one process.
// Revoking the last handle does not kill the process; destruction is an
// explicit operation through a Revoke-right handle.
type Handle struct {
	pid uint64
}

// NewHandle creates the capability object for pid.
func NewHandle(pid uint64) *Handle { return &Handle{pid: pid} }

// PID returns the process the handle names.
func (h *Handle) PID() uint64 { return h.pid }

// Kind implements cap.Object.
func (h *Handle) Kind() cap.Kind { return cap.KindProcessControl }

// Release implements cap.Object.
func (h *Handle) Release() {}

// Dump is a display view of one process.
type Dump struct {
	PID       uint64 `json:"pid"`
	Name      string `json:"name"`
	Caps      int    `json:"caps"`
	CreatedAt int64  `json:"created_at"`
}

// Manager is the process registry.
type Manager struct {
	mu      sync.RWMutex
	next    uint64
	procs   map[uint64]*Process
	created uint64
}

// NewManager creates an empty registry. PIDs start at 1; the bootstrap
// process is always PID 1.
func NewManager() *Manager {
	return &Manager{next: 1, procs: make(map[uint64]*Process)}
}

// Register adds a process built from the given table and space, assigning
// the next PID.
func (m *Manager) Register(name string, table *cap.Table, space *vspace.Space) *Process {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &Process{
		PID:       m.next,
		Name:      name,
		Table:     table,
		Space:     space,
		CreatedAt: time.Now(),
	}
	m.procs[p.PID] = p
	m.next++
	m.created++
	return p
}

// NextPID returns the PID the next Register call will assign. Needed because
// the table and space are keyed by PID before the process record exists.
func (m *Manager) NextPID() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.next
}

// Get looks a process up by PID.
func (m *Manager) Get(pid uint64) (*Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.procs[pid]
	if !ok {
		return nil, kerr.ErrNotFound
	}
	return p, nil
}

// Remove drops the registry entry. The caller has already torn down the
// table and space.
func (m *Manager) Remove(pid uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.procs, pid)
}

// Count returns live and total-created process counts.
func (m *Manager) Count() (live int, created uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.procs), m.created
}

// List dumps every live process sorted by PID.
func (m *Manager) List() []Dump {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Dump, 0, len(m.procs))
	for pid := uint64(1); pid < m.next; pid++ {
		p, ok := m.procs[pid]
		if !ok {
			continue
		}
		out = append(out, Dump{
			PID:       p.PID,
			Name:      p.Name,
			Caps:      p.Table.Used(),
			CreatedAt: p.CreatedAt.Unix(),
		})
	}
	return out
}
