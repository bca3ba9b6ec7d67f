package cap

import (
	"sync"

	"github.com/helion-os/helion/internal/kernel/kerr"
)

// Arena owns every capability entry in the system. Entries are indexed by
// table-plus-slot and carry explicit parent/child links, so revocation walks
// the derivation tree directly. One mutex guards all tables: capability
// mutations are short critical sections and revocation crosses processes.
type Arena struct {
	mu    sync.Mutex
	refs  map[Object]int
	index map[Object]map[*entry]struct{}
}

type entry struct {
	table    *Table
	slot     uint32
	cap      Capability
	parent   *entry
	children []*entry
}

// Table is a per-process capability table: a fixed-capacity sparse mapping
// from slot index to capability. Destroying the table revokes everything
// derived from capabilities it holds.
type Table struct {
	arena     *Arena
	pid       uint64
	slots     []*entry
	destroyed bool
}

// SlotDump is a display view of one occupied slot.
type SlotDump struct {
	Slot   uint32 `json:"slot"`
	Kind   string `json:"kind"`
	Rights string `json:"rights"`
	Badge  uint64 `json:"badge"`
}

// NewArena creates an empty capability arena.
func NewArena() *Arena {
	return &Arena{
		refs:  make(map[Object]int),
		index: make(map[Object]map[*entry]struct{}),
	}
}

// NewTable creates a table with the given slot capacity, owned by pid.
func (a *Arena) NewTable(pid uint64, capacity int) *Table {
	return &Table{
		arena: a,
		pid:   pid,
		slots: make([]*entry, capacity),
	}
}

// PID returns the owning process ID.
func (t *Table) PID() uint64 { return t.pid }

// Insert places a root capability (no derivation parent) into the lowest
// free slot. Used by the kernel when minting bootstrap and object-creation
// capabilities.
func (t *Table) Insert(c Capability) (uint32, error) {
	t.arena.mu.Lock()
	defer t.arena.mu.Unlock()
	return t.insertLocked(c, nil)
}

// Lookup resolves a slot, validating the rights mask. Empty slots fail with
// InvalidCapability; insufficient rights fail with PermissionDenied.
func (t *Table) Lookup(slot uint32, required Rights) (Capability, error) {
	t.arena.mu.Lock()
	defer t.arena.mu.Unlock()

	e, err := t.entryLocked(slot)
	if err != nil {
		return Capability{}, err
	}
	if !e.cap.Rights.Has(required) {
		return Capability{}, kerr.ErrPermissionDenied
	}
	return e.cap, nil
}

// LookupKind is Lookup plus an object-kind check. A slot of the wrong kind
// is indistinguishable from an empty one to the caller.
func (t *Table) LookupKind(slot uint32, kind Kind, required Rights) (Capability, error) {
	t.arena.mu.Lock()
	defer t.arena.mu.Unlock()

	e, err := t.entryLocked(slot)
	if err != nil {
		return Capability{}, err
	}
	if e.cap.Object.Kind() != kind {
		return Capability{}, kerr.ErrInvalidCapability
	}
	if !e.cap.Rights.Has(required) {
		return Capability{}, kerr.ErrPermissionDenied
	}
	return e.cap, nil
}

// Derive creates an attenuated child of the capability at slot, in the same
// table. Fails with PermissionDenied if rights is not a subset of the
// source's rights.
func (t *Table) Derive(slot uint32, rights Rights, badge uint64) (uint32, error) {
	t.arena.mu.Lock()
	defer t.arena.mu.Unlock()

	src, err := t.entryLocked(slot)
	if err != nil {
		return 0, err
	}
	if !rights.SubsetOf(src.cap.Rights) {
		return 0, kerr.ErrPermissionDenied
	}
	return t.insertLocked(Capability{
		Object: src.cap.Object,
		Rights: rights,
		Badge:  badge,
	}, src)
}

// Grant re-derives the capability at slot into dst's table, clamping rights
// to the intersection of the held rights and the requested mask, never
// amplifying. Requires the Grant right on the source. This is the transfer
// primitive the IPC engine uses.
func (t *Table) Grant(dst *Table, slot uint32, rights Rights, badge uint64) (uint32, error) {
	t.arena.mu.Lock()
	defer t.arena.mu.Unlock()

	src, err := t.entryLocked(slot)
	if err != nil {
		return 0, err
	}
	if !src.cap.Rights.Has(RightGrant) {
		return 0, kerr.ErrPermissionDenied
	}
	return dst.insertLocked(Capability{
		Object: src.cap.Object,
		Rights: rights & src.cap.Rights,
		Badge:  badge,
	}, src)
}

// Transfer describes one capability movement for GrantAll.
type Transfer struct {
	Slot   uint32
	Rights Rights
	Badge  uint64
}

// GrantAll grants a batch of capabilities into dst as one step: either
// every transfer lands or none does. Validation, the capacity check, and
// the inserts share a single arena critical section, so concurrent table
// mutations by other processes cannot strand a half-delivered batch. This
// is the transfer primitive the IPC engine uses.
func (t *Table) GrantAll(dst *Table, transfers []Transfer) ([]uint32, error) {
	t.arena.mu.Lock()
	defer t.arena.mu.Unlock()

	if dst.destroyed {
		return nil, kerr.ErrInvalidCapability
	}
	free := 0
	for _, e := range dst.slots {
		if e == nil {
			free++
		}
	}
	if free < len(transfers) {
		return nil, kerr.ErrTableFull
	}

	srcs := make([]*entry, len(transfers))
	for i, tr := range transfers {
		src, err := t.entryLocked(tr.Slot)
		if err != nil {
			return nil, err
		}
		if !src.cap.Rights.Has(RightGrant) {
			return nil, kerr.ErrPermissionDenied
		}
		srcs[i] = src
	}

	granted := make([]uint32, len(transfers))
	for i, tr := range transfers {
		slot, err := dst.insertLocked(Capability{
			Object: srcs[i].cap.Object,
			Rights: tr.Rights & srcs[i].cap.Rights,
			Badge:  tr.Badge,
		}, srcs[i])
		if err != nil {
			kerr.Invariant("cap", "batch grant failed after capacity check: %v", err)
		}
		granted[i] = slot
	}
	return granted, nil
}

// Revoke removes the capability at slot and, transitively, every capability
// derived from it across all processes. The derivation graph is a tree, so
// the walk terminates without cycle detection. Revoking the last capability
// to an object releases the object.
func (t *Table) Revoke(slot uint32) error {
	t.arena.mu.Lock()

	e, err := t.entryLocked(slot)
	if err != nil {
		t.arena.mu.Unlock()
		return err
	}
	released := t.arena.removeSubtreeLocked(e)
	t.arena.mu.Unlock()

	for _, obj := range released {
		obj.Release()
	}
	return nil
}

// DestroyAll revokes every capability the table holds and marks it dead.
// Called exactly once, from process destruction.
func (t *Table) DestroyAll() {
	t.arena.mu.Lock()
	var released []Object
	for slot, e := range t.slots {
		if e != nil {
			released = append(released, t.arena.removeSubtreeLocked(e)...)
		}
		t.slots[slot] = nil
	}
	t.destroyed = true
	t.arena.mu.Unlock()

	for _, obj := range released {
		obj.Release()
	}
}

// List dumps every occupied slot for display.
func (t *Table) List() []SlotDump {
	t.arena.mu.Lock()
	defer t.arena.mu.Unlock()

	dump := make([]SlotDump, 0)
	for slot, e := range t.slots {
		if e == nil {
			continue
		}
		dump = append(dump, SlotDump{
			Slot:   uint32(slot),
			Kind:   e.cap.Object.Kind().String(),
			Rights: e.cap.Rights.String(),
			Badge:  e.cap.Badge,
		})
	}
	return dump
}

// Used returns the number of occupied slots.
func (t *Table) Used() int {
	t.arena.mu.Lock()
	defer t.arena.mu.Unlock()
	n := 0
	for _, e := range t.slots {
		if e != nil {
			n++
		}
	}
	return n
}

// Capacity returns the fixed slot capacity.
func (t *Table) Capacity() int { return len(t.slots) }

// Refs returns the live-entry refcount for an object. Zero means no
// capability anywhere names it.
func (a *Arena) Refs(obj Object) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refs[obj]
}

// HoldersWithRights counts live capabilities naming obj that carry every bit
// of required. The IPC layer uses this to detect endpoints nobody can send
// to (or receive from) anymore, so blocked peers fail instead of hanging.
func (a *Arena) HoldersWithRights(obj Object, required Rights) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for e := range a.index[obj] {
		if e.cap.Rights.Has(required) {
			n++
		}
	}
	return n
}

func (t *Table) entryLocked(slot uint32) (*entry, error) {
	if t.destroyed || slot >= uint32(len(t.slots)) || t.slots[slot] == nil {
		return nil, kerr.ErrInvalidCapability
	}
	return t.slots[slot], nil
}

func (t *Table) insertLocked(c Capability, parent *entry) (uint32, error) {
	if t.destroyed {
		return 0, kerr.ErrInvalidCapability
	}
	for slot := range t.slots {
		if t.slots[slot] != nil {
			continue
		}
		e := &entry{table: t, slot: uint32(slot), cap: c, parent: parent}
		if parent != nil {
			parent.children = append(parent.children, e)
		}
		t.slots[slot] = e
		t.arena.refs[c.Object]++
		if t.arena.index[c.Object] == nil {
			t.arena.index[c.Object] = make(map[*entry]struct{})
		}
		t.arena.index[c.Object][e] = struct{}{}
		return uint32(slot), nil
	}
	return 0, kerr.ErrTableFull
}

// removeSubtreeLocked unlinks e and its whole derivation subtree, returning
// objects whose last reference went away. Callers invoke Release on those
// after dropping the arena lock.
func (a *Arena) removeSubtreeLocked(e *entry) []Object {
	var released []Object
	var walk func(*entry)
	walk = func(cur *entry) {
		for _, child := range cur.children {
			walk(child)
		}
		cur.children = nil
		if cur.table.slots[cur.slot] != cur {
			kerr.Invariant("cap", "arena entry desynced from table %d slot %d", cur.table.pid, cur.slot)
		}
		cur.table.slots[cur.slot] = nil
		delete(a.index[cur.cap.Object], cur)
		a.refs[cur.cap.Object]--
		switch n := a.refs[cur.cap.Object]; {
		case n < 0:
			kerr.Invariant("cap", "negative refcount for %s object", cur.cap.Object.Kind())
		case n == 0:
			delete(a.refs, cur.cap.Object)
			delete(a.index, cur.cap.Object)
			released = append(released, cur.cap.Object)
		}
	}
	if e.parent != nil {
		siblings := e.parent.children
		for i, child := range siblings {
			if child == e {
				e.parent.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
		e.parent = nil
	}
	walk(e)
	return released
}
