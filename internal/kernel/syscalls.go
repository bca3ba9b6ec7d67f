package kernel

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/helion-os/helion/internal/events"
	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/ipc"
	"github.com/helion-os/helion/internal/kernel/irq"
	"github.com/helion-os/helion/internal/kernel/kerr"
	"github.com/helion-os/helion/internal/kernel/proc"
	"github.com/helion-os/helion/internal/kernel/vspace"
)

// InitialCap names a capability the creator seeds a new process with:
// re-derived from the creator's slot with clamped rights.
type InitialCap struct {
	Slot   uint32
	Rights cap.Rights
	Badge  uint64
}

// CreateEndpoint mints a new endpoint and a full-rights capability to it in
// pid's table.
func (k *Kernel) CreateEndpoint(pid uint64) (uint32, error) {
	p, err := k.procs.Get(pid)
	if err != nil {
		return 0, kerr.ErrInvalidArgument
	}
	ep := k.engine.NewEndpoint()
	slot, err := p.Table.Insert(cap.Capability{Object: ep, Rights: cap.RightsAll})
	if err != nil {
		ep.Release()
		return 0, err
	}
	k.emit(events.TypeEndpointCreated, map[string]interface{}{"pid": pid, "slot": slot, "endpoint": ep.ID()})
	return slot, nil
}

// CreateRegion allocates a memory region of size bytes and a full-rights
// capability to it. perms is the region's permission ceiling; shared allows
// simultaneous mapping by several address spaces.
func (k *Kernel) CreateRegion(pid uint64, size uint64, perms cap.Rights, shared bool) (uint32, error) {
	p, err := k.procs.Get(pid)
	if err != nil {
		return 0, kerr.ErrInvalidArgument
	}
	region, err := k.vm.NewRegion(size, perms, shared)
	if err != nil {
		return 0, err
	}
	slot, err := p.Table.Insert(cap.Capability{Object: region, Rights: cap.RightsAll})
	if err != nil {
		region.Release()
		return 0, err
	}
	k.emit(events.TypeRegionCreated, map[string]interface{}{"pid": pid, "slot": slot, "region": region.ID(), "size": size})
	return slot, nil
}

// Send performs cap_send: a synchronous send through the endpoint capability
// at slot. Blocks until rendezvous unless a timeout is given.
func (k *Kernel) Send(ctx context.Context, pid uint64, slot uint32, msg ipc.Message, timeout time.Duration) error {
	p, err := k.procs.Get(pid)
	if err != nil {
		return kerr.ErrInvalidArgument
	}
	c, err := p.Table.LookupKind(slot, cap.KindEndpoint, cap.RightSend)
	if err != nil {
		return err
	}
	return k.engine.Send(ctx, c.Object.(*ipc.Endpoint), pid, c.Badge, msg, timeout)
}

// Receive performs cap_receive. regionAddr is where a transferred region,
// if any, lands in the caller's address space.
func (k *Kernel) Receive(ctx context.Context, pid uint64, slot uint32, regionAddr uint64, timeout time.Duration) (ipc.Delivery, error) {
	p, err := k.procs.Get(pid)
	if err != nil {
		return ipc.Delivery{}, kerr.ErrInvalidArgument
	}
	c, err := p.Table.LookupKind(slot, cap.KindEndpoint, cap.RightReceive)
	if err != nil {
		return ipc.Delivery{}, err
	}
	return k.engine.Receive(ctx, c.Object.(*ipc.Endpoint), pid, regionAddr, timeout)
}

// Derive performs cap_derive: an attenuated child capability in the
// caller's own table.
func (k *Kernel) Derive(pid uint64, slot uint32, rights cap.Rights, badge uint64) (uint32, error) {
	p, err := k.procs.Get(pid)
	if err != nil {
		return 0, kerr.ErrInvalidArgument
	}
	newSlot, err := p.Table.Derive(slot, rights, badge)
	if err != nil {
		return 0, err
	}
	k.emit(events.TypeCapDerived, map[string]interface{}{"pid": pid, "slot": slot, "new_slot": newSlot})
	return newSlot, nil
}

// Revoke performs cap_revoke: removes the capability and everything derived
// from it, across all processes.
func (k *Kernel) Revoke(pid uint64, slot uint32) error {
	p, err := k.procs.Get(pid)
	if err != nil {
		return kerr.ErrInvalidArgument
	}
	if err := p.Table.Revoke(slot); err != nil {
		return err
	}
	k.sweepEndpoints()
	k.emit(events.TypeCapRevoked, map[string]interface{}{"pid": pid, "slot": slot})
	return nil
}

// Grant re-derives the caller's capability into another process's table
// outside of a message. Both the capability (Grant right) and a
// ProcessControl handle for the target are required: processes do not reach
// into each other's tables by PID.
func (k *Kernel) Grant(pid uint64, handleSlot, srcSlot uint32, rights cap.Rights, badge uint64) (uint32, error) {
	p, err := k.procs.Get(pid)
	if err != nil {
		return 0, kerr.ErrInvalidArgument
	}
	hc, err := p.Table.LookupKind(handleSlot, cap.KindProcessControl, cap.RightGrant)
	if err != nil {
		return 0, err
	}
	target, err := k.procs.Get(hc.Object.(*proc.Handle).PID())
	if err != nil {
		return 0, kerr.ErrNotFound
	}
	return p.Table.Grant(target.Table, srcSlot, rights, badge)
}

// Map performs mem_map through a region capability.
func (k *Kernel) Map(pid uint64, slot uint32, vaddr uint64, perms cap.Rights) error {
	p, err := k.procs.Get(pid)
	if err != nil {
		return kerr.ErrInvalidArgument
	}
	c, err := p.Table.LookupKind(slot, cap.KindMemoryRegion, cap.RightMap)
	if err != nil {
		return err
	}
	return k.vm.Map(p.Space, c.Object.(*vspace.Region), vaddr, perms, c.Rights)
}

// Unmap performs mem_unmap on the caller's own address space.
func (k *Kernel) Unmap(pid uint64, vaddr, size uint64) error {
	p, err := k.procs.Get(pid)
	if err != nil {
		return kerr.ErrInvalidArgument
	}
	return k.vm.Unmap(p.Space, vaddr, size)
}

// Translate resolves a virtual address in pid's space. The hardware fault
// path uses it to split legitimate lazy faults from real ones; a PageFault
// here becomes a message to the process, never a kernel panic.
func (k *Kernel) Translate(pid uint64, vaddr uint64) (uint64, error) {
	p, err := k.procs.Get(pid)
	if err != nil {
		return 0, kerr.ErrInvalidArgument
	}
	return k.vm.Translate(p.Space, vaddr)
}

// CreateProcess performs proc_create: a new isolated process seeded with
// initial capabilities re-derived from the creator's table. Requires a
// Grant-right ProcessControl capability. Returns the new PID and the slot of
// the new process's control handle in the creator's table.
func (k *Kernel) CreateProcess(pid uint64, ctrlSlot uint32, name string, initial []InitialCap) (uint64, uint32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.procs.Get(pid)
	if err != nil {
		return 0, 0, kerr.ErrInvalidArgument
	}
	if _, err := p.Table.LookupKind(ctrlSlot, cap.KindProcessControl, cap.RightGrant); err != nil {
		return 0, 0, err
	}

	childPID := k.procs.NextPID()
	table := k.arena.NewTable(childPID, k.defaultTableCap)
	space := k.vm.NewSpace(childPID)

	for _, ic := range initial {
		if _, err := p.Table.Grant(table, ic.Slot, ic.Rights, ic.Badge); err != nil {
			table.DestroyAll()
			return 0, 0, err
		}
	}

	handleSlot, err := p.Table.Insert(cap.Capability{
		Object: proc.NewHandle(childPID),
		Rights: cap.RightsAll,
	})
	if err != nil {
		table.DestroyAll()
		return 0, 0, err
	}

	child := k.procs.Register(name, table, space)
	k.tracker.Add(child.PID)

	k.log.Info("process created",
		zap.Uint64("pid", child.PID),
		zap.String("name", name),
		zap.Uint64("creator", pid),
		zap.Int("initial_caps", len(initial)),
	)
	k.emit(events.TypeProcessCreated, map[string]interface{}{"pid": child.PID, "name": name, "creator": pid})
	return child.PID, handleSlot, nil
}

// DestroyProcess performs proc_destroy through a Revoke-right ProcessControl
// capability. Every capability the process holds is revoked (transitively,
// across processes), its blocked calls resolve, and its address space and
// frames are reclaimed.
func (k *Kernel) DestroyProcess(pid uint64, handleSlot uint32) error {
	p, err := k.procs.Get(pid)
	if err != nil {
		return kerr.ErrInvalidArgument
	}
	hc, err := p.Table.LookupKind(handleSlot, cap.KindProcessControl, cap.RightRevoke)
	if err != nil {
		return err
	}
	target := hc.Object.(*proc.Handle).PID()

	k.mu.Lock()
	defer k.mu.Unlock()
	return k.destroyLocked(target)
}

func (k *Kernel) destroyLocked(pid uint64) error {
	p, err := k.procs.Get(pid)
	if err != nil {
		return kerr.ErrNotFound
	}

	// Blocked calls resolve individually; nothing propagates.
	k.tracker.SetDestroyed(pid)
	k.engine.CancelProcess(pid)

	// Revoking the table may destroy endpoints other processes are
	// blocked on; their calls fail with EndpointDestroyed via Release.
	p.Table.DestroyAll()
	k.vm.DestroySpace(p.Space)
	k.procs.Remove(pid)
	k.tracker.Remove(pid)
	k.sweepEndpoints()

	k.log.Info("process destroyed", zap.Uint64("pid", pid), zap.String("name", p.Name))
	k.emit(events.TypeProcessDestroyed, map[string]interface{}{"pid": pid, "name": p.Name})
	return nil
}

// BindIRQ registers the endpoint interrupt messages for a line are posted
// to. Needs the line capability and a Send-right endpoint capability.
func (k *Kernel) BindIRQ(pid uint64, lineSlot, endpointSlot uint32, badge uint64) error {
	p, err := k.procs.Get(pid)
	if err != nil {
		return kerr.ErrInvalidArgument
	}
	lc, err := p.Table.LookupKind(lineSlot, cap.KindInterruptLine, 0)
	if err != nil {
		return err
	}
	ec, err := p.Table.LookupKind(endpointSlot, cap.KindEndpoint, cap.RightSend)
	if err != nil {
		return err
	}
	return k.irqs.Bind(lc.Object.(*irq.Line).ID(), ec.Object.(*ipc.Endpoint), badge)
}

// UnmaskIRQ performs irq_unmask: re-arms the line named by the caller's
// capability. Holding the capability is the permission; a missing or
// wrong-kind slot fails like any other capability miss.
func (k *Kernel) UnmaskIRQ(pid uint64, slot uint32) error {
	p, err := k.procs.Get(pid)
	if err != nil {
		return kerr.ErrInvalidArgument
	}
	c, err := p.Table.LookupKind(slot, cap.KindInterruptLine, 0)
	if err != nil {
		return err
	}
	line := c.Object.(*irq.Line).ID()
	if err := k.irqs.Unmask(line); err != nil {
		return err
	}
	k.emit(events.TypeIRQUnmasked, map[string]interface{}{"pid": pid, "line": line})
	return nil
}

// MaskIRQ disables a line without acknowledgement, through its capability.
func (k *Kernel) MaskIRQ(pid uint64, slot uint32) error {
	p, err := k.procs.Get(pid)
	if err != nil {
		return kerr.ErrInvalidArgument
	}
	c, err := p.Table.LookupKind(slot, cap.KindInterruptLine, 0)
	if err != nil {
		return err
	}
	return k.irqs.Mask(c.Object.(*irq.Line).ID())
}
