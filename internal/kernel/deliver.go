package kernel

import (
	"github.com/helion-os/helion/internal/events"
	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/ipc"
	"github.com/helion-os/helion/internal/kernel/kerr"
	"github.com/helion-os/helion/internal/kernel/vspace"
)

// Deliver implements ipc.Deliverer: the capability and region movement of a
// rendezvous. Everything is validated before anything mutates, so an error
// leaves both sides exactly as they were.
func (k *Kernel) Deliver(senderPID, receiverPID uint64, msg ipc.Message, regionAddr uint64) ([]uint32, error) {
	if len(msg.Caps) == 0 && msg.Region == nil {
		// Pure payload (including kernel-posted interrupt messages):
		// the words travel by value, nothing to move.
		return nil, nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	sender, err := k.procs.Get(senderPID)
	if err != nil {
		return nil, kerr.ErrEndpointDestroyed
	}
	receiver, err := k.procs.Get(receiverPID)
	if err != nil {
		return nil, kerr.ErrEndpointDestroyed
	}

	// Moving a region needs Grant (it mints a capability in the receiver)
	// and Map (it mutates address spaces), so resolve it up front.
	var region *vspace.Region
	var regionCap cap.Capability
	transfers := make([]cap.Transfer, 0, len(msg.Caps)+1)
	if msg.Region != nil {
		regionCap, err = sender.Table.LookupKind(msg.Region.Slot, cap.KindMemoryRegion, cap.RightGrant|cap.RightMap)
		if err != nil {
			return nil, err
		}
		region = regionCap.Object.(*vspace.Region)
		transfers = append(transfers, cap.Transfer{Slot: msg.Region.Slot, Rights: cap.RightsAll, Badge: regionCap.Badge})
	}
	for _, ct := range msg.Caps {
		transfers = append(transfers, cap.Transfer{Slot: ct.Slot, Rights: ct.Rights, Badge: ct.Badge})
	}

	// Other processes mutate tables under only the arena lock, so the
	// capacity check must share one critical section with the inserts.
	// GrantAll does exactly that; a full or concurrently mutated table
	// aborts the rendezvous with an error, never mid-batch.
	granted, err := sender.Table.GrantAll(receiver.Table, transfers)
	if err != nil {
		return nil, err
	}

	// The region move is the one step left that can fail. Its
	// compensation is exact: the entries just granted have no
	// derivations yet, so revoking them restores the receiver's table.
	if msg.Region != nil {
		if err := k.vm.Transfer(sender.Space, receiver.Space, region, regionAddr,
			msg.Region.Perms, regionCap.Rights); err != nil {
			for _, slot := range granted {
				receiver.Table.Revoke(slot)
			}
			return nil, err
		}
	}

	k.emit(events.TypeRendezvous, map[string]interface{}{
		"sender":   senderPID,
		"receiver": receiverPID,
		"caps":     len(msg.Caps),
		"region":   msg.Region != nil,
	})
	return granted, nil
}
