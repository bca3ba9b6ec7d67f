package ipc

import "github.com/helion-os/helion/internal/kernel/cap"

// PayloadWords is the fixed inline payload size. The payload travels by
// value at rendezvous; nothing is allocated or buffered in between.
const PayloadWords = 8

// CapTransfer asks the kernel to re-derive the sender's capability at Slot
// into the receiver's table. Rights are clamped to what the sender actually
// holds; amplification is impossible by construction.
type CapTransfer struct {
	Slot   uint32
	Rights cap.Rights
	Badge  uint64
}

// RegionTransfer moves a memory region out of the sender's address space and
// into the receiver's, at the address the receiver chose when it blocked.
type RegionTransfer struct {
	Slot  uint32
	Perms cap.Rights
}

// Message is what a sender hands to Send.
type Message struct {
	Words  [PayloadWords]uint64
	Caps   []CapTransfer
	Region *RegionTransfer
}

// Delivery is what a receiver gets back from Receive. Badge is the badge of
// the capability the sender invoked, so the receiver can distinguish callers
// without trusting any sender-supplied data. CapSlots lists the slots the
// kernel minted in the receiver's table: the transferred region's capability
// first when a region moved, then the transfer list in order.
type Delivery struct {
	Words      [PayloadWords]uint64
	Badge      uint64
	CapSlots   []uint32
	RegionAddr uint64
	HasRegion  bool
}

// Deliverer performs the capability and region movement of a rendezvous.
// The kernel implements it; the engine stays free of table and address-space
// knowledge. An error aborts the rendezvous for both sides with no transfer
// state left behind.
type Deliverer interface {
	Deliver(senderPID, receiverPID uint64, msg Message, regionAddr uint64) (capSlots []uint32, err error)
}
