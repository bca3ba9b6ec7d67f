package ipc

import (
	"sync"

	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/kerr"
)

// EndpointState is the rendezvous state visible on the control plane.
type EndpointState string

const (
	StateIdle            EndpointState = "idle"
	StateSenderWaiting   EndpointState = "sender_waiting"
	StateReceiverWaiting EndpointState = "receiver_waiting"
)

type sendResult struct {
	err error
}

type recvResult struct {
	delivery Delivery
	err      error
}

// senderWaiter is a blocked (or kernel-owned) sender queued on an endpoint.
// done is nil for kernel-owned senders: no thread blocks for those, the
// message is simply parked until a receiver drains it.
type senderWaiter struct {
	pid   uint64
	badge uint64
	msg   Message
	done  chan sendResult
}

type receiverWaiter struct {
	pid        uint64
	regionAddr uint64
	done       chan recvResult
}

// Endpoint is a rendezvous point. Waiters queue FIFO; at most one side has a
// non-empty queue at any time.
type Endpoint struct {
	id     uint64
	engine *Engine

	mu        sync.Mutex
	destroyed bool
	senders   []*senderWaiter
	receivers []*receiverWaiter
}

// ID returns the endpoint's kernel-assigned identifier.
func (ep *Endpoint) ID() uint64 { return ep.id }

// Kind implements cap.Object.
func (ep *Endpoint) Kind() cap.Kind { return cap.KindEndpoint }

// Release implements cap.Object: fired when the last capability naming the
// endpoint is revoked. Whoever is blocked here fails with EndpointDestroyed
// instead of hanging forever.
func (ep *Endpoint) Release() {
	ep.engine.dropEndpoint(ep.id)
	ep.mu.Lock()
	ep.destroyed = true
	senders, receivers := ep.senders, ep.receivers
	ep.senders, ep.receivers = nil, nil
	ep.mu.Unlock()

	for _, sw := range senders {
		if sw.done != nil {
			sw.done <- sendResult{err: kerr.ErrEndpointDestroyed}
		}
	}
	for _, rw := range receivers {
		rw.done <- recvResult{err: kerr.ErrEndpointDestroyed}
	}
}

// State reports the endpoint's rendezvous state.
func (ep *Endpoint) State() EndpointState {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	switch {
	case len(ep.senders) > 0:
		return StateSenderWaiting
	case len(ep.receivers) > 0:
		return StateReceiverWaiting
	default:
		return StateIdle
	}
}

// Waiting returns the queued sender and receiver counts.
func (ep *Endpoint) Waiting() (senders, receivers int) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return len(ep.senders), len(ep.receivers)
}

// failWaiters fails every queued waiter belonging to pid. Used on process
// destruction and when an endpoint loses its last send- or receive-capable
// holder. pid == allPIDs matches everyone on the given side.
const allPIDs = ^uint64(0)

func (ep *Endpoint) failWaiters(pid uint64, senders, receivers bool, cause error) {
	ep.mu.Lock()
	var failedS []*senderWaiter
	var failedR []*receiverWaiter
	if senders {
		kept := ep.senders[:0]
		for _, sw := range ep.senders {
			if pid == allPIDs || sw.pid == pid {
				failedS = append(failedS, sw)
			} else {
				kept = append(kept, sw)
			}
		}
		ep.senders = kept
	}
	if receivers {
		kept := ep.receivers[:0]
		for _, rw := range ep.receivers {
			if pid == allPIDs || rw.pid == pid {
				failedR = append(failedR, rw)
			} else {
				kept = append(kept, rw)
			}
		}
		ep.receivers = kept
	}
	ep.mu.Unlock()

	for _, sw := range failedS {
		if sw.done != nil {
			sw.done <- sendResult{err: cause}
		}
	}
	for _, rw := range failedR {
		rw.done <- recvResult{err: cause}
	}
}
