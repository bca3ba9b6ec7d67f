package ipc

import (
	"context"
	"sync"
	"time"

	"github.com/helion-os/helion/internal/kernel/kerr"
	"github.com/helion-os/helion/internal/kernel/sched"
)

// Engine drives synchronous rendezvous between address spaces. It owns the
// endpoint registry and the blocking discipline; capability and memory
// movement is delegated to the Deliverer.
type Engine struct {
	deliver Deliverer
	tracker *sched.Tracker

	mu        sync.Mutex
	nextID    uint64
	endpoints map[uint64]*Endpoint
}

// NewEngine creates an engine. The tracker may not be nil: blocking is
// defined as leaving the runnable set.
func NewEngine(deliver Deliverer, tracker *sched.Tracker) *Engine {
	return &Engine{
		deliver:   deliver,
		tracker:   tracker,
		nextID:    1,
		endpoints: make(map[uint64]*Endpoint),
	}
}

// NewEndpoint creates an idle endpoint.
func (e *Engine) NewEndpoint() *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	ep := &Endpoint{id: e.nextID, engine: e}
	e.endpoints[ep.id] = ep
	e.nextID++
	return ep
}

// Endpoints snapshots the live endpoint set.
func (e *Engine) Endpoints() []*Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Endpoint, 0, len(e.endpoints))
	for _, ep := range e.endpoints {
		out = append(out, ep)
	}
	return out
}

func (e *Engine) dropEndpoint(id uint64) {
	e.mu.Lock()
	delete(e.endpoints, id)
	e.mu.Unlock()
}

// Send performs the sender half of a rendezvous. badge is the badge of the
// capability the sender invoked. A zero timeout blocks until rendezvous,
// endpoint destruction, or process destruction.
func (e *Engine) Send(ctx context.Context, ep *Endpoint, senderPID, badge uint64, msg Message, timeout time.Duration) error {
	ep.mu.Lock()
	if ep.destroyed {
		ep.mu.Unlock()
		return kerr.ErrEndpointDestroyed
	}
	if len(ep.receivers) > 0 {
		rw := ep.receivers[0]
		ep.receivers = ep.receivers[1:]
		ep.mu.Unlock()
		return e.complete(senderPID, badge, msg, rw)
	}

	sw := &senderWaiter{
		pid:   senderPID,
		badge: badge,
		msg:   msg,
		done:  make(chan sendResult, 1),
	}
	ep.senders = append(ep.senders, sw)
	ep.mu.Unlock()

	e.tracker.SetBlocked(senderPID, sched.BlockSend)
	defer e.tracker.SetRunnable(senderPID)

	res, timedOut := waitSend(ctx, sw.done, timeout)
	if !timedOut {
		return res.err
	}
	if removed := removeSender(ep, sw); removed {
		return kerr.ErrTimeout
	}
	// Lost the race: a rendezvous already claimed this waiter, so its
	// completion is imminent and binding.
	res = <-sw.done
	return res.err
}

// Post queues a kernel-owned send that blocks no thread. The interrupt
// dispatcher uses it: a hardware line has no thread to suspend. Delivery
// errors surface to the receiver alone.
func (e *Engine) Post(ep *Endpoint, badge uint64, msg Message) error {
	ep.mu.Lock()
	if ep.destroyed {
		ep.mu.Unlock()
		return kerr.ErrEndpointDestroyed
	}
	if len(ep.receivers) > 0 {
		rw := ep.receivers[0]
		ep.receivers = ep.receivers[1:]
		ep.mu.Unlock()
		return e.complete(kernelPID, badge, msg, rw)
	}
	ep.senders = append(ep.senders, &senderWaiter{pid: kernelPID, badge: badge, msg: msg})
	ep.mu.Unlock()
	return nil
}

// kernelPID marks kernel-owned waiters; no user process carries it.
const kernelPID = ^uint64(0) - 1

// Receive performs the receiver half of a rendezvous. regionAddr is where a
// transferred region, if any, lands in the receiver's address space.
func (e *Engine) Receive(ctx context.Context, ep *Endpoint, receiverPID, regionAddr uint64, timeout time.Duration) (Delivery, error) {
	ep.mu.Lock()
	if ep.destroyed {
		ep.mu.Unlock()
		return Delivery{}, kerr.ErrEndpointDestroyed
	}
	if len(ep.senders) > 0 {
		sw := ep.senders[0]
		ep.senders = ep.senders[1:]
		ep.mu.Unlock()
		rw := &receiverWaiter{pid: receiverPID, regionAddr: regionAddr, done: make(chan recvResult, 1)}
		err := e.complete(sw.pid, sw.badge, sw.msg, rw)
		if sw.done != nil {
			sw.done <- sendResult{err: err}
		}
		res := <-rw.done
		return res.delivery, res.err
	}

	rw := &receiverWaiter{
		pid:        receiverPID,
		regionAddr: regionAddr,
		done:       make(chan recvResult, 1),
	}
	ep.receivers = append(ep.receivers, rw)
	ep.mu.Unlock()

	e.tracker.SetBlocked(receiverPID, sched.BlockReceive)
	defer e.tracker.SetRunnable(receiverPID)

	res, timedOut := waitRecv(ctx, rw.done, timeout)
	if !timedOut {
		return res.delivery, res.err
	}
	if removed := removeReceiver(ep, rw); removed {
		return Delivery{}, kerr.ErrTimeout
	}
	res = <-rw.done
	return res.delivery, res.err
}

// CancelProcess resolves every blocked call pid holds, across all endpoints.
// Called from process destruction; each call fails individually, nothing
// propagates.
func (e *Engine) CancelProcess(pid uint64) {
	for _, ep := range e.Endpoints() {
		ep.failWaiters(pid, true, true, kerr.ErrEndpointDestroyed)
	}
}

// FailOrphanedSenders fails queued senders on ep; used when the endpoint has
// lost its last receive-capable holder.
func (e *Engine) FailOrphanedSenders(ep *Endpoint) {
	ep.failWaiters(allPIDs, true, false, kerr.ErrEndpointDestroyed)
}

// FailOrphanedReceivers fails queued receivers on ep; used when the endpoint
// has lost its last send-capable holder.
func (e *Engine) FailOrphanedReceivers(ep *Endpoint) {
	ep.failWaiters(allPIDs, false, true, kerr.ErrEndpointDestroyed)
}

// complete performs the transfer half of a rendezvous and resolves the
// receiver. Runs without any endpoint lock held. A transfer error aborts the
// rendezvous for both sides and leaves no partial state: the deliverer
// validates before it mutates.
func (e *Engine) complete(senderPID, badge uint64, msg Message, rw *receiverWaiter) error {
	capSlots, err := e.deliver.Deliver(senderPID, rw.pid, msg, rw.regionAddr)
	if err != nil {
		rw.done <- recvResult{err: err}
		return err
	}
	rw.done <- recvResult{delivery: Delivery{
		Words:      msg.Words,
		Badge:      badge,
		CapSlots:   capSlots,
		RegionAddr: rw.regionAddr,
		HasRegion:  msg.Region != nil,
	}}
	return nil
}

func waitSend(ctx context.Context, done chan sendResult, timeout time.Duration) (sendResult, bool) {
	if timeout <= 0 {
		select {
		case res := <-done:
			return res, false
		case <-ctx.Done():
			return sendResult{}, true
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res, false
	case <-timer.C:
		return sendResult{}, true
	case <-ctx.Done():
		return sendResult{}, true
	}
}

func waitRecv(ctx context.Context, done chan recvResult, timeout time.Duration) (recvResult, bool) {
	if timeout <= 0 {
		select {
		case res := <-done:
			return res, false
		case <-ctx.Done():
			return recvResult{}, true
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res, false
	case <-timer.C:
		return recvResult{}, true
	case <-ctx.Done():
		return recvResult{}, true
	}
}

func removeSender(ep *Endpoint, sw *senderWaiter) bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	for i, cur := range ep.senders {
		if cur == sw {
			ep.senders = append(ep.senders[:i], ep.senders[i+1:]...)
			return true
		}
	}
	return false
}

func removeReceiver(ep *Endpoint, rw *receiverWaiter) bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	for i, cur := range ep.receivers {
		if cur == rw {
			ep.receivers = append(ep.receivers[:i], ep.receivers[i+1:]...)
			return true
		}
	}
	return false
}
