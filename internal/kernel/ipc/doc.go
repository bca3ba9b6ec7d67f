// Package ipc implements synchronous rendezvous IPC.
//
// Nothing is buffered: a message moves only when a sender and a receiver are
// both present, and moves exactly once. Whichever side arrives first blocks,
// which means leaving the runnable set until rendezvous, timeout, endpoint
// destruction, or owning-process destruction. A blocked call always resolves;
// an endpoint dying under a waiter fails that call with EndpointDestroyed.
//
// The engine handles queuing and blocking only. Payload words travel by
// value; capability and region movement is performed by the kernel through
// the Deliverer interface at the rendezvous instant, so zero-copy region
// transfer and the no-amplification rule live next to the capability tables
// they touch.
package ipc
