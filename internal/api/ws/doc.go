// Package ws streams kernel events over WebSocket.
//
// Every subscriber gets the full event firehose: process lifecycle,
// capability derivation and revocation, rendezvous completions, endpoint
// and region creation, interrupt activity. Slow clients drop events rather
// than stall the kernel.
//
// Message Types (Client -> Server):
//   - ping: keep-alive
//
// Message Types (Server -> Client):
//   - system: connection status
//   - pong: ping reply
//   - kernel events, typed as in the events package
package ws
