// Package server wires the kernel and its HTTP control plane together.
//
// Lifecycle:
//  1. Load configuration from environment (and optional TOML overlay)
//  2. Initialize logger and metrics
//  3. Boot the kernel from the boot manifest
//  4. Set up routes and the middleware stack (recovery, metrics, CORS,
//     rate limiting)
//  5. Serve until a shutdown signal, then drain gracefully
//
// The control plane is an inspection and drive surface: syscalls enter via
// POST /syscall, kernel state is read via the /kernel/* routes, and events
// stream out over /events.
package server
