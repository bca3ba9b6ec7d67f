// Package main is the entry point for the helion kernel service.
//
// The binary boots a capability-based kernel from a YAML boot manifest and
// exposes it through an HTTP control plane:
//
//	syscalls   POST /syscall
//	state      GET  /kernel/{stats,processes,memory,irq,snapshot}
//	events     GET  /events (WebSocket)
//	metrics    GET  /metrics (Prometheus), /metrics/json
//
// Configuration comes from environment variables (12-factor), optionally
// overlaid by a TOML file named in HELION_CONFIG; CLI flags override both.
//
// Usage:
//
//	./helion -port 8000 -manifest boot.yaml
//	./helion -dev
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
