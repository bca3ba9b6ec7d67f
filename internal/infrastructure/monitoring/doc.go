/*
Package monitoring provides Prometheus metrics for the kernel control plane.

Tracked concerns:

  - HTTP request latency and status on the control-plane routes
  - Syscall dispatch counts and duration, labeled by syscall name
  - IPC rendezvous counts, blocked threads, live endpoints
  - Physical frame usage and process lifecycle
  - Interrupt deliveries and drops per line
  - WebSocket connections and message flow

Usage:

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewSyscallTimer(metrics, "cap_send")
	// ... dispatch ...
	timer.Stop("ok")

Exposition uses the standard Prometheus handler:

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

A JSON view of headline numbers is served separately for dashboards that do
not scrape Prometheus.
*/
package monitoring
