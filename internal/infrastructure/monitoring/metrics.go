package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Syscall metrics
	SyscallsTotal   *prometheus.CounterVec
	SyscallDuration *prometheus.HistogramVec

	// IPC metrics
	RendezvousTotal prometheus.Counter
	BlockedThreads  prometheus.Gauge
	ActiveEndpoints prometheus.Gauge

	// Memory metrics
	FramesAllocated prometheus.Gauge
	FramesTotal     prometheus.Gauge

	// Process metrics
	ProcessesActive prometheus.Gauge
	ProcessesTotal  prometheus.Counter

	// Interrupt metrics
	IRQDelivered *prometheus.CounterVec
	IRQDropped   *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON API.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalSyscalls int64   `json:"total_syscalls"`
	SyscallErrors int64   `json:"syscall_errors"`
	TotalDuration float64 `json:"-"`
	RequestCount  int64   `json:"-"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helion_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "helion_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SyscallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helion_syscalls_total",
				Help: "Total number of syscalls dispatched",
			},
			[]string{"syscall", "status"},
		),
		SyscallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "helion_syscall_duration_seconds",
				Help:    "Syscall duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"syscall"},
		),

		RendezvousTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "helion_ipc_rendezvous_total",
				Help: "Total number of completed message rendezvous",
			},
		),
		BlockedThreads: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "helion_ipc_blocked_threads",
				Help: "Threads currently blocked on send or receive",
			},
		),
		ActiveEndpoints: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "helion_ipc_endpoints",
				Help: "Live endpoint objects",
			},
		),

		FramesAllocated: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "helion_memory_frames_allocated",
				Help: "Physical frames currently allocated",
			},
		),
		FramesTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "helion_memory_frames_total",
				Help: "Physical frames managed by the allocator",
			},
		),

		ProcessesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "helion_processes_active",
				Help: "Number of live processes",
			},
		),
		ProcessesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "helion_processes_total",
				Help: "Total number of processes created",
			},
		),

		IRQDelivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helion_irq_delivered_total",
				Help: "Interrupt messages delivered",
			},
			[]string{"line"},
		),
		IRQDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helion_irq_dropped_total",
				Help: "Interrupts dropped while masked or pending",
			},
			[]string{"line"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "helion_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helion_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "helion_uptime_seconds",
				Help: "Control plane uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordSyscall records one dispatched syscall.
func (m *Metrics) RecordSyscall(name, status string, duration time.Duration) {
	m.SyscallsTotal.WithLabelValues(name, status).Inc()
	m.SyscallDuration.WithLabelValues(name).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalSyscalls++
	if status != "ok" {
		m.snapshot.SyscallErrors++
	}
	m.mu.Unlock()
}

// RecordIRQ records an interrupt delivery or drop on a line.
func (m *Metrics) RecordIRQ(line string, delivered bool) {
	if delivered {
		m.IRQDelivered.WithLabelValues(line).Inc()
	} else {
		m.IRQDropped.WithLabelValues(line).Inc()
	}
}

// RecordWSMessage records a WebSocket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetMemory sets the frame gauges.
func (m *Metrics) SetMemory(allocated, total uint64) {
	m.FramesAllocated.Set(float64(allocated))
	m.FramesTotal.Set(float64(total))
}

// SetProcessesActive sets the live process gauge.
func (m *Metrics) SetProcessesActive(count int) {
	m.ProcessesActive.Set(float64(count))
}

// IncProcessesTotal increments the created-process counter.
func (m *Metrics) IncProcessesTotal() {
	m.ProcessesTotal.Inc()
}

// IncRendezvous increments the completed-rendezvous counter.
func (m *Metrics) IncRendezvous() {
	m.RendezvousTotal.Inc()
}

// SetEndpoints sets the live endpoint gauge.
func (m *Metrics) SetEndpoints(count int) {
	m.ActiveEndpoints.Set(float64(count))
}

// SetBlockedThreads sets the blocked-thread gauge.
func (m *Metrics) SetBlockedThreads(count int) {
	m.BlockedThreads.Set(float64(count))
}

// IncWSConnections increments WebSocket connections.
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections.
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// GetSnapshot returns current values for the JSON metrics endpoint.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	if s.RequestCount > 0 {
		s.AvgDurationMS = s.TotalDuration / float64(s.RequestCount) * 1000
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
