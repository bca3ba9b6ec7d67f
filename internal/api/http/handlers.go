package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/helion-os/helion/internal/infrastructure/monitoring"
	"github.com/helion-os/helion/internal/kernel"
	"github.com/helion-os/helion/internal/kernel/kerr"
)

// Handlers contains all HTTP handlers for the kernel control plane.
type Handlers struct {
	kernel  *kernel.Kernel
	metrics *monitoring.Metrics
}

// NewHandlers creates a new handler set.
func NewHandlers(k *kernel.Kernel, metrics *monitoring.Metrics) *Handlers {
	return &Handlers{kernel: k, metrics: metrics}
}

// Root handles the bare health check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "helion",
	})
}

// Health handles the detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	stats := h.kernel.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"bootstrap_pid": h.kernel.BootstrapPID(),
		"processes":     stats.Processes,
		"memory":        stats.Memory,
	})
}

// Stats returns kernel-wide counters.
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   h.kernel.Stats(),
	})
}

// ListProcesses lists live processes.
func (h *Handlers) ListProcesses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"processes": h.kernel.ListProcesses(),
	})
}

// ListCaps dumps one process's capability table.
func (h *Handlers) ListCaps(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	caps, err := h.kernel.ListCaps(pid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pid":     pid,
		"caps":    caps,
	})
}

// ListMappings dumps one process's address space.
func (h *Handlers) ListMappings(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	mappings, err := h.kernel.ListMappings(pid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"pid":      pid,
		"mappings": mappings,
	})
}

// Memory returns allocator statistics.
func (h *Handlers) Memory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"memory":  h.kernel.Stats().Memory,
	})
}

// ListIRQ dumps every interrupt line.
func (h *Handlers) ListIRQ(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"lines":   h.kernel.ListIRQ(),
	})
}

// TriggerIRQ simulates a hardware interrupt on a line. This sits on the
// hardware boundary; no capability check applies.
func (h *Handlers) TriggerIRQ(c *gin.Context) {
	line, err := strconv.ParseUint(c.Param("line"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid line"})
		return
	}
	if err := h.kernel.TriggerIRQ(uint32(line)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "line": line})
}

// Snapshot serves a full kernel state dump, optionally compressed with
// gzip or zstd via the compress query parameter.
func (h *Handlers) Snapshot(c *gin.Context) {
	data, applied, err := h.kernel.MarshalSnapshot(c.Query("compress"))
	if err != nil {
		fail(c, err)
		return
	}
	switch applied {
	case "gzip":
		c.Header("Content-Encoding", "gzip")
	case "zstd":
		c.Header("Content-Encoding", "zstd")
	}
	c.Data(http.StatusOK, "application/json", data)
}

// SyscallRequest is the body of POST /syscall.
type SyscallRequest struct {
	PID     uint64                 `json:"pid" binding:"required"`
	Syscall string                 `json:"syscall" binding:"required"`
	Params  map[string]interface{} `json:"params"`
}

// Syscall dispatches a named syscall on behalf of a process.
func (h *Handlers) Syscall(c *gin.Context) {
	var req SyscallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}

	timer := monitoring.NewSyscallTimer(h.metrics, req.Syscall)
	result, err := h.kernel.ExecuteSyscall(c.Request.Context(), req.PID, req.Syscall, req.Params)
	if err != nil {
		timer.Stop("error")
		// Syscall failures are statuses, not transport errors: 200 with
		// the numeric code the syscall surface defines.
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    kerr.Code(err),
		})
		return
	}
	timer.Stop("ok")

	resp := gin.H{"success": true, "code": kerr.CodeOK}
	if result != nil {
		resp["result"] = result
	}
	c.JSON(http.StatusOK, resp)
}

// MetricsJSON serves headline metrics for dashboards that do not scrape
// Prometheus.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	stats := h.kernel.Stats()
	h.metrics.SetMemory(stats.Memory.Used, stats.Memory.Total)
	h.metrics.SetProcessesActive(stats.Processes)
	h.metrics.SetEndpoints(stats.Endpoints)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"metrics": h.metrics.GetSnapshot(),
		"kernel":  stats,
	})
}

func pidParam(c *gin.Context) (uint64, bool) {
	pid, err := strconv.ParseUint(c.Param("pid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid pid"})
		return 0, false
	}
	return pid, true
}

// fail maps kernel errors onto HTTP statuses for the inspection routes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, kerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, kerr.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, kerr.ErrPermissionDenied), errors.Is(err, kerr.ErrInvalidCapability):
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    kerr.Code(err),
	})
}
