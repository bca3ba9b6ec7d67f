package http

import (
	"bytes"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helion-os/helion/internal/boot"
	"github.com/helion-os/helion/internal/events"
	"github.com/helion-os/helion/internal/infrastructure/logging"
	"github.com/helion-os/helion/internal/infrastructure/monitoring"
	"github.com/helion-os/helion/internal/kernel"
	"github.com/helion-os/helion/internal/kernel/kerr"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = monitoring.NewMetrics()

func newTestRouter(t *testing.T) (*gin.Engine, *kernel.Kernel) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	k, err := kernel.New(boot.Default(), logging.NewNop(), events.NewBus())
	require.NoError(t, err)

	h := NewHandlers(k, testMetrics)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/kernel/stats", h.Stats)
	router.GET("/kernel/processes", h.ListProcesses)
	router.GET("/kernel/processes/:pid/caps", h.ListCaps)
	router.GET("/kernel/processes/:pid/mappings", h.ListMappings)
	router.GET("/kernel/memory", h.Memory)
	router.GET("/kernel/irq", h.ListIRQ)
	router.GET("/kernel/snapshot", h.Snapshot)
	router.POST("/syscall", h.Syscall)
	router.POST("/kernel/irq/:line/trigger", h.TriggerIRQ)
	router.GET("/metrics/json", h.MetricsJSON)
	return router, k
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]interface{}
	if len(w.Body.Bytes()) > 0 && w.Header().Get("Content-Encoding") == "" {
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	w, body := doJSON(t, router, "GET", "/health", nil)

	assert.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["bootstrap_pid"])
}

func TestKernelInspectionRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := doJSON(t, router, "GET", "/kernel/stats", nil)
	assert.Equal(t, stdhttp.StatusOK, w.Code)
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["processes"])

	w, body = doJSON(t, router, "GET", "/kernel/processes", nil)
	assert.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Len(t, body["processes"], 1)

	w, body = doJSON(t, router, "GET", "/kernel/processes/1/caps", nil)
	assert.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Len(t, body["caps"], 34)

	w, _ = doJSON(t, router, "GET", "/kernel/processes/99/caps", nil)
	assert.Equal(t, stdhttp.StatusNotFound, w.Code)

	w, _ = doJSON(t, router, "GET", "/kernel/processes/abc/caps", nil)
	assert.Equal(t, stdhttp.StatusBadRequest, w.Code)

	w, body = doJSON(t, router, "GET", "/kernel/irq", nil)
	assert.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Len(t, body["lines"], 32)
}

func TestSyscallRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := doJSON(t, router, "POST", "/syscall", map[string]interface{}{
		"pid":     1,
		"syscall": "endpoint_create",
	})
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	result := body["result"].(map[string]interface{})
	assert.Equal(t, float64(34), result["slot"])

	// Failures come back as statuses with the syscall error code.
	w, body = doJSON(t, router, "POST", "/syscall", map[string]interface{}{
		"pid":     1,
		"syscall": "cap_revoke",
		"params":  map[string]interface{}{"slot": 200},
	})
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(kerr.CodeInvalidCapability), body["code"])

	w, _ = doJSON(t, router, "POST", "/syscall", map[string]interface{}{
		"syscall": "endpoint_create",
	})
	assert.Equal(t, stdhttp.StatusBadRequest, w.Code)
}

func TestSnapshotRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := doJSON(t, router, "GET", "/kernel/snapshot", nil)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Contains(t, body, "stats")

	w, _ = doJSON(t, router, "GET", "/kernel/snapshot?compress=zstd", nil)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Equal(t, "zstd", w.Header().Get("Content-Encoding"))

	w, _ = doJSON(t, router, "GET", "/kernel/snapshot?compress=lzma", nil)
	assert.Equal(t, stdhttp.StatusBadRequest, w.Code)
}

func TestTriggerIRQRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := doJSON(t, router, "POST", "/kernel/irq/3/trigger", nil)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	w, _ = doJSON(t, router, "POST", "/kernel/irq/99/trigger", nil)
	assert.Equal(t, stdhttp.StatusNotFound, w.Code)
}

func TestMetricsJSONRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := doJSON(t, router, "GET", "/metrics/json", nil)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Contains(t, body, "metrics")
	assert.Contains(t, body, "kernel")
}
