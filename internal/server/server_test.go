package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helion-os/helion/internal/infrastructure/config"
)

// NewServer registers Prometheus collectors globally, so the package boots
// exactly one server and routes every test through it.
var testServer *Server

func TestMain(m *testing.M) {
	cfg := config.Default()
	cfg.Logging.Level = "error"

	srv, err := NewServer(cfg)
	if err != nil {
		panic(err)
	}
	testServer = srv
	m.Run()
}

func TestWiredRoutes(t *testing.T) {
	for _, path := range []string{
		"/",
		"/health",
		"/kernel/stats",
		"/kernel/processes",
		"/kernel/processes/1/caps",
		"/kernel/memory",
		"/kernel/irq",
		"/kernel/snapshot",
		"/metrics",
		"/metrics/json",
	} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		testServer.Router().ServeHTTP(w, req)
		assert.Equalf(t, http.StatusOK, w.Code, "GET %s", path)
	}
}

func TestSyscallThroughServer(t *testing.T) {
	body := strings.NewReader(`{"pid": 1, "syscall": "region_create", "params": {"size": 4096}}`)
	req := httptest.NewRequest("POST", "/syscall", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	testServer.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, true, out["success"])
}

func TestBootstrapKernelReachable(t *testing.T) {
	require.NotNil(t, testServer.Kernel())
	assert.Equal(t, uint64(1), testServer.Kernel().BootstrapPID())
}
