package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/helion-os/helion/internal/events"
	"github.com/helion-os/helion/internal/infrastructure/logging"
	"github.com/helion-os/helion/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeTimeout = 10 * time.Second

// Handler streams kernel events to WebSocket clients.
type Handler struct {
	bus     *events.Bus
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler.
func NewHandler(bus *events.Bus, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{bus: bus, log: log, metrics: metrics}
}

// clientMessage is what clients may send: currently only keep-alive pings.
type clientMessage struct {
	Type string `json:"type"`
}

// HandleConnection upgrades the request and pumps kernel events until the
// client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	id, ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(id)

	h.send(conn, map[string]interface{}{
		"type":    "system",
		"message": "connected to helion event stream",
	})

	// Reader: pings and disconnect detection. The connection allows one
	// writer at a time, so the reader never writes; pings are forwarded to
	// the select loop and answered there.
	done := make(chan struct{})
	pings := make(chan struct{}, 1)
	go func() {
		defer close(done)
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				h.metrics.RecordWSMessage("in", "ping")
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-pings:
			if !h.send(conn, map[string]interface{}{"type": "pong"}) {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.metrics.RecordWSMessage("out", string(ev.Type))
			if !h.sendEvent(conn, ev) {
				return
			}
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, payload map[string]interface{}) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(payload); err != nil {
		h.log.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}

func (h *Handler) sendEvent(conn *websocket.Conn, ev events.Event) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		h.log.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}
