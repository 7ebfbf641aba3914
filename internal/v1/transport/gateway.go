package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/registry"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

// Gateway upgrades HTTP requests to WebSocket connections and hands them off
// to room actors through the registry.
type Gateway struct {
	reg            *registry.Registry
	allowedOrigins []string
}

// NewGateway builds the gateway. Allowed origins come from the config
// snapshot; an empty list falls back to local development defaults.
func NewGateway(reg *registry.Registry) *Gateway {
	return &Gateway{
		reg:            reg,
		allowedOrigins: AllowedOrigins(reg.Config().AllowedOrigins),
	}
}

// ServeWs handles GET /ws/rooms/:roomId?user_id=<opaque>. The user_id is
// taken at face value; the upgrade itself is unauthenticated.
func (g *Gateway) ServeWs(c *gin.Context) {
	roomID := types.RoomIDType(c.Param("roomId"))
	userID := types.UserIDType(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	// Atomically reserve a slot against the global connection cap before
	// doing any per-connection work. Released on every exit path.
	slot := g.reg.AcquireConn()
	if slot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "connection limit reached"})
		return
	}

	conn, err := g.upgrade(c)
	if err != nil {
		slot.Release()
		return
	}

	handle, ok := g.reg.Get(roomID)
	if !ok {
		g.rejectAfterUpgrade(conn, "room closed")
		slot.Release()
		return
	}

	connID := types.ConnIDType(uuid.NewString())
	client := newClient(conn, handle, connID, userID, slot)

	joined := types.UserJoined{
		ConnID:   connID,
		UserID:   userID,
		JoinedAt: time.Now(),
		Outbound: client.outbound,
	}
	if err := handle.ForwardNormal(joined); err != nil {
		g.rejectAfterUpgrade(conn, "room closed")
		slot.Release()
		return
	}

	logging.Info(c.Request.Context(), "socket connected",
		zap.String("room_id", string(roomID)),
		zap.String("user_id", string(userID)),
		zap.String("conn_id", string(connID)))

	// Writer on its own task; the reader runs on this handler goroutine and
	// keeps it alive for the socket's lifetime.
	go client.writePump()
	client.readPump()
}

func (g *Gateway) upgrade(c *gin.Context) (wsConnection, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, g.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to upgrade connection", zap.Error(err))
		return nil, err
	}
	return conn, nil
}

// rejectAfterUpgrade sends one Error frame on an already-upgraded socket and
// closes it.
func (g *Gateway) rejectAfterUpgrade(conn wsConnection, message string) {
	if frame, err := types.EncodeFrame(types.FrameError, types.ErrorPayload{Message: message}); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, frame)
	}
	conn.Close()
}
