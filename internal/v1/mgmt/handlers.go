package mgmt

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/syncsvc"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

// Handlers exposes the management surface over gin.
type Handlers struct {
	svc  *Service
	sync *syncsvc.Service
}

// NewHandlers wires the HTTP handlers.
func NewHandlers(svc *Service, sync *syncsvc.Service) *Handlers {
	return &Handlers{svc: svc, sync: sync}
}

// RegisterRoutes mounts the management endpoints on an (already
// authenticated) router group.
func (h *Handlers) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/health", h.Health)
	g.POST("/rooms", h.CreateRoom)
	g.GET("/rooms", h.ListRooms)
	g.DELETE("/rooms/:roomId", h.CloseRoom)
	g.PUT("/rooms/:roomId/admins", h.ResetAdmins)
	g.DELETE("/rooms/:roomId/bans/:userId", h.UnbanUser)
	g.GET("/sync", h.PullSync)
	g.POST("/sync", h.TriggerSync)
}

// Health answers the management liveness probe.
func (h *Handlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

type createRoomRequest struct {
	RoomName     string   `json:"room_name" binding:"required"`
	AdminUserIDs []string `json:"admin_user_ids"`
}

// CreateRoom handles POST /management/rooms.
func (h *Handlers) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ErrBadRequest("room_name is required"))
		return
	}

	admins := make([]types.UserIDType, 0, len(req.AdminUserIDs))
	for _, id := range req.AdminUserIDs {
		admins = append(admins, types.UserIDType(id))
	}

	roomID, err := h.svc.CreateRoom(c.Request.Context(), req.RoomName, admins)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"room_id":       string(roomID),
		"websocket_url": fmt.Sprintf("/ws/rooms/%s", roomID),
	})
}

// ListRooms handles GET /management/rooms.
func (h *Handlers) ListRooms(c *gin.Context) {
	details, err := h.svc.ListRooms(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": details})
}

// CloseRoom handles DELETE /management/rooms/:roomId.
func (h *Handlers) CloseRoom(c *gin.Context) {
	id := types.RoomIDType(c.Param("roomId"))
	if err := h.svc.CloseRoom(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type resetAdminsRequest struct {
	AdminUserIDs []string `json:"admin_user_ids"`
}

// ResetAdmins handles PUT /management/rooms/:roomId/admins.
func (h *Handlers) ResetAdmins(c *gin.Context) {
	var req resetAdminsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ErrBadRequest("admin_user_ids is required"))
		return
	}

	admins := make([]types.UserIDType, 0, len(req.AdminUserIDs))
	for _, id := range req.AdminUserIDs {
		admins = append(admins, types.UserIDType(id))
	}

	id := types.RoomIDType(c.Param("roomId"))
	if err := h.svc.ResetAdmins(c.Request.Context(), id, admins); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UnbanUser handles DELETE /management/rooms/:roomId/bans/:userId.
func (h *Handlers) UnbanUser(c *gin.Context) {
	id := types.RoomIDType(c.Param("roomId"))
	userID := types.UserIDType(c.Param("userId"))
	if err := h.svc.UnbanUser(c.Request.Context(), id, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PullSync handles GET /management/sync: the pull side of history export.
func (h *Handlers) PullSync(c *gin.Context) {
	data, err := h.sync.PullAll(c.Request.Context())
	if err != nil {
		respondError(c, ErrInternal(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": data})
}

// TriggerSync handles POST /management/sync: fire the push asynchronously.
// The request context would die with the response, so the push runs against
// the background context.
func (h *Handlers) TriggerSync(c *gin.Context) {
	go h.sync.SyncAll(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"status": "sync started"})
}
