package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/adapters/signal"
	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/app/orch"
	"github.com/dkeye/Lounge/internal/domain"
)

type handlers struct {
	orch *orch.Orchestrator
	hub  *signal.Hub
}

type CreateRoomRequest struct {
	Name   string  `json:"name" binding:"required,max=64"`
	Secret *string `json:"secret" binding:"omitempty,max=128"`
}

type VerifyRequest struct {
	Secret string `json:"secret"`
}

type AgentRequest struct {
	Channel string `json:"channel" binding:"required,max=64"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.hub.Len()})
}

func (h *handlers) listRooms(c *gin.Context) {
	views, err := h.orch.Rooms.Views(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": views})
}

func (h *handlers) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	room, err := h.orch.Rooms.Create(c.Request.Context(), req.Name, c.GetString(clientTokenKey), req.Secret)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, room.View())
}

func (h *handlers) verifyRoom(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	ok, err := h.orch.Rooms.VerifyAccess(c.Request.Context(), domain.RoomID(c.Param("id")), req.Secret)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

func (h *handlers) messages(c *gin.Context) {
	limit := app.DefaultHistory
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "limit must be a number"})
			return
		}
		limit = n
	}
	id := domain.RoomID(c.Param("id"))
	if _, err := h.orch.Rooms.Get(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	msgs, err := h.orch.Chat.History(c.Request.Context(), id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": id, "messages": msgs})
}

func (h *handlers) presence(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Presence.Snapshot())
}

func (h *handlers) attachAgent(c *gin.Context) {
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	channel, err := h.orch.AttachAgent(c.Request.Context(), domain.RoomID(c.Param("id")), req.Channel)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": channel})
}

func (h *handlers) detachAgent(c *gin.Context) {
	h.orch.DetachAgent()
	c.Status(http.StatusNoContent)
}

func (h *handlers) fail(c *gin.Context, err error) {
	code := orch.ErrorCode(err)
	status := statusOf(code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func statusOf(code string) int {
	switch code {
	case "room_not_found":
		return http.StatusNotFound
	case "access_denied":
		return http.StatusForbidden
	case "invalid_name", "invalid_room_name", "not_voice_channel", "invalid_message":
		return http.StatusBadRequest
	case "room_id_exhausted":
		return http.StatusConflict
	case "agent_unavailable":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
