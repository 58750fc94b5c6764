package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type nextMatchRequest struct {
	RoomID string `json:"room_id"`
}

type tickRequest struct {
	ElapsedSeconds int64 `json:"elapsed_seconds" binding:"required"`
}

func (h *Handler) startMatch(c *gin.Context) {
	id := identity(c)
	res, err := h.roulette.StartMatch(c.Request.Context(), id.UserID, id.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// nextMatch leaves the given room and matches again. An empty body is the
// same as starting a match.
func (h *Handler) nextMatch(c *gin.Context) {
	var req nextMatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	id := identity(c)
	res, err := h.roulette.NextMatch(c.Request.Context(), id.UserID, id.Role, req.RoomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) endSession(c *gin.Context) {
	s, err := h.roulette.EndSession(c.Request.Context(), identity(c).UserID, c.Param("room"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSession(s))
}

func (h *Handler) joinSession(c *gin.Context) {
	grant, err := h.roulette.JoinGrant(c.Request.Context(), identity(c).UserID, c.Param("room"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

// tick is called by the media layer for every billing interval it observed.
func (h *Handler) tick(c *gin.Context) {
	var req tickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.roulette.Tick(c.Request.Context(), c.Param("room"), req.ElapsedSeconds)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
