package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/set-night/roulette/internal/config"
	"github.com/set-night/roulette/internal/notify"
	"golang.org/x/net/websocket"
)

// events upgrades to a websocket and streams the caller's notifications,
// starting with anything parked while they were offline.
func (h *Handler) events(c *gin.Context) {
	userID := identity(c).UserID
	ctx := c.Request.Context()

	// No origin check; the token already identifies the caller.
	srv := websocket.Server{Handler: func(ws *websocket.Conn) {
		defer ws.Close()
		h.hub.Serve(ctx, userID, ws, h.redirects.Take(userID), config.EventsPingInterval)
	}}
	srv.ServeHTTP(c.Writer, c.Request)
}

// takeRedirects is the polled fallback for clients without a live socket.
func (h *Handler) takeRedirects(c *gin.Context) {
	events := h.redirects.Take(identity(c).UserID)
	if events == nil {
		events = []notify.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}
