package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type giftRequestBody struct {
	ClientID int64  `json:"client_id" binding:"required"`
	GiftID   int64  `json:"gift_id" binding:"required"`
	RoomID   string `json:"room_id" binding:"required"`
}

type acceptGiftBody struct {
	SecurityToken string `json:"security_token" binding:"required"`
}

type rejectGiftBody struct {
	Reason string `json:"reason" binding:"max=255"`
}

func (h *Handler) giftCatalog(c *gin.Context) {
	items, err := h.roulette.GiftCatalog(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]giftItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, giftItemResponse{ID: it.ID, Name: it.Name, Price: it.Price})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) requestGift(c *gin.Context) {
	var body giftRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	req, err := h.roulette.RequestGift(c.Request.Context(), identity(c).UserID, body.ClientID, body.GiftID, body.RoomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toGiftRequest(req, false))
}

func (h *Handler) pendingGifts(c *gin.Context) {
	reqs, err := h.roulette.PendingGifts(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]giftRequestResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, toGiftRequest(r, true))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) acceptGift(c *gin.Context) {
	requestID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var body acceptGiftBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	txn, err := h.roulette.AcceptGift(c.Request.Context(), requestID, identity(c).UserID, body.SecurityToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toGiftTransaction(txn))
}

func (h *Handler) rejectGift(c *gin.Context) {
	requestID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var body rejectGiftBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
	}

	req, err := h.roulette.RejectGift(c.Request.Context(), requestID, identity(c).UserID, body.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toGiftRequest(req, false))
}

func (h *Handler) cancelGift(c *gin.Context) {
	requestID, ok := idParam(c, "id")
	if !ok {
		return
	}

	req, err := h.roulette.CancelGift(c.Request.Context(), requestID, identity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toGiftRequest(req, false))
}
