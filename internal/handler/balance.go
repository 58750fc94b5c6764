package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/set-night/roulette/internal/domain"
	"github.com/shopspring/decimal"
)

type creditBody struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
	Bucket    string `json:"bucket" binding:"required"`
	Reference string `json:"reference" binding:"max=128"`
}

type commissionBody struct {
	Rate string `json:"rate" binding:"required"`
}

func (h *Handler) balance(c *gin.Context) {
	b, err := h.roulette.Balance(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toBalance(b))
}

// credit funds a bucket once the payment provider has confirmed a purchase.
func (h *Handler) credit(c *gin.Context) {
	var body creditBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	bucket, err := domain.ParseBucket(body.Bucket)
	if err != nil {
		h.fail(c, err)
		return
	}

	b, err := h.roulette.Credit(c.Request.Context(), body.UserID, body.Amount, bucket, body.Reference)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toBalance(b))
}

func (h *Handler) setCommission(c *gin.Context) {
	var body commissionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	rate, err := decimal.NewFromString(body.Rate)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.roulette.SetCommissionRate(c.Request.Context(), rate); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rate": rate.String()})
}
