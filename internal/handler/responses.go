package handler

import (
	"time"

	"github.com/set-night/roulette/internal/domain"
)

type sessionResponse struct {
	RoomID        string     `json:"room_id"`
	Status        string     `json:"status"`
	ClientID      *int64     `json:"client_id,omitempty"`
	ModelID       *int64     `json:"model_id,omitempty"`
	ConsumedCoins int64      `json:"consumed_coins"`
	EndReason     string     `json:"end_reason,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

func toSession(s *domain.Session) sessionResponse {
	return sessionResponse{
		RoomID:        s.RoomID,
		Status:        string(s.Status),
		ClientID:      s.ClientID,
		ModelID:       s.ModelID,
		ConsumedCoins: s.ConsumedCoins,
		EndReason:     string(s.EndReason),
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
	}
}

type balanceResponse struct {
	UserID           int64 `json:"user_id"`
	PurchasedBalance int64 `json:"purchased_balance"`
	GiftBalance      int64 `json:"gift_balance"`
	TotalPurchased   int64 `json:"total_purchased"`
	TotalConsumed    int64 `json:"total_consumed"`
	TotalEarned      int64 `json:"total_earned"`
}

func toBalance(b *domain.CoinBalance) balanceResponse {
	return balanceResponse{
		UserID:           b.UserID,
		PurchasedBalance: b.PurchasedBalance,
		GiftBalance:      b.GiftBalance,
		TotalPurchased:   b.TotalPurchased,
		TotalConsumed:    b.TotalConsumed,
		TotalEarned:      b.TotalEarned,
	}
}

type giftItemResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// giftRequestResponse is shared by both sides of a request; the token is only
// filled for the client who must echo it back.
type giftRequestResponse struct {
	ID            int64     `json:"id"`
	ModelID       int64     `json:"model_id"`
	ClientID      int64     `json:"client_id"`
	GiftID        int64     `json:"gift_id"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	RoomID        string    `json:"room_id"`
	RejectReason  string    `json:"reject_reason,omitempty"`
	SecurityToken string    `json:"security_token,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func toGiftRequest(r *domain.GiftRequest, withToken bool) giftRequestResponse {
	out := giftRequestResponse{
		ID:           r.ID,
		ModelID:      r.ModelID,
		ClientID:     r.ClientID,
		GiftID:       r.GiftID,
		Amount:       r.Amount,
		Status:       string(r.Status),
		RoomID:       r.RoomID,
		RejectReason: r.RejectReason,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
	}
	if withToken {
		out.SecurityToken = r.SecurityToken
	}
	return out
}

type giftTransactionResponse struct {
	ID             int64     `json:"id"`
	RequestID      int64     `json:"request_id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	GiftID         int64     `json:"gift_id"`
	Amount         int64     `json:"amount"`
	ModelShare     int64     `json:"model_share"`
	PlatformShare  int64     `json:"platform_share"`
	CommissionRate string    `json:"commission_rate"`
	CreatedAt      time.Time `json:"created_at"`
}

func toGiftTransaction(t *domain.GiftTransaction) giftTransactionResponse {
	return giftTransactionResponse{
		ID:             t.ID,
		RequestID:      t.RequestID,
		SenderID:       t.SenderID,
		ReceiverID:     t.ReceiverID,
		GiftID:         t.GiftID,
		Amount:         t.Amount,
		ModelShare:     t.ModelShare,
		PlatformShare:  t.PlatformShare,
		CommissionRate: t.CommissionRate.String(),
		CreatedAt:      t.CreatedAt,
	}
}
