// Package notify delivers best-effort events to participants.
package notify

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventMatchFound    EventType = "match_found"
	EventSessionEnded  EventType = "session_ended"
	EventGiftRequested EventType = "gift_requested"
	EventGiftAccepted  EventType = "gift_accepted"
	EventGiftRejected  EventType = "gift_rejected"
	EventGiftCancelled EventType = "gift_cancelled"
)

type Event struct {
	Type          EventType `json:"type"`
	RoomID        string    `json:"room_id,omitempty"`
	PartnerID     int64     `json:"partner_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	GiftRequestID int64     `json:"gift_request_id,omitempty"`
	GiftID        int64     `json:"gift_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	SecurityToken string    `json:"security_token,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher reports whether the event reached the user over a live channel.
// It never fails the caller's operation.
type Publisher interface {
	Publish(ctx context.Context, userID int64, ev Event) bool
}

// Fanout tries the live hub first and parks undelivered events in the
// pending-redirect store so the client can poll for them.
type Fanout struct {
	live     Publisher
	fallback *Redirects
	logger   *slog.Logger
}

func NewFanout(live Publisher, fallback *Redirects, logger *slog.Logger) *Fanout {
	return &Fanout{live: live, fallback: fallback, logger: logger}
}

func (f *Fanout) Publish(ctx context.Context, userID int64, ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if f.live != nil && f.live.Publish(ctx, userID, ev) {
		return true
	}
	f.fallback.Put(userID, ev)
	f.logger.Debug("event parked for polling", "user_id", userID, "type", ev.Type)
	return false
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, int64, Event) bool { return false }
