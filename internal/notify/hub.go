package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// Hub tracks live websocket connections per user.
type Hub struct {
	mu     sync.RWMutex
	conns  map[int64]map[*websocket.Conn]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{conns: map[int64]map[*websocket.Conn]struct{}{}, logger: logger}
}

func (h *Hub) add(userID int64, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = map[*websocket.Conn]struct{}{}
		h.conns[userID] = set
	}
	set[ws] = struct{}{}
}

func (h *Hub) remove(userID int64, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[userID]
	delete(set, ws)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}

func (h *Hub) Connected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

func (h *Hub) Publish(_ context.Context, userID int64, ev Event) bool {
	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.conns[userID]))
	for ws := range h.conns[userID] {
		targets = append(targets, ws)
	}
	h.mu.RUnlock()

	delivered := false
	for _, ws := range targets {
		if err := websocket.JSON.Send(ws, ev); err != nil {
			h.logger.Debug("websocket send failed", "user_id", userID, "error", err)
			continue
		}
		delivered = true
	}
	return delivered
}

// Serve registers ws for userID, flushes any parked events and blocks until
// the peer goes away or ctx is done.
func (h *Hub) Serve(ctx context.Context, userID int64, ws *websocket.Conn, parked []Event, pingEvery time.Duration) {
	h.add(userID, ws)
	defer h.remove(userID, ws)

	for _, ev := range parked {
		if err := websocket.JSON.Send(ws, ev); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var discard []byte
		for {
			// Inbound frames are ignored; reading detects disconnects.
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := websocket.Message.Send(ws, `{"type":"ping"}`); err != nil {
				return
			}
		}
	}
}
