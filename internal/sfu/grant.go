// Package sfu issues join authorizations for the external media server.
package sfu

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrRoomReleased = errors.New("room released")

// Claims is what the media server verifies before admitting a peer.
type Claims struct {
	Room string `json:"room"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Grant struct {
	Token     string    `json:"token"`
	RoomID    string    `json:"room_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Grants signs short-lived HS256 join tokens and remembers released rooms so
// no new grant is issued once a session is over.
type Grants struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	released map[string]time.Time
}

func NewGrants(secret string, ttl time.Duration) *Grants {
	return &Grants{
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
		released: map[string]time.Time{},
	}
}

func (g *Grants) Issue(_ context.Context, roomID string, userID int64, role string) (*Grant, error) {
	g.mu.Lock()
	_, gone := g.released[roomID]
	g.mu.Unlock()
	if gone {
		return nil, ErrRoomReleased
	}

	now := g.now()
	exp := now.Add(g.ttl)
	claims := &Claims{
		Room: roomID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return nil, fmt.Errorf("sign join grant: %w", err)
	}
	return &Grant{Token: token, RoomID: roomID, ExpiresAt: exp}, nil
}

// Release marks the room closed. Grants already handed out expire on their own.
func (g *Grants) Release(_ context.Context, roomID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released[roomID] = g.now().Add(g.ttl)
	return nil
}

// Forget drops released rooms whose last grant has certainly expired.
func (g *Grants) Forget(context.Context) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	n := 0
	for room, until := range g.released {
		if !now.Before(until) {
			delete(g.released, room)
			n++
		}
	}
	return n
}

// Parse verifies a join token; the media server side of the contract.
func (g *Grants) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(g.now))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
