package sfu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	ctx := context.Background()
	g := NewGrants("secret", time.Minute)

	grant, err := g.Issue(ctx, "room-1", 42, "client")
	require.NoError(t, err)
	require.Equal(t, "room-1", grant.RoomID)

	claims, err := g.Parse(grant.Token)
	require.NoError(t, err)
	require.Equal(t, "room-1", claims.Room)
	require.Equal(t, "42", claims.Subject)
	require.Equal(t, "client", claims.Role)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	ctx := context.Background()
	grant, err := NewGrants("a", time.Minute).Issue(ctx, "room", 1, "model")
	require.NoError(t, err)

	_, err = NewGrants("b", time.Minute).Parse(grant.Token)
	require.Error(t, err)
}

func TestReleasedRoomGetsNoGrant(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGrants("secret", time.Minute)
	g.now = func() time.Time { return now }

	require.NoError(t, g.Release(ctx, "room"))
	_, err := g.Issue(ctx, "room", 1, "client")
	require.ErrorIs(t, err, ErrRoomReleased)

	now = now.Add(2 * time.Minute)
	require.Equal(t, 1, g.Forget(ctx))
}
