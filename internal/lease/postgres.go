package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/roulette/internal/domain"
)

// Postgres keeps leases in the leases table so every server instance sees
// the same locks. An expired row is taken over in place.
type Postgres struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

func (p *Postgres) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	holder := uuid.New()
	now := p.now()
	expiresAt := now.Add(ttl)

	var got uuid.UUID
	err := p.db.QueryRow(ctx, `
		INSERT INTO leases (key, holder, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		WHERE leases.expires_at <= $4
		RETURNING holder`, key, holder, expiresAt, now).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLeaseHeld
		}
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}

	return &Lease{
		Key:       key,
		Holder:    holder,
		ExpiresAt: expiresAt,
		release: func(ctx context.Context) error {
			if _, err := p.db.Exec(ctx, `DELETE FROM leases WHERE key = $1 AND holder = $2`, key, holder); err != nil {
				return fmt.Errorf("release lease %s: %w", key, err)
			}
			return nil
		},
	}, nil
}

// PurgeExpired removes leases whose holders never released them.
func (p *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM leases WHERE expires_at <= $1`, p.now())
	if err != nil {
		return 0, fmt.Errorf("purge leases: %w", err)
	}
	return tag.RowsAffected(), nil
}
