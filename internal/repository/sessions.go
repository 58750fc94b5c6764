package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/set-night/roulette/internal/domain"
)

const sessionColumns = `id, room_id, client_id, model_id, status, consumed_coins, end_reason,
	created_at, started_at, ended_at, last_billed_at`

type pgSessions struct {
	db DBTX
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s                              domain.Session
		status, endReason              string
		createdAt                      pgtype.Timestamptz
		startedAt, endedAt, lastBilled pgtype.Timestamptz
	)
	err := row.Scan(
		&s.ID, &s.RoomID, &s.ClientID, &s.ModelID, &status, &s.ConsumedCoins, &endReason,
		&createdAt, &startedAt, &endedAt, &lastBilled,
	)
	if err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(status)
	s.EndReason = domain.EndReason(endReason)
	s.CreatedAt = pgTimestamptzToTime(createdAt)
	s.StartedAt = pgTimestamptzToTimePtr(startedAt)
	s.EndedAt = pgTimestamptzToTimePtr(endedAt)
	s.LastBilledAt = pgTimestamptzToTimePtr(lastBilled)
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]*domain.Session, error) {
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *pgSessions) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO sessions (room_id, client_id, model_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		s.RoomID, s.ClientID, s.ModelID, string(s.Status), timeToPgTimestamptz(s.CreatedAt),
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *pgSessions) get(ctx context.Context, query string, arg any) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *pgSessions) GetByID(ctx context.Context, id int64) (*domain.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

func (r *pgSessions) GetByRoomID(ctx context.Context, roomID string) (*domain.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE room_id = $1`, roomID)
}

func (r *pgSessions) GetByRoomIDForUpdate(ctx context.Context, roomID string) (*domain.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE room_id = $1 FOR UPDATE`, roomID)
}

func (r *pgSessions) FindWaitingCandidate(ctx context.Context, role domain.Role, userID int64, excluded []int64, createdAfter time.Time) (*domain.Session, error) {
	var query string
	switch role {
	case domain.RoleClient:
		query = `SELECT ` + sessionColumns + ` FROM sessions
			WHERE status = 'waiting' AND created_at > $3
			  AND client_id IS NULL AND model_id IS NOT NULL
			  AND model_id <> $1 AND model_id <> ALL($2::bigint[])
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED`
	case domain.RoleModel:
		query = `SELECT ` + sessionColumns + ` FROM sessions
			WHERE status = 'waiting' AND created_at > $3
			  AND model_id IS NULL AND client_id IS NOT NULL
			  AND client_id <> $1 AND client_id <> ALL($2::bigint[])
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED`
	default:
		return nil, domain.ErrInvalidRole
	}

	s, err := scanSession(r.db.QueryRow(ctx, query, userID, nonNilIDs(excluded), timeToPgTimestamptz(createdAfter)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find waiting candidate: %w", err)
	}
	return s, nil
}

func (r *pgSessions) OpenForUser(ctx context.Context, userID int64) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status <> 'ended' AND (client_id = $1 OR model_id = $1)
		ORDER BY created_at, id
		FOR UPDATE`, userID)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	return collectSessions(rows)
}

func (r *pgSessions) Update(ctx context.Context, s *domain.Session) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET
			client_id = $2, model_id = $3, status = $4, consumed_coins = $5, end_reason = $6,
			started_at = $7, ended_at = $8, last_billed_at = $9
		WHERE id = $1`,
		s.ID, s.ClientID, s.ModelID, string(s.Status), s.ConsumedCoins, string(s.EndReason),
		timePtrToPgTimestamptz(s.StartedAt), timePtrToPgTimestamptz(s.EndedAt), timePtrToPgTimestamptz(s.LastBilledAt),
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *pgSessions) ExpireWaiting(ctx context.Context, cutoff, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE sessions SET status = 'ended', end_reason = $3, ended_at = $2
		WHERE status = 'waiting' AND created_at < $1
		RETURNING `+sessionColumns,
		timeToPgTimestamptz(cutoff), timeToPgTimestamptz(now), string(domain.EndReasonTimeout))
	if err != nil {
		return nil, fmt.Errorf("expire waiting sessions: %w", err)
	}
	return collectSessions(rows)
}

func (r *pgSessions) ListBillable(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = 'active' AND last_billed_at < $1
		ORDER BY last_billed_at
		LIMIT $2`, timeToPgTimestamptz(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("list billable sessions: %w", err)
	}
	return collectSessions(rows)
}
