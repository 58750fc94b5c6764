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

const giftRequestColumns = `id, model_id, client_id, gift_id, amount, status, security_token, nonce,
	room_id, reject_reason, created_at, expires_at, accepted_at, resolved_at`

type pgGiftRequests struct {
	db DBTX
}

func scanGiftRequest(row pgx.Row) (*domain.GiftRequest, error) {
	var (
		r                      domain.GiftRequest
		status                 string
		createdAt, expiresAt   pgtype.Timestamptz
		acceptedAt, resolvedAt pgtype.Timestamptz
	)
	err := row.Scan(&r.ID, &r.ModelID, &r.ClientID, &r.GiftID, &r.Amount, &status, &r.SecurityToken,
		&r.Nonce, &r.RoomID, &r.RejectReason, &createdAt, &expiresAt, &acceptedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	r.Status = domain.GiftRequestStatus(status)
	r.CreatedAt = pgTimestamptzToTime(createdAt)
	r.ExpiresAt = pgTimestamptzToTime(expiresAt)
	r.AcceptedAt = pgTimestamptzToTimePtr(acceptedAt)
	r.ResolvedAt = pgTimestamptzToTimePtr(resolvedAt)
	return &r, nil
}

func collectGiftRequests(rows pgx.Rows) ([]*domain.GiftRequest, error) {
	defer rows.Close()
	var out []*domain.GiftRequest
	for rows.Next() {
		r, err := scanGiftRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gift request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (r *pgGiftRequests) Create(ctx context.Context, req *domain.GiftRequest) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO gift_requests
			(model_id, client_id, gift_id, amount, status, security_token, nonce, room_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		req.ModelID, req.ClientID, req.GiftID, req.Amount, string(req.Status), req.SecurityToken,
		req.Nonce, req.RoomID, timeToPgTimestamptz(req.CreatedAt), timeToPgTimestamptz(req.ExpiresAt),
	).Scan(&req.ID)
	if err != nil {
		return fmt.Errorf("insert gift request: %w", err)
	}
	return nil
}

func (r *pgGiftRequests) get(ctx context.Context, query string, id int64) (*domain.GiftRequest, error) {
	req, err := scanGiftRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGiftRequestNotFound
		}
		return nil, fmt.Errorf("get gift request: %w", err)
	}
	return req, nil
}

func (r *pgGiftRequests) GetByID(ctx context.Context, id int64) (*domain.GiftRequest, error) {
	return r.get(ctx, `SELECT `+giftRequestColumns+` FROM gift_requests WHERE id = $1`, id)
}

func (r *pgGiftRequests) GetByIDForUpdate(ctx context.Context, id int64) (*domain.GiftRequest, error) {
	return r.get(ctx, `SELECT `+giftRequestColumns+` FROM gift_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgGiftRequests) Update(ctx context.Context, req *domain.GiftRequest) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE gift_requests SET status = $2, reject_reason = $3, accepted_at = $4, resolved_at = $5
		WHERE id = $1`,
		req.ID, string(req.Status), req.RejectReason,
		timePtrToPgTimestamptz(req.AcceptedAt), timePtrToPgTimestamptz(req.ResolvedAt))
	if err != nil {
		return fmt.Errorf("update gift request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGiftRequestNotFound
	}
	return nil
}

func (r *pgGiftRequests) HasRecentPending(ctx context.Context, modelID, clientID, giftID int64, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM gift_requests
			WHERE model_id = $1 AND client_id = $2 AND gift_id = $3
			  AND status = 'pending' AND created_at >= $4
		)`, modelID, clientID, giftID, timeToPgTimestamptz(since)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent gift request: %w", err)
	}
	return exists, nil
}

func (r *pgGiftRequests) CancelPendingBetween(ctx context.Context, modelID, clientID int64, since time.Time, exceptID int64, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE gift_requests SET status = 'cancelled', resolved_at = $5
		WHERE model_id = $1 AND client_id = $2 AND status = 'pending'
		  AND created_at >= $3 AND id <> $4`,
		modelID, clientID, timeToPgTimestamptz(since), exceptID, timeToPgTimestamptz(now))
	if err != nil {
		return 0, fmt.Errorf("cancel pending gift requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgGiftRequests) ExpirePending(ctx context.Context, now time.Time) ([]*domain.GiftRequest, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE gift_requests SET status = 'expired', resolved_at = $1
		WHERE status = 'pending' AND expires_at <= $1
		RETURNING `+giftRequestColumns, timeToPgTimestamptz(now))
	if err != nil {
		return nil, fmt.Errorf("expire gift requests: %w", err)
	}
	return collectGiftRequests(rows)
}

func (r *pgGiftRequests) ListPendingForClient(ctx context.Context, clientID int64, now time.Time, limit int) ([]*domain.GiftRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+giftRequestColumns+` FROM gift_requests
		WHERE client_id = $1 AND status = 'pending' AND expires_at > $2
		ORDER BY created_at
		LIMIT $3`, clientID, timeToPgTimestamptz(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending gift requests: %w", err)
	}
	return collectGiftRequests(rows)
}

type pgGiftTransactions struct {
	db DBTX
}

func (r *pgGiftTransactions) Append(ctx context.Context, t *domain.GiftTransaction) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO gift_transactions
			(request_id, sender_id, receiver_id, gift_id, amount, model_share, platform_share,
			 commission_rate, room_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		t.RequestID, t.SenderID, t.ReceiverID, t.GiftID, t.Amount, t.ModelShare, t.PlatformShare,
		t.CommissionRate, t.RoomID, timeToPgTimestamptz(t.CreatedAt),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert gift transaction: %w", err)
	}
	return nil
}

func (r *pgGiftTransactions) ListByReceiver(ctx context.Context, receiverID int64, limit int) ([]domain.GiftTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, sender_id, receiver_id, gift_id, amount, model_share, platform_share,
		       commission_rate, room_id, created_at
		FROM gift_transactions WHERE receiver_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, receiverID, limit)
	if err != nil {
		return nil, fmt.Errorf("list gift transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.GiftTransaction
	for rows.Next() {
		var (
			t         domain.GiftTransaction
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&t.ID, &t.RequestID, &t.SenderID, &t.ReceiverID, &t.GiftID, &t.Amount,
			&t.ModelShare, &t.PlatformShare, &t.CommissionRate, &t.RoomID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan gift transaction: %w", err)
		}
		t.CreatedAt = pgTimestamptzToTime(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}
