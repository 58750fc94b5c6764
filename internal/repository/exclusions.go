package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/set-night/roulette/internal/domain"
)

type pgExclusions struct {
	db DBTX
}

func (r *pgExclusions) Put(ctx context.Context, w domain.ExclusionWindow) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO exclusion_windows (subject_user_id, excluded_user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_user_id, excluded_user_id)
		DO UPDATE SET expires_at = GREATEST(exclusion_windows.expires_at, EXCLUDED.expires_at)`,
		w.SubjectUserID, w.ExcludedUserID, timeToPgTimestamptz(w.ExpiresAt))
	if err != nil {
		return fmt.Errorf("put exclusion window: %w", err)
	}
	return nil
}

func (r *pgExclusions) ActiveFor(ctx context.Context, subjectUserID int64, now time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT excluded_user_id FROM exclusion_windows
		WHERE subject_user_id = $1 AND expires_at > $2`,
		subjectUserID, timeToPgTimestamptz(now))
	if err != nil {
		return nil, fmt.Errorf("list exclusions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgExclusions) IsExcluded(ctx context.Context, subjectUserID, excludedUserID int64, now time.Time) (bool, error) {
	var excluded bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM exclusion_windows
			WHERE subject_user_id = $1 AND excluded_user_id = $2 AND expires_at > $3
		)`, subjectUserID, excludedUserID, timeToPgTimestamptz(now)).Scan(&excluded)
	if err != nil {
		return false, fmt.Errorf("check exclusion: %w", err)
	}
	return excluded, nil
}

func (r *pgExclusions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM exclusion_windows WHERE expires_at <= $1`, timeToPgTimestamptz(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired exclusions: %w", err)
	}
	return tag.RowsAffected(), nil
}
