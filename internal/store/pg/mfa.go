package pg

import (
	"context"
	"database/sql"
	"errors"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/mfa"
)

func (s *Store) GetMFASecret(ctx context.Context, userID string) (mfa.Secret, error) {
	var sec mfa.Secret
	err := s.db.QueryRowContext(ctx, `
		select user_id, secret, digits, period, enabled, created_at
		from user_mfa
		where user_id = $1
	`, userID).Scan(&sec.UserID, &sec.Secret, &sec.Digits, &sec.Period, &sec.Enabled, &sec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return mfa.Secret{}, apperr.NotFound("mfa secret", userID)
	}
	if err != nil {
		return mfa.Secret{}, err
	}
	return sec, nil
}

// SaveMFASecret replaces any previous secret, pending or not.
func (s *Store) SaveMFASecret(ctx context.Context, sec mfa.Secret) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_mfa (user_id, secret, digits, period, enabled, created_at)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (user_id) do update
		set secret = excluded.secret,
		    digits = excluded.digits,
		    period = excluded.period,
		    enabled = excluded.enabled,
		    created_at = excluded.created_at
	`, sec.UserID, sec.Secret, sec.Digits, sec.Period, sec.Enabled, sec.CreatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return apperr.NotFound("user", sec.UserID)
	}
	return err
}

func (s *Store) EnableMFASecret(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `update user_mfa set enabled = true where user_id = $1`, userID)
	if err != nil {
		return err
	}
	return affected(res, "mfa secret", userID)
}

func (s *Store) DeleteMFASecret(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `delete from user_mfa where user_id = $1`, userID)
	if err != nil {
		return err
	}
	return affected(res, "mfa secret", userID)
}
