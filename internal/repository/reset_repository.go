package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// ResetRepo persists password-reset tokens.  Like refresh tokens only the
// SHA-256 hash of the raw value is stored.
type ResetRepo struct{ DB *sql.DB }

func NewResetRepo(db *sql.DB) *ResetRepo { return &ResetRepo{DB: db} }

// Store inserts a reset token hash for uid.
func (r *ResetRepo) Store(ctx context.Context, uid, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO password_resets (token_hash, uid, expires_at) VALUES (?,?,?)",
		tokenHash, uid, exp.UnixMilli())
	return errors.Wrap(err, "store reset token")
}

// Consume marks the token used and returns its owner.  A token can be
// consumed once; unknown, used and expired tokens yield ErrTokenInvalid.
func (r *ResetRepo) Consume(ctx context.Context, tokenHash string) (string, error) {
	now := time.Now().UTC().UnixMilli()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE password_resets SET used_at=? WHERE token_hash=? AND used_at IS NULL AND expires_at>?",
		now, tokenHash, now)
	if err != nil {
		return "", errors.Wrap(err, "consume reset token")
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return "", ErrTokenInvalid
	}
	var uid string
	if err := r.DB.QueryRowContext(ctx,
		"SELECT uid FROM password_resets WHERE token_hash=? LIMIT 1", tokenHash).Scan(&uid); err != nil {
		return "", errors.Wrap(err, "load reset token")
	}
	return uid, nil
}
