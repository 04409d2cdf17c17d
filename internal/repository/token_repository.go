package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, uid, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, uid, expires_at, created_at) VALUES (?,?,?,?)",
		tokenHash, uid, exp.UnixMilli(), time.Now().UTC().UnixMilli())
	return errors.Wrap(err, "store refresh token")
}

// ValidateRefresh returns the owner uid if a non-revoked, non-expired token exists.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	var (
		uid       string
		expiresAt int64
		revokedAt sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT uid, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&uid, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTokenInvalid
	}
	if err != nil {
		return "", errors.Wrap(err, "validate refresh token")
	}
	if revokedAt.Valid || time.Now().UTC().After(time.UnixMilli(expiresAt)) {
		return "", ErrTokenInvalid
	}
	return uid, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL",
		time.Now().UTC().UnixMilli(), tokenHash)
	return errors.Wrap(err, "revoke refresh token")
}

// RevokeAllForUser revokes all of the identity's active tokens.  This is how
// a disabled account is forced to sign out.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, uid string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE uid=? AND revoked_at IS NULL",
		time.Now().UTC().UnixMilli(), uid)
	return errors.Wrapf(err, "revoke refresh tokens of %s", uid)
}
