package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/estock/internal/model"
)

// IdentityRepo mirrors the 'identities' table.
type IdentityRepo struct{ DB *sql.DB }

func NewIdentityRepo(db *sql.DB) *IdentityRepo { return &IdentityRepo{DB: db} }

const identityColumns = "uid,email,display_name,password_hash,disabled,claims,created_at,updated_at,last_sign_in_at"

// Create inserts id.  Email is normalized; CreatedAt/UpdatedAt are set when zero.
func (r *IdentityRepo) Create(ctx context.Context, id *model.Identity) error {
	id.Email = normalizeEmail(id.Email)
	now := time.Now().UTC()
	if id.CreatedAt.IsZero() {
		id.CreatedAt = now
	}
	id.UpdatedAt = id.CreatedAt
	claims, err := encodeClaims(id.Claims)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO identities ("+identityColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		id.UID, id.Email, id.DisplayName, id.PasswordHash, id.Disabled, claims,
		id.CreatedAt.UnixMilli(), id.UpdatedAt.UnixMilli(), nullMillis(id.LastSignInAt))
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return errors.Wrap(err, "insert identity")
	}
	return nil
}

// GetByUID fetches an identity by uid.
func (r *IdentityRepo) GetByUID(ctx context.Context, uid string) (model.Identity, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+identityColumns+" FROM identities WHERE uid=? LIMIT 1", uid))
}

// GetByEmail fetches an identity by normalized email.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (model.Identity, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+identityColumns+" FROM identities WHERE email=? LIMIT 1", normalizeEmail(email)))
}

// List returns every identity ordered by creation time.
func (r *IdentityRepo) List(ctx context.Context) ([]model.Identity, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+identityColumns+" FROM identities ORDER BY created_at, uid")
	if err != nil {
		return nil, errors.Wrap(err, "list identities")
	}
	defer rows.Close()
	out := make([]model.Identity, 0)
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "list identities")
}

// Update writes every mutable column of id and bumps UpdatedAt.
func (r *IdentityRepo) Update(ctx context.Context, id *model.Identity) error {
	id.Email = normalizeEmail(id.Email)
	id.UpdatedAt = time.Now().UTC()
	claims, err := encodeClaims(id.Claims)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE identities SET email=?, display_name=?, password_hash=?, disabled=?, claims=?, updated_at=?, last_sign_in_at=? WHERE uid=?",
		id.Email, id.DisplayName, id.PasswordHash, id.Disabled, claims,
		id.UpdatedAt.UnixMilli(), nullMillis(id.LastSignInAt), id.UID)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return errors.Wrapf(err, "update identity %s", id.UID)
	}
	return mustAffect(res)
}

// TouchSignIn records a successful sign-in.
func (r *IdentityRepo) TouchSignIn(ctx context.Context, uid string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE identities SET last_sign_in_at=? WHERE uid=?", at.UnixMilli(), uid)
	if err != nil {
		return errors.Wrapf(err, "touch sign-in %s", uid)
	}
	return mustAffect(res)
}

// Delete removes the identity row.  Tokens of the identity are removed too.
func (r *IdentityRepo) Delete(ctx context.Context, uid string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM identities WHERE uid=?", uid)
	if err != nil {
		return errors.Wrapf(err, "delete identity %s", uid)
	}
	if err := mustAffect(res); err != nil {
		return err
	}
	for _, stmt := range []string{
		"DELETE FROM refresh_tokens WHERE uid=?",
		"DELETE FROM password_resets WHERE uid=?",
	} {
		if _, err := r.DB.ExecContext(ctx, stmt, uid); err != nil {
			return errors.Wrapf(err, "delete tokens of %s", uid)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *IdentityRepo) scanOne(row *sql.Row) (model.Identity, error) {
	id, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Identity{}, ErrNotFound
	}
	return id, err
}

func scanIdentity(s scanner) (model.Identity, error) {
	var (
		id               model.Identity
		claims           string
		created, updated int64
		lastSignIn       sql.NullInt64
	)
	if err := s.Scan(&id.UID, &id.Email, &id.DisplayName, &id.PasswordHash, &id.Disabled,
		&claims, &created, &updated, &lastSignIn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Identity{}, err
		}
		return model.Identity{}, errors.Wrap(err, "scan identity")
	}
	if claims != "" {
		if err := json.Unmarshal([]byte(claims), &id.Claims); err != nil {
			return model.Identity{}, errors.Wrapf(err, "decode claims of %s", id.UID)
		}
	}
	id.CreatedAt = time.UnixMilli(created).UTC()
	id.UpdatedAt = time.UnixMilli(updated).UTC()
	id.LastSignInAt = timeFromMillis(lastSignIn)
	return id, nil
}

func encodeClaims(claims map[string]any) (string, error) {
	if len(claims) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return "", errors.Wrap(err, "encode claims")
	}
	return string(b), nil
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timeFromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
