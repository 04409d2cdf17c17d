package model

import "time"

// Identity represents an account of the identity provider as stored in the
// `identities` table.  It is distinct from the Profile document: the
// identity carries credentials and provider-level flags, the profile carries
// the application role.  Deleting a profile never deletes the identity.
//
// Fields:
//  UID          – opaque identifier (UUID string), the token subject.
//  Email        – unique, normalized to lower case.
//  DisplayName  – provider display name.
//  PasswordHash – bcrypt hash; empty until the user sets a password via the reset link.
//  Disabled     – provider-level disable flag.
//  Claims       – custom claims embedded in issued access tokens (e.g. role).
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
//  LastSignInAt – time of the last successful sign-in (nil when never signed in).
type Identity struct {
	UID          string         `json:"uid"`
	Email        string         `json:"email"`
	DisplayName  string         `json:"displayName"`
	PasswordHash string         `json:"-"`
	Disabled     bool           `json:"disabled"`
	Claims       map[string]any `json:"claims,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	LastSignInAt *time.Time     `json:"lastSignInAt,omitempty"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to an identity and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA‑256 hash.
//
// Fields:
//  UID       – owner of the token.
//  TokenHash – SHA‑256 hex digest of the token value, primary key.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	UID       string     // refresh_tokens.uid
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// PasswordReset models an entry in the `password_resets` table.  A reset
// link carries the raw token; only its hash is persisted and a row can be
// consumed once.
type PasswordReset struct {
	TokenHash string     // password_resets.token_hash
	UID       string     // password_resets.uid
	ExpiresAt time.Time  // password_resets.expires_at
	UsedAt    *time.Time // password_resets.used_at (nullable)
}
