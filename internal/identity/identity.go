// Package identity is the identity and authorization provider: it owns
// credentials, issues and verifies bearer tokens, carries per-identity custom
// claims and generates password-reset links.  The application role is not
// decided here; see package session.
package identity

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/estock/internal/model"
)

var (
	// ErrUnauthenticated is returned for missing, malformed, expired or
	// revoked credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound is returned when no identity matches.
	ErrNotFound = errors.New("identity not found")
	// ErrEmailExists is returned when creating or renaming onto a taken email.
	ErrEmailExists = errors.New("email already exists")
	// ErrInvalidEmail is returned for an empty or malformed email.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidCredentials is returned by SignIn for an unknown email or a
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrDisabled is returned by SignIn and Refresh for provider-disabled identities.
	ErrDisabled = errors.New("identity disabled")
	// ErrTokenInvalid is returned for unknown, used or expired reset and refresh tokens.
	ErrTokenInvalid = errors.New("token invalid or expired")
)

// CreateParams describes a new identity.  Password may be empty: the
// identity then signs in only after following a reset link.
type CreateParams struct {
	Email       string
	DisplayName string
	Password    string
	Disabled    bool
}

// UpdateParams carries optional changes; nil fields are left untouched.
type UpdateParams struct {
	Email       *string
	DisplayName *string
	Password    *string
	Disabled    *bool
}

// Tokens is the credential pair returned by SignIn and Refresh.
type Tokens struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Provider is the contract the rest of the application consumes.
type Provider interface {
	VerifyToken(ctx context.Context, token string) (model.Identity, error)
	GetByUID(ctx context.Context, uid string) (model.Identity, error)
	GetByEmail(ctx context.Context, email string) (model.Identity, error)
	CreateIdentity(ctx context.Context, p CreateParams) (model.Identity, error)
	UpdateIdentity(ctx context.Context, uid string, p UpdateParams) (model.Identity, error)
	DeleteIdentity(ctx context.Context, uid string) error
	ListIdentities(ctx context.Context) ([]model.Identity, error)
	SetClaims(ctx context.Context, uid string, claims map[string]any) error
	GenerateResetLink(ctx context.Context, email, continueURL string) (string, error)
	SendPasswordResetEmail(ctx context.Context, email string) error
	// RevokeSessions invalidates every refresh token of uid, forcing a
	// sign-out once the current access token expires.
	RevokeSessions(ctx context.Context, uid string) error
}
