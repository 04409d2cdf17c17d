// Package session answers "who is this, and what can they do?".  A Session
// is an immutable value recomputed from the bearer credential and the
// users/{uid} profile document; it is never mutated in place.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/identity"
	"github.com/iliyamo/estock/internal/model"
)

var (
	// ErrUnauthenticated: missing, invalid or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden: authenticated but the role is not allowed.
	ErrForbidden = errors.New("forbidden")
	// ErrRoleResolution: the profile could not be read.  The session that
	// accompanies this error carries RoleViewer.
	ErrRoleResolution = errors.New("role resolution failed")
	// ErrAccountDisabled: the profile is disabled; the caller must force a
	// sign-out and redirect to the entry point.
	ErrAccountDisabled = errors.New("account disabled")
)

// Session pairs an authenticated identity with its resolved role.
type Session struct {
	UID         string     `json:"uid"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        model.Role `json:"role"`
	Disabled    bool       `json:"disabled"`
	ResolvedAt  time.Time  `json:"resolvedAt"`
}

// Authenticated reports whether the session belongs to an identity.
func (s Session) Authenticated() bool { return s.UID != "" }

// CanWrite reports whether record mutations are allowed.
func (s Session) CanWrite() bool { return s.Authenticated() && !s.Disabled && s.Role.CanWrite() }

// Allows reports whether the session's role is one of allow.
func (s Session) Allows(allow ...model.Role) bool {
	for _, r := range allow {
		if s.Role == r {
			return true
		}
	}
	return false
}

// RequireAdmin fails with ErrForbidden unless the session is an admin.
func RequireAdmin(s Session) error {
	if !s.Authenticated() {
		return ErrUnauthenticated
	}
	if !s.Role.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// TokenVerifier is the part of the identity provider the resolver needs.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (model.Identity, error)
}

// Resolver resolves bearer tokens and profiles into sessions.
type Resolver struct {
	verifier TokenVerifier
	store    docstore.Store
	log      *zap.Logger
	now      func() time.Time
}

func NewResolver(verifier TokenVerifier, store docstore.Store, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{verifier: verifier, store: store, log: log, now: time.Now}
}

// Authenticate verifies the credential.  Every failure, including an
// unreachable provider, is reported as ErrUnauthenticated.
func (r *Resolver) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, ErrUnauthenticated
	}
	id, err := r.verifier.VerifyToken(ctx, token)
	if err != nil {
		if !errors.Is(err, identity.ErrUnauthenticated) {
			r.log.Warn("token verification failed", zap.Error(err))
		}
		return model.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return id, nil
}

// ResolveRole looks up users/{uid}.  A missing profile resolves to viewer
// and not disabled; a failed read returns viewer with ErrRoleResolution.
func (r *Resolver) ResolveRole(ctx context.Context, uid string) (model.Role, bool, error) {
	doc, err := r.store.Get(ctx, model.CollectionUsers, uid)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return model.RoleViewer, false, nil
	case err != nil:
		r.log.Error("profile lookup failed", zap.String("uid", uid), zap.Error(err))
		return model.RoleViewer, false, fmt.Errorf("%w: %v", ErrRoleResolution, err)
	}
	p := model.ProfileFromData(uid, doc.Data, doc.CreatedAt, doc.UpdatedAt)
	return p.Role, p.Disabled, nil
}

// Resolve authenticates token and resolves the session.  With
// ErrRoleResolution the returned session is usable at viewer privilege;
// with ErrAccountDisabled it must not be used except to sign out.
func (r *Resolver) Resolve(ctx context.Context, token string) (Session, error) {
	id, err := r.Authenticate(ctx, token)
	if err != nil {
		return Session{}, err
	}
	return r.ForIdentity(ctx, id)
}

// ForIdentity resolves the session of an already authenticated identity.
func (r *Resolver) ForIdentity(ctx context.Context, id model.Identity) (Session, error) {
	s := Session{UID: id.UID, Email: id.Email, DisplayName: id.DisplayName, ResolvedAt: r.now().UTC()}
	role, disabled, err := r.ResolveRole(ctx, id.UID)
	s.Role, s.Disabled = role, disabled
	if err != nil {
		return s, err
	}
	if disabled {
		return s, ErrAccountDisabled
	}
	return s, nil
}
