package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/identity"
	"github.com/iliyamo/estock/internal/mail"
	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/session"
	"github.com/iliyamo/estock/internal/utils"
)

// Authenticator is the sign-in side of the identity provider.
type Authenticator interface {
	VerifyToken(ctx context.Context, token string) (model.Identity, error)
	SignIn(ctx context.Context, email, password string) (identity.Tokens, model.Identity, error)
	Refresh(ctx context.Context, raw string) (identity.Tokens, error)
	SignOut(ctx context.Context, raw string) error
	RevokeSessions(ctx context.Context, uid string) error
	SendPasswordResetEmail(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, password string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth     Authenticator
	Profiles *session.Profiles
	LoginURL string
	Log      *zap.Logger
}

func NewAuthHandler(auth Authenticator, profiles *session.Profiles, loginURL string, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Auth: auth, Profiles: profiles, LoginURL: loginURL, Log: log}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type resetReq struct {
	Email string `json:"email"`
}
type confirmResetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type userPart struct {
	UID         string     `json:"uid"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        model.Role `json:"role"`
}
type authResp struct {
	User   userPart        `json:"user"`
	Tokens identity.Tokens `json:"tokens"`
}

func timeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// Login verifies the password, creates the viewer profile on first sign-in
// and returns a token pair.  Disabled profiles are signed out immediately.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := timeout(c)
	defer cancel()

	toks, id, err := h.Auth.SignIn(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, identity.ErrDisabled):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled", "redirect": h.LoginURL})
	case err != nil:
		h.Log.Error("sign in failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sign in failed"})
	}

	role := model.RoleViewer
	p, created, err := h.Profiles.EnsureProfile(ctx, id)
	switch {
	case err != nil:
		h.Log.Error("ensure profile failed; signing in as viewer", zap.String("uid", id.UID), zap.Error(err))
	case p.Disabled:
		if rerr := h.Auth.RevokeSessions(ctx, id.UID); rerr != nil {
			h.Log.Error("revoke sessions of disabled account", zap.String("uid", id.UID), zap.Error(rerr))
		}
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled", "redirect": h.LoginURL})
	default:
		role = p.Role
		if created {
			h.Log.Info("profile created on first sign-in", zap.String("uid", id.UID))
		}
	}

	name := id.DisplayName
	if p.DisplayName != "" {
		name = p.DisplayName
	}
	return c.JSON(http.StatusOK, authResp{
		User:   userPart{UID: id.UID, Email: id.Email, DisplayName: name, Role: role},
		Tokens: toks,
	})
}

// Refresh rotates the refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	ctx, cancel := timeout(c)
	defer cancel()

	toks, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	switch {
	case errors.Is(err, identity.ErrTokenInvalid):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "redirect": h.LoginURL})
	case errors.Is(err, identity.ErrDisabled):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled", "redirect": h.LoginURL})
	case err != nil:
		h.Log.Error("refresh failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"tokens": toks})
}

// Logout revokes the refresh token in the body.  Without one, a valid bearer
// token signs out every session of its identity.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := timeout(c)
	defer cancel()

	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		if err := h.Auth.SignOut(ctx, raw); err != nil {
			h.Log.Error("sign out failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token or bearer token required"})
	}
	id, err := h.Auth.VerifyToken(ctx, strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	if err := h.Auth.RevokeSessions(ctx, id.UID); err != nil {
		h.Log.Error("revoke sessions failed", zap.String("uid", id.UID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// PasswordReset mails a reset link.  The answer does not reveal whether the
// email belongs to an account.
func (h *AuthHandler) PasswordReset(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !mail.ValidAddress(email) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email required"})
	}
	ctx, cancel := timeout(c)
	defer cancel()

	err := h.Auth.SendPasswordResetEmail(ctx, email)
	switch {
	case err == nil, errors.Is(err, identity.ErrNotFound):
	case errors.Is(err, mail.ErrNotConfigured):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Email sender not configured"})
	default:
		h.Log.Error("password reset email failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not send reset email"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "sent"})
}

// ConfirmPasswordReset sets a new password with a reset token.
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req confirmResetReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	ctx, cancel := timeout(c)
	defer cancel()

	err := h.Auth.ConfirmPasswordReset(ctx, strings.TrimSpace(req.Token), req.Password)
	switch {
	case errors.Is(err, utils.ErrWeakPassword):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, identity.ErrTokenInvalid):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired token"})
	case err != nil:
		h.Log.Error("confirm password reset failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
