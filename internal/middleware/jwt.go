package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/session"
)

// Resolver turns a bearer token into a session.
type Resolver interface {
	Resolve(ctx context.Context, token string) (session.Session, error)
}

// Revoker ends every live session of a uid.
type Revoker interface {
	RevokeSessions(ctx context.Context, uid string) error
}

// Gate resolves the session of every request it wraps.  The role and the
// disabled flag are read from the profile on each request, so a change made
// by an administrator applies on the next request with the same token.
type Gate struct {
	Resolver Resolver
	Revoker  Revoker
	LoginURL string
	Log      *zap.Logger
}

// bearerToken reads the Authorization header.  EventSource cannot set
// headers, so GET requests may carry the token as ?access_token= instead.
func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c.Request().Method == http.MethodGet {
		return c.QueryParam("access_token")
	}
	return ""
}

// resolve runs the resolver and applies the sign-out rule for disabled
// profiles.  A profile read failure downgrades the session to viewer.
func (g Gate) resolve(c echo.Context) (session.Session, error) {
	tok := bearerToken(c)
	if tok == "" {
		return session.Session{}, errMissingToken
	}
	ctx := c.Request().Context()
	s, err := g.Resolver.Resolve(ctx, tok)
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, session.ErrRoleResolution):
		g.logger().Warn("role resolution failed; continuing as viewer", zap.String("uid", s.UID), zap.Error(err))
		return s, nil
	case errors.Is(err, session.ErrAccountDisabled):
		if g.Revoker != nil {
			if rerr := g.Revoker.RevokeSessions(ctx, s.UID); rerr != nil {
				g.logger().Error("revoke sessions of disabled account", zap.String("uid", s.UID), zap.Error(rerr))
			}
		}
		g.logger().Info("disabled account signed out", zap.String("uid", s.UID))
		return s, err
	}
	return session.Session{}, err
}

var errMissingToken = errors.New("missing bearer token")

func (g Gate) logger() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}

// Require rejects unauthenticated and disabled requests with 401 and the
// entry point as redirect.
func (g Gate) Require() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := g.resolve(c)
			switch {
			case errors.Is(err, errMissingToken):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "redirect": g.LoginURL})
			case errors.Is(err, session.ErrAccountDisabled):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account disabled", "redirect": g.LoginURL})
			case err != nil:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "redirect": g.LoginURL})
			}
			setSession(c, s)
			return next(c)
		}
	}
}

// Admin guards the administrative endpoints.  Authentication is checked
// before anything about the request itself, including its method.
func (g Gate) Admin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := g.resolve(c)
			switch {
			case errors.Is(err, errMissingToken):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Missing ID token"})
			case errors.Is(err, session.ErrAccountDisabled):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account disabled"})
			case err != nil:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired ID token"})
			}
			if session.RequireAdmin(s) != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Admin only"})
			}
			setSession(c, s)
			return next(c)
		}
	}
}
