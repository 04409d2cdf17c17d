package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estock/internal/session"
)

// Context keys set by the session gate.  user_id and role mirror the keys
// handlers have always read; session carries the full resolved value.
const (
	ctxSession = "session"
	ctxUserID  = "user_id"
	ctxRole    = "role"
)

func setSession(c echo.Context, s session.Session) {
	c.Set(ctxSession, s)
	c.Set(ctxUserID, s.UID)
	c.Set(ctxRole, string(s.Role))
}

// CurrentSession returns the session resolved for this request.  Outside the
// gate it is the zero, unauthenticated session.
func CurrentSession(c echo.Context) session.Session {
	s, _ := c.Get(ctxSession).(session.Session)
	return s
}

// userID returns the uid of the current request or "guest".
func userID(c echo.Context) string {
	if s := CurrentSession(c); s.UID != "" {
		return s.UID
	}
	return "guest"
}
