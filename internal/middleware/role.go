package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estock/internal/model"
)

// RequireRole enforces that the gated session has one of roles.  Other
// sessions get 403 and are pointed at the default page.  It must run after
// Gate.Require.
func RequireRole(defaultPage string, roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !CurrentSession(c).Allows(roles...) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "redirect": defaultPage})
			}
			return next(c)
		}
	}
}
