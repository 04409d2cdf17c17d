// Package router registers the HTTP routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estock/internal/handler"
	"github.com/iliyamo/estock/internal/middleware"
	"github.com/iliyamo/estock/internal/model"
)

// RegisterRoutes registers the unauthenticated health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers sign-in, token rotation, sign-out and the password
// reset flow under /v1/auth.  None of them require a session; all of them
// are rate limited.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.POST("/password-reset", a.PasswordReset)
	g.POST("/password-reset/confirm", a.ConfirmPasswordReset)
}

// RegisterApp registers the session-gated user menu and stock pages.  Writes
// additionally require a writer role; the catalog listing is cached.
func RegisterApp(e *echo.Echo, gate middleware.Gate, defaultPage string, me *handler.MeHandler, col *handler.CollectionHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", gate.Require())
	g.GET("/me", me.Me)
	g.PATCH("/me", me.UpdateMe)

	g.GET("/collections", col.List, cache)
	g.GET("/collections/:name/view", col.View)
	g.GET("/collections/:name/stream", col.Stream)
	g.GET("/collections/:name/export", col.Export)

	write := middleware.RequireRole(defaultPage, model.RoleAdmin, model.RoleContributor)
	g.POST("/collections/:name", col.Create, write)
	g.PUT("/collections/:name/:id", col.Update, write)
	g.DELETE("/collections/:name/:id", col.Delete, write)
}

// RegisterAdmin registers user provisioning and management.  create-user
// accepts every method so that the admin check answers before the 405.
func RegisterAdmin(e *echo.Echo, gate middleware.Gate, a *handler.AdminHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/admin", limit, gate.Admin())
	g.Any("/create-user", a.CreateUser)
	g.GET("/users", a.ListUsers)
	g.POST("/users", a.AddUser)
	g.PATCH("/users/:uid", a.UpdateUser)
	g.DELETE("/users/:uid", a.DeleteUser)
	g.DELETE("/users/:uid/account", a.DeleteAccount)
	g.POST("/users/:uid/reset-password", a.ResetPassword)
}
