package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/estock/internal/table"
)

// HealthHandler reports liveness and the sync state of every live table.
type HealthHandler struct {
	Registry *table.Registry
}

// Health answers 200 while the process runs; a controller that lost its
// subscription shows up in the body, not in the status code.
func (h *HealthHandler) Health(c echo.Context) error {
	resp := echo.Map{"status": "ok"}
	if h.Registry != nil {
		resp["collections"] = h.Registry.Statuses()
	}
	return c.JSON(http.StatusOK, resp)
}
