package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-slot-reservation/internal/handler"
	"github.com/iliyamo/room-slot-reservation/internal/middleware"
	"github.com/iliyamo/room-slot-reservation/internal/utils"
)

// RegisterAdmin registers the slot-grid maintenance endpoints under
// /v1/admin/grid.  They require a JWT carrying the ADMIN role; gridctl token
// mints one.
func RegisterAdmin(e *echo.Echo, h *handler.AdminGridHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin/grid",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)
	g.POST("/run", h.Run)
	g.POST("/refresh", h.Refresh)
	g.POST("/purge", h.Purge)
	g.POST("/backfill", h.Backfill)
}
