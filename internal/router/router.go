package router // package router registers the HTTP routes of the reservation API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-slot-reservation/internal/handler"
)

// RegisterRoutes registers the unauthenticated probes.  /healthz answers as
// long as the process is up; /readyz also checks the database.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterReservations registers the public slot and reservation endpoints.
// Reservations need no account: book and enqueue take a passkey that cancel
// must present again.  limit wraps the mutating routes only, so listings stay
// cheap to serve from the cache.
func RegisterReservations(e *echo.Echo, h *handler.SlotHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.GET("/rooms/:id/slots", h.ListSlots)
	g.GET("/bookings", h.LookupBookings)

	g.POST("/book/:id", h.Book, limit)
	g.POST("/enqueue/:id", h.Enqueue, limit)
	g.DELETE("/cancel/:id", h.Cancel, limit)
}
