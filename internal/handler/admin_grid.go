package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/room-slot-reservation/internal/model"
	"github.com/iliyamo/room-slot-reservation/internal/service"
)

// Grid is the part of *service.GridMaintainer exposed to operators.
type Grid interface {
	RunCycle(ctx context.Context) (service.CycleReport, error)
	RefreshWindow(ctx context.Context) (int, error)
	RefreshDay(ctx context.Context, day time.Time) (int, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
	Backfill(ctx context.Context) (int, error)
}

// AdminGridHandler lets an ADMIN trigger slot-grid maintenance by hand, for
// deployments without an external scheduler.
type AdminGridHandler struct {
	grid Grid
	log  *zap.Logger
	now  func() time.Time
	loc  *time.Location
}

// NewAdminGridHandler wires the handler.  loc is the zone "today" is taken in.
func NewAdminGridHandler(grid Grid, log *zap.Logger, loc *time.Location) *AdminGridHandler {
	if grid == nil || log == nil {
		panic("nil dependency passed to NewAdminGridHandler")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AdminGridHandler{grid: grid, log: log, now: time.Now, loc: loc}
}

func (h *AdminGridHandler) failed(c echo.Context, op string, err error) error {
	h.log.Error("grid maintenance failed", zap.String("op", op), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "grid maintenance failed, nothing was changed"})
}

// optionalDate reads a ddmmyy query parameter, falling back to def.
func (h *AdminGridHandler) optionalDate(c echo.Context, name string, def time.Time) (time.Time, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, true
	}
	d, err := time.Parse(model.DateFormat, raw)
	return d, err == nil && len(raw) == 6
}

func (h *AdminGridHandler) today() time.Time {
	y, m, d := h.now().In(h.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Run handles POST /v1/admin/grid/run.
func (h *AdminGridHandler) Run(c echo.Context) error {
	rep, err := h.grid.RunCycle(c.Request().Context())
	if err != nil {
		return h.failed(c, "run", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"day":      rep.Day.Format(model.DateFormat),
		"inserted": rep.Inserted,
		"cutoff":   rep.Cutoff.Format(model.DateFormat),
		"purged":   rep.Purged,
	})
}

// Refresh handles POST /v1/admin/grid/refresh[?date=ddmmyy].  Without a date
// the last day of the booking window is refreshed.
func (h *AdminGridHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		n   int
		err error
	)
	if c.QueryParam("date") == "" {
		n, err = h.grid.RefreshWindow(ctx)
	} else {
		day, ok := h.optionalDate(c, "date", time.Time{})
		if !ok {
			return badRequest(c, "date must be formatted as ddmmyy")
		}
		n, err = h.grid.RefreshDay(ctx, day)
	}
	if err != nil {
		return h.failed(c, "refresh", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"inserted": n})
}

// Purge handles POST /v1/admin/grid/purge[?before=ddmmyy], default today.
func (h *AdminGridHandler) Purge(c echo.Context) error {
	cutoff, ok := h.optionalDate(c, "before", h.today())
	if !ok {
		return badRequest(c, "before must be formatted as ddmmyy")
	}
	if cutoff.After(h.today()) {
		return badRequest(c, "cannot purge slots that are still bookable")
	}
	n, err := h.grid.PurgeExpired(c.Request().Context(), cutoff)
	if err != nil {
		return h.failed(c, "purge", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"purged": n, "cutoff": cutoff.Format(model.DateFormat)})
}

// Backfill handles POST /v1/admin/grid/backfill.
func (h *AdminGridHandler) Backfill(c echo.Context) error {
	n, err := h.grid.Backfill(c.Request().Context())
	if err != nil {
		return h.failed(c, "backfill", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"inserted": n})
}
