package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/room-slot-reservation/internal/service"
)

// retryAfterSeconds is sent with 503 responses for lock contention.
const retryAfterSeconds = "1"

var kindStatus = map[service.Kind]int{
	service.KindInvalidRequest:    http.StatusBadRequest,
	service.KindNotFound:          http.StatusNotFound,
	service.KindConflict:          http.StatusConflict,
	service.KindNeedsBookingFirst: http.StatusConflict,
	service.KindQueueFull:         http.StatusConflict,
	service.KindBusy:              http.StatusServiceUnavailable,
	service.KindUnauthorized:      http.StatusUnauthorized,
	service.KindInternal:          http.StatusInternalServerError,
}

// StatusFor maps a service error kind to its HTTP status.
func StatusFor(k service.Kind) int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error", "code", "guidance"}.  Internal errors
// are logged with their cause and answered with a generic message.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		se = &service.Error{Kind: service.KindInternal, Message: "internal error", Err: err}
	}
	status := StatusFor(se.Kind)
	if se.Kind == service.KindInternal {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal server error", "code": se.Kind.String()})
	}
	if se.Kind == service.KindBusy {
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
	}
	body := echo.Map{"error": se.Message, "code": se.Kind.String()}
	if se.Guidance != "" {
		body["guidance"] = se.Guidance
	}
	return c.JSON(status, body)
}
