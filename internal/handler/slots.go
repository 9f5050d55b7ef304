package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/room-slot-reservation/internal/model"
	"github.com/iliyamo/room-slot-reservation/internal/service"
)

// Reservations is the part of *service.ReservationService the HTTP layer
// uses.
type Reservations interface {
	ListSlots(ctx context.Context, room int, date, timeOfDay string) ([]model.Slot, error)
	Book(ctx context.Context, room int, date string, timeOfDay int, h service.Holder) (model.Slot, error)
	Enqueue(ctx context.Context, room int, date string, timeOfDay int, h service.Holder) (model.Slot, int, error)
	Cancel(ctx context.Context, slotID uint64, identity, passkey string) error
	LookupBookings(ctx context.Context, identity string) ([]model.Booking, error)
}

// SlotHandler serves slot listings, reservations and waitlist operations.
type SlotHandler struct {
	svc Reservations
	log *zap.Logger
}

// NewSlotHandler wires the handler.  Both arguments must be non-nil.
func NewSlotHandler(svc Reservations, log *zap.Logger) *SlotHandler {
	if svc == nil || log == nil {
		panic("nil dependency passed to NewSlotHandler")
	}
	return &SlotHandler{svc: svc, log: log}
}

// slotView is the JSON form of a slot.  The holder's email is masked.
type slotView struct {
	ID          uint64  `json:"id"`
	Room        int     `json:"room"`
	Date        string  `json:"date"`
	Time        int     `json:"time"`
	Booked      bool    `json:"booked"`
	QueueLength int     `json:"queue_length"`
	Holder      *string `json:"holder,omitempty"`
}

func toSlotView(s model.Slot) slotView {
	v := slotView{
		ID:          s.ID,
		Room:        s.Room,
		Date:        s.Date.Format(model.DateFormat),
		Time:        s.HHMM(),
		Booked:      s.Booked,
		QueueLength: s.QueueLength,
	}
	if s.Holder != nil { // unbooked slots carry no holder
		m := model.Identity{Email: *s.Holder}.Masked() // listings are public, never expose the full address
		v.Holder = &m
	}
	return v
}

type bookingView struct {
	SlotID      uint64    `json:"slot_id"`
	Room        int       `json:"room"`
	Date        string    `json:"date"`
	Time        int       `json:"time"`
	Position    int       `json:"position"`
	Status      string    `json:"status"`
	QueueLength int       `json:"queue_length"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

func toBookingView(b model.Booking) bookingView {
	status := "waiting"
	if b.Position == 0 { // position 0 is the party holding the slot
		status = "holding"
	}
	return bookingView{
		SlotID:      b.SlotID,
		Room:        b.Room,
		Date:        b.Date.Format(model.DateFormat),
		Time:        b.Hour * 100,
		Position:    b.Position,
		Status:      status,
		QueueLength: b.QueueLength,
		Name:        b.HolderName,
		CreatedAt:   b.CreatedAt,
	}
}

// reservationRequest is the body of book and enqueue.
type reservationRequest struct {
	Date    string `json:"date"`
	Time    int    `json:"time"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Passkey string `json:"passkey"`
}

func (r reservationRequest) holder() service.Holder {
	return service.Holder{Name: r.Name, Phone: r.Phone, Email: r.Email, Passkey: r.Passkey}
}

type cancelRequest struct {
	Identity string `json:"identity"`
	Passkey  string `json:"passkey"`
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": service.KindInvalidRequest.String()})
}

func roomParam(c echo.Context) (int, bool) {
	room, err := strconv.Atoi(c.Param("id")) // parse the room id from the URL
	return room, err == nil && room > 0      // room ids start at 1
}

// ListSlots handles GET /v1/rooms/:id/slots?date=ddmmyy&time=HHMM.
func (h *SlotHandler) ListSlots(c echo.Context) error {
	room, ok := roomParam(c)
	if !ok {
		return badRequest(c, "invalid room id")
	}
	slots, err := h.svc.ListSlots(c.Request().Context(), room, c.QueryParam("date"), c.QueryParam("time")) // empty filters mean the whole window
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]slotView, 0, len(slots)) // non-nil so an empty listing encodes as []
	for _, s := range slots {
		out = append(out, toSlotView(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"room": room, "slots": out})
}

// Book handles POST /v1/book/:id.
func (h *SlotHandler) Book(c echo.Context) error {
	room, ok := roomParam(c)
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var req reservationRequest
	if err := c.Bind(&req); err != nil { // attempt to bind the JSON body into the struct
		return badRequest(c, "invalid request body")
	}
	slot, err := h.svc.Book(c.Request().Context(), room, req.Date, req.Time, req.holder())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "slot booked", "slot": toSlotView(slot)}) // 201 with the committed slot
}

// Enqueue handles POST /v1/enqueue/:id.
func (h *SlotHandler) Enqueue(c echo.Context) error {
	room, ok := roomParam(c)
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var req reservationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	slot, pos, err := h.svc.Enqueue(c.Request().Context(), room, req.Date, req.Time, req.holder())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message":  "added to waitlist",
		"position": pos, // 1-based place behind the holder
		"slot":     toSlotView(slot),
	})
}

// Cancel handles DELETE /v1/cancel/:id where id is the slot id.
func (h *SlotHandler) Cancel(c echo.Context) error {
	slotID, err := strconv.ParseUint(c.Param("id"), 10, 64) // cancel addresses the slot by id, not by cell
	if err != nil || slotID == 0 {                          // ids are auto-increment and never 0
		return badRequest(c, "invalid slot id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.svc.Cancel(c.Request().Context(), slotID, req.Identity, req.Passkey); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent) // nothing to return once the entry is gone
}

// LookupBookings handles GET /v1/bookings?identity=.
func (h *SlotHandler) LookupBookings(c echo.Context) error {
	bookings, err := h.svc.LookupBookings(c.Request().Context(), c.QueryParam("identity"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]bookingView, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingView(b))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}
