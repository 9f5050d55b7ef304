package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/room-slot-reservation/internal/model"
	"github.com/iliyamo/room-slot-reservation/internal/service"
)

type fakeReservations struct {
	slots    []model.Slot
	slot     model.Slot
	position int
	bookings []model.Booking
	err      error

	gotRoom    int
	gotDate    string
	gotTime    int
	gotTimeStr string
	gotHolder  service.Holder
	gotSlotID  uint64
	gotID      string
	gotPasskey string
}

func (f *fakeReservations) ListSlots(_ context.Context, room int, date, timeOfDay string) ([]model.Slot, error) {
	f.gotRoom, f.gotDate, f.gotTimeStr = room, date, timeOfDay
	return f.slots, f.err
}

func (f *fakeReservations) Book(_ context.Context, room int, date string, t int, h service.Holder) (model.Slot, error) {
	f.gotRoom, f.gotDate, f.gotTime, f.gotHolder = room, date, t, h
	return f.slot, f.err
}

func (f *fakeReservations) Enqueue(_ context.Context, room int, date string, t int, h service.Holder) (model.Slot, int, error) {
	f.gotRoom, f.gotDate, f.gotTime, f.gotHolder = room, date, t, h
	return f.slot, f.position, f.err
}

func (f *fakeReservations) Cancel(_ context.Context, slotID uint64, identity, passkey string) error {
	f.gotSlotID, f.gotID, f.gotPasskey = slotID, identity, passkey
	return f.err
}

func (f *fakeReservations) LookupBookings(_ context.Context, identity string) ([]model.Booking, error) {
	f.gotID = identity
	return f.bookings, f.err
}

func slotServer(f *fakeReservations, log *zap.Logger) *echo.Echo {
	h := NewSlotHandler(f, log)
	e := echo.New()
	e.GET("/v1/rooms/:id/slots", h.ListSlots)
	e.GET("/v1/bookings", h.LookupBookings)
	e.POST("/v1/book/:id", h.Book)
	e.POST("/v1/enqueue/:id", h.Enqueue)
	e.DELETE("/v1/cancel/:id", h.Cancel)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var tomorrowSlot = func() model.Slot {
	h := "alice@example.com"
	return model.Slot{
		ID: 9, Room: 1, Date: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), Hour: 14,
		Booked: true, QueueLength: 1, Holder: &h,
	}
}

func TestListSlots(t *testing.T) {
	f := &fakeReservations{slots: []model.Slot{tomorrowSlot()}}
	rec := do(slotServer(f, zap.NewNop()), http.MethodGet, "/v1/rooms/1/slots?date=161026&time=1400", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, f.gotRoom)
	assert.Equal(t, "161026", f.gotDate)
	assert.Equal(t, "1400", f.gotTimeStr)

	body := decode(t, rec)
	slots := body["slots"].([]any)
	require.Len(t, slots, 1)
	s := slots[0].(map[string]any)
	assert.Equal(t, "161026", s["date"])
	assert.EqualValues(t, 1400, s["time"])
	assert.Equal(t, true, s["booked"])
	assert.Equal(t, "a****@example.com", s["holder"], "holder email is masked")
}

func TestListSlots_EmptyIsArray(t *testing.T) {
	f := &fakeReservations{}
	rec := do(slotServer(f, zap.NewNop()), http.MethodGet, "/v1/rooms/2/slots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"room":2,"slots":[]}`, rec.Body.String())
}

func TestListSlots_BadRoom(t *testing.T) {
	rec := do(slotServer(&fakeReservations{}, zap.NewNop()), http.MethodGet, "/v1/rooms/abc/slots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBook_Created(t *testing.T) {
	f := &fakeReservations{slot: tomorrowSlot()}
	rec := do(slotServer(f, zap.NewNop()), http.MethodPost, "/v1/book/1",
		`{"date":"161026","time":1430,"name":"Alice","phone":"5550000001","email":"alice@example.com","passkey":"1111"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, 1430, f.gotTime)
	assert.Equal(t, service.Holder{Name: "Alice", Phone: "5550000001", Email: "alice@example.com", Passkey: "1111"}, f.gotHolder)
	body := decode(t, rec)
	assert.EqualValues(t, 9, body["slot"].(map[string]any)["id"])
}

func TestBook_MalformedBody(t *testing.T) {
	rec := do(slotServer(&fakeReservations{}, zap.NewNop()), http.MethodPost, "/v1/book/1", `{"time":"fourteen"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueue_ReturnsPosition(t *testing.T) {
	s := tomorrowSlot()
	s.QueueLength = 2
	f := &fakeReservations{slot: s, position: 1}
	rec := do(slotServer(f, zap.NewNop()), http.MethodPost, "/v1/enqueue/1",
		`{"date":"161026","time":1400,"name":"Bob","phone":"5550000002","email":"bob@example.com","passkey":"2222"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["position"])
	assert.EqualValues(t, 2, body["slot"].(map[string]any)["queue_length"])
}

func TestCancel_NoContent(t *testing.T) {
	f := &fakeReservations{}
	rec := do(slotServer(f, zap.NewNop()), http.MethodDelete, "/v1/cancel/9", `{"identity":"alice@example.com","passkey":"1111"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.EqualValues(t, 9, f.gotSlotID)
	assert.Equal(t, "alice@example.com", f.gotID)
	assert.Equal(t, "1111", f.gotPasskey)
}

func TestCancel_BadSlotID(t *testing.T) {
	rec := do(slotServer(&fakeReservations{}, zap.NewNop()), http.MethodDelete, "/v1/cancel/0", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupBookings(t *testing.T) {
	f := &fakeReservations{bookings: []model.Booking{
		{SlotID: 9, Room: 1, Date: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), Hour: 14, Position: 0, QueueLength: 2, HolderName: "Bob"},
		{SlotID: 10, Room: 1, Date: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), Hour: 9, Position: 2, QueueLength: 3, HolderName: "Bob"},
	}}
	rec := do(slotServer(f, zap.NewNop()), http.MethodGet, "/v1/bookings?identity=5550000002", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5550000002", f.gotID)

	list := decode(t, rec)["bookings"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "holding", list[0].(map[string]any)["status"])
	assert.Equal(t, "waiting", list[1].(map[string]any)["status"])
	assert.EqualValues(t, 900, list[1].(map[string]any)["time"])
	assert.NotContains(t, rec.Body.String(), "passkey")
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		kind   service.Kind
		status int
	}{
		{service.KindInvalidRequest, http.StatusBadRequest},
		{service.KindNotFound, http.StatusNotFound},
		{service.KindConflict, http.StatusConflict},
		{service.KindNeedsBookingFirst, http.StatusConflict},
		{service.KindQueueFull, http.StatusConflict},
		{service.KindBusy, http.StatusServiceUnavailable},
		{service.KindUnauthorized, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			f := &fakeReservations{err: &service.Error{Kind: tc.kind, Message: "nope", Guidance: "try this"}}
			rec := do(slotServer(f, zap.NewNop()), http.MethodPost, "/v1/book/1", `{"date":"161026","time":1400}`)
			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "nope", body["error"])
			assert.Equal(t, "try this", body["guidance"])
			assert.Equal(t, tc.kind.String(), body["code"])
			if tc.kind == service.KindBusy {
				assert.Equal(t, retryAfterSeconds, rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestErrorMapping_InternalIsMasked(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	f := &fakeReservations{err: &service.Error{Kind: service.KindInternal, Message: "failed to update slot",
		Err: errors.New("Error 1146: Table 'rooms.slots' doesn't exist")}}
	rec := do(slotServer(f, zap.New(core)), http.MethodDelete, "/v1/cancel/3", `{"identity":"a@b.co","passkey":"1111"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "1146")
	assert.NotContains(t, rec.Body.String(), "update slot")
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].ContextMap()["error"], "1146")
}

func TestErrorMapping_ForeignErrorIsInternal(t *testing.T) {
	f := &fakeReservations{err: errors.New("boom")}
	rec := do(slotServer(f, zap.NewNop()), http.MethodGet, "/v1/bookings?identity=a@b.co", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeGrid struct {
	rep       service.CycleReport
	refreshed time.Time
	cutoff    time.Time
	err       error
	calls     []string
}

func (g *fakeGrid) RunCycle(context.Context) (service.CycleReport, error) {
	g.calls = append(g.calls, "run")
	return g.rep, g.err
}

func (g *fakeGrid) RefreshWindow(context.Context) (int, error) {
	g.calls = append(g.calls, "window")
	return 26, g.err
}

func (g *fakeGrid) RefreshDay(_ context.Context, day time.Time) (int, error) {
	g.calls = append(g.calls, "day")
	g.refreshed = day
	return 13, g.err
}

func (g *fakeGrid) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	g.calls = append(g.calls, "purge")
	g.cutoff = cutoff
	return 4, g.err
}

func (g *fakeGrid) Backfill(context.Context) (int, error) {
	g.calls = append(g.calls, "backfill")
	return 104, g.err
}

func adminServer(g *fakeGrid) *echo.Echo {
	h := NewAdminGridHandler(g, zap.NewNop(), time.UTC)
	h.now = func() time.Time { return time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC) }
	e := echo.New()
	e.POST("/run", h.Run)
	e.POST("/refresh", h.Refresh)
	e.POST("/purge", h.Purge)
	e.POST("/backfill", h.Backfill)
	return e
}

func TestAdminGrid(t *testing.T) {
	g := &fakeGrid{rep: service.CycleReport{
		Day: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), Inserted: 26,
		Cutoff: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), Purged: 26,
	}}
	e := adminServer(g)

	rec := do(e, http.MethodPost, "/run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"day":"181026","inserted":26,"cutoff":"151026","purged":26}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"inserted":26}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/refresh?date=171026", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, g.refreshed.Equal(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)))

	rec = do(e, http.MethodPost, "/purge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, g.cutoff.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)))

	rec = do(e, http.MethodPost, "/backfill", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"inserted":104}`, rec.Body.String())

	assert.Equal(t, []string{"run", "window", "day", "purge", "backfill"}, g.calls)
}

func TestAdminGrid_Rejects(t *testing.T) {
	g := &fakeGrid{}
	e := adminServer(g)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/refresh?date=2026-10-17", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/purge?before=161026", "").Code, "future cutoff")
	assert.Empty(t, g.calls)

	g.err = errors.New("deadlock")
	rec := do(e, http.MethodPost, "/run", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deadlock")
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealthAndReady(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health)
	e.GET("/up", Ready(pinger{}))
	e.GET("/down", Ready(pinger{err: errors.New("refused")}))

	rec := do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/up", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/down", "").Code)
}
