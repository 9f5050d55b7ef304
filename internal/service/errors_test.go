package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/room-slot-reservation/internal/repository"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindQueueFull, Message: "full"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, KindQueueFull, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := internal("failed to record booking", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal: failed to record booking: disk full", err.Error())
}

func TestNormalize(t *testing.T) {
	assert.NoError(t, normalize(nil, "book"))

	se := &Error{Kind: KindConflict, Message: "taken"}
	assert.Same(t, se, normalize(se, "book"))

	deadline := fmt.Errorf("commit: %w", context.DeadlineExceeded)
	assert.ErrorIs(t, normalize(deadline, "book"), ErrBusy)

	other := normalize(errors.New("boom"), "cancel")
	require.ErrorIs(t, other, ErrInternal)
	assert.Contains(t, other.Error(), "cancel failed")
}

func TestLockErr(t *testing.T) {
	nf := &Error{Kind: KindNotFound, Message: "slot not found"}
	assert.ErrorIs(t, lockErr(fmt.Errorf("%w: slot:1", repository.ErrLocked), "slot", nf), ErrBusy)
	assert.Same(t, nf, lockErr(repository.ErrNotFound, "slot", nf))
	assert.ErrorIs(t, lockErr(errors.New("io"), "slot", nf), ErrInternal)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "needs_booking_first", KindNeedsBookingFirst.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestCheckWindowAndHours(t *testing.T) {
	p := testPolicy()
	assert.NoError(t, p.checkWindow(today, today))
	assert.NoError(t, p.checkWindow(today.AddDate(0, 0, 3), today))
	assert.ErrorIs(t, p.checkWindow(today.AddDate(0, 0, 4), today), ErrInvalidRequest)

	h, err := p.hourFromHHMM(700)
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	h, err = p.hourFromHHMM(1859)
	require.NoError(t, err)
	assert.Equal(t, 18, h)
	_, err = p.hourFromHHMM(1930)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCivilDate(t *testing.T) {
	ny := time.FixedZone("UTC-4", -4*3600)
	late := time.Date(2026, 10, 16, 2, 0, 0, 0, time.UTC) // still the 15th at UTC-4
	assert.True(t, civilDate(late, ny).Equal(today))
	assert.True(t, civilDate(late, time.UTC).Equal(tomorrow))
}

func TestValidatePasskey(t *testing.T) {
	assert.NoError(t, validatePasskey("0042"))
	for _, bad := range []string{"", "123", "12345", "12a4", "+123", "1.23"} {
		assert.ErrorIs(t, validatePasskey(bad), ErrInvalidRequest, bad)
	}
}

func TestHolderValidate_ReportsFirstField(t *testing.T) {
	err := Holder{Name: "", Phone: "1", Email: "x", Passkey: "x"}.validate()
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindInvalidRequest, se.Kind)
	assert.Contains(t, se.Message, "name")

	err = Holder{Name: "Ann", Phone: "5550000001", Email: "ann@example.com", Passkey: "12a4"}.validate()
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "passkey must be 4 digits", se.Message)

	assert.NoError(t, Holder{Name: "Ann", Phone: "5550000001", Email: "ann@example.com", Passkey: "1234"}.validate())
}

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity(" 5551234567 ")
	require.NoError(t, err)
	assert.Equal(t, "5551234567", id.Phone)

	id, err = ParseIdentity("Bob@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", id.Email)

	for _, bad := range []string{"", "555123456", "12345678901", "-555123456", "555-123-45", "bob.example.com", "bob@", strings.Repeat("b", 60) + "@example.com"} {
		_, err := ParseIdentity(bad)
		assert.ErrorIs(t, err, ErrInvalidRequest, bad)
	}
}
