package service

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for callers.  The transport layer maps each kind
// to a response status; only Busy is safe to retry automatically.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidRequest
	KindNotFound
	KindConflict
	KindNeedsBookingFirst
	KindQueueFull
	KindBusy
	KindUnauthorized
)

var kindNames = map[Kind]string{
	KindInternal:          "internal",
	KindInvalidRequest:    "invalid_request",
	KindNotFound:          "not_found",
	KindConflict:          "conflict",
	KindNeedsBookingFirst: "needs_booking_first",
	KindQueueFull:         "queue_full",
	KindBusy:              "busy",
	KindUnauthorized:      "unauthorized",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the error type returned by every service operation.  Message is
// safe to show to the caller; Guidance optionally tells the caller how to fix
// the request.  Err keeps the underlying cause for server-side logs.
type Error struct {
	Kind     Kind
	Message  string
	Guidance string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrBusy) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInternal          = &Error{Kind: KindInternal, Message: "internal error"}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "conflict"}
	ErrNeedsBookingFirst = &Error{Kind: KindNeedsBookingFirst, Message: "slot is not booked"}
	ErrQueueFull         = &Error{Kind: KindQueueFull, Message: "queue full"}
	ErrBusy              = &Error{Kind: KindBusy, Message: "busy"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
)

func invalid(msg string) *Error { return &Error{Kind: KindInvalidRequest, Message: msg} }

func invalidWithGuidance(msg, guidance string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg, Guidance: guidance}
}

func internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

func busy(err error) *Error {
	return &Error{Kind: KindBusy, Message: "slot is being modified by another request, retry shortly", Err: err}
}

// KindOf reports the kind of err.  Errors that did not originate in this
// package are internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// normalize converts errors escaping a transaction into *Error.  A blown
// transaction deadline is reported as Busy: the lock holder may simply have
// been slow, and a retry is safe because the transaction rolled back.
func normalize(err error, op string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return busy(err)
	}
	return internal(op+" failed", err)
}
