package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/room-slot-reservation/internal/model"
)

// validate is shared; validator caches struct metadata per type.
var validate = validator.New()

const (
	phoneRule   = "len=10,number"
	emailRule   = "email,max=64"
	passkeyRule = "required,len=4,number"
)

// Holder carries the party fields supplied with a book or enqueue request.
type Holder struct {
	Name    string `validate:"required,max=64"`
	Phone   string `validate:"required,len=10,number"`
	Email   string `validate:"required,email,max=64"`
	Passkey string `validate:"required,len=4,number"`
}

func (h Holder) normalized() Holder {
	return Holder{
		Name:    strings.TrimSpace(h.Name),
		Phone:   strings.TrimSpace(h.Phone),
		Email:   strings.ToLower(strings.TrimSpace(h.Email)),
		Passkey: strings.TrimSpace(h.Passkey),
	}
}

// fieldMessages holds the client-facing message per Holder field.
var fieldMessages = map[string]string{
	"Name":    "name is required and must be at most 64 characters",
	"Phone":   "phone must be exactly 10 digits",
	"Email":   "email address is not valid",
	"Passkey": "passkey must be 4 digits",
}

func (h Holder) validate() error {
	err := validate.Struct(h)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return internal("failed to validate request", err)
	}
	// report the first failing field only, in declaration order
	if msg, ok := fieldMessages[verrs[0].Field()]; ok {
		return invalid(msg)
	}
	return invalid(fmt.Sprintf("%s is not valid", strings.ToLower(verrs[0].Field())))
}

// ParseIdentity accepts a 10-digit phone number or an email address.
func ParseIdentity(raw string) (model.Identity, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return model.Identity{}, invalid("identity is required")
	case validate.Var(s, phoneRule) == nil:
		return model.Identity{Phone: s}, nil
	case validate.Var(s, emailRule) == nil:
		return model.Identity{Email: strings.ToLower(s)}, nil
	}
	return model.Identity{}, invalid("identity must be a 10 digit phone number or an email address")
}

func validatePasskey(p string) error {
	if validate.Var(p, passkeyRule) != nil {
		return invalid("passkey must be 4 digits")
	}
	return nil
}

// civilDate truncates t to its calendar date in loc and returns that date as
// midnight UTC, the form slot dates are stored and compared in.
func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDate parses a ddmmyy date.  today is used for the guidance example.
func parseDate(raw string, today time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	d, err := time.Parse(model.DateFormat, s)
	if err != nil || len(s) != 6 {
		return time.Time{}, invalidWithGuidance(
			"date must be formatted as ddmmyy, no letters or special characters allowed",
			"for example, today's date is formatted as "+today.Format(model.DateFormat))
	}
	return d, nil
}

// hourFromHHMM checks an HHMM time of day against the opening window and
// truncates it to the hour.
func (p Policy) hourFromHHMM(t int) (int, error) {
	if t < p.OpeningHour*100 || t > p.ClosingHour*100 || t%100 >= 60 {
		return 0, invalid(fmt.Sprintf("time must be an integer between %04d and %04d", p.OpeningHour*100, p.ClosingHour*100))
	}
	return t / 100, nil
}

func (p Policy) parseHHMM(raw string) (int, error) {
	t, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalid(fmt.Sprintf("time must be an integer between %04d and %04d", p.OpeningHour*100, p.ClosingHour*100))
	}
	return p.hourFromHHMM(t)
}

// checkWindow verifies that date lies in [today, today+horizon].
func (p Policy) checkWindow(date, today time.Time) error {
	last := today.AddDate(0, 0, p.HorizonDays)
	if date.Before(today) || date.After(last) {
		return invalidWithGuidance(
			"date is outside the booking window",
			fmt.Sprintf("slots can be booked from %s until %s", today.Format(model.DateFormat), last.Format(model.DateFormat)))
	}
	return nil
}
