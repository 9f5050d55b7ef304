package model

import "time"

// Slot is one bookable (room, date, hour) cell of the grid.  The cell is
// unique per room, date and hour; ID is a surrogate key.
//
// Fields:
//
//	ID          – primary key identifier.
//	Room        – room the cell belongs to.
//	Date        – civil date of the cell, midnight UTC.
//	Hour        – hour of day (0–23) the cell starts at.
//	Booked      – whether a party currently holds the slot.
//	QueueLength – number of waitlist entries, holder included.
//	Holder      – email of the party at position 0 (nil when unbooked).
//
// QueueLength == 0 implies !Booked, and QueueLength never exceeds the
// configured maximum.
type Slot struct {
	ID          uint64    // slots.id
	Room        int       // slots.room
	Date        time.Time // slots.slot_date
	Hour        int       // slots.hour
	Booked      bool      // slots.booked
	QueueLength int       // slots.queue_length
	Holder      *string   // slots.holder (nullable)
}

// DateFormat is the ddmmyy form dates take at the API boundary.
const DateFormat = "020106"

// StartsAt returns the instant the slot begins in loc.
func (s Slot) StartsAt(loc *time.Location) time.Time {
	return time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), s.Hour, 0, 0, 0, loc)
}

// HHMM renders the slot hour in the boundary time form, e.g. 1400.
func (s Slot) HHMM() int { return s.Hour * 100 }
