package model

import "time"

// WaitlistEntry is one party's claim on a slot.  Position 0 is the party
// holding the slot; positions 1..N are waiting in order.  For a given slot
// the positions always form the contiguous range 0..QueueLength-1.
type WaitlistEntry struct {
	ID          uint64    // waitlist_entries.id
	SlotID      uint64    // waitlist_entries.slot_id
	HolderName  string    // waitlist_entries.holder_name
	HolderPhone string    // waitlist_entries.holder_phone (10 digits)
	HolderEmail string    // waitlist_entries.holder_email
	PasskeyHash string    // waitlist_entries.passkey_hash (bcrypt)
	Position    int       // waitlist_entries.position
	CreatedAt   time.Time // waitlist_entries.created_at
}

// Booking is a waitlist entry joined with the slot cell it belongs to.  It is
// the read model returned when a party looks up its own reservations.
type Booking struct {
	EntryID     uint64
	SlotID      uint64
	Room        int
	Date        time.Time
	Hour        int
	Booked      bool
	QueueLength int
	HolderName  string
	HolderPhone string
	HolderEmail string
	Position    int
	CreatedAt   time.Time
}
