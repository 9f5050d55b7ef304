package model

import "time"

// Promotion describes a waiting party that moved to position 0 after the
// previous holder cancelled.  It is handed to the notification hook once the
// cancelling transaction has committed.
type Promotion struct {
	SlotID      uint64    `json:"slot_id"`
	Room        int       `json:"room"`
	Date        string    `json:"date"` // ddmmyy
	Hour        int       `json:"hour"`
	HolderName  string    `json:"holder_name"`
	HolderEmail string    `json:"holder_email"`
	HolderPhone string    `json:"holder_phone"`
	PromotedAt  time.Time `json:"promoted_at"`
}
