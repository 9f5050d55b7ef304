package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/room-slot-reservation/internal/model"
)

// WaitlistRepo provides data access to the waitlist_entries table.  Every
// entry belongs to exactly one slot; callers must hold the slot lock before
// touching its entries so the position sequence stays contiguous.
type WaitlistRepo struct {
	db *sql.DB
}

// NewWaitlistRepo returns a new WaitlistRepo bound to the given database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

const entryColumns = `id, slot_id, holder_name, holder_phone, holder_email, passkey_hash, position, created_at`

func scanEntry(row rowScanner) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	if err := row.Scan(&e.ID, &e.SlotID, &e.HolderName, &e.HolderPhone, &e.HolderEmail, &e.PasskeyHash, &e.Position, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func identityClause(id model.Identity) (string, string) {
	if id.IsEmail() { // emails are stored lower-cased, so equality is enough
		return "holder_email = ?", id.Email
	}
	return "holder_phone = ?", id.Phone
}

// TryLockByIdentityTx locks the entry of slotID owned by id without waiting.
// It returns ErrNotFound when the party has no entry on the slot and
// ErrLocked when another transaction holds the row.
func (r *WaitlistRepo) TryLockByIdentityTx(ctx context.Context, tx *sql.Tx, slotID uint64, id model.Identity) (*model.WaitlistEntry, error) {
	clause, arg := identityClause(id)
	q := `SELECT ` + entryColumns + ` FROM waitlist_entries WHERE slot_id = ? AND ` + clause + ` ORDER BY position LIMIT 1 FOR UPDATE NOWAIT`
	e, err := scanEntry(tx.QueryRowContext(ctx, q, slotID, arg))
	if err != nil {
		return nil, translate(err) // 3572 when another cancel holds the row
	}
	return e, nil
}

// PartyExistsTx reports whether the slot already has an entry with the given
// email or phone.
func (r *WaitlistRepo) PartyExistsTx(ctx context.Context, tx *sql.Tx, slotID uint64, email, phone string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM waitlist_entries WHERE slot_id = ? AND (holder_email = ? OR holder_phone = ?)`,
		slotID, email, phone).Scan(&n)
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

// ListBySlotTx returns all entries of a slot ordered by position.
func (r *WaitlistRepo) ListBySlotTx(ctx context.Context, tx *sql.Tx, slotID uint64) ([]model.WaitlistEntry, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM waitlist_entries WHERE slot_id = ? ORDER BY position`, slotID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []model.WaitlistEntry // nil when the slot has no entries
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertTx adds an entry and populates its generated ID.  CreatedAt is set
// by the caller so the stored and returned values agree.
func (r *WaitlistRepo) InsertTx(ctx context.Context, tx *sql.Tx, e *model.WaitlistEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO waitlist_entries (slot_id, holder_name, holder_phone, holder_email, passkey_hash, position, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SlotID, e.HolderName, e.HolderPhone, e.HolderEmail, e.PasskeyHash, e.Position,
		e.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId() // AUTO_INCREMENT id of the new entry
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// DeleteTx removes a single entry by id.
func (r *WaitlistRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM waitlist_entries WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 { // already gone: another tx or a stale id
		return ErrNotFound
	}
	return nil
}

// ShiftDownAfterTx moves every entry behind position one place forward.  The
// entry at position must already be deleted; rows are updated in ascending
// order so UNIQUE(slot_id, position) is never violated mid-statement.
func (r *WaitlistRepo) ShiftDownAfterTx(ctx context.Context, tx *sql.Tx, slotID uint64, position int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET position = position - 1 WHERE slot_id = ? AND position > ? ORDER BY position ASC`,
		slotID, position)
	return translate(err)
}

// BookingsByIdentity returns every entry of the party joined with its slot,
// ordered by slot date and hour.  The passkey hash is not selected.
func (r *WaitlistRepo) BookingsByIdentity(ctx context.Context, id model.Identity) ([]model.Booking, error) {
	clause, arg := identityClause(id)
	q := `SELECT w.id, s.id, s.room, s.slot_date, s.hour, s.booked, s.queue_length,
	             w.holder_name, w.holder_phone, w.holder_email, w.position, w.created_at
	      FROM waitlist_entries w
	      JOIN slots s ON s.id = w.slot_id
	      WHERE w.` + clause + `
	      ORDER BY s.slot_date, s.hour, s.room`
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.EntryID, &b.SlotID, &b.Room, &b.Date, &b.Hour, &b.Booked, &b.QueueLength,
			&b.HolderName, &b.HolderPhone, &b.HolderEmail, &b.Position, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
