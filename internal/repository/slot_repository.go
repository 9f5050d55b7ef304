package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/room-slot-reservation/internal/model"
)

// sqlDate is the layout DATE columns are written with.  Dates are passed as
// strings so the driver never shifts them across time zones.
const sqlDate = "2006-01-02"

// SlotRepo provides data access to the slots table.  Methods with a Tx
// suffix run inside the caller's transaction; the caller commits or rolls
// back.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a new SlotRepo bound to the given database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

// SlotFilter selects slots for listing.  From and To are inclusive dates;
// Hour narrows the result to one hour of the day when set.
type SlotFilter struct {
	Room int
	From time.Time
	To   time.Time
	Hour *int
}

const slotColumns = `id, room, slot_date, hour, booked, queue_length, holder`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*model.Slot, error) {
	var s model.Slot
	var holder sql.NullString
	if err := row.Scan(&s.ID, &s.Room, &s.Date, &s.Hour, &s.Booked, &s.QueueLength, &holder); err != nil {
		return nil, err
	}
	if holder.Valid {
		h := holder.String
		s.Holder = &h
	}
	return &s, nil
}

// TryLockByCellTx locks the slot at (room, date, hour) without waiting.  It
// returns ErrNotFound when no such slot exists and ErrLocked when another
// transaction holds the row.
func (r *SlotRepo) TryLockByCellTx(ctx context.Context, tx *sql.Tx, room int, date time.Time, hour int) (*model.Slot, error) {
	q := `SELECT ` + slotColumns + ` FROM slots WHERE room = ? AND slot_date = ? AND hour = ? FOR UPDATE NOWAIT`
	s, err := scanSlot(tx.QueryRowContext(ctx, q, room, date.Format(sqlDate), hour))
	if err != nil {
		return nil, translate(err) // no row -> ErrNotFound, NOWAIT miss -> ErrLocked
	}
	return s, nil
}

// TryLockByIDTx locks the slot with the given id without waiting.
func (r *SlotRepo) TryLockByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Slot, error) {
	q := `SELECT ` + slotColumns + ` FROM slots WHERE id = ? FOR UPDATE NOWAIT`
	s, err := scanSlot(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// UpdateStateTx writes the mutable booking state of a slot the caller has
// locked in tx.
func (r *SlotRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, s *model.Slot) error {
	var holder any // stays nil so the column is written as NULL
	if s.Holder != nil {
		holder = *s.Holder
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE slots SET booked = ?, queue_length = ?, holder = ? WHERE id = ?`,
		s.Booked, s.QueueLength, holder, s.ID)
	return translate(err)
}

// InsertIfAbsentTx creates an unbooked slot for (room, date, hour) unless the
// cell already exists.  It reports whether a row was inserted.  Existing rows
// are left untouched, so repeated calls are harmless.
func (r *SlotRepo) InsertIfAbsentTx(ctx context.Context, tx *sql.Tx, room int, date time.Time, hour int) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO slots (room, slot_date, hour, booked, queue_length) VALUES (?, ?, ?, FALSE, 0)
		 ON DUPLICATE KEY UPDATE id = id`,
		room, date.Format(sqlDate), hour)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil // ON DUPLICATE KEY with id = id reports 0 rows for an existing cell
}

// DeleteBeforeTx removes every slot dated strictly before cutoff.  Waitlist
// entries of those slots go with them through the foreign key cascade.
func (r *SlotRepo) DeleteBeforeTx(ctx context.Context, tx *sql.Tx, cutoff time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE slot_date < ?`, cutoff.Format(sqlDate))
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

// List returns the slots matching f ordered by date and hour.  It does not
// lock and reads committed state only.
func (r *SlotRepo) List(ctx context.Context, f SlotFilter) ([]model.Slot, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + slotColumns + ` FROM slots WHERE room = ? AND slot_date BETWEEN ? AND ?`)
	args := []any{f.Room, f.From.Format(sqlDate), f.To.Format(sqlDate)}
	if f.Hour != nil { // narrow to a single hour when the caller asked for one
		b.WriteString(` AND hour = ?`)
		args = append(args, *f.Hour)
	}
	b.WriteString(` ORDER BY slot_date, hour`)

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Slot, 0) // empty, not nil, so cached listings round-trip as []
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
