package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/room-slot-reservation/internal/model"
)

// Tx is the set of row operations available inside one reservation or
// maintenance transaction.  Lock methods never wait: they either return the
// locked row, ErrNotFound, or ErrLocked.
type Tx interface {
	TryLockSlotByCell(ctx context.Context, room int, date time.Time, hour int) (*model.Slot, error)
	TryLockSlotByID(ctx context.Context, id uint64) (*model.Slot, error)
	TryLockEntry(ctx context.Context, slotID uint64, id model.Identity) (*model.WaitlistEntry, error)
	PartyExists(ctx context.Context, slotID uint64, email, phone string) (bool, error)
	EntriesForSlot(ctx context.Context, slotID uint64) ([]model.WaitlistEntry, error)
	UpdateSlot(ctx context.Context, s *model.Slot) error
	InsertEntry(ctx context.Context, e *model.WaitlistEntry) error
	DeleteEntry(ctx context.Context, id uint64) error
	ShiftPositionsAfter(ctx context.Context, slotID uint64, position int) error

	InsertSlotIfAbsent(ctx context.Context, room int, date time.Time, hour int) (bool, error)
	DeleteSlotsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store runs transactions over the slot and waitlist repositories and serves
// the lock-free read queries.
type Store struct {
	db       *sql.DB
	Slots    *SlotRepo
	Waitlist *WaitlistRepo
}

// NewStore returns a Store bound to db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, Slots: NewSlotRepo(db), Waitlist: NewWaitlistRepo(db)}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// WithinTx begins a transaction, runs fn and commits when fn returns nil.
// Any error from fn, or a panic, rolls the whole transaction back.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, &sqlTx{tx: tx, slots: s.Slots, waitlist: s.Waitlist}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ListSlots returns slots matching f.
func (s *Store) ListSlots(ctx context.Context, f SlotFilter) ([]model.Slot, error) {
	return s.Slots.List(ctx, f)
}

// BookingsByIdentity returns the party's entries with their slots.
func (s *Store) BookingsByIdentity(ctx context.Context, id model.Identity) ([]model.Booking, error) {
	return s.Waitlist.BookingsByIdentity(ctx, id)
}

// sqlTx binds the repositories to one *sql.Tx.
type sqlTx struct {
	tx       *sql.Tx
	slots    *SlotRepo
	waitlist *WaitlistRepo
}

func (t *sqlTx) TryLockSlotByCell(ctx context.Context, room int, date time.Time, hour int) (*model.Slot, error) {
	return t.slots.TryLockByCellTx(ctx, t.tx, room, date, hour)
}

func (t *sqlTx) TryLockSlotByID(ctx context.Context, id uint64) (*model.Slot, error) {
	return t.slots.TryLockByIDTx(ctx, t.tx, id)
}

func (t *sqlTx) TryLockEntry(ctx context.Context, slotID uint64, id model.Identity) (*model.WaitlistEntry, error) {
	return t.waitlist.TryLockByIdentityTx(ctx, t.tx, slotID, id)
}

func (t *sqlTx) PartyExists(ctx context.Context, slotID uint64, email, phone string) (bool, error) {
	return t.waitlist.PartyExistsTx(ctx, t.tx, slotID, email, phone)
}

func (t *sqlTx) EntriesForSlot(ctx context.Context, slotID uint64) ([]model.WaitlistEntry, error) {
	return t.waitlist.ListBySlotTx(ctx, t.tx, slotID)
}

func (t *sqlTx) UpdateSlot(ctx context.Context, s *model.Slot) error {
	return t.slots.UpdateStateTx(ctx, t.tx, s)
}

func (t *sqlTx) InsertEntry(ctx context.Context, e *model.WaitlistEntry) error {
	return t.waitlist.InsertTx(ctx, t.tx, e)
}

func (t *sqlTx) DeleteEntry(ctx context.Context, id uint64) error {
	return t.waitlist.DeleteTx(ctx, t.tx, id)
}

func (t *sqlTx) ShiftPositionsAfter(ctx context.Context, slotID uint64, position int) error {
	return t.waitlist.ShiftDownAfterTx(ctx, t.tx, slotID, position)
}

func (t *sqlTx) InsertSlotIfAbsent(ctx context.Context, room int, date time.Time, hour int) (bool, error) {
	return t.slots.InsertIfAbsentTx(ctx, t.tx, room, date, hour)
}

func (t *sqlTx) DeleteSlotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.slots.DeleteBeforeTx(ctx, t.tx, cutoff)
}
