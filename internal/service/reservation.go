// Package service implements the reservation engine and the slot-grid
// maintainer.  All coordination between concurrent requests happens through
// non-blocking row locks taken inside a single store transaction, always in
// the order slot row first, then waitlist row.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/room-slot-reservation/internal/config"
	"github.com/iliyamo/room-slot-reservation/internal/model"
	"github.com/iliyamo/room-slot-reservation/internal/repository"
	"github.com/iliyamo/room-slot-reservation/internal/utils"
)

// Store is the persistence the engine and maintainer run against.
// *repository.Store satisfies it.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
	ListSlots(ctx context.Context, f repository.SlotFilter) ([]model.Slot, error)
	BookingsByIdentity(ctx context.Context, id model.Identity) ([]model.Booking, error)
}

// SlotCache is a best-effort byte cache.  Implementations never return
// errors: a failure is a miss on Lookup and false on Store.
type SlotCache interface {
	Lookup(ctx context.Context, key string) ([]byte, bool)
	Store(ctx context.Context, key string, val []byte, ttl time.Duration) bool
}

// Notifier receives promotions after the cancelling transaction commits.
type Notifier interface {
	NotifyPromotion(ctx context.Context, p model.Promotion) error
}

// Policy is the opening window, booking horizon and queue bound the engine
// enforces.
type Policy struct {
	Rooms          []int
	OpeningHour    int
	ClosingHour    int
	HorizonDays    int
	MaxQueueLength int
	PasskeyCost    int
	TxTimeout      time.Duration
	CacheTTL       time.Duration
	Location       *time.Location
}

// PolicyFromConfig copies the reservation settings out of cfg.
func PolicyFromConfig(cfg config.Config, cache config.CacheConfig) Policy {
	return Policy{
		Rooms:          cfg.Rooms,
		OpeningHour:    cfg.OpeningHour,
		ClosingHour:    cfg.ClosingHour,
		HorizonDays:    cfg.FutureWindowSize,
		MaxQueueLength: cfg.MaxQueueLength,
		PasskeyCost:    cfg.PasskeyCost,
		TxTimeout:      cfg.TxTimeout,
		CacheTTL:       cache.TTL,
		Location:       cfg.Location,
	}
}

func (p Policy) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// ReservationService books slots, manages waitlists and serves slot and
// booking lookups.
type ReservationService struct {
	store    Store
	cache    SlotCache
	notifier Notifier
	policy   Policy
	log      *zap.Logger
	now      func() time.Time
}

// Option customises a ReservationService.
type Option func(*ReservationService)

// WithCache enables the read-path cache for slot listings.
func WithCache(c SlotCache) Option { return func(s *ReservationService) { s.cache = c } }

// WithNotifier sets the promotion hook.
func WithNotifier(n Notifier) Option { return func(s *ReservationService) { s.notifier = n } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *ReservationService) { s.now = now } }

// NewReservationService wires the engine.  store and log must be non-nil.
func NewReservationService(store Store, policy Policy, log *zap.Logger, opts ...Option) *ReservationService {
	if store == nil || log == nil {
		panic("nil dependency passed to NewReservationService")
	}
	s := &ReservationService{store: store, policy: policy, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ReservationService) today() time.Time { return civilDate(s.now(), s.policy.loc()) }

// withinTx runs fn in a store transaction bounded by the policy timeout.
func (s *ReservationService) withinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if s.policy.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.TxTimeout)
		defer cancel()
	}
	return s.store.WithinTx(ctx, fn)
}

// lockErr translates a failed slot/entry lock attempt.
func lockErr(err error, what string, notFound *Error) error {
	switch {
	case errors.Is(err, repository.ErrLocked):
		return busy(err)
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	}
	return internal("failed to lock "+what, err)
}

// cell resolves and validates the (date, time) pair of a book or enqueue
// request.
func (s *ReservationService) cell(room int, date string, timeOfDay int) (time.Time, int, error) {
	if room <= 0 {
		return time.Time{}, 0, invalid("room id must be positive")
	}
	today := s.today()
	d, err := parseDate(date, today)
	if err != nil {
		return time.Time{}, 0, err
	}
	if err := s.policy.checkWindow(d, today); err != nil {
		return time.Time{}, 0, err
	}
	hour, err := s.policy.hourFromHHMM(timeOfDay)
	if err != nil {
		return time.Time{}, 0, err
	}
	return d, hour, nil
}

// prepare validates a book/enqueue request and hashes the passkey.  It runs
// before any transaction so no lock is held while bcrypt works.
func (s *ReservationService) prepare(room int, date string, timeOfDay int, h Holder) (time.Time, int, Holder, string, error) {
	h = h.normalized()
	d, hour, err := s.cell(room, date, timeOfDay)
	if err != nil {
		return time.Time{}, 0, h, "", err
	}
	if err := h.validate(); err != nil {
		return time.Time{}, 0, h, "", err
	}
	hash, err := utils.HashPasskey(h.Passkey, s.policy.PasskeyCost)
	if err != nil {
		return time.Time{}, 0, h, "", internal("failed to secure passkey", err)
	}
	return d, hour, h, hash, nil
}

// Book reserves the slot at (room, date, timeOfDay) for h.  The returned slot
// reflects the committed state.
func (s *ReservationService) Book(ctx context.Context, room int, date string, timeOfDay int, h Holder) (model.Slot, error) {
	d, hour, h, hash, err := s.prepare(room, date, timeOfDay, h)
	if err != nil {
		return model.Slot{}, err
	}

	var out model.Slot
	err = s.withinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		slot, err := tx.TryLockSlotByCell(ctx, room, d, hour)
		if err != nil {
			return lockErr(err, "slot", &Error{Kind: KindNotFound, Message: "slot not found"})
		}
		if slot.Booked {
			return &Error{Kind: KindConflict, Message: "Slot Unavailable",
				Guidance: "join the waitlist for this slot instead"}
		}
		if slot.QueueLength != 0 {
			return internal("slot state inconsistent", fmt.Errorf("slot %d unbooked with queue length %d", slot.ID, slot.QueueLength))
		}

		entry := &model.WaitlistEntry{
			SlotID:      slot.ID,
			HolderName:  h.Name,
			HolderPhone: h.Phone,
			HolderEmail: h.Email,
			PasskeyHash: hash,
			Position:    0,
			CreatedAt:   s.now().UTC(),
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return internal("failed to record booking", err)
		}
		email := h.Email
		slot.Booked = true
		slot.QueueLength = 1
		slot.Holder = &email
		if err := tx.UpdateSlot(ctx, slot); err != nil {
			return internal("failed to update slot", err)
		}
		out = *slot
		return nil
	})
	if err != nil {
		s.logFailure("book", err, zap.Int("room", room), zap.String("date", date), zap.Int("time", timeOfDay))
		return model.Slot{}, normalize(err, "book")
	}
	s.log.Info("slot booked", zap.Uint64("slot_id", out.ID), zap.Int("room", room),
		zap.Time("date", d), zap.Int("hour", hour))
	return out, nil
}

// Enqueue appends h to the waitlist of an already booked slot.  It returns
// the committed slot and the position assigned to h.
func (s *ReservationService) Enqueue(ctx context.Context, room int, date string, timeOfDay int, h Holder) (model.Slot, int, error) {
	d, hour, h, hash, err := s.prepare(room, date, timeOfDay, h)
	if err != nil {
		return model.Slot{}, 0, err
	}

	var out model.Slot
	var position int
	err = s.withinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		slot, err := tx.TryLockSlotByCell(ctx, room, d, hour)
		if err != nil {
			return lockErr(err, "slot", &Error{Kind: KindNotFound, Message: "slot not found"})
		}
		if !slot.Booked {
			return &Error{Kind: KindNeedsBookingFirst, Message: "slot has no active reservation",
				Guidance: fmt.Sprintf("book the slot instead: POST /v1/book/%d", room)}
		}
		if slot.QueueLength >= s.policy.MaxQueueLength {
			return &Error{Kind: KindQueueFull, Message: "waitlist for this slot is full",
				Guidance: fmt.Sprintf("at most %d parties can queue for a slot", s.policy.MaxQueueLength)}
		}
		exists, err := tx.PartyExists(ctx, slot.ID, h.Email, h.Phone)
		if err != nil {
			return internal("failed to check waitlist", err)
		}
		if exists {
			return &Error{Kind: KindConflict, Message: "this email or phone is already on the slot's waitlist"}
		}

		entry := &model.WaitlistEntry{
			SlotID:      slot.ID,
			HolderName:  h.Name,
			HolderPhone: h.Phone,
			HolderEmail: h.Email,
			PasskeyHash: hash,
			Position:    slot.QueueLength,
			CreatedAt:   s.now().UTC(),
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return internal("failed to record waitlist entry", err)
		}
		// holder keeps naming the position-0 party; only the length grows.
		slot.QueueLength++
		if err := tx.UpdateSlot(ctx, slot); err != nil {
			return internal("failed to update slot", err)
		}
		out = *slot
		position = entry.Position
		return nil
	})
	if err != nil {
		s.logFailure("enqueue", err, zap.Int("room", room), zap.String("date", date), zap.Int("time", timeOfDay))
		return model.Slot{}, 0, normalize(err, "enqueue")
	}
	s.log.Info("party enqueued", zap.Uint64("slot_id", out.ID), zap.Int("position", position),
		zap.Int("queue_length", out.QueueLength))
	return out, position, nil
}

// Cancel removes the entry of identity from slotID after checking passkey.
// Parties behind the removed entry move up one place; when the holder
// cancels, the next party is promoted and the slot's holder follows it.
func (s *ReservationService) Cancel(ctx context.Context, slotID uint64, identity, passkey string) error {
	id, err := ParseIdentity(identity)
	if err != nil {
		return err
	}
	passkey = strings.TrimSpace(passkey)
	if err := validatePasskey(passkey); err != nil {
		return err
	}
	if slotID == 0 {
		return invalid("slot id must be positive")
	}

	var promoted *model.Promotion
	err = s.withinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		promoted = nil
		slot, err := tx.TryLockSlotByID(ctx, slotID)
		if err != nil {
			return lockErr(err, "slot", invalid("slot does not exist"))
		}
		entry, err := tx.TryLockEntry(ctx, slotID, id)
		if err != nil {
			return lockErr(err, "reservation", &Error{Kind: KindNotFound, Message: "no reservation for this identity on the slot"})
		}
		if !utils.VerifyPasskey(entry.PasskeyHash, passkey) {
			s.log.Warn("passkey mismatch on cancellation",
				zap.Uint64("slot_id", slotID), zap.String("identity", id.Masked()))
			return &Error{Kind: KindUnauthorized, Message: "passkey does not match"}
		}

		if slot.QueueLength < 1 {
			return internal("slot state inconsistent", fmt.Errorf("slot %d has an entry but queue length %d", slotID, slot.QueueLength))
		}
		if slot.QueueLength > 1 {
			entries, err := tx.EntriesForSlot(ctx, slotID)
			if err != nil {
				return internal("failed to load waitlist", err)
			}
			if err := checkPositions(entries, slot.QueueLength); err != nil {
				return internal("waitlist state inconsistent", fmt.Errorf("slot %d: %w", slotID, err))
			}
			if err := tx.DeleteEntry(ctx, entry.ID); err != nil {
				return internal("failed to remove reservation", err)
			}
			if err := tx.ShiftPositionsAfter(ctx, slotID, entry.Position); err != nil {
				return internal("failed to renumber waitlist", err)
			}
			head := newHead(entries, entry.ID)
			email := head.HolderEmail
			slot.Holder = &email
			if entry.Position == 0 {
				promoted = &model.Promotion{
					SlotID:      slot.ID,
					Room:        slot.Room,
					Date:        slot.Date.Format(model.DateFormat),
					Hour:        slot.Hour,
					HolderName:  head.HolderName,
					HolderEmail: head.HolderEmail,
					HolderPhone: head.HolderPhone,
					PromotedAt:  s.now().UTC(),
				}
			}
		} else {
			if err := tx.DeleteEntry(ctx, entry.ID); err != nil {
				return internal("failed to remove reservation", err)
			}
			slot.Booked = false
			slot.Holder = nil
		}
		slot.QueueLength--
		if err := tx.UpdateSlot(ctx, slot); err != nil {
			return internal("failed to update slot", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("cancel", err, zap.Uint64("slot_id", slotID))
		return normalize(err, "cancel")
	}
	s.log.Info("reservation cancelled", zap.Uint64("slot_id", slotID), zap.String("identity", id.Masked()))
	if promoted != nil {
		s.notify(ctx, *promoted)
	}
	return nil
}

// checkPositions verifies entries hold exactly positions 0..n-1.  entries
// must be ordered by position.
func checkPositions(entries []model.WaitlistEntry, n int) error {
	if len(entries) != n {
		return fmt.Errorf("queue length %d but %d entries", n, len(entries))
	}
	for i, e := range entries {
		if e.Position != i {
			return fmt.Errorf("entry %d at position %d, want %d", e.ID, e.Position, i)
		}
	}
	return nil
}

// newHead returns the entry that holds position 0 once removedID is gone.
// entries must be ordered by position and contain at least two rows.
func newHead(entries []model.WaitlistEntry, removedID uint64) model.WaitlistEntry {
	if entries[0].ID == removedID {
		return entries[1]
	}
	return entries[0]
}

func (s *ReservationService) notify(ctx context.Context, p model.Promotion) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyPromotion(context.WithoutCancel(ctx), p); err != nil {
		s.log.Error("promotion notification failed", zap.Uint64("slot_id", p.SlotID), zap.Error(err))
		return
	}
	s.log.Info("promotion notification sent", zap.Uint64("slot_id", p.SlotID))
}

// logFailure records the full cause of internal failures; expected outcomes
// such as Busy or Conflict are logged at debug level.
func (s *ReservationService) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	switch KindOf(err) {
	case KindInternal:
		s.log.Error("reservation operation failed", fields...)
	case KindUnauthorized:
		// already logged as a security warning
	default:
		s.log.Debug("reservation operation rejected", fields...)
	}
}

// ListSlots returns the slots of room, optionally narrowed to one ddmmyy
// date and one HHMM time.  Without a date the whole booking window is
// listed.  Results are served from the cache when possible.
func (s *ReservationService) ListSlots(ctx context.Context, room int, date, timeOfDay string) ([]model.Slot, error) {
	if room <= 0 {
		return nil, invalid("room id must be positive")
	}
	today := s.today()
	f := repository.SlotFilter{Room: room, From: today, To: today.AddDate(0, 0, s.policy.HorizonDays)}
	if timeOfDay != "" {
		hour, err := s.policy.parseHHMM(timeOfDay)
		if err != nil {
			return nil, err
		}
		f.Hour = &hour
	}
	if date != "" {
		d, err := parseDate(date, today)
		if err != nil {
			return nil, err
		}
		if err := s.policy.checkWindow(d, today); err != nil {
			return nil, err
		}
		f.From, f.To = d, d
	}

	key := listingKey(f)
	if s.cache != nil {
		if raw, ok := s.cache.Lookup(ctx, key); ok {
			var cached []model.Slot
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			s.log.Warn("discarding undecodable cache entry", zap.String("key", key))
		}
	}

	slots, err := s.store.ListSlots(ctx, f)
	if err != nil {
		s.log.Error("slot listing failed", zap.Int("room", room), zap.Error(err))
		return nil, internal("failed to load slots", err)
	}
	if s.cache != nil {
		if raw, err := json.Marshal(slots); err == nil {
			s.cache.Store(ctx, key, raw, s.policy.CacheTTL)
		}
	}
	return slots, nil
}

// listingKey derives the cache key of a listing from its resolved filter.
func listingKey(f repository.SlotFilter) string {
	hour := "*"
	if f.Hour != nil {
		hour = fmt.Sprintf("%02d", *f.Hour)
	}
	return fmt.Sprintf("room:%d:from:%s:to:%s:hour:%s",
		f.Room, f.From.Format(model.DateFormat), f.To.Format(model.DateFormat), hour)
}

// LookupBookings returns every reservation and waitlist entry of identity.
func (s *ReservationService) LookupBookings(ctx context.Context, identity string) ([]model.Booking, error) {
	id, err := ParseIdentity(identity)
	if err != nil {
		return nil, err
	}
	bookings, err := s.store.BookingsByIdentity(ctx, id)
	if err != nil {
		s.log.Error("booking lookup failed", zap.String("identity", id.Masked()), zap.Error(err))
		return nil, internal("failed to load bookings", err)
	}
	if len(bookings) == 0 {
		return nil, &Error{Kind: KindNotFound, Message: "no bookings found for this identity"}
	}
	return bookings, nil
}
