package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/room-slot-reservation/internal/model"
	"github.com/iliyamo/room-slot-reservation/internal/repository"
)

// memStore is an in-memory Store.  Row locks behave like FOR UPDATE NOWAIT:
// a second transaction touching a locked row gets ErrLocked immediately.
// Writes apply in place and are undone on rollback.
type memStore struct {
	mu        sync.Mutex
	slots     map[uint64]*model.Slot
	entries   map[uint64]*model.WaitlistEntry
	locks     map[string]*memTx
	nextSlot  uint64
	nextEntry uint64

	// failOn makes the named Tx method fail once with the given error.
	failOn  map[string]error
	commits int
}

func newMemStore() *memStore {
	return &memStore{
		slots:   map[uint64]*model.Slot{},
		entries: map[uint64]*model.WaitlistEntry{},
		locks:   map[string]*memTx{},
		failOn:  map[string]error{},
	}
}

func (m *memStore) failNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = err
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx := &memTx{m: m}
	err := fn(ctx, tx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
	} else {
		m.commits++
	}
	for _, k := range tx.held {
		delete(m.locks, k)
	}
	return err
}

func (m *memStore) ListSlots(_ context.Context, f repository.SlotFilter) ([]model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Slot, 0)
	for _, s := range m.slots {
		if s.Room != f.Room || s.Date.Before(f.From) || s.Date.After(f.To) {
			continue
		}
		if f.Hour != nil && s.Hour != *f.Hour {
			continue
		}
		out = append(out, copySlot(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Hour < out[j].Hour
	})
	return out, nil
}

func (m *memStore) BookingsByIdentity(_ context.Context, id model.Identity) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, e := range m.entries {
		if !id.Matches(*e) {
			continue
		}
		s := m.slots[e.SlotID]
		out = append(out, model.Booking{
			EntryID: e.ID, SlotID: s.ID, Room: s.Room, Date: s.Date, Hour: s.Hour,
			Booked: s.Booked, QueueLength: s.QueueLength,
			HolderName: e.HolderName, HolderPhone: e.HolderPhone, HolderEmail: e.HolderEmail,
			Position: e.Position, CreatedAt: e.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Hour < out[j].Hour
	})
	return out, nil
}

// seed creates an unbooked slot directly, outside any transaction.
func (m *memStore) seed(room int, date time.Time, hour int) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSlot++
	m.slots[m.nextSlot] = &model.Slot{ID: m.nextSlot, Room: room, Date: date, Hour: hour}
	return m.nextSlot
}

func (m *memStore) slot(id uint64) model.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySlot(m.slots[id])
}

// queue returns the entries of a slot ordered by position.
func (m *memStore) queue(slotID uint64) []model.WaitlistEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueLocked(slotID)
}

func (m *memStore) queueLocked(slotID uint64) []model.WaitlistEntry {
	var out []model.WaitlistEntry
	for _, e := range m.entries {
		if e.SlotID == slotID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func copySlot(s *model.Slot) model.Slot {
	c := *s
	if s.Holder != nil {
		h := *s.Holder
		c.Holder = &h
	}
	return c
}

type memTx struct {
	m    *memStore
	held []string
	undo []func()
}

// begin takes the store mutex and applies any injected failure for op.
func (t *memTx) begin(op string) error {
	t.m.mu.Lock()
	if err, ok := t.m.failOn[op]; ok {
		delete(t.m.failOn, op)
		return err
	}
	return nil
}

func (t *memTx) lock(key string) error {
	if owner, ok := t.m.locks[key]; ok && owner != t {
		return fmt.Errorf("%w: %s", repository.ErrLocked, key)
	}
	if t.m.locks[key] == nil {
		t.m.locks[key] = t
		t.held = append(t.held, key)
	}
	return nil
}

func (t *memTx) lockSlot(s *model.Slot) (*model.Slot, error) {
	if err := t.lock(fmt.Sprintf("slot:%d", s.ID)); err != nil {
		return nil, err
	}
	c := copySlot(s)
	return &c, nil
}

func (t *memTx) TryLockSlotByCell(_ context.Context, room int, date time.Time, hour int) (*model.Slot, error) {
	if err := t.begin("TryLockSlotByCell"); err != nil {
		t.m.mu.Unlock()
		return nil, err
	}
	defer t.m.mu.Unlock()
	for _, s := range t.m.slots {
		if s.Room == room && s.Date.Equal(date) && s.Hour == hour {
			return t.lockSlot(s)
		}
	}
	return nil, repository.ErrNotFound
}

func (t *memTx) TryLockSlotByID(_ context.Context, id uint64) (*model.Slot, error) {
	if err := t.begin("TryLockSlotByID"); err != nil {
		t.m.mu.Unlock()
		return nil, err
	}
	defer t.m.mu.Unlock()
	s, ok := t.m.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.lockSlot(s)
}

func (t *memTx) TryLockEntry(_ context.Context, slotID uint64, id model.Identity) (*model.WaitlistEntry, error) {
	if err := t.begin("TryLockEntry"); err != nil {
		t.m.mu.Unlock()
		return nil, err
	}
	defer t.m.mu.Unlock()
	for _, e := range t.m.queueLocked(slotID) {
		if id.Matches(e) {
			if err := t.lock(fmt.Sprintf("entry:%d", e.ID)); err != nil {
				return nil, err
			}
			c := e
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *memTx) PartyExists(_ context.Context, slotID uint64, email, phone string) (bool, error) {
	if err := t.begin("PartyExists"); err != nil {
		t.m.mu.Unlock()
		return false, err
	}
	defer t.m.mu.Unlock()
	for _, e := range t.m.entries {
		if e.SlotID == slotID && (e.HolderEmail == email || e.HolderPhone == phone) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) EntriesForSlot(_ context.Context, slotID uint64) ([]model.WaitlistEntry, error) {
	if err := t.begin("EntriesForSlot"); err != nil {
		t.m.mu.Unlock()
		return nil, err
	}
	defer t.m.mu.Unlock()
	return t.m.queueLocked(slotID), nil
}

func (t *memTx) UpdateSlot(_ context.Context, s *model.Slot) error {
	if err := t.begin("UpdateSlot"); err != nil {
		t.m.mu.Unlock()
		return err
	}
	defer t.m.mu.Unlock()
	cur, ok := t.m.slots[s.ID]
	if !ok {
		return repository.ErrNotFound
	}
	prev := copySlot(cur)
	next := copySlot(s)
	t.m.slots[s.ID] = &next
	t.undo = append(t.undo, func() { t.m.slots[prev.ID] = &prev })
	return nil
}

func (t *memTx) InsertEntry(_ context.Context, e *model.WaitlistEntry) error {
	if err := t.begin("InsertEntry"); err != nil {
		t.m.mu.Unlock()
		return err
	}
	defer t.m.mu.Unlock()
	for _, x := range t.m.entries {
		if x.SlotID == e.SlotID && x.Position == e.Position {
			return fmt.Errorf("%w: duplicate position %d", repository.ErrConflict, e.Position)
		}
	}
	t.m.nextEntry++
	e.ID = t.m.nextEntry
	c := *e
	t.m.entries[c.ID] = &c
	t.undo = append(t.undo, func() { delete(t.m.entries, c.ID) })
	return nil
}

func (t *memTx) DeleteEntry(_ context.Context, id uint64) error {
	if err := t.begin("DeleteEntry"); err != nil {
		t.m.mu.Unlock()
		return err
	}
	defer t.m.mu.Unlock()
	e, ok := t.m.entries[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(t.m.entries, id)
	t.undo = append(t.undo, func() { t.m.entries[id] = e })
	return nil
}

func (t *memTx) ShiftPositionsAfter(_ context.Context, slotID uint64, position int) error {
	if err := t.begin("ShiftPositionsAfter"); err != nil {
		t.m.mu.Unlock()
		return err
	}
	defer t.m.mu.Unlock()
	for _, e := range t.m.entries {
		if e.SlotID == slotID && e.Position > position {
			e := e
			e.Position--
			t.undo = append(t.undo, func() { e.Position++ })
		}
	}
	return nil
}

func (t *memTx) InsertSlotIfAbsent(_ context.Context, room int, date time.Time, hour int) (bool, error) {
	if err := t.begin("InsertSlotIfAbsent"); err != nil {
		t.m.mu.Unlock()
		return false, err
	}
	defer t.m.mu.Unlock()
	for _, s := range t.m.slots {
		if s.Room == room && s.Date.Equal(date) && s.Hour == hour {
			return false, nil
		}
	}
	t.m.nextSlot++
	id := t.m.nextSlot
	t.m.slots[id] = &model.Slot{ID: id, Room: room, Date: date, Hour: hour}
	t.undo = append(t.undo, func() { delete(t.m.slots, id) })
	return true, nil
}

func (t *memTx) DeleteSlotsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	if err := t.begin("DeleteSlotsBefore"); err != nil {
		t.m.mu.Unlock()
		return 0, err
	}
	defer t.m.mu.Unlock()
	var n int64
	for id, s := range t.m.slots {
		if !s.Date.Before(cutoff) {
			continue
		}
		s := s
		delete(t.m.slots, id)
		n++
		t.undo = append(t.undo, func() { t.m.slots[s.ID] = s })
		for eid, e := range t.m.entries {
			if e.SlotID == id {
				e := e
				delete(t.m.entries, eid)
				t.undo = append(t.undo, func() { t.m.entries[e.ID] = e })
			}
		}
	}
	return n, nil
}
