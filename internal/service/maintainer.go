package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/room-slot-reservation/internal/repository"
)

// GridMaintainer keeps the slot grid populated for the rolling booking
// window and removes expired slots.  Every operation is a single transaction:
// a failure leaves the grid exactly as it was, and inserts skip existing
// cells, so any run can be repeated.
type GridMaintainer struct {
	store  Store
	policy Policy
	log    *zap.Logger
	now    func() time.Time
}

// NewGridMaintainer wires a maintainer.  now may be nil to use time.Now.
func NewGridMaintainer(store Store, policy Policy, log *zap.Logger, now func() time.Time) *GridMaintainer {
	if store == nil || log == nil {
		panic("nil dependency passed to NewGridMaintainer")
	}
	if now == nil {
		now = time.Now
	}
	return &GridMaintainer{store: store, policy: policy, log: log, now: now}
}

// CycleReport summarises one maintenance run.
type CycleReport struct {
	Day      time.Time `json:"day"`
	Inserted int       `json:"inserted"`
	Cutoff   time.Time `json:"cutoff"`
	Purged   int64     `json:"purged"`
}

func (m *GridMaintainer) today() time.Time { return civilDate(m.now(), m.policy.loc()) }

// refreshDayTx inserts the missing cells of day for every room.
func (m *GridMaintainer) refreshDayTx(ctx context.Context, tx repository.Tx, day time.Time) (int, error) {
	inserted := 0
	for _, room := range m.policy.Rooms {
		for hour := m.policy.OpeningHour; hour <= m.policy.ClosingHour; hour++ {
			ok, err := tx.InsertSlotIfAbsent(ctx, room, day, hour)
			if err != nil {
				return 0, fmt.Errorf("insert slot room=%d day=%s hour=%d: %w", room, day.Format("2006-01-02"), hour, err)
			}
			if ok {
				inserted++
			}
		}
	}
	return inserted, nil
}

// RefreshWindow creates the cells of the last day of the window,
// today + horizon, that do not exist yet.  It returns how many were created.
func (m *GridMaintainer) RefreshWindow(ctx context.Context) (int, error) {
	return m.RefreshDay(ctx, m.today().AddDate(0, 0, m.policy.HorizonDays))
}

// RefreshDay creates the missing cells of one day.
func (m *GridMaintainer) RefreshDay(ctx context.Context, day time.Time) (int, error) {
	day = civilDate(day, time.UTC)
	var inserted int
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		n, err := m.refreshDayTx(ctx, tx, day)
		inserted = n
		return err
	})
	if err != nil {
		m.log.Error("grid refresh failed", zap.Time("day", day), zap.Error(err))
		return 0, err
	}
	m.log.Info("grid refreshed", zap.Time("day", day), zap.Int("inserted", inserted))
	return inserted, nil
}

// PurgeExpired deletes every slot dated before cutoff together with its
// waitlist entries.
func (m *GridMaintainer) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = civilDate(cutoff, time.UTC)
	var purged int64
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		n, err := tx.DeleteSlotsBefore(ctx, cutoff)
		purged = n
		return err
	})
	if err != nil {
		m.log.Error("grid purge failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, err
	}
	m.log.Info("grid purged", zap.Time("cutoff", cutoff), zap.Int64("purged", purged))
	return purged, nil
}

// RunCycle is the daily job: refresh the window's last day and purge
// everything before today, in one transaction.
func (m *GridMaintainer) RunCycle(ctx context.Context) (CycleReport, error) {
	today := m.today()
	rep := CycleReport{Day: today.AddDate(0, 0, m.policy.HorizonDays), Cutoff: today}
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		n, err := m.refreshDayTx(ctx, tx, rep.Day)
		if err != nil {
			return err
		}
		rep.Inserted = n
		purged, err := tx.DeleteSlotsBefore(ctx, rep.Cutoff)
		if err != nil {
			return fmt.Errorf("purge before %s: %w", rep.Cutoff.Format("2006-01-02"), err)
		}
		rep.Purged = purged
		return nil
	})
	if err != nil {
		m.log.Error("grid maintenance cycle failed", zap.Error(err))
		return CycleReport{}, err
	}
	m.log.Info("grid maintenance cycle complete",
		zap.Time("day", rep.Day), zap.Int("inserted", rep.Inserted), zap.Int64("purged", rep.Purged))
	return rep, nil
}

// Backfill creates the missing cells of every day in [today, today+horizon].
// A fresh deployment runs it once so the whole window is bookable before the
// first daily cycle.
func (m *GridMaintainer) Backfill(ctx context.Context) (int, error) {
	today := m.today()
	total := 0
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		total = 0
		for i := 0; i <= m.policy.HorizonDays; i++ {
			n, err := m.refreshDayTx(ctx, tx, today.AddDate(0, 0, i))
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		m.log.Error("grid backfill failed", zap.Error(err))
		return 0, err
	}
	m.log.Info("grid backfilled", zap.Int("inserted", total), zap.Int("days", m.policy.HorizonDays+1))
	return total, nil
}

// Run performs a cycle immediately and then once per interval until ctx is
// cancelled.  Failures are logged and retried on the next tick.
func (m *GridMaintainer) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 24 * time.Hour
	}
	_, _ = m.RunCycle(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = m.RunCycle(ctx)
		}
	}
}
