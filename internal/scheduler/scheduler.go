// Package scheduler arms one-shot SLA timers for waiting reservations. Every
// deadline is mirrored to the database so timers survive a restart.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"mesto/internal/database"
)

// FireFunc is invoked when a deadline passes. The callee decides whether the
// reservation still expires.
type FireFunc func(ctx context.Context, reservationID string) error

type Scheduler struct {
	db     *database.DB
	cron   gocron.Scheduler
	logger *zerolog.Logger

	mu   sync.Mutex
	fire FireFunc
	now  func() time.Time
}

func New(db *database.DB, logger *zerolog.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{db: db, cron: cron, logger: logger, now: time.Now}, nil
}

// OnFire sets the deadline callback. Must be called before Start.
func (s *Scheduler) OnFire(fn FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = fn
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Shutdown stops the timer loop. Armed deadlines stay in the database and
// come back via Restore on the next start.
func (s *Scheduler) Shutdown() error {
	return s.cron.Shutdown()
}

// Arm schedules the expiry for a reservation, replacing any previous
// deadline for the same reservation.
func (s *Scheduler) Arm(ctx context.Context, reservationID string, fireAt time.Time) error {
	if err := s.db.ArmExpiry(ctx, reservationID, fireAt); err != nil {
		return err
	}
	if err := s.schedule(reservationID, fireAt); err != nil {
		return err
	}
	s.logger.Debug().
		Str("reservation_id", reservationID).
		Time("fire_at", fireAt).
		Msg("expiry armed")
	return nil
}

// Disarm drops both the timer and its durable record. Disarming an unknown
// reservation is a no-op.
func (s *Scheduler) Disarm(ctx context.Context, reservationID string) error {
	if err := s.db.DisarmExpiry(ctx, reservationID); err != nil {
		return err
	}
	s.cron.RemoveByTags(reservationID)
	return nil
}

// Restore re-arms every deadline persisted before the last shutdown.
// Deadlines already in the past fire immediately.
func (s *Scheduler) Restore(ctx context.Context) error {
	pending, err := s.db.PendingExpiries(ctx)
	if err != nil {
		return err
	}
	for _, p := range pending {
		if err := s.schedule(p.ReservationID, p.FireAt); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		s.logger.Info().Int("count", len(pending)).Msg("restored expiry timers")
	}
	return nil
}

func (s *Scheduler) schedule(reservationID string, fireAt time.Time) error {
	s.cron.RemoveByTags(reservationID)

	start := gocron.OneTimeJobStartDateTime(fireAt)
	if !fireAt.After(s.now()) {
		start = gocron.OneTimeJobStartImmediately()
	}

	_, err := s.cron.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(s.run, reservationID),
		gocron.WithTags(reservationID),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule expiry: %w", err)
	}
	return nil
}

func (s *Scheduler) run(reservationID string) {
	s.mu.Lock()
	fire := s.fire
	s.mu.Unlock()
	if fire == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := fire(ctx, reservationID); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", reservationID).Msg("expiry handler failed")
	}
}
