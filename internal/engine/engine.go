// Package engine drives the reservation lifecycle: it validates candidate
// slots against venue hours and policies, detects conflicts, prices the
// booking, and owns every state transition.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mesto/internal/database"
	"mesto/internal/events"
	"mesto/internal/gateway"
	"mesto/internal/hours"
	"mesto/internal/metrics"
	"mesto/internal/models"
	"mesto/internal/pricing"
)

// ExpiryScheduler is the timer surface the engine arms and disarms. The
// scheduler calls back into Expire when a deadline fires.
type ExpiryScheduler interface {
	Arm(ctx context.Context, reservationID string, fireAt time.Time) error
	Disarm(ctx context.Context, reservationID string) error
}

type Service struct {
	db     *database.DB
	calc   *pricing.Calculator
	gw     gateway.Gateway
	sched  ExpiryScheduler
	bus    *events.EventBus
	logger *zerolog.Logger
	locks  *keyedLocks
	now    func() time.Time
}

func NewService(db *database.DB, calc *pricing.Calculator, gw gateway.Gateway, sched ExpiryScheduler, bus *events.EventBus, logger *zerolog.Logger) *Service {
	return &Service{
		db:     db,
		calc:   calc,
		gw:     gw,
		sched:  sched,
		bus:    bus,
		logger: logger,
		locks:  newKeyedLocks(),
		now:    time.Now,
	}
}

// BookRequest is a candidate reservation.
type BookRequest struct {
	TableID    string                 `json:"table_id"`
	ClientID   string                 `json:"client_id"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Guests     int                    `json:"guests"`
	Comment    string                 `json:"comment,omitempty"`
	Selections []models.MenuSelection `json:"selections,omitempty"`
}

// BookResult pairs the stored reservation with its price breakdown.
type BookResult struct {
	Reservation *models.Reservation `json:"reservation"`
	Quote       pricing.Quote       `json:"quote"`
}

// Book validates, prices and stores a reservation request. Customers go
// through every temporal gate; staff booking on the venue's behalf skip the
// lead-time gates and land directly in ACCEPTED.
func (s *Service) Book(ctx context.Context, actor models.Actor, req BookRequest) (*BookResult, error) {
	venue, err := s.db.VenueByTable(ctx, req.TableID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newError(CodeNotFound, "table %s", req.TableID)
		}
		return nil, err
	}

	policy, week, err := s.venueRules(ctx, venue.ID)
	if err != nil {
		return nil, err
	}

	start := req.StartTime.UTC()
	end := req.EndTime.UTC()
	now := s.now().UTC()
	if end.Before(start) {
		return nil, newError(CodeInvalidTime, "end precedes start")
	}

	if err := s.checkTemporalGates(actor, policy, week, start, end, now); err != nil {
		return nil, err
	}

	clientID := req.ClientID
	if !actor.Staff() && clientID == "" {
		clientID = actor.ID
	}
	if err := s.checkConflicts(ctx, database.Scope{TableID: req.TableID}, clientID, policy, start, end); err != nil {
		return nil, err
	}

	anchor, err := s.responseAnchor(week, policy, now)
	if err != nil {
		return nil, err
	}

	quote, err := s.calc.Compute(ctx, venue.ID, start, end, req.Guests, req.Selections)
	if err != nil {
		if errors.Is(err, pricing.ErrUnknownMenuItem) {
			return nil, wrapError(CodeNotFound, err, "menu item")
		}
		return nil, err
	}
	holdID, chargeID, err := s.calc.CreateCharges(ctx, clientID, quote, req.Selections)
	if err != nil {
		return nil, err
	}

	r := &models.Reservation{
		TableID:          req.TableID,
		ClientID:         clientID,
		StartTime:        start,
		EndTime:          end,
		Guests:           req.Guests,
		Comment:          req.Comment,
		DepositHoldID:    holdID,
		PreOrderChargeID: chargeID,
		CreatedAt:        anchor,
	}

	switch {
	case actor.Staff():
		r.Status = models.StatusAccepted
	case quote.Total > 0:
		r.Status = models.StatusPendingPayment
		r.PaymentStatus = models.PaymentPending
	default:
		r.Status = models.StatusWaiting
	}

	if err := s.db.CreateReservation(ctx, r); err != nil {
		return nil, err
	}

	if r.Status == models.StatusPendingPayment {
		payment := &models.Payment{
			ReservationID: r.ID,
			Amount:        quote.Total,
			Currency:      quote.Currency,
			Status:        models.PaymentPending,
		}
		if err := s.db.CreatePayment(ctx, payment); err != nil {
			return nil, err
		}
		if err := s.authorizePayment(ctx, venue, r, payment); err != nil {
			return nil, err
		}
	}

	if r.Status == models.StatusWaiting {
		if err := s.armResponseTimer(ctx, r, policy); err != nil {
			return nil, err
		}
	}

	metrics.IncTransition(r.Status)
	eventType := events.EventReservationRequested
	if r.Status == models.StatusAccepted {
		eventType = events.EventReservationConfirmed
	}
	s.publish(eventType, venue.ID, r, actor)

	s.logger.Info().
		Str("reservation_id", r.ID).
		Str("table_id", r.TableID).
		Str("status", r.Status).
		Time("start", r.StartTime).
		Int64("total", quote.Total).
		Msg("reservation created")

	return &BookResult{Reservation: r, Quote: quote}, nil
}

// ConfirmPayment settles the gateway's asynchronous answer. Success moves
// PENDING_PAYMENT to WAITING and starts the response clock; failure rejects.
// A repeated webhook for an already-settled reservation is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, reservationID string, success bool) (*models.Reservation, error) {
	s.locks.Lock(reservationID)
	defer s.locks.Unlock(reservationID)

	r, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusPendingPayment {
		if r.Status == models.StatusWaiting || r.Status == models.StatusRejected {
			return r, nil
		}
		return nil, newError(CodeInvalidTransition, "%s -> payment settlement", r.Status)
	}

	venue, err := s.db.VenueByTable(ctx, r.TableID)
	if err != nil {
		return nil, err
	}

	target := models.StatusWaiting
	paymentStatus := models.PaymentSuccessful
	if !success {
		target = models.StatusRejected
		paymentStatus = models.PaymentFailed
	}

	if err := s.transition(ctx, r, target); err != nil {
		return nil, err
	}
	if err := s.db.UpdateReservationPaymentStatus(ctx, r.ID, paymentStatus); err != nil {
		return nil, err
	}
	r.PaymentStatus = paymentStatus

	if success {
		policy, _, err := s.venueRules(ctx, venue.ID)
		if err != nil {
			return nil, err
		}
		if err := s.armResponseTimer(ctx, r, policy); err != nil {
			return nil, err
		}
		s.publish(events.EventPaymentSettled, venue.ID, r, models.System)
	} else {
		s.publish(events.EventReservationDeclined, venue.ID, r, models.System)
	}
	return r, nil
}

// Accept confirms a waiting reservation and captures the authorized
// payment. The slot is re-checked against reservations accepted since, so
// two waiting requests for the same table cannot both be confirmed. A
// provider outage aborts before the transition so the accept can be
// retried.
func (s *Service) Accept(ctx context.Context, actor models.Actor, reservationID string) (*models.Reservation, error) {
	if !actor.Staff() {
		return nil, newError(CodeForbidden, "only venue staff accept reservations")
	}

	s.locks.Lock(reservationID)
	defer s.locks.Unlock(reservationID)

	r, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(r.Status, models.StatusAccepted) {
		return nil, newError(CodeInvalidTransition, "%s -> %s", r.Status, models.StatusAccepted)
	}

	overlapping, err := s.db.FindOverlapping(ctx, database.Scope{TableID: r.TableID}, r.ClientID, r.StartTime, r.EndTime, r.ID)
	if err != nil {
		return nil, err
	}
	for _, o := range overlapping {
		if o.ClientID != r.ClientID {
			return nil, newError(CodeConflict, "table already confirmed for this time")
		}
	}

	venue, err := s.db.VenueByTable(ctx, r.TableID)
	if err != nil {
		return nil, err
	}
	if err := s.capturePayment(ctx, venue, r); err != nil {
		return nil, err
	}

	if err := s.transition(ctx, r, models.StatusAccepted); err != nil {
		return nil, err
	}
	if err := s.sched.Disarm(ctx, r.ID); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("failed to disarm expiry")
	}

	s.publish(events.EventReservationConfirmed, venue.ID, r, actor)
	return r, nil
}

// Decline rejects a waiting or accepted reservation and releases any held
// money. Gateway failures during the release are logged, not surfaced: the
// decline itself must not hang on the provider.
func (s *Service) Decline(ctx context.Context, actor models.Actor, reservationID, managerComment string) (*models.Reservation, error) {
	if !actor.Staff() {
		return nil, newError(CodeForbidden, "only venue staff decline reservations")
	}

	s.locks.Lock(reservationID)
	defer s.locks.Unlock(reservationID)

	r, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(r.Status, models.StatusRejected) {
		return nil, newError(CodeInvalidTransition, "%s -> %s", r.Status, models.StatusRejected)
	}

	if err := s.transition(ctx, r, models.StatusRejected); err != nil {
		return nil, err
	}
	if err := s.sched.Disarm(ctx, r.ID); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("failed to disarm expiry")
	}
	s.releasePayment(ctx, r, "reservation declined")

	venue, err := s.db.VenueByTable(ctx, r.TableID)
	if err == nil {
		s.publish(events.EventReservationDeclined, venue.ID, r, actor)
	}
	return r, nil
}

// Start seats the party. The visit runs from the later of the scheduled
// start and the wall clock; that instant is written back as the start time,
// and fails only when another seated party's slot still covers it.
func (s *Service) Start(ctx context.Context, actor models.Actor, reservationID string) (*models.Reservation, error) {
	if !actor.Staff() {
		return nil, newError(CodeForbidden, "only venue staff start visits")
	}

	s.locks.Lock(reservationID)
	defer s.locks.Unlock(reservationID)

	r, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(r.Status, models.StatusInProgress) {
		return nil, newError(CodeInvalidTransition, "%s -> %s", r.Status, models.StatusInProgress)
	}

	effective := r.StartTime
	if now := s.now().UTC(); now.After(effective) {
		effective = now
	}
	if seated, err := s.db.FindInProgressAt(ctx, r.TableID, effective); err == nil && seated.ID != r.ID {
		return nil, newError(CodeConflict, "table occupied by reservation %d", seated.SequenceNumber)
	} else if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	if err := s.db.StartVisit(ctx, r.ID, effective, r.Version); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, wrapError(CodeConflict, err, "reservation changed concurrently")
		}
		return nil, err
	}
	r.Status = models.StatusInProgress
	r.StartTime = effective
	r.Version++
	r.UpdatedAt = s.now().UTC()
	metrics.IncTransition(models.StatusInProgress)

	venue, err := s.db.VenueByTable(ctx, r.TableID)
	if err == nil {
		s.publish(events.EventReservationStarted, venue.ID, r, actor)
	}
	return r, nil
}

// Complete closes the visit and updates the client's visit history. The
// authorized payment was captured when the reservation was accepted.
func (s *Service) Complete(ctx context.Context, actor models.Actor, reservationID string) (*models.Reservation, error) {
	if !actor.Staff() {
		return nil, newError(CodeForbidden, "only venue staff close visits")
	}

	s.locks.Lock(reservationID)
	defer s.locks.Unlock(reservationID)

	r, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(r.Status, models.StatusClosed) {
		return nil, newError(CodeInvalidTransition, "%s -> %s", r.Status, models.StatusClosed)
	}

	venue, err := s.db.VenueByTable(ctx, r.TableID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, r, models.StatusClosed); err != nil {
		return nil, err
	}

	if err := s.db.UpsertVisitedVenue(ctx, venue.ID, r.ClientID, s.now().UTC()); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("failed to record visit")
	}
	if err := s.db.IncrementRatingCounters(ctx, venue.ID, r.ClientID); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("failed to update rating counters")
	}

	s.publish(events.EventReservationClosed, venue.ID, r, actor)
	return r, nil
}

// Cancel withdraws a reservation. Customers may only cancel their own.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, reservationID, reason string) (*models.Reservation, error) {
	s.locks.Lock(reservationID)
	defer s.locks.Unlock(reservationID)

	r, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !actor.Staff() && actor.Role != models.RoleSystem && actor.ID != r.ClientID {
		return nil, newError(CodeForbidden, "reservation belongs to another client")
	}
	if !models.CanTransition(r.Status, models.StatusCanceled) {
		return nil, newError(CodeInvalidTransition, "%s -> %s", r.Status, models.StatusCanceled)
	}

	if err := s.transition(ctx, r, models.StatusCanceled); err != nil {
		return nil, err
	}
	if err := s.sched.Disarm(ctx, r.ID); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("failed to disarm expiry")
	}
	s.releasePayment(ctx, r, reason)

	venue, err := s.db.VenueByTable(ctx, r.TableID)
	if err == nil {
		s.publish(events.EventReservationCanceled, venue.ID, r, actor)
	}
	return r, nil
}

// UpdateRequest moves a reservation to a new slot, table or party size.
// Zero-valued fields keep the stored value.
type UpdateRequest struct {
	TableID        string    `json:"table_id,omitempty"`
	StartTime      time.Time `json:"start_time,omitempty"`
	EndTime        time.Time `json:"end_time,omitempty"`
	Guests         int       `json:"guests,omitempty"`
	ManagerComment string    `json:"manager_comment,omitempty"`
}

// Update reschedules a live reservation. The new slot passes the same gates
// and conflict checks as a fresh booking, with the reservation itself
// excluded from the overlap scan.
func (s *Service) Update(ctx context.Context, actor models.Actor, reservationID string, req UpdateRequest) (*models.Reservation, error) {
	s.locks.Lock(reservationID)
	defer s.locks.Unlock(reservationID)

	r, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !actor.Staff() && actor.ID != r.ClientID {
		return nil, newError(CodeForbidden, "reservation belongs to another client")
	}
	if models.IsTerminal(r.Status) {
		return nil, newError(CodeInvalidTransition, "%s is terminal", r.Status)
	}

	tableID := r.TableID
	if req.TableID != "" {
		tableID = req.TableID
	}
	start, end := r.StartTime, r.EndTime
	if !req.StartTime.IsZero() {
		start = req.StartTime.UTC()
	}
	if !req.EndTime.IsZero() {
		end = req.EndTime.UTC()
	}
	guests := r.Guests
	if req.Guests > 0 {
		guests = req.Guests
	}
	managerComment := r.ManagerComment
	if req.ManagerComment != "" {
		managerComment = req.ManagerComment
	}
	if end.Before(start) {
		return nil, newError(CodeInvalidTime, "end precedes start")
	}

	venue, err := s.db.VenueByTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newError(CodeNotFound, "table %s", tableID)
		}
		return nil, err
	}
	policy, week, err := s.venueRules(ctx, venue.ID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTemporalGates(actor, policy, week, start, end, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.checkConflicts(ctx, database.Scope{TableID: tableID}, r.ClientID, policy, start, end, r.ID); err != nil {
		return nil, err
	}

	err = s.db.UpdateReservationTimes(ctx, r.ID, tableID, start, end, guests, managerComment, r.Version)
	if err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, wrapError(CodeConflict, err, "reservation changed concurrently")
		}
		return nil, err
	}
	r.TableID, r.StartTime, r.EndTime, r.Guests, r.ManagerComment = tableID, start, end, guests, managerComment
	r.Version++

	s.publish(events.EventReservationMoved, venue.ID, r, actor)
	return r, nil
}

// Expire is the scheduler's callback. It only lands when the reservation is
// still WAITING; anything else means the timer lost the race and the fire is
// a logged no-op.
func (s *Service) Expire(ctx context.Context, reservationID string) error {
	s.locks.Lock(reservationID)
	defer s.locks.Unlock(reservationID)

	changed, err := s.db.ExpireIfWaiting(ctx, reservationID)
	if err != nil {
		return err
	}
	if err := s.db.DisarmExpiry(ctx, reservationID); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", reservationID).Msg("failed to clear expiry record")
	}

	if !changed {
		metrics.IncExpiryFired("noop")
		s.logger.Info().Str("reservation_id", reservationID).Msg("expiry fired after transition, ignoring")
		return nil
	}

	metrics.IncExpiryFired("expired")
	metrics.IncTransition(models.StatusExpired)

	r, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	s.releasePayment(ctx, r, "reservation expired")

	venue, err := s.db.VenueByTable(ctx, r.TableID)
	if err == nil {
		s.publish(events.EventReservationExpired, venue.ID, r, models.System)
	}
	s.logger.Info().Str("reservation_id", reservationID).Msg("reservation expired")
	return nil
}

// Grid returns the venue's reservations for one calendar day. Each end time
// is padded by the between-reserves buffer so viewers see the full span the
// table is blocked for.
func (s *Service) Grid(ctx context.Context, venueID string, day time.Time) ([]models.Reservation, error) {
	policy, err := s.db.Policy(ctx, venueID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := s.db.ReservationsForDay(ctx, venueID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	if policy != nil && policy.Buffer() > 0 {
		for i := range rows {
			rows[i].EndTime = rows[i].EndTime.Add(policy.Buffer())
		}
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, reservationID string) (*models.Reservation, error) {
	return s.getReservation(ctx, reservationID)
}

// ByClient returns the client's reservation history, newest slot first.
func (s *Service) ByClient(ctx context.Context, clientID string) ([]models.Reservation, error) {
	return s.db.ReservationsByClient(ctx, clientID)
}

// ClientStats returns the guest's visit counters at one venue.
func (s *Service) ClientStats(ctx context.Context, venueID, clientID string) ([]models.RatingCounter, error) {
	return s.db.RatingCounters(ctx, venueID, clientID)
}

func (s *Service) getReservation(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := s.db.GetReservation(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, newError(CodeNotFound, "reservation %s", id)
	}
	return r, err
}

// venueRules loads policy and week schedule, defaulting both to empty when
// the venue never configured them.
func (s *Service) venueRules(ctx context.Context, venueID string) (models.ReservationPolicy, []models.OperatingHours, error) {
	policy, err := s.db.Policy(ctx, venueID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return models.ReservationPolicy{}, nil, err
	}
	if policy == nil {
		policy = &models.ReservationPolicy{VenueID: venueID}
	}
	week, err := s.db.WorkingHours(ctx, venueID)
	if err != nil {
		return models.ReservationPolicy{}, nil, err
	}
	return *policy, week, nil
}

// checkTemporalGates enforces the lead-time and working-hours rules for
// customer requests. Staff skip the lead-time gates; a day off blocks
// everyone.
func (s *Service) checkTemporalGates(actor models.Actor, policy models.ReservationPolicy, week []models.OperatingHours, start, end, now time.Time) error {
	window := hours.ResolveWindow(week, start)
	if window.IsDayOff {
		return newError(CodeVenueUnavailable, "venue is closed that day")
	}

	if actor.Staff() {
		return nil
	}

	if start.Before(now.Add(policy.Unreachable())) {
		return newError(CodeInvalidTime, "slot starts within the unreachable interval")
	}
	// Open-ended requests (start == end) bypass the minimum duration: the
	// venue decides when the table turns over.
	if !start.Equal(end) && end.Sub(start) < policy.MinBooking() {
		return newError(CodeInvalidTime, "slot shorter than the minimum booking time")
	}
	if !window.Fallback && !window.IsOpenAllDay && !window.ContainsFrame(start, end) {
		return newError(CodeInvalidTime, "slot falls outside working hours")
	}
	return nil
}

// checkConflicts runs the overlap scan widened by the between-reserves
// buffer. Rows held by other clients are conflicts; the client's own rows
// never block resubmission.
func (s *Service) checkConflicts(ctx context.Context, scope database.Scope, clientID string, policy models.ReservationPolicy, start, end time.Time, excludeIDs ...string) error {
	queryStart := start.Add(-policy.Buffer())
	queryEnd := end.Add(policy.Buffer())

	overlapping, err := s.db.FindOverlapping(ctx, scope, clientID, queryStart, queryEnd, excludeIDs...)
	if err != nil {
		return err
	}
	for _, o := range overlapping {
		if clientID == "" || o.ClientID != clientID {
			return newError(CodeConflict, "table is taken for this time")
		}
	}
	return nil
}

// responseAnchor returns the instant the venue's response clock starts. When
// the venue is closed right now the clock waits for the next opening plus
// the delayed-response grace. A venue with no upcoming opening cannot take
// the request at all.
func (s *Service) responseAnchor(week []models.OperatingHours, policy models.ReservationPolicy, now time.Time) (time.Time, error) {
	window := hours.ResolveWindow(week, now)
	if !window.IsDayOff && window.Contains(now) {
		return now, nil
	}

	opening, err := hours.NextOpening(week, now, policy.DelayedResponse())
	if err != nil {
		return time.Time{}, wrapError(CodeVenueUnavailable, err, "venue has no upcoming opening")
	}
	return opening, nil
}

func (s *Service) armResponseTimer(ctx context.Context, r *models.Reservation, policy models.ReservationPolicy) error {
	if policy.Response() <= 0 {
		return nil
	}
	fireAt := r.CreatedAt.Add(policy.Response())
	return s.sched.Arm(ctx, r.ID, fireAt)
}

// transition applies the optimistic status change and keeps the in-memory
// copy in step.
func (s *Service) transition(ctx context.Context, r *models.Reservation, target string) error {
	err := s.db.UpdateReservationStatus(ctx, r.ID, target, r.Version)
	if err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return wrapError(CodeConflict, err, "reservation changed concurrently")
		}
		return err
	}
	r.Status = target
	r.Version++
	r.UpdatedAt = s.now().UTC()
	metrics.IncTransition(target)
	return nil
}

// authorizePayment opens the two-phase charge for the combined payable. A
// declined card rejects the reservation immediately; an unreachable provider
// surfaces as retryable.
func (s *Service) authorizePayment(ctx context.Context, venue *models.Venue, r *models.Reservation, payment *models.Payment) error {
	creds := gateway.Credentials{ShopID: venue.GatewayID, SecretKey: venue.GatewayKey}
	description := fmt.Sprintf("table reservation #%d at %s", r.SequenceNumber, venue.Name)

	result, err := s.gw.Authorize(ctx, creds, payment.Amount, payment.Currency, description, r.ID)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return wrapError(CodeGatewayUnavailable, err, "payment provider unreachable")
		}
		if errors.Is(err, gateway.ErrDeclined) {
			if terr := s.transition(ctx, r, models.StatusRejected); terr != nil {
				return terr
			}
			if perr := s.db.MarkPaymentCanceled(ctx, payment.ID, models.PaymentFailed, ""); perr != nil {
				s.logger.Error().Err(perr).Str("payment_id", payment.ID).Msg("failed to mark payment failed")
			}
			return wrapError(CodeConflict, err, "payment declined")
		}
		return err
	}

	if err := s.db.UpdatePaymentAuthorization(ctx, payment.ID, result.Status, result.UID, result.CheckoutToken); err != nil {
		return err
	}
	payment.AuthorizeUID = result.UID
	payment.CheckoutToken = result.CheckoutToken
	return nil
}

func (s *Service) capturePayment(ctx context.Context, venue *models.Venue, r *models.Reservation) error {
	payment, err := s.db.GetPaymentByReservation(ctx, r.ID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if payment.AuthorizeUID == "" || !payment.DebitedAt.IsZero() {
		return nil
	}

	creds := gateway.Credentials{ShopID: venue.GatewayID, SecretKey: venue.GatewayKey}
	result, err := s.gw.Capture(ctx, creds, payment.AuthorizeUID, payment.Amount)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return wrapError(CodeGatewayUnavailable, err, "payment provider unreachable")
		}
		return err
	}
	if err := s.db.MarkPaymentDebited(ctx, payment.ID, result.UID); err != nil {
		return err
	}
	if err := s.db.UpdateReservationPaymentStatus(ctx, r.ID, models.PaymentSuccessful); err != nil {
		return err
	}
	r.PaymentStatus = models.PaymentSuccessful
	return nil
}

// releasePayment gives held money back: captured payments are refunded,
// authorizations voided. Failures are logged, never surfaced, so a dead
// provider cannot block a cancellation.
func (s *Service) releasePayment(ctx context.Context, r *models.Reservation, reason string) {
	payment, err := s.db.GetPaymentByReservation(ctx, r.ID)
	if errors.Is(err, database.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("failed to load payment for release")
		return
	}
	if payment.AuthorizeUID == "" || !payment.CanceledAt.IsZero() {
		return
	}

	venue, err := s.db.VenueByTable(ctx, r.TableID)
	if err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("failed to resolve venue for release")
		return
	}
	creds := gateway.Credentials{ShopID: venue.GatewayID, SecretKey: venue.GatewayKey}

	if !payment.DebitedAt.IsZero() {
		result, err := s.gw.Refund(ctx, creds, payment.CaptureUID, payment.Amount, reason)
		if err != nil {
			s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("refund failed")
			return
		}
		refund := &models.Refund{
			ReservationID: r.ID,
			Amount:        payment.Amount,
			Status:        result.Status,
			GatewayUID:    result.UID,
		}
		if err := s.db.CreateRefund(ctx, refund); err != nil {
			s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("failed to record refund")
		}
		return
	}

	result, err := s.gw.Void(ctx, creds, payment.AuthorizeUID, payment.Amount)
	if err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("void failed")
		return
	}
	if err := s.db.MarkPaymentCanceled(ctx, payment.ID, models.PaymentCanceled, result.UID); err != nil {
		s.logger.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to mark payment canceled")
	}
}

func (s *Service) publish(eventType, venueID string, r *models.Reservation, actor models.Actor) {
	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		VenueID:       venueID,
		TableID:       r.TableID,
		ClientID:      r.ClientID,
		Status:        r.Status,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Guests:        r.Guests,
		ActorID:       actor.ID,
		ActorRole:     string(actor.Role),
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
