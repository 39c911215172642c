package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mesto/internal/models"
)

var reservationFields = []string{
	"id", "table_id", "client_id", "start_time", "end_time", "guests", "sequence_number",
	"status", "payment_status", "comment", "manager_comment", "deposit_hold_id", "pre_order_charge_id",
	"created_at", "updated_at", "version",
}

var (
	reservationColumns         = strings.Join(reservationFields, ", ")
	reservationColumnsPrefixed = "r." + strings.Join(reservationFields, ", r.")
)

// Scope limits an overlap query to a single table or a whole section.
// Exactly one of the fields is expected to be set.
type Scope struct {
	TableID   string
	SectionID string
}

func scanReservation(row interface{ Scan(...any) error }) (*models.Reservation, error) {
	var r models.Reservation
	err := row.Scan(&r.ID, &r.TableID, &r.ClientID, &r.StartTime, &r.EndTime, &r.Guests,
		&r.SequenceNumber, &r.Status, &r.PaymentStatus, &r.Comment, &r.ManagerComment,
		&r.DepositHoldID, &r.PreOrderChargeID, &r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReservation inserts a reservation inside a transaction that also
// claims the next per-table sequence number. The caller must set the initial
// status explicitly.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	if r.Status == "" {
		return ErrMissingInitialState
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.Version = 1
	r.StartTime = r.StartTime.UTC()
	r.EndTime = r.EndTime.UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM reservations WHERE table_id = ?`, r.TableID).
		Scan(&last)
	if err != nil {
		return fmt.Errorf("failed to get last sequence number: %w", err)
	}
	r.SequenceNumber = last + 1

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reservations (`+reservationColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TableID, r.ClientID, r.StartTime, r.EndTime, r.Guests, r.SequenceNumber,
		r.Status, r.PaymentStatus, r.Comment, r.ManagerComment, r.DepositHoldID, r.PreOrderChargeID,
		r.CreatedAt.UTC(), r.UpdatedAt, r.Version)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return tx.Commit()
}

func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// FindOverlapping returns reservations intersecting [start, end) within the
// scope. For a non-empty clientID rows held by other clients are returned
// only in blocking statuses, while the client's own rows are always returned
// so callers can tell ownership apart. An empty clientID matches every row
// regardless of status.
func (db *DB) FindOverlapping(ctx context.Context, scope Scope, clientID string, start, end time.Time, excludeIDs ...string) ([]models.Reservation, error) {
	start = start.UTC()
	end = end.UTC()

	var sb strings.Builder
	sb.WriteString(`SELECT ` + reservationColumnsPrefixed + `
        FROM reservations r
        JOIN tables t ON t.id = r.table_id
        WHERE 1=1`)
	var args []any

	if scope.TableID != "" {
		sb.WriteString(` AND r.table_id = ?`)
		args = append(args, scope.TableID)
	}
	if scope.SectionID != "" {
		sb.WriteString(` AND t.section_id = ?`)
		args = append(args, scope.SectionID)
	}
	if len(excludeIDs) > 0 {
		sb.WriteString(` AND r.id NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(excludeIDs)), ",") + `)`)
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	if clientID != "" {
		sb.WriteString(` AND ((r.status IN ('ACCEPTED', 'IN_PROGRESS') AND r.client_id != ?) OR r.client_id = ?)`)
		args = append(args, clientID, clientID)
	}

	sb.WriteString(` AND ((r.end_time > ? AND r.end_time < ?)
        OR (r.start_time > ? AND r.start_time < ?)
        OR (r.end_time >= ? AND r.start_time <= ?))
        ORDER BY r.start_time`)
	args = append(args, start, end, start, end, end, start)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping reservations: %w", err)
	}
	defer rows.Close()

	var result []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// FindInProgressAt returns the reservation seated at the table whose slot
// covers the instant, if any. A visit that already ran past its slot stops
// matching once the instant leaves the slot.
func (db *DB) FindInProgressAt(ctx context.Context, tableID string, at time.Time) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
         WHERE table_id = ? AND status = ? AND start_time <= ? AND end_time >= ?
         LIMIT 1`,
		tableID, models.StatusInProgress, at.UTC(), at.UTC())
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find in-progress reservation: %w", err)
	}
	return r, nil
}

// UpdateReservationStatus applies an optimistic-lock status change. The
// expected version must match the stored row or ErrConcurrentModification is
// returned.
func (db *DB) UpdateReservationStatus(ctx context.Context, id, status string, version int64) error {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ?, version = version + 1
         WHERE id = ? AND version = ?`,
		status, time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := db.GetReservation(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConcurrentModification
	}
	return nil
}

// StartVisit moves the reservation IN_PROGRESS and writes the effective
// visit start in the same optimistic update.
func (db *DB) StartVisit(ctx context.Context, id string, startAt time.Time, version int64) error {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, start_time = ?, updated_at = ?, version = version + 1
         WHERE id = ? AND version = ?`,
		models.StatusInProgress, startAt.UTC(), time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("failed to start visit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := db.GetReservation(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConcurrentModification
	}
	return nil
}

// UpdateReservationTimes moves a reservation to a new slot. Used by the
// reschedule path after conflict checks pass.
func (db *DB) UpdateReservationTimes(ctx context.Context, id string, tableID string, start, end time.Time, guests int, managerComment string, version int64) error {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET table_id = ?, start_time = ?, end_time = ?, guests = ?, manager_comment = ?,
            updated_at = ?, version = version + 1
         WHERE id = ? AND version = ?`,
		tableID, start.UTC(), end.UTC(), guests, managerComment, time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := db.GetReservation(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) UpdateReservationPaymentStatus(ctx context.Context, id, paymentStatus string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET payment_status = ?, updated_at = ? WHERE id = ?`,
		paymentStatus, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireIfWaiting marks the reservation EXPIRED only if it is still WAITING.
// Returns false when the row had already moved on, which makes late timer
// fires harmless.
func (db *DB) ExpireIfWaiting(ctx context.Context, id string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ?, version = version + 1
         WHERE id = ? AND status = ?`,
		models.StatusExpired, time.Now().UTC(), id, models.StatusWaiting)
	if err != nil {
		return false, fmt.Errorf("failed to expire reservation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReservationsForDay lists every reservation of the venue's tables whose
// start falls inside [dayStart, dayEnd). Used by the grid and the export.
func (db *DB) ReservationsForDay(ctx context.Context, venueID string, dayStart, dayEnd time.Time) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumnsPrefixed+`
         FROM reservations r
         JOIN tables t ON t.id = r.table_id
         JOIN sections s ON s.id = t.section_id
         WHERE s.venue_id = ? AND r.start_time >= ? AND r.start_time < ?
         ORDER BY r.start_time`,
		venueID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var result []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func (db *DB) ReservationsByClient(ctx context.Context, clientID string) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE client_id = ? ORDER BY start_time DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list client reservations: %w", err)
	}
	defer rows.Close()

	var result []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}
