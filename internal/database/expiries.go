package database

import (
	"context"
	"fmt"
	"time"

	"mesto/internal/models"
)

// ArmExpiry persists the SLA deadline for a reservation. Re-arming the same
// reservation replaces the previous deadline.
func (db *DB) ArmExpiry(ctx context.Context, reservationID string, fireAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO pending_expiries (reservation_id, fire_at, created_at) VALUES (?, ?, ?)
         ON CONFLICT(reservation_id) DO UPDATE SET fire_at = excluded.fire_at, created_at = excluded.created_at`,
		reservationID, fireAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to arm expiry: %w", err)
	}
	return nil
}

// DisarmExpiry removes the deadline. Removing an absent row is not an error.
func (db *DB) DisarmExpiry(ctx context.Context, reservationID string) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM pending_expiries WHERE reservation_id = ?`, reservationID)
	if err != nil {
		return fmt.Errorf("failed to disarm expiry: %w", err)
	}
	return nil
}

// PendingExpiries lists armed deadlines, soonest first. Used on startup to
// restore timers that outlived a restart.
func (db *DB) PendingExpiries(ctx context.Context) ([]models.PendingExpiry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT reservation_id, fire_at, created_at FROM pending_expiries ORDER BY fire_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending expiries: %w", err)
	}
	defer rows.Close()

	var result []models.PendingExpiry
	for rows.Next() {
		var e models.PendingExpiry
		if err := rows.Scan(&e.ReservationID, &e.FireAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending expiry: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
