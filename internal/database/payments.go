package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mesto/internal/models"
)

func (db *DB) CreateDepositHold(ctx context.Context, h *models.DepositHold) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	h.CreatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO deposit_holds (id, client_id, amount, currency, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.ClientID, h.Amount, h.Currency, h.Status, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create deposit hold: %w", err)
	}
	return nil
}

func (db *DB) CreatePreOrderCharge(ctx context.Context, c *models.PreOrderCharge) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO preorder_charges (id, client_id, amount, currency, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClientID, c.Amount, c.Currency, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create preorder charge: %w", err)
	}
	for _, item := range c.Items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO preorder_items (charge_id, menu_item_id, count) VALUES (?, ?, ?)`,
			c.ID, item.MenuItemID, item.Count)
		if err != nil {
			return fmt.Errorf("failed to create preorder item: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) GetPreOrderCharge(ctx context.Context, id string) (*models.PreOrderCharge, error) {
	var c models.PreOrderCharge
	err := db.QueryRowContext(ctx,
		`SELECT id, client_id, amount, currency, status, created_at FROM preorder_charges WHERE id = ?`, id).
		Scan(&c.ID, &c.ClientID, &c.Amount, &c.Currency, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preorder charge: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT menu_item_id, count FROM preorder_items WHERE charge_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get preorder items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item models.PreOrderItem
		if err := rows.Scan(&item.MenuItemID, &item.Count); err != nil {
			return nil, fmt.Errorf("failed to scan preorder item: %w", err)
		}
		c.Items = append(c.Items, item)
	}
	return &c, rows.Err()
}

func (db *DB) GetDepositHold(ctx context.Context, id string) (*models.DepositHold, error) {
	var h models.DepositHold
	err := db.QueryRowContext(ctx,
		`SELECT id, client_id, amount, currency, status, created_at FROM deposit_holds WHERE id = ?`, id).
		Scan(&h.ID, &h.ClientID, &h.Amount, &h.Currency, &h.Status, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit hold: %w", err)
	}
	return &h, nil
}

func (db *DB) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO payments (id, reservation_id, amount, currency, status, authorize_uid, capture_uid, void_uid, checkout_token, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ReservationID, p.Amount, p.Currency, p.Status,
		p.AuthorizeUID, p.CaptureUID, p.VoidUID, p.CheckoutToken, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (db *DB) GetPaymentByReservation(ctx context.Context, reservationID string) (*models.Payment, error) {
	var p models.Payment
	var debitedAt, canceledAt sql.NullTime
	err := db.QueryRowContext(ctx,
		`SELECT id, reservation_id, amount, currency, status, authorize_uid, capture_uid, void_uid, checkout_token, debited_at, canceled_at, created_at
         FROM payments WHERE reservation_id = ? ORDER BY created_at DESC LIMIT 1`, reservationID).
		Scan(&p.ID, &p.ReservationID, &p.Amount, &p.Currency, &p.Status,
			&p.AuthorizeUID, &p.CaptureUID, &p.VoidUID, &p.CheckoutToken, &debitedAt, &canceledAt, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if debitedAt.Valid {
		p.DebitedAt = debitedAt.Time
	}
	if canceledAt.Valid {
		p.CanceledAt = canceledAt.Time
	}
	return &p, nil
}

// MarkPaymentDebited records a successful capture.
func (db *DB) MarkPaymentDebited(ctx context.Context, id, captureUID string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE payments SET status = ?, capture_uid = ?, debited_at = ? WHERE id = ?`,
		models.PaymentSuccessful, captureUID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark payment debited: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaymentCanceled records a void or a failed authorization.
func (db *DB) MarkPaymentCanceled(ctx context.Context, id, status, voidUID string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE payments SET status = ?, void_uid = ?, canceled_at = ? WHERE id = ?`,
		status, voidUID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark payment canceled: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) UpdatePaymentAuthorization(ctx context.Context, id, status, authorizeUID, checkoutToken string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE payments SET status = ?, authorize_uid = ?, checkout_token = ? WHERE id = ?`,
		status, authorizeUID, checkoutToken, id)
	if err != nil {
		return fmt.Errorf("failed to update payment authorization: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) CreateRefund(ctx context.Context, r *models.Refund) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.CreatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO refunds (id, reservation_id, amount, status, gateway_uid, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ReservationID, r.Amount, r.Status, r.GatewayUID, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}
