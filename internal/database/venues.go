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

func (db *DB) CreateVenue(ctx context.Context, v *models.Venue) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now().UTC()

	_, err := db.ExecContext(ctx,
		`INSERT INTO venues (id, name, gateway_id, gateway_key, created_at) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.GatewayID, v.GatewayKey, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create venue: %w", err)
	}
	return nil
}

func (db *DB) GetVenue(ctx context.Context, id string) (*models.Venue, error) {
	var v models.Venue
	err := db.QueryRowContext(ctx,
		`SELECT id, name, gateway_id, gateway_key, created_at FROM venues WHERE id = ?`, id).
		Scan(&v.ID, &v.Name, &v.GatewayID, &v.GatewayKey, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	return &v, nil
}

// VenueByTable resolves the venue owning the given table.
func (db *DB) VenueByTable(ctx context.Context, tableID string) (*models.Venue, error) {
	var v models.Venue
	err := db.QueryRowContext(ctx,
		`SELECT v.id, v.name, v.gateway_id, v.gateway_key, v.created_at
         FROM venues v
         JOIN sections s ON s.venue_id = v.id
         JOIN tables t ON t.section_id = s.id
         WHERE t.id = ?`, tableID).
		Scan(&v.ID, &v.Name, &v.GatewayID, &v.GatewayKey, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve venue by table: %w", err)
	}
	return &v, nil
}

func (db *DB) CreateSection(ctx context.Context, s *models.Section) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO sections (id, venue_id, name) VALUES (?, ?, ?)`,
		s.ID, s.VenueID, s.Name)
	if err != nil {
		return fmt.Errorf("failed to create section: %w", err)
	}
	return nil
}

func (db *DB) CreateTable(ctx context.Context, t *models.Table) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO tables (id, section_id, name) VALUES (?, ?, ?)`,
		t.ID, t.SectionID, t.Name)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (db *DB) GetTable(ctx context.Context, id string) (*models.Table, error) {
	var t models.Table
	err := db.QueryRowContext(ctx,
		`SELECT id, section_id, name FROM tables WHERE id = ?`, id).
		Scan(&t.ID, &t.SectionID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	return &t, nil
}

func (db *DB) TablesByVenue(ctx context.Context, venueID string) ([]models.Table, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT t.id, t.section_id, t.name
         FROM tables t
         JOIN sections s ON s.id = t.section_id
         WHERE s.venue_id = ?
         ORDER BY t.name`, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []models.Table
	for rows.Next() {
		var t models.Table
		if err := rows.Scan(&t.ID, &t.SectionID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// SetWorkingHours replaces the full weekly schedule for a venue.
func (db *DB) SetWorkingHours(ctx context.Context, venueID string, week []models.OperatingHours) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM working_hours WHERE venue_id = ?`, venueID); err != nil {
		return fmt.Errorf("failed to clear working hours: %w", err)
	}
	for _, h := range week {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO working_hours (venue_id, weekday, start_time, end_time, is_day_off, is_open_all_day)
             VALUES (?, ?, ?, ?, ?, ?)`,
			venueID, h.Weekday, h.Start.UTC(), h.End.UTC(), h.IsDayOff, h.IsOpenAllDay)
		if err != nil {
			return fmt.Errorf("failed to insert working hours: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) WorkingHours(ctx context.Context, venueID string) ([]models.OperatingHours, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT venue_id, weekday, start_time, end_time, is_day_off, is_open_all_day
         FROM working_hours WHERE venue_id = ? ORDER BY weekday`, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get working hours: %w", err)
	}
	defer rows.Close()

	var week []models.OperatingHours
	for rows.Next() {
		var h models.OperatingHours
		if err := rows.Scan(&h.VenueID, &h.Weekday, &h.Start, &h.End, &h.IsDayOff, &h.IsOpenAllDay); err != nil {
			return nil, fmt.Errorf("failed to scan working hours: %w", err)
		}
		week = append(week, h)
	}
	return week, rows.Err()
}

func (db *DB) SetPolicy(ctx context.Context, p *models.ReservationPolicy) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO reserve_settings (venue_id, min_booking_time, unreachable_interval, time_between_reserves, response_time, delayed_response_time)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(venue_id) DO UPDATE SET
            min_booking_time = excluded.min_booking_time,
            unreachable_interval = excluded.unreachable_interval,
            time_between_reserves = excluded.time_between_reserves,
            response_time = excluded.response_time,
            delayed_response_time = excluded.delayed_response_time`,
		p.VenueID, p.MinBookingTime, p.UnreachableInterval, p.TimeBetweenReserves, p.ResponseTime, p.DelayedResponseTime)
	if err != nil {
		return fmt.Errorf("failed to set reserve settings: %w", err)
	}
	return nil
}

func (db *DB) Policy(ctx context.Context, venueID string) (*models.ReservationPolicy, error) {
	var p models.ReservationPolicy
	err := db.QueryRowContext(ctx,
		`SELECT venue_id, min_booking_time, unreachable_interval, time_between_reserves, response_time, delayed_response_time
         FROM reserve_settings WHERE venue_id = ?`, venueID).
		Scan(&p.VenueID, &p.MinBookingTime, &p.UnreachableInterval, &p.TimeBetweenReserves, &p.ResponseTime, &p.DelayedResponseTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reserve settings: %w", err)
	}
	return &p, nil
}

func (db *DB) SetDeposit(ctx context.Context, d *models.DepositPolicy) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO deposits (id, venue_id, is_person_price, person_price, is_table_price, table_price, interaction)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(venue_id) DO UPDATE SET
            is_person_price = excluded.is_person_price,
            person_price = excluded.person_price,
            is_table_price = excluded.is_table_price,
            table_price = excluded.table_price,
            interaction = excluded.interaction`,
		d.ID, d.VenueID, d.IsPersonPrice, d.PersonPrice, d.IsTablePrice, d.TablePrice, d.Interaction)
	if err != nil {
		return fmt.Errorf("failed to set deposit: %w", err)
	}
	return nil
}

// Deposit returns the base deposit rule and its exceptions,
// newest exception first.
func (db *DB) Deposit(ctx context.Context, venueID string) (*models.DepositPolicy, []models.DepositException, error) {
	var d models.DepositPolicy
	err := db.QueryRowContext(ctx,
		`SELECT id, venue_id, is_person_price, person_price, is_table_price, table_price, interaction
         FROM deposits WHERE venue_id = ?`, venueID).
		Scan(&d.ID, &d.VenueID, &d.IsPersonPrice, &d.PersonPrice, &d.IsTablePrice, &d.TablePrice, &d.Interaction)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get deposit: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, deposit_id, for_days_of_week, start_date, end_date, days, is_all_day, start_time, end_time,
                is_person_price, person_price, is_table_price, table_price, created_at
         FROM deposit_exceptions WHERE deposit_id = ? ORDER BY created_at DESC`, d.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get deposit exceptions: %w", err)
	}
	defer rows.Close()

	var exceptions []models.DepositException
	for rows.Next() {
		var e models.DepositException
		var startDate, endDate, startTime, endTime sql.NullTime
		err := rows.Scan(&e.ID, &e.DepositID, &e.ForDaysOfWeek, &startDate, &endDate, &e.Days, &e.IsAllDay,
			&startTime, &endTime, &e.IsPersonPrice, &e.PersonPrice, &e.IsTablePrice, &e.TablePrice, &e.CreatedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan deposit exception: %w", err)
		}
		if startDate.Valid {
			e.StartDate = &startDate.Time
		}
		if endDate.Valid {
			e.EndDate = &endDate.Time
		}
		if startTime.Valid {
			e.StartTime = &startTime.Time
		}
		if endTime.Valid {
			e.EndTime = &endTime.Time
		}
		exceptions = append(exceptions, e)
	}
	return &d, exceptions, rows.Err()
}

func (db *DB) AddDepositException(ctx context.Context, e *models.DepositException) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO deposit_exceptions (id, deposit_id, for_days_of_week, start_date, end_date, days, is_all_day,
            start_time, end_time, is_person_price, person_price, is_table_price, table_price, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DepositID, e.ForDaysOfWeek, nullTime(e.StartDate), nullTime(e.EndDate), e.Days, e.IsAllDay,
		nullTime(e.StartTime), nullTime(e.EndTime), e.IsPersonPrice, e.PersonPrice, e.IsTablePrice, e.TablePrice,
		e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add deposit exception: %w", err)
	}
	return nil
}

func (db *DB) AddMenuItem(ctx context.Context, m *models.MenuItem) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO menu_items (id, venue_id, name, price) VALUES (?, ?, ?, ?)`,
		m.ID, m.VenueID, m.Name, m.Price)
	if err != nil {
		return fmt.Errorf("failed to add menu item: %w", err)
	}
	return nil
}

func (db *DB) MenuItemsByIDs(ctx context.Context, venueID string, ids []string) ([]models.MenuItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, venueID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, venue_id, name, price FROM menu_items WHERE venue_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get menu items: %w", err)
	}
	defer rows.Close()

	var items []models.MenuItem
	for rows.Next() {
		var m models.MenuItem
		if err := rows.Scan(&m.ID, &m.VenueID, &m.Name, &m.Price); err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (db *DB) UpsertVisitedVenue(ctx context.Context, venueID, clientID string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO visited_venues (venue_id, client_id, last_visit) VALUES (?, ?, ?)
         ON CONFLICT(venue_id, client_id) DO UPDATE SET last_visit = excluded.last_visit`,
		venueID, clientID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert visited venue: %w", err)
	}
	return nil
}

// IncrementRatingCounters bumps success_bookings for every rating
// counter the client has at the venue.
func (db *DB) IncrementRatingCounters(ctx context.Context, venueID, clientID string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE rating_counters SET success_bookings = success_bookings + 1
         WHERE venue_id = ? AND client_id = ?`, venueID, clientID)
	if err != nil {
		return fmt.Errorf("failed to increment rating counters: %w", err)
	}
	return nil
}

func (db *DB) CreateRatingCounter(ctx context.Context, c *models.RatingCounter) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO rating_counters (id, venue_id, client_id, rating_name, average_rating, success_bookings)
         VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.VenueID, c.ClientID, c.RatingName, c.AverageRating, c.SuccessBookings)
	if err != nil {
		return fmt.Errorf("failed to create rating counter: %w", err)
	}
	return nil
}

func (db *DB) RatingCounters(ctx context.Context, venueID, clientID string) ([]models.RatingCounter, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, venue_id, client_id, rating_name, average_rating, success_bookings
         FROM rating_counters WHERE venue_id = ? AND client_id = ?`, venueID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rating counters: %w", err)
	}
	defer rows.Close()

	var counters []models.RatingCounter
	for rows.Next() {
		var c models.RatingCounter
		if err := rows.Scan(&c.ID, &c.VenueID, &c.ClientID, &c.RatingName, &c.AverageRating, &c.SuccessBookings); err != nil {
			return nil, fmt.Errorf("failed to scan rating counter: %w", err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
