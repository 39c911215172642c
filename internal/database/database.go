package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the relational store. All timestamps are normalized to UTC at this
// boundary so that range comparisons inside sqlite stay ordered.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = path + "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS venues (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            gateway_id TEXT NOT NULL DEFAULT '',
            gateway_key TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS sections (
            id TEXT PRIMARY KEY,
            venue_id TEXT NOT NULL REFERENCES venues(id),
            name TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS tables (
            id TEXT PRIMARY KEY,
            section_id TEXT NOT NULL REFERENCES sections(id),
            name TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS working_hours (
            venue_id TEXT NOT NULL REFERENCES venues(id),
            weekday INTEGER NOT NULL,
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            is_day_off BOOLEAN NOT NULL DEFAULT 0,
            is_open_all_day BOOLEAN NOT NULL DEFAULT 0,
            PRIMARY KEY (venue_id, weekday)
        )`,
		`CREATE TABLE IF NOT EXISTS reserve_settings (
            venue_id TEXT PRIMARY KEY REFERENCES venues(id),
            min_booking_time INTEGER NOT NULL DEFAULT 0,
            unreachable_interval INTEGER NOT NULL DEFAULT 0,
            time_between_reserves INTEGER NOT NULL DEFAULT 0,
            response_time INTEGER NOT NULL DEFAULT 0,
            delayed_response_time INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS deposits (
            id TEXT PRIMARY KEY,
            venue_id TEXT NOT NULL UNIQUE REFERENCES venues(id),
            is_person_price BOOLEAN NOT NULL DEFAULT 0,
            person_price INTEGER NOT NULL DEFAULT 0,
            is_table_price BOOLEAN NOT NULL DEFAULT 0,
            table_price INTEGER NOT NULL DEFAULT 0,
            interaction TEXT NOT NULL DEFAULT 'TAKE_MORE'
        )`,
		`CREATE TABLE IF NOT EXISTS deposit_exceptions (
            id TEXT PRIMARY KEY,
            deposit_id TEXT NOT NULL REFERENCES deposits(id),
            for_days_of_week BOOLEAN NOT NULL DEFAULT 0,
            start_date DATETIME,
            end_date DATETIME,
            days TEXT NOT NULL DEFAULT '',
            is_all_day BOOLEAN NOT NULL DEFAULT 1,
            start_time DATETIME,
            end_time DATETIME,
            is_person_price BOOLEAN NOT NULL DEFAULT 0,
            person_price INTEGER NOT NULL DEFAULT 0,
            is_table_price BOOLEAN NOT NULL DEFAULT 0,
            table_price INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS menu_items (
            id TEXT PRIMARY KEY,
            venue_id TEXT NOT NULL REFERENCES venues(id),
            name TEXT NOT NULL,
            price INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS reservations (
            id TEXT PRIMARY KEY,
            table_id TEXT NOT NULL REFERENCES tables(id),
            client_id TEXT NOT NULL,
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            guests INTEGER NOT NULL DEFAULT 1,
            sequence_number INTEGER NOT NULL,
            status TEXT NOT NULL,
            payment_status TEXT NOT NULL DEFAULT '',
            comment TEXT NOT NULL DEFAULT '',
            manager_comment TEXT NOT NULL DEFAULT '',
            deposit_hold_id TEXT NOT NULL DEFAULT '',
            pre_order_charge_id TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS deposit_holds (
            id TEXT PRIMARY KEY,
            client_id TEXT NOT NULL,
            amount INTEGER NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS preorder_charges (
            id TEXT PRIMARY KEY,
            client_id TEXT NOT NULL,
            amount INTEGER NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS preorder_items (
            charge_id TEXT NOT NULL REFERENCES preorder_charges(id),
            menu_item_id TEXT NOT NULL REFERENCES menu_items(id),
            count INTEGER NOT NULL,
            PRIMARY KEY (charge_id, menu_item_id)
        )`,
		`CREATE TABLE IF NOT EXISTS payments (
            id TEXT PRIMARY KEY,
            reservation_id TEXT NOT NULL REFERENCES reservations(id),
            amount INTEGER NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            authorize_uid TEXT NOT NULL DEFAULT '',
            capture_uid TEXT NOT NULL DEFAULT '',
            void_uid TEXT NOT NULL DEFAULT '',
            checkout_token TEXT NOT NULL DEFAULT '',
            debited_at DATETIME,
            canceled_at DATETIME,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS refunds (
            id TEXT PRIMARY KEY,
            reservation_id TEXT NOT NULL REFERENCES reservations(id),
            amount INTEGER NOT NULL,
            status TEXT NOT NULL,
            gateway_uid TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS visited_venues (
            venue_id TEXT NOT NULL REFERENCES venues(id),
            client_id TEXT NOT NULL,
            last_visit DATETIME NOT NULL,
            PRIMARY KEY (venue_id, client_id)
        )`,
		`CREATE TABLE IF NOT EXISTS rating_counters (
            id TEXT PRIMARY KEY,
            venue_id TEXT NOT NULL REFERENCES venues(id),
            client_id TEXT NOT NULL,
            rating_name TEXT NOT NULL,
            average_rating REAL NOT NULL DEFAULT 0,
            success_bookings INTEGER NOT NULL DEFAULT 0,
            UNIQUE (venue_id, client_id, rating_name)
        )`,
		`CREATE TABLE IF NOT EXISTS pending_expiries (
            reservation_id TEXT PRIMARY KEY REFERENCES reservations(id),
            fire_at DATETIME NOT NULL,
            created_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_table_id ON reservations(table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_client_id ON reservations(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_start_time ON reservations(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_deposit_exceptions_deposit_id ON deposit_exceptions(deposit_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_expiries_fire_at ON pending_expiries(fire_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
