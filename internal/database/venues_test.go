package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesto/internal/models"
)

func TestVenueByTable(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	venueID, _, tableID := seedTable(t, db)

	venue, err := db.VenueByTable(ctx, tableID)
	require.NoError(t, err)
	assert.Equal(t, venueID, venue.ID)

	_, err = db.VenueByTable(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkingHoursRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	venueID, _, _ := seedTable(t, db)

	week := []models.OperatingHours{
		{VenueID: venueID, Weekday: 1, Start: time.Date(1970, 1, 1, 10, 0, 0, 0, time.UTC), End: time.Date(1970, 1, 1, 22, 0, 0, 0, time.UTC)},
		{VenueID: venueID, Weekday: 2, IsDayOff: true, Start: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, db.SetWorkingHours(ctx, venueID, week))

	got, err := db.WorkingHours(ctx, venueID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Weekday)
	assert.Equal(t, 10, got[0].Start.UTC().Hour())
	assert.True(t, got[1].IsDayOff)

	// Replacing drops the old schedule.
	require.NoError(t, db.SetWorkingHours(ctx, venueID, week[:1]))
	got, err = db.WorkingHours(ctx, venueID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPolicyUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	venueID, _, _ := seedTable(t, db)

	p := &models.ReservationPolicy{
		VenueID:             venueID,
		MinBookingTime:      3600,
		UnreachableInterval: 900,
		ResponseTime:        1800,
		DelayedResponseTime: 1200,
	}
	require.NoError(t, db.SetPolicy(ctx, p))

	p.ResponseTime = 2400
	require.NoError(t, db.SetPolicy(ctx, p))

	got, err := db.Policy(ctx, venueID)
	require.NoError(t, err)
	assert.Equal(t, int64(2400), got.ResponseTime)
	assert.Equal(t, 40*time.Minute, got.Response())
}

func TestDepositExceptionsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	venueID, _, _ := seedTable(t, db)

	d := &models.DepositPolicy{VenueID: venueID, IsTablePrice: true, TablePrice: 5000, Interaction: models.DepositTakeMore}
	require.NoError(t, db.SetDeposit(ctx, d))

	older := &models.DepositException{
		DepositID:     d.ID,
		ForDaysOfWeek: true,
		Days:          "5",
		IsAllDay:      true,
		IsTablePrice:  true,
		TablePrice:    7000,
		CreatedAt:     time.Now().Add(-time.Hour).UTC(),
	}
	require.NoError(t, db.AddDepositException(ctx, older))

	newer := &models.DepositException{
		DepositID:     d.ID,
		ForDaysOfWeek: true,
		Days:          "5",
		IsAllDay:      true,
		IsTablePrice:  true,
		TablePrice:    9000,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, db.AddDepositException(ctx, newer))

	_, exceptions, err := db.Deposit(ctx, venueID)
	require.NoError(t, err)
	require.Len(t, exceptions, 2)
	assert.Equal(t, int64(9000), exceptions[0].TablePrice)
}

func TestMenuItemsByIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	venueID, _, _ := seedTable(t, db)

	soup := &models.MenuItem{VenueID: venueID, Name: "Soup", Price: 1200}
	require.NoError(t, db.AddMenuItem(ctx, soup))
	steak := &models.MenuItem{VenueID: venueID, Name: "Steak", Price: 4500}
	require.NoError(t, db.AddMenuItem(ctx, steak))

	items, err := db.MenuItemsByIDs(ctx, venueID, []string{soup.ID, steak.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = db.MenuItemsByIDs(ctx, venueID, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRatingCounters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	venueID, _, _ := seedTable(t, db)

	c := &models.RatingCounter{VenueID: venueID, ClientID: "client-1", RatingName: "loyalty"}
	require.NoError(t, db.CreateRatingCounter(ctx, c))

	require.NoError(t, db.IncrementRatingCounters(ctx, venueID, "client-1"))
	require.NoError(t, db.IncrementRatingCounters(ctx, venueID, "client-1"))

	counters, err := db.RatingCounters(ctx, venueID, "client-1")
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, int64(2), counters[0].SuccessBookings)
}

func TestVisitedVenueUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	venueID, _, _ := seedTable(t, db)

	first := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, db.UpsertVisitedVenue(ctx, venueID, "client-1", first))
	second := time.Now().UTC()
	require.NoError(t, db.UpsertVisitedVenue(ctx, venueID, "client-1", second))

	var lastVisit time.Time
	err := db.QueryRowContext(ctx,
		`SELECT last_visit FROM visited_venues WHERE venue_id = ? AND client_id = ?`, venueID, "client-1").
		Scan(&lastVisit)
	require.NoError(t, err)
	assert.WithinDuration(t, second, lastVisit, time.Second)
}
