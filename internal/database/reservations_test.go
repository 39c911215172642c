package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesto/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// seedTable creates venue -> section -> table and returns the table id.
func seedTable(t *testing.T, db *DB) (venueID, sectionID, tableID string) {
	ctx := context.Background()

	venue := &models.Venue{Name: "Test Venue"}
	require.NoError(t, db.CreateVenue(ctx, venue))

	section := &models.Section{VenueID: venue.ID, Name: "Main Hall"}
	require.NoError(t, db.CreateSection(ctx, section))

	table := &models.Table{SectionID: section.ID, Name: "T1"}
	require.NoError(t, db.CreateTable(ctx, table))

	return venue.ID, section.ID, table.ID
}

func makeReservation(tableID, clientID, status string, start, end time.Time) *models.Reservation {
	return &models.Reservation{
		TableID:   tableID,
		ClientID:  clientID,
		StartTime: start,
		EndTime:   end,
		Guests:    2,
		Status:    status,
	}
}

func TestCreateReservationSequenceNumbers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, _, tableID := seedTable(t, db)

	start := time.Date(2026, 6, 12, 18, 0, 0, 0, time.UTC)

	first := makeReservation(tableID, "client-1", models.StatusWaiting, start, start.Add(2*time.Hour))
	require.NoError(t, db.CreateReservation(ctx, first))
	assert.Equal(t, int64(1), first.SequenceNumber)

	second := makeReservation(tableID, "client-2", models.StatusWaiting, start.Add(3*time.Hour), start.Add(5*time.Hour))
	require.NoError(t, db.CreateReservation(ctx, second))
	assert.Equal(t, int64(2), second.SequenceNumber)
}

func TestCreateReservationRequiresStatus(t *testing.T) {
	db := setupTestDB(t)
	_, _, tableID := seedTable(t, db)

	r := makeReservation(tableID, "client-1", "", time.Now(), time.Now().Add(time.Hour))
	err := db.CreateReservation(context.Background(), r)
	assert.ErrorIs(t, err, ErrMissingInitialState)
}

func TestFindOverlapping(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, sectionID, tableID := seedTable(t, db)

	base := time.Date(2026, 6, 12, 18, 0, 0, 0, time.UTC)
	existing := makeReservation(tableID, "client-1", models.StatusAccepted, base, base.Add(2*time.Hour))
	require.NoError(t, db.CreateReservation(ctx, existing))

	cases := []struct {
		name       string
		start, end time.Time
		hits       int
	}{
		{"identical interval", base, base.Add(2 * time.Hour), 1},
		{"existing end falls inside", base.Add(-time.Hour), base.Add(time.Hour), 1},
		{"existing start falls inside", base.Add(time.Hour), base.Add(3 * time.Hour), 1},
		{"candidate swallowed whole", base.Add(30 * time.Minute), base.Add(time.Hour), 1},
		{"candidate swallows existing", base.Add(-time.Hour), base.Add(3 * time.Hour), 1},
		{"strictly before", base.Add(-2 * time.Hour), base.Add(-time.Hour), 0},
		{"strictly after", base.Add(3 * time.Hour), base.Add(4 * time.Hour), 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			found, err := db.FindOverlapping(ctx, Scope{TableID: tableID}, "client-2", tc.start, tc.end)
			require.NoError(t, err)
			assert.Len(t, found, tc.hits)
		})
	}

	t.Run("section scope", func(t *testing.T) {
		found, err := db.FindOverlapping(ctx, Scope{SectionID: sectionID}, "client-2", base, base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("exclude id", func(t *testing.T) {
		found, err := db.FindOverlapping(ctx, Scope{TableID: tableID}, "client-2", base, base.Add(2*time.Hour), existing.ID)
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestFindOverlappingOwnership(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, _, tableID := seedTable(t, db)

	base := time.Date(2026, 6, 12, 18, 0, 0, 0, time.UTC)

	waiting := makeReservation(tableID, "client-1", models.StatusWaiting, base, base.Add(2*time.Hour))
	require.NoError(t, db.CreateReservation(ctx, waiting))

	// A WAITING reservation held by someone else is invisible to another client.
	found, err := db.FindOverlapping(ctx, Scope{TableID: tableID}, "client-2", base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, found)

	// The owner always sees their own rows whatever the status.
	found, err = db.FindOverlapping(ctx, Scope{TableID: tableID}, "client-1", base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "client-1", found[0].ClientID)

	// Without a client every status matches.
	found, err = db.FindOverlapping(ctx, Scope{TableID: tableID}, "", base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestUpdateReservationStatusOptimisticLock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, _, tableID := seedTable(t, db)

	r := makeReservation(tableID, "client-1", models.StatusWaiting, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, db.CreateReservation(ctx, r))

	require.NoError(t, db.UpdateReservationStatus(ctx, r.ID, models.StatusAccepted, r.Version))

	// Stale version loses.
	err := db.UpdateReservationStatus(ctx, r.ID, models.StatusCanceled, r.Version)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	updated, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, updated.Status)
	assert.Equal(t, int64(2), updated.Version)

	err = db.UpdateReservationStatus(ctx, "missing", models.StatusAccepted, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpireIfWaiting(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, _, tableID := seedTable(t, db)

	r := makeReservation(tableID, "client-1", models.StatusWaiting, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, db.CreateReservation(ctx, r))

	changed, err := db.ExpireIfWaiting(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	// Second fire is a no-op.
	changed, err = db.ExpireIfWaiting(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	updated, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, updated.Status)
}

func TestExpireIfWaitingLosesToAccept(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, _, tableID := seedTable(t, db)

	r := makeReservation(tableID, "client-1", models.StatusWaiting, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, db.CreateReservation(ctx, r))
	require.NoError(t, db.UpdateReservationStatus(ctx, r.ID, models.StatusAccepted, r.Version))

	changed, err := db.ExpireIfWaiting(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	updated, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, updated.Status)
}

func TestFindInProgressAt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, _, tableID := seedTable(t, db)

	base := time.Date(2026, 6, 12, 18, 0, 0, 0, time.UTC)
	r := makeReservation(tableID, "client-1", models.StatusInProgress, base, base.Add(2*time.Hour))
	require.NoError(t, db.CreateReservation(ctx, r))

	found, err := db.FindInProgressAt(ctx, tableID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, r.ID, found.ID)

	// An instant outside the seated party's slot matches nothing, even
	// though the visit row is still open.
	_, err = db.FindInProgressAt(ctx, tableID, base.Add(3*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.UpdateReservationStatus(ctx, r.ID, models.StatusClosed, r.Version))
	_, err = db.FindInProgressAt(ctx, tableID, base.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartVisit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, _, tableID := seedTable(t, db)

	base := time.Date(2026, 6, 12, 18, 0, 0, 0, time.UTC)
	r := makeReservation(tableID, "client-1", models.StatusAccepted, base, base.Add(2*time.Hour))
	require.NoError(t, db.CreateReservation(ctx, r))

	seatedAt := base.Add(20 * time.Minute)
	require.NoError(t, db.StartVisit(ctx, r.ID, seatedAt, r.Version))

	updated, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, seatedAt, updated.StartTime.UTC())
	assert.Equal(t, int64(2), updated.Version)

	// Stale version loses.
	err = db.StartVisit(ctx, r.ID, seatedAt, r.Version)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	err = db.StartVisit(ctx, "missing", seatedAt, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReservationsForDay(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	venueID, _, tableID := seedTable(t, db)

	day := time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC)
	inside := makeReservation(tableID, "client-1", models.StatusWaiting, day.Add(18*time.Hour), day.Add(20*time.Hour))
	require.NoError(t, db.CreateReservation(ctx, inside))
	outside := makeReservation(tableID, "client-1", models.StatusWaiting, day.Add(26*time.Hour), day.Add(28*time.Hour))
	require.NoError(t, db.CreateReservation(ctx, outside))

	found, err := db.ReservationsForDay(ctx, venueID, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, inside.ID, found[0].ID)
}

func TestPendingExpiries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, _, tableID := seedTable(t, db)

	r := makeReservation(tableID, "client-1", models.StatusWaiting, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, db.CreateReservation(ctx, r))

	fireAt := time.Now().Add(30 * time.Minute).UTC()
	require.NoError(t, db.ArmExpiry(ctx, r.ID, fireAt))

	// Re-arm replaces.
	later := fireAt.Add(time.Hour)
	require.NoError(t, db.ArmExpiry(ctx, r.ID, later))

	pending, err := db.PendingExpiries(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ReservationID)
	assert.WithinDuration(t, later, pending[0].FireAt, time.Second)

	require.NoError(t, db.DisarmExpiry(ctx, r.ID))
	require.NoError(t, db.DisarmExpiry(ctx, r.ID)) // idempotent

	pending, err = db.PendingExpiries(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
