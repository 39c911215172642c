package pricing

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesto/internal/database"
	"mesto/internal/models"
)

func setupCalculator(t *testing.T) (*Calculator, *database.DB, string) {
	logger := zerolog.New(os.Stdout)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	venue := &models.Venue{Name: "Test Venue"}
	require.NoError(t, db.CreateVenue(context.Background(), venue))

	return NewCalculator(db, "USD", &logger), db, venue.ID
}

// Friday evening on a fixed calendar.
var (
	slotStart = time.Date(2026, 6, 12, 19, 0, 0, 0, time.UTC)
	slotEnd   = slotStart.Add(2 * time.Hour)
)

func TestComputeTakeMorePicksLargerRule(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	require.NoError(t, db.SetDeposit(ctx, &models.DepositPolicy{
		VenueID:       venueID,
		IsPersonPrice: true,
		PersonPrice:   1000,
		IsTablePrice:  true,
		TablePrice:    5000,
		Interaction:   models.DepositTakeMore,
	}))

	// 4 guests x $10 = $40 loses to the $50 table rate.
	quote, err := calc.Compute(ctx, venueID, slotStart, slotEnd, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), quote.Deposit)

	// 6 guests x $10 = $60 beats it.
	quote, err = calc.Compute(ctx, venueID, slotStart, slotEnd, 6, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), quote.Deposit)
}

func TestComputeSumAddsRules(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	require.NoError(t, db.SetDeposit(ctx, &models.DepositPolicy{
		VenueID:       venueID,
		IsPersonPrice: true,
		PersonPrice:   1000,
		IsTablePrice:  true,
		TablePrice:    5000,
		Interaction:   models.DepositSum,
	}))

	quote, err := calc.Compute(ctx, venueID, slotStart, slotEnd, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), quote.Deposit)
}

func TestComputeTotalIsLargerOfDepositAndPreOrder(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	require.NoError(t, db.SetDeposit(ctx, &models.DepositPolicy{
		VenueID:      venueID,
		IsTablePrice: true,
		TablePrice:   5000,
		Interaction:  models.DepositTakeMore,
	}))
	steak := &models.MenuItem{VenueID: venueID, Name: "Steak", Price: 4500}
	require.NoError(t, db.AddMenuItem(ctx, steak))

	// Pre-order below the deposit: deposit dominates.
	quote, err := calc.Compute(ctx, venueID, slotStart, slotEnd, 2, []models.MenuSelection{{MenuItemID: steak.ID, Count: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), quote.Deposit)
	assert.Equal(t, int64(4500), quote.PreOrder)
	assert.Equal(t, int64(5000), quote.Total)

	// Pre-order above the deposit: the commitment already covers it.
	quote, err = calc.Compute(ctx, venueID, slotStart, slotEnd, 2, []models.MenuSelection{{MenuItemID: steak.ID, Count: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(9000), quote.PreOrder)
	assert.Equal(t, int64(9000), quote.Total)
}

func TestComputeNoDepositPolicy(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	soup := &models.MenuItem{VenueID: venueID, Name: "Soup", Price: 1200}
	require.NoError(t, db.AddMenuItem(ctx, soup))

	quote, err := calc.Compute(ctx, venueID, slotStart, slotEnd, 2, []models.MenuSelection{{MenuItemID: soup.ID, Count: 3}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), quote.Deposit)
	assert.Equal(t, int64(3600), quote.Total)
}

func TestComputeUnknownMenuItem(t *testing.T) {
	calc, _, venueID := setupCalculator(t)

	_, err := calc.Compute(context.Background(), venueID, slotStart, slotEnd, 2, []models.MenuSelection{{MenuItemID: "missing", Count: 1}})
	assert.ErrorIs(t, err, ErrUnknownMenuItem)
}

func TestExceptionWeekdayRecurring(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	base := &models.DepositPolicy{VenueID: venueID, IsTablePrice: true, TablePrice: 5000, Interaction: models.DepositTakeMore}
	require.NoError(t, db.SetDeposit(ctx, base))

	// Fridays cost more. slotStart is a Friday (weekday 5).
	require.NoError(t, db.AddDepositException(ctx, &models.DepositException{
		DepositID:     base.ID,
		ForDaysOfWeek: true,
		Days:          "5",
		IsAllDay:      true,
		IsTablePrice:  true,
		TablePrice:    9000,
		CreatedAt:     time.Now().UTC(),
	}))

	quote, err := calc.Compute(ctx, venueID, slotStart, slotEnd, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), quote.Deposit)

	// A Wednesday keeps the base rate.
	wednesday := slotStart.AddDate(0, 0, -2)
	quote, err = calc.Compute(ctx, venueID, wednesday, wednesday.Add(2*time.Hour), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), quote.Deposit)
}

func TestExceptionDateRange(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	base := &models.DepositPolicy{VenueID: venueID, IsTablePrice: true, TablePrice: 5000, Interaction: models.DepositTakeMore}
	require.NoError(t, db.SetDeposit(ctx, base))

	from := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.AddDepositException(ctx, &models.DepositException{
		DepositID:    base.ID,
		StartDate:    &from,
		EndDate:      &to,
		IsAllDay:     true,
		IsTablePrice: true,
		TablePrice:   12000,
		CreatedAt:    time.Now().UTC(),
	}))

	quote, err := calc.Compute(ctx, venueID, slotStart, slotEnd, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), quote.Deposit)

	outside := time.Date(2026, 6, 20, 19, 0, 0, 0, time.UTC)
	quote, err = calc.Compute(ctx, venueID, outside, outside.Add(2*time.Hour), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), quote.Deposit)
}

func TestExceptionTimeWindow(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	base := &models.DepositPolicy{VenueID: venueID, IsTablePrice: true, TablePrice: 5000, Interaction: models.DepositTakeMore}
	require.NoError(t, db.SetDeposit(ctx, base))

	evenStart := time.Date(1970, 1, 1, 18, 0, 0, 0, time.UTC)
	evenEnd := time.Date(1970, 1, 1, 23, 0, 0, 0, time.UTC)
	require.NoError(t, db.AddDepositException(ctx, &models.DepositException{
		DepositID:     base.ID,
		ForDaysOfWeek: true,
		Days:          "5",
		StartTime:     &evenStart,
		EndTime:       &evenEnd,
		IsTablePrice:  true,
		TablePrice:    8000,
		CreatedAt:     time.Now().UTC(),
	}))

	// 19:00 falls inside the evening window.
	quote, err := calc.Compute(ctx, venueID, slotStart, slotEnd, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), quote.Deposit)

	// Friday lunch keeps the base rate.
	lunch := time.Date(2026, 6, 12, 13, 0, 0, 0, time.UTC)
	quote, err = calc.Compute(ctx, venueID, lunch, lunch.Add(time.Hour), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), quote.Deposit)
}

func TestExceptionIgnoredWhenSlotOverrunsWindow(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	base := &models.DepositPolicy{VenueID: venueID, IsTablePrice: true, TablePrice: 1000, Interaction: models.DepositTakeMore}
	require.NoError(t, db.SetDeposit(ctx, base))

	winStart := time.Date(1970, 1, 1, 18, 0, 0, 0, time.UTC)
	winEnd := time.Date(1970, 1, 1, 20, 0, 0, 0, time.UTC)
	require.NoError(t, db.AddDepositException(ctx, &models.DepositException{
		DepositID:     base.ID,
		ForDaysOfWeek: true,
		Days:          "5",
		StartTime:     &winStart,
		EndTime:       &winEnd,
		IsTablePrice:  true,
		TablePrice:    9999,
		CreatedAt:     time.Now().UTC(),
	}))

	// 19:00-22:00 runs past the 20:00 window end, so the base rule applies.
	quote, err := calc.Compute(ctx, venueID, slotStart, slotStart.Add(3*time.Hour), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), quote.Deposit)

	// Ending exactly on the window close misses the exclusive end too.
	quote, err = calc.Compute(ctx, venueID, slotStart, slotStart.Add(time.Hour), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), quote.Deposit)

	// A slot strictly inside the window takes the exception.
	quote, err = calc.Compute(ctx, venueID, slotStart, slotStart.Add(30*time.Minute), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9999), quote.Deposit)
}

func TestExceptionNewestWins(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	base := &models.DepositPolicy{VenueID: venueID, IsTablePrice: true, TablePrice: 5000, Interaction: models.DepositTakeMore}
	require.NoError(t, db.SetDeposit(ctx, base))

	require.NoError(t, db.AddDepositException(ctx, &models.DepositException{
		DepositID: base.ID, ForDaysOfWeek: true, Days: "5", IsAllDay: true,
		IsTablePrice: true, TablePrice: 7000,
		CreatedAt: time.Now().Add(-time.Hour).UTC(),
	}))
	require.NoError(t, db.AddDepositException(ctx, &models.DepositException{
		DepositID: base.ID, ForDaysOfWeek: true, Days: "5", IsAllDay: true,
		IsTablePrice: true, TablePrice: 9500,
		CreatedAt: time.Now().UTC(),
	}))

	quote, err := calc.Compute(ctx, venueID, slotStart, slotEnd, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9500), quote.Deposit)
}

func TestCreateCharges(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	require.NoError(t, db.SetDeposit(ctx, &models.DepositPolicy{
		VenueID: venueID, IsTablePrice: true, TablePrice: 5000, Interaction: models.DepositTakeMore,
	}))
	steak := &models.MenuItem{VenueID: venueID, Name: "Steak", Price: 4500}
	require.NoError(t, db.AddMenuItem(ctx, steak))

	selections := []models.MenuSelection{{MenuItemID: steak.ID, Count: 1}}
	quote, err := calc.Compute(ctx, venueID, slotStart, slotEnd, 2, selections)
	require.NoError(t, err)

	holdID, chargeID, err := calc.CreateCharges(ctx, "client-1", quote, selections)
	require.NoError(t, err)
	require.NotEmpty(t, holdID)
	require.NotEmpty(t, chargeID)

	// The hold carries the full deposit even though only the residual is owed
	// on top of the pre-order.
	hold, err := db.GetDepositHold(ctx, holdID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), hold.Amount)

	charge, err := db.GetPreOrderCharge(ctx, chargeID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), charge.Amount)
	require.Len(t, charge.Items, 1)
}

func TestCreateChargesNoResidualSkipsHold(t *testing.T) {
	calc, db, venueID := setupCalculator(t)
	ctx := context.Background()

	require.NoError(t, db.SetDeposit(ctx, &models.DepositPolicy{
		VenueID: venueID, IsTablePrice: true, TablePrice: 5000, Interaction: models.DepositTakeMore,
	}))
	steak := &models.MenuItem{VenueID: venueID, Name: "Steak", Price: 4500}
	require.NoError(t, db.AddMenuItem(ctx, steak))

	selections := []models.MenuSelection{{MenuItemID: steak.ID, Count: 2}}
	quote, err := calc.Compute(ctx, venueID, slotStart, slotEnd, 2, selections)
	require.NoError(t, err)
	require.Equal(t, quote.Total, quote.PreOrder)

	holdID, chargeID, err := calc.CreateCharges(ctx, "client-1", quote, selections)
	require.NoError(t, err)
	assert.Empty(t, holdID)
	assert.NotEmpty(t, chargeID)
}
