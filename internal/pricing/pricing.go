// Package pricing computes the payable amounts for a reservation: the
// deposit owed for the slot and the pre-order charge for menu selections.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mesto/internal/database"
	"mesto/internal/hours"
	"mesto/internal/models"
)

var ErrUnknownMenuItem = errors.New("pricing: menu item does not belong to the venue")

// Quote is the result of a pricing pass. Total is the larger of Deposit and
// PreOrder: the pre-order already commits the client to spend that much, so
// the deposit only tops it up.
type Quote struct {
	Deposit  int64  `json:"deposit"`
	PreOrder int64  `json:"pre_order"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type Calculator struct {
	db       *database.DB
	currency string
	logger   *zerolog.Logger
}

func NewCalculator(db *database.DB, currency string, logger *zerolog.Logger) *Calculator {
	return &Calculator{db: db, currency: currency, logger: logger}
}

// Compute prices the candidate slot. A venue without a deposit policy prices
// the slot at the pre-order amount alone.
func (c *Calculator) Compute(ctx context.Context, venueID string, start, end time.Time, guests int, selections []models.MenuSelection) (Quote, error) {
	quote := Quote{Currency: c.currency}

	deposit, exceptions, err := c.db.Deposit(ctx, venueID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return Quote{}, fmt.Errorf("failed to load deposit policy: %w", err)
	}
	if deposit != nil {
		quote.Deposit = depositAmount(deposit, exceptions, start, end, guests)
	}

	preOrder, err := c.preOrderAmount(ctx, venueID, selections)
	if err != nil {
		return Quote{}, err
	}
	quote.PreOrder = preOrder

	quote.Total = quote.Deposit
	if quote.PreOrder > quote.Total {
		quote.Total = quote.PreOrder
	}

	c.logger.Debug().
		Str("venue_id", venueID).
		Int64("deposit", quote.Deposit).
		Int64("pre_order", quote.PreOrder).
		Int64("total", quote.Total).
		Msg("priced reservation")
	return quote, nil
}

// CreateCharges materializes the quote as payment rows. The pre-order charge
// is always created when items were selected; the deposit hold only when the
// deposit is not already covered by the pre-order commitment, and it carries
// the full deposit amount.
func (c *Calculator) CreateCharges(ctx context.Context, clientID string, quote Quote, selections []models.MenuSelection) (holdID, chargeID string, err error) {
	if len(selections) > 0 {
		charge := &models.PreOrderCharge{
			ClientID: clientID,
			Amount:   quote.PreOrder,
			Currency: quote.Currency,
			Status:   models.PaymentPending,
		}
		for _, s := range selections {
			charge.Items = append(charge.Items, models.PreOrderItem{MenuItemID: s.MenuItemID, Count: s.Count})
		}
		if err := c.db.CreatePreOrderCharge(ctx, charge); err != nil {
			return "", "", err
		}
		chargeID = charge.ID
	}

	if quote.Total-quote.PreOrder > 0 {
		hold := &models.DepositHold{
			ClientID: clientID,
			Amount:   quote.Deposit,
			Currency: quote.Currency,
			Status:   models.PaymentPending,
		}
		if err := c.db.CreateDepositHold(ctx, hold); err != nil {
			return "", "", err
		}
		holdID = hold.ID
	}
	return holdID, chargeID, nil
}

func (c *Calculator) preOrderAmount(ctx context.Context, venueID string, selections []models.MenuSelection) (int64, error) {
	if len(selections) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(selections))
	for _, s := range selections {
		ids = append(ids, s.MenuItemID)
	}
	items, err := c.db.MenuItemsByIDs(ctx, venueID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to load menu items: %w", err)
	}
	prices := make(map[string]int64, len(items))
	for _, item := range items {
		prices[item.ID] = item.Price
	}

	var total int64
	for _, s := range selections {
		price, ok := prices[s.MenuItemID]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownMenuItem, s.MenuItemID)
		}
		total += price * int64(s.Count)
	}
	return total, nil
}

// depositAmount picks the effective rule for the slot. Exceptions come
// newest-first, so the first match wins when rules overlap.
func depositAmount(base *models.DepositPolicy, exceptions []models.DepositException, start, end time.Time, guests int) int64 {
	for _, e := range exceptions {
		if exceptionMatches(e, start, end) {
			return ruleAmount(e.IsPersonPrice, e.PersonPrice, e.IsTablePrice, e.TablePrice, guests, base.Interaction)
		}
	}
	return ruleAmount(base.IsPersonPrice, base.PersonPrice, base.IsTablePrice, base.TablePrice, guests, base.Interaction)
}

// exceptionMatches requires the whole slot to sit inside the exception: the
// date range and the time-of-day window must contain both endpoints. Range
// ends are exclusive, so a slot running past the window falls back to the
// base rule.
func exceptionMatches(e models.DepositException, start, end time.Time) bool {
	if e.ForDaysOfWeek {
		digit := byte('0' + int(start.Weekday()))
		if !strings.ContainsRune(e.Days, rune(digit)) {
			return false
		}
	} else {
		if e.StartDate == nil || e.EndDate == nil {
			return false
		}
		if start.Before(*e.StartDate) || !e.EndDate.After(end) {
			return false
		}
	}

	if e.IsAllDay || e.StartTime == nil || e.EndTime == nil {
		return true
	}
	ws := hours.ToFrame(*e.StartTime)
	we := hours.ToFrame(*e.EndTime)
	if !we.After(ws) {
		we = hours.ToFrameNextDay(*e.EndTime)
	}
	fs := hours.ToFrame(start)
	fe := hours.ToFrame(end)
	if fe.Before(fs) {
		fe = fe.AddDate(0, 0, 1)
	}
	return !fs.Before(ws) && we.After(fe)
}

func ruleAmount(isPerson bool, personPrice int64, isTable bool, tablePrice int64, guests int, interaction string) int64 {
	var perPerson, perTable int64
	if isPerson {
		perPerson = personPrice * int64(guests)
	}
	if isTable {
		perTable = tablePrice
	}

	if interaction == models.DepositTakeMore {
		if perPerson > perTable {
			return perPerson
		}
		return perTable
	}
	return perPerson + perTable
}
