package models

import "time"

// Reservation is a single table booking. CreatedAt doubles as the SLA anchor:
// when the venue is closed at request time it is set forward to the next
// opening plus the delayed-response grace, not to the wall clock.
type Reservation struct {
	ID               string    `json:"id"`
	TableID          string    `json:"table_id"`
	ClientID         string    `json:"client_id"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Guests           int       `json:"guests"`
	SequenceNumber   int64     `json:"sequence_number"`
	Status           string    `json:"status"`
	PaymentStatus    string    `json:"payment_status,omitempty"`
	Comment          string    `json:"comment,omitempty"`
	ManagerComment   string    `json:"manager_comment,omitempty"`
	DepositHoldID    string    `json:"deposit_hold_id,omitempty"`
	PreOrderChargeID string    `json:"pre_order_charge_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int64     `json:"version"`
}

// DepositHold is the deposit part of a reservation's payment, immutable after
// creation except for gateway-driven status updates.
type DepositHold struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PreOrderCharge covers pre-ordered menu items.
type PreOrderCharge struct {
	ID        string         `json:"id"`
	ClientID  string         `json:"client_id"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency"`
	Status    string         `json:"status"`
	Items     []PreOrderItem `json:"items,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type PreOrderItem struct {
	MenuItemID string `json:"menu_item_id"`
	Count      int    `json:"count"`
}

// Payment tracks the gateway authorization for the combined payable amount.
type Payment struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservation_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	AuthorizeUID  string    `json:"authorize_uid,omitempty"`
	CaptureUID    string    `json:"capture_uid,omitempty"`
	VoidUID       string    `json:"void_uid,omitempty"`
	CheckoutToken string    `json:"checkout_token,omitempty"`
	DebitedAt     time.Time `json:"debited_at,omitempty"`
	CanceledAt    time.Time `json:"canceled_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Refund records money returned on cancellation.
type Refund struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservation_id"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	GatewayUID    string    `json:"gateway_uid,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PendingExpiry is the durable record of an armed SLA timer, keyed by
// reservation id so re-arming replaces and disarming is idempotent.
type PendingExpiry struct {
	ReservationID string    `json:"reservation_id"`
	FireAt        time.Time `json:"fire_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// MenuSelection is a requested pre-order line.
type MenuSelection struct {
	MenuItemID string `json:"menu_item_id"`
	Count      int    `json:"count"`
}

// RatingCounter is a venue-defined per-client counter updated when a visit
// closes.
type RatingCounter struct {
	ID              string  `json:"id"`
	VenueID         string  `json:"venue_id"`
	ClientID        string  `json:"client_id"`
	RatingName      string  `json:"rating_name"`
	AverageRating   float64 `json:"average_rating"`
	SuccessBookings int64   `json:"success_bookings"`
}
