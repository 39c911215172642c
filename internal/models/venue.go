package models

import "time"

type Venue struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	GatewayID  string    `json:"gateway_id,omitempty"`
	GatewayKey string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

type Section struct {
	ID      string `json:"id"`
	VenueID string `json:"venue_id"`
	Name    string `json:"name"`
}

type Table struct {
	ID        string `json:"id"`
	SectionID string `json:"section_id"`
	Name      string `json:"name"`
}

// OperatingHours is one weekday record of a venue's schedule. Start and End
// are wall-clock times projected onto the 1970-01-01 reference frame; End
// lands on 1970-01-02 when the venue closes past midnight.
type OperatingHours struct {
	VenueID      string    `json:"venue_id"`
	Weekday      int       `json:"weekday"` // 0=Sunday .. 6=Saturday
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	IsDayOff     bool      `json:"is_day_off"`
	IsOpenAllDay bool      `json:"is_open_all_day"`
}

// ReservationPolicy holds per-venue booking rules. Durations are stored in
// seconds, matching how venue managers configure them.
type ReservationPolicy struct {
	VenueID             string `json:"venue_id"`
	MinBookingTime      int64  `json:"min_booking_time"`
	UnreachableInterval int64  `json:"unreachable_interval"`
	TimeBetweenReserves int64  `json:"time_between_reserves"`
	ResponseTime        int64  `json:"response_time"`
	DelayedResponseTime int64  `json:"delayed_response_time"`
}

func (p ReservationPolicy) MinBooking() time.Duration {
	return time.Duration(p.MinBookingTime) * time.Second
}
func (p ReservationPolicy) Unreachable() time.Duration {
	return time.Duration(p.UnreachableInterval) * time.Second
}
func (p ReservationPolicy) Buffer() time.Duration {
	return time.Duration(p.TimeBetweenReserves) * time.Second
}
func (p ReservationPolicy) Response() time.Duration {
	return time.Duration(p.ResponseTime) * time.Second
}
func (p ReservationPolicy) DelayedResponse() time.Duration {
	return time.Duration(p.DelayedResponseTime) * time.Second
}

// DepositPolicy is a venue's base deposit configuration. Amounts are minor
// currency units.
type DepositPolicy struct {
	ID            string `json:"id"`
	VenueID       string `json:"venue_id"`
	IsPersonPrice bool   `json:"is_person_price"`
	PersonPrice   int64  `json:"person_price"`
	IsTablePrice  bool   `json:"is_table_price"`
	TablePrice    int64  `json:"table_price"`
	Interaction   string `json:"interaction"` // TAKE_MORE or SUM
}

// DepositException overrides the base policy for a date range or for a
// recurring set of weekdays, optionally narrowed to a time-of-day window
// (frame times, see OperatingHours).
type DepositException struct {
	ID            string     `json:"id"`
	DepositID     string     `json:"deposit_id"`
	ForDaysOfWeek bool       `json:"for_days_of_week"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	Days          string     `json:"days"` // weekday digits, e.g. "135"
	IsAllDay      bool       `json:"is_all_day"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	IsPersonPrice bool       `json:"is_person_price"`
	PersonPrice   int64      `json:"person_price"`
	IsTablePrice  bool       `json:"is_table_price"`
	TablePrice    int64      `json:"table_price"`
	CreatedAt     time.Time  `json:"created_at"`
}

type MenuItem struct {
	ID      string `json:"id"`
	VenueID string `json:"venue_id"`
	Name    string `json:"name"`
	Price   int64  `json:"price"`
}
