package hours

import (
	"testing"
	"time"

	"mesto/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clock(day int, h, m int) time.Time {
	return time.Date(1970, time.January, day, h, m, 0, 0, time.UTC)
}

// week builds seven records open start..end every day.
func week(startH, endH int) []models.OperatingHours {
	var out []models.OperatingHours
	for wd := 0; wd < 7; wd++ {
		endDay := 1
		if endH < startH {
			endDay = 2
		}
		out = append(out, models.OperatingHours{
			Weekday: wd,
			Start:   clock(1, startH, 0),
			End:     clock(endDay, endH, 0),
		})
	}
	return out
}

func TestToFrame(t *testing.T) {
	a := time.Date(2024, time.March, 5, 19, 30, 45, 12, time.Local)
	b := time.Date(2025, time.December, 31, 19, 30, 0, 0, time.UTC)
	assert.Equal(t, ToFrame(a), ToFrame(b), "same time of day on different dates must compare equal")
	assert.Equal(t, clock(1, 19, 30), ToFrame(a))
	assert.Equal(t, clock(2, 19, 30), ToFrameNextDay(a))
}

func TestResolveWindowRegularDay(t *testing.T) {
	at := time.Date(2024, time.June, 12, 15, 0, 0, 0, time.UTC) // Wednesday
	w := ResolveWindow(week(10, 22), at)
	assert.Equal(t, time.Date(2024, time.June, 12, 10, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, time.June, 12, 22, 0, 0, 0, time.UTC), w.End)
	assert.False(t, w.IsDayOff)
	assert.False(t, w.Fallback)

	assert.True(t, w.Contains(at))
	assert.False(t, w.Contains(time.Date(2024, time.June, 12, 23, 0, 0, 0, time.UTC)))
}

func TestResolveWindowOvernight(t *testing.T) {
	at := time.Date(2024, time.June, 12, 20, 0, 0, 0, time.UTC)
	w := ResolveWindow(week(18, 2), at)
	assert.Equal(t, time.Date(2024, time.June, 12, 18, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, time.June, 13, 2, 0, 0, 0, time.UTC), w.End,
		"end clock earlier than start must advance one day")
}

func TestContainsFrameOvernightSmallHours(t *testing.T) {
	w := ResolveWindow(week(18, 2), time.Date(2024, time.June, 12, 20, 0, 0, 0, time.UTC))

	// A 01:00-01:45 candidate belongs to the small hours of the window.
	s := time.Date(2024, time.June, 13, 1, 0, 0, 0, time.UTC)
	e := time.Date(2024, time.June, 13, 1, 45, 0, 0, time.UTC)
	assert.True(t, w.ContainsFrame(s, e))

	// A candidate crossing midnight inside the window.
	s = time.Date(2024, time.June, 12, 23, 0, 0, 0, time.UTC)
	e = time.Date(2024, time.June, 13, 1, 0, 0, 0, time.UTC)
	assert.True(t, w.ContainsFrame(s, e))

	// Afternoon slot stays outside.
	s = time.Date(2024, time.June, 12, 15, 0, 0, 0, time.UTC)
	assert.False(t, w.ContainsFrame(s, s.Add(time.Hour)))
}

func TestContainsFrameRegularDay(t *testing.T) {
	w := ResolveWindow(week(10, 22), time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC))
	s := time.Date(2024, time.June, 12, 19, 0, 0, 0, time.UTC)
	assert.True(t, w.ContainsFrame(s, s.Add(time.Hour)))
	assert.False(t, w.ContainsFrame(s, s.Add(4*time.Hour)), "ends past closing")
	early := time.Date(2024, time.June, 12, 8, 0, 0, 0, time.UTC)
	assert.False(t, w.ContainsFrame(early, early.Add(time.Hour)))
}

func TestResolveWindowAllDay(t *testing.T) {
	wk := week(10, 22)
	for i := range wk {
		wk[i].IsOpenAllDay = true
	}
	at := time.Date(2024, time.June, 12, 3, 0, 0, 0, time.UTC)
	w := ResolveWindow(wk, at)
	assert.True(t, w.IsOpenAllDay)
	assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))
	assert.True(t, w.Contains(at))
}

func TestResolveWindowDayOffAndFallback(t *testing.T) {
	wk := week(10, 22)
	wk[1].IsDayOff = true // Monday
	monday := time.Date(2024, time.June, 10, 11, 0, 0, 0, time.UTC)
	w := ResolveWindow(wk, monday)
	assert.True(t, w.IsDayOff)

	// No record at all: permissive ±12h fallback, flagged.
	w = ResolveWindow(nil, monday)
	assert.True(t, w.Fallback)
	assert.Equal(t, monday.Add(-12*time.Hour), w.Start)
	assert.Equal(t, monday.Add(12*time.Hour), w.End)
}

func TestNextOpeningSkipsDayOff(t *testing.T) {
	wk := week(10, 22)
	wk[1].IsDayOff = true // Mondays closed

	// Submitted Monday 10:00: anchor is Tuesday 10:00 plus grace.
	monday := time.Date(2024, time.June, 10, 10, 0, 0, 0, time.UTC)
	grace := 20 * time.Minute
	anchor, err := NextOpening(wk, monday, grace)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 11, 10, 20, 0, 0, time.UTC), anchor)
}

func TestNextOpeningSameDayBeforeOpen(t *testing.T) {
	wk := week(10, 22)
	at := time.Date(2024, time.June, 12, 7, 30, 0, 0, time.UTC)
	anchor, err := NextOpening(wk, at, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 12, 10, 0, 0, 0, time.UTC), anchor)
}

func TestNextOpeningAfterCloseRollsForward(t *testing.T) {
	wk := week(10, 22)
	at := time.Date(2024, time.June, 12, 23, 0, 0, 0, time.UTC)
	anchor, err := NextOpening(wk, at, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 13, 10, 0, 0, 0, time.UTC), anchor)
}

func TestNextOpeningAllClosed(t *testing.T) {
	wk := week(10, 22)
	for i := range wk {
		wk[i].IsDayOff = true
	}
	_, err := NextOpening(wk, time.Now(), 0)
	assert.ErrorIs(t, err, ErrNoUpcomingOpening)
}
