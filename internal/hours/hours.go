// Package hours normalizes instants into a venue's wall-clock reference
// frame and resolves per-weekday operating windows.
package hours

import (
	"errors"
	"time"

	"mesto/internal/models"
)

// Frame times live on a fixed reference date so that two instants differing
// only by calendar date compare equal by time of day. Windows that close past
// midnight keep their end on the following reference day.
var (
	frameDay     = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	frameNextDay = time.Date(1970, time.January, 2, 0, 0, 0, 0, time.UTC)
)

// ErrNoUpcomingOpening is returned when the bounded forward scan finds no
// opening within the next week.
var ErrNoUpcomingOpening = errors.New("hours: no upcoming opening within seven days")

// ToFrame projects t onto the reference date, preserving hour and minute and
// dropping seconds.
func ToFrame(t time.Time) time.Time {
	return frameDay.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

// ToFrameNextDay projects t onto the day after the reference date. It is used
// for window ends that belong to the small hours of the next morning.
func ToFrameNextDay(t time.Time) time.Time {
	return frameNextDay.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

// FrameMidnight is 00:00 on the reference date.
func FrameMidnight() time.Time { return frameDay }

// FrameNextMidnight is 00:00 on the day after the reference date.
func FrameNextMidnight() time.Time { return frameNextDay }

// Window is an operating window materialized on a concrete date.
type Window struct {
	Start        time.Time
	End          time.Time
	IsDayOff     bool
	IsOpenAllDay bool
	// Fallback marks the permissive ±12h window used when no record exists
	// for the weekday. List/preview callers display it; the booking path
	// only rejects on a real IsDayOff record.
	Fallback bool
}

// Contains reports whether the instant falls inside the window.
func (w Window) Contains(at time.Time) bool {
	return !at.Before(w.Start) && at.Before(w.End)
}

func (w Window) spansMidnight() bool {
	return w.End.YearDay() != w.Start.YearDay() || w.End.Year() != w.Start.Year()
}

// ContainsFrame reports whether the [start, end] candidate fits inside the
// window when both are compared by time of day. A candidate in the small
// hours of an overnight window (open 18:00, close 02:00, candidate 01:00) is
// lifted onto the following frame day so the comparison stays ordered.
func (w Window) ContainsFrame(start, end time.Time) bool {
	ws := ToFrame(w.Start)
	we := ToFrame(w.End)
	if w.spansMidnight() || !we.After(ws) {
		we = ToFrameNextDay(w.End)
	}

	fs := ToFrame(start)
	fe := ToFrame(end)
	if fe.Before(fs) {
		fe = fe.AddDate(0, 0, 1)
	}
	if fs.Before(ws) && we.After(FrameNextMidnight()) {
		fs = fs.AddDate(0, 0, 1)
		fe = fe.AddDate(0, 0, 1)
	}

	return !fs.Before(ws) && !fe.After(we)
}

func recordFor(week []models.OperatingHours, weekday time.Weekday) (models.OperatingHours, bool) {
	for _, rec := range week {
		if rec.Weekday == int(weekday) {
			return rec, true
		}
	}
	return models.OperatingHours{}, false
}

// ResolveWindow materializes the operating window covering at's calendar day.
// A missing weekday record yields the permissive at±12h fallback; an
// end-of-day clock earlier than the start advances the end by one day, since
// venues closing past midnight are the common case.
func ResolveWindow(week []models.OperatingHours, at time.Time) Window {
	rec, ok := recordFor(week, at.Weekday())
	if !ok {
		return Window{Start: at.Add(-12 * time.Hour), End: at.Add(12 * time.Hour), Fallback: true}
	}

	if rec.IsDayOff {
		return Window{Start: at.Add(-12 * time.Hour), End: at.Add(12 * time.Hour), IsDayOff: true}
	}

	dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	if rec.IsOpenAllDay {
		return Window{Start: dayStart, End: dayStart.AddDate(0, 0, 1), IsOpenAllDay: true}
	}

	start := dayStart.Add(time.Duration(rec.Start.Hour())*time.Hour + time.Duration(rec.Start.Minute())*time.Minute)
	end := dayStart.Add(time.Duration(rec.End.Hour())*time.Hour + time.Duration(rec.End.Minute())*time.Minute)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return Window{Start: start, End: end}
}

// NextOpening scans forward from the given instant, wrapping after seven
// days, and returns the first upcoming opening instant plus grace. Today's
// own opening counts only when it is still ahead of from.
func NextOpening(week []models.OperatingHours, from time.Time, grace time.Duration) (time.Time, error) {
	for offset := 0; offset <= 7; offset++ {
		day := from.AddDate(0, 0, offset)
		rec, ok := recordFor(week, day.Weekday())
		if !ok || rec.IsDayOff {
			continue
		}

		opening := time.Date(day.Year(), day.Month(), day.Day(),
			rec.Start.Hour(), rec.Start.Minute(), 0, 0, from.Location())
		if rec.IsOpenAllDay {
			opening = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, from.Location())
		}
		if opening.After(from) {
			return opening.Add(grace), nil
		}
	}
	return time.Time{}, ErrNoUpcomingOpening
}
