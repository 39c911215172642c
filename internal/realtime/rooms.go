// Package realtime fans reservation events out to connected dashboards and
// customers. Staff viewers join day-window rooms per table or the venue
// firehose; customers get a private room with a reduced view of their own
// reservations.
package realtime

import (
	"fmt"
	"time"
)

// bucketProbe is how far around an event instant adjacent day rooms are
// probed. A viewer whose working day spans midnight subscribes under the
// neighbouring calendar date, so events near the boundary must reach both.
const bucketProbe = 4 * time.Hour

// DayRoom identifies the table's room for the calendar day containing t.
func DayRoom(tableID string, t time.Time) string {
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	return fmt.Sprintf("%s|%d|%d", tableID, dayStart.Unix(), dayEnd.Unix())
}

// RoomsFor returns the day rooms an event spanning the given instants must
// reach: each instant's own day plus the neighbours when it sits within the
// probe of a day boundary. A slot running past midnight implicates both
// calendar days.
func RoomsFor(tableID string, instants ...time.Time) []string {
	var rooms []string
	for _, t := range instants {
		for _, probe := range []time.Time{t, t.Add(-bucketProbe), t.Add(bucketProbe)} {
			room := DayRoom(tableID, probe)
			if !contains(rooms, room) {
				rooms = append(rooms, room)
			}
		}
	}
	return rooms
}

// VenueRoom is the firehose room carrying every event of the venue.
func VenueRoom(venueID string) string {
	return "venue|" + venueID
}

// ClientRoom is the private room of one customer.
func ClientRoom(clientID string) string {
	return "client|" + clientID
}

func contains(rooms []string, room string) bool {
	for _, r := range rooms {
		if r == room {
			return true
		}
	}
	return false
}
