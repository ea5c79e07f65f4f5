// Package ergotime implements the engine's local-day convention: a day
// runs from 04:00 to the following 04:00, not from midnight.
package ergotime

import "time"

// DayStartHour is the local hour at which a day begins.
const DayStartHour = 4

// DayStartOf returns the Unix time of the start of the local day that t
// falls within. Times before 04:00 belong to the previous calendar day's
// cycle.
func DayStartOf(t time.Time) int64 {
	local := t.In(t.Location())
	if local.Hour() < DayStartHour {
		local = local.AddDate(0, 0, -1)
	}
	start := time.Date(local.Year(), local.Month(), local.Day(), DayStartHour, 0, 0, 0, local.Location())
	return start.Unix()
}

// IsOnDay reports whether t falls within the 24-hour cycle that begins
// at dayStart.
func IsOnDay(t int64, dayStart int64) bool {
	return t >= dayStart && t < dayStart+86400
}
