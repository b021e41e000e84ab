// Package timebin maps observation timestamps onto the 192 fixed
// time-of-day buckets used to condition segment statistics:
// weekday/weekend x 96 quarter-hour slots.
package timebin

import "time"

const (
	// Weekday covers Monday through Friday, Weekend covers Saturday
	// and Sunday.
	Weekday = 0
	Weekend = 1

	// SlotsPerDay is the number of 15-minute slots in one day.
	SlotsPerDay = 96

	// Count is the total number of bins.
	Count = 2 * SlotsPerDay
)

// FromTime returns the bin id (0-191) for t, evaluated in UTC.
func FromTime(t time.Time) int {
	t = t.UTC()
	weekdayType := Weekday
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		weekdayType = Weekend
	}
	slot := t.Hour()*4 + t.Minute()/15
	return weekdayType*SlotsPerDay + slot
}

// FromDaySeconds returns the bin id for a seconds-since-midnight
// value and weekday type. GTFS stop times can exceed 24h (e.g.
// 25:30:00 for a trip running past midnight); those wrap around.
func FromDaySeconds(seconds, weekdayType int) int {
	seconds = ((seconds % 86400) + 86400) % 86400
	hour := seconds / 3600
	slot := hour*4 + (seconds%3600)/60/15
	return weekdayType*SlotsPerDay + slot
}

// WeekdayType returns which day class the bin belongs to.
func WeekdayType(binID int) int {
	if binID >= SlotsPerDay {
		return Weekend
	}
	return Weekday
}
