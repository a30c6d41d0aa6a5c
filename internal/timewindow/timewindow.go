// Package timewindow holds the calendar arithmetic behind daily task limits,
// streaks and weekly goals.
//
// A "day" is a civil date in the server's fixed zone, represented as midnight
// UTC of that date. Day keys compare with Equal and step with AddDate without
// any DST surprises; instants are only converted back to the zone when a
// query needs real bounds.
package timewindow

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database for hosts without one
)

// DayLayout is the wire and storage format for civil days.
const DayLayout = "2006-01-02"

// Day returns the civil day of t in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return Day(a, loc).Equal(Day(b, loc))
}

// DayBounds returns the [start, end) instants of the civil day in loc.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// WeekStart returns the civil day of the Sunday on or before t in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	d := Day(t, loc)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// WeekBounds returns the [start, end) instants of the Sunday-aligned week
// containing t, in loc.
func WeekBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start, _ := DayBounds(WeekStart(t, loc), loc)
	return start, start.AddDate(0, 0, 7)
}

// Streak counts consecutive days ending at today. days are day keys as
// returned by Day; duplicates and order do not matter. If today is absent
// the streak is 0, even when yesterday was active.
func Streak(days []time.Time, today time.Time) int {
	seen := make(map[time.Time]bool, len(days))
	for _, d := range days {
		seen[d] = true
	}

	streak := 0
	for cur := today; seen[cur]; cur = cur.AddDate(0, 0, -1) {
		streak++
	}
	return streak
}

// ParseDay parses "YYYY-MM-DD" into a day key.
func ParseDay(s string) (time.Time, error) {
	d, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return d, nil
}

// FormatDay renders a day key as "YYYY-MM-DD".
func FormatDay(day time.Time) string {
	return day.Format(DayLayout)
}

// LoadLocation resolves a zone name. "" means UTC and "Local" the process zone.
func LoadLocation(name string) (*time.Location, error) {
	switch name {
	case "":
		return time.UTC, nil
	case "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}
