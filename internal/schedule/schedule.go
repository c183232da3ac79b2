package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entry is one slot of the static weekly schedule.
// Day uses 0-6 where 0 is Sunday, matching time.Weekday.
type Entry struct {
	Day   int    `json:"day" mapstructure:"day"`
	Time  string `json:"time" mapstructure:"time"` // HH:MM:SS, studio-local
	Label string `json:"label" mapstructure:"label"`
}

func (e Entry) Validate() error {
	if e.Day < 0 || e.Day > 6 {
		return fmt.Errorf("day must be 0-6, got %d", e.Day)
	}
	if _, _, err := splitTime(e.Time); err != nil {
		return fmt.Errorf("time %q: %w", e.Time, err)
	}
	if e.Label == "" {
		return fmt.Errorf("label required")
	}
	return nil
}

// Occurrence is an entry projected onto a concrete calendar date.
type Occurrence struct {
	Date      string // YYYY-MM-DD
	TimeOfDay string // HH:MM:SS
	Label     string
}

// Project maps each weekly entry onto its next future occurrence
// relative to now. An entry whose slot falls today but whose start
// hour has already passed rolls to next week.
func Project(entries []Entry, now time.Time) []Occurrence {
	out := make([]Occurrence, 0, len(entries))
	for _, e := range entries {
		daysAhead := e.Day - int(now.Weekday())
		if daysAhead < 0 {
			daysAhead += 7
		}
		if daysAhead == 0 {
			hour, _, err := splitTime(e.Time)
			if err == nil && now.Hour() >= hour {
				daysAhead = 7
			}
		}
		target := now.AddDate(0, 0, daysAhead)
		out = append(out, Occurrence{
			Date:      target.Format("2006-01-02"),
			TimeOfDay: e.Time,
			Label:     e.Label,
		})
	}
	return out
}

// OpenInstant computes the absolute instant booking opens for a class
// on classDate: leadDays calendar days earlier, at openHour local time
// in loc. time.Date resolves the zone offset for that specific date,
// so dates on either side of a daylight-saving switch get the correct
// offset.
func OpenInstant(classDate string, leadDays, openHour int, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", classDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("class date %q: %w", classDate, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day()-leadDays, openHour, 0, 0, 0, loc), nil
}

// FormatClock renders HH:MM:SS as a 12-hour clock string for
// notifications, e.g. "17:30:00" -> "5:30 PM".
func FormatClock(timeOfDay string) string {
	hour, minute, err := splitTime(timeOfDay)
	if err != nil {
		return timeOfDay
	}
	ampm := "AM"
	if hour >= 12 {
		ampm = "PM"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, minute, ampm)
}

func splitTime(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("want HH:MM:SS")
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour")
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute")
	}
	if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
		return 0, 0, fmt.Errorf("bad second")
	}
	return hour, minute, nil
}
