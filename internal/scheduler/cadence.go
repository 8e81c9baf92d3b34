package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cadence decides whether a job is due at a given instant, relative to the
// time it last completed. A zero lastRun means the job has never run.
type Cadence interface {
	Due(now, lastRun time.Time) bool
	String() string
}

// Every fires once per interval, measured from the last completed run.
// The first tick after start counts as due.
func Every(interval time.Duration) Cadence {
	return everyCadence{interval: interval}
}

type everyCadence struct {
	interval time.Duration
}

func (c everyCadence) Due(now, lastRun time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun) >= c.interval
}

func (c everyCadence) String() string {
	return "every " + c.interval.String()
}

// DailyAt fires once per civil day, at or after the given local wall-clock
// time. Missed slots (process down, long tick) fire on the next tick of the
// same day; a slot is never fired twice in one day.
func DailyAt(hhmm string, loc *time.Location) Cadence {
	hour, minute := mustParseClock(hhmm)
	return dailyCadence{hour: hour, minute: minute, loc: loc}
}

type dailyCadence struct {
	hour   int
	minute int
	loc    *time.Location
}

func (c dailyCadence) Due(now, lastRun time.Time) bool {
	local := now.In(c.loc)
	slot := time.Date(local.Year(), local.Month(), local.Day(), c.hour, c.minute, 0, 0, c.loc)
	if local.Before(slot) {
		return false
	}
	if lastRun.IsZero() {
		return true
	}
	return lastRun.In(c.loc).Before(slot)
}

func (c dailyCadence) String() string {
	return fmt.Sprintf("daily at %02d:%02d", c.hour, c.minute)
}

// MonthlyOn fires once per civil month, on the given day of month at or
// after the given local wall-clock time.
func MonthlyOn(day int, hhmm string, loc *time.Location) Cadence {
	hour, minute := mustParseClock(hhmm)
	return monthlyCadence{day: day, hour: hour, minute: minute, loc: loc}
}

type monthlyCadence struct {
	day    int
	hour   int
	minute int
	loc    *time.Location
}

func (c monthlyCadence) Due(now, lastRun time.Time) bool {
	local := now.In(c.loc)
	if local.Day() != c.day {
		return false
	}
	slot := time.Date(local.Year(), local.Month(), local.Day(), c.hour, c.minute, 0, 0, c.loc)
	if local.Before(slot) {
		return false
	}
	if lastRun.IsZero() {
		return true
	}
	return lastRun.In(c.loc).Before(slot)
}

func (c monthlyCadence) String() string {
	return fmt.Sprintf("monthly on day %d at %02d:%02d", c.day, c.hour, c.minute)
}

// mustParseClock parses "HH:MM". Config validation guarantees the format,
// so a bad value here is a programming error.
func mustParseClock(hhmm string) (hour, minute int) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		panic("invalid clock time: " + hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		panic("invalid clock time: " + hhmm)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		panic("invalid clock time: " + hhmm)
	}
	return hour, minute
}
