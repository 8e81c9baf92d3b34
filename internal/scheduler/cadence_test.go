package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tehran(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tehran")
	require.NoError(t, err)
	return loc
}

func TestEveryCadence(t *testing.T) {
	c := Every(time.Hour)
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	assert.True(t, c.Due(base, time.Time{}), "never ran means due")
	assert.False(t, c.Due(base.Add(30*time.Minute), base))
	assert.True(t, c.Due(base.Add(time.Hour), base))
	assert.True(t, c.Due(base.Add(90*time.Minute), base), "late ticks still fire")
}

func TestDailyAtCadence(t *testing.T) {
	loc := tehran(t)
	c := DailyAt("23:00", loc)

	before := time.Date(2026, 8, 20, 22, 59, 0, 0, loc)
	at := time.Date(2026, 8, 20, 23, 0, 0, 0, loc)
	after := time.Date(2026, 8, 20, 23, 30, 0, 0, loc)
	nextDay := time.Date(2026, 8, 21, 23, 0, 30, 0, loc)

	assert.False(t, c.Due(before, time.Time{}))
	assert.True(t, c.Due(at, time.Time{}))

	// Once run, the same day's slot never fires again.
	assert.False(t, c.Due(after, at))
	assert.True(t, c.Due(nextDay, at))

	// A missed slot fires on the next tick of the same day.
	lateTick := time.Date(2026, 8, 20, 23, 47, 0, 0, loc)
	yesterday := time.Date(2026, 8, 19, 23, 0, 0, 0, loc)
	assert.True(t, c.Due(lateTick, yesterday))
}

func TestDailyAtComparesInCivilZone(t *testing.T) {
	loc := tehran(t)
	c := DailyAt("00:05", loc)

	// 00:10 Tehran time expressed as a UTC instant.
	now := time.Date(2026, 8, 20, 0, 10, 0, 0, loc).UTC()
	assert.True(t, c.Due(now, time.Time{}))

	ranToday := time.Date(2026, 8, 20, 0, 6, 0, 0, loc).UTC()
	assert.False(t, c.Due(now, ranToday))
}

func TestMonthlyOnCadence(t *testing.T) {
	loc := tehran(t)
	c := MonthlyOn(1, "04:00", loc)

	wrongDay := time.Date(2026, 8, 20, 4, 0, 0, 0, loc)
	firstEarly := time.Date(2026, 9, 1, 3, 0, 0, 0, loc)
	firstAt := time.Date(2026, 9, 1, 4, 0, 0, 0, loc)
	firstLater := time.Date(2026, 9, 1, 12, 0, 0, 0, loc)

	assert.False(t, c.Due(wrongDay, time.Time{}))
	assert.False(t, c.Due(firstEarly, time.Time{}))
	assert.True(t, c.Due(firstAt, time.Time{}))
	assert.False(t, c.Due(firstLater, firstAt))

	nextMonth := time.Date(2026, 10, 1, 4, 0, 0, 0, loc)
	assert.True(t, c.Due(nextMonth, firstAt))
}

func TestMustParseClockPanicsOnGarbage(t *testing.T) {
	assert.Panics(t, func() { mustParseClock("25:00") })
	assert.Panics(t, func() { mustParseClock("noon") })
	assert.NotPanics(t, func() { mustParseClock("23:59") })
}
