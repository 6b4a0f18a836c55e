package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

	tests := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{"identical", at(0), at(60), at(0), at(60), true},
		{"partial overlap", at(0), at(60), at(30), at(90), true},
		{"contained", at(0), at(90), at(30), at(60), true},
		{"touching endpoints do not overlap", at(0), at(60), at(60), at(120), false},
		{"disjoint", at(0), at(60), at(90), at(120), false},
		{"reversed touching", at(60), at(120), at(0), at(60), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			assert.Equal(t, tt.want, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd), "predicate must be symmetric")
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 30}, tod)

	// Postgres TIME columns serialize with seconds.
	tod, err = ParseTimeOfDay("14:05:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 14, Minute: 5}, tod)

	for _, bad := range []string{"", "9", "25:00", "09:61", "ab:cd", "09:30:00:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestTimeOfDayOrdering(t *testing.T) {
	a := TimeOfDay{Hour: 9, Minute: 0}
	b := TimeOfDay{Hour: 9, Minute: 30}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.False(t, a.Before(a))
	assert.Equal(t, "09:00", a.String())
	assert.Equal(t, 570, b.Minutes())
}

func TestParseDate(t *testing.T) {
	santiago, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	day, err := ParseDate("2026-03-02", santiago)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 2, 0, 0, 0, 0, santiago), day)

	_, err = ParseDate("02-03-2026", santiago)
	assert.Error(t, err)
	_, err = ParseDate("not-a-date", santiago)
	assert.Error(t, err)
}

func TestAt(t *testing.T) {
	santiago, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, santiago)
	got := At(day, TimeOfDay{Hour: 14, Minute: 30})
	assert.Equal(t, time.Date(2026, time.March, 2, 14, 30, 0, 0, santiago), got)
}

func TestDayBoundsAcrossDSTTransition(t *testing.T) {
	santiago, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	// Chile leaves DST on the first Sunday of April; that day has 25 hours.
	day := time.Date(2026, time.April, 5, 0, 0, 0, 0, santiago)
	start, end := DayBounds(day)

	assert.Equal(t, time.Date(2026, time.April, 5, 0, 0, 0, 0, santiago), start)
	assert.Equal(t, time.Date(2026, time.April, 6, 0, 0, 0, 0, santiago), end)
	assert.Equal(t, 25*time.Hour, end.Sub(start))
}

func TestDayBoundsRegularDay(t *testing.T) {
	start, end := DayBounds(time.Date(2026, time.March, 2, 15, 45, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), end)
}
