package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayStart(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	at := time.Date(2026, time.March, 4, 23, 45, 12, 0, loc)
	got := DayStart(at, loc)
	assert.Equal(t, time.Date(2026, time.March, 4, 0, 0, 0, 0, loc), got)
}

func TestWeekStartIsSunday(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{
			name: "midweek",
			at:   time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC), // Wednesday
			want: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),  // Sunday
		},
		{
			name: "sunday itself",
			at:   time.Date(2026, time.March, 1, 8, 30, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "saturday end of week",
			at:   time.Date(2026, time.March, 7, 23, 59, 59, 0, time.UTC),
			want: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WeekStart(tc.at, time.UTC))
		})
	}
}
