package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/sentinel/errors"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("08:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 8, Minute: 5}, tod)
	assert.Equal(t, "08:05", tod.String())

	for _, bad := range []string{"", "8", "24:00", "10:60", "ab:cd", "-1:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.True(t, errors.IsConfigError(err), bad)
	}
}

func TestRecurrenceFirst(t *testing.T) {
	at10 := Daily(1, TimeOfDay{Hour: 10})

	before := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC), at10.First(before), "today when still ahead")

	exact := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, exact, at10.First(exact))

	after := time.Date(2026, 10, 16, 10, 0, 1, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC), at10.First(after), "tomorrow once passed")

	every3 := Daily(3, TimeOfDay{Hour: 10})
	assert.Equal(t, time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC), every3.First(after), "interval not applied to the first run")
}

func TestRecurrenceFirstHourly(t *testing.T) {
	r := Hourly(15)
	assert.Equal(t, time.Date(2026, 10, 16, 9, 15, 0, 0, time.UTC), r.First(time.Date(2026, 10, 16, 9, 10, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2026, 10, 16, 10, 15, 0, 0, time.UTC), r.First(time.Date(2026, 10, 16, 9, 20, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2026, 10, 17, 0, 15, 0, 0, time.UTC), r.First(time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)))
}

func TestRecurrenceNextFromDueTime(t *testing.T) {
	r := Daily(1, TimeOfDay{Hour: 10})
	due := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	// a slow run finishing at 10:07 still schedules for 10:00 tomorrow
	next, skipped := r.Next(due, due.Add(7*time.Minute))
	assert.Equal(t, time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC), next)
	assert.Zero(t, skipped)
}

func TestRecurrenceNextCollapsesMissed(t *testing.T) {
	r := Daily(2, TimeOfDay{Hour: 8})
	due := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 10, 8, 9, 0, 0, 0, time.UTC)

	next, skipped := r.Next(due, now)
	assert.Equal(t, time.Date(2026, 10, 9, 8, 0, 0, 0, time.UTC), next)
	assert.Equal(t, 3, skipped, "Oct 3, 5 and 7 collapsed")

	h := Hourly(0)
	next, skipped = h.Next(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC), next, "strictly after now")
	assert.Equal(t, 1, skipped)
}

func TestRecurrenceValidateAndString(t *testing.T) {
	assert.NoError(t, Daily(1, TimeOfDay{Hour: 8}).Validate())
	assert.Error(t, Recurrence{Days: -1}.Validate())
	assert.Error(t, Recurrence{Days: 1, At: TimeOfDay{Hour: 25}}.Validate())

	assert.Equal(t, 1, Daily(0, TimeOfDay{}).Days)
	assert.Equal(t, "daily at 08:00", Daily(1, TimeOfDay{Hour: 8}).String())
	assert.Equal(t, "every 3 days at 10:30", Daily(3, TimeOfDay{Hour: 10, Minute: 30}).String())
	assert.Equal(t, "hourly at :05", Hourly(5).String())
}

func TestRecurrenceCron(t *testing.T) {
	r, err := Cron("0 */6 * * *")
	require.NoError(t, err)
	assert.False(t, r.IsHourly())
	assert.Equal(t, "cron 0 */6 * * *", r.String())

	now := time.Date(2026, 10, 16, 7, 30, 0, 0, time.UTC)
	first := r.First(now)
	assert.Equal(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), first)

	next, skipped := r.Next(first, time.Date(2026, 10, 16, 19, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), next)
	assert.Equal(t, 1, skipped, "18:00 collapsed")
}

func TestRecurrenceCronInvalid(t *testing.T) {
	_, err := Cron("every tuesday")
	assert.True(t, errors.IsConfigError(err))

	_, err = Cron("0 0 */6 * * *")
	assert.True(t, errors.IsConfigError(err), "seconds field rejected")
}
