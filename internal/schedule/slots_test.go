package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formatAll(ts []TimeOfDay) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.String())
	}
	return out
}

func TestGenerateSlots_StandardWindows(t *testing.T) {
	slots := GenerateSlots(StandardWindows, 30*time.Minute)

	want := []string{
		"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00", "12:30",
		"15:00", "15:30", "16:00", "16:30", "17:00", "17:30", "18:00", "18:30",
	}
	assert.Equal(t, want, formatAll(slots))
	assert.NotContains(t, formatAll(slots), "13:00")
	assert.NotContains(t, formatAll(slots), "19:00")
}

func TestGenerateSlots_EmptyAndUneven(t *testing.T) {
	assert.Empty(t, GenerateSlots(nil, 30*time.Minute))
	assert.Empty(t, GenerateSlots(StandardWindows, 0))

	// the last slot may start before the end even if it would overrun it
	odd := []WorkingWindow{{Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(9, 50)}}
	assert.Equal(t, []string{"09:00", "09:30"}, formatAll(GenerateSlots(odd, 30*time.Minute)))

	// windows keep input order
	reversed := []WorkingWindow{StandardWindows[1], StandardWindows[0]}
	got := GenerateSlots(reversed, time.Hour)
	assert.Equal(t, []string{"15:00", "16:00", "17:00", "18:00", "09:00", "10:00", "11:00", "12:00"}, formatAll(got))
}

func TestCalendar_WorkingDays(t *testing.T) {
	cal := DefaultCalendar()

	monday := NewDate(2024, time.June, 10)
	saturday := NewDate(2024, time.June, 15)
	sunday := NewDate(2024, time.June, 16)

	assert.True(t, cal.IsWorkingDay(monday))
	assert.False(t, cal.IsWorkingDay(saturday))
	assert.False(t, cal.IsWorkingDay(sunday))
	assert.Len(t, cal.Slots(monday), 16)
	assert.Empty(t, cal.Slots(saturday))

	weekend := NewCalendar(StandardWindows, SlotStep, []time.Weekday{time.Saturday})
	assert.Len(t, weekend.Slots(saturday), 16)
	assert.Empty(t, weekend.Slots(monday))
}

func TestParseDateAndTime(t *testing.T) {
	d, err := ParseDate("2024-06-10")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.June, 10), d)
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, "2024-06-11", d.AddDays(1).String())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(-1).Before(d))

	_, err = ParseDate("2024-02-30")
	assert.Error(t, err)
	_, err = ParseDate("10/06/2024")
	assert.Error(t, err)

	tod, err := ParseTimeOfDay("18:30")
	require.NoError(t, err)
	assert.Equal(t, NewTimeOfDay(18, 30), tod)

	tod, err = ParseTimeOfDay("09:15:42")
	require.NoError(t, err)
	assert.Equal(t, 9, tod.Hour())
	assert.Equal(t, 15, tod.Minute())
	assert.Equal(t, 42, tod.Second())
	assert.Equal(t, "09:15", tod.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
}

func TestMomentReached(t *testing.T) {
	loc := time.FixedZone("clinic", -4*3600)
	now := MomentOf(time.Date(2024, 6, 10, 10, 15, 0, 0, loc))

	assert.True(t, now.Reached(NewDate(2024, 6, 9), NewTimeOfDay(18, 0)))
	assert.True(t, now.Reached(NewDate(2024, 6, 10), NewTimeOfDay(10, 0)))
	assert.True(t, now.Reached(NewDate(2024, 6, 10), NewTimeOfDay(10, 15)))
	assert.False(t, now.Reached(NewDate(2024, 6, 10), NewTimeOfDay(10, 30)))
	assert.False(t, now.Reached(NewDate(2024, 6, 11), NewTimeOfDay(9, 0)))
}
