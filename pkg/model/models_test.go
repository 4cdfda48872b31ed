package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodIDs(t *testing.T) {
	at := time.Date(2026, 8, 27, 23, 30, 0, 0, time.Local)

	assert.Equal(t, "2026-08-27", DailyPeriodID(at))
	assert.Equal(t, "2026-08", MonthlyPeriodID(at))

	// January 4th is always in ISO week 1, so the week number must be
	// zero-padded for lexical sorting.
	assert.Equal(t, "2026-W01", WeeklyPeriodID(time.Date(2026, 1, 4, 0, 0, 0, 0, time.Local)))
	// December 28th is always in the final ISO week of its year.
	assert.Equal(t, "2026-W53", WeeklyPeriodID(time.Date(2026, 12, 28, 0, 0, 0, 0, time.Local)))
}

func TestSchedule_RemindersOn(t *testing.T) {
	sched := Schedule{ReminderTimes: []time.Time{
		time.Date(2025, 1, 1, 8, 30, 0, 0, time.Local),
		time.Date(2025, 1, 1, 20, 0, 0, 0, time.Local),
	}}

	day := time.Date(2026, 8, 27, 12, 0, 0, 0, time.Local)
	projected := sched.RemindersOn(day)
	require.Len(t, projected, 2)
	assert.Equal(t, time.Date(2026, 8, 27, 8, 30, 0, 0, time.Local), projected[0])
	assert.Equal(t, time.Date(2026, 8, 27, 20, 0, 0, 0, time.Local), projected[1])
}

func TestSchedule_RemindersToday(t *testing.T) {
	today := time.Date(2026, 8, 27, 12, 0, 0, 0, time.Local)
	sched := Schedule{ReminderTimes: []time.Time{
		time.Date(2026, 8, 27, 8, 0, 0, 0, time.Local),
		time.Date(2026, 8, 26, 8, 0, 0, 0, time.Local),
		time.Date(2026, 8, 28, 8, 0, 0, 0, time.Local),
	}}

	reminders := sched.RemindersToday(today)
	require.Len(t, reminders, 1)
	assert.Equal(t, 27, reminders[0].Day())
}

func TestPeriodDelta_IsZero(t *testing.T) {
	assert.True(t, PeriodDelta{}.IsZero())
	assert.True(t, PeriodDelta{DayOfMonth: 5}.IsZero())

	goal := 200.0
	assert.False(t, PeriodDelta{FluidVolumeML: 1}.IsZero())
	assert.False(t, PeriodDelta{FluidGoalML: &goal}.IsZero())

	assert.True(t, SummaryDelta{}.IsZero())
	assert.False(t, SummaryDelta{Weekly: PeriodDelta{MedicationDoses: 1}}.IsZero())
}

func TestMedicationSession_OptionalFieldsSurviveJSON(t *testing.T) {
	sched := "sched-1"
	at := time.Date(2026, 8, 27, 8, 0, 0, 0, time.UTC)
	sess := MedicationSession{
		ID:             "sess-1",
		MedicationName: "Amlodipine",
		TakenAt:        at,
		ScheduleID:     &sched,
		ScheduledTime:  &at,
	}

	raw, err := json.Marshal(sess)
	require.NoError(t, err)

	var decoded MedicationSession
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NotNil(t, decoded.ScheduleID)
	assert.Equal(t, "sched-1", *decoded.ScheduleID)
	assert.Nil(t, decoded.Notes)

	// A manual session keeps its absent link absent.
	manual := MedicationSession{ID: "sess-2", MedicationName: "Amlodipine", TakenAt: at}
	raw, err = json.Marshal(manual)
	require.NoError(t, err)
	var decodedManual MedicationSession
	require.NoError(t, json.Unmarshal(raw, &decodedManual))
	assert.Nil(t, decodedManual.ScheduleID)
	assert.Nil(t, decodedManual.ScheduledTime)
}
