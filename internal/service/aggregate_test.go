package service

import (
	"testing"
	"time"

	"github.com/pawtrack/pawtrack-backend/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaFromMedicationSession_CompletedAndMissed(t *testing.T) {
	completed := model.MedicationSession{Completed: true}
	missed := model.MedicationSession{Completed: false}

	d := DeltaFromMedicationSession(completed, Goals{}, AlreadyCounted{})
	assert.Equal(t, 1, d.Daily.MedicationDoses)
	assert.Equal(t, 0, d.Daily.MedicationMissed)
	assert.Equal(t, 1, d.Weekly.MedicationDoses)
	assert.Equal(t, 1, d.Monthly.MedicationDoses)

	d = DeltaFromMedicationSession(missed, Goals{}, AlreadyCounted{})
	assert.Equal(t, 0, d.Daily.MedicationDoses)
	assert.Equal(t, 1, d.Daily.MedicationMissed)
	assert.Equal(t, 1, d.Weekly.MedicationMissed)
	assert.Equal(t, 1, d.Monthly.MedicationMissed)
}

func TestDeltaFromMedicationSession_SetOnceSuppression(t *testing.T) {
	sess := model.MedicationSession{Completed: true}
	goals := Goals{ScheduledDosesToday: 2, WeeklyScheduledDoses: 14}

	d := DeltaFromMedicationSession(sess, goals, AlreadyCounted{})
	require.NotNil(t, d.Daily.ScheduledDoses)
	assert.Equal(t, 2, *d.Daily.ScheduledDoses)
	require.NotNil(t, d.Weekly.ScheduledDoses)
	assert.Equal(t, 14, *d.Weekly.ScheduledDoses)

	// Already counted for both periods: the constants must not be re-sent.
	d = DeltaFromMedicationSession(sess, goals, AlreadyCounted{
		DailyScheduledDoses:  true,
		WeeklyScheduledDoses: true,
	})
	assert.Nil(t, d.Daily.ScheduledDoses)
	assert.Nil(t, d.Weekly.ScheduledDoses)

	// Counted daily but not weekly.
	d = DeltaFromMedicationSession(sess, goals, AlreadyCounted{DailyScheduledDoses: true})
	assert.Nil(t, d.Daily.ScheduledDoses)
	require.NotNil(t, d.Weekly.ScheduledDoses)
}

func TestDeltaFromFluidSession_VolumeAndDaySlot(t *testing.T) {
	sched := "sched-1"
	sess := model.FluidSession{
		GivenAt:       time.Date(2026, 8, 27, 18, 0, 0, 0, time.Local),
		VolumeGivenML: 120,
		ScheduleID:    &sched,
	}
	goals := Goals{
		FluidRemindersToday:     2,
		DailyFluidGoalML:        200,
		WeeklyFluidGoalML:       1400,
		WeeklyScheduledVolumeML: 1400,
	}

	d := DeltaFromFluidSession(sess, goals, AlreadyCounted{})
	assert.Equal(t, 120.0, d.Daily.FluidVolumeML)
	assert.Equal(t, 1, d.Daily.FluidSessions)
	assert.Equal(t, 1, d.Daily.FluidScheduledSessions)
	assert.Equal(t, 27, d.Monthly.DayOfMonth)
	assert.Equal(t, 120.0, d.Monthly.DayVolumeML)
	require.NotNil(t, d.Daily.FluidGoalML)
	assert.Equal(t, 200.0, *d.Daily.FluidGoalML)
	require.NotNil(t, d.Monthly.DayGoalML)
	require.NotNil(t, d.Monthly.DayScheduled)
	assert.Equal(t, 2, *d.Monthly.DayScheduled)
	require.NotNil(t, d.Weekly.FluidGoalML)
	require.NotNil(t, d.Weekly.ScheduledVolumeML)
}

func TestDeltaFromFluidSession_ManualSessionNotScheduled(t *testing.T) {
	sess := model.FluidSession{
		GivenAt:       time.Date(2026, 8, 27, 18, 0, 0, 0, time.Local),
		VolumeGivenML: 80,
	}

	d := DeltaFromFluidSession(sess, Goals{}, allCounted())
	assert.Equal(t, 0, d.Daily.FluidScheduledSessions)
	assert.Nil(t, d.Daily.FluidGoalML)
	assert.Nil(t, d.Weekly.FluidGoalML)
}

func TestDeltaFromMedicationEdit(t *testing.T) {
	old := model.MedicationSession{Completed: false, DosageGiven: 1}

	t.Run("non-aggregable edit yields zero delta", func(t *testing.T) {
		updated := old
		note := "gave with food"
		updated.Notes = &note
		updated.DosageGiven = 2

		d := DeltaFromMedicationEdit(old, updated)
		assert.True(t, d.IsZero())
	})

	t.Run("missed to completed", func(t *testing.T) {
		updated := old
		updated.Completed = true

		d := DeltaFromMedicationEdit(old, updated)
		assert.Equal(t, 1, d.Daily.MedicationDoses)
		assert.Equal(t, -1, d.Daily.MedicationMissed)
		assert.Equal(t, 1, d.Monthly.MedicationDoses)
	})

	t.Run("completed to missed", func(t *testing.T) {
		was := old
		was.Completed = true
		updated := old
		updated.Completed = false

		d := DeltaFromMedicationEdit(was, updated)
		assert.Equal(t, -1, d.Daily.MedicationDoses)
		assert.Equal(t, 1, d.Daily.MedicationMissed)
	})
}

func TestDeltaFromFluidEdit(t *testing.T) {
	old := model.FluidSession{
		GivenAt:       time.Date(2026, 8, 27, 18, 0, 0, 0, time.Local),
		VolumeGivenML: 100,
	}

	t.Run("unchanged volume yields zero delta", func(t *testing.T) {
		updated := old
		site := "left flank"
		updated.InjectionSite = &site

		d := DeltaFromFluidEdit(old, updated)
		assert.True(t, d.IsZero())
	})

	t.Run("volume diff flows to all periods and the day slot", func(t *testing.T) {
		updated := old
		updated.VolumeGivenML = 150

		d := DeltaFromFluidEdit(old, updated)
		assert.Equal(t, 50.0, d.Daily.FluidVolumeML)
		assert.Equal(t, 50.0, d.Weekly.FluidVolumeML)
		assert.Equal(t, 50.0, d.Monthly.FluidVolumeML)
		assert.Equal(t, 27, d.Monthly.DayOfMonth)
		assert.Equal(t, 50.0, d.Monthly.DayVolumeML)
		// Session counts never move on an edit.
		assert.Equal(t, 0, d.Daily.FluidSessions)
	})
}

func TestDeltaFromBulk_SetOnceAppliedOnce(t *testing.T) {
	meds := []model.MedicationSession{
		{Completed: true}, {Completed: true}, {Completed: true},
	}
	fluids := []model.FluidSession{
		{GivenAt: time.Date(2026, 8, 27, 18, 0, 0, 0, time.Local), VolumeGivenML: 100},
	}
	goals := Goals{
		ScheduledDosesToday:  3,
		WeeklyScheduledDoses: 21,
		DailyFluidGoalML:     100,
		WeeklyFluidGoalML:    700,
	}

	d := DeltaFromBulk(meds, fluids, goals, AlreadyCounted{})
	assert.Equal(t, 3, d.Daily.MedicationDoses)
	assert.Equal(t, 100.0, d.Daily.FluidVolumeML)
	require.NotNil(t, d.Daily.ScheduledDoses)
	assert.Equal(t, 3, *d.Daily.ScheduledDoses)
	require.NotNil(t, d.Daily.FluidGoalML)
	assert.Equal(t, 100.0, *d.Daily.FluidGoalML)
}

func TestDeltaFromBulk_RespectsPreResolvedCounted(t *testing.T) {
	meds := []model.MedicationSession{{Completed: true}}
	goals := Goals{ScheduledDosesToday: 3, WeeklyScheduledDoses: 21}

	d := DeltaFromBulk(meds, nil, goals, allCounted())
	assert.Nil(t, d.Daily.ScheduledDoses)
	assert.Nil(t, d.Weekly.ScheduledDoses)
	assert.Equal(t, 1, d.Daily.MedicationDoses)
}

func TestReversalDelta(t *testing.T) {
	sess := model.FluidSession{
		GivenAt:       time.Date(2026, 8, 5, 9, 0, 0, 0, time.Local),
		VolumeGivenML: 90,
	}
	forward := DeltaFromFluidSession(sess, Goals{DailyFluidGoalML: 200}, AlreadyCounted{})
	reversed := ReversalDelta(forward)

	assert.Equal(t, -90.0, reversed.Daily.FluidVolumeML)
	assert.Equal(t, -1, reversed.Daily.FluidSessions)
	assert.Equal(t, -90.0, reversed.Monthly.DayVolumeML)
	assert.Equal(t, 5, reversed.Monthly.DayOfMonth)
	// Set-once constants survive a deletion untouched.
	assert.Nil(t, reversed.Daily.FluidGoalML)
	assert.Nil(t, reversed.Monthly.DayGoalML)
}

func TestResolveAlreadyCounted(t *testing.T) {
	assert.Equal(t, AlreadyCounted{}, ResolveAlreadyCounted(nil, nil))

	doses := 2
	goal := 200.0
	counted := ResolveAlreadyCounted(
		&model.DailySummary{MedicationScheduledDoses: &doses},
		&model.WeeklySummary{FluidWeeklyGoalML: &goal},
	)
	assert.True(t, counted.DailyScheduledDoses)
	assert.False(t, counted.DailyFluidGoal)
	assert.True(t, counted.WeeklyFluidGoal)
	assert.False(t, counted.WeeklyScheduledDoses)
	assert.False(t, counted.WeeklyScheduledVolume)
}

func TestResolveGoals(t *testing.T) {
	day := time.Date(2026, 8, 27, 12, 0, 0, 0, time.Local)
	med := "Amlodipine"
	schedules := []model.Schedule{
		{
			TreatmentType:  model.TreatmentMedication,
			MedicationName: &med,
			Active:         true,
			ReminderTimes: []time.Time{
				time.Date(2026, 8, 27, 8, 0, 0, 0, time.Local),
				time.Date(2026, 8, 27, 20, 0, 0, 0, time.Local),
			},
		},
		{
			TreatmentType:  model.TreatmentFluid,
			TargetVolumeML: 150,
			Active:         true,
			ReminderTimes:  []time.Time{time.Date(2026, 8, 27, 18, 0, 0, 0, time.Local)},
		},
		{
			// Inactive schedules contribute nothing.
			TreatmentType:  model.TreatmentFluid,
			TargetVolumeML: 999,
			ReminderTimes:  []time.Time{time.Date(2026, 8, 27, 6, 0, 0, 0, time.Local)},
		},
		{
			// Reminders on another day contribute nothing today.
			TreatmentType:  model.TreatmentMedication,
			MedicationName: &med,
			Active:         true,
			ReminderTimes:  []time.Time{time.Date(2026, 8, 26, 8, 0, 0, 0, time.Local)},
		},
	}

	g := resolveGoals(schedules, day)
	assert.Equal(t, 2, g.ScheduledDosesToday)
	assert.Equal(t, 14, g.WeeklyScheduledDoses)
	assert.Equal(t, 1, g.FluidRemindersToday)
	assert.Equal(t, 150.0, g.DailyFluidGoalML)
	assert.Equal(t, 1050.0, g.WeeklyFluidGoalML)
}
