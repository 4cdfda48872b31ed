package service

import (
	"testing"
	"time"

	"github.com/pawtrack/pawtrack-backend/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func reminderAt(hour, minute int) time.Time {
	return time.Date(2026, 8, 27, hour, minute, 0, 0, time.Local)
}

func TestMatchSchedule_MedicationNameMustMatch(t *testing.T) {
	schedules := []model.Schedule{
		{
			ID:             "sched-1",
			TreatmentType:  model.TreatmentMedication,
			MedicationName: strPtr("Amlodipine"),
			ReminderTimes:  []time.Time{reminderAt(8, 0)},
		},
	}

	at := reminderAt(8, 30)

	assert.Nil(t, MatchSchedule(model.TreatmentMedication, "Benazepril", at, schedules))

	m := MatchSchedule(model.TreatmentMedication, "Amlodipine", at, schedules)
	require.NotNil(t, m)
	assert.Equal(t, "sched-1", m.ScheduleID)
	assert.Equal(t, reminderAt(8, 0), m.ScheduledTime)
}

func TestMatchSchedule_ToleranceBoundary(t *testing.T) {
	schedules := []model.Schedule{
		{
			ID:            "sched-1",
			TreatmentType: model.TreatmentFluid,
			ReminderTimes: []time.Time{reminderAt(9, 0)},
		},
	}

	tests := []struct {
		name    string
		at      time.Time
		matched bool
	}{
		{"exactly on the reminder", reminderAt(9, 0), true},
		{"two hours after, inclusive", reminderAt(11, 0), true},
		{"two hours before, inclusive", reminderAt(7, 0), true},
		{"just over two hours", reminderAt(11, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MatchSchedule(model.TreatmentFluid, "", tt.at, schedules)
			if tt.matched {
				assert.NotNil(t, m)
			} else {
				assert.Nil(t, m)
			}
		})
	}
}

func TestMatchSchedule_PicksNearestReminder(t *testing.T) {
	schedules := []model.Schedule{
		{
			ID:            "sched-1",
			TreatmentType: model.TreatmentFluid,
			ReminderTimes: []time.Time{reminderAt(8, 0), reminderAt(10, 0)},
		},
	}

	m := MatchSchedule(model.TreatmentFluid, "", reminderAt(9, 30), schedules)
	require.NotNil(t, m)
	assert.Equal(t, reminderAt(10, 0), m.ScheduledTime)
}

func TestMatchSchedule_TieKeepsFirstReminder(t *testing.T) {
	schedules := []model.Schedule{
		{
			ID:            "sched-1",
			TreatmentType: model.TreatmentFluid,
			ReminderTimes: []time.Time{reminderAt(8, 0), reminderAt(10, 0)},
		},
	}

	// 09:00 is equidistant from both reminders.
	m := MatchSchedule(model.TreatmentFluid, "", reminderAt(9, 0), schedules)
	require.NotNil(t, m)
	assert.Equal(t, reminderAt(8, 0), m.ScheduledTime)
}

func TestMatchSchedule_ProjectsReminderOntoSessionDate(t *testing.T) {
	// Reminder stored with an old date; only its clock time matters.
	schedules := []model.Schedule{
		{
			ID:            "sched-1",
			TreatmentType: model.TreatmentFluid,
			ReminderTimes: []time.Time{time.Date(2025, 1, 1, 18, 0, 0, 0, time.Local)},
		},
	}

	m := MatchSchedule(model.TreatmentFluid, "", reminderAt(18, 20), schedules)
	require.NotNil(t, m)
	assert.Equal(t, reminderAt(18, 0), m.ScheduledTime)
}

func TestMatchSchedule_IgnoresOtherTreatmentType(t *testing.T) {
	schedules := []model.Schedule{
		{
			ID:            "sched-1",
			TreatmentType: model.TreatmentFluid,
			ReminderTimes: []time.Time{reminderAt(8, 0)},
		},
	}

	assert.Nil(t, MatchSchedule(model.TreatmentMedication, "Amlodipine", reminderAt(8, 0), schedules))
}
