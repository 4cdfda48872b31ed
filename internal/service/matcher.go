package service

import (
	"time"

	"github.com/pawtrack/pawtrack-backend/pkg/model"
)

// MatchTolerance is the window within which a logged session is associated
// with the nearest prescribed reminder time.
const MatchTolerance = 2 * time.Hour

// ScheduleMatch links a session to the schedule entry it satisfied.
type ScheduleMatch struct {
	ScheduleID    string
	ScheduledTime time.Time
}

// MatchSchedule maps a logged session to the closest matching reminder across
// all candidate schedules. Medication sessions additionally require an exact
// medication-name match; fluid sessions match on time alone. Reminders are
// projected onto the session's calendar date before comparison. Returns nil
// when no reminder falls within MatchTolerance, which is a normal "manual
// log" outcome, not an error.
func MatchSchedule(treatmentType model.TreatmentType, medicationName string, at time.Time, schedules []model.Schedule) *ScheduleMatch {
	var (
		best     *ScheduleMatch
		bestDiff time.Duration
	)

	for _, sched := range schedules {
		if sched.TreatmentType != treatmentType {
			continue
		}
		if treatmentType == model.TreatmentMedication {
			if sched.MedicationName == nil || *sched.MedicationName != medicationName {
				continue
			}
		}

		for _, reminder := range sched.RemindersOn(at) {
			diff := at.Sub(reminder)
			if diff < 0 {
				diff = -diff
			}
			if diff > MatchTolerance {
				continue
			}
			// Strict < keeps the first-found reminder on ties.
			if best == nil || diff < bestDiff {
				best = &ScheduleMatch{ScheduleID: sched.ID, ScheduledTime: reminder}
				bestDiff = diff
			}
		}
	}

	return best
}
