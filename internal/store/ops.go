package store

import (
	"strconv"

	"github.com/pawtrack/pawtrack-backend/pkg/model"
)

// MaxUnitOps is the hard ceiling on operations per atomic write unit. Bulk
// callers must chunk above it.
const MaxUnitOps = 500

// Op is one deferred statement inside an atomic write unit.
type Op struct {
	SQL  string
	Args []any
}

const upsertMedicationSQL = `
	INSERT INTO medication_sessions (
		id, user_id, pet_id, taken_at, medication_name, dosage_given,
		completed, notes, schedule_id, scheduled_time, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	ON CONFLICT (id) DO UPDATE SET
		taken_at = EXCLUDED.taken_at,
		medication_name = EXCLUDED.medication_name,
		dosage_given = EXCLUDED.dosage_given,
		completed = EXCLUDED.completed,
		notes = EXCLUDED.notes,
		schedule_id = EXCLUDED.schedule_id,
		scheduled_time = EXCLUDED.scheduled_time,
		updated_at = NOW()
`

// UpsertMedicationSession builds the event-document write for a medication
// session.
func UpsertMedicationSession(s model.MedicationSession) Op {
	return Op{
		SQL: upsertMedicationSQL,
		Args: []any{
			s.ID, s.UserID, s.PetID, s.TakenAt, s.MedicationName, s.DosageGiven,
			s.Completed, s.Notes, s.ScheduleID, s.ScheduledTime,
		},
	}
}

const upsertFluidSQL = `
	INSERT INTO fluid_sessions (
		id, user_id, pet_id, given_at, volume_given_ml, injection_site,
		stress_level, notes, schedule_id, scheduled_time, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	ON CONFLICT (id) DO UPDATE SET
		given_at = EXCLUDED.given_at,
		volume_given_ml = EXCLUDED.volume_given_ml,
		injection_site = EXCLUDED.injection_site,
		stress_level = EXCLUDED.stress_level,
		notes = EXCLUDED.notes,
		schedule_id = EXCLUDED.schedule_id,
		scheduled_time = EXCLUDED.scheduled_time,
		updated_at = NOW()
`

// UpsertFluidSession builds the event-document write for a fluid session.
func UpsertFluidSession(s model.FluidSession) Op {
	return Op{
		SQL: upsertFluidSQL,
		Args: []any{
			s.ID, s.UserID, s.PetID, s.GivenAt, s.VolumeGivenML, s.InjectionSite,
			s.StressLevel, s.Notes, s.ScheduleID, s.ScheduledTime,
		},
	}
}

// DeleteMedicationSession builds the event-document delete for a medication
// session. Rollup reversal is the caller's responsibility.
func DeleteMedicationSession(userID, petID, id string) Op {
	return Op{
		SQL:  `DELETE FROM medication_sessions WHERE id = $1 AND user_id = $2 AND pet_id = $3`,
		Args: []any{id, userID, petID},
	}
}

// DeleteFluidSession builds the event-document delete for a fluid session.
func DeleteFluidSession(userID, petID, id string) Op {
	return Op{
		SQL:  `DELETE FROM fluid_sessions WHERE id = $1 AND user_id = $2 AND pet_id = $3`,
		Args: []any{id, userID, petID},
	}
}

// Rollup merge semantics: counters add their delta commutatively, so
// concurrent units converge in any order. Set-once columns arrive as NULL
// when the delta suppressed them and are applied with COALESCE, which keeps
// the stored value untouched.
const mergeDailySQL = `
	INSERT INTO daily_summaries (
		user_id, pet_id, date,
		medication_doses_given, medication_scheduled_doses, medication_missed_count,
		fluid_total_volume_ml, fluid_session_count, fluid_scheduled_sessions,
		fluid_goal_ml, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	ON CONFLICT (user_id, pet_id, date) DO UPDATE SET
		medication_doses_given = daily_summaries.medication_doses_given + EXCLUDED.medication_doses_given,
		medication_scheduled_doses = COALESCE(EXCLUDED.medication_scheduled_doses, daily_summaries.medication_scheduled_doses),
		medication_missed_count = daily_summaries.medication_missed_count + EXCLUDED.medication_missed_count,
		fluid_total_volume_ml = daily_summaries.fluid_total_volume_ml + EXCLUDED.fluid_total_volume_ml,
		fluid_session_count = daily_summaries.fluid_session_count + EXCLUDED.fluid_session_count,
		fluid_scheduled_sessions = daily_summaries.fluid_scheduled_sessions + EXCLUDED.fluid_scheduled_sessions,
		fluid_goal_ml = COALESCE(EXCLUDED.fluid_goal_ml, daily_summaries.fluid_goal_ml),
		updated_at = NOW()
`

// MergeDailySummary builds the daily rollup merge+increment write.
func MergeDailySummary(userID, petID, date string, d model.PeriodDelta) Op {
	return Op{
		SQL: mergeDailySQL,
		Args: []any{
			userID, petID, date,
			d.MedicationDoses, d.ScheduledDoses, d.MedicationMissed,
			d.FluidVolumeML, d.FluidSessions, d.FluidScheduledSessions,
			d.FluidGoalML,
		},
	}
}

const mergeWeeklySQL = `
	INSERT INTO weekly_summaries (
		user_id, pet_id, week_id,
		medication_doses_given, medication_scheduled_doses, medication_missed_count,
		fluid_total_volume_ml, fluid_session_count, fluid_scheduled_sessions,
		fluid_weekly_goal_ml, fluid_scheduled_volume_ml, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	ON CONFLICT (user_id, pet_id, week_id) DO UPDATE SET
		medication_doses_given = weekly_summaries.medication_doses_given + EXCLUDED.medication_doses_given,
		medication_scheduled_doses = COALESCE(EXCLUDED.medication_scheduled_doses, weekly_summaries.medication_scheduled_doses),
		medication_missed_count = weekly_summaries.medication_missed_count + EXCLUDED.medication_missed_count,
		fluid_total_volume_ml = weekly_summaries.fluid_total_volume_ml + EXCLUDED.fluid_total_volume_ml,
		fluid_session_count = weekly_summaries.fluid_session_count + EXCLUDED.fluid_session_count,
		fluid_scheduled_sessions = weekly_summaries.fluid_scheduled_sessions + EXCLUDED.fluid_scheduled_sessions,
		fluid_weekly_goal_ml = COALESCE(EXCLUDED.fluid_weekly_goal_ml, weekly_summaries.fluid_weekly_goal_ml),
		fluid_scheduled_volume_ml = COALESCE(EXCLUDED.fluid_scheduled_volume_ml, weekly_summaries.fluid_scheduled_volume_ml),
		updated_at = NOW()
`

// MergeWeeklySummary builds the weekly rollup merge+increment write.
func MergeWeeklySummary(userID, petID, weekID string, d model.PeriodDelta) Op {
	return Op{
		SQL: mergeWeeklySQL,
		Args: []any{
			userID, petID, weekID,
			d.MedicationDoses, d.ScheduledDoses, d.MedicationMissed,
			d.FluidVolumeML, d.FluidSessions, d.FluidScheduledSessions,
			d.FluidGoalML, d.ScheduledVolumeML,
		},
	}
}

// The monthly rollup additionally maintains per-day jsonb maps. The touched
// day arrives twice ($8 as int for the no-op guard, $9 as text for the jsonb
// path) to keep parameter types unambiguous.
const mergeMonthlySQL = `
	INSERT INTO monthly_summaries (
		user_id, pet_id, month_id,
		medication_doses_given, medication_missed_count,
		fluid_total_volume_ml, fluid_session_count,
		day_volumes_ml, day_goals_ml, day_scheduled_counts,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7,
		CASE WHEN $8::int = 0 THEN '{}'::jsonb
			ELSE jsonb_build_object($9::text, $10::double precision) END,
		CASE WHEN $11::double precision IS NULL THEN '{}'::jsonb
			ELSE jsonb_build_object($9::text, $11::double precision) END,
		CASE WHEN $12::int IS NULL THEN '{}'::jsonb
			ELSE jsonb_build_object($9::text, $12::int) END,
		NOW(), NOW())
	ON CONFLICT (user_id, pet_id, month_id) DO UPDATE SET
		medication_doses_given = monthly_summaries.medication_doses_given + EXCLUDED.medication_doses_given,
		medication_missed_count = monthly_summaries.medication_missed_count + EXCLUDED.medication_missed_count,
		fluid_total_volume_ml = monthly_summaries.fluid_total_volume_ml + EXCLUDED.fluid_total_volume_ml,
		fluid_session_count = monthly_summaries.fluid_session_count + EXCLUDED.fluid_session_count,
		day_volumes_ml = CASE WHEN $8::int = 0 THEN monthly_summaries.day_volumes_ml
			ELSE jsonb_set(COALESCE(monthly_summaries.day_volumes_ml, '{}'::jsonb), ARRAY[$9::text],
				to_jsonb(COALESCE((monthly_summaries.day_volumes_ml ->> $9::text)::double precision, 0) + $10::double precision)) END,
		day_goals_ml = CASE WHEN $11::double precision IS NULL THEN monthly_summaries.day_goals_ml
			ELSE jsonb_set(COALESCE(monthly_summaries.day_goals_ml, '{}'::jsonb), ARRAY[$9::text],
				to_jsonb($11::double precision)) END,
		day_scheduled_counts = CASE WHEN $12::int IS NULL THEN monthly_summaries.day_scheduled_counts
			ELSE jsonb_set(COALESCE(monthly_summaries.day_scheduled_counts, '{}'::jsonb), ARRAY[$9::text],
				to_jsonb($12::int)) END,
		updated_at = NOW()
`

// MergeMonthlySummary builds the monthly rollup merge+increment write,
// including the per-day volume/goal/scheduled slots.
func MergeMonthlySummary(userID, petID, monthID string, d model.PeriodDelta) Op {
	return Op{
		SQL: mergeMonthlySQL,
		Args: []any{
			userID, petID, monthID,
			d.MedicationDoses, d.MedicationMissed,
			d.FluidVolumeML, d.FluidSessions,
			d.DayOfMonth, dayKey(d.DayOfMonth), d.DayVolumeML,
			d.DayGoalML, d.DayScheduled,
		},
	}
}

func dayKey(day int) string { return strconv.Itoa(day) }
