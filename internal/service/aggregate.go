package service

import (
	"github.com/pawtrack/pawtrack-backend/pkg/model"
)

// Goals carries the per-period constants a write may need to establish. They
// are derived from the prescribed schedules by the caller, once per
// operation (or once per bulk batch).
type Goals struct {
	ScheduledDosesToday     int
	WeeklyScheduledDoses    int
	FluidRemindersToday     int
	DailyFluidGoalML        float64
	WeeklyFluidGoalML       float64
	WeeklyScheduledVolumeML float64
}

// AlreadyCounted reports which per-period constants the target rollups have
// already recorded. Resolved by auxiliary reads before the write; when a flag
// is true the builder suppresses that set-once value entirely, so the same
// constant is never written twice within a period.
type AlreadyCounted struct {
	DailyScheduledDoses   bool
	DailyFluidGoal        bool
	WeeklyScheduledDoses  bool
	WeeklyFluidGoal       bool
	WeeklyScheduledVolume bool
}

// ResolveAlreadyCounted derives the suppression flags from the current daily
// and weekly rollup documents. A nil summary means the period has no document
// yet, so nothing is counted.
func ResolveAlreadyCounted(daily *model.DailySummary, weekly *model.WeeklySummary) AlreadyCounted {
	var counted AlreadyCounted
	if daily != nil {
		counted.DailyScheduledDoses = daily.MedicationScheduledDoses != nil
		counted.DailyFluidGoal = daily.FluidGoalML != nil
	}
	if weekly != nil {
		counted.WeeklyScheduledDoses = weekly.MedicationScheduledDoses != nil
		counted.WeeklyFluidGoal = weekly.FluidWeeklyGoalML != nil
		counted.WeeklyScheduledVolume = weekly.FluidScheduledVolumeML != nil
	}
	return counted
}

// DeltaFromMedicationSession computes the rollup deltas one new medication
// session applies. Counters are commutative increments; the scheduled-dose
// constants are included only when not yet counted for their period.
func DeltaFromMedicationSession(s model.MedicationSession, goals Goals, counted AlreadyCounted) model.SummaryDelta {
	var d model.SummaryDelta

	doses, missed := 0, 0
	if s.Completed {
		doses = 1
	} else {
		missed = 1
	}

	d.Daily.MedicationDoses = doses
	d.Daily.MedicationMissed = missed
	d.Weekly.MedicationDoses = doses
	d.Weekly.MedicationMissed = missed
	d.Monthly.MedicationDoses = doses
	d.Monthly.MedicationMissed = missed

	if !counted.DailyScheduledDoses && goals.ScheduledDosesToday > 0 {
		d.Daily.ScheduledDoses = intPtr(goals.ScheduledDosesToday)
	}
	if !counted.WeeklyScheduledDoses && goals.WeeklyScheduledDoses > 0 {
		d.Weekly.ScheduledDoses = intPtr(goals.WeeklyScheduledDoses)
	}

	return d
}

// DeltaFromFluidSession computes the rollup deltas one new fluid session
// applies, including the monthly per-day slot for the session's day-of-month.
func DeltaFromFluidSession(s model.FluidSession, goals Goals, counted AlreadyCounted) model.SummaryDelta {
	var d model.SummaryDelta

	scheduled := 0
	if s.ScheduleID != nil {
		scheduled = 1
	}

	d.Daily.FluidVolumeML = s.VolumeGivenML
	d.Daily.FluidSessions = 1
	d.Daily.FluidScheduledSessions = scheduled
	d.Weekly.FluidVolumeML = s.VolumeGivenML
	d.Weekly.FluidSessions = 1
	d.Weekly.FluidScheduledSessions = scheduled
	d.Monthly.FluidVolumeML = s.VolumeGivenML
	d.Monthly.FluidSessions = 1

	d.Monthly.DayOfMonth = s.GivenAt.Day()
	d.Monthly.DayVolumeML = s.VolumeGivenML

	if !counted.DailyFluidGoal && goals.DailyFluidGoalML > 0 {
		d.Daily.FluidGoalML = floatPtr(goals.DailyFluidGoalML)
		d.Monthly.DayGoalML = floatPtr(goals.DailyFluidGoalML)
		if goals.FluidRemindersToday > 0 {
			d.Monthly.DayScheduled = intPtr(goals.FluidRemindersToday)
		}
	}
	if !counted.WeeklyFluidGoal && goals.WeeklyFluidGoalML > 0 {
		d.Weekly.FluidGoalML = floatPtr(goals.WeeklyFluidGoalML)
	}
	if !counted.WeeklyScheduledVolume && goals.WeeklyScheduledVolumeML > 0 {
		d.Weekly.ScheduledVolumeML = floatPtr(goals.WeeklyScheduledVolumeML)
	}

	return d
}

// DeltaFromMedicationEdit computes the delta between two versions of the same
// medication session. Only the completion flag is aggregable; an edit that
// changes nothing aggregable yields a zero delta so the caller can skip
// rollup writes entirely. Cross-day timestamp edits are rejected upstream.
func DeltaFromMedicationEdit(old, updated model.MedicationSession) model.SummaryDelta {
	var d model.SummaryDelta
	if old.Completed == updated.Completed {
		return d
	}

	doses, missed := 1, -1
	if old.Completed {
		doses, missed = -1, 1
	}
	d.Daily.MedicationDoses = doses
	d.Daily.MedicationMissed = missed
	d.Weekly.MedicationDoses = doses
	d.Weekly.MedicationMissed = missed
	d.Monthly.MedicationDoses = doses
	d.Monthly.MedicationMissed = missed
	return d
}

// DeltaFromFluidEdit computes the delta between two versions of the same
// fluid session. Only the volume is aggregable.
func DeltaFromFluidEdit(old, updated model.FluidSession) model.SummaryDelta {
	var d model.SummaryDelta
	diff := updated.VolumeGivenML - old.VolumeGivenML
	if diff == 0 {
		return d
	}

	d.Daily.FluidVolumeML = diff
	d.Weekly.FluidVolumeML = diff
	d.Monthly.FluidVolumeML = diff
	d.Monthly.DayOfMonth = updated.GivenAt.Day()
	d.Monthly.DayVolumeML = diff
	return d
}

// DeltaFromBulk folds a quick-log batch into one delta. Set-once constants
// are resolved once for the whole batch, never per session.
func DeltaFromBulk(meds []model.MedicationSession, fluids []model.FluidSession, goals Goals, counted AlreadyCounted) model.SummaryDelta {
	var total model.SummaryDelta

	for i, s := range meds {
		c := counted
		if i > 0 {
			c = allCounted()
		}
		total = mergeDeltas(total, DeltaFromMedicationSession(s, goals, c))
		counted.DailyScheduledDoses = true
		counted.WeeklyScheduledDoses = true
	}
	for i, s := range fluids {
		c := counted
		if i > 0 {
			c = allCounted()
		}
		total = mergeDeltas(total, DeltaFromFluidSession(s, goals, c))
	}

	return total
}

// ReversalDelta negates a delta's counters so a deletion can withdraw its
// session's contribution. Set-once constants are left alone: the period's
// schedule did not change because one session was removed.
func ReversalDelta(d model.SummaryDelta) model.SummaryDelta {
	return model.SummaryDelta{
		Daily:   reversePeriod(d.Daily),
		Weekly:  reversePeriod(d.Weekly),
		Monthly: reversePeriod(d.Monthly),
	}
}

func reversePeriod(p model.PeriodDelta) model.PeriodDelta {
	return model.PeriodDelta{
		MedicationDoses:        -p.MedicationDoses,
		MedicationMissed:       -p.MedicationMissed,
		FluidVolumeML:          -p.FluidVolumeML,
		FluidSessions:          -p.FluidSessions,
		FluidScheduledSessions: -p.FluidScheduledSessions,
		DayOfMonth:             p.DayOfMonth,
		DayVolumeML:            -p.DayVolumeML,
	}
}

func mergeDeltas(a, b model.SummaryDelta) model.SummaryDelta {
	return model.SummaryDelta{
		Daily:   mergePeriod(a.Daily, b.Daily),
		Weekly:  mergePeriod(a.Weekly, b.Weekly),
		Monthly: mergePeriod(a.Monthly, b.Monthly),
	}
}

func mergePeriod(a, b model.PeriodDelta) model.PeriodDelta {
	out := model.PeriodDelta{
		MedicationDoses:        a.MedicationDoses + b.MedicationDoses,
		MedicationMissed:       a.MedicationMissed + b.MedicationMissed,
		FluidVolumeML:          a.FluidVolumeML + b.FluidVolumeML,
		FluidSessions:          a.FluidSessions + b.FluidSessions,
		FluidScheduledSessions: a.FluidScheduledSessions + b.FluidScheduledSessions,
	}
	out.ScheduledDoses = firstInt(a.ScheduledDoses, b.ScheduledDoses)
	out.FluidGoalML = firstFloat(a.FluidGoalML, b.FluidGoalML)
	out.ScheduledVolumeML = firstFloat(a.ScheduledVolumeML, b.ScheduledVolumeML)
	out.DayOfMonth = a.DayOfMonth
	if out.DayOfMonth == 0 {
		out.DayOfMonth = b.DayOfMonth
	}
	out.DayVolumeML = a.DayVolumeML + b.DayVolumeML
	out.DayGoalML = firstFloat(a.DayGoalML, b.DayGoalML)
	out.DayScheduled = firstInt(a.DayScheduled, b.DayScheduled)
	return out
}

// ApplyDailyDelta applies a period delta to a daily summary in memory,
// mirroring the store's merge semantics. Used for optimistic display and in
// tests of the commutativity property.
func ApplyDailyDelta(sum *model.DailySummary, d model.PeriodDelta) {
	sum.MedicationDosesGiven += d.MedicationDoses
	sum.MedicationMissedCount += d.MedicationMissed
	sum.FluidTotalVolumeML += d.FluidVolumeML
	sum.FluidSessionCount += d.FluidSessions
	sum.FluidScheduledSessions += d.FluidScheduledSessions
	if sum.MedicationScheduledDoses == nil && d.ScheduledDoses != nil {
		sum.MedicationScheduledDoses = intPtr(*d.ScheduledDoses)
	}
	if sum.FluidGoalML == nil && d.FluidGoalML != nil {
		sum.FluidGoalML = floatPtr(*d.FluidGoalML)
	}
}

func allCounted() AlreadyCounted {
	return AlreadyCounted{
		DailyScheduledDoses:   true,
		DailyFluidGoal:        true,
		WeeklyScheduledDoses:  true,
		WeeklyFluidGoal:       true,
		WeeklyScheduledVolume: true,
	}
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func firstInt(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}
func firstFloat(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}
