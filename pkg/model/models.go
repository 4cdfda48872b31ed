package model

import (
	"fmt"
	"time"
)

// TreatmentType identifies the kind of treatment a session or schedule refers to.
type TreatmentType string

const (
	TreatmentMedication TreatmentType = "medication"
	TreatmentFluid      TreatmentType = "fluid"
)

// MedicationSession is an immutable record of one administered (or missed) dose.
type MedicationSession struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	PetID          string     `json:"pet_id"`
	TakenAt        time.Time  `json:"taken_at"`
	MedicationName string     `json:"medication_name"`
	DosageGiven    float64    `json:"dosage_given"`
	Completed      bool       `json:"completed"`
	Notes          *string    `json:"notes,omitempty"`
	ScheduleID     *string    `json:"schedule_id,omitempty"`
	ScheduledTime  *time.Time `json:"scheduled_time,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FluidSession is an immutable record of one fluid therapy administration.
type FluidSession struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	PetID         string     `json:"pet_id"`
	GivenAt       time.Time  `json:"given_at"`
	VolumeGivenML float64    `json:"volume_given_ml"`
	InjectionSite *string    `json:"injection_site,omitempty"`
	StressLevel   *string    `json:"stress_level,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	ScheduleID    *string    `json:"schedule_id,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Schedule is a prescribed treatment plan entry. It is owned by the profile
// feature; this engine only reads it.
type Schedule struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	PetID          string        `json:"pet_id"`
	TreatmentType  TreatmentType `json:"treatment_type"`
	MedicationName *string       `json:"medication_name,omitempty"`
	TargetDosage   float64       `json:"target_dosage"`
	TargetVolumeML float64       `json:"target_volume_ml"`
	Frequency      string        `json:"frequency"`
	ReminderTimes  []time.Time   `json:"reminder_times"`
	Active         bool          `json:"active"`
}

// RemindersOn returns the schedule's reminder times projected onto the given
// calendar day, in local time. Used when matching a session against nearby
// reminders regardless of the reminder's own date.
func (s Schedule) RemindersOn(day time.Time) []time.Time {
	var out []time.Time
	for _, r := range s.ReminderTimes {
		out = append(out, time.Date(day.Year(), day.Month(), day.Day(),
			r.Hour(), r.Minute(), 0, 0, day.Location()))
	}
	return out
}

// RemindersToday returns only the reminder times whose calendar date equals
// day's date in day's location. Used when deciding what is scheduled "today".
func (s Schedule) RemindersToday(day time.Time) []time.Time {
	y, m, d := day.Date()
	var out []time.Time
	for _, r := range s.ReminderTimes {
		ry, rm, rd := r.In(day.Location()).Date()
		if ry == y && rm == m && rd == d {
			out = append(out, r.In(day.Location()))
		}
	}
	return out
}

// DailySummary is the per-day rollup. Arithmetic fields only grow via
// commutative increments; set-once fields are nullable and written at most
// once per day.
type DailySummary struct {
	UserID                   string    `json:"user_id"`
	PetID                    string    `json:"pet_id"`
	Date                     string    `json:"date"` // YYYY-MM-DD
	MedicationDosesGiven     int       `json:"medication_doses_given"`
	MedicationScheduledDoses *int      `json:"medication_scheduled_doses,omitempty"`
	MedicationMissedCount    int       `json:"medication_missed_count"`
	FluidTotalVolumeML       float64   `json:"fluid_total_volume_ml"`
	FluidSessionCount        int       `json:"fluid_session_count"`
	FluidScheduledSessions   int       `json:"fluid_scheduled_sessions"`
	FluidGoalML              *float64  `json:"fluid_goal_ml,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// WeeklySummary is the per-ISO-week rollup.
type WeeklySummary struct {
	UserID                   string    `json:"user_id"`
	PetID                    string    `json:"pet_id"`
	WeekID                   string    `json:"week_id"` // ISO-8601, e.g. 2026-W35
	MedicationDosesGiven     int       `json:"medication_doses_given"`
	MedicationScheduledDoses *int      `json:"medication_scheduled_doses,omitempty"`
	MedicationMissedCount    int       `json:"medication_missed_count"`
	FluidTotalVolumeML       float64   `json:"fluid_total_volume_ml"`
	FluidSessionCount        int       `json:"fluid_session_count"`
	FluidScheduledSessions   int       `json:"fluid_scheduled_sessions"`
	FluidWeeklyGoalML        *float64  `json:"fluid_weekly_goal_ml,omitempty"`
	FluidScheduledVolumeML   *float64  `json:"fluid_scheduled_volume_ml,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// MonthlySummary is the per-calendar-month rollup. The per-day maps are keyed
// by day-of-month (1..31).
type MonthlySummary struct {
	UserID                string              `json:"user_id"`
	PetID                 string              `json:"pet_id"`
	MonthID               string              `json:"month_id"` // YYYY-MM
	MedicationDosesGiven  int                 `json:"medication_doses_given"`
	MedicationMissedCount int                 `json:"medication_missed_count"`
	FluidTotalVolumeML    float64             `json:"fluid_total_volume_ml"`
	FluidSessionCount     int                 `json:"fluid_session_count"`
	DayVolumesML          map[int]float64     `json:"day_volumes_ml,omitempty"`
	DayGoalsML            map[int]float64     `json:"day_goals_ml,omitempty"`
	DayScheduledCounts    map[int]int         `json:"day_scheduled_counts,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// CacheEntry is the local-only projection of "today" for one (user, pet).
// It is valid only for the exact day it is stamped with.
type CacheEntry struct {
	Day                      string                 `json:"day"` // YYYY-MM-DD
	MedicationSessionCount   int                    `json:"medication_session_count"`
	FluidSessionCount        int                    `json:"fluid_session_count"`
	TotalMedicationDoses     float64                `json:"total_medication_doses"`
	TotalFluidVolumeML       float64                `json:"total_fluid_volume_ml"`
	RecentMedicationTimes    map[string][]time.Time `json:"recent_medication_times,omitempty"`
	CompletedMedicationTimes map[string][]time.Time `json:"completed_medication_times,omitempty"`
}

// PeriodDelta expresses the change one operation applies to a single rollup
// period. Counter fields are commutative increments. Pointer fields are
// set-once values: nil means "do not touch".
type PeriodDelta struct {
	MedicationDoses        int
	MedicationMissed       int
	FluidVolumeML          float64
	FluidSessions          int
	FluidScheduledSessions int

	ScheduledDoses    *int
	FluidGoalML       *float64
	ScheduledVolumeML *float64

	// Monthly per-day slot. DayOfMonth 0 means no slot is touched.
	DayOfMonth   int
	DayVolumeML  float64
	DayGoalML    *float64
	DayScheduled *int
}

// IsZero reports whether the delta would change nothing.
func (d PeriodDelta) IsZero() bool {
	return d.MedicationDoses == 0 && d.MedicationMissed == 0 &&
		d.FluidVolumeML == 0 && d.FluidSessions == 0 && d.FluidScheduledSessions == 0 &&
		d.ScheduledDoses == nil && d.FluidGoalML == nil && d.ScheduledVolumeML == nil &&
		d.DayVolumeML == 0 && d.DayGoalML == nil && d.DayScheduled == nil
}

// SummaryDelta carries the deltas for all three rollup periods of one
// operation. It is transient: built per write, never persisted.
type SummaryDelta struct {
	Daily   PeriodDelta
	Weekly  PeriodDelta
	Monthly PeriodDelta
}

// IsZero reports whether no rollup write is needed at all.
func (d SummaryDelta) IsZero() bool {
	return d.Daily.IsZero() && d.Weekly.IsZero() && d.Monthly.IsZero()
}

// OperationKind enumerates replayable offline operations.
type OperationKind string

const (
	OpCreateMedication OperationKind = "create_medication"
	OpUpdateMedication OperationKind = "update_medication"
	OpCreateFluid      OperationKind = "create_fluid"
	OpUpdateFluid      OperationKind = "update_fluid"
	OpQuickLogAll      OperationKind = "quick_log_all"
)

// OperationStatus is the lifecycle state of a queued operation.
type OperationStatus string

const (
	OpStatusPending OperationStatus = "pending"
	OpStatusSyncing OperationStatus = "syncing"
	OpStatusFailed  OperationStatus = "failed"
)

// QueuedOperation is a durable record of a write deferred for connectivity.
// Payload holds the JSON-encoded arguments needed to replay the operation
// through the live write path.
type QueuedOperation struct {
	ID         string          `json:"id"`
	Kind       OperationKind   `json:"kind"`
	Payload    []byte          `json:"payload"`
	Status     OperationStatus `json:"status"`
	Attempts   int             `json:"attempts"`
	LastError  *string         `json:"last_error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// DailyPeriodID formats t as a daily rollup identifier.
func DailyPeriodID(t time.Time) string { return t.Format("2006-01-02") }

// WeeklyPeriodID formats t as an ISO-8601 week identifier, zero-padded so
// identifiers sort lexically.
func WeeklyPeriodID(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// MonthlyPeriodID formats t as a monthly rollup identifier.
func MonthlyPeriodID(t time.Time) string { return t.Format("2006-01") }
