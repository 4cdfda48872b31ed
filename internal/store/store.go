package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pawtrack/pawtrack-backend/pkg/model"
	"go.uber.org/zap"
)

// ErrTooManyOps is returned when an atomic write unit exceeds MaxUnitOps.
var ErrTooManyOps = errors.New("atomic write unit exceeds operation ceiling")

// Store executes atomic write units and the narrow reads the engine needs.
type Store struct {
	db     PgxPool
	logger *zap.Logger
}

// New creates a Store.
func New(db PgxPool, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// ExecUnit runs every op inside one transaction: all become visible together
// or none do. Units are capped at MaxUnitOps; larger work must be chunked by
// the caller before it reaches the store.
func (s *Store) ExecUnit(ctx context.Context, ops []Op) (err error) {
	if len(ops) > MaxUnitOps {
		return fmt.Errorf("%w: %d > %d", ErrTooManyOps, len(ops), MaxUnitOps)
	}
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin write unit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("failed to commit write unit: %w", e)
		}
	}()

	for i, op := range ops {
		if _, err = tx.Exec(ctx, op.SQL, op.Args...); err != nil {
			s.logger.Error("write unit operation failed",
				zap.Int("op_index", i),
				zap.Int("op_count", len(ops)),
				zap.Error(err),
			)
			return fmt.Errorf("write unit op %d/%d failed: %w", i, len(ops), err)
		}
	}
	return nil
}

// GetDailySummary returns the daily rollup for the period, or nil when the
// period has no document yet.
func (s *Store) GetDailySummary(ctx context.Context, userID, petID, date string) (*model.DailySummary, error) {
	const query = `
		SELECT user_id, pet_id, date,
			medication_doses_given, medication_scheduled_doses, medication_missed_count,
			fluid_total_volume_ml, fluid_session_count, fluid_scheduled_sessions,
			fluid_goal_ml, created_at, updated_at
		FROM daily_summaries
		WHERE user_id = $1 AND pet_id = $2 AND date = $3
	`

	var sum model.DailySummary
	err := s.db.QueryRow(ctx, query, userID, petID, date).Scan(
		&sum.UserID, &sum.PetID, &sum.Date,
		&sum.MedicationDosesGiven, &sum.MedicationScheduledDoses, &sum.MedicationMissedCount,
		&sum.FluidTotalVolumeML, &sum.FluidSessionCount, &sum.FluidScheduledSessions,
		&sum.FluidGoalML, &sum.CreatedAt, &sum.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read daily summary: %w", err)
	}
	return &sum, nil
}

// GetWeeklySummary returns the weekly rollup, or nil when absent.
func (s *Store) GetWeeklySummary(ctx context.Context, userID, petID, weekID string) (*model.WeeklySummary, error) {
	const query = `
		SELECT user_id, pet_id, week_id,
			medication_doses_given, medication_scheduled_doses, medication_missed_count,
			fluid_total_volume_ml, fluid_session_count, fluid_scheduled_sessions,
			fluid_weekly_goal_ml, fluid_scheduled_volume_ml, created_at, updated_at
		FROM weekly_summaries
		WHERE user_id = $1 AND pet_id = $2 AND week_id = $3
	`

	var sum model.WeeklySummary
	err := s.db.QueryRow(ctx, query, userID, petID, weekID).Scan(
		&sum.UserID, &sum.PetID, &sum.WeekID,
		&sum.MedicationDosesGiven, &sum.MedicationScheduledDoses, &sum.MedicationMissedCount,
		&sum.FluidTotalVolumeML, &sum.FluidSessionCount, &sum.FluidScheduledSessions,
		&sum.FluidWeeklyGoalML, &sum.FluidScheduledVolumeML, &sum.CreatedAt, &sum.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read weekly summary: %w", err)
	}
	return &sum, nil
}

// GetMonthlySummary returns the monthly rollup, or nil when absent.
func (s *Store) GetMonthlySummary(ctx context.Context, userID, petID, monthID string) (*model.MonthlySummary, error) {
	const query = `
		SELECT user_id, pet_id, month_id,
			medication_doses_given, medication_missed_count,
			fluid_total_volume_ml, fluid_session_count,
			day_volumes_ml, day_goals_ml, day_scheduled_counts,
			created_at, updated_at
		FROM monthly_summaries
		WHERE user_id = $1 AND pet_id = $2 AND month_id = $3
	`

	var (
		sum                            model.MonthlySummary
		dayVolumes, dayGoals, daySched []byte
	)
	err := s.db.QueryRow(ctx, query, userID, petID, monthID).Scan(
		&sum.UserID, &sum.PetID, &sum.MonthID,
		&sum.MedicationDosesGiven, &sum.MedicationMissedCount,
		&sum.FluidTotalVolumeML, &sum.FluidSessionCount,
		&dayVolumes, &dayGoals, &daySched,
		&sum.CreatedAt, &sum.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read monthly summary: %w", err)
	}

	if err := decodeDayMap(dayVolumes, &sum.DayVolumesML); err != nil {
		return nil, fmt.Errorf("failed to decode day volumes: %w", err)
	}
	if err := decodeDayMap(dayGoals, &sum.DayGoalsML); err != nil {
		return nil, fmt.Errorf("failed to decode day goals: %w", err)
	}
	if err := decodeDayMap(daySched, &sum.DayScheduledCounts); err != nil {
		return nil, fmt.Errorf("failed to decode day scheduled counts: %w", err)
	}
	return &sum, nil
}

func decodeDayMap[T any](raw []byte, dst *map[int]T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// GetMedicationSession fetches one medication session by id.
func (s *Store) GetMedicationSession(ctx context.Context, userID, petID, id string) (*model.MedicationSession, error) {
	const query = `
		SELECT id, user_id, pet_id, taken_at, medication_name, dosage_given,
			completed, notes, schedule_id, scheduled_time, created_at, updated_at
		FROM medication_sessions
		WHERE id = $1 AND user_id = $2 AND pet_id = $3
	`

	var sess model.MedicationSession
	err := s.db.QueryRow(ctx, query, id, userID, petID).Scan(
		&sess.ID, &sess.UserID, &sess.PetID, &sess.TakenAt, &sess.MedicationName,
		&sess.DosageGiven, &sess.Completed, &sess.Notes, &sess.ScheduleID,
		&sess.ScheduledTime, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read medication session: %w", err)
	}
	return &sess, nil
}

// GetFluidSession fetches one fluid session by id.
func (s *Store) GetFluidSession(ctx context.Context, userID, petID, id string) (*model.FluidSession, error) {
	const query = `
		SELECT id, user_id, pet_id, given_at, volume_given_ml, injection_site,
			stress_level, notes, schedule_id, scheduled_time, created_at, updated_at
		FROM fluid_sessions
		WHERE id = $1 AND user_id = $2 AND pet_id = $3
	`

	var sess model.FluidSession
	err := s.db.QueryRow(ctx, query, id, userID, petID).Scan(
		&sess.ID, &sess.UserID, &sess.PetID, &sess.GivenAt, &sess.VolumeGivenML,
		&sess.InjectionSite, &sess.StressLevel, &sess.Notes, &sess.ScheduleID,
		&sess.ScheduledTime, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read fluid session: %w", err)
	}
	return &sess, nil
}

// RecentMedicationSessions is the narrow duplicate-detection query: sessions
// for one medication inside [around-window, around+window], newest first,
// capped by limit.
func (s *Store) RecentMedicationSessions(ctx context.Context, userID, petID, medicationName string, around time.Time, window time.Duration, limit int) ([]model.MedicationSession, error) {
	const query = `
		SELECT id, user_id, pet_id, taken_at, medication_name, dosage_given,
			completed, notes, schedule_id, scheduled_time, created_at, updated_at
		FROM medication_sessions
		WHERE user_id = $1 AND pet_id = $2 AND medication_name = $3
			AND taken_at BETWEEN $4 AND $5
		ORDER BY taken_at DESC
		LIMIT $6
	`

	rows, err := s.db.Query(ctx, query, userID, petID, medicationName,
		around.Add(-window), around.Add(window), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.MedicationSession
	for rows.Next() {
		var sess model.MedicationSession
		err := rows.Scan(
			&sess.ID, &sess.UserID, &sess.PetID, &sess.TakenAt, &sess.MedicationName,
			&sess.DosageGiven, &sess.Completed, &sess.Notes, &sess.ScheduleID,
			&sess.ScheduledTime, &sess.CreatedAt, &sess.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// ListActiveSchedules returns the pet's active schedules. Schedules are owned
// by the profile feature; this engine only reads them.
func (s *Store) ListActiveSchedules(ctx context.Context, userID, petID string) ([]model.Schedule, error) {
	const query = `
		SELECT id, user_id, pet_id, treatment_type, medication_name,
			target_dosage, target_volume_ml, frequency, reminder_times, active
		FROM schedules
		WHERE user_id = $1 AND pet_id = $2 AND active
		ORDER BY id
	`

	rows, err := s.db.Query(ctx, query, userID, petID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.Schedule
	for rows.Next() {
		var (
			sched     model.Schedule
			reminders []byte
		)
		err := rows.Scan(
			&sched.ID, &sched.UserID, &sched.PetID, &sched.TreatmentType,
			&sched.MedicationName, &sched.TargetDosage, &sched.TargetVolumeML,
			&sched.Frequency, &reminders, &sched.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		if len(reminders) > 0 {
			if err := json.Unmarshal(reminders, &sched.ReminderTimes); err != nil {
				return nil, fmt.Errorf("failed to decode reminder times: %w", err)
			}
		}
		schedules = append(schedules, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return schedules, nil
}
