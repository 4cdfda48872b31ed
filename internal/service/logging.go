package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pawtrack/pawtrack-backend/internal/analytics"
	"github.com/pawtrack/pawtrack-backend/internal/cache"
	"github.com/pawtrack/pawtrack-backend/internal/store"
	"github.com/pawtrack/pawtrack-backend/internal/treaterr"
	"github.com/pawtrack/pawtrack-backend/pkg/model"
	"go.uber.org/zap"
)

// duplicateQueryLimit caps the narrow remote query used for duplicate
// detection when the cache has nothing to offer.
const duplicateQueryLimit = 10

// Valid volume range for a single fluid session, in mL. Synthesized catch-up
// sessions honor the same bounds as interactive ones.
const (
	minFluidVolumeML = 1.0
	maxFluidVolumeML = 500.0
)

// DurableStore is the remote-store surface the orchestrator needs.
type DurableStore interface {
	ExecUnit(ctx context.Context, ops []store.Op) error
	GetDailySummary(ctx context.Context, userID, petID, date string) (*model.DailySummary, error)
	GetWeeklySummary(ctx context.Context, userID, petID, weekID string) (*model.WeeklySummary, error)
	GetMonthlySummary(ctx context.Context, userID, petID, monthID string) (*model.MonthlySummary, error)
	GetMedicationSession(ctx context.Context, userID, petID, id string) (*model.MedicationSession, error)
	GetFluidSession(ctx context.Context, userID, petID, id string) (*model.FluidSession, error)
	RecentMedicationSessions(ctx context.Context, userID, petID, medicationName string, around time.Time, window time.Duration, limit int) ([]model.MedicationSession, error)
	ListActiveSchedules(ctx context.Context, userID, petID string) ([]model.Schedule, error)
}

// SummaryCache is the local cache surface the orchestrator needs. All of its
// methods are best-effort; they never fail the write path.
type SummaryCache interface {
	Get(userID, petID string) (*model.CacheEntry, bool)
	PutAfterSession(userID, petID string, fact cache.SessionFact)
	PutAfterBulk(userID, petID string, entry *model.CacheEntry)
	Clear(userID, petID string)
}

// TreatmentService orchestrates session writes with their rollup updates.
// Every logical write travels as one atomic unit: the event document plus up
// to three rollup merge-writes, all visible together or not at all. The
// cache is updated only after a confirmed commit.
type TreatmentService struct {
	store     DurableStore
	cache     SummaryCache
	validator SessionValidator
	tracker   analytics.Tracker
	logger    *zap.Logger
	now       func() time.Time
}

// NewTreatmentService creates a TreatmentService. now is injectable for
// tests; pass nil for time.Now.
func NewTreatmentService(st DurableStore, c SummaryCache, v SessionValidator, t analytics.Tracker, logger *zap.Logger, now func() time.Time) *TreatmentService {
	if now == nil {
		now = time.Now
	}
	return &TreatmentService{store: st, cache: c, validator: v, tracker: t, logger: logger, now: now}
}

// LogMedicationSession validates, duplicate-checks, schedule-matches and
// atomically writes one medication session with its rollup deltas.
func (s *TreatmentService) LogMedicationSession(ctx context.Context, sess model.MedicationSession) (model.MedicationSession, error) {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	now := s.now()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	if err := s.validateMedication(sess); err != nil {
		return sess, err
	}
	if err := s.validator.ValidateMedication(sess); err != nil {
		return sess, err
	}

	if dup, err := s.findDuplicate(ctx, sess); err != nil {
		return sess, err
	} else if dup != nil {
		s.tracker.TrackLoggingFailure("duplicate_conflict", map[string]any{
			"medication": sess.MedicationName,
		})
		return sess, &treaterr.DuplicateConflictError{
			MedicationName:  dup.MedicationName,
			ConflictingID:   dup.ID,
			ConflictingTime: dup.TakenAt,
		}
	}

	schedules, err := s.store.ListActiveSchedules(ctx, sess.UserID, sess.PetID)
	if err != nil {
		return sess, fmt.Errorf("failed to load schedules: %w", err)
	}
	if m := MatchSchedule(model.TreatmentMedication, sess.MedicationName, sess.TakenAt, schedules); m != nil {
		sess.ScheduleID = &m.ScheduleID
		t := m.ScheduledTime
		sess.ScheduledTime = &t
	}

	goals := resolveGoals(schedules, sess.TakenAt)
	counted, err := s.resolveCounted(ctx, sess.UserID, sess.PetID, sess.TakenAt)
	if err != nil {
		return sess, s.writeFailure("log_medication", 0, err, sess.UserID)
	}

	delta := DeltaFromMedicationSession(sess, goals, counted)
	ops := append([]store.Op{store.UpsertMedicationSession(sess)},
		s.rollupOps(sess.UserID, sess.PetID, sess.TakenAt, delta)...)

	if err := s.store.ExecUnit(ctx, ops); err != nil {
		return sess, s.writeFailure("log_medication", 0, err, sess.UserID)
	}

	s.cache.PutAfterSession(sess.UserID, sess.PetID, cache.SessionFact{
		TreatmentType:  model.TreatmentMedication,
		MedicationName: sess.MedicationName,
		At:             sess.TakenAt,
		Completed:      sess.Completed,
		DosageGiven:    sess.DosageGiven,
	})

	s.logger.Info("medication session logged",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.String("medication", sess.MedicationName),
		zap.Bool("matched", sess.ScheduleID != nil),
	)
	return sess, nil
}

// LogFluidSession validates, schedule-matches and atomically writes one fluid
// session with its rollup deltas. Fluid sessions are never duplicate-checked.
func (s *TreatmentService) LogFluidSession(ctx context.Context, sess model.FluidSession) (model.FluidSession, error) {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	now := s.now()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	if err := s.validateFluid(sess); err != nil {
		return sess, err
	}
	if err := s.validator.ValidateFluid(sess); err != nil {
		return sess, err
	}

	schedules, err := s.store.ListActiveSchedules(ctx, sess.UserID, sess.PetID)
	if err != nil {
		return sess, fmt.Errorf("failed to load schedules: %w", err)
	}
	if m := MatchSchedule(model.TreatmentFluid, "", sess.GivenAt, schedules); m != nil {
		sess.ScheduleID = &m.ScheduleID
		t := m.ScheduledTime
		sess.ScheduledTime = &t
	}

	goals := resolveGoals(schedules, sess.GivenAt)
	counted, err := s.resolveCounted(ctx, sess.UserID, sess.PetID, sess.GivenAt)
	if err != nil {
		return sess, s.writeFailure("log_fluid", 0, err, sess.UserID)
	}

	delta := DeltaFromFluidSession(sess, goals, counted)
	ops := append([]store.Op{store.UpsertFluidSession(sess)},
		s.rollupOps(sess.UserID, sess.PetID, sess.GivenAt, delta)...)

	if err := s.store.ExecUnit(ctx, ops); err != nil {
		return sess, s.writeFailure("log_fluid", 0, err, sess.UserID)
	}

	s.cache.PutAfterSession(sess.UserID, sess.PetID, cache.SessionFact{
		TreatmentType: model.TreatmentFluid,
		At:            sess.GivenAt,
		VolumeML:      sess.VolumeGivenML,
	})

	s.logger.Info("fluid session logged",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.Float64("volume_ml", sess.VolumeGivenML),
		zap.Bool("matched", sess.ScheduleID != nil),
	)
	return sess, nil
}

// UpdateMedicationSession edits an existing session, writing the event
// document plus only the rollup deltas the edit actually causes. An edit
// that changes nothing aggregable issues exactly one document write.
func (s *TreatmentService) UpdateMedicationSession(ctx context.Context, updated model.MedicationSession) (model.MedicationSession, error) {
	old, err := s.store.GetMedicationSession(ctx, updated.UserID, updated.PetID, updated.ID)
	if err != nil {
		return updated, fmt.Errorf("failed to load session: %w", err)
	}
	if old == nil {
		return updated, treaterr.ErrSessionNotFound
	}
	if model.DailyPeriodID(old.TakenAt) != model.DailyPeriodID(updated.TakenAt) {
		return updated, &treaterr.ValidationError{Field: "taken_at", Reason: "cannot move a session to a different day"}
	}

	if err := s.validateMedication(updated); err != nil {
		return updated, err
	}
	if err := s.validator.ValidateMedication(updated); err != nil {
		return updated, err
	}

	updated.CreatedAt = old.CreatedAt
	updated.UpdatedAt = s.now()

	delta := DeltaFromMedicationEdit(*old, updated)
	ops := []store.Op{store.UpsertMedicationSession(updated)}
	if !delta.IsZero() {
		ops = append(ops, s.rollupOps(updated.UserID, updated.PetID, updated.TakenAt, delta)...)
	}

	if err := s.store.ExecUnit(ctx, ops); err != nil {
		return updated, s.writeFailure("update_medication", 0, err, updated.UserID)
	}

	// The cached rings cannot be edited in place; dropping the entry is safe
	// because a miss never blocks a write.
	s.cache.Clear(updated.UserID, updated.PetID)

	s.logger.Info("medication session updated",
		zap.String("session_id", updated.ID),
		zap.Bool("rollups_touched", !delta.IsZero()),
	)
	return updated, nil
}

// UpdateFluidSession edits an existing fluid session; only a volume change
// touches the rollups.
func (s *TreatmentService) UpdateFluidSession(ctx context.Context, updated model.FluidSession) (model.FluidSession, error) {
	old, err := s.store.GetFluidSession(ctx, updated.UserID, updated.PetID, updated.ID)
	if err != nil {
		return updated, fmt.Errorf("failed to load session: %w", err)
	}
	if old == nil {
		return updated, treaterr.ErrSessionNotFound
	}
	if model.DailyPeriodID(old.GivenAt) != model.DailyPeriodID(updated.GivenAt) {
		return updated, &treaterr.ValidationError{Field: "given_at", Reason: "cannot move a session to a different day"}
	}

	if err := s.validateFluid(updated); err != nil {
		return updated, err
	}
	if err := s.validator.ValidateFluid(updated); err != nil {
		return updated, err
	}

	updated.CreatedAt = old.CreatedAt
	updated.UpdatedAt = s.now()

	delta := DeltaFromFluidEdit(*old, updated)
	ops := []store.Op{store.UpsertFluidSession(updated)}
	if !delta.IsZero() {
		ops = append(ops, s.rollupOps(updated.UserID, updated.PetID, updated.GivenAt, delta)...)
	}

	if err := s.store.ExecUnit(ctx, ops); err != nil {
		return updated, s.writeFailure("update_fluid", 0, err, updated.UserID)
	}

	s.cache.Clear(updated.UserID, updated.PetID)

	s.logger.Info("fluid session updated",
		zap.String("session_id", updated.ID),
		zap.Bool("rollups_touched", !delta.IsZero()),
	)
	return updated, nil
}

// DeleteMedicationSession removes a session and withdraws its rollup
// contribution in the same atomic unit.
func (s *TreatmentService) DeleteMedicationSession(ctx context.Context, userID, petID, id string) error {
	old, err := s.store.GetMedicationSession(ctx, userID, petID, id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if old == nil {
		return treaterr.ErrSessionNotFound
	}

	delta := ReversalDelta(DeltaFromMedicationSession(*old, Goals{}, allCounted()))
	ops := append([]store.Op{store.DeleteMedicationSession(userID, petID, id)},
		s.rollupOps(userID, petID, old.TakenAt, delta)...)

	if err := s.store.ExecUnit(ctx, ops); err != nil {
		return s.writeFailure("delete_medication", 0, err, userID)
	}

	s.cache.Clear(userID, petID)
	s.logger.Info("medication session deleted", zap.String("session_id", id))
	return nil
}

// DeleteFluidSession removes a fluid session and withdraws its rollup
// contribution in the same atomic unit.
func (s *TreatmentService) DeleteFluidSession(ctx context.Context, userID, petID, id string) error {
	old, err := s.store.GetFluidSession(ctx, userID, petID, id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if old == nil {
		return treaterr.ErrSessionNotFound
	}

	delta := ReversalDelta(DeltaFromFluidSession(*old, Goals{}, allCounted()))
	ops := append([]store.Op{store.DeleteFluidSession(userID, petID, id)},
		s.rollupOps(userID, petID, old.GivenAt, delta)...)

	if err := s.store.ExecUnit(ctx, ops); err != nil {
		return s.writeFailure("delete_fluid", 0, err, userID)
	}

	s.cache.Clear(userID, petID)
	s.logger.Info("fluid session deleted", zap.String("session_id", id))
	return nil
}

// GetTodaySummary reads today's daily rollup, returning an empty summary
// when the period has no document yet.
func (s *TreatmentService) GetTodaySummary(ctx context.Context, userID, petID string) (*model.DailySummary, error) {
	return s.GetDailySummary(ctx, userID, petID, s.now())
}

// GetDailySummary reads the daily rollup for the given date.
func (s *TreatmentService) GetDailySummary(ctx context.Context, userID, petID string, date time.Time) (*model.DailySummary, error) {
	id := model.DailyPeriodID(date)
	sum, err := s.store.GetDailySummary(ctx, userID, petID, id)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		sum = &model.DailySummary{UserID: userID, PetID: petID, Date: id}
	}
	return sum, nil
}

// GetWeeklySummary reads the weekly rollup for the week containing date.
func (s *TreatmentService) GetWeeklySummary(ctx context.Context, userID, petID string, date time.Time) (*model.WeeklySummary, error) {
	id := model.WeeklyPeriodID(date)
	sum, err := s.store.GetWeeklySummary(ctx, userID, petID, id)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		sum = &model.WeeklySummary{UserID: userID, PetID: petID, WeekID: id}
	}
	return sum, nil
}

// GetMonthlySummary reads the monthly rollup for the month containing date.
func (s *TreatmentService) GetMonthlySummary(ctx context.Context, userID, petID string, date time.Time) (*model.MonthlySummary, error) {
	id := model.MonthlyPeriodID(date)
	sum, err := s.store.GetMonthlySummary(ctx, userID, petID, id)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		sum = &model.MonthlySummary{UserID: userID, PetID: petID, MonthID: id}
	}
	return sum, nil
}

// findDuplicate assembles the bounded candidate set: cache-derived hints when
// today's entry exists, otherwise one narrow remote query. Cache candidates
// carry only a name and a time, which is all the detector compares.
func (s *TreatmentService) findDuplicate(ctx context.Context, sess model.MedicationSession) (*model.MedicationSession, error) {
	if entry, ok := s.cache.Get(sess.UserID, sess.PetID); ok {
		var candidates []model.MedicationSession
		for _, t := range entry.RecentMedicationTimes[sess.MedicationName] {
			candidates = append(candidates, model.MedicationSession{
				MedicationName: sess.MedicationName,
				TakenAt:        t,
			})
		}
		return FindDuplicate(sess, candidates, DuplicateWindow), nil
	}

	recent, err := s.store.RecentMedicationSessions(ctx, sess.UserID, sess.PetID,
		sess.MedicationName, sess.TakenAt, DuplicateWindow, duplicateQueryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sessions: %w", err)
	}
	return FindDuplicate(sess, recent, DuplicateWindow), nil
}

// resolveCounted issues the two auxiliary reads that guard the set-once
// fields. The reads target independent documents and run concurrently, but
// both must finish before any write is issued.
func (s *TreatmentService) resolveCounted(ctx context.Context, userID, petID string, at time.Time) (AlreadyCounted, error) {
	var (
		wg        sync.WaitGroup
		daily     *model.DailySummary
		weekly    *model.WeeklySummary
		dailyErr  error
		weeklyErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		daily, dailyErr = s.store.GetDailySummary(ctx, userID, petID, model.DailyPeriodID(at))
	}()
	go func() {
		defer wg.Done()
		weekly, weeklyErr = s.store.GetWeeklySummary(ctx, userID, petID, model.WeeklyPeriodID(at))
	}()
	wg.Wait()

	if dailyErr != nil {
		return AlreadyCounted{}, dailyErr
	}
	if weeklyErr != nil {
		return AlreadyCounted{}, weeklyErr
	}
	return ResolveAlreadyCounted(daily, weekly), nil
}

// rollupOps builds the merge-writes for the three periods containing at,
// skipping periods the delta leaves untouched.
func (s *TreatmentService) rollupOps(userID, petID string, at time.Time, delta model.SummaryDelta) []store.Op {
	var ops []store.Op
	if !delta.Daily.IsZero() {
		ops = append(ops, store.MergeDailySummary(userID, petID, model.DailyPeriodID(at), delta.Daily))
	}
	if !delta.Weekly.IsZero() {
		ops = append(ops, store.MergeWeeklySummary(userID, petID, model.WeeklyPeriodID(at), delta.Weekly))
	}
	if !delta.Monthly.IsZero() {
		ops = append(ops, store.MergeMonthlySummary(userID, petID, model.MonthlyPeriodID(at), delta.Monthly))
	}
	return ops
}

func (s *TreatmentService) writeFailure(operation string, chunk int, err error, userID string) error {
	s.logger.Error("atomic write failed",
		zap.String("operation", operation),
		zap.Int("chunk", chunk),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	s.tracker.TrackLoggingFailure("atomic_write", map[string]any{
		"operation": operation,
		"chunk":     chunk,
	})
	return &treaterr.AtomicWriteError{Operation: operation, Chunk: chunk, Err: err}
}

func (s *TreatmentService) validateMedication(sess model.MedicationSession) error {
	if sess.UserID == "" || sess.PetID == "" {
		return &treaterr.ValidationError{Field: "owner", Reason: "user and pet are required"}
	}
	if len(sess.MedicationName) < 2 {
		return &treaterr.ValidationError{Field: "medication_name", Reason: "name too short"}
	}
	if sess.DosageGiven < 0 {
		return &treaterr.ValidationError{Field: "dosage_given", Reason: "dosage must not be negative"}
	}
	if sess.TakenAt.After(s.now()) {
		return &treaterr.ValidationError{Field: "taken_at", Reason: "timestamp is in the future"}
	}
	return validateSchedulePair(sess.ScheduleID, sess.ScheduledTime)
}

func (s *TreatmentService) validateFluid(sess model.FluidSession) error {
	if sess.UserID == "" || sess.PetID == "" {
		return &treaterr.ValidationError{Field: "owner", Reason: "user and pet are required"}
	}
	if sess.VolumeGivenML < minFluidVolumeML || sess.VolumeGivenML > maxFluidVolumeML {
		return &treaterr.ValidationError{Field: "volume_given_ml", Reason: "volume must be between 1 and 500 mL"}
	}
	if sess.GivenAt.After(s.now()) {
		return &treaterr.ValidationError{Field: "given_at", Reason: "timestamp is in the future"}
	}
	return validateSchedulePair(sess.ScheduleID, sess.ScheduledTime)
}

// validateSchedulePair enforces match-or-manual: a schedule link is either
// complete or absent, never partial.
func validateSchedulePair(scheduleID *string, scheduledTime *time.Time) error {
	if (scheduleID == nil) != (scheduledTime == nil) {
		return &treaterr.ValidationError{Field: "schedule_link", Reason: "schedule id and scheduled time must be set together"}
	}
	return nil
}

// resolveGoals derives the per-period constants from the prescribed
// schedules for the day containing at.
func resolveGoals(schedules []model.Schedule, at time.Time) Goals {
	var g Goals
	for _, sched := range schedules {
		if !sched.Active {
			continue
		}
		reminders := len(sched.RemindersToday(at))
		if reminders == 0 {
			continue
		}
		switch sched.TreatmentType {
		case model.TreatmentMedication:
			g.ScheduledDosesToday += reminders
		case model.TreatmentFluid:
			g.FluidRemindersToday += reminders
			g.DailyFluidGoalML += sched.TargetVolumeML * float64(reminders)
		}
	}
	g.WeeklyScheduledDoses = g.ScheduledDosesToday * 7
	g.WeeklyFluidGoalML = g.DailyFluidGoalML * 7
	g.WeeklyScheduledVolumeML = g.DailyFluidGoalML * 7
	return g
}
