package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pawtrack/pawtrack-backend/internal/store"
	"github.com/pawtrack/pawtrack-backend/internal/treaterr"
	"github.com/pawtrack/pawtrack-backend/pkg/model"
	"go.uber.org/zap"
)

// ReconcileResult is the set of sessions quick-log still needs to create for
// the current day.
type ReconcileResult struct {
	Medication []model.MedicationSession
	Fluid      []model.FluidSession
}

// QuickLogResult reports what a quick-log run wrote.
type QuickLogResult struct {
	MedicationLogged int `json:"medication_logged"`
	FluidLogged      int `json:"fluid_logged"`
	Chunks           int `json:"chunks"`
}

// Reconcile computes exactly the outstanding sessions for today.
//
// Medication: every reminder falling on today that has no completed session
// for the same medication within MatchTolerance of it gets a synthesized,
// completed session at the reminder's scheduled time.
//
// Fluid: the day's target volume is targetVolume x reminders-today; whatever
// the cache says is already logged is subtracted, and catch-up sessions carry
// the remainder, timestamped now, keeping the first reminder as scheduling
// metadata. Each catch-up session stays within the per-session volume bounds,
// so a large remainder is split across several sessions rather than producing
// one that interactive validation would reject.
//
// The cache snapshot may be nil (a miss); a miss means nothing is skipped,
// which can only over-log toward schedule, never block.
func Reconcile(schedules []model.Schedule, cached *model.CacheEntry, userID, petID string, now time.Time) (ReconcileResult, error) {
	var result ReconcileResult
	activeToday := false

	for _, sched := range schedules {
		if !sched.Active {
			continue
		}
		reminders := sched.RemindersToday(now)
		if len(reminders) == 0 {
			continue
		}
		activeToday = true

		switch sched.TreatmentType {
		case model.TreatmentMedication:
			name := ""
			if sched.MedicationName != nil {
				name = *sched.MedicationName
			}
			for _, reminder := range reminders {
				if hasCompletedNear(cached, name, reminder) {
					continue
				}
				schedID := sched.ID
				schedTime := reminder
				result.Medication = append(result.Medication, model.MedicationSession{
					ID:             uuid.New().String(),
					UserID:         userID,
					PetID:          petID,
					TakenAt:        reminder,
					MedicationName: name,
					DosageGiven:    sched.TargetDosage,
					Completed:      true,
					ScheduleID:     &schedID,
					ScheduledTime:  &schedTime,
				})
			}

		case model.TreatmentFluid:
			target := sched.TargetVolumeML * float64(len(reminders))
			logged := 0.0
			if cached != nil {
				logged = cached.TotalFluidVolumeML
			}
			remaining := target - logged
			schedID := sched.ID
			schedTime := reminders[0]
			for remaining >= minFluidVolumeML {
				vol := remaining
				if vol > maxFluidVolumeML {
					vol = maxFluidVolumeML
				}
				result.Fluid = append(result.Fluid, model.FluidSession{
					ID:            uuid.New().String(),
					UserID:        userID,
					PetID:         petID,
					GivenAt:       now,
					VolumeGivenML: vol,
					ScheduleID:    &schedID,
					ScheduledTime: &schedTime,
				})
				remaining -= vol
			}
		}
	}

	if !activeToday {
		return result, treaterr.ErrNoActiveSchedules
	}
	if len(result.Medication) == 0 && len(result.Fluid) == 0 {
		return result, treaterr.ErrNothingOutstanding
	}
	return result, nil
}

// hasCompletedNear reports whether the cache records a completed session for
// the medication within MatchTolerance of the reminder.
func hasCompletedNear(cached *model.CacheEntry, medicationName string, reminder time.Time) bool {
	if cached == nil {
		return false
	}
	for _, t := range cached.CompletedMedicationTimes[medicationName] {
		diff := t.Sub(reminder)
		if diff < 0 {
			diff = -diff
		}
		if diff <= MatchTolerance {
			return true
		}
	}
	return false
}

// ChunkBulkOps splits a bulk write into atomic units under the store's
// operation ceiling. The first unit carries all rollup writes plus as many
// session writes as fit, so the rollup update itself stays atomic; later
// units carry only session writes. Cross-chunk atomicity is explicitly not
// guaranteed.
func ChunkBulkOps(sessionOps, rollupOps []store.Op) [][]store.Op {
	if len(sessionOps)+len(rollupOps) <= store.MaxUnitOps {
		unit := append(append([]store.Op{}, rollupOps...), sessionOps...)
		return [][]store.Op{unit}
	}

	firstSessions := store.MaxUnitOps - len(rollupOps)
	units := [][]store.Op{
		append(append([]store.Op{}, rollupOps...), sessionOps[:firstSessions]...),
	}
	rest := sessionOps[firstSessions:]
	for len(rest) > 0 {
		n := len(rest)
		if n > store.MaxUnitOps {
			n = store.MaxUnitOps
		}
		units = append(units, append([]store.Op{}, rest[:n]...))
		rest = rest[n:]
	}
	return units
}

// QuickLogAll synthesizes every outstanding session for today and writes the
// batch through chunked atomic units. A failure in a later chunk leaves
// earlier chunks committed; the error identifies the failing chunk and a
// re-run reconciles against what was committed.
func (s *TreatmentService) QuickLogAll(ctx context.Context, userID, petID string) (QuickLogResult, error) {
	var result QuickLogResult

	schedules, err := s.store.ListActiveSchedules(ctx, userID, petID)
	if err != nil {
		return result, err
	}

	cached, _ := s.cache.Get(userID, petID)
	now := s.now()

	outstanding, err := Reconcile(schedules, cached, userID, petID, now)
	if err != nil {
		return result, err
	}

	goals := resolveGoals(schedules, now)
	counted, err := s.resolveCounted(ctx, userID, petID, now)
	if err != nil {
		return result, s.writeFailure("quick_log", 0, err, userID)
	}

	delta := DeltaFromBulk(outstanding.Medication, outstanding.Fluid, goals, counted)

	sessionOps := make([]store.Op, 0, len(outstanding.Medication)+len(outstanding.Fluid))
	for _, sess := range outstanding.Medication {
		sessionOps = append(sessionOps, store.UpsertMedicationSession(sess))
	}
	for _, sess := range outstanding.Fluid {
		sessionOps = append(sessionOps, store.UpsertFluidSession(sess))
	}
	rollupOps := s.rollupOps(userID, petID, now, delta)

	units := ChunkBulkOps(sessionOps, rollupOps)
	for i, unit := range units {
		if err := s.store.ExecUnit(ctx, unit); err != nil {
			return result, s.writeFailure("quick_log", i, err, userID)
		}
	}

	s.cache.PutAfterBulk(userID, petID, bulkCacheEntry(cached, outstanding))

	result.MedicationLogged = len(outstanding.Medication)
	result.FluidLogged = len(outstanding.Fluid)
	result.Chunks = len(units)

	s.tracker.TrackFeatureUsed("quick_log_all", map[string]any{
		"medication_logged": result.MedicationLogged,
		"fluid_logged":      result.FluidLogged,
	})
	s.logger.Info("quick-log completed",
		zap.String("user_id", userID),
		zap.String("pet_id", petID),
		zap.Int("medication_logged", result.MedicationLogged),
		zap.Int("fluid_logged", result.FluidLogged),
		zap.Int("chunks", result.Chunks),
	)
	return result, nil
}

// bulkCacheEntry folds the synthesized sessions into the pre-bulk snapshot to
// produce the wholesale replacement entry.
func bulkCacheEntry(before *model.CacheEntry, outstanding ReconcileResult) *model.CacheEntry {
	entry := &model.CacheEntry{}
	if before != nil {
		copied := *before
		entry = &copied
	}
	if entry.RecentMedicationTimes == nil {
		entry.RecentMedicationTimes = make(map[string][]time.Time)
	}
	if entry.CompletedMedicationTimes == nil {
		entry.CompletedMedicationTimes = make(map[string][]time.Time)
	}

	for _, sess := range outstanding.Medication {
		entry.MedicationSessionCount++
		entry.TotalMedicationDoses += sess.DosageGiven
		entry.RecentMedicationTimes[sess.MedicationName] = append(entry.RecentMedicationTimes[sess.MedicationName], sess.TakenAt)
		entry.CompletedMedicationTimes[sess.MedicationName] = append(entry.CompletedMedicationTimes[sess.MedicationName], sess.TakenAt)
	}
	for _, sess := range outstanding.Fluid {
		entry.FluidSessionCount++
		entry.TotalFluidVolumeML += sess.VolumeGivenML
	}
	return entry
}
