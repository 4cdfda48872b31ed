package service

import (
	"time"

	"github.com/pawtrack/pawtrack-backend/pkg/model"
)

// DuplicateWindow is the default collision window for medication sessions.
const DuplicateWindow = 15 * time.Minute

// FindDuplicate scans recent sessions for one with the same medication name
// (case-sensitive) within the window of the candidate's timestamp, inclusive,
// and returns the first match. It performs no I/O: callers supply a bounded,
// already-fetched candidate set. Fluid sessions are never checked:
// partial or repeated fluid sessions per day are clinically valid. A miss always
// means "proceed"; only a hit may block.
func FindDuplicate(candidate model.MedicationSession, recent []model.MedicationSession, window time.Duration) *model.MedicationSession {
	for i := range recent {
		existing := &recent[i]
		if existing.ID == candidate.ID {
			continue
		}
		if existing.MedicationName != candidate.MedicationName {
			continue
		}
		diff := candidate.TakenAt.Sub(existing.TakenAt)
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			return existing
		}
	}
	return nil
}
