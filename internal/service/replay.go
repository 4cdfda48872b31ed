package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pawtrack/pawtrack-backend/pkg/model"
)

// QuickLogPayload is the queued form of a quick-log-all request.
type QuickLogPayload struct {
	UserID string `json:"user_id"`
	PetID  string `json:"pet_id"`
}

// Replay re-invokes the live write path for a queued operation. Create and
// update payloads are the JSON-encoded session; quick-log carries the owner
// pair. The replayed call runs the full pipeline (validation, duplicate
// check, matching, delta building) exactly as an interactive call would.
func (s *TreatmentService) Replay(ctx context.Context, op model.QueuedOperation) error {
	switch op.Kind {
	case model.OpCreateMedication:
		var sess model.MedicationSession
		if err := json.Unmarshal(op.Payload, &sess); err != nil {
			return fmt.Errorf("failed to decode queued medication session: %w", err)
		}
		_, err := s.LogMedicationSession(ctx, sess)
		return err

	case model.OpUpdateMedication:
		var sess model.MedicationSession
		if err := json.Unmarshal(op.Payload, &sess); err != nil {
			return fmt.Errorf("failed to decode queued medication session: %w", err)
		}
		_, err := s.UpdateMedicationSession(ctx, sess)
		return err

	case model.OpCreateFluid:
		var sess model.FluidSession
		if err := json.Unmarshal(op.Payload, &sess); err != nil {
			return fmt.Errorf("failed to decode queued fluid session: %w", err)
		}
		_, err := s.LogFluidSession(ctx, sess)
		return err

	case model.OpUpdateFluid:
		var sess model.FluidSession
		if err := json.Unmarshal(op.Payload, &sess); err != nil {
			return fmt.Errorf("failed to decode queued fluid session: %w", err)
		}
		_, err := s.UpdateFluidSession(ctx, sess)
		return err

	case model.OpQuickLogAll:
		var p QuickLogPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("failed to decode queued quick-log request: %w", err)
		}
		_, err := s.QuickLogAll(ctx, p.UserID, p.PetID)
		return err

	default:
		return fmt.Errorf("unknown queued operation kind %q", op.Kind)
	}
}
