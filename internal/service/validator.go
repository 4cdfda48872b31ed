package service

import (
	"github.com/pawtrack/pawtrack-backend/pkg/model"
)

// SessionValidator is the hook for extra, deployment-specific validation on
// top of the engine's structural checks. It is a required dependency with a
// pass-through default, so the write path carries no nil checks.
type SessionValidator interface {
	ValidateMedication(s model.MedicationSession) error
	ValidateFluid(s model.FluidSession) error
}

// PassthroughValidator accepts every session.
type PassthroughValidator struct{}

func (PassthroughValidator) ValidateMedication(model.MedicationSession) error { return nil }
func (PassthroughValidator) ValidateFluid(model.FluidSession) error           { return nil }
