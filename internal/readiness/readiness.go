// Package readiness coordinates the two startup preconditions (auth ready,
// profile ready) as an explicit state machine fed by messages, replacing
// ad-hoc listener callbacks. The warm-up action fires exactly once, when
// both inputs have arrived, in either order.
package readiness

import (
	"context"

	"go.uber.org/zap"
)

type signalKind int

const (
	authReady signalKind = iota
	profileReady
)

type signal struct {
	kind  signalKind
	value string
}

// Controller is the readiness state machine.
type Controller struct {
	signals chan signal
	warm    func(userID, petID string)
	logger  *zap.Logger
}

// New creates a Controller that invokes warm once both signals have arrived.
func New(warm func(userID, petID string), logger *zap.Logger) *Controller {
	return &Controller{
		signals: make(chan signal, 4),
		warm:    warm,
		logger:  logger,
	}
}

// Run processes signals until ctx is cancelled. Duplicate signals are
// ignored once the warm-up has fired.
func (c *Controller) Run(ctx context.Context) {
	var (
		userID, petID string
		haveAuth      bool
		haveProfile   bool
		fired         bool
	)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-c.signals:
			switch sig.kind {
			case authReady:
				userID, haveAuth = sig.value, true
			case profileReady:
				petID, haveProfile = sig.value, true
			}
			if haveAuth && haveProfile && !fired {
				fired = true
				c.logger.Info("readiness preconditions met, warming cache",
					zap.String("user_id", userID),
					zap.String("pet_id", petID),
				)
				c.warm(userID, petID)
			}
		}
	}
}

// AuthReady signals that authentication has completed for userID.
func (c *Controller) AuthReady(userID string) {
	c.signals <- signal{kind: authReady, value: userID}
}

// ProfileReady signals that the active pet profile petID has loaded.
func (c *Controller) ProfileReady(petID string) {
	c.signals <- signal{kind: profileReady, value: petID}
}
