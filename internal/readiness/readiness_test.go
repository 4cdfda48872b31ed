package readiness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type warmCall struct {
	userID, petID string
}

func TestController_FiresOnceWhenBothSignalsArrive(t *testing.T) {
	tests := []struct {
		name  string
		order func(c *Controller)
	}{
		{"auth then profile", func(c *Controller) {
			c.AuthReady("user-1")
			c.ProfileReady("pet-1")
		}},
		{"profile then auth", func(c *Controller) {
			c.ProfileReady("pet-1")
			c.AuthReady("user-1")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := make(chan warmCall, 4)
			c := New(func(userID, petID string) {
				calls <- warmCall{userID: userID, petID: petID}
			}, zap.NewNop())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go c.Run(ctx)

			tt.order(c)

			select {
			case call := <-calls:
				assert.Equal(t, "user-1", call.userID)
				assert.Equal(t, "pet-1", call.petID)
			case <-time.After(time.Second):
				t.Fatal("warm-up never fired")
			}
		})
	}
}

func TestController_DuplicateSignalsDoNotRefire(t *testing.T) {
	calls := make(chan warmCall, 4)
	c := New(func(userID, petID string) {
		calls <- warmCall{userID: userID, petID: petID}
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.AuthReady("user-1")
	c.ProfileReady("pet-1")
	c.AuthReady("user-1")
	c.ProfileReady("pet-1")

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("warm-up never fired")
	}

	select {
	case <-calls:
		t.Fatal("warm-up fired more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestController_SingleSignalDoesNotFire(t *testing.T) {
	calls := make(chan warmCall, 4)
	c := New(func(userID, petID string) {
		calls <- warmCall{userID: userID, petID: petID}
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.AuthReady("user-1")

	select {
	case <-calls:
		t.Fatal("warm-up fired with only one precondition met")
	case <-time.After(50 * time.Millisecond):
	}

	require.NotNil(t, c)
}
