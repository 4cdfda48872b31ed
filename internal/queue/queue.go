// Package queue is the durable offline operation queue: a bounded FIFO of
// pending writes persisted in the local key-value store under one fixed key,
// replayed through the live write path when connectivity returns.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pawtrack/pawtrack-backend/internal/kv"
	"github.com/pawtrack/pawtrack-backend/internal/treaterr"
	"github.com/pawtrack/pawtrack-backend/pkg/model"
	"go.uber.org/zap"
)

const queueKey = "offline_queue"

const (
	// SoftCap is the size at which enqueues start signalling a warning.
	SoftCap = 50
	// HardCap is the size at which enqueues are rejected outright.
	HardCap = 200
	// TTL after which entries are dropped silently on load, regardless of
	// status.
	TTL = 30 * 24 * time.Hour
	// MaxAttempts before an entry becomes terminally failed.
	MaxAttempts = 5
)

// backoffSchedule is the fixed per-attempt delay, capped at its last entry.
var backoffSchedule = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 30 * time.Second,
}

// BackoffDelay returns the delay before the given retry attempt (0-based).
func BackoffDelay(attempt int) time.Duration {
	if attempt >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attempt]
}

// Replayer replays one queued operation through the identical live write
// path. Replay is a deferred invocation, not a second code path.
type Replayer interface {
	Replay(ctx context.Context, op model.QueuedOperation) error
}

// KV is the subset of the local store the queue needs.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// Queue is a bounded, durable FIFO of deferred write operations. All methods
// are safe for concurrent use.
type Queue struct {
	kv     KV
	logger *zap.Logger
	now    func() time.Time
	sleep  func(time.Duration)

	// mu serializes every load-modify-save cycle on the shared queue key.
	// A replay pass holds it end to end, so a concurrent enqueue cannot be
	// overwritten by the pass's final save.
	mu sync.Mutex
}

// New creates a Queue. now and sleep are injectable for tests; pass nil for
// the real clock.
func New(store KV, logger *zap.Logger, now func() time.Time, sleep func(time.Duration)) *Queue {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Queue{kv: store, logger: logger, now: now, sleep: sleep}
}

// Enqueue appends an operation. It returns QueueFullError at the hard cap;
// past the soft cap the enqueue still succeeds and a QueueWarning is
// returned alongside a nil error.
func (q *Queue) Enqueue(kind model.OperationKind, payload []byte) (*treaterr.QueueWarning, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load()
	if err != nil {
		return nil, err
	}
	if len(ops) >= HardCap {
		return nil, &treaterr.QueueFullError{Capacity: HardCap}
	}

	ops = append(ops, model.QueuedOperation{
		ID:         uuid.New().String(),
		Kind:       kind,
		Payload:    payload,
		Status:     model.OpStatusPending,
		EnqueuedAt: q.now(),
	})
	if err := q.save(ops); err != nil {
		return nil, err
	}

	q.logger.Info("operation queued",
		zap.String("kind", string(kind)),
		zap.Int("queue_size", len(ops)),
	)

	if len(ops) >= SoftCap {
		return &treaterr.QueueWarning{Size: len(ops)}, nil
	}
	return nil, nil
}

// Pending returns the queue contents after TTL expiry, oldest first.
func (q *Queue) Pending() ([]model.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Drain replays every pending operation in FIFO order with exponential
// backoff. Operations that exhaust their attempts transition to failed and
// stay queued for manual retry; the pass reports them as a SyncError.
func (q *Queue) Drain(ctx context.Context, replayer Replayer) (int, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load()
	if err != nil {
		return 0, 0, err
	}

	var succeeded, failed int
	var remaining []model.QueuedOperation

	for _, op := range ops {
		if op.Status == model.OpStatusFailed {
			remaining = append(remaining, op)
			continue
		}

		op.Status = model.OpStatusSyncing
		if err := q.replayWithBackoff(ctx, replayer, &op); err != nil {
			msg := err.Error()
			op.Status = model.OpStatusFailed
			op.LastError = &msg
			remaining = append(remaining, op)
			failed++
			q.logger.Warn("queued operation failed permanently",
				zap.String("op_id", op.ID),
				zap.String("kind", string(op.Kind)),
				zap.Int("attempts", op.Attempts),
				zap.Error(err),
			)
			continue
		}
		succeeded++
	}

	if err := q.save(remaining); err != nil {
		return succeeded, failed, err
	}
	if failed > 0 {
		return succeeded, failed, &treaterr.SyncError{Failed: failed, Succeeded: succeeded}
	}
	return succeeded, failed, nil
}

// Retry replays one terminally-failed entry on explicit user request. It
// reports whether the entry succeeded and was removed.
func (q *Queue) Retry(ctx context.Context, opID string, replayer Replayer) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load()
	if err != nil {
		return false, err
	}

	for i := range ops {
		if ops[i].ID != opID {
			continue
		}
		op := ops[i]
		op.Attempts = 0
		op.Status = model.OpStatusSyncing
		if err := q.replayWithBackoff(ctx, replayer, &op); err != nil {
			msg := err.Error()
			op.Status = model.OpStatusFailed
			op.LastError = &msg
			ops[i] = op
			return false, q.save(ops)
		}
		return true, q.save(append(ops[:i], ops[i+1:]...))
	}
	return false, fmt.Errorf("queued operation %s not found", opID)
}

func (q *Queue) replayWithBackoff(ctx context.Context, replayer Replayer, op *model.QueuedOperation) error {
	var lastErr error
	for op.Attempts < MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if op.Attempts > 0 {
			q.sleep(BackoffDelay(op.Attempts - 1))
		}
		op.Attempts++
		lastErr = replayer.Replay(ctx, *op)
		if lastErr == nil {
			return nil
		}
		// Validation and duplicate rejections will not succeed on retry.
		var vErr *treaterr.ValidationError
		var dErr *treaterr.DuplicateConflictError
		if errors.As(lastErr, &vErr) || errors.As(lastErr, &dErr) {
			return lastErr
		}
	}
	return lastErr
}

// load reads the queue, silently dropping entries older than TTL. A missing
// key is an empty queue.
func (q *Queue) load() ([]model.QueuedOperation, error) {
	raw, err := q.kv.Get(queueKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load offline queue: %w", err)
	}

	var ops []model.QueuedOperation
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, fmt.Errorf("failed to decode offline queue: %w", err)
	}

	cutoff := q.now().Add(-TTL)
	var live []model.QueuedOperation
	for _, op := range ops {
		if op.EnqueuedAt.Before(cutoff) {
			continue
		}
		live = append(live, op)
	}
	return live, nil
}

func (q *Queue) save(ops []model.QueuedOperation) error {
	if ops == nil {
		ops = []model.QueuedOperation{}
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode offline queue: %w", err)
	}
	if err := q.kv.Set(queueKey, raw); err != nil {
		return fmt.Errorf("failed to persist offline queue: %w", err)
	}
	return nil
}
