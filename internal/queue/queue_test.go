package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pawtrack/pawtrack-backend/internal/kv"
	"github.com/pawtrack/pawtrack-backend/internal/treaterr"
	"github.com/pawtrack/pawtrack-backend/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeKV struct {
	data map[string][]byte
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(key string) ([]byte, error) {
	raw, ok := f.data[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return raw, nil
}

func (f *fakeKV) Set(key string, value []byte) error {
	f.data[key] = value
	return nil
}

// scriptedReplayer fails the first failures calls, then succeeds.
type scriptedReplayer struct {
	failures int
	err      error
	calls    int
}

func (r *scriptedReplayer) Replay(ctx context.Context, op model.QueuedOperation) error {
	r.calls++
	if r.calls <= r.failures {
		return r.err
	}
	return nil
}

var queueNow = time.Date(2026, 8, 27, 10, 0, 0, 0, time.Local)

func newTestQueue(store *fakeKV) (*Queue, *[]time.Duration) {
	var slept []time.Duration
	q := New(store, zap.NewNop(),
		func() time.Time { return queueNow },
		func(d time.Duration) { slept = append(slept, d) },
	)
	return q, &slept
}

func seedQueue(t *testing.T, store *fakeKV, ops []model.QueuedOperation) {
	t.Helper()
	raw, err := json.Marshal(ops)
	require.NoError(t, err)
	store.data["offline_queue"] = raw
}

func TestQueue_EnqueueAndPending(t *testing.T) {
	q, _ := newTestQueue(newFakeKV())

	warning, err := q.Enqueue(model.OpCreateFluid, []byte(`{"volume":100}`))
	require.NoError(t, err)
	assert.Nil(t, warning)

	ops, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, model.OpCreateFluid, ops[0].Kind)
	assert.Equal(t, model.OpStatusPending, ops[0].Status)
	assert.NotEmpty(t, ops[0].ID)
}

func TestQueue_SoftCapWarns(t *testing.T) {
	q, _ := newTestQueue(newFakeKV())

	for i := 0; i < SoftCap-1; i++ {
		warning, err := q.Enqueue(model.OpCreateFluid, nil)
		require.NoError(t, err)
		assert.Nil(t, warning)
	}

	warning, err := q.Enqueue(model.OpCreateFluid, nil)
	require.NoError(t, err)
	require.NotNil(t, warning)
	assert.Equal(t, SoftCap, warning.Size)
}

func TestQueue_HardCapRejects(t *testing.T) {
	store := newFakeKV()
	q, _ := newTestQueue(store)

	full := make([]model.QueuedOperation, HardCap)
	for i := range full {
		full[i] = model.QueuedOperation{ID: "op", Status: model.OpStatusPending, EnqueuedAt: queueNow}
	}
	seedQueue(t, store, full)

	_, err := q.Enqueue(model.OpCreateFluid, nil)
	var fErr *treaterr.QueueFullError
	require.ErrorAs(t, err, &fErr)
	assert.Equal(t, HardCap, fErr.Capacity)
}

func TestQueue_TTLExpiryDropsSilently(t *testing.T) {
	store := newFakeKV()
	q, _ := newTestQueue(store)

	seedQueue(t, store, []model.QueuedOperation{
		{ID: "ancient", Status: model.OpStatusPending, EnqueuedAt: queueNow.Add(-TTL - time.Hour)},
		{ID: "fresh", Status: model.OpStatusPending, EnqueuedAt: queueNow.Add(-time.Hour)},
	})

	ops, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "fresh", ops[0].ID)
}

func TestQueue_DrainSuccessEmptiesQueue(t *testing.T) {
	q, _ := newTestQueue(newFakeKV())
	_, err := q.Enqueue(model.OpCreateFluid, nil)
	require.NoError(t, err)
	_, err = q.Enqueue(model.OpCreateMedication, nil)
	require.NoError(t, err)

	replayer := &scriptedReplayer{}
	succeeded, failed, err := q.Drain(context.Background(), replayer)
	require.NoError(t, err)
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 2, replayer.calls)

	ops, err := q.Pending()
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestQueue_DrainRetriesWithBackoff(t *testing.T) {
	q, slept := newTestQueue(newFakeKV())
	_, err := q.Enqueue(model.OpCreateFluid, nil)
	require.NoError(t, err)

	replayer := &scriptedReplayer{failures: 2, err: errors.New("connection refused")}
	succeeded, failed, err := q.Drain(context.Background(), replayer)
	require.NoError(t, err)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 3, replayer.calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *slept)
}

func TestQueue_DrainExhaustedAttemptsKeepsFailedEntry(t *testing.T) {
	q, slept := newTestQueue(newFakeKV())
	_, err := q.Enqueue(model.OpCreateFluid, nil)
	require.NoError(t, err)

	replayer := &scriptedReplayer{failures: MaxAttempts + 1, err: errors.New("connection refused")}
	succeeded, failed, err := q.Drain(context.Background(), replayer)
	assert.Equal(t, 0, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, MaxAttempts, replayer.calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, *slept)

	var sErr *treaterr.SyncError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, 1, sErr.Failed)

	ops, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, model.OpStatusFailed, ops[0].Status)
	require.NotNil(t, ops[0].LastError)
}

func TestQueue_DrainSkipsAlreadyFailed(t *testing.T) {
	store := newFakeKV()
	q, _ := newTestQueue(store)

	seedQueue(t, store, []model.QueuedOperation{
		{ID: "dead", Status: model.OpStatusFailed, EnqueuedAt: queueNow},
	})

	replayer := &scriptedReplayer{}
	succeeded, failed, err := q.Drain(context.Background(), replayer)
	require.NoError(t, err)
	assert.Zero(t, succeeded)
	assert.Zero(t, failed)
	assert.Zero(t, replayer.calls)

	ops, err := q.Pending()
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestQueue_DrainAbortsRetriesOnValidationError(t *testing.T) {
	q, slept := newTestQueue(newFakeKV())
	_, err := q.Enqueue(model.OpCreateFluid, nil)
	require.NoError(t, err)

	replayer := &scriptedReplayer{
		failures: MaxAttempts,
		err:      &treaterr.ValidationError{Field: "volume_given_ml", Reason: "out of range"},
	}
	_, failed, err := q.Drain(context.Background(), replayer)
	assert.Equal(t, 1, failed)
	assert.Error(t, err)
	// No point retrying a rejection that is deterministic.
	assert.Equal(t, 1, replayer.calls)
	assert.Empty(t, *slept)
}

func TestQueue_RetryResetsAttemptsAndRemovesOnSuccess(t *testing.T) {
	store := newFakeKV()
	q, _ := newTestQueue(store)

	msg := "connection refused"
	seedQueue(t, store, []model.QueuedOperation{
		{ID: "dead", Status: model.OpStatusFailed, Attempts: MaxAttempts, LastError: &msg, EnqueuedAt: queueNow},
	})

	replayer := &scriptedReplayer{}
	ok, err := q.Retry(context.Background(), "dead", replayer)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, replayer.calls)

	ops, err := q.Pending()
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestQueue_RetryUnknownID(t *testing.T) {
	q, _ := newTestQueue(newFakeKV())

	_, err := q.Retry(context.Background(), "ghost", &scriptedReplayer{})
	assert.Error(t, err)
}

func TestQueue_ConcurrentEnqueuesAllSurvive(t *testing.T) {
	q, _ := newTestQueue(newFakeKV())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Enqueue(model.OpCreateFluid, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ops, err := q.Pending()
	require.NoError(t, err)
	assert.Len(t, ops, 20)
}
