package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/shardcoord/types"
)

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *outcomeRecorder) record(_ string, o Outcome, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *outcomeRecorder) snapshot() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Outcome(nil), r.outcomes...)
}

func fastConfig() Config {
	return Config{
		Workers:     1,
		QueueSize:   4,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		Seed:        7,
	}
}

func TestQueue_RunsTask(t *testing.T) {
	rec := &outcomeRecorder{}
	q := New(fastConfig(), WithOutcomeFunc(rec.record))

	var ran atomic.Int32
	require.NoError(t, q.Submit(t.Context(), Task{Name: "ok", Do: func(context.Context) error {
		ran.Add(1)
		return nil
	}}))

	require.NoError(t, q.Close(t.Context()))
	require.Equal(t, int32(1), ran.Load())
	require.Equal(t, []Outcome{OutcomeSucceeded}, rec.snapshot())
}

func TestQueue_RetriesUntilSuccess(t *testing.T) {
	rec := &outcomeRecorder{}
	q := New(fastConfig(), WithOutcomeFunc(rec.record))

	var calls atomic.Int32
	require.NoError(t, q.Submit(t.Context(), Task{Name: "flaky", Do: func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}}))

	require.NoError(t, q.Close(t.Context()))
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []Outcome{OutcomeRetrying, OutcomeRetrying, OutcomeSucceeded}, rec.snapshot())
}

func TestQueue_CapsAttempts(t *testing.T) {
	rec := &outcomeRecorder{}
	q := New(fastConfig(), WithOutcomeFunc(rec.record))

	var calls atomic.Int32
	require.NoError(t, q.Submit(t.Context(), Task{Name: "broken", Do: func(context.Context) error {
		calls.Add(1)
		return errors.New("still failing")
	}}))

	require.NoError(t, q.Close(t.Context()))
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []Outcome{OutcomeRetrying, OutcomeRetrying, OutcomeFailed}, rec.snapshot())
}

func TestQueue_PermanentErrorStops(t *testing.T) {
	rec := &outcomeRecorder{}
	q := New(fastConfig(), WithOutcomeFunc(rec.record))

	var calls atomic.Int32
	require.NoError(t, q.Submit(t.Context(), Task{Name: "permanent", Do: func(context.Context) error {
		calls.Add(1)
		return Permanent(errors.New("bad request"))
	}}))

	require.NoError(t, q.Close(t.Context()))
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, []Outcome{OutcomeFailed}, rec.snapshot())
}

func TestQueue_SubmitAfterClose(t *testing.T) {
	q := New(fastConfig())
	require.NoError(t, q.Close(t.Context()))
	require.NoError(t, q.Close(t.Context()))

	err := q.Submit(t.Context(), Task{Name: "late", Do: func(context.Context) error { return nil }})
	require.ErrorIs(t, err, types.ErrQueueClosed)
}

func TestQueue_SubmitBlocksWhenFull(t *testing.T) {
	cfg := fastConfig()
	cfg.QueueSize = 1
	q := New(cfg)

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := Task{Name: "blocking", Do: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	require.NoError(t, q.Submit(t.Context(), blocking))
	<-started

	noop := Task{Name: "noop", Do: func(context.Context) error { return nil }}
	require.NoError(t, q.Submit(t.Context(), noop))
	require.Equal(t, 1, q.Len())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Submit(ctx, noop), context.DeadlineExceeded)

	close(release)
	require.NoError(t, q.Close(t.Context()))
}

func TestQueue_CloseTimeoutCancelsRetries(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 100
	cfg.BaseBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	rec := &outcomeRecorder{}
	q := New(cfg, WithOutcomeFunc(rec.record))

	require.NoError(t, q.Submit(t.Context(), Task{Name: "stuck", Do: func(context.Context) error {
		return errors.New("unavailable")
	}}))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
	require.Equal(t, []Outcome{OutcomeRetrying, OutcomeCanceled}, rec.snapshot())
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "succeeded", OutcomeSucceeded.String())
	require.Equal(t, "retry", OutcomeRetrying.String())
	require.Equal(t, "failed", OutcomeFailed.String())
	require.Equal(t, "canceled", OutcomeCanceled.String())
	require.Equal(t, "unknown", Outcome(42).String())
}

func TestPermanent(t *testing.T) {
	require.NoError(t, Permanent(nil))

	base := errors.New("boom")
	err := Permanent(base)
	require.True(t, IsPermanent(err))
	require.ErrorIs(t, err, base)
	require.False(t, IsPermanent(base))
}
