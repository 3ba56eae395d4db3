package retention

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"movievault/internal/errs"
	"movievault/internal/models"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeDeleter struct {
	mu      sync.Mutex
	deleted []int64
	fail    map[int64]error
	panics  bool
}

func (d *fakeDeleter) DeleteMessage(_ context.Context, _ int64, messageID int64) error {
	if d.panics {
		panic("transport exploded")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[messageID]; err != nil {
		return err
	}
	d.deleted = append(d.deleted, messageID)
	return nil
}

type flakyTracker struct {
	*MemoryTracker
	failures atomic.Int32
	calls    atomic.Int32
}

func (t *flakyTracker) Snapshot(ctx context.Context) ([]models.TrackedMessage, error) {
	t.calls.Add(1)
	if t.failures.Load() > 0 {
		t.failures.Add(-1)
		return nil, errors.New("redis timeout")
	}
	return t.MemoryTracker.Snapshot(ctx)
}

type countingSweeper struct{ calls int }

func (c *countingSweeper) Sweep() int { c.calls++; return 2 }
func (c *countingSweeper) Prune() int { c.calls++; return 3 }

func track(t *testing.T, tr Tracker, id int64, age time.Duration) {
	t.Helper()
	require.NoError(t, tr.Track(context.Background(), models.TrackedMessage{
		ChatID: -100, MessageID: id, SentAt: baseTime.Add(-age),
	}))
}

func newTestScheduler(tr Tracker, d Deleter, opts Options) *Scheduler {
	s := NewScheduler(tr, d, opts)
	s.now = func() time.Time { return baseTime }
	return s
}

func TestSweepDeletesOnlyExpired(t *testing.T) {
	tr := NewMemoryTracker()
	track(t, tr, 1, 25*time.Hour)
	track(t, tr, 2, time.Hour)
	track(t, tr, 3, 48*time.Hour)
	d := &fakeDeleter{}
	sweeper := &countingSweeper{}

	s := newTestScheduler(tr, d, Options{Sessions: sweeper, Limiter: sweeper})
	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Scanned)
	require.Equal(t, 2, report.Deleted)
	require.Zero(t, report.Failed)
	require.Equal(t, 2, report.SessionsExpired)
	require.Equal(t, 3, report.WindowsPruned)
	require.ElementsMatch(t, []int64{1, 3}, d.deleted)

	remaining, _ := tr.Snapshot(context.Background())
	require.Len(t, remaining, 1)
	require.EqualValues(t, 2, remaining[0].MessageID)
}

func TestSweepKeepsFailedDeletions(t *testing.T) {
	tr := NewMemoryTracker()
	track(t, tr, 1, 25*time.Hour)
	track(t, tr, 2, 30*time.Hour)
	track(t, tr, 3, 26*time.Hour)
	d := &fakeDeleter{fail: map[int64]error{2: errors.New("forbidden")}}

	s := newTestScheduler(tr, d, Options{})
	report, err := s.Sweep(context.Background())
	require.NoError(t, err, "per-message failures do not fail the sweep")
	require.Equal(t, 2, report.Deleted)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, tr.Len())

	// The failed message is retried on the next pass.
	d.fail = nil
	report, err = s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)
	require.Zero(t, tr.Len())
}

func TestSweepDropsMessagesAlreadyGone(t *testing.T) {
	tr := NewMemoryTracker()
	track(t, tr, 1, 25*time.Hour)
	d := &fakeDeleter{fail: map[int64]error{1: errs.New(errs.CodeNotFound, "message 1")}}

	report, err := newTestScheduler(tr, d, Options{}).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)
	require.Zero(t, tr.Len())
}

func TestSweepSnapshotFailure(t *testing.T) {
	tr := &flakyTracker{MemoryTracker: NewMemoryTracker()}
	tr.failures.Store(1)

	_, err := newTestScheduler(tr, &fakeDeleter{}, Options{}).Sweep(context.Background())
	require.ErrorContains(t, err, "redis timeout")
}

func TestServeStopsOnCancel(t *testing.T) {
	tr := NewMemoryTracker()
	track(t, tr, 1, 25*time.Hour)
	d := &fakeDeleter{}
	s := newTestScheduler(tr, d, Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.True(t, s.Alive())

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	require.False(t, s.Alive())
}

func TestServeBacksOffAfterFailure(t *testing.T) {
	tr := &flakyTracker{MemoryTracker: NewMemoryTracker()}
	tr.failures.Store(2)
	track(t, tr, 7, 25*time.Hour)
	s := newTestScheduler(tr, &fakeDeleter{}, Options{Interval: time.Hour, ErrorBackoff: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx) }()

	require.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 3, tr.calls.Load(), "two failed attempts then one success")
}

func TestServeSurvivesPanics(t *testing.T) {
	tr := &flakyTracker{MemoryTracker: NewMemoryTracker()}
	track(t, tr, 1, 25*time.Hour)
	d := &fakeDeleter{panics: true}
	s := newTestScheduler(tr, d, Options{Interval: time.Hour, ErrorBackoff: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx) }()

	require.Eventually(t, func() bool { return tr.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, tr.Len())
}

func TestTrackStampsSendTime(t *testing.T) {
	tr := NewMemoryTracker()
	s := newTestScheduler(tr, &fakeDeleter{}, Options{})

	require.NoError(t, s.Track(context.Background(), -100, 55))
	snap, err := tr.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 1)
	require.Equal(t, baseTime, snap[0].SentAt)
}
