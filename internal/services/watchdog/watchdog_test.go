package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/RouteBox/internal/faults"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/models"
)

type fakeRepo struct {
	journeys []*models.Journey
	err      error
	calls    int
}

func (f *fakeRepo) ClaimDelayedJourneys(ctx context.Context, now time.Time, minDelayMinutes, limit int, lease time.Duration) ([]*models.Journey, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := f.journeys
	f.journeys = nil
	return out, nil
}

type fakeReplanner struct {
	mu  sync.Mutex
	ids []uint64
	err error
}

func (r *fakeReplanner) Replan(ctx context.Context, journeyID uint64, origin *geo.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, journeyID)
	return r.err
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, r.count, r.err
}

func TestWatchdog_runOnce_ReplansClaimed(t *testing.T) {
	repo := &fakeRepo{journeys: []*models.Journey{
		{ID: 1, State: models.JourneyInProgress, CumulativeDelayMinutes: 25},
		{ID: 2, State: models.JourneyInProgress, CumulativeDelayMinutes: 40},
	}}
	rp := &fakeReplanner{}
	w := New(repo, rp, fakeRL{allowed: true})

	w.runOnce(context.Background())

	require.ElementsMatch(t, []uint64{1, 2}, rp.ids)
	st := w.Stats()
	require.Equal(t, int64(2), st.TotalClaimed)
	require.Equal(t, int64(2), st.TotalReplanned)
	require.Equal(t, int64(0), st.TotalErrors)
}

func TestWatchdog_runOnce_ReplanErrorCounted(t *testing.T) {
	repo := &fakeRepo{journeys: []*models.Journey{{ID: 7}}}
	rp := &fakeReplanner{err: faults.New(faults.ConcurrentModification, "journey moved on")}
	w := New(repo, rp, nil)

	w.runOnce(context.Background())

	st := w.Stats()
	require.Equal(t, int64(1), st.TotalErrors)
	require.Equal(t, int64(0), st.TotalReplanned)
	require.NotEmpty(t, st.LastError)
}

func TestWatchdog_processOne_RateLimited(t *testing.T) {
	rp := &fakeReplanner{}
	w := New(&fakeRepo{}, rp, fakeRL{allowed: false, count: 99})

	require.NoError(t, w.processOne(context.Background(), &models.Journey{ID: 3}))
	require.Empty(t, rp.ids)
}

func TestWatchdog_runOnce_ClaimError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	w := New(repo, &fakeReplanner{}, nil)

	w.runOnce(context.Background())
	require.Equal(t, "db down", w.Stats().LastError)
}

func TestWatchdog_WithSettings(t *testing.T) {
	w := New(&fakeRepo{}, &fakeReplanner{}, nil).
		WithSettings(5*time.Second, 7, 9, 11*time.Second, 30, 13)
	require.Equal(t, 5*time.Second, w.pollInterval)
	require.Equal(t, 7, w.batchSize)
	require.Equal(t, 9, w.concurrency)
	require.Equal(t, 11*time.Second, w.lease)
	require.Equal(t, 30, w.delayThresholdMin)
	require.Equal(t, int64(13), w.rateLimitPerMinute)
}

func TestWatchdog_Trigger(t *testing.T) {
	repo := &fakeRepo{journeys: []*models.Journey{{ID: 5}}}
	rp := &fakeReplanner{}
	w := New(repo, rp, nil).WithSettings(time.Hour, 0, 0, 0, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.Trigger()
	require.Eventually(t, func() bool {
		rp.mu.Lock()
		defer rp.mu.Unlock()
		return len(rp.ids) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
