// Package watchdog sweeps in-progress journeys whose cumulative delay
// crossed the automatic replan threshold and replans them from the
// driver's last reported position. Claims are leased, so several
// watchdog instances can run against the same database.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/models"
)

type Repository interface {
	ClaimDelayedJourneys(ctx context.Context, now time.Time, minDelayMinutes, limit int, lease time.Duration) ([]*models.Journey, error)
}

type Replanner interface {
	Replan(ctx context.Context, journeyID uint64, origin *geo.Point) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Watchdog struct {
	repo      Repository
	replanner Replanner
	rl        RateLimiter

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	delayThresholdMin  int
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalReplanned      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, replanner Replanner, rl RateLimiter) *Watchdog {
	return &Watchdog{
		repo:               repo,
		replanner:          replanner,
		rl:                 rl,
		pollInterval:       30 * time.Second,
		batchSize:          50,
		concurrency:        5,
		lease:              2 * time.Minute,
		delayThresholdMin:  20,
		rateLimitPerMinute: 60,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (w *Watchdog) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, delayThresholdMin int, rlPerMin int64) *Watchdog {
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
	if batchSize > 0 {
		w.batchSize = batchSize
	}
	if concurrency > 0 {
		w.concurrency = concurrency
	}
	if lease > 0 {
		w.lease = lease
	}
	if delayThresholdMin > 0 {
		w.delayThresholdMin = delayThresholdMin
	}
	if rlPerMin > 0 {
		w.rateLimitPerMinute = rlPerMin
	}
	return w
}

// Trigger forces an immediate sweep (best-effort, non-blocking).
func (w *Watchdog) Trigger() {
	w.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalReplanned int64      `json:"totalReplanned"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (w *Watchdog) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalClaimed:   w.totalClaimed.Load(),
		TotalReplanned: w.totalReplanned.Load(),
		TotalErrors:    w.totalErrors.Load(),
		InFlight:       w.inFlight.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

func (w *Watchdog) Run(ctx context.Context) error {
	t := time.NewTicker(w.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.runOnce(ctx)
		case <-w.triggerCh:
			w.runOnce(ctx)
		}
	}
}

func (w *Watchdog) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	w.lastCycleUnixNano.Store(now.UnixNano())

	items, err := w.repo.ClaimDelayedJourneys(ctx, now, w.delayThresholdMin, w.batchSize, w.lease)
	if err != nil {
		slog.Error("claim delayed journeys", "error", err.Error())
		w.setLastError(err)
		return
	}
	w.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, j := range items {
		sem <- struct{}{}
		wg.Add(1)
		jCopy := j
		w.inFlight.Add(1)
		go func() {
			defer func() {
				w.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := w.processOne(ctx, jCopy); err != nil {
				w.totalErrors.Add(1)
				w.setLastError(err)
				slog.Error("replan journey", "journey_id", jCopy.ID, "error", err.Error())
				return
			}
			w.totalReplanned.Add(1)
		}()
	}
	wg.Wait()
}

func (w *Watchdog) processOne(ctx context.Context, j *models.Journey) error {
	now := time.Now().UTC()

	if w.rl != nil && w.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:replan:%s", now.Format("200601021504"))
		allowed, n, err := w.rl.Allow(ctx, minuteKey, w.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Keeps OSRM traffic bounded when many journeys are late at once;
			// the claim lease brings the journey back on the next cycle.
			slog.Warn("replan rate limit exceeded", "journey_id", j.ID, "count", n)
			return nil
		}
	}

	return w.replanner.Replan(ctx, j.ID, nil)
}

func (w *Watchdog) setLastError(err error) {
	w.lastErrorMu.Lock()
	w.lastError = err.Error()
	w.lastErrorMu.Unlock()
}
