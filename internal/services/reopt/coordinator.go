// Package reopt replans the pending tail of a running journey. The plan
// is computed without holding the journey lock; applying it re-validates
// the journey's plan_version so a plan raced by any transition is
// discarded instead of clobbering newer state.
package reopt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BearBump/RouteBox/internal/broker/messages"
	"github.com/BearBump/RouteBox/internal/faults"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/journeylock"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/optimizer"
	"github.com/BearBump/RouteBox/internal/routing"
	"github.com/BearBump/RouteBox/internal/storage/pgroutes"
)

type Repository interface {
	GetJourney(ctx context.Context, journeyID uint64) (*models.Journey, error)
	GetRoute(ctx context.Context, routeID uint64) (*models.Route, error)
	ApplyJourneyTransition(ctx context.Context, upd pgroutes.TransitionUpdate) error
}

type Positions interface {
	Latest(ctx context.Context, journeyID uint64) (geo.Point, bool, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Config struct {
	EventsTopic string

	// Provider and solver share this budget per replan.
	SolveTimeout time.Duration

	// Successful replans push next_replan_at this far out so the watchdog
	// does not thrash a journey that stays delayed.
	Cooldown time.Duration

	TieTolerance     float64
	ExactSearchLimit int
}

type Coordinator struct {
	repo      Repository
	provider  routing.Provider
	positions Positions
	locks     *journeylock.Registry
	producer  Producer
	log       *slog.Logger
	cfg       Config

	now func() time.Time
}

func New(repo Repository, provider routing.Provider, positions Positions, locks *journeylock.Registry, producer Producer, log *slog.Logger, cfg Config) *Coordinator {
	if cfg.SolveTimeout <= 0 {
		cfg.SolveTimeout = 30 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	return &Coordinator{
		repo:      repo,
		provider:  provider,
		positions: positions,
		locks:     locks,
		producer:  producer,
		log:       log,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Replan recomputes order and ETAs for the pending stops of an in-progress
// journey. A nil origin falls back to the driver's last reported position,
// then to the stop being serviced, then to the route origin. Stops the
// solver cannot schedule keep their old ETAs at the tail of the order.
func (c *Coordinator) Replan(ctx context.Context, journeyID uint64, origin *geo.Point) error {
	snapshot, err := c.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return err
	}
	if snapshot.State != models.JourneyInProgress {
		return faults.New(faults.InvalidTransition, "cannot reoptimize journey in state %s", snapshot.State)
	}

	var pending []*models.JourneyStop
	for _, st := range snapshot.Stops {
		if st.State == models.StopPending {
			pending = append(pending, st)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	route, err := c.repo.GetRoute(ctx, snapshot.RouteID)
	if err != nil {
		return err
	}

	from, err := c.resolveOrigin(ctx, snapshot, route, origin)
	if err != nil {
		return err
	}

	solveCtx, cancel := context.WithTimeout(ctx, c.cfg.SolveTimeout)
	defer cancel()

	points := make([]geo.Point, 0, len(pending)+2)
	points = append(points, from)
	stops := make([]optimizer.Stop, 0, len(pending))
	for i, st := range pending {
		points = append(points, geo.Point{Lat: st.Lat, Lng: st.Lng})
		stops = append(stops, optimizer.Stop{
			Key:         st.ID,
			MatrixIndex: i + 1,
			WindowStart: st.ArriveBetweenStart,
			WindowEnd:   st.ArriveBetweenEnd,
			Priority:    st.Priority,
			Service:     time.Duration(st.ServiceMinutes) * time.Minute,
		})
	}
	endIndex := -1
	if lat, lng, ok := route.End(); ok {
		endIndex = len(points)
		points = append(points, geo.Point{Lat: lat, Lng: lng})
	}

	matrix, err := c.provider.GetMatrix(solveCtx, points, routing.Options{})
	if err != nil {
		return err
	}

	now := c.now()
	result, err := optimizer.Solve(matrix, stops, optimizer.Options{
		Mode:             models.OptimizeByDuration,
		DepartAt:         now,
		EndIndex:         endIndex,
		TieTolerance:     c.cfg.TieTolerance,
		ExactSearchLimit: c.cfg.ExactSearchLimit,
	})
	if err != nil {
		return err
	}

	var encodedPath *string
	if len(result.Order) > 0 {
		ordered := make([]geo.Point, 0, len(result.Order)+2)
		ordered = append(ordered, from)
		for _, sc := range result.Order {
			ordered = append(ordered, points[sc.MatrixIndex])
		}
		if endIndex >= 0 {
			ordered = append(ordered, points[endIndex])
		}
		if path, err := c.provider.GetPath(solveCtx, ordered, routing.Options{}); err == nil {
			encodedPath = &path
		} else {
			c.log.Warn("path fetch failed", slog.Uint64("journey_id", journeyID), slog.Any("error", err))
		}
	}

	release := c.locks.Acquire(journeyID)
	defer release()

	return c.apply(ctx, journeyID, snapshot.PlanVersion, result, encodedPath, now)
}

func (c *Coordinator) resolveOrigin(ctx context.Context, j *models.Journey, route *models.Route, origin *geo.Point) (geo.Point, error) {
	if origin != nil {
		return *origin, nil
	}
	if c.positions != nil {
		if p, ok, err := c.positions.Latest(ctx, j.ID); err == nil && ok {
			return p, nil
		}
	}
	if cur := j.InProgressStop(); cur != nil {
		return geo.Point{Lat: cur.Lat, Lng: cur.Lng}, nil
	}
	lat, lng := route.Origin()
	return geo.Point{Lat: lat, Lng: lng}, nil
}

// apply writes the computed plan, provided the journey did not move on
// while the plan was being computed.
func (c *Coordinator) apply(ctx context.Context, journeyID uint64, prevVersion int64, result *optimizer.Result, encodedPath *string, now time.Time) error {
	j, err := c.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return err
	}
	if j.State != models.JourneyInProgress {
		return faults.New(faults.InvalidTransition, "cannot reoptimize journey in state %s", j.State)
	}
	if j.PlanVersion != prevVersion {
		return faults.New(faults.ConcurrentModification,
			"journey %d moved on during replan (version %d, expected %d)", journeyID, j.PlanVersion, prevVersion)
	}

	byID := make(map[uint64]*models.JourneyStop, len(j.Stops))
	for _, st := range j.Stops {
		byID[st.ID] = st
	}

	// non-pending stops keep the head of the order as-is
	idx := 0
	touched := make([]*models.JourneyStop, 0, len(j.Stops))
	for _, st := range j.Stops {
		if st.State != models.StopPending {
			st.OrderIndex = idx
			idx++
			touched = append(touched, st)
		}
	}

	for _, sc := range result.Order {
		st, ok := byID[sc.Key]
		if !ok {
			return faults.New(faults.ConcurrentModification, "stop %d vanished during replan", sc.Key)
		}
		eta, etd := sc.ETA, sc.ETD
		dist := int64(sc.LegDistanceMeters)
		st.OrderIndex = idx
		st.EstimatedArrival = &eta
		st.EstimatedDeparture = &etd
		st.DistanceFromPrevMeters = &dist
		idx++
		touched = append(touched, st)
	}

	// unschedulable stops go to the tail, old ETAs untouched
	for _, ex := range result.Excluded {
		st, ok := byID[ex.Key]
		if !ok {
			return faults.New(faults.ConcurrentModification, "stop %d vanished during replan", ex.Key)
		}
		st.OrderIndex = idx
		idx++
		touched = append(touched, st)
		c.log.Warn("stop left unscheduled by replan",
			slog.Uint64("journey_id", journeyID),
			slog.Uint64("stop_id", ex.Key),
			slog.String("reason", ex.Reason))
	}

	sortStops(j)
	j.CurrentStopIndex = j.FirstNonTerminalIndex()
	if encodedPath != nil {
		j.EncodedPath = encodedPath
	}
	j.NextReplanAt = now.Add(c.cfg.Cooldown)
	j.PlanVersion++

	err = c.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prevVersion,
		Stops:       touched,
		Audit: &models.JourneyStatus{
			CorrelationID: uuid.NewString(),
			JourneyID:     j.ID,
			JourneyState:  j.State,
			RecordedAt:    now,
		},
	})
	if err != nil {
		return err
	}

	if c.producer != nil {
		ev := messages.JourneyEvent{Type: messages.JourneyReoptimized, JourneyID: j.ID, OccurredAt: now}
		if b, err := json.Marshal(ev); err == nil {
			if err := c.producer.Publish(ctx, c.cfg.EventsTopic, []byte(fmt.Sprintf("%d", j.ID)), b); err != nil {
				c.log.Warn("publish reoptimized event", slog.Uint64("journey_id", j.ID), slog.Any("error", err))
			}
		}
	}
	return nil
}

func sortStops(j *models.Journey) {
	stops := make([]*models.JourneyStop, len(j.Stops))
	for _, st := range j.Stops {
		stops[st.OrderIndex] = st
	}
	j.Stops = stops
}
