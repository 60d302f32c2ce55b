package routes

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/RouteBox/internal/faults"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/optimizer"
	"github.com/BearBump/RouteBox/internal/routing"
	"github.com/BearBump/RouteBox/internal/storage/pgroutes"
)

type Repository interface {
	CreateRoute(ctx context.Context, in models.RouteCreateInput, plannedDepartureAt *time.Time) (*models.Route, error)
	GetRoute(ctx context.Context, routeID uint64) (*models.Route, error)
	RouteHasActiveJourney(ctx context.Context, routeID uint64) (bool, error)
	ApplyRouteOptimization(ctx context.Context, upd pgroutes.RouteOptimizationUpdate) error
}

type Config struct {
	SolveTimeout     time.Duration
	TieTolerance     float64
	ExactSearchLimit int
}

type Service struct {
	repo     Repository
	provider routing.Provider
	log      *slog.Logger
	cfg      Config

	now func() time.Time
}

func New(repo Repository, provider routing.Provider, log *slog.Logger, cfg Config) *Service {
	if cfg.SolveTimeout <= 0 {
		cfg.SolveTimeout = 30 * time.Second
	}
	return &Service{
		repo:     repo,
		provider: provider,
		log:      log,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, in models.RouteCreateInput, plannedDepartureAt *time.Time) (*models.Route, error) {
	if len(in.Stops) == 0 {
		return nil, faults.New(faults.InfeasibleInput, "route needs at least one stop")
	}
	for i, st := range in.Stops {
		if st.ServiceMinutes < 0 {
			return nil, faults.New(faults.InfeasibleInput, "stop %d: service time must not be negative", i)
		}
		if st.Priority == "" {
			in.Stops[i].Priority = models.PriorityNormal
		} else if !st.Priority.Valid() {
			return nil, faults.New(faults.InfeasibleInput, "stop %d: unknown priority %q", i, st.Priority)
		}
		if st.ArriveBetweenStart != nil && st.ArriveBetweenEnd != nil && st.ArriveBetweenEnd.Before(*st.ArriveBetweenStart) {
			return nil, faults.New(faults.InfeasibleInput, "stop %d: time window ends before it starts", i)
		}
	}
	return s.repo.CreateRoute(ctx, in, plannedDepartureAt)
}

func (s *Service) Get(ctx context.Context, routeID uint64) (*models.Route, error) {
	return s.repo.GetRoute(ctx, routeID)
}

// Optimize sequences a route's stops. The route must not be executing:
// once a journey exists the plan belongs to the reoptimization path.
// On any failure the stored order stays as it was.
func (s *Service) Optimize(ctx context.Context, routeID uint64, mode models.OptimizationMode, avoidTolls bool) (*models.Route, *optimizer.Result, error) {
	if !mode.Valid() {
		mode = models.OptimizeByDuration
	}

	route, err := s.repo.GetRoute(ctx, routeID)
	if err != nil {
		return nil, nil, err
	}
	active, err := s.repo.RouteHasActiveJourney(ctx, routeID)
	if err != nil {
		return nil, nil, err
	}
	if active {
		return nil, nil, faults.New(faults.InvalidTransition, "route %d has an active journey; use reoptimize", routeID)
	}
	if len(route.Stops) == 0 {
		return route, &optimizer.Result{Order: []optimizer.Scheduled{}, Excluded: []optimizer.Excluded{}}, nil
	}

	departAt := s.now()
	if route.PlannedDepartureAt != nil {
		departAt = *route.PlannedDepartureAt
	}

	originLat, originLng := route.Origin()
	points := make([]geo.Point, 0, len(route.Stops)+2)
	points = append(points, geo.Point{Lat: originLat, Lng: originLng})

	stops := make([]optimizer.Stop, 0, len(route.Stops))
	for i, st := range route.Stops {
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

	solveCtx, cancel := context.WithTimeout(ctx, s.cfg.SolveTimeout)
	defer cancel()

	provOpts := routing.Options{AvoidTolls: avoidTolls}
	matrix, err := s.provider.GetMatrix(solveCtx, points, provOpts)
	if err != nil {
		return nil, nil, err
	}

	result, err := optimizer.Solve(matrix, stops, optimizer.Options{
		Mode:             mode,
		DepartAt:         departAt,
		EndIndex:         endIndex,
		TieTolerance:     s.cfg.TieTolerance,
		ExactSearchLimit: s.cfg.ExactSearchLimit,
	})
	if err != nil {
		return nil, nil, err
	}

	var encodedPath *string
	if len(result.Order) > 0 {
		ordered := make([]geo.Point, 0, len(result.Order)+2)
		ordered = append(ordered, points[0])
		for _, sc := range result.Order {
			ordered = append(ordered, points[sc.MatrixIndex])
		}
		if endIndex >= 0 {
			ordered = append(ordered, points[endIndex])
		}
		if path, err := s.provider.GetPath(solveCtx, ordered, provOpts); err == nil {
			encodedPath = &path
		} else {
			s.log.Warn("path fetch failed", slog.Uint64("route_id", routeID), slog.Any("error", err))
		}
	}

	upd := pgroutes.RouteOptimizationUpdate{RouteID: routeID, EncodedPath: encodedPath}
	for i, sc := range result.Order {
		upd.Ordered = append(upd.Ordered, pgroutes.RouteStopPlacement{
			StopID:             sc.Key,
			Position:           i,
			EstimatedArrival:   sc.ETA,
			EstimatedDeparture: sc.ETD,
		})
	}
	for _, ex := range result.Excluded {
		upd.Excluded = append(upd.Excluded, pgroutes.RouteStopExclusion{StopID: ex.Key, Reason: ex.Reason})
	}
	if err := s.repo.ApplyRouteOptimization(ctx, upd); err != nil {
		return nil, nil, err
	}

	route, err = s.repo.GetRoute(ctx, routeID)
	if err != nil {
		return nil, nil, err
	}
	return route, result, nil
}
