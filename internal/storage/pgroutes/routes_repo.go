package pgroutes

import (
	"context"
	"time"

	"github.com/BearBump/RouteBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/RouteBox/internal/faults"
)

func (s *Storage) CreateRoute(ctx context.Context, in models.RouteCreateInput, plannedDepartureAt *time.Time) (*models.Route, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var routeID uint64
	err = tx.QueryRow(ctx, `
INSERT INTO routes (
  vehicle_id, driver_id, depot_lat, depot_lng,
  start_lat, start_lng, end_lat, end_lng,
  planned_departure_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
RETURNING id
`, in.VehicleID, in.DriverID, in.DepotLat, in.DepotLng,
		in.StartLat, in.StartLng, in.EndLat, in.EndLng,
		plannedDepartureAt, now).Scan(&routeID)
	if err != nil {
		return nil, errors.Wrap(err, "insert route")
	}

	for i, st := range in.Stops {
		_, err := tx.Exec(ctx, `
INSERT INTO route_stops (
  route_id, customer_id, position, lat, lng,
  arrive_between_start, arrive_between_end,
  priority, service_minutes, signature_required, photo_required,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
`, routeID, st.CustomerID, i, st.Lat, st.Lng,
			st.ArriveBetweenStart, st.ArriveBetweenEnd,
			st.Priority, st.ServiceMinutes, st.SignatureRequired, st.PhotoRequired, now)
		if err != nil {
			return nil, errors.Wrap(err, "insert route stop")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetRoute(ctx, routeID)
}

func (s *Storage) GetRoute(ctx context.Context, routeID uint64) (*models.Route, error) {
	var r models.Route
	var plannedAt *time.Time
	var encodedPath *string
	err := s.db.QueryRow(ctx, `
SELECT
  id, vehicle_id, driver_id, depot_lat, depot_lng,
  start_lat, start_lng, end_lat, end_lng,
  planned_departure_at, encoded_path, created_at, updated_at
FROM routes
WHERE id = $1
`, routeID).Scan(
		&r.ID, &r.VehicleID, &r.DriverID, &r.DepotLat, &r.DepotLng,
		&r.StartLat, &r.StartLng, &r.EndLat, &r.EndLng,
		&plannedAt, &encodedPath, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, faults.New(faults.NotFound, "route %d not found", routeID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select route")
	}
	r.PlannedDepartureAt = plannedAt
	r.EncodedPath = encodedPath

	rows, err := s.db.Query(ctx, `
SELECT
  id, route_id, customer_id, position, lat, lng,
  arrive_between_start, arrive_between_end,
  priority, service_minutes, signature_required, photo_required,
  is_excluded, exclusion_reason, estimated_arrival, estimated_departure,
  created_at, updated_at
FROM route_stops
WHERE route_id = $1
ORDER BY position ASC
`, routeID)
	if err != nil {
		return nil, errors.Wrap(err, "select route stops")
	}
	defer rows.Close()

	for rows.Next() {
		var st models.RouteStop
		if err := rows.Scan(
			&st.ID, &st.RouteID, &st.CustomerID, &st.Position, &st.Lat, &st.Lng,
			&st.ArriveBetweenStart, &st.ArriveBetweenEnd,
			&st.Priority, &st.ServiceMinutes, &st.SignatureRequired, &st.PhotoRequired,
			&st.IsExcluded, &st.ExclusionReason, &st.EstimatedArrival, &st.EstimatedDeparture,
			&st.CreatedAt, &st.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan route stop")
		}
		r.Stops = append(r.Stops, &st)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return &r, nil
}

// RouteHasActiveJourney reports whether a journey that is not cancelled or
// archived exists for the route; such a route is read-only for planning.
func (s *Storage) RouteHasActiveJourney(ctx context.Context, routeID uint64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM journeys
  WHERE route_id = $1 AND state NOT IN ($2, $3)
)
`, routeID, models.JourneyCancelled, models.JourneyArchived).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "select active journey")
	}
	return exists, nil
}

type RouteStopPlacement struct {
	StopID             uint64
	Position           int
	EstimatedArrival   time.Time
	EstimatedDeparture time.Time
}

type RouteStopExclusion struct {
	StopID uint64
	Reason string
}

type RouteOptimizationUpdate struct {
	RouteID     uint64
	Ordered     []RouteStopPlacement
	Excluded    []RouteStopExclusion
	EncodedPath *string
}

// ApplyRouteOptimization persists a solver result atomically: positions and
// ETAs for the scheduled stops, exclusion flags for the rest.
func (s *Storage) ApplyRouteOptimization(ctx context.Context, upd RouteOptimizationUpdate) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, p := range upd.Ordered {
		_, err := tx.Exec(ctx, `
UPDATE route_stops SET
  position = $2,
  estimated_arrival = $3,
  estimated_departure = $4,
  is_excluded = FALSE,
  exclusion_reason = NULL,
  updated_at = $5
WHERE id = $1
`, p.StopID, p.Position, p.EstimatedArrival, p.EstimatedDeparture, now)
		if err != nil {
			return errors.Wrap(err, "update ordered stop")
		}
	}

	tail := len(upd.Ordered)
	for i, e := range upd.Excluded {
		_, err := tx.Exec(ctx, `
UPDATE route_stops SET
  position = $2,
  estimated_arrival = NULL,
  estimated_departure = NULL,
  is_excluded = TRUE,
  exclusion_reason = $3,
  updated_at = $4
WHERE id = $1
`, e.StopID, tail+i, e.Reason, now)
		if err != nil {
			return errors.Wrap(err, "update excluded stop")
		}
	}

	if _, err := tx.Exec(ctx, `
UPDATE routes SET encoded_path = $2, updated_at = $3 WHERE id = $1
`, upd.RouteID, upd.EncodedPath, now); err != nil {
		return errors.Wrap(err, "update route")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}
