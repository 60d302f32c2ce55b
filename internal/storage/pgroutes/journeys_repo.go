package pgroutes

import (
	"context"
	"time"

	"github.com/BearBump/RouteBox/internal/faults"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// CreateJourney instantiates a journey from a route: every non-excluded
// route stop becomes a PENDING journey stop, in planning order. The
// optimizer's ETA is frozen into original_estimated_arrival so later
// replans cannot rewrite the delay baseline.
func (s *Storage) CreateJourney(ctx context.Context, routeID uint64) (*models.Journey, error) {
	route, err := s.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var journeyID uint64
	err = tx.QueryRow(ctx, `
INSERT INTO journeys (route_id, state, encoded_path, next_replan_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4, $4)
RETURNING id
`, routeID, models.JourneyPreparing, route.EncodedPath, now).Scan(&journeyID)
	if err != nil {
		return nil, errors.Wrap(err, "insert journey")
	}

	idx := 0
	for _, st := range route.Stops {
		if st.IsExcluded {
			continue
		}
		_, err := tx.Exec(ctx, `
INSERT INTO journey_stops (
  journey_id, route_stop_id, customer_id, order_index, lat, lng,
  arrive_between_start, arrive_between_end,
  priority, service_minutes, signature_required, photo_required,
  state, estimated_arrival, estimated_departure, original_estimated_arrival,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17)
`, journeyID, st.ID, st.CustomerID, idx, st.Lat, st.Lng,
			st.ArriveBetweenStart, st.ArriveBetweenEnd,
			st.Priority, st.ServiceMinutes, st.SignatureRequired, st.PhotoRequired,
			models.StopPending, st.EstimatedArrival, st.EstimatedDeparture, st.EstimatedArrival, now)
		if err != nil {
			return nil, errors.Wrap(err, "insert journey stop")
		}
		idx++
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetJourney(ctx, journeyID)
}

func (s *Storage) GetJourney(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	var j models.Journey
	err := s.db.QueryRow(ctx, `
SELECT
  id, route_id, state, current_stop_index, plan_version, cumulative_delay_minutes,
  start_odometer, end_odometer, start_fuel_pct, end_fuel_pct,
  vehicle_condition_note, encoded_path,
  started_at, finished_at, completed_at, cancelled_at,
  next_replan_at, created_at, updated_at
FROM journeys
WHERE id = $1
`, journeyID).Scan(
		&j.ID, &j.RouteID, &j.State, &j.CurrentStopIndex, &j.PlanVersion, &j.CumulativeDelayMinutes,
		&j.StartOdometer, &j.EndOdometer, &j.StartFuelPct, &j.EndFuelPct,
		&j.VehicleConditionNote, &j.EncodedPath,
		&j.StartedAt, &j.FinishedAt, &j.CompletedAt, &j.CancelledAt,
		&j.NextReplanAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, faults.New(faults.NotFound, "journey %d not found", journeyID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select journey")
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, journey_id, route_stop_id, customer_id, order_index, lat, lng,
  arrive_between_start, arrive_between_end,
  priority, service_minutes, signature_required, photo_required,
  state, estimated_arrival, estimated_departure, original_estimated_arrival,
  checked_in_at, checked_out_at, distance_from_prev_meters,
  new_delay_minutes, cumulative_delay_minutes, delay_category, delay_reason,
  failure_reason, signature_ref, photo_refs, notes, receiver_name,
  created_at, updated_at
FROM journey_stops
WHERE journey_id = $1
ORDER BY order_index ASC
`, journeyID)
	if err != nil {
		return nil, errors.Wrap(err, "select journey stops")
	}
	defer rows.Close()

	for rows.Next() {
		var st models.JourneyStop
		if err := rows.Scan(
			&st.ID, &st.JourneyID, &st.RouteStopID, &st.CustomerID, &st.OrderIndex, &st.Lat, &st.Lng,
			&st.ArriveBetweenStart, &st.ArriveBetweenEnd,
			&st.Priority, &st.ServiceMinutes, &st.SignatureRequired, &st.PhotoRequired,
			&st.State, &st.EstimatedArrival, &st.EstimatedDeparture, &st.OriginalEstimatedArrival,
			&st.CheckedInAt, &st.CheckedOutAt, &st.DistanceFromPrevMeters,
			&st.NewDelayMinutes, &st.CumulativeDelayMinutes, &st.DelayCategory, &st.DelayReason,
			&st.FailureReason, &st.SignatureRef, &st.PhotoRefs, &st.Notes, &st.ReceiverName,
			&st.CreatedAt, &st.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan journey stop")
		}
		j.Stops = append(j.Stops, &st)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return &j, nil
}

// TransitionUpdate is one state-machine step persisted atomically: the
// journey row, every touched stop row, an optional stop insert or delete,
// and the audit event — all or nothing.
type TransitionUpdate struct {
	Journey *models.Journey

	// plan_version the caller read before mutating; the update applies
	// only if the row still carries it.
	PrevVersion int64

	Stops []*models.JourneyStop

	InsertStop   *models.JourneyStop
	DeleteStopID uint64

	Audit *models.JourneyStatus
}

// ApplyJourneyTransition writes one transition. On a plan_version mismatch
// nothing is written and ConcurrentModification is returned.
func (s *Storage) ApplyJourneyTransition(ctx context.Context, upd TransitionUpdate) error {
	if upd.Journey == nil || upd.Audit == nil {
		return errors.New("transition update requires journey and audit")
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	j := upd.Journey
	tag, err := tx.Exec(ctx, `
UPDATE journeys SET
  state = $2,
  current_stop_index = $3,
  plan_version = $4,
  cumulative_delay_minutes = $5,
  start_odometer = $6,
  end_odometer = $7,
  start_fuel_pct = $8,
  end_fuel_pct = $9,
  vehicle_condition_note = $10,
  encoded_path = $11,
  started_at = $12,
  finished_at = $13,
  completed_at = $14,
  cancelled_at = $15,
  next_replan_at = $16,
  updated_at = $17
WHERE id = $1 AND plan_version = $18
`, j.ID, j.State, j.CurrentStopIndex, j.PlanVersion, j.CumulativeDelayMinutes,
		j.StartOdometer, j.EndOdometer, j.StartFuelPct, j.EndFuelPct,
		j.VehicleConditionNote, j.EncodedPath,
		j.StartedAt, j.FinishedAt, j.CompletedAt, j.CancelledAt,
		j.NextReplanAt, now, upd.PrevVersion)
	if err != nil {
		return errors.Wrap(err, "update journey")
	}
	if tag.RowsAffected() == 0 {
		return faults.New(faults.ConcurrentModification, "journey %d changed concurrently (expected version %d)", j.ID, upd.PrevVersion)
	}

	for _, st := range upd.Stops {
		_, err := tx.Exec(ctx, `
UPDATE journey_stops SET
  order_index = $2,
  state = $3,
  estimated_arrival = $4,
  estimated_departure = $5,
  checked_in_at = $6,
  checked_out_at = $7,
  distance_from_prev_meters = $8,
  new_delay_minutes = $9,
  cumulative_delay_minutes = $10,
  delay_category = $11,
  delay_reason = $12,
  failure_reason = $13,
  signature_ref = $14,
  photo_refs = $15,
  notes = $16,
  receiver_name = $17,
  updated_at = $18
WHERE id = $1 AND journey_id = $19
`, st.ID, st.OrderIndex, st.State,
			st.EstimatedArrival, st.EstimatedDeparture,
			st.CheckedInAt, st.CheckedOutAt, st.DistanceFromPrevMeters,
			st.NewDelayMinutes, st.CumulativeDelayMinutes, st.DelayCategory, st.DelayReason,
			st.FailureReason, st.SignatureRef, st.PhotoRefs, st.Notes, st.ReceiverName,
			now, j.ID)
		if err != nil {
			return errors.Wrap(err, "update journey stop")
		}
	}

	if upd.InsertStop != nil {
		st := upd.InsertStop
		err := tx.QueryRow(ctx, `
INSERT INTO journey_stops (
  journey_id, route_stop_id, customer_id, order_index, lat, lng,
  arrive_between_start, arrive_between_end,
  priority, service_minutes, signature_required, photo_required,
  state, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
RETURNING id
`, j.ID, st.RouteStopID, st.CustomerID, st.OrderIndex, st.Lat, st.Lng,
			st.ArriveBetweenStart, st.ArriveBetweenEnd,
			st.Priority, st.ServiceMinutes, st.SignatureRequired, st.PhotoRequired,
			st.State, now).Scan(&st.ID)
		if err != nil {
			return errors.Wrap(err, "insert journey stop")
		}
	}

	if upd.DeleteStopID != 0 {
		if _, err := tx.Exec(ctx, `
DELETE FROM journey_stops WHERE id = $1 AND journey_id = $2
`, upd.DeleteStopID, j.ID); err != nil {
			return errors.Wrap(err, "delete journey stop")
		}
	}

	a := upd.Audit
	if _, err := tx.Exec(ctx, `
INSERT INTO journey_status (
  correlation_id, journey_id, stop_id, journey_state, stop_state,
  lat, lng, proof_urls, failure_reason, recorded_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, a.CorrelationID, a.JourneyID, a.StopID, a.JourneyState, a.StopState,
		a.Lat, a.Lng, a.ProofURLs, a.FailureReason, a.RecordedAt); err != nil {
		return errors.Wrap(err, "insert journey status")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// ClaimDelayedJourneys picks in-progress journeys whose cumulative delay
// crossed the threshold and leases them so concurrent watchdogs do not
// replan the same journey twice. SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDelayedJourneys(ctx context.Context, now time.Time, minDelayMinutes, limit int, lease time.Duration) ([]*models.Journey, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT id, route_id, state, current_stop_index, plan_version, cumulative_delay_minutes, next_replan_at
FROM journeys
WHERE state = $1
  AND cumulative_delay_minutes >= $2
  AND next_replan_at <= $3
ORDER BY next_replan_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, models.JourneyInProgress, minDelayMinutes, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select delayed journeys")
	}
	defer rows.Close()

	var picked []*models.Journey
	for rows.Next() {
		var j models.Journey
		if err := rows.Scan(&j.ID, &j.RouteID, &j.State, &j.CurrentStopIndex, &j.PlanVersion, &j.CumulativeDelayMinutes, &j.NextReplanAt); err != nil {
			return nil, errors.Wrap(err, "scan delayed journey")
		}
		picked = append(picked, &j)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, j := range picked {
		if _, err := tx.Exec(ctx, `
UPDATE journeys SET next_replan_at = $2, updated_at = now() WHERE id = $1
`, j.ID, leaseUntil); err != nil {
			return nil, errors.Wrap(err, "lease journey")
		}
		j.NextReplanAt = leaseUntil
	}

	return picked, errors.Wrap(tx.Commit(ctx), "commit tx")
}
