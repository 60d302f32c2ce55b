package pgroutes

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS routes (
  id BIGSERIAL PRIMARY KEY,
  vehicle_id BIGINT NOT NULL,
  driver_id BIGINT NOT NULL,
  depot_lat DOUBLE PRECISION NOT NULL,
  depot_lng DOUBLE PRECISION NOT NULL,
  start_lat DOUBLE PRECISION NULL,
  start_lng DOUBLE PRECISION NULL,
  end_lat DOUBLE PRECISION NULL,
  end_lng DOUBLE PRECISION NULL,
  planned_departure_at TIMESTAMPTZ NULL,
  encoded_path TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS route_stops (
  id BIGSERIAL PRIMARY KEY,
  route_id BIGINT NOT NULL REFERENCES routes(id) ON DELETE CASCADE,
  customer_id BIGINT NOT NULL,
  position INT NOT NULL,
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  arrive_between_start TIMESTAMPTZ NULL,
  arrive_between_end TIMESTAMPTZ NULL,
  priority TEXT NOT NULL DEFAULT 'normal',
  service_minutes INT NOT NULL DEFAULT 0,
  signature_required BOOLEAN NOT NULL DEFAULT FALSE,
  photo_required BOOLEAN NOT NULL DEFAULT FALSE,
  is_excluded BOOLEAN NOT NULL DEFAULT FALSE,
  exclusion_reason TEXT NULL,
  estimated_arrival TIMESTAMPTZ NULL,
  estimated_departure TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_route_stops_route_position ON route_stops(route_id, position)`,
		`
CREATE TABLE IF NOT EXISTS journeys (
  id BIGSERIAL PRIMARY KEY,
  route_id BIGINT NOT NULL REFERENCES routes(id),
  state TEXT NOT NULL,
  current_stop_index INT NOT NULL DEFAULT 0,
  plan_version BIGINT NOT NULL DEFAULT 1,
  cumulative_delay_minutes INT NOT NULL DEFAULT 0,
  start_odometer BIGINT NULL,
  end_odometer BIGINT NULL,
  start_fuel_pct DOUBLE PRECISION NULL,
  end_fuel_pct DOUBLE PRECISION NULL,
  vehicle_condition_note TEXT NULL,
  encoded_path TEXT NULL,
  started_at TIMESTAMPTZ NULL,
  finished_at TIMESTAMPTZ NULL,
  completed_at TIMESTAMPTZ NULL,
  cancelled_at TIMESTAMPTZ NULL,
  next_replan_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_journeys_state_next_replan ON journeys(state, next_replan_at)`,
		`
CREATE TABLE IF NOT EXISTS journey_stops (
  id BIGSERIAL PRIMARY KEY,
  journey_id BIGINT NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
  route_stop_id BIGINT NULL,
  customer_id BIGINT NOT NULL,
  order_index INT NOT NULL,
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  arrive_between_start TIMESTAMPTZ NULL,
  arrive_between_end TIMESTAMPTZ NULL,
  priority TEXT NOT NULL DEFAULT 'normal',
  service_minutes INT NOT NULL DEFAULT 0,
  signature_required BOOLEAN NOT NULL DEFAULT FALSE,
  photo_required BOOLEAN NOT NULL DEFAULT FALSE,
  state TEXT NOT NULL,
  estimated_arrival TIMESTAMPTZ NULL,
  estimated_departure TIMESTAMPTZ NULL,
  original_estimated_arrival TIMESTAMPTZ NULL,
  checked_in_at TIMESTAMPTZ NULL,
  checked_out_at TIMESTAMPTZ NULL,
  distance_from_prev_meters BIGINT NULL,
  new_delay_minutes INT NOT NULL DEFAULT 0,
  cumulative_delay_minutes INT NOT NULL DEFAULT 0,
  delay_category TEXT NULL,
  delay_reason TEXT NULL,
  failure_reason TEXT NULL,
  signature_ref TEXT NULL,
  photo_refs TEXT[] NULL,
  notes TEXT NULL,
  receiver_name TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_journey_stops_journey_order ON journey_stops(journey_id, order_index)`,
		// Append-only audit trail; rows are never updated or deleted.
		`
CREATE TABLE IF NOT EXISTS journey_status (
  id BIGSERIAL PRIMARY KEY,
  correlation_id TEXT NOT NULL,
  journey_id BIGINT NOT NULL REFERENCES journeys(id),
  stop_id BIGINT NULL,
  journey_state TEXT NOT NULL,
  stop_state TEXT NULL,
  lat DOUBLE PRECISION NULL,
  lng DOUBLE PRECISION NULL,
  proof_urls TEXT[] NULL,
  failure_reason TEXT NULL,
  recorded_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_journey_status_journey_recorded ON journey_status(journey_id, recorded_at)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
