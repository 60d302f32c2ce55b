package pgroutes

import (
	"context"

	"github.com/BearBump/RouteBox/internal/models"
	"github.com/pkg/errors"
)

// ListJourneyStatus returns the audit trail for a journey, oldest first.
func (s *Storage) ListJourneyStatus(ctx context.Context, journeyID uint64, limit, offset int) ([]*models.JourneyStatus, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  id, correlation_id, journey_id, stop_id, journey_state, stop_state,
  lat, lng, proof_urls, failure_reason, recorded_at
FROM journey_status
WHERE journey_id = $1
ORDER BY recorded_at ASC, id ASC
LIMIT $2 OFFSET $3
`, journeyID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select journey status")
	}
	defer rows.Close()

	var out []*models.JourneyStatus
	for rows.Next() {
		var ev models.JourneyStatus
		if err := rows.Scan(
			&ev.ID, &ev.CorrelationID, &ev.JourneyID, &ev.StopID, &ev.JourneyState, &ev.StopState,
			&ev.Lat, &ev.Lng, &ev.ProofURLs, &ev.FailureReason, &ev.RecordedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan journey status")
		}
		out = append(out, &ev)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}
