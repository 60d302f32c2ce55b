// Package positions keeps the latest reported driver position per journey.
// Positions are advisory: a missing or stale entry only means replanning
// falls back to the current stop's coordinates.
package positions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/RouteBox/internal/cache"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/pkg/errors"
)

type Store struct {
	cache cache.BytesCache
	ttl   time.Duration
}

func New(c cache.BytesCache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{cache: c, ttl: ttl}
}

type entry struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (s *Store) Set(ctx context.Context, journeyID uint64, p geo.Point, recordedAt time.Time) error {
	b, err := json.Marshal(entry{Lat: p.Lat, Lng: p.Lng, RecordedAt: recordedAt})
	if err != nil {
		return errors.Wrap(err, "marshal position")
	}
	return s.cache.Set(ctx, key(journeyID), b, s.ttl)
}

func (s *Store) Latest(ctx context.Context, journeyID uint64) (geo.Point, bool, error) {
	b, ok, err := s.cache.Get(ctx, key(journeyID))
	if err != nil || !ok {
		return geo.Point{}, false, err
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		return geo.Point{}, false, nil
	}
	return geo.Point{Lat: e.Lat, Lng: e.Lng}, true, nil
}

func key(journeyID uint64) string {
	return fmt.Sprintf("journey:%d:position", journeyID)
}
