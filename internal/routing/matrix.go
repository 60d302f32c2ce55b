// Package routing defines the contract to the external road-network
// provider. The matrix is a pure function of the input coordinates, so
// implementations may be wrapped with a cache.
package routing

import (
	"context"
	"math"

	"github.com/BearBump/RouteBox/internal/geo"
)

// Matrix holds pairwise travel costs for an ordered point set.
// Distances are meters, Durations are seconds. An unreachable pair is
// +Inf in both tables; that is a property of the road network, not a
// provider failure (failures surface as DependencyUnavailable errors).
type Matrix struct {
	Distances [][]float64
	Durations [][]float64
}

// Reachable reports whether a road connects points i and j.
func (m *Matrix) Reachable(i, j int) bool {
	return !math.IsInf(m.Durations[i][j], 1)
}

type Options struct {
	AvoidTolls bool
}

type Provider interface {
	// GetMatrix returns pairwise travel costs between all given points.
	GetMatrix(ctx context.Context, points []geo.Point, opts Options) (*Matrix, error)

	// GetPath returns the encoded polyline of the road path visiting the
	// points in the given order.
	GetPath(ctx context.Context, points []geo.Point, opts Options) (string, error)
}
