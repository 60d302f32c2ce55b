package matrixcache

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/BearBump/RouteBox/internal/cache/rediscache"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/routing"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	matrixCalls int
	pathCalls   int
	matrix      *routing.Matrix
}

func (p *countingProvider) GetMatrix(ctx context.Context, points []geo.Point, opts routing.Options) (*routing.Matrix, error) {
	p.matrixCalls++
	return p.matrix, nil
}

func (p *countingProvider) GetPath(ctx context.Context, points []geo.Point, opts routing.Options) (string, error) {
	p.pathCalls++
	return "encoded", nil
}

func twoPoints() []geo.Point {
	return []geo.Point{{Lat: 41.0, Lng: 29.0}, {Lat: 41.1, Lng: 29.1}}
}

func TestGetMatrix_SecondCallHitsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	inner := &countingProvider{matrix: &routing.Matrix{
		Distances: [][]float64{{0, 100}, {100, 0}},
		Durations: [][]float64{{0, 60}, {60, 0}},
	}}
	p := New(inner, rediscache.New(mr.Addr()), time.Minute)

	ctx := context.Background()
	m1, err := p.GetMatrix(ctx, twoPoints(), routing.Options{})
	require.NoError(t, err)
	m2, err := p.GetMatrix(ctx, twoPoints(), routing.Options{})
	require.NoError(t, err)

	require.Equal(t, 1, inner.matrixCalls)
	require.Equal(t, m1.Durations, m2.Durations)
	require.Equal(t, m1.Distances, m2.Distances)
}

func TestGetMatrix_OptionsChangeKey(t *testing.T) {
	mr := miniredis.RunT(t)
	inner := &countingProvider{matrix: &routing.Matrix{
		Distances: [][]float64{{0, 1}, {1, 0}},
		Durations: [][]float64{{0, 1}, {1, 0}},
	}}
	p := New(inner, rediscache.New(mr.Addr()), time.Minute)

	ctx := context.Background()
	_, err := p.GetMatrix(ctx, twoPoints(), routing.Options{})
	require.NoError(t, err)
	_, err = p.GetMatrix(ctx, twoPoints(), routing.Options{AvoidTolls: true})
	require.NoError(t, err)

	require.Equal(t, 2, inner.matrixCalls)
}

func TestGetMatrix_UnreachablePairsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	inner := &countingProvider{matrix: &routing.Matrix{
		Distances: [][]float64{{0, math.Inf(1)}, {math.Inf(1), 0}},
		Durations: [][]float64{{0, math.Inf(1)}, {math.Inf(1), 0}},
	}}
	p := New(inner, rediscache.New(mr.Addr()), time.Minute)

	ctx := context.Background()
	_, err := p.GetMatrix(ctx, twoPoints(), routing.Options{})
	require.NoError(t, err)
	m, err := p.GetMatrix(ctx, twoPoints(), routing.Options{})
	require.NoError(t, err)

	require.Equal(t, 2, inner.matrixCalls)
	require.True(t, math.IsInf(m.Durations[0][1], 1))
}

func TestGetPath_Cached(t *testing.T) {
	mr := miniredis.RunT(t)
	inner := &countingProvider{}
	p := New(inner, rediscache.New(mr.Addr()), time.Minute)

	ctx := context.Background()
	path1, err := p.GetPath(ctx, twoPoints(), routing.Options{})
	require.NoError(t, err)
	path2, err := p.GetPath(ctx, twoPoints(), routing.Options{})
	require.NoError(t, err)

	require.Equal(t, "encoded", path1)
	require.Equal(t, path1, path2)
	require.Equal(t, 1, inner.pathCalls)
}
