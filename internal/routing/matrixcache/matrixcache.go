// Package matrixcache wraps a routing.Provider with a byte cache. The
// matrix is a pure function of the input coordinates, so a cache hit is
// always as good as a provider call. Caching is best-effort: cache errors
// fall through to the provider.
package matrixcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/RouteBox/internal/cache"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/routing"
)

type Provider struct {
	next  routing.Provider
	cache cache.BytesCache
	ttl   time.Duration
}

func New(next routing.Provider, c cache.BytesCache, ttl time.Duration) *Provider {
	return &Provider{next: next, cache: c, ttl: ttl}
}

type cachedMatrix struct {
	Distances [][]float64 `json:"distances"`
	Durations [][]float64 `json:"durations"`
}

func (p *Provider) GetMatrix(ctx context.Context, points []geo.Point, opts routing.Options) (*routing.Matrix, error) {
	key := matrixKey(points, opts)

	if p.cache != nil && p.ttl > 0 {
		if b, ok, err := p.cache.Get(ctx, key); err == nil && ok {
			var cm cachedMatrix
			if json.Unmarshal(b, &cm) == nil && len(cm.Durations) == len(points) {
				return &routing.Matrix{Distances: cm.Distances, Durations: cm.Durations}, nil
			}
		}
	}

	m, err := p.next.GetMatrix(ctx, points, opts)
	if err != nil {
		return nil, err
	}

	if p.cache != nil && p.ttl > 0 {
		// Inf does not survive JSON; only cache fully reachable matrices.
		if allFinite(m.Durations) && allFinite(m.Distances) {
			b, _ := json.Marshal(cachedMatrix{Distances: m.Distances, Durations: m.Durations})
			_ = p.cache.Set(ctx, key, b, p.ttl)
		}
	}
	return m, nil
}

func (p *Provider) GetPath(ctx context.Context, points []geo.Point, opts routing.Options) (string, error) {
	key := pathKey(points, opts)

	if p.cache != nil && p.ttl > 0 {
		if b, ok, err := p.cache.Get(ctx, key); err == nil && ok {
			return string(b), nil
		}
	}

	path, err := p.next.GetPath(ctx, points, opts)
	if err != nil {
		return "", err
	}

	if p.cache != nil && p.ttl > 0 && path != "" {
		_ = p.cache.Set(ctx, key, []byte(path), p.ttl)
	}
	return path, nil
}

func matrixKey(points []geo.Point, opts routing.Options) string {
	return "matrix:" + digest(points, opts)
}

func pathKey(points []geo.Point, opts routing.Options) string {
	return "path:" + digest(points, opts)
}

func digest(points []geo.Point, opts routing.Options) string {
	var b strings.Builder
	for _, p := range points {
		b.WriteString(strconv.FormatFloat(p.Lat, 'f', 6, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p.Lng, 'f', 6, 64))
		b.WriteByte(';')
	}
	fmt.Fprintf(&b, "tolls=%t", opts.AvoidTolls)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

func allFinite(rows [][]float64) bool {
	for _, row := range rows {
		for _, v := range row {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				return false
			}
		}
	}
	return true
}
