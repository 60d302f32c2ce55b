package geo

import "math"

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points.
// Used by the in-memory matrix provider and as a sanity bound in tests;
// real travel distances come from the road network provider.
func HaversineMeters(a, b Point) float64 {
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLa := (b.Lat - a.Lat) * math.Pi / 180
	dLn := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLa/2)*math.Sin(dLa/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLn/2)*math.Sin(dLn/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
