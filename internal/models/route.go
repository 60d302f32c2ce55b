package models

import "time"

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the sort rank of a priority, lower is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	}
	return 1
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

type OptimizationMode string

const (
	OptimizeByDistance OptimizationMode = "distance"
	OptimizeByDuration OptimizationMode = "duration"
)

func (m OptimizationMode) Valid() bool {
	return m == OptimizeByDistance || m == OptimizeByDuration
}

// Route is the planning-time template: one vehicle, one driver, an ordered
// stop list. Once a Journey exists for it the route is read-only except via
// the explicit stop add/remove operations.
type Route struct {
	ID        uint64
	VehicleID uint64
	DriverID  uint64

	DepotLat float64
	DepotLng float64

	// Optional overrides for where the vehicle actually starts and ends.
	StartLat *float64
	StartLng *float64
	EndLat   *float64
	EndLng   *float64

	// When the vehicle is planned to leave the origin; ETAs are computed
	// from this moment. Nil means "plan from now".
	PlannedDepartureAt *time.Time

	// Cached encoded polyline of the last planned path.
	EncodedPath *string

	Stops []*RouteStop

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Origin returns the coordinate the route departs from (override or depot).
func (r *Route) Origin() (lat, lng float64) {
	if r.StartLat != nil && r.StartLng != nil {
		return *r.StartLat, *r.StartLng
	}
	return r.DepotLat, r.DepotLng
}

// End returns the fixed end coordinate, if one is set.
func (r *Route) End() (lat, lng float64, ok bool) {
	if r.EndLat != nil && r.EndLng != nil {
		return *r.EndLat, *r.EndLng, true
	}
	return 0, 0, false
}

type RouteStop struct {
	ID         uint64
	RouteID    uint64
	CustomerID uint64

	Position int
	Lat      float64
	Lng      float64

	// Optional time-window override for the visit.
	ArriveBetweenStart *time.Time
	ArriveBetweenEnd   *time.Time

	Priority       Priority
	ServiceMinutes int

	SignatureRequired bool
	PhotoRequired     bool

	// Set by the optimizer when the stop cannot be scheduled within its window.
	IsExcluded      bool
	ExclusionReason *string

	EstimatedArrival   *time.Time
	EstimatedDeparture *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type RouteCreateInput struct {
	VehicleID uint64
	DriverID  uint64
	DepotLat  float64
	DepotLng  float64
	StartLat  *float64
	StartLng  *float64
	EndLat    *float64
	EndLng    *float64
	Stops     []RouteStopCreateInput
}

type RouteStopCreateInput struct {
	CustomerID         uint64
	Lat                float64
	Lng                float64
	ArriveBetweenStart *time.Time
	ArriveBetweenEnd   *time.Time
	Priority           Priority
	ServiceMinutes     int
	SignatureRequired  bool
	PhotoRequired      bool
}
