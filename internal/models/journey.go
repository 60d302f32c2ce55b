package models

import "time"

type JourneyState string

const (
	JourneyPreparing  JourneyState = "PREPARING"
	JourneyInProgress JourneyState = "IN_PROGRESS"
	JourneyFinished   JourneyState = "FINISHED"
	JourneyCompleted  JourneyState = "COMPLETED"
	JourneyCancelled  JourneyState = "CANCELLED"
	JourneyArchived   JourneyState = "ARCHIVED"
)

// Terminal reports whether no further driver activity can happen.
func (s JourneyState) Terminal() bool {
	switch s {
	case JourneyCompleted, JourneyCancelled, JourneyArchived:
		return true
	case JourneyPreparing, JourneyInProgress, JourneyFinished:
		return false
	}
	return false
}

type StopState string

const (
	StopPending    StopState = "PENDING"
	StopInProgress StopState = "IN_PROGRESS"
	StopCompleted  StopState = "COMPLETED"
	StopFailed     StopState = "FAILED"
	StopSkipped    StopState = "SKIPPED"
)

// Terminal reports whether the stop needs no further visit.
func (s StopState) Terminal() bool {
	switch s {
	case StopCompleted, StopFailed, StopSkipped:
		return true
	case StopPending, StopInProgress:
		return false
	}
	return false
}

type DelayCategory string

const (
	DelayTraffic  DelayCategory = "traffic"
	DelayCustomer DelayCategory = "customer"
	DelayVehicle  DelayCategory = "vehicle"
	DelayWeather  DelayCategory = "weather"
	DelayLoading  DelayCategory = "loading"
	DelayOther    DelayCategory = "other"
)

func (c DelayCategory) Valid() bool {
	switch c {
	case DelayTraffic, DelayCustomer, DelayVehicle, DelayWeather, DelayLoading, DelayOther:
		return true
	}
	return false
}

// Journey is one execution run of a Route.
type Journey struct {
	ID      uint64
	RouteID uint64

	State JourneyState

	// Index into the ordered stop list of the first non-terminal stop.
	// Maintained only inside the per-journey critical section.
	CurrentStopIndex int

	// Bumped on every applied plan and every transition that moves
	// CurrentStopIndex; the optimistic check for reoptimization applies.
	PlanVersion int64

	CumulativeDelayMinutes int

	StartOdometer *int64
	EndOdometer   *int64
	StartFuelPct  *float64
	EndFuelPct    *float64

	VehicleConditionNote *string

	EncodedPath *string

	StartedAt   *time.Time
	FinishedAt  *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	// Next moment the delay watchdog may consider this journey again.
	NextReplanAt time.Time

	Stops []*JourneyStop

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CurrentStop returns the stop the driver should be working, or nil when
// every stop is terminal.
func (j *Journey) CurrentStop() *JourneyStop {
	if j.CurrentStopIndex < 0 || j.CurrentStopIndex >= len(j.Stops) {
		return nil
	}
	return j.Stops[j.CurrentStopIndex]
}

// FirstNonTerminalIndex recomputes where CurrentStopIndex must point.
// Returns len(Stops) when all stops are terminal.
func (j *Journey) FirstNonTerminalIndex() int {
	for i, st := range j.Stops {
		if !st.State.Terminal() {
			return i
		}
	}
	return len(j.Stops)
}

// InProgressStop returns the stop currently being serviced, if any.
func (j *Journey) InProgressStop() *JourneyStop {
	for _, st := range j.Stops {
		if st.State == StopInProgress {
			return st
		}
	}
	return nil
}

// JourneyStop is the per-stop execution record. RouteStopID is nil for stops
// appended mid-run.
type JourneyStop struct {
	ID          uint64
	JourneyID   uint64
	RouteStopID *uint64
	CustomerID  uint64

	OrderIndex int
	Lat        float64
	Lng        float64

	ArriveBetweenStart *time.Time
	ArriveBetweenEnd   *time.Time

	Priority       Priority
	ServiceMinutes int

	SignatureRequired bool
	PhotoRequired     bool

	State StopState

	EstimatedArrival         *time.Time
	EstimatedDeparture       *time.Time
	OriginalEstimatedArrival *time.Time

	CheckedInAt  *time.Time
	CheckedOutAt *time.Time

	DistanceFromPrevMeters *int64

	NewDelayMinutes        int
	CumulativeDelayMinutes int
	DelayCategory          *DelayCategory
	DelayReason            *string

	FailureReason *string

	SignatureRef *string
	PhotoRefs    []string
	Notes        *string
	ReceiverName *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Proof carries the proof-of-delivery payload submitted with a completion.
type Proof struct {
	SignatureRef *string
	PhotoRefs    []string
	Notes        *string
	ReceiverName *string
}

// JourneyStatus is the append-only audit event written for every transition
// that actually succeeded. Rows are never mutated or deleted.
type JourneyStatus struct {
	ID            uint64
	CorrelationID string
	JourneyID     uint64
	StopID        *uint64

	JourneyState JourneyState
	StopState    *StopState

	Lat *float64
	Lng *float64

	ProofURLs     []string
	FailureReason *string

	RecordedAt time.Time
}
