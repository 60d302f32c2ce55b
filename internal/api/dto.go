package api

import (
	"time"

	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/optimizer"
)

type routeStopDTO struct {
	ID         uint64 `json:"id"`
	CustomerID uint64 `json:"customerId"`
	Position   int    `json:"position"`

	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`

	ArriveBetweenStart *time.Time `json:"arriveBetweenStart,omitempty"`
	ArriveBetweenEnd   *time.Time `json:"arriveBetweenEnd,omitempty"`

	Priority       models.Priority `json:"priority"`
	ServiceMinutes int             `json:"serviceMinutes"`

	SignatureRequired bool `json:"signatureRequired"`
	PhotoRequired     bool `json:"photoRequired"`

	IsExcluded      bool    `json:"isExcluded"`
	ExclusionReason *string `json:"exclusionReason,omitempty"`

	EstimatedArrival   *time.Time `json:"estimatedArrival,omitempty"`
	EstimatedDeparture *time.Time `json:"estimatedDeparture,omitempty"`
}

type routeDTO struct {
	ID        uint64 `json:"id"`
	VehicleID uint64 `json:"vehicleId"`
	DriverID  uint64 `json:"driverId"`

	DepotLat float64 `json:"depotLat"`
	DepotLng float64 `json:"depotLng"`

	PlannedDepartureAt *time.Time `json:"plannedDepartureAt,omitempty"`
	EncodedPath        *string    `json:"encodedPath,omitempty"`

	Stops []routeStopDTO `json:"stops"`
}

func toRouteDTO(r *models.Route) routeDTO {
	out := routeDTO{
		ID:                 r.ID,
		VehicleID:          r.VehicleID,
		DriverID:           r.DriverID,
		DepotLat:           r.DepotLat,
		DepotLng:           r.DepotLng,
		PlannedDepartureAt: r.PlannedDepartureAt,
		EncodedPath:        r.EncodedPath,
		Stops:              make([]routeStopDTO, 0, len(r.Stops)),
	}
	for _, st := range r.Stops {
		out.Stops = append(out.Stops, routeStopDTO{
			ID:                 st.ID,
			CustomerID:         st.CustomerID,
			Position:           st.Position,
			Lat:                st.Lat,
			Lng:                st.Lng,
			ArriveBetweenStart: st.ArriveBetweenStart,
			ArriveBetweenEnd:   st.ArriveBetweenEnd,
			Priority:           st.Priority,
			ServiceMinutes:     st.ServiceMinutes,
			SignatureRequired:  st.SignatureRequired,
			PhotoRequired:      st.PhotoRequired,
			IsExcluded:         st.IsExcluded,
			ExclusionReason:    st.ExclusionReason,
			EstimatedArrival:   st.EstimatedArrival,
			EstimatedDeparture: st.EstimatedDeparture,
		})
	}
	return out
}

type optimizeResultDTO struct {
	Route routeDTO `json:"route"`

	ExcludedStops []excludedStopDTO `json:"excludedStops"`

	TotalDistanceMeters  float64 `json:"totalDistanceMeters"`
	TotalDurationSeconds float64 `json:"totalDurationSeconds"`
}

type excludedStopDTO struct {
	StopID uint64 `json:"stopId"`
	Reason string `json:"reason"`
}

func toOptimizeResultDTO(r *models.Route, res *optimizer.Result) optimizeResultDTO {
	out := optimizeResultDTO{
		Route:                toRouteDTO(r),
		ExcludedStops:        make([]excludedStopDTO, 0, len(res.Excluded)),
		TotalDistanceMeters:  res.TotalDistanceMeters,
		TotalDurationSeconds: res.TotalDurationSeconds,
	}
	for _, ex := range res.Excluded {
		out.ExcludedStops = append(out.ExcludedStops, excludedStopDTO{StopID: ex.Key, Reason: ex.Reason})
	}
	return out
}

type journeyStopDTO struct {
	ID         uint64 `json:"id"`
	CustomerID uint64 `json:"customerId"`
	OrderIndex int    `json:"orderIndex"`

	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`

	State models.StopState `json:"state"`

	EstimatedArrival         *time.Time `json:"estimatedArrival,omitempty"`
	EstimatedDeparture       *time.Time `json:"estimatedDeparture,omitempty"`
	OriginalEstimatedArrival *time.Time `json:"originalEstimatedArrival,omitempty"`

	CheckedInAt  *time.Time `json:"checkedInAt,omitempty"`
	CheckedOutAt *time.Time `json:"checkedOutAt,omitempty"`

	NewDelayMinutes        int                   `json:"newDelayMinutes"`
	CumulativeDelayMinutes int                   `json:"cumulativeDelayMinutes"`
	DelayCategory          *models.DelayCategory `json:"delayCategory,omitempty"`
	DelayReason            *string               `json:"delayReason,omitempty"`

	FailureReason *string `json:"failureReason,omitempty"`

	SignatureRef *string  `json:"signatureRef,omitempty"`
	PhotoRefs    []string `json:"photoRefs,omitempty"`
	ReceiverName *string  `json:"receiverName,omitempty"`
}

type journeyDTO struct {
	ID      uint64 `json:"id"`
	RouteID uint64 `json:"routeId"`

	State            models.JourneyState `json:"state"`
	CurrentStopIndex int                 `json:"currentStopIndex"`
	PlanVersion      int64               `json:"planVersion"`

	CumulativeDelayMinutes int `json:"cumulativeDelayMinutes"`

	StartOdometer *int64   `json:"startOdometer,omitempty"`
	EndOdometer   *int64   `json:"endOdometer,omitempty"`
	StartFuelPct  *float64 `json:"startFuelPct,omitempty"`
	EndFuelPct    *float64 `json:"endFuelPct,omitempty"`

	VehicleConditionNote *string `json:"vehicleConditionNote,omitempty"`
	EncodedPath          *string `json:"encodedPath,omitempty"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	Stops []journeyStopDTO `json:"stops"`
}

func toJourneyDTO(j *models.Journey) journeyDTO {
	out := journeyDTO{
		ID:                     j.ID,
		RouteID:                j.RouteID,
		State:                  j.State,
		CurrentStopIndex:       j.CurrentStopIndex,
		PlanVersion:            j.PlanVersion,
		CumulativeDelayMinutes: j.CumulativeDelayMinutes,
		StartOdometer:          j.StartOdometer,
		EndOdometer:            j.EndOdometer,
		StartFuelPct:           j.StartFuelPct,
		EndFuelPct:             j.EndFuelPct,
		VehicleConditionNote:   j.VehicleConditionNote,
		EncodedPath:            j.EncodedPath,
		StartedAt:              j.StartedAt,
		FinishedAt:             j.FinishedAt,
		CompletedAt:            j.CompletedAt,
		CancelledAt:            j.CancelledAt,
		Stops:                  make([]journeyStopDTO, 0, len(j.Stops)),
	}
	for _, st := range j.Stops {
		out.Stops = append(out.Stops, journeyStopDTO{
			ID:                       st.ID,
			CustomerID:               st.CustomerID,
			OrderIndex:               st.OrderIndex,
			Lat:                      st.Lat,
			Lng:                      st.Lng,
			State:                    st.State,
			EstimatedArrival:         st.EstimatedArrival,
			EstimatedDeparture:       st.EstimatedDeparture,
			OriginalEstimatedArrival: st.OriginalEstimatedArrival,
			CheckedInAt:              st.CheckedInAt,
			CheckedOutAt:             st.CheckedOutAt,
			NewDelayMinutes:          st.NewDelayMinutes,
			CumulativeDelayMinutes:   st.CumulativeDelayMinutes,
			DelayCategory:            st.DelayCategory,
			DelayReason:              st.DelayReason,
			FailureReason:            st.FailureReason,
			SignatureRef:             st.SignatureRef,
			PhotoRefs:                st.PhotoRefs,
			ReceiverName:             st.ReceiverName,
		})
	}
	return out
}

type journeyStatusDTO struct {
	ID            uint64  `json:"id"`
	CorrelationID string  `json:"correlationId"`
	StopID        *uint64 `json:"stopId,omitempty"`

	JourneyState models.JourneyState `json:"journeyState"`
	StopState    *models.StopState   `json:"stopState,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	ProofURLs     []string `json:"proofUrls,omitempty"`
	FailureReason *string  `json:"failureReason,omitempty"`

	RecordedAt time.Time `json:"recordedAt"`
}

func toJourneyStatusDTOs(evs []*models.JourneyStatus) []journeyStatusDTO {
	out := make([]journeyStatusDTO, 0, len(evs))
	for _, ev := range evs {
		out = append(out, journeyStatusDTO{
			ID:            ev.ID,
			CorrelationID: ev.CorrelationID,
			StopID:        ev.StopID,
			JourneyState:  ev.JourneyState,
			StopState:     ev.StopState,
			Lat:           ev.Lat,
			Lng:           ev.Lng,
			ProofURLs:     ev.ProofURLs,
			FailureReason: ev.FailureReason,
			RecordedAt:    ev.RecordedAt,
		})
	}
	return out
}
