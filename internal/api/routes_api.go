package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/BearBump/RouteBox/internal/models"
)

type createRouteRequest struct {
	VehicleID uint64 `json:"vehicleId"`
	DriverID  uint64 `json:"driverId"`

	DepotLat float64 `json:"depotLat"`
	DepotLng float64 `json:"depotLng"`

	StartLat *float64 `json:"startLat,omitempty"`
	StartLng *float64 `json:"startLng,omitempty"`
	EndLat   *float64 `json:"endLat,omitempty"`
	EndLng   *float64 `json:"endLng,omitempty"`

	PlannedDepartureAt *time.Time `json:"plannedDepartureAt,omitempty"`

	Stops []createRouteStopRequest `json:"stops"`
}

type createRouteStopRequest struct {
	CustomerID uint64  `json:"customerId"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`

	ArriveBetweenStart *time.Time `json:"arriveBetweenStart,omitempty"`
	ArriveBetweenEnd   *time.Time `json:"arriveBetweenEnd,omitempty"`

	Priority       models.Priority `json:"priority,omitempty"`
	ServiceMinutes int             `json:"serviceMinutes"`

	SignatureRequired bool `json:"signatureRequired"`
	PhotoRequired     bool `json:"photoRequired"`
}

func (a *API) createRoute(w http.ResponseWriter, r *http.Request) {
	var req createRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	in := models.RouteCreateInput{
		VehicleID: req.VehicleID,
		DriverID:  req.DriverID,
		DepotLat:  req.DepotLat,
		DepotLng:  req.DepotLng,
		StartLat:  req.StartLat,
		StartLng:  req.StartLng,
		EndLat:    req.EndLat,
		EndLng:    req.EndLng,
	}
	for _, st := range req.Stops {
		in.Stops = append(in.Stops, models.RouteStopCreateInput{
			CustomerID:         st.CustomerID,
			Lat:                st.Lat,
			Lng:                st.Lng,
			ArriveBetweenStart: st.ArriveBetweenStart,
			ArriveBetweenEnd:   st.ArriveBetweenEnd,
			Priority:           st.Priority,
			ServiceMinutes:     st.ServiceMinutes,
			SignatureRequired:  st.SignatureRequired,
			PhotoRequired:      st.PhotoRequired,
		})
	}

	route, err := a.routes.Create(r.Context(), in, req.PlannedDepartureAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRouteDTO(route))
}

func (a *API) getRoute(w http.ResponseWriter, r *http.Request) {
	routeID, ok := pathID(r, "routeID")
	if !ok {
		writeBadRequest(w, "invalid route id")
		return
	}
	route, err := a.routes.Get(r.Context(), routeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRouteDTO(route))
}

type optimizeRouteRequest struct {
	Mode       models.OptimizationMode `json:"mode"`
	AvoidTolls bool                    `json:"avoidTolls"`
}

func (a *API) optimizeRoute(w http.ResponseWriter, r *http.Request) {
	routeID, ok := pathID(r, "routeID")
	if !ok {
		writeBadRequest(w, "invalid route id")
		return
	}
	var req optimizeRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	route, result, err := a.routes.Optimize(r.Context(), routeID, req.Mode, req.AvoidTolls)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOptimizeResultDTO(route, result))
}
