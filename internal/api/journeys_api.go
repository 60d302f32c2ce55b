package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/services/journeys"
)

type createJourneyRequest struct {
	RouteID uint64 `json:"routeId"`
}

func (a *API) createJourney(w http.ResponseWriter, r *http.Request) {
	var req createJourneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RouteID == 0 {
		writeBadRequest(w, "routeId is required")
		return
	}
	j, err := a.journeys.Create(r.Context(), req.RouteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJourneyDTO(j))
}

func (a *API) getJourney(w http.ResponseWriter, r *http.Request) {
	journeyID, ok := pathID(r, "journeyID")
	if !ok {
		writeBadRequest(w, "invalid journey id")
		return
	}
	j, err := a.journeys.Get(r.Context(), journeyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

func (a *API) getJourneyStatus(w http.ResponseWriter, r *http.Request) {
	journeyID, ok := pathID(r, "journeyID")
	if !ok {
		writeBadRequest(w, "invalid journey id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	evs, err := a.journeys.Status(r.Context(), journeyID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyStatusDTOs(evs))
}

type startJourneyRequest struct {
	Odometer *int64   `json:"odometer,omitempty"`
	FuelPct  *float64 `json:"fuelPct,omitempty"`
}

func (a *API) startJourney(w http.ResponseWriter, r *http.Request) {
	journeyID, ok := pathID(r, "journeyID")
	if !ok {
		writeBadRequest(w, "invalid journey id")
		return
	}
	var req startJourneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	j, err := a.journeys.Start(r.Context(), journeyID, journeys.StartDetails{
		Odometer: req.Odometer,
		FuelPct:  req.FuelPct,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

type checkInRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (a *API) checkIn(w http.ResponseWriter, r *http.Request) {
	journeyID, stopID, ok := stopPath(r)
	if !ok {
		writeBadRequest(w, "invalid journey or stop id")
		return
	}
	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	j, err := a.journeys.CheckIn(r.Context(), journeyID, stopID, geo.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

type completeStopRequest struct {
	SignatureRef *string  `json:"signatureRef,omitempty"`
	PhotoRefs    []string `json:"photoRefs,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
	ReceiverName *string  `json:"receiverName,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

func (a *API) completeStop(w http.ResponseWriter, r *http.Request) {
	journeyID, stopID, ok := stopPath(r)
	if !ok {
		writeBadRequest(w, "invalid journey or stop id")
		return
	}
	var req completeStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	var at *geo.Point
	if req.Lat != nil && req.Lng != nil {
		at = &geo.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	j, err := a.journeys.Complete(r.Context(), journeyID, stopID, models.Proof{
		SignatureRef: req.SignatureRef,
		PhotoRefs:    req.PhotoRefs,
		Notes:        req.Notes,
		ReceiverName: req.ReceiverName,
	}, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

type failStopRequest struct {
	Reason string `json:"reason"`
}

func (a *API) failStop(w http.ResponseWriter, r *http.Request) {
	journeyID, stopID, ok := stopPath(r)
	if !ok {
		writeBadRequest(w, "invalid journey or stop id")
		return
	}
	var req failStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	j, err := a.journeys.Fail(r.Context(), journeyID, stopID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

func (a *API) skipStop(w http.ResponseWriter, r *http.Request) {
	journeyID, stopID, ok := stopPath(r)
	if !ok {
		writeBadRequest(w, "invalid journey or stop id")
		return
	}
	j, err := a.journeys.Skip(r.Context(), journeyID, stopID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

func (a *API) resetStop(w http.ResponseWriter, r *http.Request) {
	journeyID, stopID, ok := stopPath(r)
	if !ok {
		writeBadRequest(w, "invalid journey or stop id")
		return
	}
	j, err := a.journeys.Reset(r.Context(), journeyID, stopID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

type delayReasonRequest struct {
	Category models.DelayCategory `json:"category"`
	Reason   string               `json:"reason"`
}

func (a *API) submitDelayReason(w http.ResponseWriter, r *http.Request) {
	journeyID, stopID, ok := stopPath(r)
	if !ok {
		writeBadRequest(w, "invalid journey or stop id")
		return
	}
	var req delayReasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	j, err := a.journeys.SubmitDelayReason(r.Context(), journeyID, stopID, req.Category, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

type addStopRequest struct {
	CustomerID     uint64          `json:"customerId"`
	Lat            float64         `json:"lat"`
	Lng            float64         `json:"lng"`
	ServiceMinutes int             `json:"serviceMinutes"`
	Priority       models.Priority `json:"priority,omitempty"`
}

func (a *API) addStop(w http.ResponseWriter, r *http.Request) {
	journeyID, ok := pathID(r, "journeyID")
	if !ok {
		writeBadRequest(w, "invalid journey id")
		return
	}
	var req addStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	j, err := a.journeys.AddStop(r.Context(), journeyID, journeys.AddStopInput{
		CustomerID:     req.CustomerID,
		Lat:            req.Lat,
		Lng:            req.Lng,
		ServiceMinutes: req.ServiceMinutes,
		Priority:       req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

func (a *API) removeStop(w http.ResponseWriter, r *http.Request) {
	journeyID, stopID, ok := stopPath(r)
	if !ok {
		writeBadRequest(w, "invalid journey or stop id")
		return
	}
	j, err := a.journeys.RemoveStop(r.Context(), journeyID, stopID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

type reoptimizeRequest struct {
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

func (a *API) reoptimizeJourney(w http.ResponseWriter, r *http.Request) {
	journeyID, ok := pathID(r, "journeyID")
	if !ok {
		writeBadRequest(w, "invalid journey id")
		return
	}
	var req reoptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	var origin *geo.Point
	if req.Lat != nil && req.Lng != nil {
		origin = &geo.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	if err := a.replanner.Replan(r.Context(), journeyID, origin); err != nil {
		writeError(w, err)
		return
	}
	j, err := a.journeys.Get(r.Context(), journeyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

type completeJourneyRequest struct {
	EndOdometer   *int64   `json:"endOdometer,omitempty"`
	EndFuelPct    *float64 `json:"endFuelPct,omitempty"`
	ConditionNote *string  `json:"conditionNote,omitempty"`
}

func (a *API) completeJourney(w http.ResponseWriter, r *http.Request) {
	journeyID, ok := pathID(r, "journeyID")
	if !ok {
		writeBadRequest(w, "invalid journey id")
		return
	}
	var req completeJourneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	j, err := a.journeys.CompleteWithReturnDetails(r.Context(), journeyID, journeys.ReturnDetails{
		EndOdometer:   req.EndOdometer,
		EndFuelPct:    req.EndFuelPct,
		ConditionNote: req.ConditionNote,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

func (a *API) cancelJourney(w http.ResponseWriter, r *http.Request) {
	journeyID, ok := pathID(r, "journeyID")
	if !ok {
		writeBadRequest(w, "invalid journey id")
		return
	}
	j, err := a.journeys.Cancel(r.Context(), journeyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

func (a *API) archiveJourney(w http.ResponseWriter, r *http.Request) {
	journeyID, ok := pathID(r, "journeyID")
	if !ok {
		writeBadRequest(w, "invalid journey id")
		return
	}
	j, err := a.journeys.Archive(r.Context(), journeyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJourneyDTO(j))
}

func stopPath(r *http.Request) (journeyID, stopID uint64, ok bool) {
	journeyID, ok = pathID(r, "journeyID")
	if !ok {
		return 0, 0, false
	}
	stopID, ok = pathID(r, "stopID")
	return journeyID, stopID, ok
}
