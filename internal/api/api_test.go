package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/RouteBox/internal/faults"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/optimizer"
	"github.com/BearBump/RouteBox/internal/services/journeys"
)

type fakeRoutes struct {
	route  *models.Route
	result *optimizer.Result
	err    error
}

func (f *fakeRoutes) Create(ctx context.Context, in models.RouteCreateInput, plannedDepartureAt *time.Time) (*models.Route, error) {
	return f.route, f.err
}
func (f *fakeRoutes) Get(ctx context.Context, routeID uint64) (*models.Route, error) {
	return f.route, f.err
}
func (f *fakeRoutes) Optimize(ctx context.Context, routeID uint64, mode models.OptimizationMode, avoidTolls bool) (*models.Route, *optimizer.Result, error) {
	return f.route, f.result, f.err
}

type fakeJourneys struct {
	journey *models.Journey
	status  []*models.JourneyStatus
	err     error

	lastProof models.Proof
	lastAdd   journeys.AddStopInput
}

func (f *fakeJourneys) Create(ctx context.Context, routeID uint64) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) Get(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) Status(ctx context.Context, journeyID uint64, limit, offset int) ([]*models.JourneyStatus, error) {
	return f.status, f.err
}
func (f *fakeJourneys) Start(ctx context.Context, journeyID uint64, details journeys.StartDetails) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) CheckIn(ctx context.Context, journeyID, stopID uint64, at geo.Point) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) Complete(ctx context.Context, journeyID, stopID uint64, proof models.Proof, at *geo.Point) (*models.Journey, error) {
	f.lastProof = proof
	return f.journey, f.err
}
func (f *fakeJourneys) Fail(ctx context.Context, journeyID, stopID uint64, reason string) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) Skip(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) Reset(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) SubmitDelayReason(ctx context.Context, journeyID, stopID uint64, category models.DelayCategory, reason string) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) CompleteWithReturnDetails(ctx context.Context, journeyID uint64, details journeys.ReturnDetails) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) Cancel(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) Archive(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	return f.journey, f.err
}
func (f *fakeJourneys) AddStop(ctx context.Context, journeyID uint64, in journeys.AddStopInput) (*models.Journey, error) {
	f.lastAdd = in
	return f.journey, f.err
}
func (f *fakeJourneys) RemoveStop(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error) {
	return f.journey, f.err
}

type fakeReplanner struct {
	origin *geo.Point
	err    error
}

func (f *fakeReplanner) Replan(ctx context.Context, journeyID uint64, origin *geo.Point) error {
	f.origin = origin
	return f.err
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetRoute(t *testing.T) {
	routes := &fakeRoutes{route: &models.Route{ID: 5, VehicleID: 1, DriverID: 2}}
	h := New(routes, &fakeJourneys{}, &fakeReplanner{}).Router()

	rec := do(t, h, http.MethodPost, "/routes", createRouteRequest{
		VehicleID: 1, DriverID: 2, DepotLat: 55.6, DepotLng: 37.6,
		Stops: []createRouteStopRequest{{CustomerID: 1, Lat: 55.7, Lng: 37.6}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var out routeDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, uint64(5), out.ID)

	rec = do(t, h, http.MethodGet, "/routes/5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOptimizeRoute(t *testing.T) {
	routes := &fakeRoutes{
		route: &models.Route{ID: 5},
		result: &optimizer.Result{
			Order:               []optimizer.Scheduled{},
			Excluded:            []optimizer.Excluded{{Stop: optimizer.Stop{Key: 13}, Reason: "arrival after window end"}},
			TotalDistanceMeters: 1200,
		},
	}
	h := New(routes, &fakeJourneys{}, &fakeReplanner{}).Router()

	rec := do(t, h, http.MethodPost, "/routes/5/optimize", optimizeRouteRequest{Mode: models.OptimizeByDistance})
	require.Equal(t, http.StatusOK, rec.Code)

	var out optimizeResultDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.ExcludedStops, 1)
	require.Equal(t, uint64(13), out.ExcludedStops[0].StopID)
	require.Equal(t, float64(1200), out.TotalDistanceMeters)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		kind faults.Kind
		want int
	}{
		{faults.NotFound, http.StatusNotFound},
		{faults.InvalidTransition, http.StatusConflict},
		{faults.ConcurrentModification, http.StatusConflict},
		{faults.MissingProof, http.StatusUnprocessableEntity},
		{faults.InfeasibleInput, http.StatusUnprocessableEntity},
		{faults.DependencyUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		js := &fakeJourneys{err: faults.New(tc.kind, "nope")}
		h := New(&fakeRoutes{}, js, &fakeReplanner{}).Router()

		rec := do(t, h, http.MethodPost, "/journeys/1/start", nil)
		require.Equal(t, tc.want, rec.Code, "kind %s", tc.kind)

		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, string(tc.kind), body.Kind)
		require.Equal(t, tc.kind.Retryable(), body.Retryable)
	}
}

func TestCheckInAndCompleteStop(t *testing.T) {
	js := &fakeJourneys{journey: &models.Journey{ID: 1, State: models.JourneyInProgress}}
	h := New(&fakeRoutes{}, js, &fakeReplanner{}).Router()

	rec := do(t, h, http.MethodPost, "/journeys/1/stops/101/check-in", checkInRequest{Lat: 55.7, Lng: 37.6})
	require.Equal(t, http.StatusOK, rec.Code)

	sig := "sig-ref"
	rec = do(t, h, http.MethodPost, "/journeys/1/stops/101/complete", completeStopRequest{
		SignatureRef: &sig,
		PhotoRefs:    []string{"p1", "p2"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, &sig, js.lastProof.SignatureRef)
	require.Len(t, js.lastProof.PhotoRefs, 2)
}

func TestReoptimize_PassesOrigin(t *testing.T) {
	js := &fakeJourneys{journey: &models.Journey{ID: 1}}
	rp := &fakeReplanner{}
	h := New(&fakeRoutes{}, js, rp).Router()

	lat, lng := 55.8, 37.7
	rec := do(t, h, http.MethodPost, "/journeys/1/reoptimize", reoptimizeRequest{Lat: &lat, Lng: &lng})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, rp.origin)
	require.Equal(t, 55.8, rp.origin.Lat)

	// without coordinates the live position fallback applies
	rec = do(t, h, http.MethodPost, "/journeys/1/reoptimize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, rp.origin)
}

func TestAddStop(t *testing.T) {
	js := &fakeJourneys{journey: &models.Journey{ID: 1}}
	h := New(&fakeRoutes{}, js, &fakeReplanner{}).Router()

	rec := do(t, h, http.MethodPost, "/journeys/1/stops", addStopRequest{
		CustomerID: 9, Lat: 55.8, Lng: 37.7, ServiceMinutes: 5, Priority: models.PriorityHigh,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(9), js.lastAdd.CustomerID)
	require.Equal(t, models.PriorityHigh, js.lastAdd.Priority)
}

func TestBadIDs(t *testing.T) {
	h := New(&fakeRoutes{}, &fakeJourneys{}, &fakeReplanner{}).Router()

	rec := do(t, h, http.MethodGet, "/routes/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/journeys/0/start", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
