// Package api exposes the routing core over JSON/HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/optimizer"
	"github.com/BearBump/RouteBox/internal/services/journeys"
)

type RoutesService interface {
	Create(ctx context.Context, in models.RouteCreateInput, plannedDepartureAt *time.Time) (*models.Route, error)
	Get(ctx context.Context, routeID uint64) (*models.Route, error)
	Optimize(ctx context.Context, routeID uint64, mode models.OptimizationMode, avoidTolls bool) (*models.Route, *optimizer.Result, error)
}

type JourneysService interface {
	Create(ctx context.Context, routeID uint64) (*models.Journey, error)
	Get(ctx context.Context, journeyID uint64) (*models.Journey, error)
	Status(ctx context.Context, journeyID uint64, limit, offset int) ([]*models.JourneyStatus, error)
	Start(ctx context.Context, journeyID uint64, details journeys.StartDetails) (*models.Journey, error)
	CheckIn(ctx context.Context, journeyID, stopID uint64, at geo.Point) (*models.Journey, error)
	Complete(ctx context.Context, journeyID, stopID uint64, proof models.Proof, at *geo.Point) (*models.Journey, error)
	Fail(ctx context.Context, journeyID, stopID uint64, reason string) (*models.Journey, error)
	Skip(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error)
	Reset(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error)
	SubmitDelayReason(ctx context.Context, journeyID, stopID uint64, category models.DelayCategory, reason string) (*models.Journey, error)
	CompleteWithReturnDetails(ctx context.Context, journeyID uint64, details journeys.ReturnDetails) (*models.Journey, error)
	Cancel(ctx context.Context, journeyID uint64) (*models.Journey, error)
	Archive(ctx context.Context, journeyID uint64) (*models.Journey, error)
	AddStop(ctx context.Context, journeyID uint64, in journeys.AddStopInput) (*models.Journey, error)
	RemoveStop(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error)
}

type Replanner interface {
	Replan(ctx context.Context, journeyID uint64, origin *geo.Point) error
}

type API struct {
	routes    RoutesService
	journeys  JourneysService
	replanner Replanner
}

func New(routes RoutesService, journeys JourneysService, replanner Replanner) *API {
	return &API{routes: routes, journeys: journeys, replanner: replanner}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/routes", func(r chi.Router) {
		r.Post("/", a.createRoute)
		r.Get("/{routeID}", a.getRoute)
		r.Post("/{routeID}/optimize", a.optimizeRoute)
	})

	r.Route("/journeys", func(r chi.Router) {
		r.Post("/", a.createJourney)
		r.Get("/{journeyID}", a.getJourney)
		r.Get("/{journeyID}/status", a.getJourneyStatus)
		r.Post("/{journeyID}/start", a.startJourney)
		r.Post("/{journeyID}/reoptimize", a.reoptimizeJourney)
		r.Post("/{journeyID}/complete", a.completeJourney)
		r.Post("/{journeyID}/cancel", a.cancelJourney)
		r.Post("/{journeyID}/archive", a.archiveJourney)

		r.Post("/{journeyID}/stops", a.addStop)
		r.Delete("/{journeyID}/stops/{stopID}", a.removeStop)
		r.Post("/{journeyID}/stops/{stopID}/check-in", a.checkIn)
		r.Post("/{journeyID}/stops/{stopID}/complete", a.completeStop)
		r.Post("/{journeyID}/stops/{stopID}/fail", a.failStop)
		r.Post("/{journeyID}/stops/{stopID}/skip", a.skipStop)
		r.Post("/{journeyID}/stops/{stopID}/reset", a.resetStop)
		r.Post("/{journeyID}/stops/{stopID}/delay-reason", a.submitDelayReason)
	})

	return r
}

func pathID(r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}
