package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/RouteBox/internal/api"
	"github.com/BearBump/RouteBox/internal/broker/messages"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/optimizer"
	"github.com/BearBump/RouteBox/internal/positions"
	"github.com/BearBump/RouteBox/internal/services/journeys"
)

type fakeRoutes struct{}

func (fakeRoutes) Create(ctx context.Context, in models.RouteCreateInput, plannedDepartureAt *time.Time) (*models.Route, error) {
	return &models.Route{}, nil
}
func (fakeRoutes) Get(ctx context.Context, routeID uint64) (*models.Route, error) {
	return &models.Route{ID: routeID}, nil
}
func (fakeRoutes) Optimize(ctx context.Context, routeID uint64, mode models.OptimizationMode, avoidTolls bool) (*models.Route, *optimizer.Result, error) {
	return &models.Route{ID: routeID}, &optimizer.Result{}, nil
}

type fakeJourneys struct{}

func (fakeJourneys) Create(ctx context.Context, routeID uint64) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) Get(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	return &models.Journey{ID: journeyID}, nil
}
func (fakeJourneys) Status(ctx context.Context, journeyID uint64, limit, offset int) ([]*models.JourneyStatus, error) {
	return nil, nil
}
func (fakeJourneys) Start(ctx context.Context, journeyID uint64, details journeys.StartDetails) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) CheckIn(ctx context.Context, journeyID, stopID uint64, at geo.Point) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) Complete(ctx context.Context, journeyID, stopID uint64, proof models.Proof, at *geo.Point) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) Fail(ctx context.Context, journeyID, stopID uint64, reason string) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) Skip(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) Reset(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) SubmitDelayReason(ctx context.Context, journeyID, stopID uint64, category models.DelayCategory, reason string) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) CompleteWithReturnDetails(ctx context.Context, journeyID uint64, details journeys.ReturnDetails) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) Cancel(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) Archive(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) AddStop(ctx context.Context, journeyID uint64, in journeys.AddStopInput) (*models.Journey, error) {
	return &models.Journey{}, nil
}
func (fakeJourneys) RemoveStop(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error) {
	return &models.Journey{}, nil
}

type fakeReplanner struct{}

func (fakeReplanner) Replan(ctx context.Context, journeyID uint64, origin *geo.Point) error {
	return nil
}

type memCache struct{ m map[string][]byte }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

type scriptedConsumer struct {
	values [][]byte
}

func (c *scriptedConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, v := range c.values {
		if err := handler(nil, v); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunRouteAPI_ServesAndConsumesPositions(t *testing.T) {
	pos := positions.New(&memCache{m: map[string][]byte{}}, time.Minute)

	posMsg, err := json.Marshal(messages.DriverPosition{
		JourneyID: 7, Lat: 55.75, Lng: 37.61, RecordedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runRouteAPI(ctx, routeAPIOpts{
			httpAddr:      "127.0.0.1:0",
			topic:         "driver.position",
			consumerGroup: "route-api",
			onListen:      func(addr string) { addrCh <- addr },
		}, api.New(fakeRoutes{}, fakeJourneys{}, fakeReplanner{}), &scriptedConsumer{values: [][]byte{posMsg}}, pos)
	}()

	addr := <-addrCh

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		p, ok, err := pos.Latest(context.Background(), 7)
		return err == nil && ok && p.Lat == 55.75
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.Error(t, <-errCh)
}
