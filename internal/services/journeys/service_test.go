package journeys

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/RouteBox/internal/broker/messages"
	"github.com/BearBump/RouteBox/internal/faults"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/journeylock"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/storage/pgroutes"
)

type fakeRepo struct {
	journey   *models.Journey
	audits    []*models.JourneyStatus
	hasActive bool
	nextID    uint64
}

func (f *fakeRepo) clone(j *models.Journey) *models.Journey {
	b, _ := json.Marshal(j)
	var out models.Journey
	_ = json.Unmarshal(b, &out)
	return &out
}

func (f *fakeRepo) RouteHasActiveJourney(ctx context.Context, routeID uint64) (bool, error) {
	return f.hasActive, nil
}

func (f *fakeRepo) CreateJourney(ctx context.Context, routeID uint64) (*models.Journey, error) {
	return f.clone(f.journey), nil
}

func (f *fakeRepo) GetJourney(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	if f.journey == nil || f.journey.ID != journeyID {
		return nil, faults.New(faults.NotFound, "journey %d not found", journeyID)
	}
	return f.clone(f.journey), nil
}

func (f *fakeRepo) ApplyJourneyTransition(ctx context.Context, upd pgroutes.TransitionUpdate) error {
	if upd.PrevVersion != f.journey.PlanVersion {
		return faults.New(faults.ConcurrentModification, "journey %d changed concurrently", upd.Journey.ID)
	}
	if upd.InsertStop != nil {
		f.nextID++
		upd.InsertStop.ID = 9000 + f.nextID
	}
	f.journey = f.clone(upd.Journey)
	f.audits = append(f.audits, upd.Audit)
	return nil
}

func (f *fakeRepo) ListJourneyStatus(ctx context.Context, journeyID uint64, limit, offset int) ([]*models.JourneyStatus, error) {
	return f.audits, nil
}

type fakeProducer struct {
	events []messages.JourneyEvent
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	var ev messages.JourneyEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakeProducer) types() []messages.JourneyEventType {
	out := make([]messages.JourneyEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeReplanner struct {
	calls chan uint64
}

func (r *fakeReplanner) Replan(ctx context.Context, journeyID uint64, origin *geo.Point) error {
	r.calls <- journeyID
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
func strPtr(s string) *string        { return &s }

func newTestService(t *testing.T, j *models.Journey) (*Service, *fakeRepo, *fakeProducer, *fakeReplanner) {
	t.Helper()
	repo := &fakeRepo{journey: j}
	producer := &fakeProducer{}
	replanner := &fakeReplanner{calls: make(chan uint64, 8)}

	svc := New(repo, journeylock.NewRegistry(), producer, slog.Default(), Config{
		EventsTopic:                 "journey.events",
		DelayReasonThresholdMinutes: 15,
		AutoReplanThresholdMinutes:  20,
	})
	svc.SetReplanner(replanner)
	return svc, repo, producer, replanner
}

func testJourney(base time.Time) *models.Journey {
	return &models.Journey{
		ID:          1,
		RouteID:     1,
		State:       models.JourneyInProgress,
		PlanVersion: 1,
		StartedAt:   timePtr(base),
		Stops: []*models.JourneyStop{
			{ID: 101, JourneyID: 1, CustomerID: 1, OrderIndex: 0, State: models.StopPending,
				OriginalEstimatedArrival: timePtr(base.Add(10 * time.Minute))},
			{ID: 102, JourneyID: 1, CustomerID: 2, OrderIndex: 1, State: models.StopPending,
				OriginalEstimatedArrival: timePtr(base.Add(40 * time.Minute))},
			{ID: 103, JourneyID: 1, CustomerID: 3, OrderIndex: 2, State: models.StopPending,
				OriginalEstimatedArrival: timePtr(base.Add(70 * time.Minute))},
		},
	}
}

func TestStart(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	j := testJourney(base)
	j.State = models.JourneyPreparing
	j.StartedAt = nil
	svc, repo, producer, _ := newTestService(t, j)
	svc.now = func() time.Time { return base }

	odo := int64(12000)
	got, err := svc.Start(context.Background(), 1, StartDetails{Odometer: &odo})
	require.NoError(t, err)
	require.Equal(t, models.JourneyInProgress, got.State)
	require.Equal(t, int64(2), got.PlanVersion)
	require.NotNil(t, got.StartedAt)
	require.Equal(t, []messages.JourneyEventType{messages.JourneyStarted}, producer.types())
	require.Len(t, repo.audits, 1)

	_, err = svc.Start(context.Background(), 1, StartDetails{})
	require.True(t, faults.Is(err, faults.InvalidTransition))
}

func TestCheckIn_DelayArithmetic(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newTestService(t, testJourney(base))

	// stop 1 is reached 10 minutes late
	svc.now = func() time.Time { return base.Add(20 * time.Minute) }
	got, err := svc.CheckIn(context.Background(), 1, 101, geo.Point{Lat: 55.76, Lng: 37.62})
	require.NoError(t, err)
	require.Equal(t, 10, got.Stops[0].NewDelayMinutes)
	require.Equal(t, 10, got.CumulativeDelayMinutes)
	require.Equal(t, models.StopInProgress, got.Stops[0].State)

	_, err = svc.Complete(context.Background(), 1, 101, models.Proof{}, nil)
	require.NoError(t, err)

	// stop 2 is on time; cumulative delay must not heal
	svc.now = func() time.Time { return base.Add(40 * time.Minute) }
	got, err = svc.CheckIn(context.Background(), 1, 102, geo.Point{})
	require.NoError(t, err)
	require.Equal(t, 0, got.Stops[1].NewDelayMinutes)
	require.Equal(t, 10, got.CumulativeDelayMinutes)
	require.Equal(t, 10, got.Stops[1].CumulativeDelayMinutes)

	require.Len(t, repo.audits, 3)
}

func TestCheckIn_Preconditions(t *testing.T) {
	base := time.Now().UTC()
	svc, repo, _, _ := newTestService(t, testJourney(base))

	// not the current stop
	_, err := svc.CheckIn(context.Background(), 1, 102, geo.Point{})
	require.True(t, faults.Is(err, faults.InvalidTransition))

	_, err = svc.CheckIn(context.Background(), 1, 101, geo.Point{})
	require.NoError(t, err)

	// a second in-progress stop is never allowed
	_, err = svc.CheckIn(context.Background(), 1, 102, geo.Point{})
	require.True(t, faults.Is(err, faults.InvalidTransition))
	require.Equal(t, models.StopPending, repo.journey.Stops[1].State)
}

func TestComplete_MissingProofLeavesInProgress(t *testing.T) {
	base := time.Now().UTC()
	j := testJourney(base)
	j.Stops[0].SignatureRequired = true
	svc, repo, _, _ := newTestService(t, j)

	_, err := svc.CheckIn(context.Background(), 1, 101, geo.Point{})
	require.NoError(t, err)
	auditsBefore := len(repo.audits)
	versionBefore := repo.journey.PlanVersion

	_, err = svc.Complete(context.Background(), 1, 101, models.Proof{}, nil)
	require.True(t, faults.Is(err, faults.MissingProof))
	require.Equal(t, models.StopInProgress, repo.journey.Stops[0].State)
	require.Equal(t, versionBefore, repo.journey.PlanVersion)
	require.Len(t, repo.audits, auditsBefore)

	// photo required too
	j2 := repo.journey
	j2.Stops[0].SignatureRequired = false
	j2.Stops[0].PhotoRequired = true
	_, err = svc.Complete(context.Background(), 1, 101, models.Proof{SignatureRef: strPtr("sig")}, nil)
	require.True(t, faults.Is(err, faults.MissingProof))

	_, err = svc.Complete(context.Background(), 1, 101, models.Proof{PhotoRefs: []string{"p1"}}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StopCompleted, repo.journey.Stops[0].State)
}

func TestFail_OnNonInProgressStopUnchanged(t *testing.T) {
	base := time.Now().UTC()
	svc, repo, _, _ := newTestService(t, testJourney(base))

	_, err := svc.Fail(context.Background(), 1, 102, "door locked")
	require.True(t, faults.Is(err, faults.InvalidTransition))
	require.Equal(t, models.StopPending, repo.journey.Stops[1].State)
	require.Empty(t, repo.audits)
}

func TestCompleteLastStop_FinishesJourney(t *testing.T) {
	base := time.Now().UTC()
	j := testJourney(base)
	j.Stops = j.Stops[:1]
	svc, repo, producer, _ := newTestService(t, j)

	_, err := svc.CheckIn(context.Background(), 1, 101, geo.Point{})
	require.NoError(t, err)
	got, err := svc.Complete(context.Background(), 1, 101, models.Proof{}, nil)
	require.NoError(t, err)
	require.Equal(t, models.JourneyFinished, got.State)
	require.NotNil(t, got.FinishedAt)
	require.Contains(t, producer.types(), messages.JourneyFinished)

	// return details close it out
	odo := int64(12345)
	got, err = svc.CompleteWithReturnDetails(context.Background(), 1, ReturnDetails{EndOdometer: &odo})
	require.NoError(t, err)
	require.Equal(t, models.JourneyCompleted, got.State)

	got, err = svc.Archive(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.JourneyArchived, got.State)

	_, err = svc.CheckIn(context.Background(), 1, 101, geo.Point{})
	require.True(t, faults.Is(err, faults.InvalidTransition))
	_ = repo
}

func TestSkipAndReset(t *testing.T) {
	base := time.Now().UTC()
	svc, repo, _, _ := newTestService(t, testJourney(base))

	got, err := svc.Skip(context.Background(), 1, 101)
	require.NoError(t, err)
	require.Equal(t, models.StopSkipped, got.Stops[0].State)
	require.Equal(t, 1, got.CurrentStopIndex)

	// fail stop 2 with some delay, then reset reverses it
	svc.now = func() time.Time { return base.Add(60 * time.Minute) }
	_, err = svc.CheckIn(context.Background(), 1, 102, geo.Point{})
	require.NoError(t, err)
	require.Equal(t, 20, repo.journey.CumulativeDelayMinutes)

	_, err = svc.Fail(context.Background(), 1, 102, "nobody home")
	require.NoError(t, err)

	got, err = svc.Reset(context.Background(), 1, 102)
	require.NoError(t, err)
	require.Equal(t, models.StopPending, got.Stops[1].State)
	require.Equal(t, 0, got.CumulativeDelayMinutes)
	require.Equal(t, 1, got.CurrentStopIndex)
	require.Nil(t, got.Stops[1].FailureReason)

	// skipped stop cannot be skipped twice
	_, err = svc.Skip(context.Background(), 1, 101)
	require.True(t, faults.Is(err, faults.InvalidTransition))
}

func TestSubmitDelayReason_Threshold(t *testing.T) {
	base := time.Now().UTC()
	svc, _, _, _ := newTestService(t, testJourney(base))

	// on-time stop: below the 15 minute threshold
	svc.now = func() time.Time { return base.Add(10 * time.Minute) }
	_, err := svc.CheckIn(context.Background(), 1, 101, geo.Point{})
	require.NoError(t, err)
	_, err = svc.SubmitDelayReason(context.Background(), 1, 101, models.DelayTraffic, "jam")
	require.True(t, faults.Is(err, faults.InvalidTransition))

	_, err = svc.Complete(context.Background(), 1, 101, models.Proof{}, nil)
	require.NoError(t, err)

	// exactly 15 minutes late: the delay must exceed the threshold, not meet it
	svc.now = func() time.Time { return base.Add(55 * time.Minute) }
	_, err = svc.CheckIn(context.Background(), 1, 102, geo.Point{})
	require.NoError(t, err)
	_, err = svc.SubmitDelayReason(context.Background(), 1, 102, models.DelayTraffic, "jam")
	require.True(t, faults.Is(err, faults.InvalidTransition))
	_, err = svc.Complete(context.Background(), 1, 102, models.Proof{}, nil)
	require.NoError(t, err)

	// 25 minutes late: reason accepted
	svc.now = func() time.Time { return base.Add(95 * time.Minute) }
	_, err = svc.CheckIn(context.Background(), 1, 103, geo.Point{})
	require.NoError(t, err)
	got, err := svc.SubmitDelayReason(context.Background(), 1, 103, models.DelayTraffic, "jam on the ring road")
	require.NoError(t, err)
	require.Equal(t, models.DelayTraffic, *got.Stops[2].DelayCategory)

	_, err = svc.SubmitDelayReason(context.Background(), 1, 103, models.DelayCategory("alien"), "x")
	require.True(t, faults.Is(err, faults.InfeasibleInput))
}

func TestAutoReplan_OnThresholdCrossing(t *testing.T) {
	base := time.Now().UTC()
	svc, _, producer, replanner := newTestService(t, testJourney(base))

	// 25 minutes late on the first stop crosses the 20 minute threshold
	svc.now = func() time.Time { return base.Add(35 * time.Minute) }
	_, err := svc.CheckIn(context.Background(), 1, 101, geo.Point{})
	require.NoError(t, err)

	select {
	case id := <-replanner.calls:
		require.Equal(t, uint64(1), id)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an automatic replan")
	}
	require.Contains(t, producer.types(), messages.DelayThresholdCrossed)

	// already above the threshold: crossing fires only once
	_, err = svc.Complete(context.Background(), 1, 101, models.Proof{}, nil)
	require.NoError(t, err)
	svc.now = func() time.Time { return base.Add(80 * time.Minute) }
	_, err = svc.CheckIn(context.Background(), 1, 102, geo.Point{})
	require.NoError(t, err)

	select {
	case <-replanner.calls:
		t.Fatal("replan must not fire again while above the threshold")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAddRemoveStop(t *testing.T) {
	base := time.Now().UTC()
	svc, repo, producer, replanner := newTestService(t, testJourney(base))

	got, err := svc.AddStop(context.Background(), 1, AddStopInput{
		CustomerID: 9, Lat: 55.8, Lng: 37.7, ServiceMinutes: 5,
	})
	require.NoError(t, err)
	require.Len(t, got.Stops, 4)
	added := got.Stops[3]
	require.Equal(t, models.StopPending, added.State)
	require.Equal(t, 3, added.OrderIndex)
	require.Contains(t, producer.types(), messages.StopAdded)

	select {
	case <-replanner.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("addStop must trigger a replan")
	}

	_, err = svc.AddStop(context.Background(), 1, AddStopInput{ServiceMinutes: -1})
	require.True(t, faults.Is(err, faults.InfeasibleInput))

	got, err = svc.RemoveStop(context.Background(), 1, 102)
	require.NoError(t, err)
	require.Len(t, got.Stops, 3)
	for i, st := range got.Stops {
		require.Equal(t, i, st.OrderIndex)
	}

	// removing an already-removed stop is an error, not a no-op
	_, err = svc.RemoveStop(context.Background(), 1, 102)
	require.True(t, faults.Is(err, faults.InvalidTransition))
	_ = repo
}

func TestCompleteAndFail_RejectedAfterCancel(t *testing.T) {
	base := time.Now().UTC()
	svc, repo, _, _ := newTestService(t, testJourney(base))
	svc.now = func() time.Time { return base.Add(10 * time.Minute) }

	_, err := svc.CheckIn(context.Background(), 1, 101, geo.Point{})
	require.NoError(t, err)
	got, err := svc.Cancel(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.JourneyCancelled, got.State)
	version := got.PlanVersion
	audits := len(repo.audits)

	_, err = svc.Complete(context.Background(), 1, 101, models.Proof{}, nil)
	require.True(t, faults.Is(err, faults.InvalidTransition))
	_, err = svc.Fail(context.Background(), 1, 101, "no answer")
	require.True(t, faults.Is(err, faults.InvalidTransition))

	// nothing mutated or audited under the cancelled journey
	cur, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.JourneyCancelled, cur.State)
	require.Equal(t, models.StopInProgress, cur.Stops[0].State)
	require.Equal(t, version, cur.PlanVersion)
	require.Len(t, repo.audits, audits)
}

func TestCancel(t *testing.T) {
	base := time.Now().UTC()
	svc, _, producer, _ := newTestService(t, testJourney(base))

	got, err := svc.Cancel(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.JourneyCancelled, got.State)
	require.NotNil(t, got.CancelledAt)
	require.Contains(t, producer.types(), messages.JourneyCancelled)

	_, err = svc.Cancel(context.Background(), 1)
	require.True(t, faults.Is(err, faults.InvalidTransition))

	// cancelled journeys can only be archived
	_, err = svc.AddStop(context.Background(), 1, AddStopInput{CustomerID: 1})
	require.True(t, faults.Is(err, faults.InvalidTransition))
	got, err = svc.Archive(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.JourneyArchived, got.State)
}
