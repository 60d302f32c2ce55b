package journeys

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BearBump/RouteBox/internal/broker/messages"
	"github.com/BearBump/RouteBox/internal/faults"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/journeylock"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/storage/pgroutes"
)

type Repository interface {
	RouteHasActiveJourney(ctx context.Context, routeID uint64) (bool, error)
	CreateJourney(ctx context.Context, routeID uint64) (*models.Journey, error)
	GetJourney(ctx context.Context, journeyID uint64) (*models.Journey, error)
	ApplyJourneyTransition(ctx context.Context, upd pgroutes.TransitionUpdate) error
	ListJourneyStatus(ctx context.Context, journeyID uint64, limit, offset int) ([]*models.JourneyStatus, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Replanner recomputes the pending tail of a journey. A nil origin means
// "resolve the driver's live position yourself".
type Replanner interface {
	Replan(ctx context.Context, journeyID uint64, origin *geo.Point) error
}

type Config struct {
	EventsTopic string

	// Minimum newDelay at a stop before a delay reason may be filed.
	DelayReasonThresholdMinutes int

	// cumulativeDelay crossing this triggers an automatic replan.
	AutoReplanThresholdMinutes int
}

type Service struct {
	repo      Repository
	locks     *journeylock.Registry
	producer  Producer
	replanner Replanner
	log       *slog.Logger
	cfg       Config

	now func() time.Time
}

func New(repo Repository, locks *journeylock.Registry, producer Producer, log *slog.Logger, cfg Config) *Service {
	return &Service{
		repo:     repo,
		locks:    locks,
		producer: producer,
		log:      log,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetReplanner breaks the construction cycle: the coordinator needs this
// service's lock discipline, this service needs the coordinator for
// automatic replans.
func (s *Service) SetReplanner(r Replanner) { s.replanner = r }

func (s *Service) Create(ctx context.Context, routeID uint64) (*models.Journey, error) {
	active, err := s.repo.RouteHasActiveJourney(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, faults.New(faults.InvalidTransition, "route %d already has an active journey", routeID)
	}
	return s.repo.CreateJourney(ctx, routeID)
}

func (s *Service) Get(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	return s.repo.GetJourney(ctx, journeyID)
}

func (s *Service) Status(ctx context.Context, journeyID uint64, limit, offset int) ([]*models.JourneyStatus, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.repo.ListJourneyStatus(ctx, journeyID, limit, offset)
}

type StartDetails struct {
	Odometer *int64
	FuelPct  *float64
}

func (s *Service) Start(ctx context.Context, journeyID uint64, details StartDetails) (*models.Journey, error) {
	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	if j.State != models.JourneyPreparing {
		return nil, faults.New(faults.InvalidTransition, "cannot start journey in state %s", j.State)
	}

	now := s.now()
	prev := j.PlanVersion
	j.State = models.JourneyInProgress
	j.StartedAt = &now
	j.StartOdometer = details.Odometer
	j.StartFuelPct = details.FuelPct
	j.CurrentStopIndex = j.FirstNonTerminalIndex()
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		Audit:       s.audit(j, nil, nil, now),
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, messages.JourneyEvent{Type: messages.JourneyStarted, JourneyID: j.ID, OccurredAt: now})
	return j, nil
}

func (s *Service) CheckIn(ctx context.Context, journeyID, stopID uint64, at geo.Point) (*models.Journey, error) {
	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	if j.State != models.JourneyInProgress {
		return nil, faults.New(faults.InvalidTransition, "cannot check in on journey in state %s", j.State)
	}
	if cur := j.InProgressStop(); cur != nil {
		return nil, faults.New(faults.InvalidTransition, "stop %d is already in progress", cur.ID)
	}
	stop := j.CurrentStop()
	if stop == nil {
		return nil, faults.New(faults.InvalidTransition, "journey %d has no remaining stops", journeyID)
	}
	if stop.ID != stopID {
		return nil, faults.New(faults.InvalidTransition, "stop %d is not the current stop (expected %d)", stopID, stop.ID)
	}
	if stop.State != models.StopPending {
		return nil, faults.New(faults.InvalidTransition, "cannot check in stop in state %s", stop.State)
	}

	now := s.now()

	newDelay := 0
	if stop.OriginalEstimatedArrival != nil {
		if d := now.Sub(*stop.OriginalEstimatedArrival); d > 0 {
			newDelay = int(d / time.Minute)
		}
	}

	prev := j.PlanVersion
	prevCumulative := j.CumulativeDelayMinutes

	stop.State = models.StopInProgress
	stop.CheckedInAt = &now
	stop.NewDelayMinutes = newDelay
	j.CumulativeDelayMinutes += newDelay
	stop.CumulativeDelayMinutes = j.CumulativeDelayMinutes
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		Stops:       []*models.JourneyStop{stop},
		Audit:       s.audit(j, stop, &at, now),
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, messages.JourneyEvent{
		Type:                   messages.StopCheckedIn,
		JourneyID:              j.ID,
		StopID:                 &stop.ID,
		OccurredAt:             now,
		NewDelayMinutes:        &newDelay,
		CumulativeDelayMinutes: &j.CumulativeDelayMinutes,
	})

	s.maybeAutoReplan(j, stop, prevCumulative, now)
	return j, nil
}

func (s *Service) Complete(ctx context.Context, journeyID, stopID uint64, proof models.Proof, at *geo.Point) (*models.Journey, error) {
	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	if j.State != models.JourneyInProgress {
		return nil, faults.New(faults.InvalidTransition, "cannot complete stop on journey in state %s", j.State)
	}
	stop := findStop(j, stopID)
	if stop == nil {
		return nil, faults.New(faults.InvalidTransition, "stop %d is not part of journey %d", stopID, journeyID)
	}
	if stop.State != models.StopInProgress {
		return nil, faults.New(faults.InvalidTransition, "cannot complete stop in state %s", stop.State)
	}
	if stop.SignatureRequired && (proof.SignatureRef == nil || *proof.SignatureRef == "") {
		return nil, faults.New(faults.MissingProof, "stop %d requires a signature", stopID)
	}
	if stop.PhotoRequired && len(proof.PhotoRefs) == 0 {
		return nil, faults.New(faults.MissingProof, "stop %d requires at least one photo", stopID)
	}

	now := s.now()
	prev := j.PlanVersion
	prevCumulative := j.CumulativeDelayMinutes

	stop.State = models.StopCompleted
	stop.CheckedOutAt = &now
	stop.SignatureRef = proof.SignatureRef
	stop.PhotoRefs = proof.PhotoRefs
	stop.Notes = proof.Notes
	stop.ReceiverName = proof.ReceiverName

	finished := s.advance(j, now)
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		Stops:       []*models.JourneyStop{stop},
		Audit:       s.audit(j, stop, at, now),
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, messages.JourneyEvent{Type: messages.StopCompleted, JourneyID: j.ID, StopID: &stop.ID, OccurredAt: now})
	if finished {
		s.publish(ctx, messages.JourneyEvent{Type: messages.JourneyFinished, JourneyID: j.ID, OccurredAt: now})
	}

	s.maybeAutoReplan(j, stop, prevCumulative, now)
	return j, nil
}

func (s *Service) Fail(ctx context.Context, journeyID, stopID uint64, reason string) (*models.Journey, error) {
	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	if j.State != models.JourneyInProgress {
		return nil, faults.New(faults.InvalidTransition, "cannot fail stop on journey in state %s", j.State)
	}
	stop := findStop(j, stopID)
	if stop == nil {
		return nil, faults.New(faults.InvalidTransition, "stop %d is not part of journey %d", stopID, journeyID)
	}
	if stop.State != models.StopInProgress {
		return nil, faults.New(faults.InvalidTransition, "cannot fail stop in state %s", stop.State)
	}
	if reason == "" {
		return nil, faults.New(faults.InvalidTransition, "failure reason is required")
	}

	now := s.now()
	prev := j.PlanVersion

	stop.State = models.StopFailed
	stop.CheckedOutAt = &now
	stop.FailureReason = &reason

	finished := s.advance(j, now)
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		Stops:       []*models.JourneyStop{stop},
		Audit:       s.audit(j, stop, nil, now),
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, messages.JourneyEvent{Type: messages.StopFailed, JourneyID: j.ID, StopID: &stop.ID, OccurredAt: now, FailureReason: &reason})
	if finished {
		s.publish(ctx, messages.JourneyEvent{Type: messages.JourneyFinished, JourneyID: j.ID, OccurredAt: now})
	}
	return j, nil
}

// Skip marks a pending stop as skipped without a visit. Administrative.
func (s *Service) Skip(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error) {
	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	if j.State.Terminal() {
		return nil, faults.New(faults.InvalidTransition, "cannot skip stop on journey in state %s", j.State)
	}
	stop := findStop(j, stopID)
	if stop == nil {
		return nil, faults.New(faults.InvalidTransition, "stop %d is not part of journey %d", stopID, journeyID)
	}
	if stop.State != models.StopPending {
		return nil, faults.New(faults.InvalidTransition, "cannot skip stop in state %s", stop.State)
	}

	now := s.now()
	prev := j.PlanVersion

	stop.State = models.StopSkipped

	finished := false
	if j.State == models.JourneyInProgress {
		finished = s.advance(j, now)
	}
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		Stops:       []*models.JourneyStop{stop},
		Audit:       s.audit(j, stop, nil, now),
	}); err != nil {
		return nil, err
	}

	if finished {
		s.publish(ctx, messages.JourneyEvent{Type: messages.JourneyFinished, JourneyID: j.ID, OccurredAt: now})
	}
	return j, nil
}

// Reset returns a failed or in-progress stop to pending and reverses the
// delay it contributed. Administrative.
func (s *Service) Reset(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error) {
	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	stop := findStop(j, stopID)
	if stop == nil {
		return nil, faults.New(faults.InvalidTransition, "stop %d is not part of journey %d", stopID, journeyID)
	}
	if stop.State != models.StopFailed && stop.State != models.StopInProgress {
		return nil, faults.New(faults.InvalidTransition, "cannot reset stop in state %s", stop.State)
	}

	now := s.now()
	prev := j.PlanVersion

	j.CumulativeDelayMinutes -= stop.NewDelayMinutes
	if j.CumulativeDelayMinutes < 0 {
		j.CumulativeDelayMinutes = 0
	}

	stop.State = models.StopPending
	stop.CheckedInAt = nil
	stop.CheckedOutAt = nil
	stop.NewDelayMinutes = 0
	stop.CumulativeDelayMinutes = 0
	stop.FailureReason = nil

	j.CurrentStopIndex = j.FirstNonTerminalIndex()
	if j.State == models.JourneyFinished {
		j.State = models.JourneyInProgress
		j.FinishedAt = nil
	}
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		Stops:       []*models.JourneyStop{stop},
		Audit:       s.audit(j, stop, nil, now),
	}); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *Service) SubmitDelayReason(ctx context.Context, journeyID, stopID uint64, category models.DelayCategory, reason string) (*models.Journey, error) {
	if !category.Valid() {
		return nil, faults.New(faults.InfeasibleInput, "unknown delay category %q", category)
	}

	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	stop := findStop(j, stopID)
	if stop == nil {
		return nil, faults.New(faults.InvalidTransition, "stop %d is not part of journey %d", stopID, journeyID)
	}
	// A reason is accepted only when the stop's own delay exceeds the
	// threshold; exactly at it is still not reportable.
	if stop.NewDelayMinutes <= s.cfg.DelayReasonThresholdMinutes {
		return nil, faults.New(faults.InvalidTransition,
			"stop %d delay %d min does not exceed the reporting threshold (%d min)",
			stopID, stop.NewDelayMinutes, s.cfg.DelayReasonThresholdMinutes)
	}

	now := s.now()
	prev := j.PlanVersion

	stop.DelayCategory = &category
	stop.DelayReason = &reason
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		Stops:       []*models.JourneyStop{stop},
		Audit:       s.audit(j, stop, nil, now),
	}); err != nil {
		return nil, err
	}
	return j, nil
}

type ReturnDetails struct {
	EndOdometer   *int64
	EndFuelPct    *float64
	ConditionNote *string
}

func (s *Service) CompleteWithReturnDetails(ctx context.Context, journeyID uint64, details ReturnDetails) (*models.Journey, error) {
	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	if j.State != models.JourneyFinished {
		return nil, faults.New(faults.InvalidTransition, "cannot complete journey in state %s", j.State)
	}

	now := s.now()
	prev := j.PlanVersion

	j.State = models.JourneyCompleted
	j.CompletedAt = &now
	j.EndOdometer = details.EndOdometer
	j.EndFuelPct = details.EndFuelPct
	j.VehicleConditionNote = details.ConditionNote
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		Audit:       s.audit(j, nil, nil, now),
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, messages.JourneyEvent{Type: messages.JourneyCompleted, JourneyID: j.ID, OccurredAt: now})
	return j, nil
}

func (s *Service) Cancel(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	switch j.State {
	case models.JourneyPreparing, models.JourneyInProgress, models.JourneyFinished:
	default:
		return nil, faults.New(faults.InvalidTransition, "cannot cancel journey in state %s", j.State)
	}

	now := s.now()
	prev := j.PlanVersion

	j.State = models.JourneyCancelled
	j.CancelledAt = &now
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		Audit:       s.audit(j, nil, nil, now),
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, messages.JourneyEvent{Type: messages.JourneyCancelled, JourneyID: j.ID, OccurredAt: now})
	return j, nil
}

func (s *Service) Archive(ctx context.Context, journeyID uint64) (*models.Journey, error) {
	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	if j.State != models.JourneyCompleted && j.State != models.JourneyCancelled {
		return nil, faults.New(faults.InvalidTransition, "cannot archive journey in state %s", j.State)
	}

	now := s.now()
	prev := j.PlanVersion

	j.State = models.JourneyArchived
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		Audit:       s.audit(j, nil, nil, now),
	}); err != nil {
		return nil, err
	}
	return j, nil
}

type AddStopInput struct {
	CustomerID     uint64
	Lat            float64
	Lng            float64
	ServiceMinutes int
	Priority       models.Priority
}

// AddStop appends a pending stop to a running journey; the next replan
// places it properly.
func (s *Service) AddStop(ctx context.Context, journeyID uint64, in AddStopInput) (*models.Journey, error) {
	if in.ServiceMinutes < 0 {
		return nil, faults.New(faults.InfeasibleInput, "service time must not be negative")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, faults.New(faults.InfeasibleInput, "unknown priority %q", in.Priority)
	}

	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	if j.State != models.JourneyInProgress {
		return nil, faults.New(faults.InvalidTransition, "cannot add stop to journey in state %s", j.State)
	}

	now := s.now()
	prev := j.PlanVersion

	stop := &models.JourneyStop{
		JourneyID:      j.ID,
		CustomerID:     in.CustomerID,
		OrderIndex:     len(j.Stops),
		Lat:            in.Lat,
		Lng:            in.Lng,
		Priority:       in.Priority,
		ServiceMinutes: in.ServiceMinutes,
		State:          models.StopPending,
	}
	j.Stops = append(j.Stops, stop)
	j.CurrentStopIndex = j.FirstNonTerminalIndex()
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:     j,
		PrevVersion: prev,
		InsertStop:  stop,
		Audit:       s.audit(j, nil, nil, now),
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, messages.JourneyEvent{Type: messages.StopAdded, JourneyID: j.ID, StopID: &stop.ID, OccurredAt: now})
	s.replanAsync(j.ID, "stop added")
	return j, nil
}

// RemoveStop drops a pending stop and renumbers the rest. ETAs are left
// as they are until the next replan.
func (s *Service) RemoveStop(ctx context.Context, journeyID, stopID uint64) (*models.Journey, error) {
	release := s.locks.Acquire(journeyID)
	defer release()

	j, err := s.repo.GetJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	if j.State.Terminal() {
		return nil, faults.New(faults.InvalidTransition, "cannot remove stop from journey in state %s", j.State)
	}
	stop := findStop(j, stopID)
	if stop == nil {
		return nil, faults.New(faults.InvalidTransition, "stop %d is not part of journey %d", stopID, journeyID)
	}
	if stop.State != models.StopPending {
		return nil, faults.New(faults.InvalidTransition, "cannot remove stop in state %s", stop.State)
	}

	now := s.now()
	prev := j.PlanVersion

	kept := make([]*models.JourneyStop, 0, len(j.Stops)-1)
	for _, st := range j.Stops {
		if st.ID == stopID {
			continue
		}
		st.OrderIndex = len(kept)
		kept = append(kept, st)
	}
	j.Stops = kept
	j.CurrentStopIndex = j.FirstNonTerminalIndex()
	j.PlanVersion++

	if err := s.repo.ApplyJourneyTransition(ctx, pgroutes.TransitionUpdate{
		Journey:      j,
		PrevVersion:  prev,
		Stops:        kept,
		DeleteStopID: stopID,
		Audit:        s.audit(j, nil, nil, now),
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, messages.JourneyEvent{Type: messages.StopRemoved, JourneyID: j.ID, StopID: &stopID, OccurredAt: now})
	return j, nil
}

// advance moves currentStopIndex past terminal stops; when nothing is
// left the journey waits for return details in FINISHED.
func (s *Service) advance(j *models.Journey, now time.Time) (finished bool) {
	j.CurrentStopIndex = j.FirstNonTerminalIndex()
	if j.CurrentStopIndex >= len(j.Stops) && j.State == models.JourneyInProgress {
		j.State = models.JourneyFinished
		j.FinishedAt = &now
		return true
	}
	return false
}

func (s *Service) maybeAutoReplan(j *models.Journey, stop *models.JourneyStop, prevCumulative int, now time.Time) {
	threshold := s.cfg.AutoReplanThresholdMinutes
	if threshold <= 0 {
		return
	}
	if prevCumulative >= threshold || j.CumulativeDelayMinutes < threshold {
		return
	}

	s.publish(context.Background(), messages.JourneyEvent{
		Type:                   messages.DelayThresholdCrossed,
		JourneyID:              j.ID,
		StopID:                 &stop.ID,
		OccurredAt:             now,
		CumulativeDelayMinutes: &j.CumulativeDelayMinutes,
	})
	s.replanAsync(j.ID, "delay threshold crossed")
}

// replanAsync fires a replan without holding the journey lock; failures
// are logged and the journey keeps its current plan.
func (s *Service) replanAsync(journeyID uint64, cause string) {
	if s.replanner == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.replanner.Replan(ctx, journeyID, nil); err != nil {
			s.log.Warn("automatic replan failed",
				slog.Uint64("journey_id", journeyID),
				slog.String("cause", cause),
				slog.Any("error", err))
		}
	}()
}

func (s *Service) audit(j *models.Journey, stop *models.JourneyStop, at *geo.Point, now time.Time) *models.JourneyStatus {
	ev := &models.JourneyStatus{
		CorrelationID: uuid.NewString(),
		JourneyID:     j.ID,
		JourneyState:  j.State,
		RecordedAt:    now,
	}
	if stop != nil {
		ev.StopID = &stop.ID
		st := stop.State
		ev.StopState = &st
		ev.FailureReason = stop.FailureReason
		if stop.State == models.StopCompleted {
			if stop.SignatureRef != nil {
				ev.ProofURLs = append(ev.ProofURLs, *stop.SignatureRef)
			}
			ev.ProofURLs = append(ev.ProofURLs, stop.PhotoRefs...)
		}
	}
	if at != nil {
		ev.Lat = &at.Lat
		ev.Lng = &at.Lng
	}
	return ev
}

func (s *Service) publish(ctx context.Context, ev messages.JourneyEvent) {
	if s.producer == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("marshal journey event", slog.Any("error", err))
		return
	}
	key := []byte(fmt.Sprintf("%d", ev.JourneyID))
	if err := s.producer.Publish(ctx, s.cfg.EventsTopic, key, b); err != nil {
		s.log.Warn("publish journey event",
			slog.String("type", string(ev.Type)),
			slog.Uint64("journey_id", ev.JourneyID),
			slog.Any("error", err))
	}
}

func findStop(j *models.Journey, stopID uint64) *models.JourneyStop {
	for _, st := range j.Stops {
		if st.ID == stopID {
			return st
		}
	}
	return nil
}
