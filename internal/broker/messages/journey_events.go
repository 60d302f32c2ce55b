package messages

import "time"

// Event types published to the journey events topic. Delivery is
// fire-and-forget: a missed event never blocks a state transition.
type JourneyEventType string

const (
	JourneyStarted        JourneyEventType = "journey.started"
	JourneyFinished       JourneyEventType = "journey.finished"
	JourneyCompleted      JourneyEventType = "journey.completed"
	JourneyCancelled      JourneyEventType = "journey.cancelled"
	JourneyReoptimized    JourneyEventType = "journey.reoptimized"
	StopCheckedIn         JourneyEventType = "stop.checked_in"
	StopCompleted         JourneyEventType = "stop.completed"
	StopFailed            JourneyEventType = "stop.failed"
	StopAdded             JourneyEventType = "stop.added"
	StopRemoved           JourneyEventType = "stop.removed"
	DelayThresholdCrossed JourneyEventType = "delay.threshold_crossed"
)

type JourneyEvent struct {
	Type       JourneyEventType `json:"type"`
	JourneyID  uint64           `json:"journey_id"`
	StopID     *uint64          `json:"stop_id,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`

	NewDelayMinutes        *int `json:"new_delay_minutes,omitempty"`
	CumulativeDelayMinutes *int `json:"cumulative_delay_minutes,omitempty"`

	FailureReason *string `json:"failure_reason,omitempty"`
}
