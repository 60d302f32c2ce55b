package messages

import "time"

// DriverPosition is published by the driver app while a journey runs.
// The latest position per journey becomes the origin for replanning.
type DriverPosition struct {
	JourneyID  uint64    `json:"journey_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}
