package domain

import "time"

// LogStatus is the state of one processing log entry.
type LogStatus string

const (
	LogStatusStarted   LogStatus = "started"
	LogStatusCompleted LogStatus = "completed"
	LogStatusFailed    LogStatus = "failed"
)

// ProcessingLog records one attempt of one stage for one episode.
// At most one started entry per (episode, stage) is open at a time;
// completion and failure target the most recent open entry.
type ProcessingLog struct {
	ID          string
	EpisodeID   string
	Stage       Stage
	Attempt     int
	Status      LogStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	DurationMS  *int64
	ErrorCode   string
	ErrorDetail string
	CreatedAt   time.Time
}
