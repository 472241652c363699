package domain

import "time"

// EpisodeStatus is the overall lifecycle state of an episode.
type EpisodeStatus string

const (
	EpisodeStatusPending    EpisodeStatus = "pending"
	EpisodeStatusProcessing EpisodeStatus = "processing"
	EpisodeStatusCompleted  EpisodeStatus = "completed"
	EpisodeStatusFailed     EpisodeStatus = "failed"
)

// Stage is a named phase of episode processing.
type Stage string

const (
	StageIngestion Stage = "ingestion"
	StageScript    Stage = "script"
	StageImage     Stage = "image"
	StageAudio     Stage = "audio"
	StagePublish   Stage = "publish"
)

// Episode represents one generated podcast episode.
// CurrentStage is a denormalized pointer updated alongside each processing
// log write; the log table is the source of truth.
type Episode struct {
	ID                  string
	PodcastID           string
	UserID              string
	Title               string
	Status              EpisodeStatus
	CurrentStage        Stage
	ProcessingStartedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
