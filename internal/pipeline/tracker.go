package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
	"github.com/NehoraiHadad/podcasto-engine/internal/metrics"
)

// failureCodes maps a stage to its stage-specific failure code.
var failureCodes = map[domain.Stage]string{
	domain.StageIngestion: "ingestion_failed",
	domain.StageScript:    "script_failed",
	domain.StageImage:     "image_failed",
	domain.StageAudio:     "audio_failed",
	domain.StagePublish:   "publish_failed",
}

// FailureCode returns the failure code for a stage.
func FailureCode(stage domain.Stage) string {
	if code, ok := failureCodes[stage]; ok {
		return code
	}
	return "processing_failed"
}

const maxErrorDetail = 1000

// Tracker records start/complete/fail telemetry per pipeline stage. It
// observes the pipeline without driving it: database failures are logged and
// reported as a boolean, never raised into the caller, and it never triggers
// retries itself.
//
// Concurrent calls for the same (episode, stage) pair race on the
// find-then-finalize sequence; last write wins. Accepted tradeoff given low
// expected concurrency per episode.
type Tracker struct {
	logs     storage.ProcessingLogRepository
	episodes storage.EpisodeRepository
	log      *slog.Logger
}

// NewTracker creates a stage tracker.
func NewTracker(logs storage.ProcessingLogRepository, episodes storage.EpisodeRepository) *Tracker {
	return &Tracker{
		logs:     logs,
		episodes: episodes,
		log:      slog.Default().With("component", "tracker"),
	}
}

// LogStageStart inserts a started record and updates the episode's
// denormalized current-stage pointer. The processing-start timestamp is set
// only if unset, so the first stage wins.
func (t *Tracker) LogStageStart(ctx context.Context, episodeID string, stage domain.Stage) bool {
	now := time.Now().UTC()

	// A start without an intervening finalize (lost bookkeeping) would leave
	// two open records for the pair; close the stale one first.
	if open, err := t.logs.FindOpen(ctx, episodeID, stage); err == nil && open != nil {
		duration := now.Sub(open.StartedAt).Milliseconds()
		if duration < 0 {
			duration = 0
		}
		open.Status = domain.LogStatusFailed
		open.CompletedAt = &now
		open.DurationMS = &duration
		open.ErrorCode = "superseded"
		open.ErrorDetail = "closed by a newer start for the same stage"
		if err := t.logs.Finalize(ctx, open); err != nil {
			t.log.Warn("Failed to close superseded stage log", "episode_id", episodeID, "stage", stage, "error", err)
		}
	}

	attempt := 1
	if n, err := t.logs.CountAttempts(ctx, episodeID, stage); err == nil {
		attempt = n + 1
	}

	entry := &domain.ProcessingLog{
		ID:        uuid.NewString(),
		EpisodeID: episodeID,
		Stage:     stage,
		Attempt:   attempt,
		Status:    domain.LogStatusStarted,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := t.logs.Insert(ctx, entry); err != nil {
		t.log.Error("Failed to log stage start", "episode_id", episodeID, "stage", stage, "error", err)
		return false
	}

	// The pointer updates are advisory; the log row above is the record.
	if err := t.episodes.SetCurrentStage(ctx, episodeID, stage); err != nil {
		t.log.Warn("Failed to update current stage", "episode_id", episodeID, "stage", stage, "error", err)
	}
	if err := t.episodes.UpdateStatus(ctx, episodeID, domain.EpisodeStatusProcessing); err != nil {
		t.log.Warn("Failed to update episode status", "episode_id", episodeID, "error", err)
	}
	if err := t.episodes.SetProcessingStartedAt(ctx, episodeID, now); err != nil {
		t.log.Warn("Failed to set processing start", "episode_id", episodeID, "error", err)
	}

	return true
}

// LogStageComplete finalizes the most recent open started record for the
// (episode, stage) pair. If no start was logged, a synthetic completed record
// is inserted instead.
func (t *Tracker) LogStageComplete(ctx context.Context, episodeID string, stage domain.Stage) bool {
	return t.finalize(ctx, episodeID, stage, domain.LogStatusCompleted, "", "")
}

// LogStageFailure finalizes the most recent open started record with failed
// status and the stage-specific failure code, then marks the episode failed.
// Failures are always persisted, never swallowed.
func (t *Tracker) LogStageFailure(ctx context.Context, episodeID string, stage domain.Stage, cause error) bool {
	detail := ""
	if cause != nil {
		detail = cause.Error()
		if len(detail) > maxErrorDetail {
			detail = detail[:maxErrorDetail]
		}
	}

	code := FailureCode(stage)
	ok := t.finalize(ctx, episodeID, stage, domain.LogStatusFailed, code, detail)

	if err := t.episodes.UpdateStatus(ctx, episodeID, domain.EpisodeStatusFailed); err != nil {
		t.log.Warn("Failed to mark episode failed", "episode_id", episodeID, "error", err)
	}

	metrics.StageFailures.WithLabelValues(string(stage), code).Inc()
	return ok
}

func (t *Tracker) finalize(ctx context.Context, episodeID string, stage domain.Stage, status domain.LogStatus, code, detail string) bool {
	now := time.Now().UTC()

	open, err := t.logs.FindOpen(ctx, episodeID, stage)
	if err != nil {
		t.log.Error("Failed to find open stage log", "episode_id", episodeID, "stage", stage, "error", err)
		return false
	}

	if open != nil {
		duration := now.Sub(open.StartedAt).Milliseconds()
		if duration < 0 {
			duration = 0
		}
		open.Status = status
		open.CompletedAt = &now
		open.DurationMS = &duration
		open.ErrorCode = code
		open.ErrorDetail = detail
		if err := t.logs.Finalize(ctx, open); err != nil {
			t.log.Error("Failed to finalize stage log", "episode_id", episodeID, "stage", stage, "error", err)
			return false
		}
		if status == domain.LogStatusCompleted {
			metrics.StageDuration.WithLabelValues(string(stage)).Observe(float64(duration) / 1000)
		}
		return true
	}

	// Start was never logged (lost bookkeeping, e.g. a crash). Insert the
	// terminal record directly as a best-effort fallback.
	attempt := 1
	if n, countErr := t.logs.CountAttempts(ctx, episodeID, stage); countErr == nil {
		attempt = n + 1
	}
	duration := int64(0)
	entry := &domain.ProcessingLog{
		ID:          uuid.NewString(),
		EpisodeID:   episodeID,
		Stage:       stage,
		Attempt:     attempt,
		Status:      status,
		StartedAt:   now,
		CompletedAt: &now,
		DurationMS:  &duration,
		ErrorCode:   code,
		ErrorDetail: detail,
		CreatedAt:   now,
	}
	if err := t.logs.Insert(ctx, entry); err != nil {
		t.log.Error("Failed to insert synthetic stage log", "episode_id", episodeID, "stage", stage, "error", err)
		return false
	}
	return true
}
