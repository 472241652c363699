package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage/memory"
)

func trackerFixture(t *testing.T) (*Tracker, *memory.MemoryStorage) {
	t.Helper()
	store := memory.NewMemoryStorage()
	episodes := memory.NewEpisodeRepo(store)
	if err := episodes.Create(context.Background(), &domain.Episode{
		ID:     "ep-1",
		Title:  "Test",
		Status: domain.EpisodeStatusPending,
	}); err != nil {
		t.Fatalf("Create episode failed: %v", err)
	}
	return NewTracker(memory.NewProcessingLogRepo(store), episodes), store
}

func TestFailureCode(t *testing.T) {
	tests := []struct {
		stage  domain.Stage
		expect string
	}{
		{domain.StageIngestion, "ingestion_failed"},
		{domain.StageScript, "script_failed"},
		{domain.StageImage, "image_failed"},
		{domain.StageAudio, "audio_failed"},
		{domain.StagePublish, "publish_failed"},
		{domain.Stage("mystery"), "processing_failed"},
	}
	for _, tt := range tests {
		if got := FailureCode(tt.stage); got != tt.expect {
			t.Errorf("FailureCode(%s) = %q, want %q", tt.stage, got, tt.expect)
		}
	}
}

func TestTracker_StartThenComplete(t *testing.T) {
	tracker, store := trackerFixture(t)
	ctx := context.Background()
	logs := memory.NewProcessingLogRepo(store)
	episodes := memory.NewEpisodeRepo(store)

	if !tracker.LogStageStart(ctx, "ep-1", domain.StageScript) {
		t.Fatal("LogStageStart returned false")
	}

	ep, err := episodes.GetByID(ctx, "ep-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if ep.CurrentStage != domain.StageScript {
		t.Errorf("current stage = %s, want script", ep.CurrentStage)
	}
	if ep.Status != domain.EpisodeStatusProcessing {
		t.Errorf("status = %s, want processing", ep.Status)
	}
	if ep.ProcessingStartedAt == nil {
		t.Error("processing_started_at not set")
	}

	if !tracker.LogStageComplete(ctx, "ep-1", domain.StageScript) {
		t.Fatal("LogStageComplete returned false")
	}

	entries, err := logs.ListByEpisode(ctx, "ep-1")
	if err != nil {
		t.Fatalf("ListByEpisode failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Status != domain.LogStatusCompleted {
		t.Errorf("status = %s, want completed", entry.Status)
	}
	if entry.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if entry.DurationMS == nil || *entry.DurationMS < 0 {
		t.Error("expected non-negative duration")
	}
	if entry.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", entry.Attempt)
	}
}

func TestTracker_ProcessingStartedAtFirstStageWins(t *testing.T) {
	tracker, store := trackerFixture(t)
	ctx := context.Background()
	episodes := memory.NewEpisodeRepo(store)

	tracker.LogStageStart(ctx, "ep-1", domain.StageScript)
	ep1, _ := episodes.GetByID(ctx, "ep-1")
	first := *ep1.ProcessingStartedAt

	time.Sleep(5 * time.Millisecond)
	tracker.LogStageComplete(ctx, "ep-1", domain.StageScript)
	tracker.LogStageStart(ctx, "ep-1", domain.StageAudio)

	ep2, _ := episodes.GetByID(ctx, "ep-1")
	if !ep2.ProcessingStartedAt.Equal(first) {
		t.Errorf("processing_started_at moved from %s to %s", first, ep2.ProcessingStartedAt)
	}
}

func TestTracker_FailureSetsCodeAndEpisodeStatus(t *testing.T) {
	tracker, store := trackerFixture(t)
	ctx := context.Background()
	logs := memory.NewProcessingLogRepo(store)
	episodes := memory.NewEpisodeRepo(store)

	tracker.LogStageStart(ctx, "ep-1", domain.StageScript)
	if !tracker.LogStageFailure(ctx, "ep-1", domain.StageScript, errors.New("model refused")) {
		t.Fatal("LogStageFailure returned false")
	}

	entries, _ := logs.ListByEpisode(ctx, "ep-1")
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Status != domain.LogStatusFailed {
		t.Errorf("status = %s, want failed", entries[0].Status)
	}
	if entries[0].ErrorCode != "script_failed" {
		t.Errorf("error code = %q, want script_failed", entries[0].ErrorCode)
	}
	if entries[0].ErrorDetail != "model refused" {
		t.Errorf("error detail = %q", entries[0].ErrorDetail)
	}

	ep, _ := episodes.GetByID(ctx, "ep-1")
	if ep.Status != domain.EpisodeStatusFailed {
		t.Errorf("episode status = %s, want failed", ep.Status)
	}
}

func TestTracker_FailureWithoutStartInsertsSyntheticRecord(t *testing.T) {
	tracker, store := trackerFixture(t)
	ctx := context.Background()
	logs := memory.NewProcessingLogRepo(store)

	if !tracker.LogStageFailure(ctx, "ep-1", domain.StageAudio, errors.New("no audio")) {
		t.Fatal("LogStageFailure returned false")
	}

	entries, _ := logs.ListByEpisode(ctx, "ep-1")
	if len(entries) != 1 {
		t.Fatalf("expected synthetic entry, got %d entries", len(entries))
	}
	entry := entries[0]
	if entry.Status != domain.LogStatusFailed {
		t.Errorf("status = %s, want failed", entry.Status)
	}
	if entry.ErrorCode != "audio_failed" {
		t.Errorf("error code = %q, want audio_failed", entry.ErrorCode)
	}
	if entry.CompletedAt == nil || entry.DurationMS == nil {
		t.Error("synthetic entry must be terminal")
	}
}

func TestTracker_ErrorDetailTruncated(t *testing.T) {
	tracker, store := trackerFixture(t)
	ctx := context.Background()
	logs := memory.NewProcessingLogRepo(store)

	tracker.LogStageStart(ctx, "ep-1", domain.StageScript)
	tracker.LogStageFailure(ctx, "ep-1", domain.StageScript, errors.New(strings.Repeat("x", 5000)))

	entries, _ := logs.ListByEpisode(ctx, "ep-1")
	if len(entries[0].ErrorDetail) != maxErrorDetail {
		t.Errorf("detail length = %d, want %d", len(entries[0].ErrorDetail), maxErrorDetail)
	}
}

func TestTracker_NoOpenRecordAfterFinalize(t *testing.T) {
	tracker, store := trackerFixture(t)
	ctx := context.Background()
	logs := memory.NewProcessingLogRepo(store)

	tracker.LogStageStart(ctx, "ep-1", domain.StageAudio)
	tracker.LogStageComplete(ctx, "ep-1", domain.StageAudio)

	open, err := logs.FindOpen(ctx, "ep-1", domain.StageAudio)
	if err != nil {
		t.Fatalf("FindOpen failed: %v", err)
	}
	if open != nil {
		t.Errorf("open record remains after completion: %+v", open)
	}
}

func TestTracker_SecondStartClosesStaleOpenRecord(t *testing.T) {
	tracker, store := trackerFixture(t)
	ctx := context.Background()
	logs := memory.NewProcessingLogRepo(store)

	tracker.LogStageStart(ctx, "ep-1", domain.StageScript)
	tracker.LogStageStart(ctx, "ep-1", domain.StageScript)

	entries, err := logs.ListByEpisode(ctx, "ep-1")
	if err != nil {
		t.Fatalf("ListByEpisode failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	var openCount int
	for _, entry := range entries {
		if entry.Status == domain.LogStatusStarted {
			openCount++
			continue
		}
		if entry.Status != domain.LogStatusFailed || entry.ErrorCode != "superseded" {
			t.Errorf("stale entry status = %s code = %q, want failed/superseded", entry.Status, entry.ErrorCode)
		}
		if entry.CompletedAt == nil {
			t.Error("stale entry not terminal")
		}
	}
	if openCount != 1 {
		t.Errorf("open records = %d, want 1", openCount)
	}

	open, err := logs.FindOpen(ctx, "ep-1", domain.StageScript)
	if err != nil {
		t.Fatalf("FindOpen failed: %v", err)
	}
	if open == nil || open.Attempt != 2 {
		t.Errorf("open record = %+v, want attempt 2", open)
	}
}

func TestTracker_AttemptsIncrement(t *testing.T) {
	tracker, store := trackerFixture(t)
	ctx := context.Background()
	logs := memory.NewProcessingLogRepo(store)

	tracker.LogStageStart(ctx, "ep-1", domain.StageScript)
	tracker.LogStageFailure(ctx, "ep-1", domain.StageScript, errors.New("boom"))
	tracker.LogStageStart(ctx, "ep-1", domain.StageScript)
	tracker.LogStageComplete(ctx, "ep-1", domain.StageScript)

	entries, _ := logs.ListByEpisode(ctx, "ep-1")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Attempt != 1 || entries[1].Attempt != 2 {
		t.Errorf("attempts = %d, %d, want 1, 2", entries[0].Attempt, entries[1].Attempt)
	}
}

// brokenLogRepo fails every operation, to prove the tracker only reports.
type brokenLogRepo struct{}

func (brokenLogRepo) Insert(context.Context, *domain.ProcessingLog) error { return errors.New("db down") }
func (brokenLogRepo) FindOpen(context.Context, string, domain.Stage) (*domain.ProcessingLog, error) {
	return nil, errors.New("db down")
}
func (brokenLogRepo) Finalize(context.Context, *domain.ProcessingLog) error {
	return errors.New("db down")
}
func (brokenLogRepo) ListByEpisode(context.Context, string) ([]*domain.ProcessingLog, error) {
	return nil, errors.New("db down")
}
func (brokenLogRepo) CountAttempts(context.Context, string, domain.Stage) (int, error) {
	return 0, errors.New("db down")
}

var _ storage.ProcessingLogRepository = brokenLogRepo{}

func TestTracker_NeverPanicsOnStorageFailure(t *testing.T) {
	store := memory.NewMemoryStorage()
	tracker := NewTracker(brokenLogRepo{}, memory.NewEpisodeRepo(store))
	ctx := context.Background()

	if tracker.LogStageStart(ctx, "ep-1", domain.StageScript) {
		t.Error("expected false when insert fails")
	}
	if tracker.LogStageComplete(ctx, "ep-1", domain.StageScript) {
		t.Error("expected false when lookup fails")
	}
	if tracker.LogStageFailure(ctx, "ep-1", domain.StageScript, errors.New("x")) {
		t.Error("expected false when lookup fails")
	}
}
