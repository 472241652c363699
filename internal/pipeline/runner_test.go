package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NehoraiHadad/podcasto-engine/internal/billing"
	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/ai"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage/memory"
)

type stubText struct {
	err   error
	calls int
}

func (s *stubText) Name() string { return "stub-text" }
func (s *stubText) GenerateText(ctx context.Context, req ai.TextRequest) (*ai.TextResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ai.TextResult{
		Text:  "Welcome to the show.",
		Usage: ai.Usage{PromptTokens: 200, CompletionTokens: 800, TotalTokens: 1000},
	}, nil
}

type stubImage struct{ calls int }

func (s *stubImage) Name() string { return "stub-image" }
func (s *stubImage) GenerateImage(ctx context.Context, req ai.ImageRequest) (*ai.ImageResult, error) {
	s.calls++
	return &ai.ImageResult{Data: []byte("png"), MimeType: "image/png", Usage: ai.Usage{Images: 1}}, nil
}

type stubTTS struct{ calls int }

func (s *stubTTS) Name() string { return "stub-tts" }
func (s *stubTTS) Synthesize(ctx context.Context, req ai.SpeechRequest) (*ai.SpeechResult, error) {
	s.calls++
	return &ai.SpeechResult{
		Audio:    []byte("mp3"),
		MimeType: "audio/mpeg",
		Usage:    ai.Usage{Characters: int64(len(req.Text))},
	}, nil
}

type stubStore struct{ keys []string }

func (s *stubStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.keys = append(s.keys, key)
	return nil
}

type runnerFixture struct {
	runner *Runner
	store  *memory.MemoryStorage
	text   *stubText
	image  *stubImage
	tts    *stubTTS
	blobs  *stubStore
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	store.SeedPrice(&domain.ServicePrice{
		Service: "gemini-text", Unit: "token",
		UnitPrice:     decimal.RequireFromString("0.00000075"),
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	episodes := memory.NewEpisodeRepo(store)
	if err := episodes.Create(context.Background(), &domain.Episode{
		ID: "ep-1", PodcastID: "pod-1", UserID: "u-1", Title: "Go Concurrency",
		Status: domain.EpisodeStatusPending,
	}); err != nil {
		t.Fatalf("Create episode failed: %v", err)
	}

	events := memory.NewCostEventRepo(store)
	f := &runnerFixture{
		store: store,
		text:  &stubText{},
		image: &stubImage{},
		tts:   &stubTTS{},
		blobs: &stubStore{},
	}
	f.runner = NewRunner(RunnerConfig{
		Episodes:   episodes,
		Tracker:    NewTracker(memory.NewProcessingLogRepo(store), episodes),
		Recorder:   billing.NewRecorder(events, memory.NewPriceRepo(store), true),
		Aggregator: billing.NewAggregator(events, memory.NewSummaryRepo(store)),
		Text:       []ai.TextGenerator{f.text},
		Image:      []ai.ImageGenerator{f.image},
		TTS:        []ai.SpeechSynthesizer{f.tts},
		Store:      f.blobs,
		Policy: ai.Policy{
			MaxAttempts: 2, InitialDelay: time.Millisecond,
			MaxDelay: 5 * time.Millisecond, BackoffMultiple: 2,
		},
	})
	return f
}

func TestRunner_ProcessCompletesAllStages(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	if err := f.runner.Process(ctx, "ep-1"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	ep, err := memory.NewEpisodeRepo(f.store).GetByID(ctx, "ep-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if ep.Status != domain.EpisodeStatusCompleted {
		t.Errorf("status = %s, want completed", ep.Status)
	}

	if f.text.calls != 1 || f.image.calls != 1 || f.tts.calls != 1 {
		t.Errorf("provider calls = %d/%d/%d, want 1/1/1", f.text.calls, f.image.calls, f.tts.calls)
	}
	if len(f.blobs.keys) != 2 {
		t.Errorf("expected audio and cover uploads, got %v", f.blobs.keys)
	}

	// Script tokens priced at the seeded rate; the rest fall back to zero.
	events, _ := memory.NewCostEventRepo(f.store).ListByEpisode(ctx, "ep-1")
	var scriptCost decimal.Decimal
	for _, ev := range events {
		if ev.Service == "gemini-text" {
			scriptCost = ev.TotalCost
		}
	}
	if !scriptCost.Equal(decimal.RequireFromString("0.00075")) {
		t.Errorf("script cost = %s, want 0.00075", scriptCost)
	}

	// Aggregation ran after completion.
	summary, err := memory.NewSummaryRepo(f.store).GetEpisode(ctx, "ep-1")
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if summary == nil {
		t.Fatal("expected episode summary after processing")
	}
	if summary.EventCount != int64(len(events)) {
		t.Errorf("summary event count = %d, want %d", summary.EventCount, len(events))
	}

	// Every stage the runner drives reached completed.
	logs, _ := memory.NewProcessingLogRepo(f.store).ListByEpisode(ctx, "ep-1")
	completed := make(map[domain.Stage]bool)
	for _, l := range logs {
		if l.Status == domain.LogStatusCompleted {
			completed[l.Stage] = true
		}
	}
	for _, stage := range []domain.Stage{domain.StageScript, domain.StageImage, domain.StageAudio, domain.StagePublish} {
		if !completed[stage] {
			t.Errorf("stage %s never completed", stage)
		}
	}
}

func TestRunner_ScriptFailureStopsEpisode(t *testing.T) {
	f := newRunnerFixture(t)
	f.text.err = &ai.APIError{Provider: "gemini", StatusCode: 400, Message: "prompt rejected"}
	ctx := context.Background()

	if err := f.runner.Process(ctx, "ep-1"); err == nil {
		t.Fatal("expected Process to fail")
	}

	if f.tts.calls != 0 || f.image.calls != 0 {
		t.Errorf("later stages ran after script failure: image=%d tts=%d", f.image.calls, f.tts.calls)
	}

	ep, _ := memory.NewEpisodeRepo(f.store).GetByID(ctx, "ep-1")
	if ep.Status != domain.EpisodeStatusFailed {
		t.Errorf("status = %s, want failed", ep.Status)
	}

	logs, _ := memory.NewProcessingLogRepo(f.store).ListByEpisode(ctx, "ep-1")
	found := false
	for _, l := range logs {
		if l.Stage == domain.StageScript && l.Status == domain.LogStatusFailed {
			found = true
			if l.ErrorCode != "script_failed" {
				t.Errorf("error code = %q, want script_failed", l.ErrorCode)
			}
		}
	}
	if !found {
		t.Error("no failed script log entry")
	}
}

func TestRunner_TransientScriptErrorRetries(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	attempts := 0
	f.text.err = nil
	retrying := &retryOnceText{inner: f.text, attempts: &attempts}
	f.runner.text = []ai.TextGenerator{retrying}

	if err := f.runner.Process(ctx, "ep-1"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 text attempts (1 retry), got %d", attempts)
	}
}

type retryOnceText struct {
	inner    ai.TextGenerator
	attempts *int
}

func (r *retryOnceText) Name() string { return r.inner.Name() }
func (r *retryOnceText) GenerateText(ctx context.Context, req ai.TextRequest) (*ai.TextResult, error) {
	*r.attempts++
	if *r.attempts == 1 {
		return nil, &ai.APIError{Provider: "gemini", StatusCode: 429, Message: "slow down"}
	}
	return r.inner.GenerateText(ctx, req)
}

func TestRunner_FailsOverToFallbackTextProvider(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	primary := &stubText{err: &ai.APIError{Provider: "gemini", StatusCode: 503, Message: "backend overloaded"}}
	fallback := &stubText{}
	f.runner.text = []ai.TextGenerator{primary, fallback}

	if err := f.runner.Process(ctx, "ep-1"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Primary retried to exhaustion before the chain moved on.
	if primary.calls != f.runner.policy.MaxAttempts {
		t.Errorf("primary calls = %d, want %d", primary.calls, f.runner.policy.MaxAttempts)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}

	ep, _ := memory.NewEpisodeRepo(f.store).GetByID(ctx, "ep-1")
	if ep.Status != domain.EpisodeStatusCompleted {
		t.Errorf("status = %s, want completed", ep.Status)
	}
}

func TestRunner_FatalErrorSkipsFallback(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	primary := &stubText{err: &ai.APIError{Provider: "gemini", StatusCode: 400, Message: "prompt rejected"}}
	fallback := &stubText{}
	f.runner.text = []ai.TextGenerator{primary, fallback}

	if err := f.runner.Process(ctx, "ep-1"); err == nil {
		t.Fatal("expected Process to fail")
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback ran after a fatal error: %d calls", fallback.calls)
	}
}

func TestRunner_UnknownEpisode(t *testing.T) {
	f := newRunnerFixture(t)
	if err := f.runner.Process(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown episode")
	}
}
