package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NehoraiHadad/podcasto-engine/internal/billing"
	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/ai"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
	"github.com/NehoraiHadad/podcasto-engine/internal/metrics"
)

// JobQueue feeds episodes to the runner and coordinates aggregation across
// engine instances.
type JobQueue interface {
	DequeueEpisode(ctx context.Context) (string, bool, error)
	AcquireAggregationLock(ctx context.Context, episodeID string, ttl time.Duration) (bool, error)
	ReleaseAggregationLock(ctx context.Context, episodeID string) error
}

// ArtifactStore persists generated episode artifacts.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

const aggregationLockTTL = 2 * time.Minute

// Runner consumes queued episodes and executes the generation stages:
// script, image, audio, publish. Each stage is bracketed by the tracker and
// each provider call records cost events from its usage metadata. Providers
// are ordered failover chains: retry lives inside each provider call, and
// when a provider exhausts its retries the next one in the chain is tried.
// A stage failure stops the episode.
type Runner struct {
	queue      JobQueue
	episodes   storage.EpisodeRepository
	tracker    *Tracker
	recorder   *billing.Recorder
	aggregator *billing.Aggregator
	text       []ai.TextGenerator
	image      []ai.ImageGenerator
	tts        []ai.SpeechSynthesizer
	store      ArtifactStore
	policy     ai.Policy
	poll       time.Duration
	log        *slog.Logger
}

// RunnerConfig holds runner construction parameters. Provider slices are
// tried in order.
type RunnerConfig struct {
	Queue      JobQueue
	Episodes   storage.EpisodeRepository
	Tracker    *Tracker
	Recorder   *billing.Recorder
	Aggregator *billing.Aggregator
	Text       []ai.TextGenerator
	Image      []ai.ImageGenerator
	TTS        []ai.SpeechSynthesizer
	Store      ArtifactStore
	Policy     ai.Policy
	Poll       time.Duration
}

// NewRunner creates an episode generation runner.
func NewRunner(cfg RunnerConfig) *Runner {
	poll := cfg.Poll
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Runner{
		queue:      cfg.Queue,
		episodes:   cfg.Episodes,
		tracker:    cfg.Tracker,
		recorder:   cfg.Recorder,
		aggregator: cfg.Aggregator,
		text:       cfg.Text,
		image:      cfg.Image,
		tts:        cfg.TTS,
		store:      cfg.Store,
		policy:     cfg.Policy,
		poll:       poll,
		log:        slog.Default().With("component", "runner"),
	}
}

// ProviderChains is the failover order per modality.
type ProviderChains struct {
	Text  []ai.TextGenerator
	Image []ai.ImageGenerator
	TTS   []ai.SpeechSynthesizer
}

// Providers reports the configured failover chains.
func (r *Runner) Providers() ProviderChains {
	return ProviderChains{Text: r.text, Image: r.image, TTS: r.tts}
}

// Start polls the job queue until the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if r.queue == nil {
		r.log.Info("No job queue configured, runner idle")
		return
	}

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

func (r *Runner) drain(ctx context.Context) {
	for {
		episodeID, found, err := r.queue.DequeueEpisode(ctx)
		if err != nil {
			r.log.Error("Failed to dequeue episode", "error", err)
			return
		}
		if !found {
			return
		}
		if err := r.Process(ctx, episodeID); err != nil {
			r.log.Error("Episode processing failed", "episode_id", episodeID, "error", err)
		}
	}
}

// Process runs all generation stages for one episode.
func (r *Runner) Process(ctx context.Context, episodeID string) error {
	ep, err := r.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return fmt.Errorf("failed to load episode %s: %w", episodeID, err)
	}

	script, err := r.runScript(ctx, ep)
	if err != nil {
		return r.fail(ep, domain.StageScript, err)
	}

	cover, err := r.runImage(ctx, ep, script)
	if err != nil {
		return r.fail(ep, domain.StageImage, err)
	}

	audio, err := r.runAudio(ctx, ep, script)
	if err != nil {
		return r.fail(ep, domain.StageAudio, err)
	}

	if err := r.runPublish(ctx, ep, audio, cover); err != nil {
		return r.fail(ep, domain.StagePublish, err)
	}

	if err := r.episodes.UpdateStatus(ctx, ep.ID, domain.EpisodeStatusCompleted); err != nil {
		r.log.Warn("Failed to mark episode completed", "episode_id", ep.ID, "error", err)
	}
	metrics.EpisodesProcessed.WithLabelValues(string(domain.EpisodeStatusCompleted)).Inc()

	r.aggregate(ctx, ep.ID)
	return nil
}

func (r *Runner) fail(ep *domain.Episode, stage domain.Stage, err error) error {
	metrics.EpisodesProcessed.WithLabelValues(string(domain.EpisodeStatusFailed)).Inc()
	return fmt.Errorf("stage %s: %w", stage, err)
}

func (r *Runner) runScript(ctx context.Context, ep *domain.Episode) (*ai.TextResult, error) {
	r.tracker.LogStageStart(ctx, ep.ID, domain.StageScript)

	req := ai.TextRequest{
		Prompt:       fmt.Sprintf("Write a podcast episode script titled %q.", ep.Title),
		SystemPrompt: "You are a podcast script writer. Produce a conversational script ready for narration.",
	}
	ops := make([]func(context.Context) (*ai.TextResult, error), 0, len(r.text))
	for _, gen := range r.text {
		ops = append(ops, func(ctx context.Context) (*ai.TextResult, error) {
			return gen.GenerateText(ctx, req)
		})
	}
	result, err := ai.First(ctx, r.policy, ops...)
	if err != nil {
		r.tracker.LogStageFailure(ctx, ep.ID, domain.StageScript, err)
		return nil, err
	}

	r.recorder.RecordBestEffort(ctx, billing.EventInput{
		Service:   "gemini-text",
		Quantity:  decimal.NewFromInt(result.Usage.TotalTokens),
		Unit:      "token",
		EpisodeID: ep.ID,
		PodcastID: ep.PodcastID,
		UserID:    ep.UserID,
		Metadata: map[string]any{
			"prompt_tokens":     result.Usage.PromptTokens,
			"completion_tokens": result.Usage.CompletionTokens,
		},
	})

	r.tracker.LogStageComplete(ctx, ep.ID, domain.StageScript)
	return result, nil
}

func (r *Runner) runImage(ctx context.Context, ep *domain.Episode, script *ai.TextResult) (*ai.ImageResult, error) {
	if len(r.image) == 0 {
		return nil, nil
	}
	r.tracker.LogStageStart(ctx, ep.ID, domain.StageImage)

	req := ai.ImageRequest{
		Prompt: fmt.Sprintf("Podcast cover art for an episode titled %q.", ep.Title),
	}
	ops := make([]func(context.Context) (*ai.ImageResult, error), 0, len(r.image))
	for _, gen := range r.image {
		ops = append(ops, func(ctx context.Context) (*ai.ImageResult, error) {
			return gen.GenerateImage(ctx, req)
		})
	}
	result, err := ai.First(ctx, r.policy, ops...)
	if err != nil {
		r.tracker.LogStageFailure(ctx, ep.ID, domain.StageImage, err)
		return nil, err
	}

	r.recorder.RecordBestEffort(ctx, billing.EventInput{
		Service:   "gemini-image",
		Quantity:  decimal.NewFromInt(result.Usage.Images),
		Unit:      "image",
		EpisodeID: ep.ID,
		PodcastID: ep.PodcastID,
		UserID:    ep.UserID,
	})

	r.tracker.LogStageComplete(ctx, ep.ID, domain.StageImage)
	return result, nil
}

func (r *Runner) runAudio(ctx context.Context, ep *domain.Episode, script *ai.TextResult) (*ai.SpeechResult, error) {
	r.tracker.LogStageStart(ctx, ep.ID, domain.StageAudio)

	ops := make([]func(context.Context) (*ai.SpeechResult, error), 0, len(r.tts))
	for _, syn := range r.tts {
		ops = append(ops, func(ctx context.Context) (*ai.SpeechResult, error) {
			return syn.Synthesize(ctx, ai.SpeechRequest{Text: script.Text})
		})
	}
	result, err := ai.First(ctx, r.policy, ops...)
	if err != nil {
		r.tracker.LogStageFailure(ctx, ep.ID, domain.StageAudio, err)
		return nil, err
	}

	r.recorder.RecordBestEffort(ctx, billing.EventInput{
		Service:   "google-tts",
		Quantity:  decimal.NewFromInt(result.Usage.Characters),
		Unit:      "character",
		EpisodeID: ep.ID,
		PodcastID: ep.PodcastID,
		UserID:    ep.UserID,
	})

	r.tracker.LogStageComplete(ctx, ep.ID, domain.StageAudio)
	return result, nil
}

func (r *Runner) runPublish(ctx context.Context, ep *domain.Episode, audio *ai.SpeechResult, cover *ai.ImageResult) error {
	if r.store == nil {
		return nil
	}
	r.tracker.LogStageStart(ctx, ep.ID, domain.StagePublish)

	var totalBytes int64
	puts := int64(0)

	key := fmt.Sprintf("episodes/%s/audio.mp3", ep.ID)
	if err := r.store.Put(ctx, key, audio.Audio, audio.MimeType); err != nil {
		r.tracker.LogStageFailure(ctx, ep.ID, domain.StagePublish, err)
		return err
	}
	totalBytes += int64(len(audio.Audio))
	puts++

	if cover != nil {
		key := fmt.Sprintf("episodes/%s/cover", ep.ID)
		if err := r.store.Put(ctx, key, cover.Data, cover.MimeType); err != nil {
			r.tracker.LogStageFailure(ctx, ep.ID, domain.StagePublish, err)
			return err
		}
		totalBytes += int64(len(cover.Data))
		puts++
	}

	r.recorder.RecordBestEffort(ctx, billing.EventInput{
		Service:   "blob-put",
		Quantity:  decimal.NewFromInt(puts),
		Unit:      "operation",
		EpisodeID: ep.ID,
		PodcastID: ep.PodcastID,
		UserID:    ep.UserID,
	})
	r.recorder.RecordBestEffort(ctx, billing.EventInput{
		Service:   "blob-bytes",
		Quantity:  billing.GigabytesFromBytes(totalBytes),
		Unit:      "gigabyte",
		EpisodeID: ep.ID,
		PodcastID: ep.PodcastID,
		UserID:    ep.UserID,
		Metadata:  map[string]any{"bytes": totalBytes},
	})

	r.tracker.LogStageComplete(ctx, ep.ID, domain.StagePublish)
	return nil
}

func (r *Runner) aggregate(ctx context.Context, episodeID string) {
	if r.queue != nil {
		locked, err := r.queue.AcquireAggregationLock(ctx, episodeID, aggregationLockTTL)
		if err != nil {
			r.log.Warn("Failed to acquire aggregation lock", "episode_id", episodeID, "error", err)
		} else if !locked {
			return // Another instance is aggregating
		} else {
			defer func() {
				_ = r.queue.ReleaseAggregationLock(ctx, episodeID)
			}()
		}
	}

	if _, err := r.aggregator.AggregateForEpisode(ctx, episodeID); err != nil {
		// Best-effort: aggregation failure never fails the episode.
		r.log.Error("Failed to aggregate episode costs", "episode_id", episodeID, "error", err)
	}
}
