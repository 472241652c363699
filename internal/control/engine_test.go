package control

import (
	"context"
	"testing"
	"time"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/config"
	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/ai"
)

func memoryConfig() *config.AppConfig {
	return &config.AppConfig{
		Server:   config.ServerConfig{Port: 0}, // Random port
		Billing:  config.BillingConfig{RollupInterval: time.Minute},
		Pipeline: config.PipelineConfig{PollInterval: 100 * time.Millisecond},
	}
}

func TestEngine_Lifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	e, err := NewEngine(ctx, memoryConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if e.store == nil {
		t.Fatal("expected memory storage without a database URL")
	}
	if e.redisClient != nil {
		t.Fatal("expected no redis client without a redis URL")
	}

	// Start is non-blocking; workers run in goroutines.
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestEngine_MemoryModeSeedsPrices(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, memoryConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	price, err := e.Repos().Prices.GetEffective(ctx, "gemini-text", time.Now())
	if err != nil {
		t.Fatalf("GetEffective failed: %v", err)
	}
	if price.UnitPrice.String() != "0.00000075" {
		t.Errorf("expected gemini-text price 0.00000075, got %s", price.UnitPrice)
	}

	// Same value the SQL seed migration carries.
	price, err = e.Repos().Prices.GetEffective(ctx, "gemini-image", time.Now())
	if err != nil {
		t.Fatalf("GetEffective failed: %v", err)
	}
	if price.UnitPrice.String() != "0.04" {
		t.Errorf("expected gemini-image price 0.04, got %s", price.UnitPrice)
	}
}

func TestEngine_FallbackProvidersExtendChain(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Providers.Gemini.Model = "gemini-2.0-flash"
	cfg.Providers.GeminiFallbacks = []ai.ProviderConfig{{Model: "gemini-1.5-flash"}}
	cfg.Providers.TTSFallbacks = []ai.ProviderConfig{{Voice: "en-US-Standard-A"}}

	e, err := NewEngine(ctx, cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if got := len(e.runner.Providers().Text); got != 2 {
		t.Errorf("text chain length = %d, want 2", got)
	}
	if got := len(e.runner.Providers().Image); got != 2 {
		t.Errorf("image chain length = %d, want 2", got)
	}
	if got := len(e.runner.Providers().TTS); got != 2 {
		t.Errorf("tts chain length = %d, want 2", got)
	}
}

func TestEngine_Submit(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, memoryConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ep := &domain.Episode{
		ID:        "ep-1",
		PodcastID: "pod-1",
		UserID:    "user-1",
		Title:     "Test Episode",
	}
	if err := e.Submit(ctx, ep); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	got, err := e.Repos().Episodes.GetByID(ctx, "ep-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.EpisodeStatusPending {
		t.Errorf("expected pending status, got %s", got.Status)
	}
}
