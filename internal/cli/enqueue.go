package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/config"
	redisclient "github.com/NehoraiHadad/podcasto-engine/internal/infra/redis"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage/postgres"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [episode-id]",
	Short: "Queue an episode for generation (or re-queue after a failure)",
	Args:  cobra.ExactArgs(1),
	Run:   runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) {
	episodeID := args[0]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	if _, err := postgres.NewEpisodeRepo(db).GetByID(ctx, episodeID); err != nil {
		slog.Error("Episode lookup failed", "episode_id", episodeID, "error", err)
		os.Exit(1)
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.EnqueueEpisode(ctx, episodeID); err != nil {
		slog.Error("Failed to enqueue episode", "episode_id", episodeID, "error", err)
		os.Exit(1)
	}

	length, _ := client.QueueLength(ctx)
	fmt.Printf("Queued episode %s (%d job(s) pending)\n", episodeID, length)
}
