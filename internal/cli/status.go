package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/config"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage/postgres"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent episodes with their current stage and status",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of episodes to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	episodes, err := postgres.NewEpisodeRepo(db).List(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to list episodes", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "EPISODE\tTITLE\tSTATUS\tSTAGE\tSTARTED")

	for _, ep := range episodes {
		started := "-"
		if ep.ProcessingStartedAt != nil {
			started = ep.ProcessingStartedAt.Format(time.RFC3339)
		}
		stage := string(ep.CurrentStage)
		if stage == "" {
			stage = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ep.ID, ep.Title, ep.Status, stage, started)
	}
	_ = w.Flush()
}
