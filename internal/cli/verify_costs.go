package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/config"
	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage/postgres"
)

var verifyLimit int

var verifyCostsCmd = &cobra.Command{
	Use:   "verify-costs [episode-id]",
	Short: "Recompute episode cost totals from raw events and compare to stored summaries",
	Args:  cobra.MaximumNArgs(1),
	Run:   runVerifyCosts,
}

func init() {
	verifyCostsCmd.Flags().IntVar(&verifyLimit, "limit", 50, "number of episodes to verify when no ID is given")
	rootCmd.AddCommand(verifyCostsCmd)
}

func runVerifyCosts(cmd *cobra.Command, args []string) {
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

	episodes := postgres.NewEpisodeRepo(db)
	events := postgres.NewCostEventRepo(db)
	summaries := postgres.NewSummaryRepo(db)

	var ids []string
	if len(args) == 1 {
		if _, err := episodes.GetByID(ctx, args[0]); err != nil {
			slog.Error("Episode lookup failed", "episode_id", args[0], "error", err)
			os.Exit(1)
		}
		ids = []string{args[0]}
	} else {
		eps, err := episodes.List(ctx, verifyLimit)
		if err != nil {
			slog.Error("Failed to list episodes", "error", err)
			os.Exit(1)
		}
		for _, ep := range eps {
			ids = append(ids, ep.ID)
		}
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"EPISODE", "EVENTS", "COMPUTED", "STORED", "RESULT"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})

	mismatches := 0
	for _, id := range ids {
		row, mismatch, err := verifyEpisode(ctx, id, events, summaries)
		if err != nil {
			slog.Error("Verification failed", "episode_id", id, "error", err)
			os.Exit(1)
		}
		if mismatch {
			mismatches++
		}
		tw.AppendRow(row)
	}
	tw.Render()

	if mismatches > 0 {
		fmt.Printf("\n%d episode(s) with mismatched summaries\n", mismatches)
		os.Exit(1)
	}
}

// verifyEpisode recomputes category totals from the event log and compares
// them to the stored summary. An episode with no summary yet only mismatches
// when events exist for it.
func verifyEpisode(
	ctx context.Context,
	episodeID string,
	events storage.CostEventRepository,
	summaries storage.CostSummaryRepository,
) (table.Row, bool, error) {
	totals, count, err := events.SumByCategoryForEpisode(ctx, episodeID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to sum events: %w", err)
	}
	computed := totals.Total()

	stored, err := summaries.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load summary: %w", err)
	}

	if stored == nil {
		if count == 0 {
			return table.Row{episodeID, count, computed.String(), "-", "OK"}, false, nil
		}
		return table.Row{episodeID, count, computed.String(), "-", "MISSING"}, true, nil
	}

	if !computed.Equal(stored.TotalCost) || count != stored.EventCount ||
		!categoriesMatch(totals, stored.Totals) {
		return table.Row{episodeID, count, computed.String(), stored.TotalCost.String(), "MISMATCH"}, true, nil
	}

	return table.Row{episodeID, count, computed.String(), stored.TotalCost.String(), "OK"}, false, nil
}

func categoriesMatch(computed, stored domain.CategoryTotals) bool {
	for _, cat := range domain.Categories {
		if !computed.Get(cat).Equal(stored.Get(cat)) {
			return false
		}
	}
	return true
}
