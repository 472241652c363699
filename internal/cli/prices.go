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

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Show the service pricing table with effective windows",
	Run:   runPrices,
}

func init() {
	rootCmd.AddCommand(pricesCmd)
}

func runPrices(cmd *cobra.Command, args []string) {
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

	prices, err := postgres.NewPriceRepo(db).List(ctx)
	if err != nil {
		slog.Error("Failed to list prices", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SERVICE\tUNIT\tPRICE\tFROM\tTO")

	for _, p := range prices {
		to := "-"
		if p.EffectiveTo != nil {
			to = p.EffectiveTo.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.Service, p.Unit, p.UnitPrice, p.EffectiveFrom.Format(time.RFC3339), to)
	}
	_ = w.Flush()
}
