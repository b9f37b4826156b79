package commands

import (
	"cardbuff/lib/serviceutil"
	"cardbuff/lib/telemetry"
	"cardbuff/services/boostmon"
	"cardbuff/services/catalog"
	"cardbuff/services/club"
	"cardbuff/services/inventory"
	"cardbuff/services/trade"
	"cardbuff/services/tradelog"
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var (
	boostDryRun   *bool
	boostMaxPages *int
)

func init() {
	boostDryRun = boostCmd.Flags().Bool("dry-run", false, "Rehearse every pass without sending any trade.")
	boostMaxPages = boostCmd.Flags().Int("max-pages", 0, "Cap on owner pages per pass, 0 for all.")
	rootCmd.AddCommand(boostCmd)
}

var boostCmd = &cobra.Command{
	Use:   "boost [--dry-run] [--max-pages <n>]",
	Short: "Monitors the club boost page and keeps trading for whatever card it currently wants.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		telemetry.InstrumentPerfStats(ctx)

		cfg := loadConfig()
		client := newClient(cfg)

		target := resolveTarget(ctx, cfg, client, false)

		logDb, err := tradelog.Open(cfg.TradeLogPath)
		if err != nil {
			serviceutil.Fatal("failed to open trade log", err)
		}
		defer logDb.Close()
		store := tradelog.NewStore(logDb)

		finder := club.NewFinder(client, cfg.DataDir)
		monitor := boostmon.New(client, finder, boostURL(cfg, client))
		go monitor.Run(ctx)

		inv := inventory.NewStore(client, cfg.DataDir)
		loop := trade.Loop{
			Runner: newRunner(cfg, client, &store, *boostDryRun, *boostMaxPages),
			Inventory: func(ctx context.Context) ([]catalog.CardRecord, error) {
				return inv.Ensure(ctx, false)
			},
			Updates: monitor.Updates(),
		}

		err = loop.Run(ctx, target)
		if err != nil && !errors.Is(err, context.Canceled) {
			serviceutil.Fatal("boost loop failed", err)
		}
	},
}
