package commands

import (
	"cardbuff/lib/telemetry"
	"cardbuff/services/boostmon"
	"cardbuff/services/club"
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watches the club boost page, donating and reporting target changes until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		telemetry.InstrumentPerfStats(ctx)

		cfg := loadConfig()
		client := newClient(cfg)

		finder := club.NewFinder(client, cfg.DataDir)
		monitor := boostmon.New(client, finder, boostURL(cfg, client))

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case target := <-monitor.Updates():
					slog.Info("target card updated",
						"card_id", target.CardID, "name", target.Name,
						"rank", target.Rank, "wanters", target.WantersCount)
				}
			}
		}()

		monitor.Run(ctx)
	},
}
