package commands

import (
	"cardbuff/lib/serviceutil"
	"cardbuff/services/club"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(targetCmd)
}

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Resolves and prints the club's current boost card.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		client := newClient(cfg)

		finder := club.NewFinder(client, cfg.DataDir)
		target, err := finder.FindBoostCard(cmd.Context(), boostURL(cfg, client))
		if err != nil {
			serviceutil.Fatal("failed to resolve boost card", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"name", target.Name},
			{"card id", target.CardID},
			{"rank", target.Rank},
			{"owners", target.OwnersCount},
			{"wanters", target.WantersCount},
			{"url", target.CardURL},
		})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
