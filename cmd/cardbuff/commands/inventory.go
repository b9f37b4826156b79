package commands

import (
	"cardbuff/lib/serviceutil"
	"cardbuff/services/inventory"
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var inventoryForce *bool

func init() {
	inventoryForce = inventoryCmd.Flags().Bool("refresh", false, "Refetch even if the snapshot is fresh.")
	rootCmd.AddCommand(inventoryCmd)
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory [--refresh]",
	Short: "Fetches the tradeable card inventory and prints a per-rank summary.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		client := newClient(cfg)

		cards, err := inventory.NewStore(client, cfg.DataDir).Ensure(cmd.Context(), *inventoryForce)
		if err != nil {
			serviceutil.Fatal("failed to fetch inventory", err)
		}

		byRank := map[string]int{}
		for _, c := range cards {
			byRank[c.Rank]++
		}
		ranks := make([]string, 0, len(byRank))
		for rank := range byRank {
			ranks = append(ranks, rank)
		}
		sort.Strings(ranks)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle(fmt.Sprintf("%d tradeable cards", len(cards)))
		t.AppendHeader(table.Row{"Rank", "Cards"})
		for _, rank := range ranks {
			t.AppendRow(table.Row{rank, byRank[rank]})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
