package commands

import (
	"cardbuff/lib/serviceutil"
	"cardbuff/lib/textutil"
	"cardbuff/services/catalog"
	"cardbuff/services/club"
	"cardbuff/services/dispatch"
	"cardbuff/services/inventory"
	"cardbuff/services/owners"
	"cardbuff/services/partner"
	"cardbuff/services/selector"
	"cardbuff/services/session"
	"cardbuff/services/trade"
	"cardbuff/services/tradelog"
	"cardbuff/services/wanters"
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	tradeDryRun        *bool
	tradeMaxPages      *int
	tradeRefreshTarget *bool
	tradeForceInv      *bool
	tradeCardID        *int64
	tradeCardRank      *string
	tradeCardName      *string
)

func init() {
	tradeDryRun = tradeCmd.Flags().Bool("dry-run", false, "Rehearse the run without sending any trade.")
	tradeMaxPages = tradeCmd.Flags().Int("max-pages", 0, "Cap on owner pages to walk, 0 for all.")
	tradeRefreshTarget = tradeCmd.Flags().Bool("refresh-target", false, "Re-resolve the boost card before trading.")
	tradeForceInv = tradeCmd.Flags().Bool("refresh-inventory", false, "Refetch the inventory snapshot even if fresh.")
	tradeCardID = tradeCmd.Flags().Int64("card-id", 0, "Trade for this card instead of the boost card. Requires --card-rank.")
	tradeCardRank = tradeCmd.Flags().String("card-rank", "", "Rank letter of the --card-id card.")
	tradeCardName = tradeCmd.Flags().String("card-name", "", "Name of the --card-id card, used for the search fallback.")
	rootCmd.AddCommand(tradeCmd)
}

var tradeCmd = &cobra.Command{
	Use:   "trade [--dry-run] [--max-pages <n>] [--card-id <id> --card-rank <r>]",
	Short: "Offers trades for the boost card to its online owners.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		client := newClient(cfg)

		target := applyTargetOverrides(
			resolveTarget(ctx, cfg, client, *tradeRefreshTarget),
			*tradeCardID, *tradeCardRank, *tradeCardName)

		cards, err := inventory.NewStore(client, cfg.DataDir).Ensure(ctx, *tradeForceInv)
		if err != nil {
			serviceutil.Fatal("failed to load inventory", err)
		}

		logDb, err := tradelog.Open(cfg.TradeLogPath)
		if err != nil {
			serviceutil.Fatal("failed to open trade log", err)
		}
		defer logDb.Close()
		store := tradelog.NewStore(logDb)

		runner := newRunner(cfg, client, &store, *tradeDryRun, *tradeMaxPages)

		stats, err := runner.Run(ctx, target, cards)
		if err != nil {
			fmt.Fprintln(os.Stderr, "run ended early:", err)
		}
		printStats(target.Name, stats)
	},
}

// resolveTarget loads the persisted boost target, scraping the club
// page again when it is missing or a refresh was asked for.
func resolveTarget(ctx context.Context, cfg Config, client *session.Client, refresh bool) catalog.TargetCard {
	target, err := club.LoadTarget(cfg.DataDir)
	if err != nil || refresh {
		finder := club.NewFinder(client, cfg.DataDir)
		target, err = finder.FindBoostCard(ctx, boostURL(cfg, client))
		if err != nil {
			serviceutil.Fatal("failed to resolve boost card", err)
		}
	}
	return target
}

// applyTargetOverrides substitutes a target built from CLI flags.
// Both the id and the rank are required; a partial override keeps the
// resolved target. The override carries no wanters count, so the
// selector falls back to the closest match it can give away.
func applyTargetOverrides(target catalog.TargetCard, cardID int64, rank, name string) catalog.TargetCard {
	if cardID == 0 || rank == "" {
		return target
	}
	return catalog.TargetCard{
		CardID: cardID,
		Rank:   textutil.NormalizeRank(rank),
		Name:   name,
	}
}

func newRunner(cfg Config, client *session.Client, store *tradelog.Store, dryRun bool, maxPages int) trade.Runner {
	cache, err := wanters.NewCache(cfg.DataDir)
	if err != nil {
		serviceutil.Fatal("failed to open wanters cache", err)
	}

	return trade.Runner{
		SelfID: client.Profile.UserID,
		Pages:  owners.NewSource(client),
		Picker: selector.New(wanters.Source{
			Cache:  cache,
			Remote: wanters.NewCounter(client),
		}),
		Locator:  partner.NewLocator(client),
		Sender:   dispatch.New(client, dispatch.Options{DryRun: dryRun}),
		MaxPages: maxPages,
		DryRun:   dryRun,
		Log:      store,
	}
}

func printStats(cardName string, stats trade.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("run summary: %s", cardName))
	t.AppendRows([]table.Row{
		{"pages checked", stats.PagesChecked},
		{"owners seen", stats.OwnersSeen},
		{"trades attempted", stats.TradesAttempted},
		{"trades succeeded", stats.TradesSucceeded},
		{"skipped: self", stats.SkippedSelf},
		{"skipped: card not found", stats.SkippedNoInstance},
		{"skipped: no card of rank", stats.SkippedNoRank},
		{"skipped: no suitable card", stats.SkippedNoSuitableCard},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
