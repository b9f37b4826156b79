package commands

import (
	"cardbuff/lib/serviceutil"
	"cardbuff/services/tradelog"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(logCmd)
}

var logCmd = &cobra.Command{
	Use:   "log <run-id>",
	Short: "Prints the dispatch attempts recorded for a run.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			serviceutil.Fatal("invalid run id", err)
		}

		cfg := loadConfig()
		db, err := tradelog.Open(cfg.TradeLogPath)
		if err != nil {
			serviceutil.Fatal("failed to open trade log", err)
		}
		defer db.Close()

		attempts, err := tradelog.NewStore(db).RunAttempts(cmd.Context(), runID)
		if err != nil {
			serviceutil.Fatal("failed to read attempts", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle(fmt.Sprintf("run %d", runID))
		t.AppendHeader(table.Row{"Time", "Receiver", "Mine", "Theirs", "Result"})
		for _, a := range attempts {
			result := "ok"
			if !a.Succeeded {
				result = a.Failure
			}
			t.AppendRow(table.Row{
				a.Time.Format("15:04:05"),
				a.ReceiverID, a.MyInstance, a.TheirInstance,
				result,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
