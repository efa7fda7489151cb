package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/user/cisaudit/pkg/engine"
	"github.com/user/cisaudit/pkg/output"
	"github.com/user/cisaudit/pkg/store"
)

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse stored evaluation reports",
}

var listHistoryCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reports, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListReports(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if historyFormat == output.FormatJSON {
			return output.WriteJSON(cmd.OutOrStdout(), recs)
		}
		_, err = io.WriteString(cmd.OutOrStdout(), output.RenderHistory(recs))
		return err
	},
}

var showHistoryCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show a stored report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		_, report, err := st.GetReport(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return output.Write(cmd.OutOrStdout(), report, historyFormat)
	},
}

var diffHistoryCmd = &cobra.Command{
	Use:   "diff [baseline-id current-id]",
	Short: "Compare two stored reports (default: the two most recent)",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("diff takes no arguments or exactly two report ids")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		var baseline, current engine.Report
		var label string
		if len(args) == 2 {
			if _, baseline, err = st.GetReport(ctx, args[0]); err != nil {
				return err
			}
			if _, current, err = st.GetReport(ctx, args[1]); err != nil {
				return err
			}
			label = args[0]
		} else {
			recs, reports, err := st.LatestReports(ctx, 2)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if len(reports) < 2 {
				return fmt.Errorf("need at least two stored reports, have %d", len(reports))
			}
			current, baseline = reports[0], reports[1]
			label = recs[1].ID
		}

		diff := engine.CompareReports(baseline, current)
		if historyFormat == output.FormatJSON {
			return output.WriteJSON(cmd.OutOrStdout(), diff)
		}
		_, err = io.WriteString(cmd.OutOrStdout(), output.RenderDiff(diff, label))
		return err
	},
}

func init() {
	historyCmd.PersistentFlags().StringVarP(&historyFormat, "format", "f", output.FormatTable, "Output format (table, json)")
	listHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of reports to list")

	historyCmd.AddCommand(listHistoryCmd)
	historyCmd.AddCommand(showHistoryCmd)
	historyCmd.AddCommand(diffHistoryCmd)
	rootCmd.AddCommand(historyCmd)
}
