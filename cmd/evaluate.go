package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/user/cisaudit/pkg/catalog"
	"github.com/user/cisaudit/pkg/engine"
	"github.com/user/cisaudit/pkg/output"
)

var evalFlags struct {
	catalog     string
	format      string
	output      string
	controls    []string
	concurrency int
	timeout     time.Duration
	save        bool
	baseline    string
	snapshot    string
	failUnder   float64
}

// errIncomplete marks a run cut short by a signal.
var errIncomplete = errors.New("evaluation interrupted; report is incomplete")

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate compliance controls against the docker host",
	Long: `Runs the control catalog (or the controls named with --control) against
the local docker host and prints the weighted compliance report.`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := zerolog.Ctx(ctx)

	c, err := overrides(evalFlags.concurrency, evalFlags.timeout)
	if err != nil {
		return err
	}
	catalogPath := c.Catalog
	if evalFlags.catalog != "" {
		catalogPath = evalFlags.catalog
	}

	reg, _, err := catalog.Load(catalogPath)
	if err != nil {
		return err
	}
	controls, err := reg.Select(evalFlags.controls)
	if err != nil {
		return err
	}

	eng, err := newEngine(c, nil)
	if err != nil {
		return err
	}
	log.Info().Int("controls", len(controls)).Int("concurrency", c.Concurrency).Msg("starting evaluation")
	report := eng.Run(ctx, controls)

	// an interrupted run is still persisted
	persistCtx := context.WithoutCancel(ctx)
	if evalFlags.save {
		st, err := openStore(c)
		if err != nil {
			return err
		}
		defer st.Close()
		rec, err := st.SaveReport(persistCtx, report)
		if err != nil {
			return err
		}
		log.Info().Str("id", rec.ID).Str("db", c.HistoryDB).Msg("report saved")
	}

	w := cmd.OutOrStdout()
	if evalFlags.output != "" {
		f, err := os.Create(evalFlags.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := output.Write(w, report, evalFlags.format); err != nil {
		return err
	}

	if evalFlags.baseline != "" {
		if err := printBaselineDiff(cmd, w, report); err != nil {
			return err
		}
	}
	if evalFlags.snapshot != "" {
		if err := engine.SaveSnapshot(evalFlags.snapshot, report); err != nil {
			return err
		}
		log.Info().Str("path", evalFlags.snapshot).Msg("snapshot written")
	}

	if report.Incomplete {
		return errIncomplete
	}
	if evalFlags.failUnder > 0 && report.Score < evalFlags.failUnder {
		return fmt.Errorf("compliance score %.2f is below the required %.2f", report.Score, evalFlags.failUnder)
	}
	return nil
}

// printBaselineDiff writes the diff next to a table report, or to stderr
// when stdout carries JSON.
func printBaselineDiff(cmd *cobra.Command, w io.Writer, report engine.Report) error {
	baseline, err := engine.LoadSnapshot(evalFlags.baseline)
	if err != nil {
		return err
	}
	diff := engine.CompareReports(baseline, report)
	if evalFlags.format == output.FormatJSON {
		w = cmd.ErrOrStderr()
	}
	_, err = io.WriteString(w, "\n"+output.RenderDiff(diff, evalFlags.baseline))
	return err
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evalFlags.catalog, "catalog", "", "Control catalog file or directory (default: embedded CIS Docker catalog)")
	f.StringVarP(&evalFlags.format, "format", "f", output.FormatTable, "Output format (table, json)")
	f.StringVarP(&evalFlags.output, "output", "o", "", "Write the report to a file instead of stdout")
	f.StringArrayVarP(&evalFlags.controls, "control", "c", nil, "Evaluate only this control id (repeatable)")
	f.IntVar(&evalFlags.concurrency, "concurrency", 0, "Controls evaluated in parallel (default from config)")
	f.DurationVar(&evalFlags.timeout, "timeout", 0, "Timeout for each external command (default from config)")
	f.BoolVar(&evalFlags.save, "save", false, "Store the report in the history database")
	f.StringVar(&evalFlags.baseline, "baseline", "", "Compare the report with this snapshot file")
	f.StringVar(&evalFlags.snapshot, "snapshot", "", "Write the report to this snapshot file")
	f.Float64Var(&evalFlags.failUnder, "fail-under", 0, "Exit non-zero when the score is below this value (0-1)")
	rootCmd.AddCommand(evaluateCmd)
}
