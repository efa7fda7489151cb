package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/cisaudit/pkg/config"
	"github.com/user/cisaudit/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "cisaudit",
	Short: "CIS Docker compliance control evaluation",
	Long: `cisaudit evaluates CIS Docker Benchmark controls against the live docker
host and reports a weighted compliance score. It can keep a report history,
serve an HTTP API, generate remediation plans, and drive an AI agent.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRuntime,
}

var (
	cfgFile   string
	DebugMode bool
	logLevel  string
	logJSON   bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.ExecuteContext(context.Background()))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.cisaudit/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&DebugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON instead of console text")
}

func loadRuntime(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if DebugMode {
		level = "debug"
	}
	logger := logging.New(os.Stderr, level, !logJSON)
	cmd.SetContext(logger.WithContext(cmd.Context()))
	return nil
}
