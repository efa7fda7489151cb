package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/user/cisaudit/pkg/catalog"
	"github.com/user/cisaudit/pkg/metrics"
	"github.com/user/cisaudit/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the evaluation HTTP API and Prometheus metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := zerolog.Ctx(ctx)

		reg, _, err := catalog.Load(cfg.Catalog)
		if err != nil {
			return err
		}
		recorder := metrics.NewRecorder()
		eng, err := newEngine(cfg, recorder)
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		api := server.NewWebAPI(*logger, server.Config{
			Addr:            addr,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Dependencies: server.Dependencies{
				Registry:  reg,
				Evaluator: eng,
				Store:     st,
				Metrics:   recorder,
				Logger:    *logger,
			},
		})
		logger.Info().Str("addr", addr).Int("controls", reg.Len()).Msg("starting server")
		return api.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}
