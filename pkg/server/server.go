package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/user/cisaudit/pkg/engine"
	"github.com/user/cisaudit/pkg/metrics"
	cisauditmiddleware "github.com/user/cisaudit/pkg/server/middleware"
	"github.com/user/cisaudit/pkg/store"
)

// Evaluator runs a set of controls to a report.
type Evaluator interface {
	Run(ctx context.Context, controls []engine.Control) engine.Report
}

type WebAPI struct {
	router          http.Handler
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

type Dependencies struct {
	Registry  *engine.Registry
	Evaluator Evaluator
	// Store is optional; without it reports are not kept.
	Store   store.Store
	Metrics *metrics.Recorder
	Logger  zerolog.Logger
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

// ConfigureRouter builds the HTTP routes.
func ConfigureRouter(config Config) http.Handler {
	h := &handler{deps: config.Dependencies}
	logger := config.Dependencies.Logger

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(cisauditmiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", h.Health)
	if config.Dependencies.Metrics != nil {
		router.Handle("/metrics", config.Dependencies.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/controls", h.ListControls)
		r.Get("/controls/{id}", h.GetControl)
		r.Post("/evaluations", h.Evaluate)
		r.Get("/reports", h.ListReports)
		r.Get("/reports/latest", h.LatestReport)
		r.Get("/reports/{id}", h.GetReport)
	})
	return router
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	config.Dependencies.Logger = logger
	router := ConfigureRouter(config)
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	return &WebAPI{
		router:          router,
		logger:          &logger,
		shutdownTimeout: config.ShutdownTimeout,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (w *WebAPI) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(shutdownCtx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}

		if err != nil {
			return err
		}
	}

	return nil
}
