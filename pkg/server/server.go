package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	handlers "github.com/de-tools/cloud-sentry/pkg/handlers/compliance"
	sentrymiddleware "github.com/de-tools/cloud-sentry/pkg/server/middleware"
	"github.com/de-tools/cloud-sentry/pkg/services/registry"
	auditstore "github.com/de-tools/cloud-sentry/pkg/store/audit"
	findingstore "github.com/de-tools/cloud-sentry/pkg/store/findings"
)

type WebAPI struct {
	router *chi.Mux
	logger *zerolog.Logger
	server *http.Server
}

type Dependencies struct {
	Logger   zerolog.Logger
	Accounts handlers.AccountResolver
	Scanner  handlers.Scanner
	Fixer    handlers.Fixer
	Reporter handlers.Reporter
	Controls *registry.ControlRegistry
	Findings findingstore.Store
	AuditLog auditstore.Store
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

func ConfigureRouter(config Config) *chi.Mux {
	deps := config.Dependencies
	handler := handlers.NewHandler(
		deps.Accounts,
		deps.Scanner,
		deps.Fixer,
		deps.Reporter,
		deps.Controls,
		deps.Findings,
		deps.AuditLog,
	)

	router := chi.NewRouter()

	router.Use(sentrymiddleware.Logger(&deps.Logger))
	router.Use(middleware.Recoverer)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/accounts/{account}/scans", handler.StartScan)
		r.Get("/accounts/{account}/score", handler.GetScore)
		r.Post("/accounts/{account}/report", handler.GenerateReport)

		r.Get("/findings", handler.ListFindings)
		r.Get("/findings/{id}", handler.GetFinding)
		r.Post("/findings/{id}/remediate", handler.Remediate)
		r.Post("/findings/{id}/rollback", handler.Rollback)

		r.Get("/audit", handler.ListAudit)
		r.Get("/controls", handler.ListControls)
	})

	return router
}

func NewWebAPI(config Config) *WebAPI {
	router := ConfigureRouter(config)
	logger := config.Dependencies.Logger

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:    config.Addr,
			Handler: router,
		},
	}
}

func (w *WebAPI) Start() error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-shutdown:
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := w.server.Shutdown(ctx)
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
