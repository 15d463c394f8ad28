package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/oakline/atrium/internal/infrastructure/configs"
	"github.com/oakline/atrium/internal/infrastructure/ratelimiter"
	healthHandler "github.com/oakline/atrium/internal/presentation/handler/health"
	workspacesHandler "github.com/oakline/atrium/internal/presentation/handler/workspaces"
)

type Application struct {
	config            configs.Config
	workspacesHandler *workspacesHandler.Handler
	healthHandler     *healthHandler.Handler
	logger            *zap.SugaredLogger
	ratelimiter       ratelimiter.Limiter
	promRegistry      *prometheus.Registry
}

func NewApplication(
	config configs.Config,
	workspacesHandler *workspacesHandler.Handler,
	healthHandler *healthHandler.Handler,
	logger *zap.SugaredLogger,
	ratelimiter ratelimiter.Limiter,
	promRegistry *prometheus.Registry,
) *Application {
	return &Application{
		config:            config,
		workspacesHandler: workspacesHandler,
		healthHandler:     healthHandler,
		logger:            logger,
		ratelimiter:       ratelimiter,
		promRegistry:      promRegistry,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(app.loggerMiddleware)
	r.Use(app.rateLimiterMiddleware)
	r.Use(app.enableCors)

	r.Route("/api", func(r chi.Router) {
		r.Route("/workspaces/{workspaceId}", func(r chi.Router) {
			r.Get("/join", app.workspacesHandler.JoinWorkspaceHandler)
			r.Get("/objects", app.workspacesHandler.GetObjectsHandler)
			r.Get("/snapshot", app.workspacesHandler.GetSnapshotHandler)
			r.Get("/sessions", app.workspacesHandler.GetSessionsHandler)
		})

		r.Get("/health", app.healthHandler.GetHealth)
		r.Get("/healthz", app.healthHandler.GetHealth)
		r.Get("/ready", app.healthHandler.GetHealth)
		r.Get("/live", app.healthHandler.GetHealth)
	})

	r.Handle("/metrics", promhttp.HandlerFor(app.promRegistry, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(r, "atrium.http")
}

func (app *Application) Run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port),
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		healthHandler.SetUnhealthy()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", srv.Addr)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", srv.Addr)

	return nil
}
