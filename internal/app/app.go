// Package app wires the service together: configuration, observability,
// store, lifecycle engine, notifiers, the HTTP surface, and the scheduled
// sweep.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"licensor/internal/auth"
	"licensor/internal/config"
	"licensor/internal/infrastructure"
	"licensor/internal/license"
	custommw "licensor/internal/middleware"
	"licensor/internal/notify"
	"licensor/internal/store"
	handlers "licensor/internal/transport/http"
)

// Application is the assembled service container.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Store         *store.Store
	Engine        *license.Engine
	Authenticator *auth.Authenticator
	Dispatcher    *notify.Dispatcher
	Metrics       *infrastructure.Metrics
	OTelProviders *infrastructure.OTelProviders
	Logger        *slog.Logger

	cron *cron.Cron
}

// NewApplication builds the service from configuration. Every dependency is
// constructed here and handed down; nothing below this reads configuration
// on its own.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := infrastructure.InitializeLogger(cfg.Logging)
	logger.Info("application starting",
		slog.Int("port", cfg.Server.Port),
		slog.String("store_path", cfg.Store.Path))

	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	st, err := store.Open(cfg.Store.Path, cfg.Store.CacheCapacity, logger)
	if err != nil {
		return nil, err
	}

	authn := auth.NewAuthenticator(st, logger)
	if len(cfg.Auth.SeedPublicKeys) > 0 {
		if _, err := authn.SeedKeys(cfg.Auth.SeedPublicKeys); err != nil {
			st.Close()
			return nil, fmt.Errorf("seed whitelist: %w", err)
		}
	}

	var direct license.Notifier
	var dispatcher *notify.Dispatcher
	if cfg.Mail.Enabled {
		mailer, err := notify.NewMailer(notify.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		direct = mailer
		dispatcher = notify.NewDispatcher(mailer, cfg.Mail.QueueSize, logger)
	} else {
		logNotifier := notify.NewLogNotifier(logger)
		direct = logNotifier
		dispatcher = notify.NewDispatcher(logNotifier, cfg.Mail.QueueSize, logger)
	}

	engine := license.NewEngine(st, direct, dispatcher, logger, license.Options{
		DefaultMonths:  cfg.License.DefaultMonths,
		WindowFraction: cfg.License.WindowFraction,
	})

	metrics := infrastructure.NewMetrics(
		func() float64 { hits, _ := st.CacheStats(); return float64(hits) },
		func() float64 { _, misses := st.CacheStats(); return float64(misses) },
	)

	providers, err := infrastructure.InitializeOTel(metrics.Registry, logger)
	if err != nil {
		dispatcher.Close()
		st.Close()
		return nil, err
	}

	app := &Application{
		Config:        cfg,
		Store:         st,
		Engine:        engine,
		Authenticator: authn,
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		OTelProviders: providers,
		Logger:        logger,
	}
	app.setupRouter()
	if err := app.setupSweep(); err != nil {
		app.Dispatcher.Close()
		app.Store.Close()
		return nil, err
	}

	app.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

// setupRouter configures the HTTP surface. The signature gate applies only
// to the license and key route groups; the health probe and /metrics stay
// outside it so probes and scrapes never need a signature.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(custommw.RateLimit(a.Config.Server.RateLimitRPS, a.Config.Server.RateLimitBurst))

	r.Get("/healthz", handlers.Health)
	r.Handle("/metrics", promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{}))

	gate := custommw.SignatureGate(a.Authenticator, a.Logger, a.Metrics.AuthRejections.Inc)

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(gate)

		licenseHandler := handlers.NewLicenseHandler(a.Engine, a.Metrics, a.Logger)
		r.Mount("/license", licenseHandler.Routes())

		keyHandler := handlers.NewKeyHandler(a.Authenticator, a.Logger)
		r.Mount("/keys", keyHandler.Routes())
	})

	a.Router = r
}

// setupSweep schedules the periodic sweep. Each completed run feeds the
// sweep counters.
func (a *Application) setupSweep() error {
	a.cron = cron.New()
	_, err := a.cron.AddFunc(a.Config.Sweep.Spec, func() {
		ctx := infrastructure.WithTraceID(context.Background(), "sweep")
		report, err := a.Engine.Sweep(ctx)
		if err != nil {
			a.Logger.ErrorContext(ctx, "sweep aborted",
				slog.String("error", err.Error()))
			return
		}
		a.Metrics.SweepRuns.Inc()
		a.Metrics.SweepWarnings.Add(float64(report.Warned))
		a.Metrics.SweepExpirations.Add(float64(report.Expired))
	})
	if err != nil {
		return fmt.Errorf("invalid sweep spec %q: %w", a.Config.Sweep.Spec, err)
	}
	return nil
}

// Start launches the HTTP server and the sweep scheduler.
func (a *Application) Start(ctx context.Context) error {
	a.cron.Start()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	go func() {
		if err := g.Wait(); err != nil {
			a.Logger.Error("server stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop winds the service down in dependency order: stop taking requests,
// stop the sweep, drain queued mail, close the store, flush telemetry.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "server shutdown error", slog.String("error", err.Error()))
	}

	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-shutdownCtx.Done():
		a.Logger.WarnContext(ctx, "sweep still running at shutdown deadline")
	}

	a.Dispatcher.Close()

	if err := a.Store.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "store close error", slog.String("error", err.Error()))
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "otel shutdown error", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "shutdown complete")
	return nil
}

// Run starts the application and blocks until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx); err != nil {
		return err
	}

	sig := <-sigChan
	a.Logger.InfoContext(ctx, "received signal", slog.String("signal", sig.String()))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout+5*time.Second)
	defer stopCancel()
	return a.Stop(stopCtx)
}
