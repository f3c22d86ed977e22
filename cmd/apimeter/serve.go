package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/apimeter/adapters/clock"
	"github.com/artpar/apimeter/adapters/idgen"
	"github.com/artpar/apimeter/adapters/memory"
	"github.com/artpar/apimeter/adapters/metrics"
	redisadapter "github.com/artpar/apimeter/adapters/redis"
	"github.com/artpar/apimeter/adapters/sqlite"
	"github.com/artpar/apimeter/app"
	"github.com/artpar/apimeter/config"
	"github.com/artpar/apimeter/ports"
	"github.com/artpar/apimeter/web"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the decision service",
	Long: `Start the apimeter decision service.

The server will:
  - Load configuration from apimeter.yaml (or --config)
  - Or load configuration from APIMETER_* environment variables
  - Connect to the shared Redis store
  - Serve the authrep evaluation endpoint, health, and metrics

Examples:
  apimeter serve
  apimeter serve --config /etc/apimeter/config.yaml
  APIMETER_STORE_ADDR=redis:6379 apimeter serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	var (
		cfg    *config.Config
		holder *config.Holder
		err    error
	)

	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if _, statErr := os.Stat(cfgFile); statErr == nil && hotReload {
		holder, err = config.NewHolder(cfgFile, bootLogger)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		cfg = holder.Get()
	} else {
		cfg, err = config.LoadWithFallback(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
	}

	logger := newLogger(cfg.Logging)

	if holder != nil {
		holder.OnChange(func(newCfg *config.Config) {
			setLogLevel(newCfg.Logging.Level)
		})
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config file watching disabled")
		}
		holder.WatchSignals()
		defer holder.Stop()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Store.Addr,
		Password: cfg.Store.Password,
		DB:       cfg.Store.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("store unreachable at %s: %w", cfg.Store.Addr, err)
	}
	store := redisadapter.NewStore(client)
	registry := redisadapter.NewMetricRegistry(client)

	var events ports.EventSink
	switch cfg.Events.Backend {
	case "sqlite":
		sink, err := sqlite.OpenEventSink(cfg.Events.Path)
		if err != nil {
			return fmt.Errorf("error opening event sink: %w", err)
		}
		defer sink.Close()
		events = sink
	default:
		events = memory.NewEventSink()
	}

	collector := metrics.New(prometheus.DefaultRegisterer)

	alerts := app.NewAlertService(app.AlertDeps{
		Store:   store,
		Events:  events,
		Metrics: collector,
		Logger:  logger.With().Str("component", "alerts").Logger(),
	})

	if cfg.Alerts.Enabled {
		seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelSeed()
		for _, serviceID := range cfg.Alerts.Services {
			if err := alerts.AllowBins(seedCtx, serviceID, cfg.Alerts.DefaultBins); err != nil {
				return fmt.Errorf("error seeding alert bins: %w", err)
			}
		}
	}

	var statusAlerts *app.AlertService
	if cfg.Alerts.Enabled {
		statusAlerts = alerts
	}
	status := app.NewStatusService(app.StatusDeps{
		Alerts:  statusAlerts,
		Metrics: collector,
		Logger:  logger.With().Str("component", "status").Logger(),
	})

	handler := web.New(web.Deps{
		Status:   status,
		Alerts:   alerts,
		Registry: registry,
		Clock:    clock.Real{},
		IDGen:    idgen.UUID{},
		Metrics:  collector,
		Logger:   logger.With().Str("component", "web").Logger(),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.Router(cfg.Metrics.Enabled),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	setLogLevel(cfg.Level)
	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func setLogLevel(level string) {
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}
