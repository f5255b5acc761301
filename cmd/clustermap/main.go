// Command clustermap serves exploration sessions over a document map: it
// loads points and clusters from a backend, keeps per-session selection
// state, and streams render commands to browser renderers over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/client"
	"github.com/persistorai/clustermap/internal/api"
	"github.com/persistorai/clustermap/internal/config"
	"github.com/persistorai/clustermap/internal/db"
	"github.com/persistorai/clustermap/internal/dbpool"
	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/loader"
	"github.com/persistorai/clustermap/internal/service"
	"github.com/persistorai/clustermap/internal/store"
	"github.com/persistorai/clustermap/internal/ws"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	if err := run(log); err != nil {
		log.WithError(err).Fatal("clustermap exited")
	}
}

// backendDeps is the backend chosen by configuration with its readiness
// check and teardown.
type backendDeps struct {
	backend domain.Backend
	check   api.Check
	pool    *dbpool.Pool
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}

	if be.pool != nil {
		defer be.pool.Close()
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	manager := service.NewManager(be.backend, hub.Target, log, service.ManagerOptions{
		Session: service.SessionOptions{
			Loader: loader.Options{
				InitialSize: cfg.InitialBatchSize,
				BatchSize:   cfg.BatchSize,
				Limit:       cfg.PointLimit,
				Retries:     cfg.LoadRetries,
			},
			LabelPolicy:     cfg.LabelPolicy,
			DebugAssertions: cfg.DebugAssertions,
		},
		MaxSessions:     cfg.MaxSessions,
		IdleTimeout:     cfg.SessionIdleTimeout,
		PrefetchWorkers: cfg.PrefetchWorkers,
	})
	manager.OnClose(hub.CloseSession)
	hub.OnResync(manager.Resync)

	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		manager.Run(ctx)
	}()

	if be.pool != nil {
		watcher := db.NewChangeWatcher(log, be.pool, db.DefaultSettle, func(b db.ChangeBatch) {
			n := manager.PrefetchAll()
			log.WithFields(logrus.Fields{
				"tables":        b.Tables(),
				"notifications": b.Notifications,
				"sessions":      n,
			}).Debug("backend changed, prefetching")
		})
		if err := watcher.Start(ctx); err != nil {
			log.WithError(err).Warn("change notifications unavailable")
		}
	}

	router := api.NewRouter(ctx, &api.RouterDeps{
		Log:         log,
		Hub:         hub,
		Sessions:    manager,
		Checks:      map[string]api.Check{"backend": be.check},
		CORSOrigins: cfg.CORSOrigins,
		Version:     config.Version,
		APIKey:      cfg.APIKey.Value(),
		Backend:     be.backend,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr(),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "backend": cfg.Backend, "version": config.Version}).Info("clustermap listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	var runErr error

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.WithError(runErr).Error("server failed, shutting down")
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("api server shutdown")
	}

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics server shutdown")
	}

	<-managerDone
	hub.Shutdown()

	return runErr
}

// openBackend connects the configured backend. The postgres backend runs
// schema migrations before serving.
func openBackend(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*backendDeps, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), cfg.DBMaxConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}

		applied, err := db.RunMigrations(ctx, pool, log, nil)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}

		log.WithFields(logrus.Fields{"applied": applied, "schema_version": db.SchemaVersion()}).Info("database ready")

		prometheus.MustRegister(pool.Collectors()...)

		return &backendDeps{
			backend: store.NewBackend(store.Base{Pool: pool, Log: log}),
			check:   pool.HealthCheck,
			pool:    pool,
		}, nil

	default:
		c := client.New(cfg.BackendURL, client.WithAPIKey(cfg.BackendAPIKey.Value()))

		return &backendDeps{
			backend: c,
			check: func(ctx context.Context) error {
				_, err := c.Health(ctx)
				return err
			},
		}, nil
	}
}
