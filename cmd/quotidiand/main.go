// Package main implements quotidiand, the long-lived daemon that owns
// the authenticated session, assigns the daily quote, and reconciles
// refresh requests published by the widget process.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/quotidian-app/engine/internal/config"
	"github.com/quotidian-app/engine/internal/domain/identity"
	"github.com/quotidian-app/engine/internal/localstate"
	"github.com/quotidian-app/engine/internal/metrics"
	"github.com/quotidian-app/engine/internal/services/daily"
	"github.com/quotidian-app/engine/internal/services/reconciler"
	"github.com/quotidian-app/engine/internal/storage/postgres"
	"github.com/quotidian-app/engine/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	userID := flag.String("user-id", "", "authenticated user id for this session")
	deviceID := flag.String("device-id", "", "device id for anonymous installations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "quotidiand: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig(cfg.Logging)).WithField("component", "quotidiand")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Apply(ctx, db); err != nil {
		log.WithError(err).Error("failed to apply migrations")
		os.Exit(1)
	}
	store := postgres.New(db)

	local, err := openLocalState(cfg.LocalState)
	if err != nil {
		log.WithError(err).Error("failed to open local state")
		os.Exit(1)
	}
	defer local.Close()

	provider := resolveProvider(*userID, *deviceID, log)

	svc := daily.New(store, store, local, log,
		daily.WithIdentityProvider(provider),
		daily.WithLocation(cfg.Location()))

	rec := reconciler.New(svc, local, provider, log,
		cfg.Reconciler.Interval(), cfg.Reconciler.CallTimeout())

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.WithField("addr", cfg.MetricsAddr).Info("metrics listening")
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				log.WithError(err).Error("metrics server failed")
			}
		}()
	}

	// Resolve today's quote once at startup so the widget finds a warm
	// cache even before its first invocation.
	if _, err := svc.GetOrAssignTodaysQuote(ctx, identity.Identity{}); err != nil {
		log.WithError(err).Warn("initial assignment failed; reconciler will retry")
	}

	go rec.Run(ctx)
	log.Info("quotidiand started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("metrics shutdown error")
		}
	}

	log.Info("quotidiand stopped")
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openLocalState(cfg config.LocalStateConfig) (localstate.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return localstate.OpenSQLite(cfg.Path)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return localstate.NewRedis(client, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown local state backend %q", cfg.Backend)
	}
}

// resolveProvider picks the identity scope for this daemon instance: a
// signed-in user when one is given, otherwise a device scope derived
// from the hostname so it stays stable across restarts.
func resolveProvider(userID, deviceID string, log *logger.Logger) identity.Provider {
	switch {
	case userID != "":
		return identity.StaticProvider{Identity: identity.User(userID)}
	case deviceID != "":
		return identity.StaticProvider{Identity: identity.Device(deviceID)}
	default:
		host, err := os.Hostname()
		if err != nil || host == "" {
			log.Warn("no identity configured and hostname unavailable")
			return identity.StaticProvider{}
		}
		return identity.StaticProvider{Identity: identity.Device(host)}
	}
}
