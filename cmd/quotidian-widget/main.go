// Package main implements quotidian-widget, the short-lived process the
// host invokes to render the daily quote. Each invocation evaluates the
// refresh policy once, prints its decision, and exits; retries happen by
// the host invoking it again at the printed next-run time.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/quotidian-app/engine/internal/config"
	"github.com/quotidian-app/engine/internal/domain/identity"
	"github.com/quotidian-app/engine/internal/localstate"
	"github.com/quotidian-app/engine/internal/services/daily"
	"github.com/quotidian-app/engine/internal/services/refresher"
	"github.com/quotidian-app/engine/internal/storage/postgres"
	"github.com/quotidian-app/engine/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	markViewed := flag.Bool("mark-viewed", false, "record that the rendered quote was seen")
	timeout := flag.Duration("timeout", 15*time.Second, "overall invocation deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "quotidian-widget: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig(cfg.Logging)).WithField("component", "quotidian-widget")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// No ping here: an unreachable store must degrade to the cached
	// quote, not abort the invocation.
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quotidian-widget: open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	store := postgres.New(db)

	local, err := openLocalState(cfg.LocalState)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quotidian-widget: open local state: %v\n", err)
		os.Exit(1)
	}
	defer local.Close()

	svc := daily.New(store, store, local, log,
		daily.WithLocation(cfg.Location()))

	ref := refresher.New(svc, local, log,
		refresher.WithLocation(cfg.Location()),
		refresher.WithIntervals(cfg.Refresher.IdleInterval(), cfg.Refresher.RetryInterval()))

	ev := ref.Evaluate(ctx)

	switch ev.Outcome {
	case refresher.OutcomeSignIn:
		fmt.Println("outcome: sign_in")
	case refresher.OutcomeQuote, refresher.OutcomeFallback:
		fmt.Printf("outcome: %s\n", ev.Outcome)
		if !ev.Quote.IsZero() {
			fmt.Printf("quote: %q\n", ev.Quote.Text)
			if ev.Quote.Author.Name != "" {
				fmt.Printf("author: %s\n", ev.Quote.Author.Name)
			}
			if *markViewed && ev.Outcome == refresher.OutcomeQuote {
				if err := svc.MarkViewed(ctx, identity.Identity{}); err != nil {
					log.WithError(err).Warn("failed to mark quote viewed")
				}
			}
		}
	}
	if ev.Err != nil {
		fmt.Fprintf(os.Stderr, "quotidian-widget: %v\n", ev.Err)
	}
	fmt.Printf("next-run: %s\n", ev.NextRun.Format(time.RFC3339))
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
