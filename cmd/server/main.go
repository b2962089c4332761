// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jason-s-yu/pricecheck/internal/auth"
	"github.com/jason-s-yu/pricecheck/internal/cache"
	"github.com/jason-s-yu/pricecheck/internal/config"
	"github.com/jason-s-yu/pricecheck/internal/database"
	"github.com/jason-s-yu/pricecheck/internal/handlers"
	"github.com/jason-s-yu/pricecheck/internal/listing"
	"github.com/jason-s-yu/pricecheck/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

const (
	version      = "0.1.0"
	reapInterval = time.Minute
)

func main() {
	cfg := &config.Server{}
	cmd := config.NewServerCmd(cfg, version, run)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, cfg *config.Server) error {
	logger := config.NewLogger(cfg.LogFormat, cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		rdb = client
		logger.WithField("addr", cfg.RedisAddr).Info("connected to redis")
	}

	sources, closeDB, err := listingSources(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	var wg sync.WaitGroup
	var hub *handlers.Hub
	if rdb != nil && cfg.EventQueue != "" {
		events := cache.NewEventLog(rdb, cfg.EventQueue, cfg.EventBuffer, logger.WithField("component", "event-log"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			events.Run(ctx)
		}()
		defer events.Close()
		hub = handlers.NewHub(events)
	} else {
		hub = handlers.NewHub(nil)
	}

	issuer, err := hostTokens(cfg)
	if err != nil {
		return err
	}

	ctrl := room.NewController(room.NewMemoryStore(), hub, sources,
		room.WithLogger(logger.WithField("component", "rooms")),
		room.WithVoteWindow(cfg.VoteWindow),
		room.WithFetchTimeout(cfg.FetchTimeout),
	)

	api := handlers.NewAPIServer(ctrl, hub, issuer, logger)
	api.OriginPatterns = cfg.AllowedOrigins
	api.PublicURL = cfg.PublicURL
	api.Limits.ChatRate = rate.Limit(cfg.ChatRate)
	api.Limits.ChatBurst = cfg.ChatBurst

	wg.Add(1)
	go func() {
		defer wg.Done()
		reap(ctx, ctrl, cfg.EmptyRoomTTL, logger)
	}()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", cfg.Addr())
		errc <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server exited: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	// the reaper and event log stop on ctx, so cancel before waiting on either
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	api.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
	stop()
	wg.Wait()
	return serveErr
}

// listingSources chains every configured source in the order redis,
// postgres, file.
func listingSources(ctx context.Context, cfg *config.Server, rdb *redis.Client, logger logrus.FieldLogger) (listing.Source, func(), error) {
	var chain listing.Chain
	closeDB := func() {}

	if rdb != nil {
		chain = append(chain, listing.NewRedisSource(rdb, cfg.ListingKey, cfg.CandidateCount))
	}
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, closeDB, err
		}
		closeDB = pool.Close
		if err := database.Migrate(ctx, pool, listing.Schema); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		chain = append(chain, listing.NewPostgresSource(pool, cfg.CandidateCount))
		logger.Info("connected to postgres")
	}
	if cfg.ListingsFile != "" {
		src, err := listing.LoadFile(cfg.ListingsFile, cfg.CandidateCount, time.Now().UnixNano())
		if err != nil {
			closeDB()
			return nil, func() {}, err
		}
		chain = append(chain, src)
		logger.WithField("file", cfg.ListingsFile).Info("loaded listings file")
	}

	if len(chain) == 1 {
		return chain[0], closeDB, nil
	}
	return chain, closeDB, nil
}

// hostTokens loads the configured signing key, or makes a throwaway one so
// tokens die with the process.
func hostTokens(cfg *config.Server) (*auth.Issuer, error) {
	if cfg.HostKeyFile == "" {
		return auth.NewIssuer(cfg.HostTokenTTL)
	}
	return auth.LoadIssuer(cfg.HostKeyFile, cfg.HostKeyFile+".pub", cfg.HostTokenTTL)
}

// reap periodically removes rooms nobody ever joined.
func reap(ctx context.Context, ctrl *room.Controller, ttl time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := ctrl.Reap(now, ttl); n > 0 {
				logger.WithField("rooms", n).Info("reaped empty rooms")
			}
		}
	}
}
