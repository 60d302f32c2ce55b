package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/RouteBox/config"
	"github.com/BearBump/RouteBox/internal/broker/kafka"
	"github.com/BearBump/RouteBox/internal/cache/rediscache"
	"github.com/BearBump/RouteBox/internal/journeylock"
	"github.com/BearBump/RouteBox/internal/positions"
	"github.com/BearBump/RouteBox/internal/routing"
	"github.com/BearBump/RouteBox/internal/routing/matrixcache"
	"github.com/BearBump/RouteBox/internal/routing/osrmhttp"
	"github.com/BearBump/RouteBox/internal/services/reopt"
	"github.com/BearBump/RouteBox/internal/services/watchdog"
	"github.com/BearBump/RouteBox/internal/storage/pgroutes"
)

// watchdogStorage is what the sweep needs from postgres: claiming delayed
// journeys plus the snapshot/apply pair the coordinator replans through.
type watchdogStorage interface {
	reopt.Repository
	watchdog.Repository
}

type watchdogFactories struct {
	newStorage     func(cfg *config.Config) (repo watchdogStorage, closeFn func(), err error)
	newProvider    func(cfg *config.Config) routing.Provider
	newPositions   func(cfg *config.Config) reopt.Positions
	newProducer    func(cfg *config.Config) reopt.Producer
	newRateLimiter func(cfg *config.Config) watchdog.RateLimiter
}

func defaultWatchdogFactories() watchdogFactories {
	return watchdogFactories{
		newStorage: func(cfg *config.Config) (watchdogStorage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgroutes.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProvider: func(cfg *config.Config) routing.Provider {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			osrmTimeout := time.Duration(cfg.OSRM.TimeoutSeconds) * time.Second
			if osrmTimeout <= 0 {
				osrmTimeout = 10 * time.Second
			}
			return matrixcache.New(
				osrmhttp.New(cfg.OSRM.BaseURL, osrmTimeout, cfg.OSRM.MaxRetries),
				rediscache.New(redisAddr),
				time.Duration(cfg.RouteBox.MatrixCacheTTLSeconds)*time.Second,
			)
		},
		newPositions: func(cfg *config.Config) reopt.Positions {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return positions.New(rediscache.New(redisAddr), time.Duration(cfg.RouteBox.PositionTTLSeconds)*time.Second)
		},
		newProducer: func(cfg *config.Config) reopt.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) watchdog.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
	}
}

func RunRouteWatchdog(ctx context.Context, cfg *config.Config, f watchdogFactories, onListen func(httpAddr string)) error {
	eventsTopic := cfg.Kafka.JourneyEventsTopicName
	if eventsTopic == "" {
		eventsTopic = "journey.events"
	}

	pollInterval := time.Duration(cfg.RouteBox.WatchdogPollIntervalSeconds) * time.Second
	batchSize := cfg.RouteBox.WatchdogBatchSize
	concurrency := cfg.RouteBox.WatchdogConcurrency
	lease := time.Duration(cfg.RouteBox.WatchdogLeaseSeconds) * time.Second
	delayThresholdMin := cfg.RouteBox.AutoReplanThresholdMinutes
	rlPerMin := int64(cfg.RouteBox.WatchdogRateLimitPerMinute)

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	coordinator := reopt.New(repo, f.newProvider(cfg), f.newPositions(cfg), journeylock.NewRegistry(), producer, slog.Default(), reopt.Config{
		EventsTopic:      eventsTopic,
		SolveTimeout:     time.Duration(cfg.RouteBox.SolveTimeoutSeconds) * time.Second,
		Cooldown:         time.Duration(cfg.RouteBox.ReplanCooldownMinutes) * time.Minute,
		TieTolerance:     float64(cfg.RouteBox.PriorityTieTolerancePct) / 100,
		ExactSearchLimit: cfg.RouteBox.ExactSearchLimit,
	})

	wd := watchdog.New(repo, coordinator, f.newRateLimiter(cfg)).
		WithSettings(pollInterval, batchSize, concurrency, lease, delayThresholdMin, rlPerMin)

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- runWatchdogHTTPServer(ctx, watchdogHTTPOpts{
			httpAddr: cfg.RouteBox.WatchdogHTTPAddr,
			onListen: onListen,
			watchdog: wd,
			cfg:      cfg,
		})
	}()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- wd.Run(ctx)
	}()

	select {
	case err := <-httpErrCh:
		return err
	case err := <-runErrCh:
		return err
	}
}
