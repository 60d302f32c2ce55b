package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/RouteBox/config"
	"github.com/BearBump/RouteBox/internal/api"
	"github.com/BearBump/RouteBox/internal/broker/kafka"
	"github.com/BearBump/RouteBox/internal/cache/rediscache"
	"github.com/BearBump/RouteBox/internal/journeylock"
	"github.com/BearBump/RouteBox/internal/positions"
	"github.com/BearBump/RouteBox/internal/routing/matrixcache"
	"github.com/BearBump/RouteBox/internal/routing/osrmhttp"
	"github.com/BearBump/RouteBox/internal/services/journeys"
	"github.com/BearBump/RouteBox/internal/services/reopt"
	"github.com/BearBump/RouteBox/internal/services/routes"
	"github.com/BearBump/RouteBox/internal/storage/pgroutes"
)

type routeAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc

	opts     routeAPIOpts
	api      *api.API
	pos      *positions.Store
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapRouteAPI() *routeAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	httpAddr := cfg.RouteBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.RouteBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "route-api"
	}
	eventsTopic := cfg.Kafka.JourneyEventsTopicName
	if eventsTopic == "" {
		eventsTopic = "journey.events"
	}
	positionsTopic := cfg.Kafka.DriverPositionsTopicName
	if positionsTopic == "" {
		positionsTopic = "driver.position"
	}

	st := mustOpenPostgresWithRetry(pgConnString(cfg), 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	osrmTimeout := time.Duration(cfg.OSRM.TimeoutSeconds) * time.Second
	if osrmTimeout <= 0 {
		osrmTimeout = 10 * time.Second
	}
	provider := matrixcache.New(
		osrmhttp.New(cfg.OSRM.BaseURL, osrmTimeout, cfg.OSRM.MaxRetries),
		rc,
		time.Duration(cfg.RouteBox.MatrixCacheTTLSeconds)*time.Second,
	)

	pos := positions.New(rc, time.Duration(cfg.RouteBox.PositionTTLSeconds)*time.Second)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, positionsTopic, consumerGroup)

	locks := journeylock.NewRegistry()
	log := slog.Default()

	solveTimeout := time.Duration(cfg.RouteBox.SolveTimeoutSeconds) * time.Second
	tieTolerance := float64(cfg.RouteBox.PriorityTieTolerancePct) / 100

	routesSvc := routes.New(st, provider, log, routes.Config{
		SolveTimeout:     solveTimeout,
		TieTolerance:     tieTolerance,
		ExactSearchLimit: cfg.RouteBox.ExactSearchLimit,
	})
	journeysSvc := journeys.New(st, locks, producer, log, journeys.Config{
		EventsTopic:                 eventsTopic,
		DelayReasonThresholdMinutes: cfg.RouteBox.DelayReasonThresholdMinutes,
		AutoReplanThresholdMinutes:  cfg.RouteBox.AutoReplanThresholdMinutes,
	})
	coordinator := reopt.New(st, provider, pos, locks, producer, log, reopt.Config{
		EventsTopic:      eventsTopic,
		SolveTimeout:     solveTimeout,
		Cooldown:         time.Duration(cfg.RouteBox.ReplanCooldownMinutes) * time.Minute,
		TieTolerance:     tieTolerance,
		ExactSearchLimit: cfg.RouteBox.ExactSearchLimit,
	})
	journeysSvc.SetReplanner(coordinator)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &routeAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: routeAPIOpts{
			httpAddr:      httpAddr,
			topic:         positionsTopic,
			consumerGroup: consumerGroup,
		},
		api:      api.New(routesSvc, journeysSvc, coordinator),
		pos:      pos,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func pgConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgroutes.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgroutes.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *routeAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *routeAPIApp) Run() error {
	return runRouteAPI(a.ctx, a.opts, a.api, a.consumer, a.pos)
}
