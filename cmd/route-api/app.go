package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/RouteBox/internal/api"
	"github.com/BearBump/RouteBox/internal/broker/messages"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/positions"
)

type routeAPIOpts struct {
	httpAddr string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// runRouteAPI serves the JSON API and, in the same process, consumes the
// driver position topic so reoptimization always has a fresh origin.
func runRouteAPI(ctx context.Context, opts routeAPIOpts, a *api.API, consumer kafkaConsumer, pos *positions.Store) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: a.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			_ = consumer.Consume(ctx, func(_key, value []byte) error {
				var m messages.DriverPosition
				if err := json.Unmarshal(value, &m); err != nil {
					return err
				}
				return pos.Set(ctx, m.JourneyID, geo.Point{Lat: m.Lat, Lng: m.Lng}, m.RecordedAt)
			})
		}()
	}

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
