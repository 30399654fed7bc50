package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/angeloszaimis/edge-tracker/config"
	"github.com/angeloszaimis/edge-tracker/internal/circuitbreaker"
	"github.com/angeloszaimis/edge-tracker/internal/dispatch"
	"github.com/angeloszaimis/edge-tracker/internal/eligibility"
	"github.com/angeloszaimis/edge-tracker/internal/handler"
	"github.com/angeloszaimis/edge-tracker/internal/healthcheck"
	"github.com/angeloszaimis/edge-tracker/internal/httpserver"
	"github.com/angeloszaimis/edge-tracker/internal/metrics"
	"github.com/angeloszaimis/edge-tracker/internal/origin"
	"github.com/angeloszaimis/edge-tracker/internal/tracking"
	"github.com/angeloszaimis/edge-tracker/pkg/logger"
)

const metricsBufferSize = 1000

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	forwarder, err := buildForwarder(cfg.Origin, log)
	if err != nil {
		log.Error("Failed to create origin forwarder", slog.Any("err", err))
		os.Exit(1)
	}

	redisClient := newRedisClient(ctx, cfg.Redis, log)

	senders, err := buildSenders(cfg, redisClient)
	if err != nil {
		log.Error("Failed to create tracking senders", slog.Any("err", err))
		os.Exit(1)
	}

	breakers := circuitbreaker.NewRegistry(cfg.CircuitBreaker.Threshold, cfg.CircuitBreaker.ResetTimeoutDuration())
	breakers.OnStateChange(func(name string, from, to circuitbreaker.State) {
		log.Warn("Tracking sender circuit changed",
			slog.String("sender", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})

	reporter := buildReporter(cfg.Tracking, senders, breakers, log)

	// The collector outlives the signal context so tasks drained at shutdown
	// are still counted.
	metricsCtx, cancelMetrics := context.WithCancel(context.Background())
	defer cancelMetrics()

	metricsCollector := metrics.NewCollector(metricsBufferSize, log)
	metricsCollector.Start(metricsCtx)
	stopMetrics := func() {
		cancelMetrics()
		<-metricsCollector.Done()
	}

	dispatcher := dispatch.New(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, log)
	dispatcher.Start()

	edgeHandler := handler.NewEdgeHandler(log, forwarder, reporter, dispatcher, metricsCollector, cfg.Tracking.ClientIPHeader)

	router := setupRouter(edgeHandler, map[string]http.Handler{
		cfg.Metrics.Path: metricsCollector.Handler(),
		cfg.Health.Path:  healthcheck.Handler(breakers, dispatcher),
	})

	srv, err := httpserver.New(cfg.Server.Address, router,
		httpserver.WithProxyProtocol(cfg.Server.ProxyProtocol),
		httpserver.WithTimeouts(cfg.Server.ReadHeaderTimeoutDuration(), cfg.Server.IdleTimeoutDuration()))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Edge tracker listening",
		slog.String("address", cfg.Server.Address),
		slog.String("origin", originLabel(forwarder.Target())),
		slog.String("profile", cfg.Tracking.Profile),
		slog.Int("senders", len(senders)))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := shutdown(srv, dispatcher, stopMetrics, redisClient, cfg.Dispatch.ShutdownTimeoutDuration()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting edge tracker", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildForwarder(cfg config.OriginConfig, log *slog.Logger) (*origin.Forwarder, error) {
	var target *url.URL
	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, err
		}
		target = u
	}

	return origin.New(target, log, origin.WithForwardedFor(cfg.AppendForwardedFor)), nil
}

// newRedisClient returns nil when no address is configured. An unreachable
// server is logged and kept: the sender fails per event instead.
func newRedisClient(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) *redis.Client {
	if cfg.Address == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis not reachable, events will fail until it is",
			slog.String("address", cfg.Address),
			slog.String("error", err.Error()))
	}

	return client
}

func buildSenders(cfg *config.Config, redisClient *redis.Client) ([]tracking.Sender, error) {
	var senders []tracking.Sender

	if cfg.Tracking.APIURL != "" {
		httpClient := &http.Client{Timeout: cfg.Tracking.TimeoutDuration()}

		switch cfg.Tracking.Transport {
		case config.TransportClient:
			sender, err := tracking.NewClientSender(cfg.Tracking.APIURL, tracking.ClientIdentity{
				WebsiteKey:      cfg.Tracking.WebsiteKey,
				IntegrationType: cfg.Tracking.IntegrationType,
			}, httpClient)
			if err != nil {
				return nil, err
			}
			senders = append(senders, sender)
		default:
			sender, err := tracking.NewQuerySender(cfg.Tracking.APIURL, httpClient)
			if err != nil {
				return nil, err
			}
			senders = append(senders, sender)
		}
	}

	if redisClient != nil {
		senders = append(senders, tracking.NewRedisSender(redisClient, cfg.Redis.Key))
	}

	return senders, nil
}

func buildReporter(cfg config.TrackingConfig, senders []tracking.Sender, breakers *circuitbreaker.Registry, log *slog.Logger) *tracking.Reporter {
	profile := eligibility.Profile(cfg.Profile)
	policy := eligibility.ForProfile(profile, cfg.SkipExtensions, cfg.SkipPaths)

	return tracking.NewReporter(cfg.WebsiteKey, policy, senders, log,
		tracking.WithBreakers(breakers),
		tracking.WithResponseCapture(profile.CapturesResponse()))
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops accepting requests, waits for background tracking, flushes
// metrics and then releases the Redis connection. stopMetrics may be nil.
func shutdown(srv, dispatcher shutdowner, stopMetrics func(), redisClient *redis.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	err = multierr.Append(err, dispatcher.Shutdown(ctx))

	if stopMetrics != nil {
		stopMetrics()
	}

	if redisClient != nil {
		err = multierr.Append(err, redisClient.Close())
	}

	return err
}

func originLabel(target *url.URL) string {
	if target == nil {
		return "passthrough"
	}
	return target.String()
}
