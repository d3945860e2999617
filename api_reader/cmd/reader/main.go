package main

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/kiliankoe/threader/api_reader/internal/handlers"
	"github.com/kiliankoe/threader/pkg/config"
	"github.com/kiliankoe/threader/pkg/logging"
	"github.com/kiliankoe/threader/pkg/middleware"
	"github.com/kiliankoe/threader/pkg/monitoring"
	"github.com/kiliankoe/threader/pkg/redis"
	"github.com/kiliankoe/threader/pkg/server"
	"github.com/kiliankoe/threader/pkg/session"
	"github.com/kiliankoe/threader/pkg/threads/platforms"
	"github.com/kiliankoe/threader/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("reader")
	config.LoadEnv(logger)

	port := config.GetEnv("PORT", "18040")
	sessionTTL := config.GetEnvDuration("SESSION_TTL", session.DefaultTTL)
	requestTimeout := config.GetEnvDuration("REQUEST_TIMEOUT", 60*time.Second)

	fetchConfig := platforms.ConfigFromEnv()
	set := platforms.New(fetchConfig, logger)

	healthChecker := monitoring.NewHealthChecker("reader", version.Version)
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"FETCH_USER_AGENT": fetchConfig.UserAgent,
		"BLUESKY_API_BASE": fetchConfig.BlueskyBaseURL,
	}))
	metricsCollector := monitoring.NewMetricsCollector("reader", version.Version, version.GitCommit)

	var store session.Store
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := redis.NewClientFromURL(ctx, redisURL)
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to redis")
		}
		defer client.Close()
		store = session.NewRedisStore(client, sessionTTL)
		healthChecker.AddCheck("redis", monitoring.PingHealthCheck("redis", redisPinger{client}))
		logger.Info("Using redis session store")
	} else {
		memStore := session.NewMemoryStore(sessionTTL)
		store = memStore

		sweeper := cron.New()
		if _, err := sweeper.AddFunc(config.GetEnv("SESSION_SWEEP_SCHEDULE", "@every 5m"), func() {
			if n := memStore.Sweep(); n > 0 {
				logger.WithField("removed", n).Debug("Swept expired sessions")
			}
		}); err != nil {
			logger.WithError(err).Fatal("Invalid SESSION_SWEEP_SCHEDULE")
		}
		sweeper.Start()
		defer sweeper.Stop()
		logger.Info("Using in-memory session store")
	}

	breakers := make([]monitoring.Breaker, 0, len(set.Fetchers))
	for _, b := range set.Breakers() {
		breakers = append(breakers, b)
	}
	healthChecker.AddCheck("upstream_circuits", monitoring.CircuitBreakerHealthCheck(breakers...))

	manager := session.NewManager(store, set.Registry, logger)
	threadHandler := handlers.NewThreadHandler(manager, set.Registry, logger,
		&handlers.ReaderMetrics{SessionMetrics: metricsCollector.CreateSessionMetrics()})

	app := server.SetupServiceRouter(logger, "reader", healthChecker, metricsCollector)
	api := app.Group("/api/v1")
	api.Use(middleware.TimeoutMiddleware(requestTimeout))
	api.Use(middleware.BearerTokenMiddleware(config.GetEnv("READER_API_TOKEN", "")))
	threadHandler.Register(api)

	serverConfig := server.DefaultConfig("reader", port)
	if requestTimeout+10*time.Second > serverConfig.WriteTimeout {
		serverConfig.WriteTimeout = requestTimeout + 10*time.Second
	}
	if err := server.Start(serverConfig, app, logger); err != nil {
		logger.Fatal(err.Error())
	}
}

type redisPinger struct {
	client goredis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
