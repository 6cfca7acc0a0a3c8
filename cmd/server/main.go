package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/leadrouter/internal/server"
	"github.com/iota-uz/leadrouter/modules/leads"
	"github.com/iota-uz/leadrouter/modules/leads/infrastructure/persistence"
	"github.com/iota-uz/leadrouter/modules/leads/services"
	"github.com/iota-uz/leadrouter/pkg/application"
	"github.com/iota-uz/leadrouter/pkg/authz"
	"github.com/iota-uz/leadrouter/pkg/configuration"
	"github.com/iota-uz/leadrouter/pkg/eventbus"
	"github.com/iota-uz/leadrouter/pkg/logging"
	"github.com/iota-uz/leadrouter/pkg/metrics"
)

type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
		)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	if conf.Leads.AutoMigrate {
		if err := persistence.Migrate(context.Background(), pool, persistence.MigrateUp, os.Stdout); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}

	services.UseAuthorizer(authz.Use())

	checks := map[string]metrics.Pinger{"postgres": pool}
	var redisClient redis.UniversalClient
	if conf.Leads.AllocationLock == "redis" {
		redisClient = redis.NewClient(&redis.Options{Addr: conf.RedisURL})
		defer redisClient.Close()
		checks["redis"] = redisPinger{client: redisClient}
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := application.Load(app, leads.NewModule(leads.ModuleOptions{
		Leads: conf.Leads,
		Redis: redisClient,
	})); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}

	app.RegisterControllers(metrics.NewHealthController(checks))
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := serverInstance.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("graceful shutdown failed")
		}
	}()

	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
