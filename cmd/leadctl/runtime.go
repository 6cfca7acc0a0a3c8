package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/leadrouter/modules/leads"
	"github.com/iota-uz/leadrouter/pkg/application"
	"github.com/iota-uz/leadrouter/pkg/composables"
	"github.com/iota-uz/leadrouter/pkg/configuration"
	"github.com/iota-uz/leadrouter/pkg/eventbus"
)

func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, configuration.Use().Database.Opts)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return pool, nil
}

// runtime is a leads module loaded against the configured database. The
// allocation window always uses the postgres lock here.
type runtime struct {
	app  application.Application
	pool *pgxpool.Pool
}

func openRuntime(ctx context.Context) (*runtime, context.Context, error) {
	conf := configuration.Use()
	pool, err := connectDB(ctx)
	if err != nil {
		return nil, ctx, err
	}
	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(conf.Logger()),
		Logger:   conf.Logger(),
	})
	opts := conf.Leads
	opts.AllocationLock = "postgres"
	if err := application.Load(app, leads.NewModule(leads.ModuleOptions{Leads: opts})); err != nil {
		pool.Close()
		return nil, ctx, err
	}
	return &runtime{app: app, pool: pool}, composables.WithPool(ctx, pool), nil
}

func (r *runtime) Close() {
	r.pool.Close()
}
