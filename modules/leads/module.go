package leads

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/leadrouter/modules/leads/handlers"
	"github.com/iota-uz/leadrouter/modules/leads/infrastructure/persistence"
	"github.com/iota-uz/leadrouter/modules/leads/presentation/controllers"
	"github.com/iota-uz/leadrouter/modules/leads/services"
	"github.com/iota-uz/leadrouter/pkg/application"
	"github.com/iota-uz/leadrouter/pkg/configuration"
	"github.com/iota-uz/leadrouter/pkg/webhooks"
)

// redisLockTTL bounds how long a crashed holder can keep the allocation window.
const redisLockTTL = 30 * time.Second

type ModuleOptions struct {
	Leads configuration.LeadsOptions
	// Redis is required when Leads.AllocationLock is "redis". When set it
	// also backs webhook replay protection.
	Redis redis.UniversalClient
}

func NewModule(opts ModuleOptions) application.Module {
	return &Module{opts: opts}
}

type Module struct {
	opts ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	opts := m.opts.Leads
	ledger := persistence.NewAssignmentRepository()
	leadRepo := persistence.NewLeadRepository()
	configRepo := persistence.NewDistributionConfigRepository()
	teamRepo := persistence.NewTeamRepository()

	locker, err := m.windowLocker(app)
	if err != nil {
		return err
	}

	hierarchy := services.NewHierarchyService(teamRepo, nil)
	app.RegisterServices(
		services.NewAssignmentService(services.AssignmentServiceOptions{
			Leads:           leadRepo,
			Customers:       persistence.NewCustomerRepository(),
			Configs:         configRepo,
			Ledger:          ledger,
			Team:            teamRepo,
			Locker:          locker,
			Publisher:       app.EventPublisher(),
			Location:        opts.Location(),
			RetentionWindow: opts.RetentionWindow,
			BurstWindow:     opts.BurstWindow,
			LockTimeout:     opts.LockTimeout,
			LockRetryLimit:  opts.LockRetryLimit,
		}),
		hierarchy,
		services.NewAccessGate(leadRepo, ledger, hierarchy),
		services.NewDistributionService(configRepo, ledger, opts.Location(), opts.SimulationMaxLead),
	)

	app.RegisterControllers(
		controllers.NewLeadsAPIController(app),
	)
	if opts.WebhookSecret != "" {
		app.RegisterControllers(controllers.NewLeadsWebhookController(
			app,
			webhooks.NewHMACVerifier(opts.WebhookSecret, ""),
			m.replayProtector(),
		))
	}

	handlers.RegisterAssignmentEventHandlers(app.EventPublisher(), app.Logger())
	return nil
}

func (m *Module) windowLocker(app application.Application) (services.WindowLocker, error) {
	switch m.opts.Leads.AllocationLock {
	case "redis":
		if m.opts.Redis == nil {
			return nil, errRedisRequired
		}
		return persistence.NewRedisWindowLocker(m.opts.Redis, redisLockTTL, m.opts.Leads.LockTimeout), nil
	default:
		if app.DB() == nil {
			return nil, errPoolRequired
		}
		return persistence.NewPostgresWindowLocker(app.DB(), m.opts.Leads.LockTimeout), nil
	}
}

func (m *Module) replayProtector() webhooks.ReplayProtector {
	ttl := m.opts.Leads.WebhookReplayTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if m.opts.Redis != nil {
		return webhooks.NewRedisReplayProtector(m.opts.Redis, ttl, "")
	}
	return webhooks.NewMemoryReplayProtector(ttl, "")
}

func (m *Module) Name() string {
	return "leads"
}
