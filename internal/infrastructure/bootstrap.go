package infrastructure

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"pixelmint/internal/activity"
	"pixelmint/internal/bus"
	"pixelmint/internal/config"
	"pixelmint/internal/credit"
	"pixelmint/internal/dispatch"
	"pixelmint/internal/identity"
	"pixelmint/internal/provider"
	"pixelmint/internal/provider/httpapi"
	providermock "pixelmint/internal/provider/mock"
	"pixelmint/internal/ratelimit"
	"pixelmint/internal/repository"
	"pixelmint/internal/service"
	transportHTTP "pixelmint/internal/transport/http"
	transportNATS "pixelmint/internal/transport/nats"
	"pixelmint/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()

	var prov provider.Provider
	if cfg.ProviderBaseURL != "" {
		prov = httpapi.New(cfg.ProviderName, cfg.ProviderBaseURL, cfg.ProviderAPIKey)
	} else {
		// No engine configured: local development runs against the mock.
		slog.Warn("no provider url configured, using mock provider")
		prov = providermock.New()
	}

	var servers []Server

	switch cfg.StoreProvider {
	case "postgres":
		db, err := connectPostgres(cfg.DSN())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, db.Close)

		rdb, err := connectRedis(cfg.RedisAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })

		var eventBus bus.Bus = bus.Noop{}
		var svc service.GenerationService

		natsAddr, natsErr := cfg.NatsAddr()
		if natsErr == nil {
			nc, err := connectNats(natsAddr)
			if err != nil {
				return nil, runCleanup(cleanupFns), err
			}
			cleanupFns = append(cleanupFns, nc.Close)
			eventBus = transportNATS.NewBus(nc)

			svc = buildService(cfg, db, rdb, eventBus, prov)

			// NATS carries completion callbacks and feeds the journal.
			servers = append(servers, transportNATS.NewHandler(svc, nc))
			servers = append(servers, worker.NewJournalWorker(svc, nc))
		} else {
			svc = buildService(cfg, db, rdb, eventBus, prov)
		}

		servers = append(servers, transportHTTP.NewServer(cfg.ApiAddr(), svc, identity.NewHeaderResolver()))

	case "memory":
		ledger := credit.NewMemoryLedger(cfg.StartingBalance, bus.Noop{})
		limiter := ratelimit.NewMemoryLimiter(cfg.Cooldown())
		store := activity.NewMemoryStore()

		svc := dispatch.New(ledger, limiter, store, prov,
			dispatch.WithRefundOnFailure(cfg.RefundOnFailure))

		servers = append(servers, transportHTTP.NewServer(cfg.ApiAddr(), svc, identity.NewHeaderResolver()))
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// buildService assembles the postgres/redis-backed dispatcher.
func buildService(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, eventBus bus.Bus, prov provider.Provider) service.GenerationService {
	ledger := credit.NewRedisLedger(rdb, db, eventBus, cfg.StartingBalance)
	limiter := ratelimit.NewRedisLimiter(rdb, cfg.Cooldown())
	store := activity.NewPostgresStore(db)
	journal := repository.NewJournal(db)

	return dispatch.New(ledger, limiter, store, prov,
		dispatch.WithRefundOnFailure(cfg.RefundOnFailure),
		dispatch.WithJournal(journal))
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
