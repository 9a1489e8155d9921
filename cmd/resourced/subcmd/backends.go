package subcmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/vinayprograms/resourcekit/bus"
	"github.com/vinayprograms/resourcekit/config"
	"github.com/vinayprograms/resourcekit/ledger"
	"github.com/vinayprograms/resourcekit/state"
)

// openStore builds the state backend named by cfg.State.Backend. The
// returned close func releases the store and any connection it owns.
func openStore(ctx context.Context, cfg *config.Config) (state.Store, func() error, error) {
	sc := cfg.State
	switch sc.Backend {
	case config.BackendMemory:
		s := state.NewMemoryStore()
		return s, s.Close, nil

	case config.BackendNATS:
		nc, err := nats.Connect(sc.NATS.URL, nats.Name("resourced-state"))
		if err != nil {
			return nil, nil, fmt.Errorf("nats connect %s: %w", sc.NATS.URL, err)
		}
		s, err := state.NewNATSStore(ctx, state.NATSStoreConfig{
			Conn:     nc,
			Bucket:   sc.NATS.Bucket,
			Replicas: sc.NATS.Replicas,
		})
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return s, func() error {
			err := s.Close()
			nc.Close()
			return err
		}, nil

	case config.BackendEtcd:
		s, err := state.NewEtcdStore(state.EtcdStoreConfig{
			Endpoints:   sc.Etcd.Endpoints,
			DialTimeout: sc.Etcd.DialTimeout.Duration,
			Namespace:   sc.Etcd.Namespace,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.BackendRedis:
		s, err := state.NewRedisStore(state.RedisStoreConfig{
			Addr:      sc.Redis.Addr,
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			Namespace: sc.Redis.Namespace,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown state backend %q", sc.Backend)
}

// openLedger builds the audit ledger named by cfg.Ledger.Backend.
func openLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, func() error, error) {
	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		return ledger.NewMemoryLedger(), func() error { return nil }, nil
	case config.BackendPostgres:
		l, pool, err := openPostgresLedger(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return l, func() error { pool.Close(); return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
}

func openPostgresLedger(ctx context.Context, cfg *config.Config) (*ledger.PostgresLedger, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.Ledger.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("create postgres pool: %w", err)
	}
	l, err := ledger.NewPostgresLedgerFromPool(ctx, pool, cfg.Ledger.Table)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return l, pool, nil
}

// openEventBus connects the NATS event bus, or returns nil when
// events.nats_url is unset.
func openEventBus(cfg *config.Config) (*bus.NATSBus, error) {
	if cfg.Events.NATSURL == "" {
		return nil, nil
	}
	bc := bus.DefaultNATSConfig()
	bc.URL = cfg.Events.NATSURL
	return bus.NewNATSBus(bc)
}
