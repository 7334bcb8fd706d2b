package daemon

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"courier/internal/api"
	"courier/internal/bus"
	"courier/internal/cassandra"
	"courier/internal/chat"
	"courier/internal/config"
	"courier/internal/health"
	"courier/internal/lock"
	"courier/internal/logging"
	"courier/internal/status"
	"courier/internal/store"
)

// Storage is the executor the daemon runs on, plus the liveness probe
// the health loop needs. Both backends satisfy it.
type Storage interface {
	store.Executor
	Ping(ctx context.Context) error
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStorage,
			provideAllocator,
			provideConversationIndex,
			provideMessageLog,
			provideChatService,
			provideHandlers,
			provideProber,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath, "courierd")
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring daemon lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideStorage(cfg *config.Config, logger *zap.Logger) (Storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Info("using in-memory storage")
		return store.NewMemExec(), nil
	case config.StorageCassandra:
		logger.Info("connecting to cassandra",
			zap.Strings("hosts", cfg.Cassandra.Hosts),
			zap.String("keyspace", cfg.Cassandra.Keyspace),
		)
		sess, err := cassandra.Open(cassandra.Config{
			Hosts:          cfg.Cassandra.Hosts,
			Port:           cfg.Cassandra.Port,
			Keyspace:       cfg.Cassandra.Keyspace,
			ConnectTimeout: cfg.Cassandra.DialTimeout(),
			RequestTimeout: cfg.Cassandra.QueryTimeout(),
		})
		if err != nil {
			return nil, err
		}
		logger.Info("cassandra ready")
		return sess, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

func provideAllocator(s Storage) *store.Allocator {
	return store.NewAllocator(s)
}

func provideConversationIndex(s Storage, alloc *store.Allocator) *store.ConversationIndex {
	return store.NewConversationIndex(s, alloc)
}

func provideMessageLog(s Storage, alloc *store.Allocator) *store.MessageLog {
	return store.NewMessageLog(s, alloc)
}

func provideChatService(convs *store.ConversationIndex, msgs *store.MessageLog, b *bus.Bus) *chat.Service {
	return chat.NewService(convs, msgs, b)
}

func provideHandlers(svc *chat.Service, m *status.Machine, logger *zap.Logger) *api.Handlers {
	return api.NewHandlers(svc, m, logger)
}

func provideProber(s Storage, m *status.Machine, logger *zap.Logger) *health.Prober {
	return health.NewProber(s, m, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, s Storage, lk *lock.Lock, prober *health.Prober, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	// Mirror conversation activity into the log.
	ch, unsub := b.Subscribe("conversation.", 256)
	go func() {
		for evt := range ch {
			if upd, ok := evt.Payload.(bus.ConversationUpdated); ok {
				logger.Info("conversation updated",
					zap.Int64("conversation_id", upd.ConversationID),
					zap.Time("last_at", upd.LastAt),
				)
			}
		}
	}()

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			prober.Start(context.Background())

			if err := machine.Transition(status.Ready); err != nil {
				return err
			}
			logger.Info("daemon ready", zap.String("addr", srv.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			prober.Stop()
			srv.Stop(ctx)
			unsub()
			if closer, ok := s.(interface{ Close() }); ok {
				closer.Close()
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			_ = machine.Transition(status.Stopped)
			logger.Info("daemon stopped")
			return nil
		},
	})
}
