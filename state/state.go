// Package state wires the coordination primitives into one manager sharing a
// single backend store handle. The backend mode (remote or in-process
// fallback) is selected once at construction and does not change for the
// lifetime of the session.
package state

import (
	"context"
	"time"

	nats "github.com/nats-io/nats.go"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"agentstate/bus"
	"agentstate/lock"
	"agentstate/registry"
	"agentstate/store"
	"agentstate/task"
)

// Config selects the backends for a session.
type Config struct {
	// RedisAddr is the Redis address, empty for localhost:6379.
	RedisAddr string
	// RedisDB is the Redis database index.
	RedisDB int
	// Disabled forces the in-process fallback store.
	Disabled bool
	// NATSURL, when set, routes the event channel over NATS instead of the
	// store's transport.
	NATSURL string
	// AgentTTL overrides the agent presence TTL.
	AgentTTL time.Duration
}

// Manager is the shared-state coordination surface consumed by agent
// processes, dashboards and the CLI.
type Manager struct {
	Store    store.Store
	Locks    *lock.Manager
	Bus      bus.Bus
	Registry *registry.Registry
	Tasks    *task.Coordinator

	log      *zap.Logger
	client   *redis.Client
	natsConn *nats.Conn
}

// New builds a Manager from cfg. It never fails on an unreachable backend:
// the store falls back to the in-process implementation (with a logged
// notice) and the event channel degrades alongside it. An unreachable NATS
// endpoint likewise logs and falls back to the store-derived bus.
func New(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	st, client := store.Open(store.Config{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Disabled: cfg.Disabled,
	}, log)

	m := &Manager{
		Store:  st,
		Locks:  lock.New(st),
		log:    log,
		client: client,
	}

	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Warn("nats unreachable, event channel uses the store backend",
				zap.String("url", cfg.NATSURL), zap.Error(err))
		} else {
			m.natsConn = conn
			m.Bus = bus.NewNATSBus(conn, log)
		}
	}
	if m.Bus == nil {
		if client != nil {
			m.Bus = bus.NewRedisBus(client, log)
		} else {
			m.Bus = bus.NewMemoryBus(st)
		}
	}

	var regOpts []registry.Option
	if cfg.AgentTTL > 0 {
		regOpts = append(regOpts, registry.WithTTL(cfg.AgentTTL))
	}
	m.Registry = registry.New(st, regOpts...)
	m.Tasks = task.New(st, m.Locks)
	return m
}

// Stats is a point-in-time operational summary.
type Stats struct {
	Backend      string   `json:"backend"`
	ActiveAgents int      `json:"active_agents"`
	AgentList    []string `json:"agent_list"`
	Keys         int64    `json:"keys"`
}

// Stats reports the active backend, the raw agent membership set and the
// keyspace size. The agent figures come from the unpruned membership set;
// Registry.Active is the liveness-filtered view.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	names, err := m.Store.SMembers(ctx, registry.ActiveSet)
	if err != nil {
		return Stats{}, err
	}
	keys, err := m.Store.Size(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Backend:      m.Store.Backend(),
		ActiveAgents: len(names),
		AgentList:    names,
		Keys:         keys,
	}, nil
}

// Close releases the bus and any connections the manager owns.
func (m *Manager) Close() error {
	err := m.Bus.Close()
	if m.natsConn != nil {
		m.natsConn.Close()
	}
	if m.client != nil {
		if cerr := m.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
