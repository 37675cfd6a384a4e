// Package engine arma el cache offline-first y el sync de mutaciones en
// una instancia explícita con sus dependencias inyectadas. No hay estado
// global: cada Engine es autocontenido y se apaga con Shutdown.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/offsync/internal/cache"
	"github.com/dropDatabas3/offsync/internal/config"
	"github.com/dropDatabas3/offsync/internal/metrics"
	"github.com/dropDatabas3/offsync/internal/netmon"
	"github.com/dropDatabas3/offsync/internal/observability/logger"
	"github.com/dropDatabas3/offsync/internal/queue"
	"github.com/dropDatabas3/offsync/internal/status"
	"github.com/dropDatabas3/offsync/internal/storage"
	"github.com/dropDatabas3/offsync/internal/storage/secure"
)

// Options son las dependencias de un Engine.
type Options struct {
	// Config del engine; nil usa config.Default().
	Config *config.Config

	// Storage durable. Si es nil se construye desde Config (y se cierra
	// en Shutdown; un Storage inyectado lo cierra quien lo creó).
	Storage storage.Backend

	// Source de conectividad. Requerida.
	Source netmon.Source

	// Executor entrega las mutaciones contra la red. Requerido.
	Executor queue.Executor

	// Logger opcional; default el singleton del proceso.
	Logger *zap.Logger

	// Reporter recibe las fallas de storage. Default: log + métrica.
	Reporter storage.Reporter
}

// Engine es la fachada del subsistema offline-first.
type Engine struct {
	store   *cache.Store
	orch    *cache.Orchestrator
	queue   *queue.Queue
	syncer  *queue.Syncer
	monitor *netmon.Monitor
	pub     *status.Publisher

	backend      storage.Backend
	ownedBackend bool
	maxAttempts  int
	log          *zap.Logger
}

// New construye y arranca el engine: recupera la cola persistida, suscribe
// el monitor a la source y deja el timer periódico corriendo.
func New(opts Options) (*Engine, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("engine: Source es requerida")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("engine: Executor es requerido")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("engine")
	}

	e := &Engine{
		maxAttempts: cfg.Sync.MaxAttempts,
		log:         log,
	}

	report := opts.Reporter
	if report == nil {
		report = func(op, key string, err error) {
			metrics.StorageErrors.Inc()
			log.Warn("storage error (treated as absent)",
				logger.Op(op), logger.Key(key), logger.Err(err))
		}
	}

	backend := opts.Storage
	if backend == nil {
		var err error
		backend, err = newBackend(cfg)
		if err != nil {
			return nil, err
		}
		e.ownedBackend = true
	}
	e.backend = backend

	defaultTTL, err := cfg.DefaultTTL()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	rules, err := cfg.CategoryTTLs()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	table, err := cache.NewTTLTable(defaultTTL, rules)
	if err != nil {
		return nil, err
	}

	e.pub = status.NewPublisher(log.Named("status"))

	e.store = cache.NewStore(cache.StoreOptions{
		Durable: backend,
		TTL:     table,
		Report:  report,
		Schema:  cfg.Cache.SchemaVersion,
		Logger:  log.Named("cache"),
	})

	e.queue = queue.Load(context.Background(), queue.QueueOptions{
		Durable: backend,
		Report:  report,
		Logger:  log.Named("queue"),
		OnChange: func(pending int) {
			e.pub.Update(func(s *status.SyncStatus) { s.PendingCount = pending })
		},
		Kick: func() {
			if e.monitor.Online() {
				go e.syncer.Drain(context.Background())
			}
		},
	})

	e.syncer = queue.NewSyncer(queue.SyncerOptions{
		Queue:    e.queue,
		Executor: opts.Executor,
		Logger:   log.Named("sync"),
		OnState: func(syncing bool, lastSync *time.Time) {
			e.pub.Update(func(s *status.SyncStatus) {
				s.Syncing = syncing
				s.LastSyncAt = lastSync
			})
		},
		OnDrop: func(m queue.Mutation, reason string) {
			e.pub.Update(func(s *status.SyncStatus) { s.Dropped++ })
		},
	})

	syncInterval, err := cfg.SyncInterval()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.monitor = netmon.NewMonitor(netmon.MonitorOptions{
		Source:     opts.Source,
		Drain:      func() { go e.syncer.Drain(context.Background()) },
		HasPending: func() bool { return e.queue.Len() > 0 },
		Failures:   e.syncer.Failures,
		Interval:   syncInterval,
		Backoff:    netmon.NewBackoff(cfg.BackoffBase(), cfg.BackoffMax(), 0.2),
		Logger:     log.Named("netmon"),
		OnChange: func(online bool) {
			e.pub.Update(func(s *status.SyncStatus) { s.Online = online })
		},
	})

	e.orch = cache.NewOrchestrator(e.store, e.monitor.Online, log.Named("fetch"))

	// estado inicial del publisher antes de exponer nada
	e.pub.Update(func(s *status.SyncStatus) {
		s.Online = e.monitor.Online()
		s.PendingCount = e.queue.Len()
	})

	e.monitor.Start()
	log.Info("engine started",
		logger.Driver(cfg.Storage.Driver), logger.Online(e.monitor.Online()),
		logger.Pending(e.queue.Len()))
	return e, nil
}

func newBackend(cfg *config.Config) (storage.Backend, error) {
	var scfg storage.Config
	scfg.Driver = cfg.Storage.Driver
	scfg.FS.Dir = cfg.Storage.FS.Dir
	scfg.Bolt.Path = cfg.Storage.Bolt.Path
	scfg.Redis.Addr = cfg.Storage.Redis.Addr
	scfg.Redis.Password = cfg.Storage.Redis.Password
	scfg.Redis.DB = cfg.Storage.Redis.DB
	scfg.Redis.Prefix = cfg.Storage.Redis.Prefix

	backend, err := storage.New(scfg)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Encrypt.Enabled {
		key, err := secure.KeyFromEnv()
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		backend, err = secure.Wrap(backend, key)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
	}
	return backend, nil
}

// ---- Lecturas ----

// Get retorna el valor vivo cacheado para key.
func (e *Engine) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	return e.store.Get(ctx, key)
}

// GetStale retorna el valor durable aunque esté vencido.
func (e *Engine) GetStale(ctx context.Context, key string) (json.RawMessage, bool) {
	return e.store.GetStale(ctx, key)
}

// Fetch resuelve una lectura cache-first con el fetcher dado.
func (e *Engine) Fetch(ctx context.Context, key string, fetcher cache.Fetcher, opts *cache.FetchOptions) (cache.FetchResult, error) {
	return e.orch.Fetch(ctx, key, fetcher, opts)
}

// ---- Escrituras de cache ----

// Set cachea data bajo key con el TTL de su categoría.
func (e *Engine) Set(ctx context.Context, key string, data json.RawMessage) {
	e.store.Set(ctx, key, data)
}

// SetTTL cachea data con TTL explícito (cero = no cachear como viva).
func (e *Engine) SetTTL(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) {
	e.store.SetTTL(ctx, key, data, ttl)
}

// Invalidate borra una entry de ambas capas.
func (e *Engine) Invalidate(ctx context.Context, key string) {
	e.store.Invalidate(ctx, key)
}

// InvalidatePattern borra toda entry con el prefijo dado.
func (e *Engine) InvalidatePattern(ctx context.Context, prefix string) {
	e.store.InvalidatePattern(ctx, prefix)
}

// Clear vacía el cache (no toca la cola de mutaciones).
func (e *Engine) Clear(ctx context.Context) {
	e.store.Clear(ctx)
}

// ---- Mutaciones ----

// Enqueue encola una escritura para entrega eventual y retorna su ID.
// maxAttempts <= 0 usa el default de configuración. La mutación queda
// persistida antes de retornar.
func (e *Engine) Enqueue(ctx context.Context, kind queue.Kind, target string, body json.RawMessage, maxAttempts int) string {
	if maxAttempts <= 0 {
		maxAttempts = e.maxAttempts
	}
	return e.queue.Enqueue(ctx, kind, target, body, maxAttempts)
}

// Cancel remueve una mutación pendiente.
func (e *Engine) Cancel(ctx context.Context, id string) {
	e.queue.Cancel(ctx, id)
}

// Mutations retorna el snapshot FIFO de la cola.
func (e *Engine) Mutations() []queue.Mutation {
	return e.queue.List()
}

// Drain fuerza una pasada de sync (no-op si ya hay una en vuelo).
func (e *Engine) Drain(ctx context.Context) {
	e.syncer.Drain(ctx)
}

// ---- Estado ----

// Online reporta la conectividad observada.
func (e *Engine) Online() bool { return e.monitor.Online() }

// Status retorna el estado agregado actual.
func (e *Engine) Status() status.SyncStatus { return e.pub.Current() }

// Subscribe registra un listener de estado; retorna la desuscripción.
func (e *Engine) Subscribe(l status.Listener) (cancel func()) {
	return e.pub.Subscribe(l)
}

// Shutdown apaga timers y suscripciones, espera a que termine un drain en
// vuelo (con tope) y cierra el storage si es propio.
func (e *Engine) Shutdown() {
	e.monitor.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for e.syncer.Syncing() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if e.ownedBackend {
		if err := e.backend.Close(); err != nil {
			e.log.Warn("storage close failed", logger.Err(err))
		}
	}
	e.log.Info("engine stopped")
}
