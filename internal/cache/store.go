package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/dropDatabas3/offsync/internal/metrics"
	"github.com/dropDatabas3/offsync/internal/observability/logger"
	"github.com/dropDatabas3/offsync/internal/storage"
)

// Store es el Cache Store de dos capas: go-cache en memoria (fast path,
// maneja su propia expiración) y un storage.Backend durable debajo.
// La capa durable es best-effort: sus fallas se reportan y se tratan como
// entry ausente, nunca se propagan al caller.
type Store struct {
	mem     *gocache.Cache
	durable storage.Backend
	ttl     *TTLTable
	report  storage.Reporter
	schema  int
	log     *zap.Logger
}

// StoreOptions configura un Store.
type StoreOptions struct {
	Durable storage.Backend
	TTL     *TTLTable
	Report  storage.Reporter // opcional; default NopReporter
	Schema  int              // schema version estampada en cada entry
	Logger  *zap.Logger      // opcional
}

// NewStore crea el store. Durable y TTL son obligatorios.
func NewStore(opts StoreOptions) *Store {
	if opts.Report == nil {
		opts.Report = storage.NopReporter
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("cache")
	}
	return &Store{
		// go-cache limpia entries vencidas cada 5m; la expiración por
		// entry la seteamos nosotros en cada promote/Set.
		mem:     gocache.New(gocache.NoExpiration, 5*time.Minute),
		durable: opts.Durable,
		ttl:     opts.TTL,
		report:  opts.Report,
		schema:  opts.Schema,
		log:     opts.Logger,
	}
}

// Get retorna el valor vivo para key, o ok=false. Nunca retorna una entry
// vencida, pero tampoco la borra: la copia durable queda para el fallback
// stale (GetStale). Se supera con el próximo Set o con Invalidate/Clear.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	if v, ok := s.mem.Get(key); ok {
		metrics.CacheHits.Inc()
		return v.(*Entry).Data, true
	}

	e, ok := s.readDurable(ctx, key)
	if !ok {
		metrics.CacheMisses.Inc()
		return nil, false
	}

	now := time.Now()
	if !e.Live(now) {
		metrics.CacheMisses.Inc()
		return nil, false
	}

	// promote a la capa de memoria con el TTL restante
	s.mem.Set(key, e, e.Remaining(now))
	metrics.CacheHits.Inc()
	return e.Data, true
}

// GetStale retorna el valor durable aunque esté vencido, para fallback
// offline. No promueve la entry ni refresca su expiración.
func (s *Store) GetStale(ctx context.Context, key string) (json.RawMessage, bool) {
	if v, ok := s.mem.Get(key); ok {
		return v.(*Entry).Data, true
	}
	e, ok := s.readDurable(ctx, key)
	if !ok {
		return nil, false
	}
	return e.Data, true
}

// Set escribe data bajo key con el TTL por defecto de su categoría.
func (s *Store) Set(ctx context.Context, key string, data json.RawMessage) {
	s.SetTTL(ctx, key, data, s.ttl.For(key))
}

// SetTTL escribe data bajo key con un TTL explícito. TTL cero es válido:
// la entry nace vencida (solo sirve como fallback stale). La entry previa
// se reemplaza entera, sin merge.
func (s *Store) SetTTL(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) {
	now := time.Now()
	e := &Entry{
		Data:          data,
		WrittenAt:     now.UnixMilli(),
		ExpiresAt:     now.Add(ttl).UnixMilli(),
		SchemaVersion: s.schema,
	}

	raw, err := json.Marshal(e)
	if err != nil {
		// data viene de json.RawMessage, no debería pasar
		s.report("marshal", key, err)
		return
	}
	if err := s.durable.Set(ctx, storageKey(key), raw); err != nil {
		s.report("set", key, err)
	}

	if ttl > 0 {
		s.mem.Set(key, e, ttl)
	} else {
		s.mem.Delete(key)
	}
}

// Invalidate elimina la entry de ambas capas.
func (s *Store) Invalidate(ctx context.Context, key string) {
	s.mem.Delete(key)
	if err := s.durable.Delete(ctx, storageKey(key)); err != nil {
		s.report("delete", key, err)
	}
}

// InvalidatePattern elimina toda entry cuya key empiece con prefix.
func (s *Store) InvalidatePattern(ctx context.Context, prefix string) {
	for k := range s.mem.Items() {
		if strings.HasPrefix(k, prefix) {
			s.mem.Delete(k)
		}
	}
	s.dropDurable(ctx, storagePrefix+prefix)
}

// Clear vacía el cache completo.
func (s *Store) Clear(ctx context.Context) {
	s.mem.Flush()
	s.dropDurable(ctx, storagePrefix)
}

// Len retorna la cantidad de entries en la capa de memoria.
func (s *Store) Len() int { return s.mem.ItemCount() }

func (s *Store) readDurable(ctx context.Context, key string) (*Entry, bool) {
	raw, err := s.durable.Get(ctx, storageKey(key))
	if err != nil {
		if !storage.IsNotFound(err) {
			s.report("get", key, err)
		}
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// entry corrupta: descartarla es más sano que fallar lecturas para siempre
		s.report("unmarshal", key, err)
		if derr := s.durable.Delete(ctx, storageKey(key)); derr != nil {
			s.report("delete", key, derr)
		}
		return nil, false
	}
	return &e, true
}

func (s *Store) dropDurable(ctx context.Context, prefix string) {
	keys, err := s.durable.Keys(ctx, prefix)
	if err != nil {
		s.report("keys", prefix, err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.durable.DeleteMany(ctx, keys); err != nil {
		s.report("delete_many", prefix, err)
	}
	s.log.Debug("cache invalidated", logger.Key(prefix), zap.Int("count", len(keys)))
}
