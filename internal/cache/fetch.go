package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/offsync/internal/metrics"
	"github.com/dropDatabas3/offsync/internal/observability/logger"
)

// ErrOfflineNoData se retorna cuando no hay red y no existe copia local,
// ni viva ni vencida.
var ErrOfflineNoData = errors.New("cache: offline y sin datos locales")

// Fetcher es la operación remota que produce el valor para una key.
// Es opaca para el engine: puede fallar, y el engine no interpreta su
// contenido.
type Fetcher func(ctx context.Context) (json.RawMessage, error)

// FetchOptions controla una lectura orquestada.
type FetchOptions struct {
	// TTL para el valor fetcheado. nil usa el default de la categoría;
	// un puntero a 0 desactiva el cacheo de esta escritura.
	TTL *time.Duration

	// ForceRefresh saltea el cache y va directo al fetcher.
	ForceRefresh bool

	// StaleWhileRevalidate dispara un refresh en background al servir
	// un hit vivo estando online.
	StaleWhileRevalidate bool
}

// DefaultFetchOptions retorna las opciones por defecto.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{StaleWhileRevalidate: true}
}

// FetchResult es el resultado de una lectura orquestada.
type FetchResult struct {
	Data      json.RawMessage `json:"data"`
	FromCache bool            `json:"from_cache"`
	Stale     bool            `json:"stale"`
}

// Orchestrator implementa la estrategia de lectura cache-first con
// stale-while-revalidate y fallback offline. Los fetches concurrentes para
// la misma key se coalescen via singleflight: a lo sumo un fetcher en
// vuelo por key, tanto para el refresh en background como para el miss.
type Orchestrator struct {
	store  *Store
	online func() bool
	sf     singleflight.Group
	log    *zap.Logger
}

// NewOrchestrator crea el orquestador. online reporta la conectividad
// actual (típicamente netmon.Monitor.Online).
func NewOrchestrator(store *Store, online func() bool, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = logger.Named("fetch")
	}
	return &Orchestrator{store: store, online: online, log: log}
}

// Fetch resuelve una lectura para key según opts (nil = defaults).
//
//  1. Sin ForceRefresh y con entry viva: retorna de cache; si hay red y
//     StaleWhileRevalidate, refresca en background (fallas silenciadas).
//  2. Offline sin entry viva: fallback stale, o ErrOfflineNoData.
//  3. Online sin entry viva (o forzado): fetch, set y retorno; si el
//     fetcher falla se intenta el fallback stale antes de propagar.
func (o *Orchestrator) Fetch(ctx context.Context, key string, fetcher Fetcher, opts *FetchOptions) (FetchResult, error) {
	options := DefaultFetchOptions()
	if opts != nil {
		options = *opts
	}

	if !options.ForceRefresh {
		if data, ok := o.store.Get(ctx, key); ok {
			if options.StaleWhileRevalidate && o.online() {
				o.revalidate(key, fetcher, options.TTL)
			}
			return FetchResult{Data: data, FromCache: true}, nil
		}
	}

	if !o.online() {
		if data, ok := o.store.GetStale(ctx, key); ok {
			metrics.StaleServed.Inc()
			return FetchResult{Data: data, FromCache: true, Stale: true}, nil
		}
		return FetchResult{}, ErrOfflineNoData
	}

	data, err := o.fetchAndSet(ctx, key, fetcher, options.TTL)
	if err != nil {
		if stale, ok := o.store.GetStale(ctx, key); ok {
			o.log.Debug("fetch failed, serving stale", logger.Key(key), logger.Err(err))
			metrics.StaleServed.Inc()
			return FetchResult{Data: stale, FromCache: true, Stale: true}, nil
		}
		metrics.FetchErrors.Inc()
		return FetchResult{}, fmt.Errorf("cache: fetch %s: %w", key, err)
	}
	return FetchResult{Data: data}, nil
}

// revalidate dispara un refresh en background. El resultado solo se
// observa via el cache; los errores se loguean y nunca llegan al caller
// original.
func (o *Orchestrator) revalidate(key string, fetcher Fetcher, ttl *time.Duration) {
	go func() {
		// el refresh no hereda la cancelación del request que lo disparó
		_, err := o.fetchAndSet(context.Background(), key, fetcher, ttl)
		if err != nil {
			o.log.Debug("background refresh failed", logger.Key(key), logger.Err(err))
		}
	}()
}

func (o *Orchestrator) fetchAndSet(ctx context.Context, key string, fetcher Fetcher, ttl *time.Duration) (json.RawMessage, error) {
	v, err, _ := o.sf.Do(key, func() (any, error) {
		data, err := fetcher(ctx)
		if err != nil {
			return nil, err
		}
		if ttl != nil {
			o.store.SetTTL(ctx, key, data, *ttl)
		} else {
			o.store.Set(ctx, key, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}
