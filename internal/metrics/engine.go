package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del engine. Paquete aparte para evitar ciclos de import
// entre cache/queue y el listener HTTP de debug.

var (
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offsync_cache_hits_total",
		Help: "Lecturas servidas desde cache (memoria o durable, entry viva)",
	})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offsync_cache_misses_total",
		Help: "Lecturas sin entry viva en ninguna capa",
	})

	StaleServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offsync_cache_stale_served_total",
		Help: "Lecturas resueltas con una entry vencida (fallback offline)",
	})

	FetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offsync_fetch_errors_total",
		Help: "Errores del fetcher sin fallback stale disponible",
	})

	StorageErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offsync_storage_errors_total",
		Help: "Fallas del backend durable (tratadas como entry ausente)",
	})

	DrainsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offsync_drains_total",
		Help: "Pasadas de drain ejecutadas",
	})

	MutationsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offsync_mutations_enqueued_total",
		Help: "Mutaciones encoladas",
	})

	MutationsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offsync_mutations_delivered_total",
		Help: "Mutaciones entregadas con éxito",
	})

	MutationsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offsync_mutations_dropped_total",
		Help: "Mutaciones descartadas, por razón (client_error | max_attempts | cancelled)",
	}, []string{"reason"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offsync_queue_depth",
		Help: "Mutaciones pendientes en la cola",
	})
)

// Register registra las métricas del engine en el registry dado (o el default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cs := []prometheus.Collector{
		CacheHits, CacheMisses, StaleServed, FetchErrors, StorageErrors,
		DrainsTotal, MutationsEnqueued, MutationsDelivered, MutationsDropped,
		QueueDepth,
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
