package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/offsync/internal/metrics"
	"github.com/dropDatabas3/offsync/internal/observability/logger"
)

// Outcome clasifica el resultado de un intento de entrega.
type Outcome int

const (
	// OutcomeSuccess: entregada, sale de la cola.
	OutcomeSuccess Outcome = iota
	// OutcomeRetry: falla transitoria (5xx, red); reintentar en la
	// próxima pasada hasta agotar MaxAttempts.
	OutcomeRetry
	// OutcomePermanent: falla de cliente (4xx); descartar sin reintentos.
	OutcomePermanent
)

// Executor realiza la llamada de red de una mutación. Lo provee la
// aplicación; el engine solo interpreta el Outcome. El error acompaña al
// Outcome para logging, no cambia la clasificación.
type Executor interface {
	Execute(ctx context.Context, m Mutation) (Outcome, error)
}

// ExecutorFunc adapta una función a Executor.
type ExecutorFunc func(ctx context.Context, m Mutation) (Outcome, error)

func (f ExecutorFunc) Execute(ctx context.Context, m Mutation) (Outcome, error) {
	return f(ctx, m)
}

// Syncer drena la cola contra la red. A lo sumo un drain corre a la vez:
// un Drain concurrente es un no-op (se descarta, no se encola).
type Syncer struct {
	q    *Queue
	exec Executor
	log  *zap.Logger

	syncing atomic.Bool

	mu       sync.Mutex
	lastSync *time.Time
	failures int // pasadas consecutivas con fallas retriables

	// onState notifica cambios del flag syncing / lastSyncAt.
	onState func(syncing bool, lastSync *time.Time)
	// onDrop notifica mutaciones descartadas, con su razón.
	onDrop func(m Mutation, reason string)
}

// SyncerOptions configura un Syncer.
type SyncerOptions struct {
	Queue    *Queue
	Executor Executor
	Logger   *zap.Logger // opcional
	OnState  func(syncing bool, lastSync *time.Time)
	OnDrop   func(m Mutation, reason string)
}

// NewSyncer crea el syncer.
func NewSyncer(opts SyncerOptions) *Syncer {
	if opts.Logger == nil {
		opts.Logger = logger.Named("sync")
	}
	return &Syncer{
		q:       opts.Queue,
		exec:    opts.Executor,
		log:     opts.Logger,
		onState: opts.OnState,
		onDrop:  opts.OnDrop,
	}
}

// Syncing reporta si hay un drain en vuelo.
func (s *Syncer) Syncing() bool { return s.syncing.Load() }

// LastSync retorna el fin de la última pasada completada, o nil.
func (s *Syncer) LastSync() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// Failures retorna las pasadas consecutivas que dejaron mutaciones
// pendientes por fallas retriables. Lo consume el backoff del monitor.
func (s *Syncer) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Drain procesa una pasada completa sobre un snapshot de la cola, en
// orden FIFO estricto: una mutación no se entrega hasta que la anterior
// completó su intento. Idempotente y seguro ante reentradas.
func (s *Syncer) Drain(ctx context.Context) {
	if !s.syncing.CompareAndSwap(false, true) {
		return
	}
	defer s.syncing.Store(false)

	metrics.DrainsTotal.Inc()
	s.notifyState(true)

	start := time.Now()
	snapshot := s.q.List()
	retriable := 0
	for _, m := range snapshot {
		// cancelada mientras corría esta pasada
		if !s.q.pending(m.ID) {
			continue
		}

		outcome, err := s.exec.Execute(ctx, m)
		switch outcome {
		case OutcomeSuccess:
			s.q.complete(m.ID)
			metrics.MutationsDelivered.Inc()
			s.log.Debug("mutation delivered",
				logger.MutationID(m.ID), logger.Target(m.Target))

		case OutcomePermanent:
			s.q.drop(m.ID)
			metrics.MutationsDropped.WithLabelValues("client_error").Inc()
			s.log.Warn("mutation dropped: client error",
				logger.MutationID(m.ID), logger.Target(m.Target), logger.Err(err))
			s.notifyDrop(m, "client_error")

		case OutcomeRetry:
			retriable++
			if s.q.fail(m.ID) {
				metrics.MutationsDropped.WithLabelValues("max_attempts").Inc()
				s.log.Warn("mutation dropped: max attempts",
					logger.MutationID(m.ID), logger.Target(m.Target),
					logger.Attempts(m.Attempts+1), logger.Err(err))
				s.notifyDrop(m, "max_attempts")
			} else {
				s.log.Debug("mutation retriable failure",
					logger.MutationID(m.ID), logger.Target(m.Target), logger.Err(err))
			}
		}
	}

	// una persistencia por pasada, no por mutación
	s.q.flush(ctx)

	now := time.Now()
	s.mu.Lock()
	s.lastSync = &now
	if retriable > 0 {
		s.failures++
	} else {
		s.failures = 0
	}
	s.mu.Unlock()

	s.notifyState(false)
	s.log.Debug("drain complete", logger.Pending(s.q.Len()), logger.Elapsed(time.Since(start)))
}

func (s *Syncer) notifyState(syncing bool) {
	if s.onState != nil {
		s.onState(syncing, s.LastSync())
	}
}

func (s *Syncer) notifyDrop(m Mutation, reason string) {
	if s.onDrop != nil {
		s.onDrop(m, reason)
	}
}
