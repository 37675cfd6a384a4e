package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/offsync/internal/metrics"
	"github.com/dropDatabas3/offsync/internal/observability/logger"
	"github.com/dropDatabas3/offsync/internal/storage"
)

// queueKey es la key singleton donde se persiste la lista completa.
const queueKey = "mutation-queue"

// Queue es la cola FIFO durable de mutaciones pendientes. Cada Enqueue
// persiste la lista completa antes de retornar, para que un crash entre
// el enqueue y el primer intento de sync no pierda la mutación.
type Queue struct {
	mu      sync.Mutex
	items   []Mutation
	durable storage.Backend
	report  storage.Reporter
	log     *zap.Logger

	// onChange se invoca (fuera del lock) con el nuevo tamaño de la cola.
	onChange func(pending int)
	// kick pide un intento de sync inmediato tras un enqueue.
	kick func()
}

// QueueOptions configura una Queue.
type QueueOptions struct {
	Durable  storage.Backend
	Report   storage.Reporter // opcional
	Logger   *zap.Logger      // opcional
	OnChange func(pending int)
	Kick     func()
}

// Load construye la cola recuperando el estado persistido. Una cola
// corrupta o ilegible arranca vacía (se reporta, no se falla: perder la
// cola es preferible a no poder arrancar el engine).
func Load(ctx context.Context, opts QueueOptions) *Queue {
	if opts.Report == nil {
		opts.Report = storage.NopReporter
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("queue")
	}
	q := &Queue{
		durable:  opts.Durable,
		report:   opts.Report,
		log:      opts.Logger,
		onChange: opts.OnChange,
		kick:     opts.Kick,
	}

	raw, err := q.durable.Get(ctx, queueKey)
	switch {
	case err == nil:
		if uerr := json.Unmarshal(raw, &q.items); uerr != nil {
			q.report("unmarshal", queueKey, uerr)
			q.items = nil
		}
	case !storage.IsNotFound(err):
		q.report("get", queueKey, err)
	}

	if n := len(q.items); n > 0 {
		q.log.Info("recovered pending mutations", logger.Pending(n))
	}
	metrics.QueueDepth.Set(float64(len(q.items)))
	return q
}

// Enqueue agrega una mutación al final de la cola, la persiste y retorna
// su ID. Si hay red, pide un drain inmediato; el ID se retorna igual
// aunque ese sync posterior falle.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, target string, body json.RawMessage, maxAttempts int) string {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	m := Mutation{
		ID:          uuid.NewString(),
		Kind:        kind,
		Target:      target,
		Body:        body,
		EnqueuedAt:  time.Now().UnixMilli(),
		MaxAttempts: maxAttempts,
	}

	q.mu.Lock()
	q.items = append(q.items, m)
	q.persistLocked(ctx)
	n := len(q.items)
	q.mu.Unlock()

	metrics.MutationsEnqueued.Inc()
	q.log.Debug("mutation enqueued",
		logger.MutationID(m.ID), logger.Kind(string(kind)), logger.Target(target))

	q.changed(n)
	if q.kick != nil {
		q.kick()
	}
	return m.ID
}

// Cancel remueve la mutación si sigue pendiente; no-op si ya fue drenada.
// Una mutación en vuelo durante el drain actual igual completa, pero su
// resultado se descarta y no se re-aplica.
func (q *Queue) Cancel(ctx context.Context, id string) {
	q.mu.Lock()
	removed := q.removeLocked(id)
	if removed {
		q.persistLocked(ctx)
	}
	n := len(q.items)
	q.mu.Unlock()

	if removed {
		metrics.MutationsDropped.WithLabelValues("cancelled").Inc()
		q.log.Debug("mutation cancelled", logger.MutationID(id))
		q.changed(n)
	}
}

// List retorna una copia snapshot de la cola, en orden FIFO.
func (q *Queue) List() []Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Mutation, len(q.items))
	copy(out, q.items)
	return out
}

// Len retorna la cantidad de mutaciones pendientes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pending reporta si id sigue en la cola (para saltear canceladas
// durante un drain).
func (q *Queue) pending(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == id {
			return true
		}
	}
	return false
}

// complete remueve una mutación entregada. No persiste: el syncer
// persiste una sola vez al final de la pasada via flush.
func (q *Queue) complete(id string) {
	q.mu.Lock()
	q.removeLocked(id)
	n := len(q.items)
	q.mu.Unlock()
	q.changed(n)
}

// drop remueve una mutación descartada (falla no retriable).
func (q *Queue) drop(id string) {
	q.complete(id)
}

// fail incrementa attempts; si alcanzó MaxAttempts la remueve y retorna
// true (descartada).
func (q *Queue) fail(id string) bool {
	q.mu.Lock()
	dropped := false
	for i := range q.items {
		if q.items[i].ID != id {
			continue
		}
		q.items[i].Attempts++
		if q.items[i].Attempts >= q.items[i].MaxAttempts {
			q.items = append(q.items[:i], q.items[i+1:]...)
			dropped = true
		}
		break
	}
	n := len(q.items)
	q.mu.Unlock()
	q.changed(n)
	return dropped
}

// flush persiste la cola una vez, al final de una pasada de drain.
func (q *Queue) flush(ctx context.Context) {
	q.mu.Lock()
	q.persistLocked(ctx)
	q.mu.Unlock()
}

func (q *Queue) removeLocked(id string) bool {
	for i := range q.items {
		if q.items[i].ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) persistLocked(ctx context.Context) {
	raw, err := json.Marshal(q.items)
	if err != nil {
		q.report("marshal", queueKey, err)
		return
	}
	if err := q.durable.Set(ctx, queueKey, raw); err != nil {
		q.report("set", queueKey, err)
	}
}

func (q *Queue) changed(pending int) {
	metrics.QueueDepth.Set(float64(pending))
	if q.onChange != nil {
		q.onChange(pending)
	}
}
