// Package status agrega el estado observable del engine y lo publica a
// subscribers en cada cambio.
package status

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/offsync/internal/observability/logger"
)

// SyncStatus es el registro derivado del estado del engine. No se
// persiste: se recomputa y se difunde ante cada cambio de entrada.
type SyncStatus struct {
	Online       bool       `json:"online"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	PendingCount int        `json:"pending_count"`
	Syncing      bool       `json:"syncing"`

	// Dropped acumula las mutaciones descartadas (reintentos agotados o
	// error de cliente) desde el arranque. No hay canal de vuelta al
	// caller original del enqueue; este contador es la señal para la UI.
	Dropped int `json:"dropped"`
}

func (s SyncStatus) equal(o SyncStatus) bool {
	if s.Online != o.Online || s.PendingCount != o.PendingCount ||
		s.Syncing != o.Syncing || s.Dropped != o.Dropped {
		return false
	}
	switch {
	case s.LastSyncAt == nil && o.LastSyncAt == nil:
		return true
	case s.LastSyncAt == nil || o.LastSyncAt == nil:
		return false
	}
	return s.LastSyncAt.Equal(*o.LastSyncAt)
}

// Listener recibe cada SyncStatus nuevo.
type Listener func(SyncStatus)

// Publisher mantiene el SyncStatus actual y notifica subscribers de forma
// síncrona en cada cambio. Un listener que entra en pánico queda aislado:
// los demás igual reciben la notificación.
type Publisher struct {
	mu        sync.Mutex
	cur       SyncStatus
	listeners map[int]Listener
	next      int
	log       *zap.Logger
}

// NewPublisher crea el publisher con estado inicial cero.
func NewPublisher(log *zap.Logger) *Publisher {
	if log == nil {
		log = logger.Named("status")
	}
	return &Publisher{listeners: make(map[int]Listener), log: log}
}

// Current retorna el estado actual.
func (p *Publisher) Current() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

// Subscribe registra un listener y retorna su función de desuscripción.
// El listener recibe el estado actual inmediatamente.
func (p *Publisher) Subscribe(l Listener) (cancel func()) {
	p.mu.Lock()
	id := p.next
	p.next++
	p.listeners[id] = l
	cur := p.cur
	p.mu.Unlock()

	p.deliver(l, cur)

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Update aplica mutate sobre el estado y, si cambió, notifica a todos los
// subscribers en el mismo turno (síncrono con el caller).
func (p *Publisher) Update(mutate func(*SyncStatus)) {
	p.mu.Lock()
	prev := p.cur
	mutate(&p.cur)
	changed := !p.cur.equal(prev)
	cur := p.cur
	fns := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		fns = append(fns, l)
	}
	p.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range fns {
		p.deliver(l, cur)
	}
}

// deliver invoca un listener aislando pánicos para no abortar la
// notificación al resto.
func (p *Publisher) deliver(l Listener, s SyncStatus) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("status listener panicked", zap.Any("panic", r))
		}
	}()
	l(s)
}
