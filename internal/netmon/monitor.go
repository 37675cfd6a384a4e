package netmon

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/offsync/internal/observability/logger"
)

// DefaultInterval del timer periódico de sync.
const DefaultInterval = 30 * time.Second

// Monitor envuelve una Source y es el único componente que dispara trabajo
// espontáneamente: invoca Drain en el flanco offline->online (exactamente
// una vez por transición) y en un timer periódico mientras haya red y
// mutaciones pendientes. Nunca toca el cache directamente.
type Monitor struct {
	src    Source
	online atomic.Bool

	// Drain dispara una pasada de sync; corre en la goroutine del monitor.
	drain func()
	// HasPending reporta si la cola tiene mutaciones.
	hasPending func() bool
	// Failures alimenta el backoff del timer (pasadas fallidas consecutivas).
	failures func() int
	// OnChange notifica cada transición de conectividad (ambos sentidos).
	onChange func(online bool)

	interval time.Duration
	backoff  *Backoff
	log      *zap.Logger

	mu        sync.Mutex
	lastDrain time.Time

	unsub   func()
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// MonitorOptions configura un Monitor.
type MonitorOptions struct {
	Source     Source
	Drain      func()
	HasPending func() bool
	Failures   func() int       // opcional; sin esto el timer no hace backoff
	OnChange   func(online bool) // opcional
	Interval   time.Duration     // opcional; default DefaultInterval
	Backoff    *Backoff          // opcional
	Logger     *zap.Logger       // opcional
}

// NewMonitor crea el monitor. Llamar Start para activarlo.
func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Backoff == nil {
		opts.Backoff = NewBackoff(opts.Interval, 10*opts.Interval, 0.2)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("netmon")
	}
	if opts.Failures == nil {
		opts.Failures = func() int { return 0 }
	}
	m := &Monitor{
		src:        opts.Source,
		drain:      opts.Drain,
		hasPending: opts.HasPending,
		failures:   opts.Failures,
		onChange:   opts.OnChange,
		interval:   opts.Interval,
		backoff:    opts.Backoff,
		log:        opts.Logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	m.online.Store(opts.Source.Online())
	return m
}

// Online reporta la conectividad observada.
func (m *Monitor) Online() bool { return m.online.Load() }

// Start suscribe a la source y lanza el timer periódico.
func (m *Monitor) Start() {
	if m.started {
		return
	}
	m.started = true

	m.unsub = m.src.Subscribe(m.transition)

	go func() {
		defer close(m.done)
		t := time.NewTicker(m.interval)
		defer t.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-t.C:
				m.tick()
			}
		}
	}()
}

// Stop desuscribe y apaga el timer. Llamar una sola vez.
func (m *Monitor) Stop() {
	if !m.started {
		return
	}
	if m.unsub != nil {
		m.unsub()
	}
	close(m.stop)
	<-m.done
}

// transition procesa una notificación de la source. El swap atómico
// deduplica notificaciones repetidas: el flanco offline->online dispara
// el drain exactamente una vez por transición.
func (m *Monitor) transition(online bool) {
	was := m.online.Swap(online)
	if was == online {
		return
	}

	m.log.Info("connectivity changed", logger.Online(online))
	if m.onChange != nil {
		m.onChange(online)
	}
	if !was && online {
		m.triggerDrain("reconnect")
	}
}

// tick corre el drain periódico de recuperación: cubre transiciones que
// se perdieron en silencio y reintentos pendientes.
func (m *Monitor) tick() {
	if !m.online.Load() || !m.hasPending() {
		return
	}

	// con pasadas fallando, espaciar según backoff exponencial
	if f := m.failures(); f > 0 {
		m.mu.Lock()
		since := time.Since(m.lastDrain)
		m.mu.Unlock()
		if since < m.backoff.ForAttempt(f) {
			return
		}
	}
	m.triggerDrain("timer")
}

func (m *Monitor) triggerDrain(reason string) {
	m.mu.Lock()
	m.lastDrain = time.Now()
	m.mu.Unlock()

	m.log.Debug("drain triggered", zap.String("reason", reason))
	m.drain()
}
