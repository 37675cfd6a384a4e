// Package netmon observa la conectividad y dispara el sync engine en los
// momentos correctos: flanco offline->online y timer periódico.
package netmon

import (
	"sync"
)

// Source es la fuente de conectividad, provista por la aplicación: un
// booleano observable con notificación de cambios.
type Source interface {
	// Online reporta la conectividad actual.
	Online() bool

	// Subscribe registra fn para cambios de estado y retorna la función
	// de desuscripción. fn puede recibir valores repetidos; el monitor
	// se encarga de detectar flancos.
	Subscribe(fn func(online bool)) (cancel func())
}

// ManualSource es una Source seteable a mano. La usan los tests y las
// apps cuya plataforma ya reporta conectividad (reachability del OS).
type ManualSource struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]func(bool)
	next      int
}

// NewManualSource crea la source con el estado inicial dado.
func NewManualSource(online bool) *ManualSource {
	return &ManualSource{online: online, listeners: make(map[int]func(bool))}
}

func (s *ManualSource) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// SetOnline cambia el estado y notifica solo si cambió.
func (s *ManualSource) SetOnline(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	fns := make([]func(bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

func (s *ManualSource) Subscribe(fn func(online bool)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}
