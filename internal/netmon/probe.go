package netmon

import (
	"context"
	"net/http"
	"time"
)

// ProbeSource implementa Source sondeando un endpoint HTTP con HEAD a
// intervalo fijo. Para el daemon, donde no hay señal de reachability del
// OS disponible.
type ProbeSource struct {
	*ManualSource

	url      string
	interval time.Duration
	client   *http.Client
	stop     chan struct{}
	done     chan struct{}
}

// NewProbeSource crea la source. Hasta el primer probe se asume offline.
func NewProbeSource(url string, interval time.Duration) *ProbeSource {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ProbeSource{
		ManualSource: NewManualSource(false),
		url:          url,
		interval:     interval,
		client:       &http.Client{Timeout: 5 * time.Second},
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start lanza el loop de sondeo. El primer probe corre inmediatamente.
func (s *ProbeSource) Start() {
	go func() {
		defer close(s.done)
		s.SetOnline(s.probe())

		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				s.SetOnline(s.probe())
			}
		}
	}()
}

// Stop detiene el loop y espera a que termine.
func (s *ProbeSource) Stop() {
	close(s.stop)
	<-s.done
}

func (s *ProbeSource) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	// cualquier respuesta cuenta como "hay red", incluso un 4xx/5xx
	return true
}
