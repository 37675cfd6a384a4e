// Package httpdebug expone un listener HTTP local de introspección del
// engine: estado, cola, métricas y operaciones manuales. Pensado para
// desarrollo y para que la UI del cliente consulte estado; no es una API
// pública.
package httpdebug

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dropDatabas3/offsync/internal/cache"
	"github.com/dropDatabas3/offsync/internal/engine"
	"github.com/dropDatabas3/offsync/internal/observability/logger"
	"github.com/dropDatabas3/offsync/internal/queue"
)

// Server sirve los endpoints de debug sobre un Engine.
type Server struct {
	eng  *engine.Engine
	log  *zap.Logger
	http *http.Server
}

// New crea el server (sin arrancarlo).
func New(eng *engine.Engine, addr string, log *zap.Logger) *Server {
	if log == nil {
		log = logger.Named("httpdebug")
	}
	s := &Server{eng: eng, log: log}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.withLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)
	r.Get("/queue", s.handleQueueList)
	r.Post("/queue", s.handleQueueAdd)
	r.Delete("/queue/{id}", s.handleQueueCancel)
	r.Post("/sync", s.handleSync)
	r.Get("/fetch", s.handleFetch)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start arranca el listener en background.
func (s *Server) Start() {
	go func() {
		s.log.Info("debug listener started", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("debug listener failed", logger.Err(err))
		}
	}()
}

// Stop apaga el listener.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// withLogger inyecta un logger scoped al request en el contexto; los
// handlers lo recuperan con logger.From(ctx).
func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := s.log.With(logger.Op(r.Method + " " + r.URL.Path))
		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), l)))
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Status())
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	ms := s.eng.Mutations()
	if ms == nil {
		ms = []queue.Mutation{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind        queue.Kind      `json:"kind"`
		Target      string          `json:"target"`
		Body        json.RawMessage `json:"body,omitempty"`
		MaxAttempts int             `json:"max_attempts,omitempty"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if !req.Kind.Valid() {
		writeJSONError(w, http.StatusBadRequest, "invalid_kind", string(req.Kind))
		return
	}
	if req.Target == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_target", "")
		return
	}

	id := s.eng.Enqueue(r.Context(), req.Kind, req.Target, req.Body, req.MaxAttempts)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) handleQueueCancel(w http.ResponseWriter, r *http.Request) {
	s.eng.Cancel(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	go s.eng.Drain(context.Background())
	w.WriteHeader(http.StatusAccepted)
}

// handleFetch resuelve una lectura cache-first contra una URL arbitraria.
// GET /fetch?key=league/42&url=https://api.example.com/league/42
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	url := r.URL.Query().Get("url")
	if key == "" || url == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_params", "key y url son requeridos")
		return
	}

	opts := cache.DefaultFetchOptions()
	if r.URL.Query().Get("force") == "true" {
		opts.ForceRefresh = true
	}

	fetcher := func(ctx context.Context) (json.RawMessage, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, errors.New(resp.Status)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	}

	res, err := s.eng.Fetch(r.Context(), key, fetcher, &opts)
	if err != nil {
		logger.From(r.Context()).Warn("debug fetch failed",
			logger.Key(key), logger.Err(err))
		code := http.StatusBadGateway
		if errors.Is(err, cache.ErrOfflineNoData) {
			code = http.StatusServiceUnavailable
		}
		writeJSONError(w, code, "fetch_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, desc string) {
	type payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description,omitempty"`
	}
	writeJSON(w, status, payload{Error: code, ErrorDescription: desc})
}
