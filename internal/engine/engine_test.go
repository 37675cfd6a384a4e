package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/offsync/internal/cache"
	"github.com/dropDatabas3/offsync/internal/config"
	"github.com/dropDatabas3/offsync/internal/netmon"
	"github.com/dropDatabas3/offsync/internal/queue"
	"github.com/dropDatabas3/offsync/internal/status"
	"github.com/dropDatabas3/offsync/internal/storage"
)

type capturingExecutor struct {
	mu      sync.Mutex
	targets []string
	outcome queue.Outcome
}

func (c *capturingExecutor) Execute(ctx context.Context, m queue.Mutation) (queue.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets = append(c.targets, m.Target)
	return c.outcome, nil
}

func (c *capturingExecutor) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.targets))
	copy(out, c.targets)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestEngine(t *testing.T, src netmon.Source, exec queue.Executor, backend storage.Backend) *Engine {
	t.Helper()
	eng, err := New(Options{
		Config:   config.Default(),
		Storage:  backend,
		Source:   src,
		Executor: exec,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Shutdown)
	return eng
}

// Escenario completo: cache con TTL, expiración, enqueue offline y drain
// al reconectar.
func TestEngine_EndToEnd(t *testing.T) {
	ctx := context.Background()
	src := netmon.NewManualSource(false)
	exec := &capturingExecutor{outcome: queue.OutcomeSuccess}
	eng := newTestEngine(t, src, exec, storage.NewMemory())

	// set + get dentro del TTL
	eng.SetTTL(ctx, "league/42", json.RawMessage(`{"wins":3}`), 150*time.Millisecond)
	got, ok := eng.Get(ctx, "league/42")
	require.True(t, ok)
	require.JSONEq(t, `{"wins":3}`, string(got))

	// pasado el TTL la entry desaparece
	time.Sleep(200 * time.Millisecond)
	_, ok = eng.Get(ctx, "league/42")
	require.False(t, ok)

	// enqueue offline: la cola crece, nada se entrega
	eng.Enqueue(ctx, queue.KindPatch, "/league/42", json.RawMessage(`{"wins":4}`), 3)
	require.Len(t, eng.Mutations(), 1)
	require.Empty(t, exec.calls())
	require.Equal(t, 1, eng.Status().PendingCount)
	require.False(t, eng.Status().Online)

	// reconectar drena la cola sin llamada explícita de la app
	src.SetOnline(true)
	waitFor(t, func() bool { return len(eng.Mutations()) == 0 })
	require.Equal(t, []string{"/league/42"}, exec.calls())

	waitFor(t, func() bool { return eng.Status().LastSyncAt != nil })
	st := eng.Status()
	require.True(t, st.Online)
	require.Zero(t, st.PendingCount)
	require.False(t, st.Syncing)
}

func TestEngine_EnqueueOnlineSyncsImmediately(t *testing.T) {
	ctx := context.Background()
	src := netmon.NewManualSource(true)
	exec := &capturingExecutor{outcome: queue.OutcomeSuccess}
	eng := newTestEngine(t, src, exec, storage.NewMemory())

	eng.Enqueue(ctx, queue.KindCreate, "/players", json.RawMessage(`{}`), 0)
	waitFor(t, func() bool { return len(eng.Mutations()) == 0 })
	require.Equal(t, []string{"/players"}, exec.calls())
}

func TestEngine_QueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	src := netmon.NewManualSource(false)
	exec := &capturingExecutor{outcome: queue.OutcomeSuccess}

	eng1, err := New(Options{Storage: backend, Source: src, Executor: exec})
	require.NoError(t, err)
	eng1.Enqueue(ctx, queue.KindDelete, "/league/42", nil, 0)
	eng1.Shutdown()

	// "reinicio": nuevo engine sobre el mismo storage
	eng2 := newTestEngine(t, netmon.NewManualSource(false), exec, backend)
	ms := eng2.Mutations()
	require.Len(t, ms, 1)
	require.Equal(t, "/league/42", ms[0].Target)
	require.Equal(t, queue.KindDelete, ms[0].Kind)
}

func TestEngine_StatusSubscription(t *testing.T) {
	ctx := context.Background()
	src := netmon.NewManualSource(false)
	exec := &capturingExecutor{outcome: queue.OutcomeSuccess}
	eng := newTestEngine(t, src, exec, storage.NewMemory())

	var mu sync.Mutex
	var seen []status.SyncStatus
	cancel := eng.Subscribe(func(s status.SyncStatus) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer cancel()

	eng.Enqueue(ctx, queue.KindCreate, "/a", nil, 0)
	src.SetOnline(true)
	waitFor(t, func() bool { return len(eng.Mutations()) == 0 })

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range seen {
			if s.Online && s.PendingCount == 0 && s.LastSyncAt != nil {
				return true
			}
		}
		return false
	})
}

func TestEngine_DroppedMutationsAreObservable(t *testing.T) {
	ctx := context.Background()
	src := netmon.NewManualSource(true)
	exec := &capturingExecutor{outcome: queue.OutcomePermanent}
	eng := newTestEngine(t, src, exec, storage.NewMemory())

	eng.Enqueue(ctx, queue.KindCreate, "/bad", nil, 0)
	waitFor(t, func() bool { return eng.Status().Dropped == 1 })
	require.Empty(t, eng.Mutations())
}

func TestEngine_FetchThroughFacade(t *testing.T) {
	ctx := context.Background()
	src := netmon.NewManualSource(true)
	eng := newTestEngine(t, src, &capturingExecutor{}, storage.NewMemory())

	fetcher := func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"name":"liga uno"}`), nil
	}
	res, err := eng.Fetch(ctx, "league/1", fetcher, nil)
	require.NoError(t, err)
	require.False(t, res.FromCache)

	// segunda lectura sale del cache
	opts := cache.FetchOptions{StaleWhileRevalidate: false}
	res, err = eng.Fetch(ctx, "league/1", fetcher, &opts)
	require.NoError(t, err)
	require.True(t, res.FromCache)
}

func TestEngine_RequiresDependencies(t *testing.T) {
	_, err := New(Options{Executor: &capturingExecutor{}})
	require.Error(t, err)
	_, err = New(Options{Source: netmon.NewManualSource(false)})
	require.Error(t, err)
}
