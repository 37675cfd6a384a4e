package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/offsync/internal/storage"
)

// recordingExecutor registra los targets en orden y responde según el
// outcome configurado por target.
type recordingExecutor struct {
	mu       sync.Mutex
	order    []string
	outcomes map[string]Outcome // default OutcomeSuccess
}

func (r *recordingExecutor) Execute(ctx context.Context, m Mutation) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, m.Target)
	if o, ok := r.outcomes[m.Target]; ok {
		return o, nil
	}
	return OutcomeSuccess, nil
}

func (r *recordingExecutor) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func newTestSyncer(t *testing.T, q *Queue, exec Executor) *Syncer {
	t.Helper()
	return NewSyncer(SyncerOptions{Queue: q, Executor: exec})
}

func TestSyncer_FIFODrain(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemory())
	q.Enqueue(ctx, KindCreate, "/a", nil, 0)
	q.Enqueue(ctx, KindCreate, "/b", nil, 0)
	q.Enqueue(ctx, KindCreate, "/c", nil, 0)

	exec := &recordingExecutor{}
	s := newTestSyncer(t, q, exec)
	s.Drain(ctx)

	got := exec.calls()
	want := []string{"/a", "/b", "/c"}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("delivery order = %v, want %v", got, want)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
	if s.LastSync() == nil {
		t.Fatal("lastSync should be set after a pass")
	}
}

func TestSyncer_RetryExhaustion(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemory())
	q.Enqueue(ctx, KindPatch, "/flaky", nil, 3)

	exec := &recordingExecutor{outcomes: map[string]Outcome{"/flaky": OutcomeRetry}}
	s := newTestSyncer(t, q, exec)

	// tras 3 pasadas con falla retriable la mutación se descarta
	s.Drain(ctx)
	if q.Len() != 1 {
		t.Fatalf("after pass 1: len=%d, want 1", q.Len())
	}
	s.Drain(ctx)
	if q.Len() != 1 {
		t.Fatalf("after pass 2: len=%d, want 1", q.Len())
	}
	s.Drain(ctx)
	if q.Len() != 0 {
		t.Fatalf("after pass 3: len=%d, want 0", q.Len())
	}
	if got := len(exec.calls()); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSyncer_NonRetriableDropsImmediately(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemory())
	q.Enqueue(ctx, KindCreate, "/bad", nil, 3)

	var dropped []string
	exec := &recordingExecutor{outcomes: map[string]Outcome{"/bad": OutcomePermanent}}
	s := NewSyncer(SyncerOptions{
		Queue:    q,
		Executor: exec,
		OnDrop:   func(m Mutation, reason string) { dropped = append(dropped, reason) },
	})

	s.Drain(ctx)
	if q.Len() != 0 {
		t.Fatalf("client error must drop after one attempt, len=%d", q.Len())
	}
	if got := len(exec.calls()); got != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", got)
	}
	if len(dropped) != 1 || dropped[0] != "client_error" {
		t.Fatalf("expected client_error drop notification, got %v", dropped)
	}
}

// blockingExecutor bloquea la entrega hasta que se cierre release.
type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
	exec    *recordingExecutor
	once    sync.Once
}

func (b *blockingExecutor) Execute(ctx context.Context, m Mutation) (Outcome, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.exec.Execute(ctx, m)
}

func TestSyncer_NoConcurrentDrains(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemory())
	q.Enqueue(ctx, KindCreate, "/a", nil, 0)
	q.Enqueue(ctx, KindCreate, "/b", nil, 0)

	inner := &recordingExecutor{}
	exec := &blockingExecutor{
		started: make(chan struct{}),
		release: make(chan struct{}),
		exec:    inner,
	}
	s := newTestSyncer(t, q, exec)

	done := make(chan struct{})
	go func() {
		s.Drain(ctx)
		close(done)
	}()
	<-exec.started

	// segundo drain con el primero en vuelo: no-op, se descarta
	s.Drain(ctx)

	close(exec.release)
	<-done

	if got := len(inner.calls()); got != 2 {
		t.Fatalf("expected 1 delivery per mutation, got %d", got)
	}
}

func TestSyncer_CancelDuringDrainIsSkipped(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemory())
	q.Enqueue(ctx, KindCreate, "/a", nil, 0)
	idB := q.Enqueue(ctx, KindCreate, "/b", nil, 0)

	inner := &recordingExecutor{}
	exec := &blockingExecutor{
		started: make(chan struct{}),
		release: make(chan struct{}),
		exec:    inner,
	}
	s := newTestSyncer(t, q, exec)

	done := make(chan struct{})
	go func() {
		s.Drain(ctx)
		close(done)
	}()
	// con /a en vuelo, cancelar /b: no debe despacharse
	<-exec.started
	q.Cancel(ctx, idB)
	close(exec.release)
	<-done

	got := inner.calls()
	if len(got) != 1 || got[0] != "/a" {
		t.Fatalf("cancelled mutation must not be dispatched, got %v", got)
	}
}

func TestSyncer_FailuresTrackConsecutivePasses(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemory())
	q.Enqueue(ctx, KindPatch, "/flaky", nil, 5)

	exec := &recordingExecutor{outcomes: map[string]Outcome{"/flaky": OutcomeRetry}}
	s := newTestSyncer(t, q, exec)

	s.Drain(ctx)
	s.Drain(ctx)
	if s.Failures() != 2 {
		t.Fatalf("Failures = %d, want 2", s.Failures())
	}

	// una pasada limpia resetea el contador
	exec.mu.Lock()
	exec.outcomes["/flaky"] = OutcomeSuccess
	exec.mu.Unlock()
	s.Drain(ctx)
	if s.Failures() != 0 {
		t.Fatalf("Failures = %d, want 0 after clean pass", s.Failures())
	}
}

func TestSyncer_StateNotifications(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemory())
	q.Enqueue(ctx, KindCreate, "/a", nil, 0)

	var states []bool
	var lastSeen *time.Time
	s := NewSyncer(SyncerOptions{
		Queue:    q,
		Executor: &recordingExecutor{},
		OnState: func(syncing bool, lastSync *time.Time) {
			states = append(states, syncing)
			lastSeen = lastSync
		},
	})

	s.Drain(ctx)
	if len(states) != 2 || !states[0] || states[1] {
		t.Fatalf("expected syncing true->false, got %v", states)
	}
	if lastSeen == nil {
		t.Fatal("lastSync should be propagated on the final notification")
	}
}
