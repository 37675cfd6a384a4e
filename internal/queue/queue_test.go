package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dropDatabas3/offsync/internal/storage"
)

func newTestQueue(t *testing.T, backend storage.Backend) *Queue {
	t.Helper()
	return Load(context.Background(), QueueOptions{Durable: backend})
}

func TestQueue_EnqueuePersistsBeforeReturn(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	q := newTestQueue(t, backend)

	id := q.Enqueue(ctx, KindPatch, "/league/42", json.RawMessage(`{"wins":4}`), 3)
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	// al retornar Enqueue, la mutación ya está en el storage durable
	raw, err := backend.Get(ctx, queueKey)
	if err != nil {
		t.Fatalf("queue not persisted: %v", err)
	}
	var items []Mutation
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("bad persisted queue: %v", err)
	}
	if len(items) != 1 || items[0].ID != id {
		t.Fatalf("persisted queue mismatch: %+v", items)
	}
	if items[0].MaxAttempts != 3 || items[0].Attempts != 0 {
		t.Fatalf("bad bookkeeping: %+v", items[0])
	}
}

func TestQueue_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()

	q1 := newTestQueue(t, backend)
	idA := q1.Enqueue(ctx, KindCreate, "/a", nil, 0)
	idB := q1.Enqueue(ctx, KindDelete, "/b", nil, 0)

	// nueva instancia sobre el mismo backend: simula crash + restart
	q2 := newTestQueue(t, backend)
	items := q2.List()
	if len(items) != 2 {
		t.Fatalf("expected 2 recovered mutations, got %d", len(items))
	}
	if items[0].ID != idA || items[1].ID != idB {
		t.Fatalf("FIFO order lost across restart: %+v", items)
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemory())

	ids := []string{
		q.Enqueue(ctx, KindCreate, "/a", nil, 0),
		q.Enqueue(ctx, KindReplace, "/b", nil, 0),
		q.Enqueue(ctx, KindPatch, "/c", nil, 0),
	}

	items := q.List()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, m := range items {
		if m.ID != ids[i] {
			t.Fatalf("position %d: got %s, want %s", i, m.ID, ids[i])
		}
	}
}

func TestQueue_DefaultMaxAttempts(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemory())

	q.Enqueue(ctx, KindCreate, "/a", nil, 0)
	if got := q.List()[0].MaxAttempts; got != DefaultMaxAttempts {
		t.Fatalf("MaxAttempts = %d, want %d", got, DefaultMaxAttempts)
	}
}

func TestQueue_Cancel(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	q := newTestQueue(t, backend)

	id := q.Enqueue(ctx, KindCreate, "/a", nil, 0)
	other := q.Enqueue(ctx, KindCreate, "/b", nil, 0)

	q.Cancel(ctx, id)
	items := q.List()
	if len(items) != 1 || items[0].ID != other {
		t.Fatalf("expected only %s, got %+v", other, items)
	}

	// cancelar algo ya removido es un no-op
	q.Cancel(ctx, id)
	if q.Len() != 1 {
		t.Fatalf("expected 1 item, got %d", q.Len())
	}

	// la cancelación también se persistió
	q2 := newTestQueue(t, backend)
	if q2.Len() != 1 {
		t.Fatalf("cancel not persisted, got %d items", q2.Len())
	}
}

func TestQueue_ListIsSnapshot(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemory())
	q.Enqueue(ctx, KindCreate, "/a", nil, 0)

	snap := q.List()
	snap[0].Target = "/mutated"

	if q.List()[0].Target != "/a" {
		t.Fatal("List must return a copy, not the authoritative slice")
	}
}

func TestQueue_CorruptPersistedStateStartsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	if err := backend.Set(ctx, queueKey, []byte("not json")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	var reported bool
	q := Load(ctx, QueueOptions{
		Durable: backend,
		Report:  func(op, key string, err error) { reported = true },
	})
	if q.Len() != 0 {
		t.Fatalf("corrupt queue should start empty, got %d", q.Len())
	}
	if !reported {
		t.Fatal("expected corruption to be reported")
	}
}

func TestQueue_EnqueueKicksWhenConfigured(t *testing.T) {
	ctx := context.Background()
	var kicks, changes int
	q := Load(ctx, QueueOptions{
		Durable:  storage.NewMemory(),
		OnChange: func(pending int) { changes = pending },
		Kick:     func() { kicks++ },
	})

	q.Enqueue(ctx, KindCreate, "/a", nil, 0)
	if kicks != 1 {
		t.Fatalf("expected 1 kick, got %d", kicks)
	}
	if changes != 1 {
		t.Fatalf("expected pending=1 notified, got %d", changes)
	}
}
