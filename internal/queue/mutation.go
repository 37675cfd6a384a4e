// Package queue implementa la cola durable de mutaciones pendientes y el
// sync engine que la drena contra la red.
package queue

import (
	"encoding/json"
)

// Kind clasifica una mutación pendiente.
type Kind string

const (
	KindCreate  Kind = "create"
	KindReplace Kind = "replace"
	KindDelete  Kind = "delete"
	KindPatch   Kind = "patch"
)

// Valid reporta si k es uno de los kinds conocidos.
func (k Kind) Valid() bool {
	switch k {
	case KindCreate, KindReplace, KindDelete, KindPatch:
		return true
	}
	return false
}

// DefaultMaxAttempts aplica cuando Enqueue recibe maxAttempts <= 0.
const DefaultMaxAttempts = 3

// Mutation es una escritura pendiente de entrega. La cola es su única
// dueña: el syncer toma snapshots para intentar la entrega, pero solo la
// cola muta la lista autoritativa.
type Mutation struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Target      string          `json:"target"`
	Body        json.RawMessage `json:"body,omitempty"`
	EnqueuedAt  int64           `json:"enqueued_at"` // epoch ms
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
}
