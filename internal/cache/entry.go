// Package cache implementa el Cache Store de dos capas (memoria + durable)
// y el orquestador de lecturas cache-first / stale-while-revalidate.
package cache

import (
	"encoding/json"
	"strings"
	"time"
)

// KeySeparator separa la categoría del discriminador en una cache key.
// Ej: "league/42" => categoría "league", discriminador "42".
const KeySeparator = "/"

// storagePrefix es el namespace de las entries en el storage durable.
const storagePrefix = "cache:"

// Entry envuelve un valor cacheado. Se reemplaza entera en cada Set,
// nunca se muta in place. Invariante: ExpiresAt > WrittenAt salvo TTL
// cero, donde ExpiresAt == WrittenAt (vence de inmediato).
type Entry struct {
	Data          json.RawMessage `json:"data"`
	WrittenAt     int64           `json:"written_at"`  // epoch ms
	ExpiresAt     int64           `json:"expires_at"`  // epoch ms
	SchemaVersion int             `json:"schema_version"`
}

// Live indica si la entry sigue viva: now < ExpiresAt.
func (e *Entry) Live(now time.Time) bool {
	return now.UnixMilli() < e.ExpiresAt
}

// Remaining retorna el TTL restante de la entry (<= 0 si venció).
func (e *Entry) Remaining(now time.Time) time.Duration {
	return time.Duration(e.ExpiresAt-now.UnixMilli()) * time.Millisecond
}

// CategoryOf extrae la categoría de una key: el substring antes del primer
// separador. Una key sin separador es su propia categoría. Función pura de
// la key, independiente del payload.
func CategoryOf(key string) string {
	if i := strings.Index(key, KeySeparator); i >= 0 {
		return key[:i]
	}
	return key
}

func storageKey(key string) string { return storagePrefix + key }
