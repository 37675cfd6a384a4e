package cache

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTTL aplica a categorías sin regla explícita.
const DefaultTTL = 5 * time.Minute

// TTLTable mapea categorías de key a su TTL por defecto. Se valida al
// construirse; después es de solo lectura, así que los lookups no
// necesitan lock.
type TTLTable struct {
	fallback   time.Duration
	byCategory map[string]time.Duration
}

// NewTTLTable construye la tabla. fallback <= 0 usa DefaultTTL.
// Reglas con categoría vacía, con separador, duplicada o con TTL negativo
// son errores de configuración.
func NewTTLTable(fallback time.Duration, rules map[string]time.Duration) (*TTLTable, error) {
	if fallback <= 0 {
		fallback = DefaultTTL
	}
	t := &TTLTable{
		fallback:   fallback,
		byCategory: make(map[string]time.Duration, len(rules)),
	}
	for cat, ttl := range rules {
		switch {
		case strings.TrimSpace(cat) == "":
			return nil, fmt.Errorf("cache: ttl table: categoría vacía")
		case strings.Contains(cat, KeySeparator):
			return nil, fmt.Errorf("cache: ttl table: categoría %q contiene %q", cat, KeySeparator)
		case ttl < 0:
			return nil, fmt.Errorf("cache: ttl table: categoría %q con ttl negativo", cat)
		}
		t.byCategory[cat] = ttl
	}
	return t, nil
}

// For retorna el TTL por defecto para una key según su categoría.
func (t *TTLTable) For(key string) time.Duration {
	if ttl, ok := t.byCategory[CategoryOf(key)]; ok {
		return ttl
	}
	return t.fallback
}
