package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - ENGINE
// =================================================================================

// Key crea un campo para una cache key.
func Key(v string) zap.Field {
	return zap.String("key", v)
}

// Category crea un campo para la categoría de una cache key.
func Category(v string) zap.Field {
	return zap.String("category", v)
}

// MutationID crea un campo para el ID de una mutación pendiente.
func MutationID(v string) zap.Field {
	return zap.String("mutation_id", v)
}

// Target crea un campo para el endpoint de una mutación.
func Target(v string) zap.Field {
	return zap.String("target", v)
}

// Kind crea un campo para el tipo de mutación.
func Kind(v string) zap.Field {
	return zap.String("kind", v)
}

// Attempts crea un campo para el contador de intentos.
func Attempts(v int) zap.Field {
	return zap.Int("attempts", v)
}

// Pending crea un campo para el tamaño de la cola.
func Pending(v int) zap.Field {
	return zap.Int("pending", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - STORAGE / RED
// =================================================================================

// Driver crea un campo para el driver de storage.
func Driver(v string) zap.Field {
	return zap.String("driver", v)
}

// Op crea un campo para la operación en curso (storage, request de debug).
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Online crea un campo para el estado de conectividad.
func Online(v bool) zap.Field {
	return zap.Bool("online", v)
}

// TTL crea un campo para un time-to-live.
func TTL(v time.Duration) zap.Field {
	return zap.Duration("ttl", v)
}

// Elapsed crea un campo para una duración medida.
func Elapsed(v time.Duration) zap.Field {
	return zap.Duration("elapsed", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}
