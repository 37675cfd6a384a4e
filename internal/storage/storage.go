// Package storage provee el backend durable key/value del engine.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - FS (un archivo por key, escritura atómica)
//   - Bolt (archivo único embebido, para mobile/desktop)
//   - Redis (para correr el engine como daemon compartido)
//
// El engine es el único escritor del namespace; no se esperan escritores
// externos concurrentes.
package storage

import (
	"context"
	"fmt"
)

// Backend define las operaciones del storage durable.
// Toda falla de un Backend la capa superior la trata como "entry ausente":
// el cache es best-effort y nunca propaga errores de storage al caller.
type Backend interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set guarda un valor. Reemplaza cualquier valor previo.
	Set(ctx context.Context, key string, value []byte) error

	// Delete elimina una key. No es error si no existe.
	Delete(ctx context.Context, key string) error

	// Keys lista las keys que empiezan con prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// DeleteMany elimina un lote de keys.
	DeleteMany(ctx context.Context, keys []string) error

	// Close cierra el backend.
	Close() error
}

// Config configuración para crear un backend.
type Config struct {
	Driver string // "memory" | "fs" | "bolt" | "redis"

	FS struct {
		Dir string
	}

	Bolt struct {
		Path string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}
}

// Errores de storage.
var (
	ErrNotFound = errNotFound{}
)

type errNotFound struct{}

func (e errNotFound) Error() string { return "storage: key not found" }

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New crea un backend según la configuración.
func New(cfg Config) (Backend, error) {
	switch cfg.Driver {
	case "fs":
		if cfg.FS.Dir == "" {
			return nil, fmt.Errorf("storage: fs driver requiere dir")
		}
		return NewFS(cfg.FS.Dir), nil
	case "bolt":
		if cfg.Bolt.Path == "" {
			return nil, fmt.Errorf("storage: bolt driver requiere path")
		}
		return NewBolt(cfg.Bolt.Path)
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: driver desconocido %q", cfg.Driver)
	}
}
