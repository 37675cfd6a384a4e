// Package secure envuelve un storage.Backend con cifrado at-rest.
//
// Los valores se guardan como base64(nonce)|base64(ciphertext) usando
// AES-256-GCM. La clave maestra viene de OFFSYNC_MASTER_KEY (base64,
// 32 bytes) o se deriva de una passphrase con argon2id. Las keys del
// namespace quedan en claro: el engine necesita listar por prefijo.
package secure

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/dropDatabas3/offsync/internal/storage"
)

const (
	masterKeyEnvVar   = "OFFSYNC_MASTER_KEY"
	nonceSizeGCM      = 12  // AES-GCM nonce recomendado (96 bits)
	requiredKeyLength = 32  // 32 bytes => AES-256
	sep               = "|" // nonce|ciphertext (ambos en base64)
)

// Params controla la derivación argon2id de la passphrase.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
}

var DefaultParams = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1}

// KeyFromEnv carga la clave maestra desde OFFSYNC_MASTER_KEY (base64).
func KeyFromEnv() ([]byte, error) {
	kb64 := strings.TrimSpace(os.Getenv(masterKeyEnvVar))
	if kb64 == "" {
		return nil, fmt.Errorf("%s no seteada; genere una clave con: openssl rand -base64 32", masterKeyEnvVar)
	}
	k, err := base64.StdEncoding.DecodeString(kb64)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", masterKeyEnvVar, err)
	}
	if len(k) != requiredKeyLength {
		return nil, fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", masterKeyEnvVar, requiredKeyLength, len(k))
	}
	return k, nil
}

// KeyFromPassphrase deriva una clave AES-256 con argon2id.
// El salt debe ser estable por instalación (se persiste junto al storage).
func KeyFromPassphrase(passphrase string, salt []byte, p Params) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("secure: passphrase vacía")
	}
	if len(salt) < 16 {
		return nil, fmt.Errorf("secure: salt de al menos 16 bytes, obtuvo %d", len(salt))
	}
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Parallelism, requiredKeyLength), nil
}

// NewSalt genera un salt aleatorio de 16 bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// backend envuelve otro Backend cifrando los valores.
type backend struct {
	inner storage.Backend
	key   []byte
}

// Wrap envuelve inner con cifrado at-rest usando key (32 bytes).
func Wrap(inner storage.Backend, key []byte) (storage.Backend, error) {
	if len(key) != requiredKeyLength {
		return nil, fmt.Errorf("secure: clave de %d bytes, se requieren %d", len(key), requiredKeyLength)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &backend{inner: inner, key: k}, nil
}

func (b *backend) seal(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	ct := aesgcm.Seal(nil, nonce, plain, nil)
	out := base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct)
	return []byte(out), nil
}

func (b *backend) open(sealed []byte) ([]byte, error) {
	parts := strings.SplitN(string(sealed), sep, 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("secure: formato inválido")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("secure: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("secure: decode ciphertext: %w", err)
	}
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("secure: open: %w", err)
	}
	return plain, nil
}

func (b *backend) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := b.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return b.open(sealed)
}

func (b *backend) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := b.seal(value)
	if err != nil {
		return err
	}
	return b.inner.Set(ctx, key, sealed)
}

func (b *backend) Delete(ctx context.Context, key string) error {
	return b.inner.Delete(ctx, key)
}

func (b *backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	return b.inner.Keys(ctx, prefix)
}

func (b *backend) DeleteMany(ctx context.Context, keys []string) error {
	return b.inner.DeleteMany(ctx, keys)
}

func (b *backend) Close() error { return b.inner.Close() }
