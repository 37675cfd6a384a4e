package secure

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dropDatabas3/offsync/internal/storage"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}
	// parámetros chicos para que el test no queme CPU
	key, err := KeyFromPassphrase("correct horse battery staple", salt, Params{Memory: 8 * 1024, Time: 1, Parallelism: 1})
	if err != nil {
		t.Fatalf("KeyFromPassphrase failed: %v", err)
	}
	return key
}

func TestWrap_RoundTrip(t *testing.T) {
	ctx := context.Background()
	key := testKey(t)

	inner := storage.NewMemory()
	b, err := Wrap(inner, key)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}

	plain := []byte(`{"wins":3}`)
	if err := b.Set(ctx, "cache:league/42", plain); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// el inner guarda ciphertext, no plaintext
	sealed, err := inner.Get(ctx, "cache:league/42")
	if err != nil {
		t.Fatalf("inner Get failed: %v", err)
	}
	if bytes.Contains(sealed, []byte("wins")) {
		t.Fatal("el valor quedó en claro en el backend interno")
	}
	if !strings.Contains(string(sealed), sep) {
		t.Fatalf("formato inesperado: %s", sealed)
	}

	got, err := b.Get(ctx, "cache:league/42")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: %s", got)
	}
}

func TestWrap_WrongKeyFails(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewMemory()

	b1, err := Wrap(inner, testKey(t))
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	if err := b1.Set(ctx, "k", []byte("secret")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	other := make([]byte, 32)
	b2, err := Wrap(inner, other)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	if _, err := b2.Get(ctx, "k"); err == nil {
		t.Fatal("descifrar con otra clave debería fallar")
	}
}

func TestWrap_RejectsBadKeyLength(t *testing.T) {
	if _, err := Wrap(storage.NewMemory(), []byte("short")); err == nil {
		t.Fatal("clave corta debería fallar")
	}
}

func TestKeyFromPassphrase_Deterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	p := Params{Memory: 8 * 1024, Time: 1, Parallelism: 1}

	k1, err := KeyFromPassphrase("pass", salt, p)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	k2, _ := KeyFromPassphrase("pass", salt, p)
	if !bytes.Equal(k1, k2) {
		t.Fatal("misma passphrase+salt debería derivar la misma clave")
	}

	k3, _ := KeyFromPassphrase("other", salt, p)
	if bytes.Equal(k1, k3) {
		t.Fatal("otra passphrase no debería derivar la misma clave")
	}
}

func TestKeyFromPassphrase_Validation(t *testing.T) {
	if _, err := KeyFromPassphrase("", []byte("0123456789abcdef"), DefaultParams); err == nil {
		t.Fatal("passphrase vacía debería fallar")
	}
	if _, err := KeyFromPassphrase("pass", []byte("short"), DefaultParams); err == nil {
		t.Fatal("salt corto debería fallar")
	}
}
