package fallback

import (
	"errors"
	"testing"

	"github.com/any-hub/static-cache/internal/cache"
)

func replaceRegistry(t *testing.T) func() {
	t.Helper()
	prev := globalRegistry
	globalRegistry = newRegistry()
	return func() { globalRegistry = prev }
}

type stubBackend struct {
	cache.Backend
	bin string
}

func stubFactory(opts Options) (cache.Backend, error) {
	return &stubBackend{bin: opts.Bin}, nil
}

func TestRegisterResolveAndList(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(Definition{Key: "redis", Shared: true, New: stubFactory}); err != nil {
		t.Fatalf("register redis failed: %v", err)
	}
	if err := Register(Definition{Key: "Memory", New: stubFactory}); err != nil {
		t.Fatalf("register memory failed: %v", err)
	}

	if _, ok := Resolve("memory"); !ok {
		t.Fatalf("expected memory to resolve")
	}
	if _, ok := Resolve("REDIS"); !ok {
		t.Fatalf("resolve should be case-insensitive")
	}

	keys := Keys()
	if len(keys) != 2 || keys[0] != "memory" || keys[1] != "redis" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(Definition{Key: "memory", New: stubFactory}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := Register(Definition{Key: "memory", New: stubFactory}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}

func TestRegisterRequiresFactory(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(Definition{Key: "broken"}); err == nil {
		t.Fatalf("definition without factory should fail")
	}
	if err := Register(Definition{Key: "  ", New: stubFactory}); err == nil {
		t.Fatalf("blank key should fail")
	}
}

func TestNewBindsBin(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	MustRegister(Definition{Key: "stub", New: stubFactory})

	backend, err := New("stub", Options{Bin: "TBIN"})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if backend.(*stubBackend).bin != "TBIN" {
		t.Fatalf("backend not bound to bin")
	}

	if _, err := New("missing", Options{Bin: "TBIN"}); !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("expected ErrUnknownClass, got %v", err)
	}
}

func TestNewWrapsFactoryError(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	boom := errors.New("boom")
	MustRegister(Definition{Key: "failing", New: func(Options) (cache.Backend, error) { return nil, boom }})

	if _, err := New("failing", Options{Bin: "TBIN"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped factory error, got %v", err)
	}
}
