package store

import (
	"context"
	"testing"
	"time"
)

func TestCaches(t *testing.T) {
	t.Parallel()

	db, err := OpenBadger("", 0, nil)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mem, err := NewMemory(10, 0)
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}
	t.Cleanup(func() { _ = mem.Close() })

	tests := []struct {
		name  string
		cache Cache
	}{
		{name: "memory", cache: mem},
		{name: "badger", cache: db},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			if _, ok, err := tt.cache.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
			}

			want := []float64{0.6, -0.8, 0}
			if err := tt.cache.Put(ctx, "candidate/v1/c1", want); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, ok, err := tt.cache.Get(ctx, "candidate/v1/c1")
			if err != nil || !ok {
				t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
			}
			if len(got) != len(want) {
				t.Fatalf("expected %v, got %v", want, got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("expected %v, got %v", want, got)
				}
			}

			// stored values must not alias the caller's slice
			want[0] = 42
			got, _, _ = tt.cache.Get(ctx, "candidate/v1/c1")
			if got[0] != 0.6 {
				t.Fatalf("cache entry changed through caller slice: %v", got)
			}
		})
	}
}

func TestMemoryStaysBounded(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(2, 0)
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}
	defer m.Close()

	ctx := context.Background()
	for _, key := range []string{"a", "b", "c", "d"} {
		if err := m.Put(ctx, key, []float64{1}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if n := m.Len(); n < 1 || n > 2 {
		t.Fatalf("expected at most 2 entries, got %d", n)
	}
}

func TestMemoryExpires(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(10, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}
	defer m.Close()

	ctx := context.Background()
	if err := m.Put(ctx, "a", []float64{1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "a"); !ok {
		t.Fatalf("expected a hit before the ttl")
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Fatalf("expected the entry to expire")
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	c, err := Open(Config{Backend: BackendNone}, 0, nil)
	if err != nil || c != nil {
		t.Fatalf("expected nil cache for none backend, got %v %v", c, err)
	}
	if _, err := Open(Config{Backend: "redis"}, 0, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	c, err = Open(Config{}, 0, nil)
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	if _, ok := c.(*Memory); !ok {
		t.Fatalf("expected memory backend by default, got %T", c)
	}
}
