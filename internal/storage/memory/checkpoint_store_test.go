package memory

import (
	"context"
	"testing"
	"time"
)

func TestCheckpointStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewCheckpointStore()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "src"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v err %v, want unset", ok, err)
	}

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.Set(ctx, "src", at); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "src", at); err != nil {
		t.Fatalf("repeated Set() error = %v", err)
	}

	got, ok, err := store.Get(ctx, "src")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v err %v", ok, err)
	}
	if !got.Equal(at) {
		t.Fatalf("Get() = %v, want %v", got, at)
	}
}
