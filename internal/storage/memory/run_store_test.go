package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

func TestRunStoreKeepsNewestWithinLimit(t *testing.T) {
	t.Parallel()

	store := NewRunStore(2)
	ctx := context.Background()

	if _, err := store.Latest(ctx); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("Latest() on empty store error = %v, want ErrNoRuns", err)
	}
	for _, id := range []string{"r1", "r2", "r3"} {
		if err := store.Record(ctx, harvest.RunReport{RunID: id}); err != nil {
			t.Fatalf("Record(%s) error = %v", id, err)
		}
	}

	latest, err := store.Latest(ctx)
	if err != nil || latest.RunID != "r3" {
		t.Fatalf("Latest() = %q, %v; want r3", latest.RunID, err)
	}
	list, _ := store.List(ctx)
	if len(list) != 2 || list[0].RunID != "r3" || list[1].RunID != "r2" {
		t.Fatalf("List() = %+v, want [r3 r2]", list)
	}
}
