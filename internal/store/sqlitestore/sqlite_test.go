package sqlitestore

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"sphexbot/internal/store"
	"sphexbot/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		return s
	})
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.SortedAdd(ctx, "due", "task-1", 42); err != nil {
		t.Fatalf("SortedAdd() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.SortedRangeByScore(ctx, "due", 0, 100)
	if err != nil {
		t.Fatalf("SortedRangeByScore() error = %v", err)
	}
	if want := []string{"task-1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("SortedRangeByScore() = %#v, want %#v", got, want)
	}
}

func TestNormalizeDSN(t *testing.T) {
	tests := map[string]string{
		"":                  "file::memory:",
		"file:x.db?mode=ro": "file:x.db?mode=ro",
		"data/bot.db":       "file:data/bot.db?_busy_timeout=5000&_journal_mode=WAL",
	}
	for in, want := range tests {
		if got := normalizeDSN(in); got != want {
			t.Fatalf("normalizeDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
