package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cprqa/internal/data/reports"
)

type memoryActivityStore struct {
	mu      sync.Mutex
	entries []string
	err     error
}

func (s *memoryActivityStore) AppendActivity(ctx context.Context, tenant, typ string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, tenant+"/"+typ)
	return nil
}

func (s *memoryActivityStore) ListActivity(ctx context.Context, tenant string, limit int, typ string) ([]reports.Activity, error) {
	return nil, nil
}

func (s *memoryActivityStore) LastActive(ctx context.Context, tenant string) (time.Time, error) {
	return time.Time{}, nil
}

func (s *memoryActivityStore) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.entries...)
}

func TestActivityRecorderDrainsOnClose(t *testing.T) {
	store := &memoryActivityStore{}
	rec := NewActivityRecorder(store, 8)

	ctx := context.Background()
	rec.Record(ctx, "north", "login", nil)
	rec.Record(ctx, "north", "import", map[string]any{"report_id": "r1"})
	rec.Record(ctx, "north", "logout", nil)

	if err := rec.Close(ctx); err != nil {
		t.Fatal(err)
	}
	got := store.recorded()
	want := []string{"north/login", "north/import", "north/logout"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	rec.Record(ctx, "north", "login", nil)
	if err := rec.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if len(store.recorded()) != len(want) {
		t.Fatal("expected events after close to be dropped")
	}
}

func TestActivityRecorderSurvivesStoreErrors(t *testing.T) {
	store := &memoryActivityStore{err: errors.New("database is locked")}
	rec := NewActivityRecorder(store, 4)

	rec.Record(context.Background(), "default", "import", nil)
	if err := rec.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.recorded()) != 0 {
		t.Fatal("expected no entries from a failing store")
	}
}
