package provider

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/memvault/memvault/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteProvider {
	t.Helper()
	s, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRememberAndRecall(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	id, err := s.Remember(ctx, &model.MemoryItem{
		OwnerID:         "user-1",
		Scope:           "personal",
		Content:         "prefers dark roast coffee",
		SensitivityTier: model.TierInternal,
	})
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	got, err := s.Recall(ctx, RecallParams{OwnerID: "user-1", Scope: "personal", Query: "coffee"})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Content != "prefers dark roast coffee" {
		t.Errorf("unexpected content %q", got[0].Content)
	}
	if got[0].ID != id {
		t.Errorf("expected id %s, got %s", id, got[0].ID)
	}
}

func TestSQLiteRecallScopeIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	s.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "personal", Content: "alpha", SensitivityTier: model.TierPublic})
	s.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "team", Content: "beta", SensitivityTier: model.TierPublic})

	personal, err := s.Recall(ctx, RecallParams{OwnerID: "u", Scope: "personal"})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(personal) != 1 || personal[0].Content != "alpha" {
		t.Errorf("expected only the personal item, got %v", personal)
	}
}

func TestSQLiteListFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	s.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "team", Content: "a", SensitivityTier: model.TierPublic})
	s.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "team", Content: "b", SensitivityTier: model.TierConfidential})

	conf, err := s.List(ctx, ListParams{OwnerID: "u", Tier: model.TierConfidential})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conf) != 1 || conf[0].Content != "b" {
		t.Errorf("expected only the confidential item, got %v", conf)
	}
}

func TestSQLiteListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	old := time.Now().UTC().Add(-time.Hour)
	s.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "team", Content: "old", SensitivityTier: model.TierPublic, CreatedAt: old})
	s.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "team", Content: "new", SensitivityTier: model.TierPublic})

	got, err := s.List(ctx, ListParams{OwnerID: "u"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Content != "new" {
		t.Errorf("expected newest first, got %v", got)
	}
}

func TestSQLiteDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	id, _ := s.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "personal", Content: "x", SensitivityTier: model.TierPublic})

	deleted, err := s.Delete(ctx, id)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Error("expected delete to report true")
	}

	deleted, err = s.Delete(ctx, id)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Error("expected delete of missing id to report false")
	}
}

func TestSQLiteHealthCheck(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	if err := s.HealthCheck(ctx); err != nil {
		t.Fatalf("health check: %v", err)
	}
}

func TestSQLiteCancellationPassesThrough(t *testing.T) {
	s := newTestSQLite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Recall(ctx, RecallParams{OwnerID: "u"})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) {
		t.Errorf("cancellation must not map to a provider fault, got %v", err)
	}
}
