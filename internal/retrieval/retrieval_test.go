package retrieval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/config"
	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "librarian.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func keywordOnlyConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	cfg.EmbeddingProvider = "none"
	return cfg
}

func TestSearchKeywordOnly(t *testing.T) {
	st := openTestStore(t)
	cfg := keywordOnlyConfig(t)

	packs := []pack.ContextPack{
		{
			ID:        "P-AUTH",
			Type:      pack.TypeModuleContext,
			TargetID:  "internal/auth",
			Summary:   "Session tokens and the refresh flow for the auth module.",
			KeyFacts:  []string{"tokens expire hourly"},
			CreatedAt: time.Now().UTC(),
		},
		{
			ID:        "P-DB",
			Type:      pack.TypeModuleContext,
			TargetID:  "internal/db",
			Summary:   "Database connection pooling and migrations.",
			CreatedAt: time.Now().UTC(),
		},
	}
	for _, p := range packs {
		if _, err := st.SavePack("r1", "default", p); err != nil {
			t.Fatalf("save pack: %v", err)
		}
	}

	s := New(st, cfg)
	result, err := s.Search(context.Background(), "r1", "default", "token refresh", Options{Limit: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(result.Candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	if result.Candidates[0].Pack.ID != "P-AUTH" {
		t.Fatalf("expected P-AUTH first, got %s", result.Candidates[0].Pack.ID)
	}
	if got := result.Candidates[0].Sources; len(got) != 1 || got[0] != "fts" {
		t.Fatalf("expected fts-only sources, got %v", got)
	}
	if _, ok := result.ScoreByPack["P-AUTH"]; !ok {
		t.Fatal("expected score entry for P-AUTH")
	}

	// Provider "none" is configured off, not degraded.
	if result.Status.Degraded {
		t.Fatalf("expected no degradation, got %+v", result.Status)
	}
	if result.Status.Vector.Enabled {
		t.Fatal("expected vector leg disabled")
	}
	if len(result.Status.Disclosures) != 0 {
		t.Fatalf("expected no disclosures, got %v", result.Status.Disclosures)
	}
}

func TestSearchHonorsLimit(t *testing.T) {
	st := openTestStore(t)
	cfg := keywordOnlyConfig(t)

	for i := 0; i < 6; i++ {
		p := pack.ContextPack{
			Type:      pack.TypeFunctionContext,
			TargetID:  "internal/auth.Refresh",
			Summary:   "Refresh rotates the session token.",
			CreatedAt: time.Now().UTC().Add(-time.Duration(i) * time.Hour),
		}
		if _, err := st.SavePack("r1", "default", p); err != nil {
			t.Fatalf("save pack: %v", err)
		}
	}

	s := New(st, cfg)
	result, err := s.Search(context.Background(), "r1", "default", "session token", Options{Limit: 3})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(result.Candidates))
	}
}

func TestSearchBoostsRecencyHintedQueries(t *testing.T) {
	st := openTestStore(t)
	cfg := keywordOnlyConfig(t)

	p := pack.ContextPack{
		ID:        "P-FRESH",
		Type:      pack.TypeModuleContext,
		TargetID:  "internal/auth",
		Summary:   "Recent changes to the session token rotation.",
		CreatedAt: time.Now().UTC(),
	}
	if _, err := st.SavePack("r1", "default", p); err != nil {
		t.Fatalf("save pack: %v", err)
	}

	s := New(st, cfg)
	result, err := s.Search(context.Background(), "r1", "default", "recent changes to the session token", Options{Limit: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Status.RecencyBoost != 2.0 {
		t.Fatalf("expected recency boost 2.0, got %v", result.Status.RecencyBoost)
	}
	if result.Status.TimeHint != "recent" {
		t.Fatalf("expected time hint %q, got %q", "recent", result.Status.TimeHint)
	}
	if len(result.Candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	// A brand-new pack earns the 0.15 cap; the hinted query doubles it.
	if got := result.Candidates[0].RecencyBonus; got < 0.25 {
		t.Fatalf("expected boosted recency bonus, got %v", got)
	}
}

func TestSearchCanceledContext(t *testing.T) {
	st := openTestStore(t)
	cfg := keywordOnlyConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(st, cfg)
	if _, err := s.Search(ctx, "r1", "default", "anything", Options{}); err == nil {
		t.Fatal("expected context error")
	}
}
