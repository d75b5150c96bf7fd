package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
	"github.com/nateschmiedehaus/librarian-sub018/internal/symbols"
)

const sessionSource = `// Package auth issues and refreshes user sessions.
package auth

import "time"

// Session tracks one authenticated user.
type Session struct {
	UserID  string
	Expires time.Time
}

// NewSession mints a session for the given user. The session expires after
// the configured TTL.
func NewSession(userID string) *Session {
	return &Session{UserID: userID, Expires: time.Now().Add(ttl)}
}

func (s *Session) Refresh() {
	s.Expires = time.Now().Add(ttl)
}

const ttl = time.Hour

func expireAfter(s *Session, d time.Duration) {
	s.Expires = time.Now().Add(d)
}
`

const sessionSourceNoRefresh = `// Package auth issues and refreshes user sessions.
package auth

import "time"

// Session tracks one authenticated user.
type Session struct {
	UserID  string
	Expires time.Time
}

// NewSession mints a session for the given user. The session expires after
// the configured TTL.
func NewSession(userID string) *Session {
	return &Session{UserID: userID, Expires: time.Now().Add(ttl)}
}

const ttl = time.Hour

func expireAfter(s *Session, d time.Duration) {
	s.Expires = time.Now().Add(d)
}
`

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "librarian.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testIndexer(st *store.Store, model string) *Indexer {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return New(st, "r1", "default", Options{
		EmbeddingModel: model,
		Now:            func() time.Time { return now },
	})
}

func TestIndexExtractsSymbolsAndPacks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth/session.go", sessionSource)
	writeFile(t, root, "auth/session_test.go", "package auth\n")
	writeFile(t, root, "vendor/conn.go", "package vendored\n\nfunc Dial() {}\n")
	writeFile(t, root, "README.md", "docs\n")

	st := openTestStore(t)
	ix := testIndexer(st, "nomic-embed-text")

	stats, err := ix.Index(context.Background(), root, root)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if stats.FilesIndexed != 1 {
		t.Fatalf("files indexed = %d, want 1", stats.FilesIndexed)
	}
	if stats.FilesSkipped != 1 {
		t.Fatalf("files skipped = %d, want 1 (the test file)", stats.FilesSkipped)
	}
	if stats.Symbols != 4 {
		t.Fatalf("symbols = %d, want 4", stats.Symbols)
	}
	if stats.Packs != 3 {
		t.Fatalf("packs = %d, want 3", stats.Packs)
	}

	entries, err := st.LoadSymbols("r1", "default")
	if err != nil {
		t.Fatalf("load symbols: %v", err)
	}
	kinds := map[string]symbols.Kind{}
	for _, e := range entries {
		kinds[e.Name] = e.Kind
	}
	if kinds["Session"] != symbols.KindClass {
		t.Fatalf("Session kind = %q", kinds["Session"])
	}
	if kinds["Session.Refresh"] != symbols.KindMethod {
		t.Fatalf("Session.Refresh kind = %q", kinds["Session.Refresh"])
	}
	if kinds["NewSession"] != symbols.KindFunction || kinds["expireAfter"] != symbols.KindFunction {
		t.Fatalf("function kinds wrong: %v", kinds)
	}

	module, err := st.GetPack("r1", "default", pack.DeterministicID(pack.TypeModuleContext, "auth"))
	if err != nil {
		t.Fatalf("module pack: %v", err)
	}
	if module.Summary != "Package auth issues and refreshes user sessions." {
		t.Fatalf("module summary = %q", module.Summary)
	}
	if len(module.RelatedFiles) != 1 || module.RelatedFiles[0] != "auth/session.go" {
		t.Fatalf("module related files = %v", module.RelatedFiles)
	}
	if module.Confidence != 0.8 {
		t.Fatalf("module confidence = %v", module.Confidence)
	}

	fn, err := st.GetPack("r1", "default", pack.DeterministicID(pack.TypeFunctionContext, "auth/session.go#NewSession"))
	if err != nil {
		t.Fatalf("function pack: %v", err)
	}
	if fn.Summary != "NewSession mints a session for the given user." {
		t.Fatalf("function summary = %q", fn.Summary)
	}
	if fn.Confidence != 0.75 {
		t.Fatalf("documented function confidence = %v", fn.Confidence)
	}
	if len(fn.Snippets) != 1 || fn.Snippets[0].Language != "go" || fn.Snippets[0].Path != "auth/session.go" {
		t.Fatalf("function snippet = %+v", fn.Snippets)
	}
	if fn.Snippets[0].EndLine < fn.Snippets[0].StartLine {
		t.Fatalf("snippet range inverted: %+v", fn.Snippets[0])
	}
	if len(fn.Invalidators) != 1 || fn.Invalidators[0] != "auth/session.go" {
		t.Fatalf("function invalidators = %v", fn.Invalidators)
	}

	refresh, err := st.GetPack("r1", "default", pack.DeterministicID(pack.TypeFunctionContext, "auth/session.go#Session.Refresh"))
	if err != nil {
		t.Fatalf("method pack: %v", err)
	}
	if refresh.Confidence != 0.6 {
		t.Fatalf("undocumented method confidence = %v", refresh.Confidence)
	}

	if _, err := st.GetPack("r1", "default", pack.DeterministicID(pack.TypeModuleContext, "vendor")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("vendor should be ignored, got err %v", err)
	}

	queued, err := st.CountEmbeddingQueue("r1", "nomic-embed-text")
	if err != nil {
		t.Fatalf("count queue: %v", err)
	}
	if queued != 3 {
		t.Fatalf("embedding queue = %d, want 3", queued)
	}
}

func TestIndexFileInvalidatesRemovedSymbols(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth/session.go", sessionSource)

	st := openTestStore(t)
	ix := testIndexer(st, "")
	if _, err := ix.Index(context.Background(), root, root); err != nil {
		t.Fatalf("index: %v", err)
	}

	refreshID := pack.DeterministicID(pack.TypeFunctionContext, "auth/session.go#Session.Refresh")
	if _, err := st.GetPack("r1", "default", refreshID); err != nil {
		t.Fatalf("refresh pack before rewrite: %v", err)
	}

	writeFile(t, root, "auth/session.go", sessionSourceNoRefresh)
	if _, err := ix.IndexFile(context.Background(), root, filepath.Join(root, "auth", "session.go")); err != nil {
		t.Fatalf("index file: %v", err)
	}

	if _, err := st.GetPack("r1", "default", refreshID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("refresh pack should be invalidated, got err %v", err)
	}

	fn, err := st.GetPack("r1", "default", pack.DeterministicID(pack.TypeFunctionContext, "auth/session.go#NewSession"))
	if err != nil {
		t.Fatalf("surviving pack: %v", err)
	}
	if fn.Version != 2 {
		t.Fatalf("surviving pack version = %d, want 2", fn.Version)
	}

	module, err := st.GetPack("r1", "default", pack.DeterministicID(pack.TypeModuleContext, "auth"))
	if err != nil {
		t.Fatalf("module pack after rewrite: %v", err)
	}
	if len(module.KeyFacts) < 2 || module.KeyFacts[1] != "1 Go files, 3 symbols." {
		t.Fatalf("module facts not refreshed: %v", module.KeyFacts)
	}

	entries, err := st.LoadSymbols("r1", "default")
	if err != nil {
		t.Fatalf("load symbols: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("symbols after rewrite = %d, want 3", len(entries))
	}
	for _, e := range entries {
		if e.Name == "Session.Refresh" {
			t.Fatal("removed method still in symbol table")
		}
	}
}

func TestRemoveFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth/session.go", sessionSource)

	st := openTestStore(t)
	ix := testIndexer(st, "")
	if _, err := ix.Index(context.Background(), root, root); err != nil {
		t.Fatalf("index: %v", err)
	}

	invalidated, err := ix.RemoveFile("auth/session.go")
	if err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if invalidated != 3 {
		t.Fatalf("invalidated = %d, want 3", invalidated)
	}

	entries, err := st.LoadSymbols("r1", "default")
	if err != nil {
		t.Fatalf("load symbols: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("symbols after delete = %d, want 0", len(entries))
	}

	remaining, err := st.PacksByWorkspace("r1", "default", 10)
	if err != nil {
		t.Fatalf("packs by workspace: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("valid packs after delete = %d, want 0", len(remaining))
	}
}

func TestIndexCanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth/session.go", sessionSource)

	st := openTestStore(t)
	ix := testIndexer(st, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ix.Index(ctx, root, root); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
