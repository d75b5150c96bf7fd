// Package indexer bootstraps the pack store from a source tree. It walks the
// tree honoring gitignore rules, extracts symbol entries from Go files with
// go/parser, and writes the module and function context packs that query-time
// retrieval ranks later. Pack IDs are derived from type and target, so
// re-indexing a file updates its packs in place.
package indexer

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"

	ignore "github.com/sabhiram/go-gitignore"
)

const defaultMaxFileBytes = 2 << 20

// Stats summarizes one indexing run.
type Stats struct {
	FilesIndexed int `json:"files_indexed"`
	FilesSkipped int `json:"files_skipped"`
	Symbols      int `json:"symbols"`
	Packs        int `json:"packs"`
}

type Options struct {
	// EmbeddingModel, when set, enqueues every written pack for embedding
	// under that model.
	EmbeddingModel string
	MaxFileBytes   int64
	Now            func() time.Time
}

type Indexer struct {
	st        *store.Store
	repoID    string
	workspace string
	opts      Options
}

func New(st *store.Store, repoID, workspace string, opts Options) *Indexer {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = defaultMaxFileBytes
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Indexer{st: st, repoID: repoID, workspace: workspace, opts: opts}
}

func (ix *Indexer) now() time.Time {
	return ix.opts.Now()
}

// Index crawls target (a directory or single file) and writes symbols plus
// context packs. Paths are stored relative to root. Files that cannot be
// parsed as Go are counted as skipped, not failed.
func (ix *Indexer) Index(ctx context.Context, root, target string) (Stats, error) {
	var stats Stats
	info, err := os.Stat(target)
	if err != nil {
		return stats, err
	}
	matcher := LoadIgnoreMatcher(root)
	byDir := map[string][]goFile{}

	process := func(filePath string) error {
		relPath := relTo(root, filePath)
		if matcher.Matches(relPath) || !indexableGoFile(relPath) {
			if strings.HasSuffix(relPath, ".go") {
				stats.FilesSkipped++
			}
			return nil
		}
		parsed, ok, err := ix.indexGoFile(filePath, relPath, false, &stats)
		if err != nil {
			return err
		}
		if ok {
			dir := path.Dir(relPath)
			byDir[dir] = append(byDir[dir], parsed)
		}
		return nil
	}

	if info.IsDir() {
		err = filepath.WalkDir(target, func(p string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				relPath := relTo(root, p)
				if relPath == "." {
					return nil
				}
				// Directory patterns like "vendor/" only match paths under
				// the directory, so probe with a trailing slash too.
				if d.Name() == ".git" || matcher.Matches(relPath) || matcher.Matches(relPath+"/") {
					return filepath.SkipDir
				}
				return nil
			}
			return process(p)
		})
		if err != nil {
			return stats, err
		}
	} else {
		if err := process(target); err != nil {
			return stats, err
		}
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		if err := ix.saveModulePack(dir, byDir[dir], &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// IndexFile re-indexes a single file after a change. Packs previously tied
// to the file are invalidated first; re-saved packs come back valid, so only
// packs for symbols that disappeared stay invalid. The module pack for the
// file's package is rebuilt from the directory.
func (ix *Indexer) IndexFile(ctx context.Context, root, filePath string) (Stats, error) {
	var stats Stats
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	relPath := relTo(root, filePath)
	if !indexableGoFile(relPath) {
		return stats, nil
	}
	parsed, ok, err := ix.indexGoFile(filePath, relPath, true, &stats)
	if err != nil || !ok {
		return stats, err
	}

	relDir := path.Dir(relPath)
	files, err := ix.parsePackageDir(filepath.Dir(filePath), relDir, parsed)
	if err != nil {
		return stats, err
	}
	return stats, ix.saveModulePack(relDir, files, &stats)
}

// RemoveFile drops the file's symbols and invalidates every pack that lists
// it as a trigger path. Returns the number of packs invalidated.
func (ix *Indexer) RemoveFile(relPath string) (int, error) {
	if err := ix.st.DeleteSymbolsForFile(ix.repoID, ix.workspace, relPath); err != nil {
		return 0, err
	}
	return ix.st.InvalidatePacksForPath(ix.repoID, ix.workspace, relPath, ix.now())
}

func (ix *Indexer) indexGoFile(filePath, relPath string, invalidate bool, stats *Stats) (goFile, bool, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return goFile{}, false, err
	}
	if info.IsDir() {
		return goFile{}, false, nil
	}
	if info.Size() > ix.opts.MaxFileBytes {
		stats.FilesSkipped++
		return goFile{}, false, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return goFile{}, false, err
	}
	parsed, err := parseGoFile(relPath, data)
	if err != nil {
		stats.FilesSkipped++
		return goFile{}, false, nil
	}

	if invalidate {
		if _, err := ix.st.InvalidatePacksForPath(ix.repoID, ix.workspace, relPath, ix.now()); err != nil {
			return goFile{}, false, err
		}
	}
	if err := ix.st.ReplaceFileSymbols(ix.repoID, ix.workspace, relPath, parsed.Symbols); err != nil {
		return goFile{}, false, err
	}
	stats.Symbols += len(parsed.Symbols)

	for _, fn := range parsed.Functions {
		if !fn.Exported {
			continue
		}
		if err := ix.savePack(functionPack(parsed, fn, ix.now()), stats); err != nil {
			return goFile{}, false, err
		}
	}

	stats.FilesIndexed++
	return parsed, true, nil
}

// parsePackageDir parses the indexable Go files directly inside dir so the
// module pack reflects the whole package, not just the changed file. The
// already-parsed file is reused instead of re-reading it.
func (ix *Indexer) parsePackageDir(dir, relDir string, fresh goFile) ([]goFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := []goFile{fresh}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		relPath := path.Join(relDir, entry.Name())
		if relDir == "." {
			relPath = entry.Name()
		}
		if relPath == fresh.RelPath || !indexableGoFile(relPath) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		parsed, err := parseGoFile(relPath, data)
		if err != nil {
			continue
		}
		files = append(files, parsed)
	}
	return files, nil
}

func (ix *Indexer) saveModulePack(dir string, files []goFile, stats *Stats) error {
	p, ok := modulePack(dir, files, ix.now())
	if !ok {
		return nil
	}
	return ix.savePack(p, stats)
}

func (ix *Indexer) savePack(p pack.ContextPack, stats *Stats) error {
	saved, err := ix.st.SavePack(ix.repoID, ix.workspace, p)
	if err != nil {
		return err
	}
	stats.Packs++
	if ix.opts.EmbeddingModel == "" {
		return nil
	}
	return ix.st.EnqueueEmbedding(store.EmbeddingQueueItem{
		RepoID:    ix.repoID,
		Workspace: ix.workspace,
		PackID:    saved.ID,
		Model:     ix.opts.EmbeddingModel,
	})
}

// indexableGoFile reports whether relPath names a Go source file the indexer
// covers. Test files stay out of the symbol table and pack store.
func indexableGoFile(relPath string) bool {
	return strings.HasSuffix(relPath, ".go") && !strings.HasSuffix(relPath, "_test.go")
}

func relTo(root, filePath string) string {
	if root == "" {
		return filepath.ToSlash(filePath)
	}
	if rel, err := filepath.Rel(root, filePath); err == nil {
		rel = filepath.ToSlash(rel)
		if rel != ".." && !strings.HasPrefix(rel, "../") {
			return rel
		}
	}
	return filepath.ToSlash(filePath)
}

// IgnoreMatcher layers the built-in skip list under the repo's .gitignore
// and .librarianignore files. Paths are matched relative to the repo root.
type IgnoreMatcher struct {
	matchers []*ignore.GitIgnore
}

func (m IgnoreMatcher) Matches(relPath string) bool {
	for _, matcher := range m.matchers {
		if matcher != nil && matcher.MatchesPath(relPath) {
			return true
		}
	}
	return false
}

func LoadIgnoreMatcher(root string) IgnoreMatcher {
	matchers := []*ignore.GitIgnore{ignore.CompileIgnoreLines(defaultIgnoreLines()...)}
	if matcher, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		matchers = append(matchers, matcher)
	}
	if matcher, err := ignore.CompileIgnoreFile(filepath.Join(root, ".librarianignore")); err == nil {
		matchers = append(matchers, matcher)
	}
	return IgnoreMatcher{matchers: matchers}
}

func defaultIgnoreLines() []string {
	return []string{
		".git/",
		".librarian/",
		"node_modules/",
		"venv/",
		".venv/",
		"dist/",
		"build/",
		"out/",
		"vendor/",
		"target/",
		"testdata/",
		"__pycache__/",
		"*.pb.go",
		"*.png",
		"*.jpg",
		"*.jpeg",
		"*.gif",
		"*.pdf",
		"*.zip",
		"*.jar",
		"*.so",
		"*.dylib",
		"*.exe",
		".DS_Store",
	}
}
