package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/config"
	"github.com/nateschmiedehaus/librarian-sub018/internal/pathutil"
	"github.com/nateschmiedehaus/librarian-sub018/internal/repo"
	"github.com/nateschmiedehaus/librarian-sub018/internal/reporesolve"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
)

type Options struct {
	RepoOverride string
	Cwd          string
	Workspace    string
	Repair       bool
	RequireRepo  bool
}

type Report struct {
	OK         bool         `json:"ok"`
	Repo       RepoReport   `json:"repo"`
	DB         DBReport     `json:"db"`
	Schema     SchemaReport `json:"schema"`
	FTS        FTSReport    `json:"fts"`
	Index      IndexReport  `json:"index"`
	ActiveRepo string       `json:"active_repo,omitempty"`
	Error      string       `json:"error,omitempty"`
	Suggestion string       `json:"suggestion,omitempty"`
}

type RepoReport struct {
	ID      string `json:"id"`
	GitRoot string `json:"git_root"`
	Source  string `json:"source"`
	HasGit  bool   `json:"has_git"`
}

type DBReport struct {
	Path      string `json:"path"`
	Exists    bool   `json:"exists"`
	SizeBytes int64  `json:"size_bytes"`
}

type SchemaReport struct {
	UserVersion     int    `json:"user_version"`
	CurrentVersion  int    `json:"current_version"`
	LastMigrationAt string `json:"last_migration_at,omitempty"`
}

type FTSReport struct {
	Packs   bool `json:"packs"`
	Rebuilt bool `json:"rebuilt,omitempty"`
}

// IndexReport summarizes how much of the repo the librarian has catalogued.
type IndexReport struct {
	Packs        int    `json:"packs"`
	Symbols      int    `json:"symbols"`
	EmbedBacklog int    `json:"embed_backlog"`
	IndexedHead  string `json:"indexed_head,omitempty"`
	StaleHead    bool   `json:"stale_head,omitempty"`
}

type CheckError struct {
	Message    string
	Suggestion string
	Err        error
}

func (e *CheckError) Error() string {
	if e.Suggestion == "" {
		return e.Message
	}
	return fmt.Sprintf("%s. %s", e.Message, e.Suggestion)
}

func Check(ctx context.Context, repoRef string, opts Options) (Report, error) {
	return check(ctx, repoRef, opts)
}

func Repair(ctx context.Context, repoRef string, opts Options) (Report, error) {
	opts.Repair = true
	return check(ctx, repoRef, opts)
}

func check(ctx context.Context, repoRef string, opts Options) (Report, error) {
	_ = ctx
	report := Report{}

	cfg, err := config.Load()
	if err != nil {
		return reportError(report, "config error", "Check config.toml", err)
	}
	report.ActiveRepo = cfg.ActiveRepo

	cwd := opts.Cwd
	if cwd == "" {
		cwd, err = os.Getwd()
		if err != nil {
			return reportError(report, "failed to get cwd", "", err)
		}
	}

	workspace := strings.TrimSpace(opts.Workspace)
	if workspace == "" {
		workspace = cfg.DefaultWorkspace
	}
	if workspace == "" {
		workspace = "default"
	}

	info, source, err := resolveRepo(cfg, repoRef, cwd, opts.RequireRepo)
	if err != nil {
		if ce, ok := err.(*CheckError); ok {
			return reportError(report, ce.Message, ce.Suggestion, ce.Err)
		}
		return reportError(report, "repo resolution error", "Run: librarian init", err)
	}

	report.Repo = RepoReport{
		ID:      info.ID,
		GitRoot: info.GitRoot,
		Source:  source,
		HasGit:  info.HasGit,
	}

	dbPath := cfg.RepoDBPath(info.ID)
	report.DB.Path = dbPath

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		msg, hint := mapDBError(err)
		return reportError(report, msg, hint, err)
	}

	fi, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			report.DB.Exists = false
			if !opts.Repair {
				return reportError(report, "index not initialized for this repo", "Run: librarian init", err)
			}
		} else {
			msg, hint := mapDBError(err)
			return reportError(report, msg, hint, err)
		}
	} else {
		report.DB.Exists = true
		report.DB.SizeBytes = fi.Size()
	}

	st, err := store.Open(dbPath)
	if err != nil {
		msg, hint := mapDBError(err)
		return reportError(report, msg, hint, err)
	}
	defer st.Close()

	if fi, err := os.Stat(dbPath); err == nil {
		report.DB.Exists = true
		report.DB.SizeBytes = fi.Size()
	}

	userVersion, err := st.UserVersion()
	if err != nil {
		return reportError(report, "schema check failed", "Try: librarian doctor --verbose", err)
	}
	report.Schema.UserVersion = userVersion
	report.Schema.CurrentVersion = store.SchemaVersion()

	if lastMigration, err := st.GetMeta("last_migration_at"); err == nil {
		report.Schema.LastMigrationAt = formatTimeRFC3339(lastMigration)
	}

	hasFTS, err := st.HasFTSTable()
	if err != nil {
		return reportError(report, "FTS check failed", "Try: librarian doctor --verbose", err)
	}
	if !hasFTS {
		if !opts.Repair {
			return reportError(report, "FTS index missing", "Run: librarian doctor --repair", errors.New("fts missing"))
		}
		if err := st.RebuildFTS(); err != nil {
			return reportError(report, "FTS rebuild failed", "Try: librarian doctor --verbose", err)
		}
		report.FTS.Rebuilt = true
		hasFTS, err = st.HasFTSTable()
		if err != nil {
			return reportError(report, "FTS check failed", "Try: librarian doctor --verbose", err)
		}
	}
	report.FTS.Packs = hasFTS
	if !hasFTS {
		return reportError(report, "FTS index missing", "Run: librarian doctor --repair", errors.New("fts missing"))
	}

	if err := fillIndexReport(st, cfg, info, workspace, &report.Index); err != nil {
		return reportError(report, "index check failed", "Try: librarian doctor --verbose", err)
	}

	report.OK = true
	return report, nil
}

// fillIndexReport counts what the catalog holds and flags an index built on a
// head the current branch no longer contains.
func fillIndexReport(st *store.Store, cfg config.Config, info repo.Info, workspace string, out *IndexReport) error {
	packs, err := st.CountPacks(info.ID, workspace)
	if err != nil {
		return err
	}
	out.Packs = packs

	symbolCount, err := st.CountSymbols(info.ID, workspace)
	if err != nil {
		return err
	}
	out.Symbols = symbolCount

	model := strings.TrimSpace(cfg.EmbeddingModel)
	if model != "" {
		backlog, err := st.CountEmbeddingQueue(info.ID, model)
		if err != nil {
			return err
		}
		out.EmbedBacklog = backlog
	}

	meta, err := st.GetRepo(info.ID)
	if err != nil {
		// A freshly created DB has no repo row until init runs.
		return nil
	}
	out.IndexedHead = meta.LastHead
	if info.HasGit && meta.LastHead != "" && info.Head != "" && meta.LastHead != info.Head {
		reachable, err := repo.IsAncestor(info.GitRoot, meta.LastHead, info.Head)
		if err == nil && !reachable {
			out.StaleHead = true
		}
	}
	return nil
}

func resolveRepo(cfg config.Config, repoRef, cwd string, requireRepo bool) (repo.Info, string, error) {
	if repoRef != "" {
		if info, err := detectRepoPathStrict(repoRef); err == nil {
			return info, "path", nil
		} else if reporesolve.LooksLikePath(repoRef) {
			if info, err := repoFromRoot(cfg, repoRef); err == nil {
				return info, "db_root", nil
			}
		} else if pathExists(repoRef) {
			if isGitNotFound(err) {
				return repo.Info{}, "", &CheckError{
					Message:    "git not found",
					Suggestion: "Install git or pass --repo <id|path>",
					Err:        err,
				}
			}
			return repo.Info{}, "", &CheckError{
				Message:    fmt.Sprintf("repo detection failed for %s", repoRef),
				Suggestion: "Run: librarian init or pass --repo <id>",
				Err:        err,
			}
		}

		info, err := repoFromID(cfg, repoRef)
		if err != nil {
			return repo.Info{}, "", &CheckError{
				Message:    fmt.Sprintf("repo not found: %s", repoRef),
				Suggestion: "Run: librarian init",
				Err:        err,
			}
		}
		return info, "repo_id", nil
	}

	info, err := detectRepoCwdStrict(cwd)
	if err == nil {
		return info, "cwd", nil
	}
	if isGitNotFound(err) {
		return repo.Info{}, "", &CheckError{
			Message:    "git not found",
			Suggestion: "Install git or pass --repo <id|path>",
			Err:        err,
		}
	}
	if requireRepo {
		return repo.Info{}, "", &CheckError{
			Message:    "repo not specified and could not detect repo from current directory",
			Suggestion: "Pass --repo <id|path> or start librarian mcp --repo /path/to/repo",
			Err:        err,
		}
	}

	if cfg.ActiveRepo != "" {
		meta, metaErr := repoMetaFromID(cfg, cfg.ActiveRepo)
		if metaErr == nil && meta.GitRoot != "" && pathExists(meta.GitRoot) {
			info, infoErr := repo.InfoFromCache(meta.RepoID, meta.GitRoot, meta.LastHead, meta.LastBranch, true)
			if infoErr == nil {
				return info, "active_repo", nil
			}
		}
	}

	return repo.Info{}, "", &CheckError{
		Message:    "no active repo",
		Suggestion: "Run: librarian init (in your repo)",
		Err:        err,
	}
}

func repoFromRoot(cfg config.Config, repoPath string) (repo.Info, error) {
	cleanPath := pathutil.Canonical(repoPath)
	if cleanPath == "" {
		return repo.Info{}, fmt.Errorf("repo path is empty")
	}

	if _, repoID := cachedRepoForPath(cfg, cleanPath); repoID != "" {
		return repoFromID(cfg, repoID)
	}
	repoID, err := reporesolve.RepoIDFromRoot(cfg.RepoRootDir(), cleanPath)
	if err != nil {
		return repo.Info{}, err
	}
	return repoFromID(cfg, repoID)
}

func cachedRepoForPath(cfg config.Config, path string) (string, string) {
	if len(cfg.RepoCache) == 0 {
		return "", ""
	}
	cleanPath := pathutil.Canonical(path)
	bestRoot := ""
	bestID := ""
	sep := string(os.PathSeparator)
	for root, repoID := range cfg.RepoCache {
		if repoID == "" {
			continue
		}
		cleanRoot := pathutil.Canonical(root)
		if cleanRoot == "." || cleanRoot == "" {
			continue
		}
		if cleanPath == cleanRoot || strings.HasPrefix(cleanPath, cleanRoot+sep) {
			if len(cleanRoot) > len(bestRoot) {
				bestRoot = cleanRoot
				bestID = repoID
			}
		}
	}
	return bestRoot, bestID
}

func detectRepoCwdStrict(cwd string) (repo.Info, error) {
	info, err := repo.DetectBaseStrict(cwd)
	if err != nil {
		return repo.Info{}, err
	}
	return repo.PopulateOriginAndID(info)
}

func detectRepoPathStrict(path string) (repo.Info, error) {
	if _, err := os.Stat(path); err != nil {
		return repo.Info{}, err
	}
	info, err := repo.DetectBaseStrict(path)
	if err != nil {
		return repo.Info{}, err
	}
	return repo.PopulateOriginAndID(info)
}

func repoMetaFromID(cfg config.Config, repoID string) (store.RepoRow, error) {
	dbPath := cfg.RepoDBPath(repoID)
	if _, err := os.Stat(dbPath); err != nil {
		return store.RepoRow{}, err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return store.RepoRow{}, err
	}
	defer st.Close()
	return st.GetRepo(repoID)
}

func repoFromID(cfg config.Config, repoID string) (repo.Info, error) {
	meta, err := repoMetaFromID(cfg, repoID)
	if err != nil {
		return repo.Info{}, err
	}
	return repo.InfoFromCache(meta.RepoID, meta.GitRoot, meta.LastHead, meta.LastBranch, true)
}

func mapDBError(err error) (string, string) {
	if isDBLocked(err) {
		return "database is locked", "Close other librarian process and retry (busy_timeout=3000ms)"
	}
	if isReadOnly(err) {
		return "cannot create DB under XDG path", "Check permissions or set XDG_DATA_HOME"
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "schema migration failed") {
		reason := strings.TrimSpace(strings.TrimPrefix(err.Error(), "schema migration failed:"))
		if reason == "" {
			reason = err.Error()
		}
		return fmt.Sprintf("schema migration failed: %s", reason), "Try: librarian doctor --verbose"
	}
	return "DB open error", "Run: librarian doctor --verbose"
}

func reportError(report Report, message, suggestion string, err error) (Report, error) {
	report.OK = false
	report.Error = message
	report.Suggestion = suggestion
	return report, &CheckError{Message: message, Suggestion: suggestion, Err: err}
}

func isGitNotFound(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "executable file not found") || strings.Contains(msg, "git: not found")
}

func isDBLocked(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database is busy")
}

func isReadOnly(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "read-only") || strings.Contains(msg, "readonly") || strings.Contains(msg, "permission denied")
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func formatTimeRFC3339(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.Format(time.RFC3339Nano)
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.Format(time.RFC3339)
	}
	return value
}
