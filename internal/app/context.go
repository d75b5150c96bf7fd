package app

import (
	"fmt"
	"strings"

	"github.com/nateschmiedehaus/librarian-sub018/internal/config"
	"github.com/nateschmiedehaus/librarian-sub018/internal/librarian"
	"github.com/nateschmiedehaus/librarian-sub018/internal/repo"
	"github.com/nateschmiedehaus/librarian-sub018/internal/reporesolve"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
)

func loadConfig() (config.Config, error) {
	return config.Load()
}

func openStore(cfg config.Config, repoID string) (*store.Store, error) {
	return store.Open(cfg.RepoDBPath(repoID))
}

func resolveWorkspace(cfg config.Config, workspace string) string {
	ws := strings.TrimSpace(workspace)
	if ws != "" {
		return ws
	}
	ws = strings.TrimSpace(cfg.DefaultWorkspace)
	if ws == "" {
		return "default"
	}
	return ws
}

func resolveRepo(cfg *config.Config, repoOverride string) (repo.Info, error) {
	if cfg == nil {
		return repo.Info{}, fmt.Errorf("config is nil")
	}
	info, _, err := reporesolve.Resolve(cfg, repoOverride, reporesolve.ResolveOptions{
		AllowNonStrictFallback: true,
		PersistCache:           true,
	})
	if err != nil {
		return repo.Info{}, err
	}
	if err := config.ApplyRepoOverrides(cfg, info.GitRoot); err != nil {
		return repo.Info{}, err
	}
	return info, nil
}

// openService wires a librarian service for one command invocation. The
// caller owns the returned close func.
func openService(repoOverride, workspace string) (*librarian.Service, config.Config, repo.Info, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, config.Config{}, repo.Info{}, nil, fmt.Errorf("config error: %w", err)
	}
	info, err := resolveRepo(&cfg, strings.TrimSpace(repoOverride))
	if err != nil {
		return nil, config.Config{}, repo.Info{}, nil, fmt.Errorf("repo detection error: %w", err)
	}
	st, err := openStore(cfg, info.ID)
	if err != nil {
		return nil, config.Config{}, repo.Info{}, nil, fmt.Errorf("store open error: %w", err)
	}
	if err := st.EnsureRepo(info); err != nil {
		st.Close()
		return nil, config.Config{}, repo.Info{}, nil, fmt.Errorf("store repo error: %w", err)
	}

	svc := librarian.New(librarian.Params{
		Store:     st,
		Config:    cfg,
		RepoID:    info.ID,
		Workspace: resolveWorkspace(cfg, workspace),
		Root:      info.GitRoot,
	})
	return svc, cfg, info, func() { _ = st.Close() }, nil
}
