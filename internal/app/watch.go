package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nateschmiedehaus/librarian-sub018/internal/indexer"
	"github.com/nateschmiedehaus/librarian-sub018/internal/slogutil"
	"github.com/nateschmiedehaus/librarian-sub018/internal/watcher"
)

func runWatch(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repoOverride := fs.String("repo", "", "Override repo id or path")
	workspace := fs.String("workspace", "", "Workspace name")
	logPath := fs.String("log", "", "Append structured logs to this file")
	positional, flagArgs, err := splitFlagArgs(args, map[string]flagSpec{
		"repo":      {RequiresValue: true},
		"workspace": {RequiresValue: true},
		"log":       {RequiresValue: true},
	})
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}
	if err := fs.Parse(flagArgs); err != nil {
		return 2
	}
	if len(positional) > 1 {
		fmt.Fprintln(errOut, "watch takes at most one path")
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(errOut, "config error: %v\n", err)
		return 1
	}
	repoInfo, err := resolveRepo(&cfg, strings.TrimSpace(*repoOverride))
	if err != nil {
		fmt.Fprintf(errOut, "repo detection error: %v\n", err)
		return 1
	}
	root := repoInfo.GitRoot
	if len(positional) == 1 {
		root = positional[0]
	}
	if strings.TrimSpace(root) == "" {
		fmt.Fprintln(errOut, "no repository root detected; run inside a repo or pass a path")
		return 1
	}

	logger := slogutil.Discard()
	if strings.TrimSpace(*logPath) != "" {
		fileLogger, closer, err := slogutil.FileLogger(*logPath, slog.LevelInfo)
		if err != nil {
			fmt.Fprintf(errOut, "log open error: %v\n", err)
			return 1
		}
		defer closer.Close()
		logger = fileLogger
	}

	st, err := openStore(cfg, repoInfo.ID)
	if err != nil {
		fmt.Fprintf(errOut, "store open error: %v\n", err)
		return 1
	}
	defer st.Close()

	if err := st.EnsureRepo(repoInfo); err != nil {
		fmt.Fprintf(errOut, "store repo error: %v\n", err)
		return 1
	}

	workspaceName := resolveWorkspace(cfg, *workspace)
	ix := indexer.New(st, repoInfo.ID, workspaceName, indexer.Options{
		EmbeddingModel: effectiveEmbeddingModel(cfg),
	})
	matcher := indexer.LoadIgnoreMatcher(root)

	w, err := watcher.New(root, matcher.Matches)
	if err != nil {
		fmt.Fprintf(errOut, "watcher error: %v\n", err)
		return 1
	}
	if err := w.Start(); err != nil {
		fmt.Fprintf(errOut, "watcher start error: %v\n", err)
		return 1
	}
	defer w.Stop()

	fmt.Fprintf(out, "Watching %s (repo=%s workspace=%s). Ctrl-C to stop.\n", root, repoInfo.ID, workspaceName)
	logger.Info("watch started", "root", root, "repo", repoInfo.ID, "workspace", workspaceName)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	ctx := context.Background()
	for {
		select {
		case <-signals:
			fmt.Fprintln(out, "stopping")
			logger.Info("watch stopped")
			return 0
		case event, ok := <-w.Events():
			if !ok {
				return 0
			}
			handleWatchEvent(ctx, ix, root, event, out, logger)
		}
	}
}

func handleWatchEvent(ctx context.Context, ix *indexer.Indexer, root string, event watcher.Event, out io.Writer, logger *slog.Logger) {
	switch event.Op {
	case watcher.OpDelete:
		invalidated, err := ix.RemoveFile(event.RelPath)
		if err != nil {
			logger.Error("remove failed", "path", event.RelPath, "error", err)
			fmt.Fprintf(out, "remove %s: %v\n", event.RelPath, err)
			return
		}
		logger.Info("file removed", "path", event.RelPath, "packs_invalidated", invalidated)
		fmt.Fprintf(out, "removed %s (%d packs invalidated)\n", event.RelPath, invalidated)
	case watcher.OpCreate, watcher.OpModify:
		stats, err := ix.IndexFile(ctx, root, filepath.Join(root, filepath.FromSlash(event.RelPath)))
		if err != nil {
			logger.Error("reindex failed", "path", event.RelPath, "error", err)
			fmt.Fprintf(out, "reindex %s: %v\n", event.RelPath, err)
			return
		}
		if stats.FilesIndexed == 0 {
			return
		}
		logger.Info("file reindexed", "path", event.RelPath, "symbols", stats.Symbols, "packs", stats.Packs)
		fmt.Fprintf(out, "reindexed %s (%d symbols, %d packs)\n", event.RelPath, stats.Symbols, stats.Packs)
	}
}
