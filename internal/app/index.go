package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/indexer"
)

func runIndex(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repoOverride := fs.String("repo", "", "Override repo id or path")
	workspace := fs.String("workspace", "", "Workspace name")
	positional, flagArgs, err := splitFlagArgs(args, map[string]flagSpec{
		"repo":      {RequiresValue: true},
		"workspace": {RequiresValue: true},
	})
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}
	if err := fs.Parse(flagArgs); err != nil {
		return 2
	}
	if len(positional) > 1 {
		fmt.Fprintln(errOut, "index takes at most one path")
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
	target := root
	if len(positional) == 1 {
		target = positional[0]
		if !filepath.IsAbs(target) {
			target = filepath.Join(root, target)
		}
	}
	if strings.TrimSpace(root) == "" {
		fmt.Fprintln(errOut, "no repository root detected; run inside a repo or pass --repo <path>")
		return 1
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

	// Packs are queued for embedding only when a provider is configured, so
	// a keyword-only setup never accumulates a backlog it cannot drain.
	embeddingModel := effectiveEmbeddingModel(cfg)

	ix := indexer.New(st, repoInfo.ID, resolveWorkspace(cfg, *workspace), indexer.Options{
		EmbeddingModel: embeddingModel,
	})

	start := time.Now()
	stats, err := ix.Index(context.Background(), root, target)
	if err != nil {
		fmt.Fprintf(errOut, "index error: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "Indexed %d files (%d skipped): %d symbols, %d packs in %s\n",
		stats.FilesIndexed, stats.FilesSkipped, stats.Symbols, stats.Packs,
		time.Since(start).Round(time.Millisecond))
	if embeddingModel != "" {
		depth, err := st.CountEmbeddingQueue(repoInfo.ID, embeddingModel)
		if err == nil && depth > 0 {
			fmt.Fprintf(out, "Queued %d packs for embedding (model=%s). Run 'librarian embed backfill'.\n", depth, embeddingModel)
		}
	}
	return 0
}
