package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/config"
	"github.com/nateschmiedehaus/librarian-sub018/internal/embed"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
)

const embedBatchSize = 8

func runEmbed(args []string, out, errOut io.Writer) int {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "status":
			return runEmbedStatus(args[1:], out, errOut)
		case "backfill":
			return runEmbedBackfill(args[1:], out, errOut)
		}
	}
	fmt.Fprintln(errOut, "usage: librarian embed <status|backfill> [options]")
	return 2
}

// effectiveEmbeddingModel resolves the model packs would be embedded under,
// without probing provider availability.
func effectiveEmbeddingModel(cfg config.Config) string {
	provider := strings.TrimSpace(strings.ToLower(cfg.EmbeddingProvider))
	if provider == "" || provider == "none" {
		return ""
	}
	model := strings.TrimSpace(cfg.EmbeddingModel)
	if model != "" {
		return model
	}
	if provider == "openai" {
		return embed.DefaultOpenAIModel
	}
	return embed.DefaultAutoModel
}

type embedStatusResponse struct {
	RepoID     string `json:"repo_id"`
	Workspace  string `json:"workspace"`
	Provider   string `json:"provider"`
	Model      string `json:"model,omitempty"`
	Enabled    bool   `json:"enabled"`
	Error      string `json:"error,omitempty"`
	Packs      int    `json:"packs"`
	Embedded   int    `json:"embedded"`
	Stale      int    `json:"stale"`
	Missing    int    `json:"missing"`
	QueueDepth int    `json:"queue_depth"`
	WorkerRun  string `json:"worker_last_run,omitempty"`
	WorkerErr  string `json:"worker_last_error,omitempty"`
}

func runEmbedStatus(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("embed status", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repoOverride := fs.String("repo", "", "Override repo id or path")
	workspace := fs.String("workspace", "", "Workspace name")
	jsonOut := fs.Bool("json", false, "Output machine-readable JSON")
	if err := fs.Parse(args); err != nil {
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
	st, err := openStore(cfg, repoInfo.ID)
	if err != nil {
		fmt.Fprintf(errOut, "store open error: %v\n", err)
		return 1
	}
	defer st.Close()

	_, status := embed.Resolve(cfg)
	model := strings.TrimSpace(status.Model)
	if model == "" {
		model = effectiveEmbeddingModel(cfg)
	}

	resp := embedStatusResponse{
		RepoID:    repoInfo.ID,
		Workspace: resolveWorkspace(cfg, *workspace),
		Provider:  status.Provider,
		Model:     model,
		Enabled:   status.Enabled,
		Error:     status.Error,
	}
	if model != "" {
		coverage, err := st.EmbeddingCoverage(repoInfo.ID, resp.Workspace, model)
		if err == nil {
			resp.Packs = coverage.Total
			resp.Embedded = coverage.WithEmbeddings
			resp.Stale = coverage.Stale
			resp.Missing = coverage.Total - coverage.WithEmbeddings
			if resp.Missing < 0 {
				resp.Missing = 0
			}
		}
		if depth, err := st.CountEmbeddingQueue(repoInfo.ID, model); err == nil {
			resp.QueueDepth = depth
		}
	}
	resp.WorkerRun, _ = st.GetMeta(embedWorkerMetaLastRun)
	resp.WorkerErr, _ = st.GetMeta(embedWorkerMetaLastError)

	if *jsonOut {
		encoded, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			fmt.Fprintf(errOut, "json error: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, string(encoded))
		return 0
	}

	state := "disabled"
	if resp.Enabled {
		state = "enabled"
	}
	fmt.Fprintf(out, "provider=%s model=%s (%s)\n", resp.Provider, resp.Model, state)
	if resp.Error != "" {
		fmt.Fprintf(out, "reason: %s\n", resp.Error)
	}
	fmt.Fprintf(out, "packs=%d embedded=%d stale=%d missing=%d queue=%d\n",
		resp.Packs, resp.Embedded, resp.Stale, resp.Missing, resp.QueueDepth)
	if resp.WorkerRun != "" {
		fmt.Fprintf(out, "worker last run: %s\n", resp.WorkerRun)
	}
	if resp.WorkerErr != "" {
		fmt.Fprintf(out, "worker last error: %s\n", resp.WorkerErr)
	}
	return 0
}

func runEmbedBackfill(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("embed backfill", flag.ContinueOnError)
	fs.SetOutput(errOut)
	limit := fs.Int("limit", 0, "Max packs to embed (0 = all missing)")
	repoOverride := fs.String("repo", "", "Override repo id or path")
	workspace := fs.String("workspace", "", "Workspace name")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(errOut, "config error: %v\n", err)
		return 1
	}
	provider, status := embed.Resolve(cfg)
	if provider == nil || !status.Enabled {
		msg := status.Error
		if strings.TrimSpace(msg) == "" {
			msg = "embedding provider disabled"
		}
		fmt.Fprintf(errOut, "embedding provider unavailable: %s\n", msg)
		return 1
	}
	model := strings.TrimSpace(status.Model)
	if model == "" {
		model = effectiveEmbeddingModel(cfg)
	}

	repoInfo, err := resolveRepo(&cfg, strings.TrimSpace(*repoOverride))
	if err != nil {
		fmt.Fprintf(errOut, "repo detection error: %v\n", err)
		return 1
	}
	st, err := openStore(cfg, repoInfo.ID)
	if err != nil {
		fmt.Fprintf(errOut, "store open error: %v\n", err)
		return 1
	}
	defer st.Close()

	workspaceName := resolveWorkspace(cfg, *workspace)
	embedded, err := backfillEmbeddings(provider, st, repoInfo.ID, workspaceName, model, *limit)
	if err != nil {
		fmt.Fprintf(errOut, "embedding error: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Embedded %d packs (provider=%s model=%s)\n", embedded, status.Provider, model)
	return 0
}

// backfillEmbeddings drains the queue first, then sweeps packs that were
// never queued (e.g. indexed before a provider was configured).
func backfillEmbeddings(provider embed.Provider, st *store.Store, repoID, workspace, model string, limit int) (int, error) {
	total := 0
	for {
		batch := embedBatchSize
		if limit > 0 && limit-total < batch {
			batch = limit - total
		}
		if batch <= 0 {
			return total, nil
		}

		items, err := st.ListEmbeddingQueue(repoID, model, batch)
		if err != nil {
			return total, err
		}
		if len(items) == 0 {
			break
		}
		embedded, err := embedQueueItems(provider, st, items)
		total += embedded
		if err != nil {
			return total, err
		}
	}

	for {
		batch := embedBatchSize
		if limit > 0 && limit-total < batch {
			batch = limit - total
		}
		if batch <= 0 {
			return total, nil
		}

		packs, err := st.ListPacksMissingEmbedding(repoID, workspace, model, batch)
		if err != nil {
			return total, err
		}
		if len(packs) == 0 {
			return total, nil
		}
		texts := make([]string, len(packs))
		for i, p := range packs {
			texts[i] = store.PackEmbeddingText(p)
		}
		vectors, err := provider.Embed(texts)
		if err != nil {
			return total, err
		}
		if len(vectors) != len(packs) {
			return total, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(packs))
		}
		for i, p := range packs {
			err := st.UpsertEmbedding(store.Embedding{
				RepoID:      repoID,
				Workspace:   workspace,
				PackID:      p.ID,
				Model:       model,
				ContentHash: store.EmbeddingContentHash(texts[i]),
				Vector:      vectors[i],
			})
			if err != nil {
				return total, err
			}
			total++
		}
	}
}

func embedQueueItems(provider embed.Provider, st *store.Store, items []store.EmbeddingQueueItem) (int, error) {
	processed := make([]int64, 0, len(items))
	texts := make([]string, 0, len(items))
	live := make([]store.EmbeddingQueueItem, 0, len(items))

	for _, item := range items {
		p, err := st.GetPack(item.RepoID, item.Workspace, item.PackID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				processed = append(processed, item.QueueID)
				continue
			}
			_ = st.DeleteEmbeddingQueue(processed)
			return 0, err
		}
		text := store.PackEmbeddingText(p)
		if strings.TrimSpace(text) == "" {
			processed = append(processed, item.QueueID)
			continue
		}
		texts = append(texts, text)
		live = append(live, item)
	}

	embedded := 0
	if len(live) > 0 {
		vectors, err := provider.Embed(texts)
		if err != nil {
			_ = st.DeleteEmbeddingQueue(processed)
			return 0, err
		}
		if len(vectors) != len(live) {
			_ = st.DeleteEmbeddingQueue(processed)
			return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(live))
		}
		for i, item := range live {
			err := st.UpsertEmbedding(store.Embedding{
				RepoID:      item.RepoID,
				Workspace:   item.Workspace,
				PackID:      item.PackID,
				Model:       item.Model,
				ContentHash: store.EmbeddingContentHash(texts[i]),
				Vector:      vectors[i],
				CreatedAt:   time.Now().UTC(),
			})
			if err != nil {
				_ = st.DeleteEmbeddingQueue(processed)
				return embedded, err
			}
			processed = append(processed, item.QueueID)
			embedded++
		}
	}

	return embedded, st.DeleteEmbeddingQueue(processed)
}
