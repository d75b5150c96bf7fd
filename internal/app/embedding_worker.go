package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/config"
	"github.com/nateschmiedehaus/librarian-sub018/internal/embed"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
)

const (
	embedQueueBatchSize  = 16
	embedQueueIdleDelay  = 3 * time.Second
	embedQueueErrorDelay = 10 * time.Second
)

const (
	embedWorkerMetaLastRun   = "embedding_worker_last_run"
	embedWorkerMetaLastError = "embedding_worker_last_error"
	embedWorkerMetaModel     = "embedding_worker_model"
)

// startEmbeddingWorker drains the embedding queue in the background while a
// long-running mode (MCP) is up. Queries keep working off FTS until vectors
// land, so worker failures only delay the vector leg.
func startEmbeddingWorker(ctx context.Context, cfg config.Config, repoID string) {
	provider := strings.TrimSpace(strings.ToLower(cfg.EmbeddingProvider))
	if provider == "" || provider == "none" {
		return
	}
	model := effectiveEmbeddingModel(cfg)
	if model == "" || repoID == "" {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			embedder, status := embed.Resolve(cfg)
			if embedder == nil || !status.Enabled {
				if !sleepWithContext(ctx, embedQueueErrorDelay) {
					return
				}
				continue
			}

			delay := runEmbeddingWorkerIteration(embedder, cfg, repoID, model)
			if delay > 0 && !sleepWithContext(ctx, delay) {
				return
			}
		}
	}()
}

func runEmbeddingWorkerIteration(embedder embed.Provider, cfg config.Config, repoID, model string) (delay time.Duration) {
	st, err := openStore(cfg, repoID)
	if err != nil {
		return embedQueueErrorDelay
	}
	defer st.Close()
	defer func() {
		if recovered := recover(); recovered != nil {
			recordEmbeddingWorkerStatus(st, model, fmt.Sprintf("panic: %v", recovered))
			delay = embedQueueErrorDelay
		}
	}()

	items, err := st.ListEmbeddingQueue(repoID, model, embedQueueBatchSize)
	if err != nil {
		recordEmbeddingWorkerStatus(st, model, err.Error())
		return embedQueueErrorDelay
	}
	if len(items) == 0 {
		return embedQueueIdleDelay
	}

	if _, err := embedQueueItems(embedder, st, items); err != nil {
		recordEmbeddingWorkerStatus(st, model, err.Error())
		return embedQueueErrorDelay
	}
	recordEmbeddingWorkerStatus(st, model, "")
	return 0
}

func recordEmbeddingWorkerStatus(st *store.Store, model, errMsg string) {
	if st == nil || strings.TrimSpace(model) == "" {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_ = st.SetMeta(embedWorkerMetaLastRun, now)
	_ = st.SetMeta(embedWorkerMetaModel, model)
	_ = st.SetMeta(embedWorkerMetaLastError, strings.TrimSpace(errMsg))
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
