package store

import (
	"testing"
	"time"
)

func TestEmbeddingLifecycle(t *testing.T) {
	st := openTestStore(t)

	saved, err := st.SavePack("r1", "default", authPack(""))
	if err != nil {
		t.Fatalf("save pack: %v", err)
	}

	missing, err := st.ListPacksMissingEmbedding("r1", "default", "test-model", 0)
	if err != nil {
		t.Fatalf("list missing: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != saved.ID {
		t.Fatalf("expected the new pack to be missing an embedding, got %+v", missing)
	}

	err = st.UpsertEmbedding(Embedding{
		RepoID:      "r1",
		Workspace:   "default",
		PackID:      saved.ID,
		Model:       "test-model",
		ContentHash: EmbeddingContentHash(PackEmbeddingText(saved)),
		Vector:      []float64{0.1, 0.2, 0.3},
	})
	if err != nil {
		t.Fatalf("upsert embedding: %v", err)
	}

	fresh, stale, err := st.ListEmbeddingsForSearch("r1", "default", "test-model")
	if err != nil {
		t.Fatalf("list embeddings: %v", err)
	}
	if len(fresh) != 1 || stale != 0 {
		t.Fatalf("expected 1 fresh embedding, got %d fresh %d stale", len(fresh), stale)
	}
	if fresh[0].PackID != saved.ID || len(fresh[0].Vector) != 3 {
		t.Fatalf("embedding fields lost: %+v", fresh[0])
	}

	missing, err = st.ListPacksMissingEmbedding("r1", "default", "test-model", 0)
	if err != nil {
		t.Fatalf("list missing: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no missing packs after upsert, got %d", len(missing))
	}

	// Changing the pack text makes the stored embedding stale.
	changed := authPack(saved.ID)
	changed.Summary = "A completely different summary."
	if _, err := st.SavePack("r1", "default", changed); err != nil {
		t.Fatalf("re-save pack: %v", err)
	}

	fresh, stale, err = st.ListEmbeddingsForSearch("r1", "default", "test-model")
	if err != nil {
		t.Fatalf("list embeddings: %v", err)
	}
	if len(fresh) != 0 || stale != 1 {
		t.Fatalf("expected stale embedding after text change, got %d fresh %d stale", len(fresh), stale)
	}

	missing, err = st.ListPacksMissingEmbedding("r1", "default", "test-model", 0)
	if err != nil {
		t.Fatalf("list missing: %v", err)
	}
	if len(missing) != 1 {
		t.Fatalf("stale pack must be re-embeddable, got %d", len(missing))
	}
}

func TestUpsertEmbeddingValidation(t *testing.T) {
	st := openTestStore(t)

	if err := st.UpsertEmbedding(Embedding{RepoID: "r1", PackID: "P-1", Model: "m"}); err == nil {
		t.Fatal("expected error for missing content hash")
	}
	if err := st.UpsertEmbedding(Embedding{RepoID: "r1", PackID: "P-1", Model: "m", ContentHash: "h"}); err == nil {
		t.Fatal("expected error for empty vector")
	}
	if err := st.UpsertEmbedding(Embedding{PackID: "P-1", Model: "m", ContentHash: "h", Vector: []float64{1}}); err == nil {
		t.Fatal("expected error for missing repo")
	}
}

func TestEmbeddingQueueDedupes(t *testing.T) {
	st := openTestStore(t)

	item := EmbeddingQueueItem{RepoID: "r1", Workspace: "default", PackID: "P-1", Model: "test-model"}
	if err := st.EnqueueEmbedding(item); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := st.EnqueueEmbedding(item); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}

	count, err := st.CountEmbeddingQueue("r1", "test-model")
	if err != nil {
		t.Fatalf("count queue: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected deduplicated queue of 1, got %d", count)
	}

	items, err := st.ListEmbeddingQueue("r1", "test-model", 10)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(items) != 1 || items[0].PackID != "P-1" {
		t.Fatalf("queue item lost: %+v", items)
	}

	if err := st.DeleteEmbeddingQueue([]int64{items[0].QueueID}); err != nil {
		t.Fatalf("delete queue: %v", err)
	}
	count, err = st.CountEmbeddingQueue("r1", "test-model")
	if err != nil {
		t.Fatalf("count queue: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty queue, got %d", count)
	}
}

func TestEmbeddingCoverage(t *testing.T) {
	st := openTestStore(t)

	saved, err := st.SavePack("r1", "default", authPack(""))
	if err != nil {
		t.Fatalf("save pack: %v", err)
	}
	if _, err := st.SavePack("r1", "default", authPack("P-second")); err != nil {
		t.Fatalf("save second pack: %v", err)
	}

	err = st.UpsertEmbedding(Embedding{
		RepoID:      "r1",
		Workspace:   "default",
		PackID:      saved.ID,
		Model:       "test-model",
		ContentHash: EmbeddingContentHash(PackEmbeddingText(saved)),
		Vector:      []float64{0.5, 0.5},
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("upsert embedding: %v", err)
	}

	coverage, err := st.EmbeddingCoverage("r1", "default", "test-model")
	if err != nil {
		t.Fatalf("coverage: %v", err)
	}
	if coverage.Total != 2 {
		t.Fatalf("expected 2 total packs, got %d", coverage.Total)
	}
	if coverage.WithEmbeddings != 1 {
		t.Fatalf("expected 1 embedded pack, got %d", coverage.WithEmbeddings)
	}
	if coverage.LastUpdated.IsZero() {
		t.Fatal("expected last updated timestamp")
	}
}
