package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
)

type Embedding struct {
	RepoID      string
	Workspace   string
	PackID      string
	Model       string
	ContentHash string
	Vector      []float64
	VectorDim   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Store) UpsertEmbedding(embedding Embedding) error {
	workspace := normalizeWorkspace(embedding.Workspace)
	packID := strings.TrimSpace(embedding.PackID)
	model := strings.TrimSpace(embedding.Model)
	contentHash := strings.TrimSpace(embedding.ContentHash)
	if embedding.RepoID == "" || packID == "" || model == "" {
		return fmt.Errorf("embedding requires repo_id, pack_id, model")
	}
	if contentHash == "" {
		return fmt.Errorf("embedding requires content_hash")
	}
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	vectorJSON, err := json.Marshal(embedding.Vector)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	createdAt := embedding.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := embedding.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err = s.db.Exec(`
		INSERT INTO embeddings (
			repo_id, workspace, pack_id, model, content_hash, vector_json, vector_dim, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, workspace, pack_id, model)
		DO UPDATE SET
			content_hash = excluded.content_hash,
			vector_json = excluded.vector_json,
			vector_dim = excluded.vector_dim,
			updated_at = excluded.updated_at
	`, embedding.RepoID, workspace, packID, model, contentHash, string(vectorJSON), len(embedding.Vector), createdAt.UTC().Format(time.RFC3339Nano), updatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListEmbeddingsForSearch returns embeddings whose content hash still
// matches the current pack text. Stale rows are counted but skipped, so
// vector search never ranks a pack by text it no longer carries.
func (s *Store) ListEmbeddingsForSearch(repoID, workspace, model string) ([]Embedding, int, error) {
	workspace = normalizeWorkspace(workspace)
	model = strings.TrimSpace(model)
	if repoID == "" || model == "" {
		return nil, 0, fmt.Errorf("embedding search requires repo_id and model")
	}

	rows, err := s.db.Query(`
		SELECT e.pack_id, e.content_hash, e.vector_json, e.vector_dim, e.created_at, e.updated_at,
			p.target_id, p.summary, p.key_facts_text
		FROM embeddings e
		JOIN packs p
			ON p.pack_id = e.pack_id
			AND p.repo_id = e.repo_id
			AND p.workspace = e.workspace
			AND p.invalidated_at IS NULL
		WHERE e.repo_id = ? AND e.workspace = ? AND e.model = ?
	`, repoID, workspace, model)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var embeddings []Embedding
	stale := 0
	for rows.Next() {
		var packID string
		var contentHash string
		var vectorJSON string
		var vectorDim int
		var createdAt string
		var updatedAt string
		var targetID sql.NullString
		var summary sql.NullString
		var keyFactsText sql.NullString
		if err := rows.Scan(&packID, &contentHash, &vectorJSON, &vectorDim, &createdAt, &updatedAt, &targetID, &summary, &keyFactsText); err != nil {
			return nil, 0, err
		}
		expected := EmbeddingContentHash(packEmbeddingTextFromFields(targetID.String, summary.String, keyFactsText.String))
		if contentHash == "" || expected != contentHash {
			stale++
			continue
		}
		var vector []float64
		if err := json.Unmarshal([]byte(vectorJSON), &vector); err != nil {
			return nil, 0, err
		}
		if len(vector) == 0 || (vectorDim > 0 && len(vector) != vectorDim) {
			stale++
			continue
		}
		embeddings = append(embeddings, Embedding{
			RepoID:      repoID,
			Workspace:   workspace,
			PackID:      packID,
			Model:       model,
			ContentHash: contentHash,
			Vector:      vector,
			VectorDim:   vectorDim,
			CreatedAt:   parseTime(createdAt),
			UpdatedAt:   parseTime(updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return embeddings, stale, nil
}

// ListPacksMissingEmbedding returns packs with no fresh embedding for
// the model, newest first.
func (s *Store) ListPacksMissingEmbedding(repoID, workspace, model string, limit int) ([]pack.ContextPack, error) {
	workspace = normalizeWorkspace(workspace)
	model = strings.TrimSpace(model)
	if repoID == "" || model == "" {
		return nil, fmt.Errorf("missing embedding requires repo_id and model")
	}

	rows, err := s.db.Query(`
		SELECT p.pack_id, p.pack_type, p.target_id, p.summary,
			p.key_facts_json, p.snippets_json, p.related_files_json, p.invalidators_json,
			p.confidence, p.success_count, p.failure_count, p.last_outcome, p.version, p.created_at,
			e.content_hash
		FROM packs p
		LEFT JOIN embeddings e
			ON e.repo_id = p.repo_id
			AND e.workspace = p.workspace
			AND e.pack_id = p.pack_id
			AND e.model = ?
		WHERE p.repo_id = ? AND p.workspace = ? AND p.invalidated_at IS NULL
		ORDER BY p.created_at DESC
	`, model, repoID, workspace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packs []pack.ContextPack
	for rows.Next() {
		var contentHash sql.NullString
		p, err := scanPackFields(func(dest ...any) error {
			args := append(dest, &contentHash)
			return rows.Scan(args...)
		})
		if err != nil {
			return nil, err
		}
		expected := EmbeddingContentHash(PackEmbeddingText(p))
		if contentHash.String != "" && contentHash.String == expected {
			continue
		}
		packs = append(packs, p)
		if limit > 0 && len(packs) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return packs, nil
}

type EmbeddingCoverage struct {
	WithEmbeddings int
	Total          int
	Stale          int
	DimMismatch    int
	LastUpdated    time.Time
}

func (s *Store) EmbeddingCoverage(repoID, workspace, model string) (EmbeddingCoverage, error) {
	workspace = normalizeWorkspace(workspace)
	model = strings.TrimSpace(model)
	if repoID == "" || model == "" {
		return EmbeddingCoverage{}, fmt.Errorf("embedding coverage requires repo_id and model")
	}

	total, err := s.CountPacks(repoID, workspace)
	if err != nil {
		return EmbeddingCoverage{}, err
	}

	rows, err := s.db.Query(`
		SELECT e.content_hash, e.vector_dim, e.updated_at,
			p.target_id, p.summary, p.key_facts_text
		FROM embeddings e
		LEFT JOIN packs p
			ON p.pack_id = e.pack_id
			AND p.repo_id = e.repo_id
			AND p.workspace = e.workspace
			AND p.invalidated_at IS NULL
		WHERE e.repo_id = ? AND e.workspace = ? AND e.model = ?
	`, repoID, workspace, model)
	if err != nil {
		return EmbeddingCoverage{}, err
	}
	defer rows.Close()

	coverage := EmbeddingCoverage{Total: total}
	firstDim := 0
	for rows.Next() {
		var contentHash string
		var vectorDim int
		var updatedAt string
		var targetID sql.NullString
		var summary sql.NullString
		var keyFactsText sql.NullString
		if err := rows.Scan(&contentHash, &vectorDim, &updatedAt, &targetID, &summary, &keyFactsText); err != nil {
			return EmbeddingCoverage{}, err
		}

		expected := EmbeddingContentHash(packEmbeddingTextFromFields(targetID.String, summary.String, keyFactsText.String))
		if expected == "" || contentHash == "" || expected != contentHash {
			coverage.Stale++
		} else {
			coverage.WithEmbeddings++
		}

		if firstDim == 0 {
			firstDim = vectorDim
		} else if vectorDim != firstDim {
			coverage.DimMismatch++
		}
		if ts := parseTime(updatedAt); !ts.IsZero() {
			if coverage.LastUpdated.IsZero() || ts.After(coverage.LastUpdated) {
				coverage.LastUpdated = ts
			}
		}
	}
	if err := rows.Err(); err != nil {
		return EmbeddingCoverage{}, err
	}
	return coverage, nil
}

func EmbeddingContentHash(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return sha256Hex(text)
}

func PackEmbeddingText(p pack.ContextPack) string {
	return packEmbeddingTextFromFields(p.TargetID, p.Summary, strings.Join(p.KeyFacts, " "))
}

func packEmbeddingTextFromFields(targetID, summary, keyFactsText string) string {
	parts := make([]string, 0, 3)
	if strings.TrimSpace(targetID) != "" {
		parts = append(parts, "Target: "+strings.TrimSpace(targetID))
	}
	if strings.TrimSpace(summary) != "" {
		parts = append(parts, strings.TrimSpace(summary))
	}
	if strings.TrimSpace(keyFactsText) != "" {
		parts = append(parts, "Facts: "+strings.TrimSpace(keyFactsText))
	}
	return strings.Join(parts, "\n")
}
