package retrieval

import (
	"fmt"
	"math"
	"sort"

	"github.com/nateschmiedehaus/librarian-sub018/internal/embed"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
)

// VectorResult is one pack scored by cosine similarity against the query.
type VectorResult struct {
	ID    string
	Score float64
}

// VectorStatus reports how the semantic leg of a search went. It feeds the
// response disclosures, so Error strings are written for end users.
type VectorStatus struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model,omitempty"`
	Enabled       bool    `json:"enabled"`
	MinSimilarity float64 `json:"min_similarity,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// vectorCandidates embeds the query and scores it against every stored pack
// vector. Failures never abort the search: they come back in VectorStatus and
// the caller degrades to keyword-only results.
func (s *Searcher) vectorCandidates(repoID, workspace, query string, minSimilarity float64, limit int) ([]VectorResult, map[string][]float64, VectorStatus) {
	provider, providerStatus := embed.Resolve(s.cfg)
	status := VectorStatus{
		Provider:      providerStatus.Provider,
		Model:         providerStatus.Model,
		Enabled:       providerStatus.Enabled,
		MinSimilarity: minSimilarity,
		Error:         providerStatus.Error,
	}
	if provider == nil {
		return nil, nil, status
	}

	embeddings, _, err := s.store.ListEmbeddingsForSearch(repoID, workspace, providerStatus.Model)
	if err != nil {
		status.Enabled = false
		status.Error = fmt.Sprintf("failed to load stored embeddings: %v", err)
		return nil, nil, status
	}
	if len(embeddings) == 0 {
		status.Enabled = false
		status.Error = fmt.Sprintf("no embeddings stored for model %s (run: librarian embed backfill)", providerStatus.Model)
		return nil, nil, status
	}

	queryVectors, err := provider.Embed([]string{query})
	if err != nil || len(queryVectors) == 0 || len(queryVectors[0]) == 0 {
		status.Enabled = false
		if err != nil {
			status.Error = fmt.Sprintf("query embedding failed: %v", err)
		} else {
			status.Error = "query embedding failed: empty vector"
		}
		return nil, nil, status
	}

	vectorsByID := make(map[string][]float64, len(embeddings))
	for _, e := range embeddings {
		vectorsByID[e.PackID] = e.Vector
	}

	results := scoreEmbeddings(queryVectors[0], embeddings, limit)
	results = filterVectorResults(results, minSimilarity)
	return results, vectorsByID, status
}

func scoreEmbeddings(queryVec []float64, embeddings []store.Embedding, limit int) []VectorResult {
	queryNorm := vectorNorm(queryVec)
	if queryNorm == 0 {
		return nil
	}

	results := make([]VectorResult, 0, len(embeddings))
	for _, e := range embeddings {
		if len(e.Vector) != len(queryVec) {
			continue
		}
		score := cosineSimilarity(queryVec, queryNorm, e.Vector)
		results = append(results, VectorResult{ID: e.PackID, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func filterVectorResults(results []VectorResult, minSimilarity float64) []VectorResult {
	if minSimilarity <= 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score >= minSimilarity {
			kept = append(kept, r)
		}
	}
	return kept
}

func cosineSimilarity(query []float64, queryNorm float64, candidate []float64) float64 {
	candidateNorm := vectorNorm(candidate)
	if candidateNorm == 0 {
		return 0
	}
	dot := 0.0
	for i := range query {
		dot += query[i] * candidate[i]
	}
	return dot / (queryNorm * candidateNorm)
}

func vectorNorm(vec []float64) float64 {
	sum := 0.0
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}
