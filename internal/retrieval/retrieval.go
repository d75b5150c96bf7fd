// Package retrieval finds candidate context packs for a query by fusing
// sqlite FTS keyword search with cosine similarity over stored embeddings.
// Either leg may be missing; the search degrades and says so rather than
// failing.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/config"
	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
)

const (
	defaultLimit  = 8
	minFetchLimit = 20
	maxFetchLimit = 100
)

type Searcher struct {
	store *store.Store
	cfg   config.Config
}

func New(st *store.Store, cfg config.Config) *Searcher {
	return &Searcher{store: st, cfg: cfg}
}

type Options struct {
	Limit         int
	MinSimilarity float64
	Now           time.Time
}

// Status describes how complete the search was. Disclosures are user-facing
// sentences the orchestrator copies into the response.
type Status struct {
	FTSCount          int          `json:"fts_count"`
	VectorCount       int          `json:"vector_count"`
	Vector            VectorStatus `json:"vector"`
	DuplicatesDropped int          `json:"duplicates_dropped,omitempty"`
	RecencyBoost      float64      `json:"recency_boost,omitempty"`
	TimeHint          string       `json:"time_hint,omitempty"`
	Degraded          bool         `json:"degraded"`
	Disclosures       []string     `json:"disclosures,omitempty"`
}

type Result struct {
	Candidates  []Candidate
	ScoreByPack map[string]float64
	Status      Status
}

// Search runs both retrieval legs and fuses them. The query must already be
// validated; the only errors returned here are context cancellation.
func (s *Searcher) Search(ctx context.Context, repoID, workspace, query string, opts Options) (Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	fetchLimit := opts.Limit * 4
	if fetchLimit < minFetchLimit {
		fetchLimit = minFetchLimit
	}
	if fetchLimit > maxFetchLimit {
		fetchLimit = maxFetchLimit
	}
	minSimilarity := opts.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = s.cfg.EmbeddingMinSimilarity
	}

	result := Result{}

	parsed := store.ParseQuery(query)
	result.Status.RecencyBoost = parsed.BoostRecency
	if parsed.TimeHint != nil {
		result.Status.TimeHint = parsed.TimeHint.Relative
	}

	ftsResults, _, ftsErr := s.store.SearchPacks(repoID, workspace, query, fetchLimit)
	if ftsErr != nil {
		result.Status.Degraded = true
		result.Status.Disclosures = append(result.Status.Disclosures,
			fmt.Sprintf("keyword search unavailable: %v", ftsErr))
	}
	result.Status.FTSCount = len(ftsResults)

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	vectorResults, vectorsByID, vectorStatus := s.vectorCandidates(repoID, workspace, query, minSimilarity, fetchLimit)
	result.Status.Vector = vectorStatus
	if vectorStatus.Error != "" {
		result.Status.Degraded = true
		result.Status.Disclosures = append(result.Status.Disclosures,
			fmt.Sprintf("semantic search unavailable: %s; keyword results only", vectorStatus.Error))
	}
	result.Status.VectorCount = len(vectorResults)

	inFTS := make(map[string]bool, len(ftsResults))
	for _, r := range ftsResults {
		inFTS[r.Pack.ID] = true
	}
	packsByID := make(map[string]pack.ContextPack)
	for _, vr := range vectorResults {
		if inFTS[vr.ID] {
			continue
		}
		p, err := s.store.GetPack(repoID, workspace, vr.ID)
		if err != nil {
			// A stale embedding row may outlive its pack.
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			result.Status.Degraded = true
			result.Status.Disclosures = append(result.Status.Disclosures,
				fmt.Sprintf("failed to load pack %s: %v", vr.ID, err))
			continue
		}
		packsByID[vr.ID] = p
	}

	rankOpts := rankOptions{Now: opts.Now, RecencyMultiplier: parsed.BoostRecency}
	if parsed.TimeHint != nil {
		rankOpts.TimeFilter = &parsed.TimeHint.After
	}
	candidates := fuseCandidates(ftsResults, vectorResults, packsByID, rankOpts)
	candidates, dropped := collapseNearDuplicates(candidates, vectorsByID, 0)
	result.Status.DuplicatesDropped = dropped
	if dropped > 0 {
		result.Status.Disclosures = append(result.Status.Disclosures,
			fmt.Sprintf("collapsed %d near-duplicate packs", dropped))
	}
	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	result.Candidates = candidates
	result.ScoreByPack = normalizeScores(candidates)
	return result, nil
}

// normalizeScores maps final scores into [0,1] relative to the best
// candidate, preserving order. Downstream consumers treat the map as a
// relevance ranking, not a raw fusion score.
func normalizeScores(candidates []Candidate) map[string]float64 {
	scores := make(map[string]float64, len(candidates))
	var best float64
	for _, c := range candidates {
		if c.FinalScore > best {
			best = c.FinalScore
		}
	}
	for _, c := range candidates {
		switch {
		case c.FinalScore <= 0:
			scores[c.Pack.ID] = 0
		case best <= 0:
			scores[c.Pack.ID] = 0
		default:
			scores[c.Pack.ID] = c.FinalScore / best
		}
	}
	return scores
}
