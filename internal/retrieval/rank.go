package retrieval

import (
	"math"
	"sort"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
)

const (
	defaultRRFK      = 60
	defaultRRFWeight = 60.0
)

// Candidate is one pack carried through hybrid fusion. Rank fields are
// 1-based and 0 when the pack was absent from that leg.
type Candidate struct {
	Pack          pack.ContextPack `json:"pack"`
	FTSRank       int              `json:"fts_rank,omitempty"`
	FTSScore      float64          `json:"fts_score,omitempty"`
	VectorRank    int              `json:"vector_rank,omitempty"`
	VectorScore   float64          `json:"vector_score,omitempty"`
	RRFScore      float64          `json:"rrf_score"`
	RecencyBonus  float64          `json:"recency_bonus"`
	SafetyPenalty float64          `json:"safety_penalty,omitempty"`
	FinalScore    float64          `json:"final_score"`
	Sources       []string         `json:"sources"`
}

type rankOptions struct {
	Limit     int
	RRFK      int
	RRFWeight float64
	Now       time.Time
	// RecencyMultiplier scales the recency bonus for queries that ask for
	// recent material ("what changed today"); 1.0 is neutral.
	RecencyMultiplier float64
	// TimeFilter, when set, penalizes packs created before the window the
	// query named rather than excluding them outright.
	TimeFilter *time.Time
}

const timeFilterPenalty = 2.0

func normalizeRankOptions(opts rankOptions) rankOptions {
	if opts.RRFK <= 0 {
		opts.RRFK = defaultRRFK
	}
	if opts.RRFWeight <= 0 {
		opts.RRFWeight = defaultRRFWeight
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	if opts.RecencyMultiplier <= 0 {
		opts.RecencyMultiplier = 1.0
	}
	return opts
}

// fuseCandidates merges the keyword and semantic legs with reciprocal rank
// fusion, then layers recency and safety adjustments on top. packsByID must
// cover every vector result that the FTS leg did not return.
func fuseCandidates(ftsResults []store.PackResult, vectorResults []VectorResult, packsByID map[string]pack.ContextPack, opts rankOptions) []Candidate {
	opts = normalizeRankOptions(opts)

	byID := make(map[string]*Candidate, len(ftsResults)+len(vectorResults))
	order := make([]string, 0, len(ftsResults)+len(vectorResults))

	for i, r := range ftsResults {
		c := &Candidate{
			Pack:     r.Pack,
			FTSRank:  i + 1,
			FTSScore: -r.BM25,
			Sources:  []string{"fts"},
		}
		byID[r.Pack.ID] = c
		order = append(order, r.Pack.ID)
	}

	for i, r := range vectorResults {
		if c, ok := byID[r.ID]; ok {
			c.VectorRank = i + 1
			c.VectorScore = r.Score
			c.Sources = append(c.Sources, "vector")
			continue
		}
		p, ok := packsByID[r.ID]
		if !ok {
			continue
		}
		c := &Candidate{
			Pack:        p,
			VectorRank:  i + 1,
			VectorScore: r.Score,
			Sources:     []string{"vector"},
		}
		byID[r.ID] = c
		order = append(order, r.ID)
	}

	candidates := make([]Candidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.RRFScore = (rrfScore(c.FTSRank, opts.RRFK) + rrfScore(c.VectorRank, opts.RRFK)) * opts.RRFWeight
		c.RecencyBonus = recencyBonus(opts.Now, c.Pack.CreatedAt) * opts.RecencyMultiplier
		if containsPromptInjectionPhrase(c.Pack.SearchText()) {
			c.SafetyPenalty = -100
		}
		c.FinalScore = c.RRFScore + c.RecencyBonus + c.SafetyPenalty
		if opts.TimeFilter != nil && c.Pack.CreatedAt.Before(*opts.TimeFilter) {
			c.FinalScore -= timeFilterPenalty
		}
		candidates = append(candidates, *c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].FinalScore != candidates[j].FinalScore {
			return candidates[i].FinalScore > candidates[j].FinalScore
		}
		if !candidates[i].Pack.CreatedAt.Equal(candidates[j].Pack.CreatedAt) {
			return candidates[i].Pack.CreatedAt.After(candidates[j].Pack.CreatedAt)
		}
		return candidates[i].Pack.ID < candidates[j].Pack.ID
	})

	if opts.Limit > 0 && len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}
	return candidates
}

func rrfScore(rank, k int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / float64(k+rank)
}

// recencyBonus decays exponentially with a 14-day time constant, capped at
// 0.15 for a pack created just now.
func recencyBonus(now, createdAt time.Time) float64 {
	if createdAt.IsZero() || now.Before(createdAt) {
		return 0
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	return 0.15 * math.Exp(-ageDays/14)
}
