package budget

import (
	"sort"

	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
)

// Priority selects how candidate packs are ordered before admission.
type Priority string

const (
	PriorityRelevance Priority = "relevance"
	PriorityRecency   Priority = "recency"
	PriorityDiversity Priority = "diversity"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityRelevance, PriorityRecency, PriorityDiversity:
		return true
	}
	return false
}

// Strategy is the closed set of truncation strategies reported to callers.
type Strategy string

const (
	StrategyNone      Strategy = "none"
	StrategyRelevance Strategy = "relevance"
	StrategyCount     Strategy = "count"
)

type Budget struct {
	MaxTokens     int      `json:"max_tokens"`
	ReserveTokens int      `json:"reserve_tokens,omitempty"`
	Priority      Priority `json:"priority,omitempty"`
}

type Result struct {
	Truncated         bool     `json:"truncated"`
	TokensUsed        int      `json:"tokens_used"`
	TotalAvailable    int      `json:"total_available"`
	Strategy          Strategy `json:"truncation_strategy"`
	OriginalPackCount int      `json:"original_pack_count"`
	FinalPackCount    int      `json:"final_pack_count"`
	TrimmedFields     []string `json:"trimmed_fields,omitempty"`
}

type Request struct {
	Packs       []pack.ContextPack
	Synthesis   *pack.Synthesis
	Budget      Budget
	ScoreByPack map[string]float64
}

type Outcome struct {
	Packs     []pack.ContextPack
	Synthesis *pack.Synthesis
	Result    Result
}

// Bounds applied when an oversized pack or synthesis must shrink.
const (
	trimmedSnippetCount     = 1
	maxTrimmedSnippetTokens = 120
	trimmedKeyFactCount     = 3
	trimmedRelatedFileCount = 2
	minSummaryTokens        = 20

	maxTrimmedAnswerTokens  = 160
	trimmedInsightCount     = 3
	trimmedUncertaintyCount = 2
	trimmedCitationCount    = 2
)

// Enforce fits packs and synthesis into the budget. The first ordered pack
// is always kept, shrunk through the trim pipeline when it alone exceeds
// the remainder; a non-empty input never produces an empty output.
func Enforce(req Request, est Estimator) Outcome {
	if est == nil {
		est = NewCharEstimator(0)
	}
	b := req.Budget
	if b.Priority == "" {
		b.Priority = PriorityRelevance
	}

	result := Result{
		OriginalPackCount: len(req.Packs),
		Strategy:          StrategyNone,
	}
	totalAvailable := b.MaxTokens - b.ReserveTokens
	if totalAvailable < 0 {
		totalAvailable = 0
	}
	result.TotalAvailable = totalAvailable

	if totalAvailable <= 0 {
		// Non-binding budget: everything passes through untouched.
		result.FinalPackCount = len(req.Packs)
		result.TokensUsed = totalCost(est, req.Packs, req.Synthesis)
		return Outcome{Packs: req.Packs, Synthesis: req.Synthesis, Result: result}
	}

	used := 0
	synthesis := req.Synthesis
	if synthesis != nil {
		fitted, trimmedFields := fitSynthesis(est, *synthesis, totalAvailable)
		synthesis = &fitted
		result.TrimmedFields = append(result.TrimmedFields, trimmedFields...)
		used += synthesisCost(est, synthesis)
	}

	ordered := orderPacks(req.Packs, b.Priority, req.ScoreByPack)

	var admitted []pack.ContextPack
	for _, candidate := range ordered {
		cost := packCost(est, candidate)
		if len(admitted) == 0 {
			remaining := totalAvailable - used
			if cost > remaining {
				fitted, trimmedFields := fitPack(est, candidate, remaining)
				candidate = fitted
				cost = packCost(est, candidate)
				result.TrimmedFields = append(result.TrimmedFields, trimmedFields...)
			}
			admitted = append(admitted, candidate)
			used += cost
			continue
		}
		if used+cost > totalAvailable {
			break
		}
		admitted = append(admitted, candidate)
		used += cost
	}

	result.FinalPackCount = len(admitted)
	result.TokensUsed = used
	result.Truncated = len(admitted) < len(req.Packs) || len(result.TrimmedFields) > 0
	if result.Truncated {
		result.Strategy = strategyFor(b.Priority)
	}
	return Outcome{Packs: admitted, Synthesis: synthesis, Result: result}
}

// strategyFor maps the ordering mode to the reported strategy: cuts under
// relevance ordering are relevance-driven, cuts under recency or diversity
// ordering reduce by count.
func strategyFor(priority Priority) Strategy {
	if priority == PriorityRelevance {
		return StrategyRelevance
	}
	return StrategyCount
}

func totalCost(est Estimator, packs []pack.ContextPack, synthesis *pack.Synthesis) int {
	total := synthesisCost(est, synthesis)
	for _, p := range packs {
		total += packCost(est, p)
	}
	return total
}

func orderPacks(packs []pack.ContextPack, priority Priority, scores map[string]float64) []pack.ContextPack {
	out := make([]pack.ContextPack, len(packs))
	copy(out, packs)
	switch priority {
	case PriorityRecency:
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return out[i].ID < out[j].ID
		})
	case PriorityDiversity:
		out = diversityOrder(out, scores)
	default:
		sortByRelevance(out, scores)
	}
	return out
}

func relevanceScore(p pack.ContextPack, scores map[string]float64) float64 {
	if scores != nil {
		if score, ok := scores[p.ID]; ok {
			return clamp01(score)
		}
	}
	return clamp01(p.Confidence)
}

func sortByRelevance(packs []pack.ContextPack, scores map[string]float64) {
	sort.SliceStable(packs, func(i, j int) bool {
		si, sj := relevanceScore(packs[i], scores), relevanceScore(packs[j], scores)
		if si != sj {
			return si > sj
		}
		return packs[i].ID < packs[j].ID
	})
}

// diversityOrder interleaves pack types round-robin so every distinct type
// appears once before any type repeats. Types are visited in order of
// their best pack's relevance, ties broken by type name.
func diversityOrder(packs []pack.ContextPack, scores map[string]float64) []pack.ContextPack {
	sortByRelevance(packs, scores)
	groups := make(map[pack.Type][]pack.ContextPack)
	var typeOrder []pack.Type
	for _, p := range packs {
		if _, ok := groups[p.Type]; !ok {
			typeOrder = append(typeOrder, p.Type)
		}
		groups[p.Type] = append(groups[p.Type], p)
	}
	// typeOrder already reflects best-score-first; make ties deterministic.
	sort.SliceStable(typeOrder, func(i, j int) bool {
		bi := relevanceScore(groups[typeOrder[i]][0], scores)
		bj := relevanceScore(groups[typeOrder[j]][0], scores)
		if bi != bj {
			return bi > bj
		}
		return typeOrder[i] < typeOrder[j]
	})
	out := make([]pack.ContextPack, 0, len(packs))
	for len(out) < len(packs) {
		for _, t := range typeOrder {
			if len(groups[t]) == 0 {
				continue
			}
			out = append(out, groups[t][0])
			groups[t] = groups[t][1:]
		}
	}
	return out
}

// fitPack shrinks one oversized pack through the ordered trim pipeline:
// snippets, then key facts, then related files, then the summary itself.
// Cost is re-measured after every step and trimming stops once it fits.
// A pack that still exceeds the remainder after every trim is kept anyway.
func fitPack(est Estimator, p pack.ContextPack, available int) (pack.ContextPack, []string) {
	trimmed := p.Clone()
	var fields []string
	steps := []struct {
		field string
		apply func(Estimator, pack.ContextPack) (pack.ContextPack, bool)
	}{
		{"snippets", trimSnippets},
		{"key_facts", trimKeyFacts},
		{"related_files", trimRelatedFiles},
	}
	for _, step := range steps {
		if packCost(est, trimmed) <= available {
			return trimmed, fields
		}
		next, changed := step.apply(est, trimmed)
		if changed {
			trimmed = next
			fields = append(fields, p.ID+"."+step.field)
		}
	}
	if packCost(est, trimmed) > available {
		next, changed := trimSummaryToFit(est, trimmed, available)
		if changed {
			trimmed = next
			fields = append(fields, p.ID+".summary")
		}
	}
	return trimmed, fields
}

func trimSnippets(est Estimator, p pack.ContextPack) (pack.ContextPack, bool) {
	if len(p.Snippets) == 0 {
		return p, false
	}
	changed := len(p.Snippets) > trimmedSnippetCount
	kept := p.Snippets[0]
	if text, n := est.Truncate(kept.Text, maxTrimmedSnippetTokens); n < est.Estimate(kept.Text) {
		kept.Text = text
		changed = true
	}
	if !changed {
		return p, false
	}
	p.Snippets = []pack.Snippet{kept}
	return p, true
}

func trimKeyFacts(_ Estimator, p pack.ContextPack) (pack.ContextPack, bool) {
	if len(p.KeyFacts) <= trimmedKeyFactCount {
		return p, false
	}
	p.KeyFacts = p.KeyFacts[:trimmedKeyFactCount]
	return p, true
}

func trimRelatedFiles(_ Estimator, p pack.ContextPack) (pack.ContextPack, bool) {
	if len(p.RelatedFiles) <= trimmedRelatedFileCount {
		return p, false
	}
	p.RelatedFiles = p.RelatedFiles[:trimmedRelatedFileCount]
	return p, true
}

func trimSummaryToFit(est Estimator, p pack.ContextPack, available int) (pack.ContextPack, bool) {
	overBy := packCost(est, p) - available
	if overBy <= 0 {
		return p, false
	}
	current := est.Estimate(p.Summary)
	target := current - overBy
	if target < minSummaryTokens {
		target = minSummaryTokens
	}
	if target >= current {
		return p, false
	}
	summary, _ := est.Truncate(p.Summary, target)
	p.Summary = summary
	return p, true
}

// fitSynthesis reduces synthesis before any pack is touched: the answer
// text first, then key insights, uncertainties, and citations. If the
// capped fields still exceed the budget the lists are dropped and the
// answer is truncated to whatever room is left.
func fitSynthesis(est Estimator, s pack.Synthesis, totalAvailable int) (pack.Synthesis, []string) {
	if synthesisCost(est, &s) <= totalAvailable {
		return s, nil
	}
	var fields []string

	if answer, n := est.Truncate(s.Answer, maxTrimmedAnswerTokens); n < est.Estimate(s.Answer) {
		s.Answer = answer
		fields = append(fields, "synthesis.answer")
	}
	if synthesisCost(est, &s) <= totalAvailable {
		return s, fields
	}

	if len(s.KeyInsights) > trimmedInsightCount {
		s.KeyInsights = s.KeyInsights[:trimmedInsightCount]
		fields = append(fields, "synthesis.key_insights")
	}
	if synthesisCost(est, &s) <= totalAvailable {
		return s, fields
	}

	if len(s.Uncertainties) > trimmedUncertaintyCount {
		s.Uncertainties = s.Uncertainties[:trimmedUncertaintyCount]
		fields = append(fields, "synthesis.uncertainties")
	}
	if synthesisCost(est, &s) <= totalAvailable {
		return s, fields
	}

	if len(s.Citations) > trimmedCitationCount {
		s.Citations = s.Citations[:trimmedCitationCount]
		fields = append(fields, "synthesis.citations")
	}
	if synthesisCost(est, &s) <= totalAvailable {
		return s, fields
	}

	fields = dropList(&s.KeyInsights, "synthesis.key_insights", fields)
	fields = dropList(&s.Uncertainties, "synthesis.uncertainties", fields)
	fields = dropList(&s.Citations, "synthesis.citations", fields)
	room := totalAvailable - synthesisOverheadTokens - fieldOverheadTokens
	if room < 0 {
		room = 0
	}
	if answer, n := est.Truncate(s.Answer, room); n < est.Estimate(s.Answer) {
		s.Answer = answer
		fields = appendUnique(fields, "synthesis.answer")
	}
	return s, fields
}

func dropList(list *[]string, field string, fields []string) []string {
	if len(*list) == 0 {
		return fields
	}
	*list = nil
	return appendUnique(fields, field)
}

func appendUnique(fields []string, field string) []string {
	for _, existing := range fields {
		if existing == field {
			return fields
		}
	}
	return append(fields, field)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
