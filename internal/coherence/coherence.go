package coherence

import (
	"fmt"
	"path"
	"strings"

	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
)

// Sub-score weights. They must sum to exactly 1.0.
const (
	ClusteringWeight = 0.5
	AlignmentWeight  = 0.3
	DomainWeight     = 0.2
)

const (
	// DefaultThreshold is the coherence level below which results are
	// treated as scattered and confidence is discounted.
	DefaultThreshold = 0.6
	// DefaultMaxPenalty bounds the worst-case confidence discount.
	DefaultMaxPenalty = 0.5

	// MinResultsForClustering is the smallest set where pairwise
	// clustering is meaningful. Below it clustering is trivially 1.0.
	MinResultsForClustering = 2

	adjustmentFloor = 0.05
	emptyAdjustment = 0.1
	coherenceMargin = 0.1
)

type Params struct {
	Threshold  float64
	MaxPenalty float64
}

func DefaultParams() Params {
	return Params{Threshold: DefaultThreshold, MaxPenalty: DefaultMaxPenalty}
}

// Analysis scores how well a candidate result set hangs together and how
// strongly a raw confidence should be discounted.
type Analysis struct {
	ResultClustering     float64  `json:"result_clustering"`
	QueryAlignment       float64  `json:"query_alignment"`
	DomainCoherence      float64  `json:"domain_coherence"`
	Overall              float64  `json:"overall"`
	ConfidenceAdjustment float64  `json:"confidence_adjustment"`
	Warnings             []string `json:"warnings,omitempty"`
}

// Analyze scores a candidate set against itself and the query intent.
// An empty set is not an error: it scores zero with a fixed small
// adjustment so downstream confidence never silently stays high.
func Analyze(packs []pack.ContextPack, queryIntent string, params Params) Analysis {
	if params.Threshold <= 0 {
		params.Threshold = DefaultThreshold
	}
	if params.MaxPenalty <= 0 {
		params.MaxPenalty = DefaultMaxPenalty
	}

	if len(packs) == 0 {
		return Analysis{
			ConfidenceAdjustment: emptyAdjustment,
			Warnings:             []string{"No results returned."},
		}
	}

	analysis := Analysis{
		ResultClustering: resultClustering(packs),
		QueryAlignment:   queryAlignment(packs, queryIntent),
		DomainCoherence:  domainCoherence(packs),
	}
	analysis.Overall = ClusteringWeight*analysis.ResultClustering +
		AlignmentWeight*analysis.QueryAlignment +
		DomainWeight*analysis.DomainCoherence
	analysis.ConfidenceAdjustment = adjustmentFor(analysis.Overall, params)
	analysis.Warnings = coherenceWarnings(analysis, params)
	return analysis
}

// ApplyAdjustment discounts a raw confidence by the analysis multiplier.
// The result never exceeds overall coherence by more than a small margin
// and never reaches zero for a non-empty result set.
func ApplyAdjustment(raw float64, analysis Analysis) float64 {
	raw = clamp01(raw)
	adjusted := raw * analysis.ConfidenceAdjustment
	if limit := analysis.Overall + coherenceMargin; adjusted > limit {
		adjusted = limit
	}
	if adjusted < adjustmentFloor {
		adjusted = adjustmentFloor
	}
	return adjusted
}

func adjustmentFor(overall float64, params Params) float64 {
	if overall >= params.Threshold {
		return 1.0
	}
	shortfall := (params.Threshold - overall) / params.Threshold
	adjustment := 1.0 - params.MaxPenalty*shortfall
	if adjustment < adjustmentFloor {
		adjustment = adjustmentFloor
	}
	return adjustment
}

func coherenceWarnings(analysis Analysis, params Params) []string {
	var warnings []string
	if analysis.Overall < params.Threshold {
		warnings = append(warnings, fmt.Sprintf("results appear scattered: coherence %.2f is below %.2f", analysis.Overall, params.Threshold))
	}
	if analysis.ResultClustering < 0.3 {
		warnings = append(warnings, "results have little content in common with each other")
	}
	if analysis.QueryAlignment < 0.3 {
		warnings = append(warnings, "results align weakly with the query")
	}
	if analysis.DomainCoherence < 0.3 {
		warnings = append(warnings, "results span unrelated areas of the codebase")
	}
	return warnings
}

// resultClustering is the mean pairwise lexical similarity over each
// pack's summary, key facts, and related files.
func resultClustering(packs []pack.ContextPack) float64 {
	if len(packs) < MinResultsForClustering {
		return 1.0
	}
	sets := make([]map[string]struct{}, len(packs))
	for i, p := range packs {
		sets[i] = tokenSet(clusterText(p))
	}
	var total float64
	var pairs int
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 1.0
	}
	return total / float64(pairs)
}

// queryAlignment is the mean fraction of query keywords found in each
// pack's summary and key facts. A keyword-free query scores a neutral 0.5.
func queryAlignment(packs []pack.ContextPack, queryIntent string) float64 {
	keywords := extractKeywords(queryIntent)
	if len(keywords) == 0 {
		return 0.5
	}
	var total float64
	for _, p := range packs {
		tokens := tokenSet(p.SearchText())
		matched := 0
		for _, keyword := range keywords {
			if _, ok := tokens[keyword]; ok {
				matched++
			}
		}
		total += float64(matched) / float64(len(keywords))
	}
	return total / float64(len(packs))
}

// domainCoherence is the fraction of packs sharing the dominant domain
// label, where labels are directory prefixes and well-known domain words
// drawn from related file paths.
func domainCoherence(packs []pack.ContextPack) float64 {
	counts := make(map[string]int)
	for _, p := range packs {
		for label := range packDomains(p) {
			counts[label]++
		}
	}
	dominant := 0
	for _, count := range counts {
		if count > dominant {
			dominant = count
		}
	}
	return float64(dominant) / float64(len(packs))
}

var domainWords = []string{
	"auth", "database", "db", "storage", "store", "cache", "api",
	"http", "network", "net", "ui", "view", "render", "config",
	"payment", "billing", "search", "index", "queue", "worker",
	"log", "metrics", "test",
}

func packDomains(p pack.ContextPack) map[string]struct{} {
	labels := make(map[string]struct{})
	paths := make([]string, 0, len(p.RelatedFiles)+len(p.Snippets))
	paths = append(paths, p.RelatedFiles...)
	for _, snippet := range p.Snippets {
		paths = append(paths, snippet.Path)
	}
	for _, file := range paths {
		clean := strings.TrimPrefix(path.Clean(strings.ReplaceAll(file, "\\", "/")), "./")
		dir := path.Dir(clean)
		if dir != "." && dir != "/" {
			labels[dir] = struct{}{}
			if first := firstSegment(dir); first != dir {
				labels[first] = struct{}{}
			}
		}
		lower := strings.ToLower(clean)
		for _, word := range domainWords {
			if strings.Contains(lower, word) {
				labels["domain:"+word] = struct{}{}
			}
		}
	}
	return labels
}

func firstSegment(dir string) string {
	if idx := strings.IndexByte(dir, '/'); idx > 0 {
		return dir[:idx]
	}
	return dir
}

func clusterText(p pack.ContextPack) string {
	parts := make([]string, 0, 2+len(p.KeyFacts)+len(p.RelatedFiles))
	parts = append(parts, p.Summary)
	parts = append(parts, p.KeyFacts...)
	parts = append(parts, p.RelatedFiles...)
	return strings.Join(parts, " ")
}

var keywordStopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "into": {}, "how": {}, "what": {}, "where": {}, "when": {},
	"why": {}, "does": {}, "did": {}, "are": {}, "was": {}, "were": {},
	"has": {}, "have": {}, "had": {}, "can": {}, "could": {}, "should": {},
	"would": {}, "will": {}, "work": {}, "works": {}, "about": {},
	"which": {}, "there": {}, "their": {}, "them": {}, "then": {},
	"its": {}, "it's": {}, "a": {}, "an": {}, "is": {}, "in": {}, "on": {},
	"of": {}, "to": {}, "do": {}, "be": {}, "or": {}, "as": {}, "at": {},
	"by": {}, "we": {}, "i": {}, "you": {}, "use": {}, "used": {}, "using": {},
}

func extractKeywords(text string) []string {
	var keywords []string
	seen := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(field, `"'.,;:!?()[]{}`+"`")
		if len(word) < 3 {
			continue
		}
		if _, ok := keywordStopWords[word]; ok {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}

func tokenSet(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(field, `"'.,;:!?()[]{}`+"`")
		if len(word) < 3 {
			continue
		}
		if _, ok := keywordStopWords[word]; ok {
			continue
		}
		tokens[word] = struct{}{}
	}
	return tokens
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
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
