package budget

import (
	"math"
	"unicode/utf8"

	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
)

// DefaultCharsPerToken is the character-count heuristic ratio. It stands in
// for a real tokenizer on the hot path; a tokenizer-backed Estimator can be
// swapped in through the same interface.
const DefaultCharsPerToken = 3.5

// Per-field overheads reflect serialization cost, not prose length.
const (
	packOverheadTokens      = 12
	fieldOverheadTokens     = 3
	snippetOverheadTokens   = 8
	synthesisOverheadTokens = 10
)

type Estimator interface {
	Estimate(text string) int
	Truncate(text string, maxTokens int) (string, int)
}

type CharEstimator struct {
	CharsPerToken float64
}

func NewCharEstimator(charsPerToken float64) CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return CharEstimator{CharsPerToken: charsPerToken}
}

func (e CharEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / e.CharsPerToken))
}

func (e CharEstimator) Truncate(text string, maxTokens int) (string, int) {
	if maxTokens <= 0 {
		return "", 0
	}
	maxChars := int(float64(maxTokens) * e.CharsPerToken)
	if len(text) <= maxChars {
		return text, e.Estimate(text)
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	truncated := text[:cut]
	return truncated, e.Estimate(truncated)
}

func packCost(est Estimator, p pack.ContextPack) int {
	cost := packOverheadTokens
	cost += est.Estimate(p.TargetID) + fieldOverheadTokens
	cost += est.Estimate(p.Summary) + fieldOverheadTokens
	for _, fact := range p.KeyFacts {
		cost += est.Estimate(fact) + fieldOverheadTokens
	}
	for _, snippet := range p.Snippets {
		cost += est.Estimate(snippet.Text) + est.Estimate(snippet.Path) + snippetOverheadTokens
	}
	for _, file := range p.RelatedFiles {
		cost += est.Estimate(file) + fieldOverheadTokens
	}
	return cost
}

func synthesisCost(est Estimator, s *pack.Synthesis) int {
	if s == nil {
		return 0
	}
	cost := synthesisOverheadTokens
	cost += est.Estimate(s.Answer) + fieldOverheadTokens
	for _, insight := range s.KeyInsights {
		cost += est.Estimate(insight) + fieldOverheadTokens
	}
	for _, uncertainty := range s.Uncertainties {
		cost += est.Estimate(uncertainty) + fieldOverheadTokens
	}
	for _, citation := range s.Citations {
		cost += est.Estimate(citation) + fieldOverheadTokens
	}
	return cost
}
