package symbols

import "strings"

const (
	confidenceExactNameKind = 0.98
	confidenceExactName     = 0.96
	confidenceKindMismatch  = 0.70
	confidencePrefix        = 0.80
	confidenceSubstring     = 0.65
	confidenceFuzzy         = 0.55

	maxLookupMatches = 10
)

// DefaultMinShortCircuitConfidence gates short-circuiting on exact matches.
const DefaultMinShortCircuitConfidence = 0.95

// definitionThreshold is the lowered gate for definition-flavored queries:
// the table holds definitions only, so returning one beats withholding it.
const definitionThreshold = 0.7

type LookupResult struct {
	Symbols    []Entry `json:"symbols"`
	ExactMatch bool    `json:"exact_match"`
	Confidence float64 `json:"confidence"`
}

// Lookup answers a symbol pattern against the table: exact name+kind first,
// then name-only, then fuzzy tiers with lower confidence.
func Lookup(table *Table, pattern Pattern) LookupResult {
	if table == nil || table.Len() == 0 || pattern.Name == "" {
		return LookupResult{}
	}

	named := table.byNameExact(pattern.Name)
	if len(named) > 0 {
		if pattern.Kind == "" {
			return LookupResult{Symbols: capMatches(named), ExactMatch: true, Confidence: confidenceExactName}
		}
		var kindMatched []Entry
		for _, entry := range named {
			if entry.Kind == pattern.Kind {
				kindMatched = append(kindMatched, entry)
			}
		}
		if len(kindMatched) > 0 {
			return LookupResult{Symbols: capMatches(kindMatched), ExactMatch: true, Confidence: confidenceExactNameKind}
		}
		// Right name, wrong kind: usable, but never a short-circuit.
		return LookupResult{Symbols: capMatches(named), Confidence: confidenceKindMismatch}
	}

	return fuzzyLookup(table, pattern)
}

func fuzzyLookup(table *Table, pattern Pattern) LookupResult {
	query := strings.ToLower(pattern.Name)
	maxDistance := len(query) / 3
	if maxDistance < 2 {
		maxDistance = 2
	}

	var prefix, substring, fuzzy []Entry
	for _, entry := range table.entries {
		if pattern.Kind != "" && entry.Kind != pattern.Kind {
			continue
		}
		name := strings.ToLower(entry.Name)
		switch {
		case strings.HasPrefix(name, query):
			prefix = append(prefix, entry)
		case strings.Contains(name, query):
			substring = append(substring, entry)
		case levenshtein(name, query) <= maxDistance:
			fuzzy = append(fuzzy, entry)
		}
	}

	switch {
	case len(prefix) > 0:
		return LookupResult{Symbols: capMatches(prefix), Confidence: confidencePrefix}
	case len(substring) > 0:
		return LookupResult{Symbols: capMatches(substring), Confidence: confidenceSubstring}
	case len(fuzzy) > 0:
		return LookupResult{Symbols: capMatches(fuzzy), Confidence: confidenceFuzzy}
	}
	return LookupResult{}
}

func capMatches(entries []Entry) []Entry {
	if len(entries) > maxLookupMatches {
		entries = entries[:maxLookupMatches]
	}
	return entries
}

// ShouldShortCircuit reports whether an exact lookup is trustworthy enough
// to bypass probabilistic retrieval. Definition queries lower the gate to
// min(definitionThreshold, minConfidence), and an exact match at modest
// confidence is lifted to that gate: the table holds definitions only, so
// returning one beats withholding it.
func ShouldShortCircuit(result LookupResult, isDefinition bool, minConfidence float64) bool {
	if !result.ExactMatch || len(result.Symbols) == 0 {
		return false
	}
	confidence := result.Confidence
	threshold := minConfidence
	if isDefinition {
		if definitionThreshold < threshold {
			threshold = definitionThreshold
		}
		if confidence < definitionThreshold {
			confidence = definitionThreshold
		}
	}
	return confidence >= threshold
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
