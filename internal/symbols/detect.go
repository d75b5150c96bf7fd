package symbols

import (
	"regexp"
	"strings"
)

// Pattern describes a query that names a specific symbol.
type Pattern struct {
	Name       string
	Kind       Kind
	Definition bool
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

var kindWords = map[string]Kind{
	"class":     KindClass,
	"struct":    KindClass,
	"function":  KindFunction,
	"func":      KindFunction,
	"method":    KindMethod,
	"interface": KindInterface,
	"type":      KindType,
}

var definitionWords = map[string]struct{}{
	"definition":  {},
	"definitions": {},
	"define":      {},
	"defined":     {},
	"declaration": {},
	"declared":    {},
	"signature":   {},
}

var usageWords = map[string]struct{}{
	"used":       {},
	"usage":      {},
	"usages":     {},
	"uses":       {},
	"caller":     {},
	"callers":    {},
	"called":     {},
	"calls":      {},
	"reference":  {},
	"references": {},
}

var queryStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {},
	"what": {}, "whats": {}, "where": {}, "wheres": {}, "how": {},
	"why": {}, "when": {}, "who": {}, "which": {},
	"show": {}, "me": {}, "find": {}, "for": {}, "of": {}, "in": {},
	"do": {}, "does": {}, "did": {}, "to": {}, "and": {}, "or": {},
	"this": {}, "that": {}, "it": {}, "its": {}, "my": {}, "our": {},
	"work": {}, "works": {},
}

const maxSymbolQueryWords = 12

// Detect reports whether the query names a specific symbol and, if so,
// the requested name, kind, and whether the phrasing asks for a definition.
// It is a pure classifier: ambiguous queries return false, never an error.
func Detect(query string) (Pattern, bool) {
	words := strings.Fields(query)
	if len(words) == 0 || len(words) > maxSymbolQueryWords {
		return Pattern{}, false
	}

	var pattern Pattern
	var candidates []string
	var kindAdjacent string
	prevKindWord := false

	for _, word := range words {
		token := strings.Trim(word, `"'.,;:!?()[]{}`+"`")
		if token == "" {
			prevKindWord = false
			continue
		}
		lower := strings.ToLower(token)
		if kind, ok := kindWords[lower]; ok {
			if pattern.Kind == "" {
				pattern.Kind = kind
			}
			// "class UserService" puts the name after the kind word.
			prevKindWord = true
			continue
		}
		if _, ok := definitionWords[lower]; ok {
			pattern.Definition = true
			prevKindWord = false
			continue
		}
		if _, ok := usageWords[lower]; ok {
			prevKindWord = false
			continue
		}
		if _, ok := queryStopWords[lower]; ok {
			prevKindWord = false
			continue
		}
		if looksLikeSymbol(token) {
			candidates = append(candidates, token)
			if prevKindWord && kindAdjacent == "" {
				kindAdjacent = token
			}
		}
		prevKindWord = false
	}

	// "X class" style: the token right before a kind word wins too.
	if kindAdjacent == "" && pattern.Kind != "" && len(candidates) > 0 {
		kindAdjacent = candidateBeforeKind(words, candidates)
	}

	switch {
	case kindAdjacent != "":
		pattern.Name = kindAdjacent
	case len(candidates) == 1:
		pattern.Name = candidates[0]
	case len(candidates) > 1:
		// Ambiguous symbol reference; not a symbol query.
		return Pattern{}, false
	default:
		return Pattern{}, false
	}

	// Plain lowercase words only qualify when a kind keyword anchors them.
	if pattern.Kind == "" && !strongSymbolToken(pattern.Name) {
		return Pattern{}, false
	}
	return pattern, true
}

func candidateBeforeKind(words []string, candidates []string) string {
	inCandidates := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		inCandidates[c] = struct{}{}
	}
	for i := 1; i < len(words); i++ {
		lower := strings.ToLower(strings.Trim(words[i], `"'.,;:!?()[]{}`+"`"))
		if _, ok := kindWords[lower]; !ok {
			continue
		}
		prev := strings.Trim(words[i-1], `"'.,;:!?()[]{}`+"`")
		if _, ok := inCandidates[prev]; ok {
			return prev
		}
	}
	return ""
}

func looksLikeSymbol(token string) bool {
	if !identPattern.MatchString(token) {
		return false
	}
	if _, ok := queryStopWords[strings.ToLower(token)]; ok {
		return false
	}
	return true
}

// strongSymbolToken accepts tokens that read as code identifiers on their
// own: mixed case, underscores, or dotted paths.
func strongSymbolToken(token string) bool {
	if strings.ContainsAny(token, "._") {
		return true
	}
	hasUpper := false
	hasLower := false
	for _, r := range token {
		if r >= 'A' && r <= 'Z' {
			hasUpper = true
		}
		if r >= 'a' && r <= 'z' {
			hasLower = true
		}
	}
	return hasUpper && hasLower
}
