package store

import (
	"strings"
	"testing"
)

func TestParseQueryIntents(t *testing.T) {
	cases := []struct {
		query  string
		intent QueryIntent
	}{
		{"UserService.Refresh method", IntentSymbol},
		{"what is the parseConfig function", IntentSymbol},
		{"auth decisions in session.go", IntentFile},
		{"recent changes to the indexer", IntentRecent},
		{"what changed yesterday", IntentRecent},
		{"how does authentication work", IntentSearch},
	}
	for _, tc := range cases {
		parsed := ParseQuery(tc.query)
		if parsed.Intent != tc.intent {
			t.Fatalf("%q: expected intent %s, got %s", tc.query, tc.intent, parsed.Intent)
		}
	}
}

func TestParseQueryKeywordsDropStopWords(t *testing.T) {
	parsed := ParseQuery("show me the token refresh flow")
	for _, kw := range parsed.Keywords {
		if kw == "show" || kw == "me" || kw == "the" {
			t.Fatalf("stop word leaked into keywords: %v", parsed.Keywords)
		}
	}
	if len(parsed.Keywords) == 0 {
		t.Fatal("expected keywords to survive")
	}
}

func TestParseQueryExtractsFileEntities(t *testing.T) {
	parsed := ParseQuery("decisions recorded in internal/auth/session.go")
	found := false
	for _, e := range parsed.Entities {
		if e.Type == "file" && strings.Contains(e.Value, "session.go") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected file entity, got %+v", parsed.Entities)
	}
}

func TestParseQueryEmpty(t *testing.T) {
	parsed := ParseQuery("   ")
	if parsed.FTSQuery != "\"\"" {
		t.Fatalf("expected empty-phrase FTS query, got %q", parsed.FTSQuery)
	}
	if parsed.Intent != IntentSearch {
		t.Fatalf("expected default search intent, got %s", parsed.Intent)
	}
}

func TestSanitizeQueryExpandsIdentifiers(t *testing.T) {
	got := SanitizeQuery("rate_limit")
	if !strings.Contains(got, `"rate limit"`) {
		t.Fatalf("expected space variant in %q", got)
	}
	if !strings.Contains(got, "ratelimit*") {
		t.Fatalf("expected joined prefix variant in %q", got)
	}
}

func TestSanitizeQuerySingleTokenPrefix(t *testing.T) {
	got := SanitizeQuery("session")
	if !strings.Contains(got, "session*") {
		t.Fatalf("expected prefix variant in %q", got)
	}
}

func TestSanitizeQueryEscapesQuotes(t *testing.T) {
	got := SanitizeQuery(`he said "hello"`)
	if !strings.Contains(got, `""hello""`) {
		t.Fatalf("expected escaped quotes in %q", got)
	}
}

func TestBuildSymbolQuerySplitsDottedNames(t *testing.T) {
	got := buildSymbolQuery("Store.SavePack")
	if !strings.Contains(got, `"Store"`) || !strings.Contains(got, `"SavePack"`) {
		t.Fatalf("expected split symbol terms in %q", got)
	}
	if !strings.Contains(got, `"Store.SavePack"`) {
		t.Fatalf("expected whole-symbol term in %q", got)
	}
}
