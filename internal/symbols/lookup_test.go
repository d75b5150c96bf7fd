package symbols

import "testing"

func testTable() *Table {
	return Build([]Entry{
		{Name: "UserService", Kind: KindClass, File: "src/services/user_service.ts", StartLine: 10, EndLine: 120},
		{Name: "UserService", Kind: KindInterface, File: "src/services/types.ts", StartLine: 4},
		{Name: "parseConfig", Kind: KindFunction, File: "src/config/parse.ts", StartLine: 22},
		{Name: "RateLimiter", Kind: KindType, File: "src/net/rate_limiter.ts", StartLine: 8},
		{Name: "AuthService", Kind: KindClass, File: "src/auth/auth_service.ts", StartLine: 15},
	})
}

func TestLookupExactNameAndKind(t *testing.T) {
	result := Lookup(testTable(), Pattern{Name: "UserService", Kind: KindClass})
	if !result.ExactMatch {
		t.Fatal("expected exact match")
	}
	if len(result.Symbols) != 1 || result.Symbols[0].Kind != KindClass {
		t.Fatalf("expected the class entry, got %+v", result.Symbols)
	}
	if result.Confidence < 0.95 {
		t.Fatalf("expected near-certain confidence, got %.2f", result.Confidence)
	}
	if !ShouldShortCircuit(result, false, DefaultMinShortCircuitConfidence) {
		t.Fatal("exact class match should short-circuit")
	}
}

func TestLookupExactNameWithoutKind(t *testing.T) {
	result := Lookup(testTable(), Pattern{Name: "userservice"})
	if !result.ExactMatch {
		t.Fatal("expected exact match on name alone")
	}
	if len(result.Symbols) != 2 {
		t.Fatalf("expected both UserService entries, got %d", len(result.Symbols))
	}
	if result.Confidence < 0.95 {
		t.Fatalf("expected confidence >= 0.95, got %.2f", result.Confidence)
	}
}

func TestLookupKindMismatch(t *testing.T) {
	result := Lookup(testTable(), Pattern{Name: "parseConfig", Kind: KindClass})
	if result.ExactMatch {
		t.Fatal("kind mismatch must not be an exact match")
	}
	if len(result.Symbols) != 1 {
		t.Fatalf("expected the name match to survive, got %d", len(result.Symbols))
	}
	if ShouldShortCircuit(result, false, DefaultMinShortCircuitConfidence) {
		t.Fatal("kind mismatch must not short-circuit")
	}
}

func TestLookupFuzzyTiers(t *testing.T) {
	tests := []struct {
		name          string
		wantSymbol    string
		minConfidence float64
		maxConfidence float64
	}{
		{"UserServ", "UserService", 0.7, 0.9},
		{"Limiter", "RateLimiter", 0.5, 0.7},
		{"UserServcie", "UserService", 0.4, 0.6},
	}
	for _, tt := range tests {
		result := Lookup(testTable(), Pattern{Name: tt.name})
		if result.ExactMatch {
			t.Errorf("%q: fuzzy match reported as exact", tt.name)
		}
		if len(result.Symbols) == 0 {
			t.Fatalf("%q: expected a fuzzy match", tt.name)
		}
		if result.Symbols[0].Name != tt.wantSymbol {
			t.Errorf("%q: expected %s, got %s", tt.name, tt.wantSymbol, result.Symbols[0].Name)
		}
		if result.Confidence < tt.minConfidence || result.Confidence > tt.maxConfidence {
			t.Errorf("%q: confidence %.2f outside [%.2f, %.2f]", tt.name, result.Confidence, tt.minConfidence, tt.maxConfidence)
		}
		if ShouldShortCircuit(result, true, DefaultMinShortCircuitConfidence) {
			t.Errorf("%q: fuzzy match must never short-circuit", tt.name)
		}
	}
}

func TestLookupNoMatch(t *testing.T) {
	result := Lookup(testTable(), Pattern{Name: "zzzzzzzzzz"})
	if len(result.Symbols) != 0 || result.Confidence != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if result := Lookup(nil, Pattern{Name: "UserService"}); len(result.Symbols) != 0 {
		t.Fatal("nil table should return an empty result")
	}
}

func TestShouldShortCircuitThresholds(t *testing.T) {
	exact := LookupResult{
		Symbols:    []Entry{{Name: "UserService", Kind: KindClass}},
		ExactMatch: true,
	}

	exact.Confidence = 0.96
	if !ShouldShortCircuit(exact, false, 0.95) {
		t.Fatal("0.96 >= 0.95 should short-circuit")
	}

	exact.Confidence = 0.6
	if !ShouldShortCircuit(exact, true, 0.95) {
		t.Fatal("an exact match should short-circuit a definition query at confidence 0.6")
	}
	if ShouldShortCircuit(exact, false, 0.95) {
		t.Fatal("0.6 < 0.95 must not short-circuit a non-definition query")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"userservice", "userservcie", 2},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
