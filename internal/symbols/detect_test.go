package symbols

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		query      string
		name       string
		kind       Kind
		definition bool
	}{
		{"UserService class", "UserService", KindClass, false},
		{"what is parseConfig function", "parseConfig", KindFunction, false},
		{"type definitions for RateLimiter", "RateLimiter", KindType, true},
		{"where is AuthService used", "AuthService", "", false},
		{"interface PaymentGateway", "PaymentGateway", KindInterface, false},
		{"Store.AddMemory method", "Store.AddMemory", KindMethod, false},
		{"rate_limit function", "rate_limit", KindFunction, false},
		{"where is TokenBucket defined", "TokenBucket", "", true},
		{"show me the Config struct", "Config", KindClass, false},
	}

	for _, tt := range tests {
		pattern, ok := Detect(tt.query)
		if !ok {
			t.Fatalf("%q: expected a symbol pattern", tt.query)
		}
		if pattern.Name != tt.name {
			t.Errorf("%q: expected name %q, got %q", tt.query, tt.name, pattern.Name)
		}
		if pattern.Kind != tt.kind {
			t.Errorf("%q: expected kind %q, got %q", tt.query, tt.kind, pattern.Kind)
		}
		if pattern.Definition != tt.definition {
			t.Errorf("%q: expected definition=%v", tt.query, tt.definition)
		}
	}
}

func TestDetectRejectsProse(t *testing.T) {
	queries := []string{
		"",
		"How does authentication work?",
		"why is the build slow",
		"compare UserService and OrderService",
		"please explain the overall architecture and how requests flow through the entire system today",
	}
	for _, q := range queries {
		if pattern, ok := Detect(q); ok {
			t.Errorf("%q: expected no symbol pattern, got %+v", q, pattern)
		}
	}
}
