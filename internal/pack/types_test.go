package pack

import (
	"strings"
	"testing"
)

func TestDeterministicID(t *testing.T) {
	a := DeterministicID(TypeFunctionContext, "internal/kv/kv.go#Open")
	b := DeterministicID(TypeFunctionContext, "internal/kv/kv.go#Open")
	if a != b {
		t.Fatalf("same target produced %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "P-") || len(a) != 14 {
		t.Fatalf("pack id shape: %q", a)
	}
	if c := DeterministicID(TypeModuleContext, "internal/kv/kv.go#Open"); c == a {
		t.Fatal("type should change the id")
	}
	if c := DeterministicID(TypeFunctionContext, "internal/kv/kv.go#Close"); c == a {
		t.Fatal("target should change the id")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := ContextPack{
		ID:           "P-1",
		Type:         TypeFunctionContext,
		TargetID:     "auth.go#Login",
		KeyFacts:     []string{"fact one"},
		Snippets:     []Snippet{{Path: "auth.go", Text: "func Login() {}"}},
		RelatedFiles: []string{"auth.go"},
		Invalidators: []string{"auth.go"},
	}

	clone := original.Clone()
	clone.KeyFacts[0] = "mutated"
	clone.Snippets[0].Text = "mutated"
	clone.RelatedFiles[0] = "mutated"
	clone.Invalidators[0] = "mutated"

	if original.KeyFacts[0] != "fact one" {
		t.Fatalf("clone mutation leaked into KeyFacts: %q", original.KeyFacts[0])
	}
	if original.Snippets[0].Text != "func Login() {}" {
		t.Fatalf("clone mutation leaked into Snippets: %q", original.Snippets[0].Text)
	}
	if original.RelatedFiles[0] != "auth.go" || original.Invalidators[0] != "auth.go" {
		t.Fatal("clone mutation leaked into file lists")
	}
}

func TestSearchTextJoinsLexicalFields(t *testing.T) {
	p := ContextPack{
		TargetID: "internal/auth",
		Summary:  "Package auth issues sessions.",
		KeyFacts: []string{"2 Go files, 4 symbols."},
	}
	got := p.SearchText()
	want := "internal/auth Package auth issues sessions. 2 Go files, 4 symbols."
	if got != want {
		t.Fatalf("SearchText() = %q, want %q", got, want)
	}

	if got := (ContextPack{Summary: "only summary"}).SearchText(); got != "only summary" {
		t.Fatalf("empty fields should be skipped, got %q", got)
	}
}

func TestValidOutcome(t *testing.T) {
	for _, outcome := range []string{OutcomeSuccess, OutcomeFailure} {
		if !ValidOutcome(outcome) {
			t.Fatalf("ValidOutcome(%q) = false", outcome)
		}
	}
	for _, outcome := range []string{"", "ok", "SUCCESS"} {
		if ValidOutcome(outcome) {
			t.Fatalf("ValidOutcome(%q) = true", outcome)
		}
	}
}
