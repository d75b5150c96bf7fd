package synthesis

import (
	"strings"
	"testing"

	"github.com/nateschmiedehaus/librarian-sub018/internal/config"
	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
)

func TestResolveProvider(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}

	cfg.SynthesisProvider = "none"
	syn, status := Resolve(cfg)
	if syn != nil || status.Enabled {
		t.Fatalf("expected none disabled, got %+v", status)
	}
	if status.Error != "" {
		t.Fatalf("none is not an error state, got %q", status.Error)
	}

	cfg.SynthesisProvider = "openai"
	t.Setenv("OPENAI_API_KEY", "")
	syn, status = Resolve(cfg)
	if syn != nil || status.Enabled {
		t.Fatalf("expected openai disabled without key, got %+v", status)
	}
	if !strings.Contains(status.Error, "OPENAI_API_KEY") {
		t.Fatalf("expected key error, got %q", status.Error)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	syn, status = Resolve(cfg)
	if syn == nil || !status.Enabled {
		t.Fatalf("expected openai enabled, got %+v", status)
	}
	if status.Model != DefaultOpenAIModel {
		t.Fatalf("expected default model, got %s", status.Model)
	}

	cfg.SynthesisProvider = "bogus"
	syn, status = Resolve(cfg)
	if syn != nil || status.Enabled {
		t.Fatalf("expected unknown provider disabled, got %+v", status)
	}
	if !strings.Contains(status.Error, "unknown synthesis provider") {
		t.Fatalf("expected unknown provider error, got %q", status.Error)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	packs := []pack.ContextPack{
		{
			ID:       "P-1",
			Type:     pack.TypeFunctionContext,
			TargetID: "internal/auth.Refresh",
			Summary:  "Refresh rotates the session token.",
			KeyFacts: []string{"called from the login handler"},
			Snippets: []pack.Snippet{
				{Path: "internal/auth/session.go", StartLine: 10, EndLine: 20, Text: "func Refresh() {}", Language: "go"},
			},
			RelatedFiles: []string{"internal/auth/token.go"},
		},
	}

	prompt := buildUserPrompt("how does token refresh work", packs)
	for _, want := range []string{
		"how does token refresh work",
		"[P-1]",
		"internal/auth.Refresh",
		"Refresh rotates the session token.",
		"called from the login handler",
		"internal/auth/session.go:10-20",
		"internal/auth/token.go",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestFilterCitations(t *testing.T) {
	packs := []pack.ContextPack{{ID: "P-1"}, {ID: "P-2"}}

	got := filterCitations([]string{"P-2", "P-404", "P-1", "P-2", " P-1 "}, packs)
	if len(got) != 2 || got[0] != "P-2" || got[1] != "P-1" {
		t.Fatalf("unexpected citations: %v", got)
	}
}
