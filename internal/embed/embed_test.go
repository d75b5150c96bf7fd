package embed

import (
	"strings"
	"testing"

	"github.com/nateschmiedehaus/librarian-sub018/internal/config"
)

func TestResolveProvider(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}

	cfg.EmbeddingProvider = "none"
	provider, status := Resolve(cfg)
	if provider != nil || status.Enabled {
		t.Fatalf("expected disabled provider for none, got %+v", status)
	}

	cfg.EmbeddingProvider = "openai"
	t.Setenv("OPENAI_API_KEY", "")
	provider, status = Resolve(cfg)
	if provider != nil || status.Enabled {
		t.Fatalf("expected openai disabled without API key, got %+v", status)
	}
	if !strings.Contains(status.Error, "OPENAI_API_KEY") {
		t.Fatalf("expected OPENAI_API_KEY error, got %q", status.Error)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	provider, status = Resolve(cfg)
	if provider == nil || !status.Enabled {
		t.Fatalf("expected openai enabled with API key, got %+v", status)
	}
	// The ollama default model makes no sense for openai and should be remapped.
	if status.Model != DefaultOpenAIModel {
		t.Fatalf("expected model %s, got %s", DefaultOpenAIModel, status.Model)
	}

	cfg.EmbeddingProvider = "bogus"
	provider, status = Resolve(cfg)
	if provider != nil || status.Enabled {
		t.Fatalf("expected unknown provider disabled, got %+v", status)
	}
	if !strings.Contains(status.Error, "unknown embedding provider") {
		t.Fatalf("expected unknown provider error, got %q", status.Error)
	}
}
