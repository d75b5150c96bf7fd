package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultEstimatesWithCharHeuristic(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(t.TempDir(), "data"))

	cfg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tokenizer != "" {
		t.Errorf("Expected no default tokenizer, got %q", cfg.Tokenizer)
	}
	if cfg.CharsPerToken != 3.5 {
		t.Errorf("Expected default chars_per_token 3.5, got %v", cfg.CharsPerToken)
	}
}

func TestLoadSave(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "librarian-test-config-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	// Set env vars to point to tmpDir
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))

	// Load default (should succeed with defaults even if file missing)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load default failed: %v", err)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("Expected default max_tokens 4096, got %d", cfg.MaxTokens)
	}
	if cfg.ReserveTokens != 512 {
		t.Errorf("Expected default reserve_tokens 512, got %d", cfg.ReserveTokens)
	}
	if cfg.Priority != "relevance" {
		t.Errorf("Expected default priority relevance, got %s", cfg.Priority)
	}
	if cfg.TopK != 8 {
		t.Errorf("Expected default top_k 8, got %d", cfg.TopK)
	}
	if cfg.ShortCircuitConfidence != 0.95 {
		t.Errorf("Expected default short_circuit_confidence 0.95, got %v", cfg.ShortCircuitConfidence)
	}
	if cfg.CoherenceThreshold != 0.6 {
		t.Errorf("Expected default coherence_threshold 0.6, got %v", cfg.CoherenceThreshold)
	}
	if cfg.DefaultWorkspace != "default" {
		t.Errorf("Expected default workspace default, got %s", cfg.DefaultWorkspace)
	}
	if cfg.EmbeddingProvider != "auto" {
		t.Errorf("Expected default embedding provider auto, got %s", cfg.EmbeddingProvider)
	}
	if cfg.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("Expected default embedding model nomic-embed-text, got %s", cfg.EmbeddingModel)
	}
	if cfg.EmbeddingMinSimilarity != 0.6 {
		t.Errorf("Expected default embedding min similarity 0.6, got %v", cfg.EmbeddingMinSimilarity)
	}
	if cfg.SynthesisProvider != "none" {
		t.Errorf("Expected default synthesis provider none, got %s", cfg.SynthesisProvider)
	}

	// Modify and Save
	cfg.ActiveRepo = "test-repo"
	cfg.MaxTokens = 8000
	cfg.ReserveTokens = 1024
	cfg.Priority = "diversity"
	cfg.TopK = 12
	cfg.DefaultWorkspace = "workspace-a"
	cfg.EmbeddingProvider = "ollama"
	cfg.EmbeddingModel = "nomic-embed-text"
	cfg.EmbeddingMinSimilarity = 0.7
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Load again
	cfg2, err := Load()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if cfg2.ActiveRepo != "test-repo" {
		t.Errorf("Expected ActiveRepo test-repo, got %s", cfg2.ActiveRepo)
	}
	if cfg2.MaxTokens != 8000 {
		t.Errorf("Expected max_tokens 8000, got %d", cfg2.MaxTokens)
	}
	if cfg2.ReserveTokens != 1024 {
		t.Errorf("Expected reserve_tokens 1024, got %d", cfg2.ReserveTokens)
	}
	if cfg2.Priority != "diversity" {
		t.Errorf("Expected priority diversity, got %s", cfg2.Priority)
	}
	if cfg2.TopK != 12 {
		t.Errorf("Expected top_k 12, got %d", cfg2.TopK)
	}
	if cfg2.DefaultWorkspace != "workspace-a" {
		t.Errorf("Expected default workspace workspace-a, got %s", cfg2.DefaultWorkspace)
	}
	if cfg2.EmbeddingProvider != "ollama" {
		t.Errorf("Expected embedding provider ollama, got %s", cfg2.EmbeddingProvider)
	}
	if cfg2.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("Expected embedding model nomic-embed-text, got %s", cfg2.EmbeddingModel)
	}
	if cfg2.EmbeddingMinSimilarity != 0.7 {
		t.Errorf("Expected embedding min similarity 0.7, got %v", cfg2.EmbeddingMinSimilarity)
	}

	// Edge Case: Missing config dir should be created on Save
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "new-config"))
	cfg3, _ := Load() // Load default
	if err := cfg3.Save(); err != nil {
		t.Errorf("Expected Save to create dir, got error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "new-config", "librarian", "config.toml")); err != nil {
		t.Error("Config file not created in new dir")
	}
}

func TestSaveRepoStateDoesNotPersistDataDirOverride(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "librarian-test-config-state-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmpDir, "cache"))

	SetDataDirOverride("")
	defer SetDataDirOverride("")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	persistedDataDir := filepath.Join(tmpDir, "persisted-data")
	cfg.DataDir = persistedDataDir
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	overrideDir := filepath.Join(tmpDir, "override-data")
	SetDataDirOverride(overrideDir)

	cfg2, err := Load()
	if err != nil {
		t.Fatalf("Reload with override failed: %v", err)
	}
	cfg2.ActiveRepo = "repo-after"
	cfg2.RepoCache = map[string]string{"/tmp/repo": "r_test1234"}
	if err := cfg2.SaveRepoState(); err != nil {
		t.Fatalf("SaveRepoState failed: %v", err)
	}

	configPath := filepath.Join(cfg2.ConfigDir, "config.toml")
	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Read config failed: %v", err)
	}
	text := string(raw)
	if !strings.Contains(text, `data_dir = "`+persistedDataDir+`"`) {
		t.Fatalf("expected persisted data_dir %q in config.toml", persistedDataDir)
	}
	if strings.Contains(text, overrideDir) {
		t.Fatalf("runtime override data_dir %q leaked into config.toml", overrideDir)
	}
	if !strings.Contains(text, `active_repo = "repo-after"`) {
		t.Fatalf("expected active_repo to be persisted by SaveRepoState")
	}
}

func TestApplyRepoOverrides(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "librarian-test-repo-config-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	repoDir := filepath.Join(tmpDir, "repo")
	if err := os.MkdirAll(filepath.Join(repoDir, ".librarian"), 0o755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(repoDir, ".librarian", "config.json")
	if err := os.WriteFile(configPath, []byte(`{
  "embedding_provider": "none",
  "embedding_model": "nomic-embed-text",
  "synthesis_provider": "openai",
  "max_tokens": 3200,
  "reserve_tokens": 256,
  "priority": "recency",
  "top_k": 5,
  "coherence_threshold": 0.7
}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if err := ApplyRepoOverrides(&cfg, repoDir); err != nil {
		t.Fatalf("ApplyRepoOverrides failed: %v", err)
	}
	if cfg.EmbeddingProvider != "none" {
		t.Errorf("Expected embedding_provider none, got %s", cfg.EmbeddingProvider)
	}
	if cfg.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("Expected embedding_model nomic-embed-text, got %s", cfg.EmbeddingModel)
	}
	if cfg.SynthesisProvider != "openai" {
		t.Errorf("Expected synthesis_provider openai, got %s", cfg.SynthesisProvider)
	}
	if cfg.MaxTokens != 3200 {
		t.Errorf("Expected max_tokens 3200, got %d", cfg.MaxTokens)
	}
	if cfg.ReserveTokens != 256 {
		t.Errorf("Expected reserve_tokens 256, got %d", cfg.ReserveTokens)
	}
	if cfg.Priority != "recency" {
		t.Errorf("Expected priority recency, got %s", cfg.Priority)
	}
	if cfg.TopK != 5 {
		t.Errorf("Expected top_k 5, got %d", cfg.TopK)
	}
	if cfg.CoherenceThreshold != 0.7 {
		t.Errorf("Expected coherence_threshold 0.7, got %v", cfg.CoherenceThreshold)
	}
}
