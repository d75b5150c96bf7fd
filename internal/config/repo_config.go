package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RepoConfig carries per-repository overrides stored at
// <root>/.librarian/config.json. Fields are pointers so absence and an
// explicit zero can be told apart.
type RepoConfig struct {
	EmbeddingProvider  *string  `json:"embedding_provider,omitempty"`
	EmbeddingModel     *string  `json:"embedding_model,omitempty"`
	SynthesisProvider  *string  `json:"synthesis_provider,omitempty"`
	SynthesisModel     *string  `json:"synthesis_model,omitempty"`
	MaxTokens          *int     `json:"max_tokens,omitempty"`
	ReserveTokens      *int     `json:"reserve_tokens,omitempty"`
	Priority           *string  `json:"priority,omitempty"`
	TopK               *int     `json:"top_k,omitempty"`
	CoherenceThreshold *float64 `json:"coherence_threshold,omitempty"`
}

type repoConfigCacheEntry struct {
	LoadedAt time.Time
	ModTime  time.Time
	Size     int64
	Exists   bool
	Config   RepoConfig
}

var repoConfigCache = struct {
	mu      sync.RWMutex
	entries map[string]repoConfigCacheEntry
}{
	entries: map[string]repoConfigCacheEntry{},
}

func RepoConfigPath(root string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		return ""
	}
	return filepath.Join(root, ".librarian", "config.json")
}

func LoadRepoConfig(root string) (RepoConfig, bool, error) {
	path := RepoConfigPath(root)
	if path == "" {
		return RepoConfig{}, false, nil
	}

	stat, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cacheRepoConfig(path, repoConfigCacheEntry{
				LoadedAt: time.Now(),
				Exists:   false,
			})
			return RepoConfig{}, false, nil
		}
		return RepoConfig{}, false, err
	}

	if cached, ok := readRepoConfigCache(path); ok {
		if cached.Exists && cached.ModTime.Equal(stat.ModTime()) && cached.Size == stat.Size() {
			return cached.Config, true, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cacheRepoConfig(path, repoConfigCacheEntry{
				LoadedAt: time.Now(),
				Exists:   false,
			})
			return RepoConfig{}, false, nil
		}
		return RepoConfig{}, false, err
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		cacheRepoConfig(path, repoConfigCacheEntry{
			LoadedAt: time.Now(),
			ModTime:  stat.ModTime(),
			Size:     stat.Size(),
			Exists:   true,
			Config:   RepoConfig{},
		})
		return RepoConfig{}, true, nil
	}
	var cfg RepoConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RepoConfig{}, false, err
	}
	cacheRepoConfig(path, repoConfigCacheEntry{
		LoadedAt: time.Now(),
		ModTime:  stat.ModTime(),
		Size:     stat.Size(),
		Exists:   true,
		Config:   cfg,
	})
	return cfg, true, nil
}

func readRepoConfigCache(path string) (repoConfigCacheEntry, bool) {
	repoConfigCache.mu.RLock()
	defer repoConfigCache.mu.RUnlock()
	entry, ok := repoConfigCache.entries[path]
	return entry, ok
}

func cacheRepoConfig(path string, entry repoConfigCacheEntry) {
	repoConfigCache.mu.Lock()
	defer repoConfigCache.mu.Unlock()
	repoConfigCache.entries[path] = entry
}

func ApplyRepoOverrides(cfg *Config, root string) error {
	if cfg == nil {
		return nil
	}
	repoCfg, ok, err := LoadRepoConfig(root)
	if err != nil || !ok {
		return err
	}
	if repoCfg.EmbeddingProvider != nil {
		provider := strings.TrimSpace(*repoCfg.EmbeddingProvider)
		if provider != "" {
			cfg.EmbeddingProvider = provider
		}
	}
	if repoCfg.EmbeddingModel != nil {
		model := strings.TrimSpace(*repoCfg.EmbeddingModel)
		if model != "" {
			cfg.EmbeddingModel = model
		}
	}
	if repoCfg.SynthesisProvider != nil {
		provider := strings.TrimSpace(*repoCfg.SynthesisProvider)
		if provider != "" {
			cfg.SynthesisProvider = provider
		}
	}
	if repoCfg.SynthesisModel != nil {
		model := strings.TrimSpace(*repoCfg.SynthesisModel)
		if model != "" {
			cfg.SynthesisModel = model
		}
	}
	if repoCfg.MaxTokens != nil && *repoCfg.MaxTokens > 0 {
		cfg.MaxTokens = *repoCfg.MaxTokens
	}
	if repoCfg.ReserveTokens != nil && *repoCfg.ReserveTokens >= 0 {
		cfg.ReserveTokens = *repoCfg.ReserveTokens
	}
	if repoCfg.Priority != nil {
		priority := strings.TrimSpace(*repoCfg.Priority)
		if priority != "" {
			cfg.Priority = priority
		}
	}
	if repoCfg.TopK != nil && *repoCfg.TopK > 0 {
		cfg.TopK = *repoCfg.TopK
	}
	if repoCfg.CoherenceThreshold != nil && *repoCfg.CoherenceThreshold > 0 {
		cfg.CoherenceThreshold = *repoCfg.CoherenceThreshold
	}
	return nil
}
