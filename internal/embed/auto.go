package embed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	probeCacheTTL = 30 * time.Second
	probeTimeout  = 500 * time.Millisecond
)

type probeResult struct {
	available bool
	errMsg    string
}

var (
	probeMu      sync.Mutex
	probeUntil   time.Time
	probeModel   string
	probeCached  probeResult
)

// checkOllamaAvailable probes the local daemon for the given model, caching
// the outcome briefly so repeated Resolve calls (one per CLI invocation in
// MCP mode) do not hammer /api/tags.
func checkOllamaAvailable(model string) (bool, string) {
	now := time.Now()

	probeMu.Lock()
	if now.Before(probeUntil) && probeModel == model {
		cached := probeCached
		probeMu.Unlock()
		return cached.available, cached.errMsg
	}
	probeMu.Unlock()

	result := probeOllama(model)

	probeMu.Lock()
	defer probeMu.Unlock()
	if now.Before(probeUntil) && probeModel == model {
		return probeCached.available, probeCached.errMsg
	}
	probeCached = result
	probeUntil = time.Now().Add(probeCacheTTL)
	probeModel = model
	return result.available, result.errMsg
}

func probeOllama(model string) probeResult {
	baseURL := strings.TrimRight(resolveOllamaURL(), "/")
	client := &http.Client{Timeout: probeTimeout}

	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		return probeResult{errMsg: fmt.Sprintf("ollama unavailable at %s", baseURL)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return probeResult{errMsg: fmt.Sprintf("embeddings_unavailable: ollama unavailable (status %d)", resp.StatusCode)}
	}

	var payload ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return probeResult{errMsg: "embeddings_unavailable: failed to read ollama tags"}
	}
	if strings.TrimSpace(model) != "" && !ollamaHasModel(payload, model) {
		return probeResult{errMsg: fmt.Sprintf("embeddings_unavailable: ollama model not found (%s). Run: ollama pull %s", model, model)}
	}
	return probeResult{available: true}
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func ollamaHasModel(payload ollamaTagsResponse, model string) bool {
	model = strings.TrimSpace(model)
	if model == "" {
		return false
	}
	for _, entry := range payload.Models {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		if name == model || strings.HasPrefix(name, model+":") {
			return true
		}
	}
	return false
}
