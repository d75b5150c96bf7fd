package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type queryResp struct {
	State      string  `json:"state"`
	Confidence float64 `json:"confidence"`
	Packs      []struct {
		ID           string   `json:"id"`
		Type         string   `json:"type"`
		TargetID     string   `json:"target_id"`
		RelatedFiles []string `json:"related_files"`
	} `json:"packs"`
	Truncation struct {
		Truncated         bool `json:"truncated"`
		FinalPackCount    int  `json:"final_pack_count"`
		OriginalPackCount int  `json:"original_pack_count"`
	} `json:"truncation"`
	Disclosures []string `json:"disclosures"`
}

type symbolsResp struct {
	ExactMatch bool    `json:"exact_match"`
	Confidence float64 `json:"confidence"`
	Symbols    []struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
		File string `json:"file"`
	} `json:"symbols"`
}

func TestCLIIndexThenShortCircuitQuery(t *testing.T) {
	base := t.TempDir()
	setXDGEnv(t, base)
	repoDir := setupRepo(t, base)
	withCwd(t, repoDir)

	initOut := runCLI(t, "init")
	if !strings.Contains(string(initOut), "Initialized librarian") {
		t.Fatalf("unexpected init output: %s", initOut)
	}

	indexOut := runCLI(t, "index")
	if !strings.Contains(string(indexOut), "Indexed") {
		t.Fatalf("unexpected index output: %s", indexOut)
	}

	out := runCLI(t, "query", "What is the Greeter struct", "--format", "json")
	var resp queryResp
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("decode query response: %v\n%s", err, out)
	}
	if resp.State != "short-circuited" {
		t.Fatalf("expected short-circuited state, got %s (disclosures: %v)", resp.State, resp.Disclosures)
	}
	if resp.Confidence < 0.95 {
		t.Fatalf("expected short-circuit confidence >= 0.95, got %f", resp.Confidence)
	}
	if len(resp.Packs) == 0 {
		t.Fatalf("expected symbol definition packs")
	}
	found := false
	for _, p := range resp.Packs {
		if p.Type != "symbol_definition" {
			t.Fatalf("expected symbol_definition packs, got %s", p.Type)
		}
		for _, file := range p.RelatedFiles {
			if file == "greeter.go" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected greeter.go in related files: %+v", resp.Packs)
	}
}

func TestCLIQueryRetrievalAndFeedback(t *testing.T) {
	base := t.TempDir()
	setXDGEnv(t, base)
	repoDir := setupRepo(t, base)
	withCwd(t, repoDir)

	runCLI(t, "init")
	runCLI(t, "index")

	out := runCLI(t, "query", "friendly hello messages for users", "--format", "json")
	var resp queryResp
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("decode query response: %v\n%s", err, out)
	}
	if resp.State != "completed" && resp.State != "completed-with-degradation" {
		t.Fatalf("unexpected state: %s", resp.State)
	}
	if len(resp.Packs) == 0 {
		t.Fatalf("expected retrieval to surface packs, disclosures: %v", resp.Disclosures)
	}
	if resp.Truncation.FinalPackCount != len(resp.Packs) {
		t.Fatalf("final pack count %d != packs %d", resp.Truncation.FinalPackCount, len(resp.Packs))
	}

	feedbackOut := runCLI(t, "feedback", resp.Packs[0].ID, "--outcome", "success")
	if !strings.Contains(string(feedbackOut), "success") {
		t.Fatalf("unexpected feedback output: %s", feedbackOut)
	}

	var errOut bytes.Buffer
	if code := Run([]string{"feedback", resp.Packs[0].ID, "--outcome", "maybe"}, &bytes.Buffer{}, &errOut); code != 2 {
		t.Fatalf("expected exit 2 for invalid outcome, got %d", code)
	}
}

func TestCLIQueryBudgetTruncates(t *testing.T) {
	base := t.TempDir()
	setXDGEnv(t, base)
	repoDir := setupRepo(t, base)
	withCwd(t, repoDir)

	runCLI(t, "init")
	runCLI(t, "index")

	out := runCLI(t, "query", "friendly hello messages for users", "--format", "json", "--max-tokens", "60")
	var resp queryResp
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("decode query response: %v\n%s", err, out)
	}
	if len(resp.Packs) < 1 {
		t.Fatalf("budget must keep at least one pack")
	}
	if resp.Truncation.OriginalPackCount > 1 && !resp.Truncation.Truncated {
		t.Fatalf("expected truncation under a 60 token budget: %+v", resp.Truncation)
	}
}

func TestCLISymbolsLookup(t *testing.T) {
	base := t.TempDir()
	setXDGEnv(t, base)
	repoDir := setupRepo(t, base)
	withCwd(t, repoDir)

	runCLI(t, "init")
	runCLI(t, "index")

	out := runCLI(t, "symbols", "NewGreeter", "--kind", "function", "--format", "json")
	var resp symbolsResp
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("decode symbols response: %v\n%s", err, out)
	}
	if !resp.ExactMatch {
		t.Fatalf("expected exact match: %+v", resp)
	}
	if len(resp.Symbols) == 0 || resp.Symbols[0].File != "greeter.go" {
		t.Fatalf("unexpected symbols: %+v", resp.Symbols)
	}

	textOut := runCLI(t, "symbols", "Greter")
	if !strings.Contains(string(textOut), "fuzzy") && !strings.Contains(string(textOut), "no symbols") {
		t.Fatalf("expected fuzzy or empty result for misspelling: %s", textOut)
	}
}

func TestCLIDoctorAfterInit(t *testing.T) {
	base := t.TempDir()
	setXDGEnv(t, base)
	repoDir := setupRepo(t, base)
	withCwd(t, repoDir)

	runCLI(t, "init")
	runCLI(t, "index")

	out := runCLI(t, "doctor")
	if !strings.Contains(string(out), "librarian doctor: ok") {
		t.Fatalf("unexpected doctor output: %s", out)
	}

	jsonOut := runCLI(t, "doctor", "--json")
	var report map[string]any
	if err := json.Unmarshal(jsonOut, &report); err != nil {
		t.Fatalf("decode doctor json: %v", err)
	}
	if ok, _ := report["ok"].(bool); !ok {
		t.Fatalf("doctor reported not ok: %s", jsonOut)
	}
}

func TestCLIEmbedStatusDisabledProvider(t *testing.T) {
	base := t.TempDir()
	setXDGEnv(t, base)
	repoDir := setupRepo(t, base)
	withCwd(t, repoDir)

	runCLI(t, "init")

	out := runCLI(t, "embed", "status")
	if !strings.Contains(string(out), "provider=none") {
		t.Fatalf("unexpected embed status output: %s", out)
	}

	var errOut bytes.Buffer
	if code := Run([]string{"embed", "backfill"}, &bytes.Buffer{}, &errOut); code != 1 {
		t.Fatalf("expected exit 1 with no provider, got %d", code)
	}
	if !strings.Contains(errOut.String(), "embedding provider unavailable") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}
