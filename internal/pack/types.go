package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Type is the closed set of context pack kinds.
type Type string

const (
	TypeModuleContext    Type = "module_context"
	TypeFunctionContext  Type = "function_context"
	TypeSymbolDefinition Type = "symbol_definition"
	TypeChangeImpact     Type = "change_impact"
)

func Types() []Type {
	return []Type{TypeModuleContext, TypeFunctionContext, TypeSymbolDefinition, TypeChangeImpact}
}

func (t Type) Valid() bool {
	switch t {
	case TypeModuleContext, TypeFunctionContext, TypeSymbolDefinition, TypeChangeImpact:
		return true
	}
	return false
}

// DeterministicID derives a stable pack ID from type and target, so the
// same entity always maps to the same pack and re-generation overwrites
// instead of accumulating duplicates.
func DeterministicID(t Type, target string) string {
	sum := sha256.Sum256([]byte(string(t) + "\x00" + target))
	return "P-" + hex.EncodeToString(sum[:])[:12]
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func ValidOutcome(outcome string) bool {
	return outcome == OutcomeSuccess || outcome == OutcomeFailure
}

type Snippet struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
	Language  string `json:"language,omitempty"`
}

type ContextPack struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	TargetID     string    `json:"target_id"`
	Summary      string    `json:"summary"`
	KeyFacts     []string  `json:"key_facts,omitempty"`
	Snippets     []Snippet `json:"snippets,omitempty"`
	RelatedFiles []string  `json:"related_files,omitempty"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	LastOutcome  string    `json:"last_outcome,omitempty"`
	Version      int       `json:"version"`
	Invalidators []string  `json:"invalidators,omitempty"`
}

// Clone returns a deep copy so trimming never mutates a caller's pack.
func (p ContextPack) Clone() ContextPack {
	out := p
	if len(p.KeyFacts) > 0 {
		out.KeyFacts = append([]string(nil), p.KeyFacts...)
	}
	if len(p.Snippets) > 0 {
		out.Snippets = append([]Snippet(nil), p.Snippets...)
	}
	if len(p.RelatedFiles) > 0 {
		out.RelatedFiles = append([]string(nil), p.RelatedFiles...)
	}
	if len(p.Invalidators) > 0 {
		out.Invalidators = append([]string(nil), p.Invalidators...)
	}
	return out
}

// SearchText joins the lexical fields used for keyword matching and FTS.
func (p ContextPack) SearchText() string {
	parts := make([]string, 0, 3+len(p.KeyFacts))
	if p.TargetID != "" {
		parts = append(parts, p.TargetID)
	}
	if p.Summary != "" {
		parts = append(parts, p.Summary)
	}
	parts = append(parts, p.KeyFacts...)
	return strings.Join(parts, " ")
}

type Synthesis struct {
	Answer        string   `json:"answer"`
	KeyInsights   []string `json:"key_insights,omitempty"`
	Uncertainties []string `json:"uncertainties,omitempty"`
	Citations     []string `json:"citations,omitempty"`
}
