// Package synthesis turns the selected context packs into a direct answer.
// Providers are optional: resolution failures come back as a disabled Status,
// and the query pipeline discloses the gap instead of failing.
package synthesis

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nateschmiedehaus/librarian-sub018/internal/config"
	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
)

type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, query string, packs []pack.ContextPack) (pack.Synthesis, error)
}

type Status struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Enabled  bool   `json:"enabled"`
	Error    string `json:"error,omitempty"`
}

const DefaultOpenAIModel = "gpt-4o-mini"

func Resolve(cfg config.Config) (Synthesizer, Status) {
	name := strings.TrimSpace(strings.ToLower(cfg.SynthesisProvider))
	if name == "" || name == "none" {
		return nil, Status{Provider: "none", Enabled: false}
	}

	switch name {
	case "openai":
		model := strings.TrimSpace(cfg.SynthesisModel)
		if model == "" {
			model = DefaultOpenAIModel
		}
		if strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) == "" {
			return nil, Status{
				Provider: name,
				Model:    model,
				Enabled:  false,
				Error:    "synthesis_unavailable: OPENAI_API_KEY is not set",
			}
		}
		return NewOpenAISynthesizer(model), Status{
			Provider: name,
			Model:    model,
			Enabled:  true,
		}
	default:
		model := strings.TrimSpace(cfg.SynthesisModel)
		return nil, Status{
			Provider: name,
			Model:    model,
			Enabled:  false,
			Error:    fmt.Sprintf("unknown synthesis provider: %s", name),
		}
	}
}
