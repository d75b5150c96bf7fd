package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/nateschmiedehaus/librarian-sub018/internal/librarian"
	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
)

func runQuery(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(errOut)
	depth := fs.String("depth", "", "Search depth: shallow|standard|deep")
	files := fs.String("files", "", "Comma-separated affected file hints")
	maxTokens := fs.Int("max-tokens", 0, "Token budget ceiling (0 = config default)")
	reserve := fs.Int("reserve", 0, "Tokens held back for overhead")
	priority := fs.String("priority", "", "Budget priority: relevance|recency|diversity")
	topK := fs.Int("top-k", 0, "Candidate count (0 = config default)")
	format := fs.String("format", "json", "Output format: json|text")
	repoOverride := fs.String("repo", "", "Override repo id or path")
	workspace := fs.String("workspace", "", "Workspace name")
	positional, flagArgs, err := splitFlagArgs(args, map[string]flagSpec{
		"depth":      {RequiresValue: true},
		"files":      {RequiresValue: true},
		"max-tokens": {RequiresValue: true},
		"reserve":    {RequiresValue: true},
		"priority":   {RequiresValue: true},
		"top-k":      {RequiresValue: true},
		"format":     {RequiresValue: true},
		"repo":       {RequiresValue: true},
		"workspace":  {RequiresValue: true},
	})
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}
	if err := fs.Parse(flagArgs); err != nil {
		return 2
	}
	if *format != "json" && *format != "text" {
		fmt.Fprintf(errOut, "unsupported format: %s\n", *format)
		return 2
	}

	intent := strings.TrimSpace(strings.Join(positional, " "))
	if err := store.EnsureValidQuery(intent); err != nil {
		fmt.Fprintf(errOut, "invalid query: %v\n", err)
		return 2
	}

	svc, _, _, closeSvc, err := openService(*repoOverride, *workspace)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 1
	}
	defer closeSvc()

	resp, err := svc.Query(context.Background(), librarian.Query{
		Intent:        intent,
		Depth:         strings.TrimSpace(*depth),
		AffectedFiles: splitCSV(*files),
		MaxTokens:     *maxTokens,
		ReserveTokens: *reserve,
		Priority:      strings.TrimSpace(*priority),
		TopK:          *topK,
	})
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		if errors.Is(err, librarian.ErrInvalidQuery) {
			return 2
		}
		return 1
	}

	if *format == "text" {
		renderResponse(out, resp)
		return 0
	}
	encoded, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Fprintf(errOut, "json error: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, string(encoded))
	return 0
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func renderResponse(out io.Writer, resp librarian.Response) {
	fmt.Fprintf(out, "# %s\n", resp.Intent)
	fmt.Fprintf(out, "state=%s confidence=%.2f packs=%d/%d tokens=%d/%d\n",
		resp.State, resp.Confidence,
		resp.Truncation.FinalPackCount, resp.Truncation.OriginalPackCount,
		resp.Truncation.TokensUsed, resp.Truncation.TotalAvailable)
	fmt.Fprintln(out)

	if resp.Synthesis != nil {
		fmt.Fprintln(out, "## Answer")
		fmt.Fprintln(out, resp.Synthesis.Answer)
		for _, insight := range resp.Synthesis.KeyInsights {
			fmt.Fprintf(out, "- %s\n", insight)
		}
		fmt.Fprintln(out)
	}

	if len(resp.Packs) > 0 {
		fmt.Fprintln(out, "## Evidence")
		for _, p := range resp.Packs {
			renderPack(out, p)
		}
	}

	for _, warning := range resp.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	for _, disclosure := range resp.Disclosures {
		fmt.Fprintf(out, "note: %s\n", disclosure)
	}
}

func renderPack(out io.Writer, p pack.ContextPack) {
	fmt.Fprintf(out, "### %s (%s, confidence %.2f)\n", p.TargetID, p.Type, p.Confidence)
	if p.Summary != "" {
		fmt.Fprintln(out, p.Summary)
	}
	for _, fact := range p.KeyFacts {
		fmt.Fprintf(out, "- %s\n", fact)
	}
	for _, snippet := range p.Snippets {
		fmt.Fprintf(out, "```%s %s:%d-%d\n", snippet.Language, snippet.Path, snippet.StartLine, snippet.EndLine)
		fmt.Fprintln(out, snippet.Text)
		fmt.Fprintln(out, "```")
	}
	if len(p.RelatedFiles) > 0 {
		fmt.Fprintf(out, "files: %s\n", strings.Join(p.RelatedFiles, ", "))
	}
	fmt.Fprintln(out)
}
