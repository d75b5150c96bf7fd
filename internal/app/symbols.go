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
	"github.com/nateschmiedehaus/librarian-sub018/internal/symbols"
)

func runSymbols(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("symbols", flag.ContinueOnError)
	fs.SetOutput(errOut)
	kind := fs.String("kind", "", "Restrict to a symbol kind: class|function|method|interface|type")
	format := fs.String("format", "text", "Output format: json|text")
	repoOverride := fs.String("repo", "", "Override repo id or path")
	workspace := fs.String("workspace", "", "Workspace name")
	positional, flagArgs, err := splitFlagArgs(args, map[string]flagSpec{
		"kind":      {RequiresValue: true},
		"format":    {RequiresValue: true},
		"repo":      {RequiresValue: true},
		"workspace": {RequiresValue: true},
	})
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}
	if err := fs.Parse(flagArgs); err != nil {
		return 2
	}
	if len(positional) != 1 {
		fmt.Fprintln(errOut, "usage: librarian symbols <name> [--kind <kind>]")
		return 2
	}
	if *format != "json" && *format != "text" {
		fmt.Fprintf(errOut, "unsupported format: %s\n", *format)
		return 2
	}

	svc, _, _, closeSvc, err := openService(*repoOverride, *workspace)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 1
	}
	defer closeSvc()

	result, err := svc.Symbols(context.Background(), positional[0], symbols.Kind(strings.ToLower(strings.TrimSpace(*kind))))
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		if errors.Is(err, librarian.ErrInvalidQuery) {
			return 2
		}
		return 1
	}

	if *format == "json" {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(errOut, "json error: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, string(encoded))
		return 0
	}

	if len(result.Symbols) == 0 {
		fmt.Fprintf(out, "no symbols match %q\n", positional[0])
		return 0
	}
	match := "fuzzy"
	if result.ExactMatch {
		match = "exact"
	}
	fmt.Fprintf(out, "%d match(es), %s, confidence %.2f\n", len(result.Symbols), match, result.Confidence)
	for _, entry := range result.Symbols {
		location := fmt.Sprintf("%s:%d", entry.File, entry.StartLine)
		if entry.EndLine > entry.StartLine {
			location = fmt.Sprintf("%s:%d-%d", entry.File, entry.StartLine, entry.EndLine)
		}
		fmt.Fprintf(out, "  %-10s %-30s %s\n", entry.Kind, entry.Name, location)
	}
	return 0
}
