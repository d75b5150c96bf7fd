package indexer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
	"github.com/nateschmiedehaus/librarian-sub018/internal/symbols"
)

const (
	moduleConfidence         = 0.8
	documentedFuncConfidence = 0.75
	bareFuncConfidence       = 0.6

	maxSnippetLines  = 40
	maxFactChars     = 240
	maxExportedNames = 10
	maxRelatedFiles  = 12
)

func functionPack(f goFile, fn goFunction, now time.Time) pack.ContextPack {
	target := f.RelPath + "#" + fn.Name

	kindWord := "Function"
	if fn.Kind == symbols.KindMethod {
		kindWord = "Method"
	}

	summary := firstSentence(fn.Doc)
	documented := summary != ""
	if !documented {
		summary = fmt.Sprintf("%s %s in package %s.", kindWord, fn.Name, f.Package)
	}

	facts := []string{
		fmt.Sprintf("%s %s declared at %s:%d-%d.", kindWord, fn.Name, f.RelPath, fn.StartLine, fn.EndLine),
		fmt.Sprintf("Package %s.", f.Package),
	}
	if doc := squashDoc(fn.Doc); documented && doc != summary {
		facts = append(facts, capLine(doc, maxFactChars))
	}

	confidence := bareFuncConfidence
	if documented {
		confidence = documentedFuncConfidence
	}

	text, endLine := snippetText(f.Lines, fn.StartLine, fn.EndLine)

	return pack.ContextPack{
		ID:       pack.DeterministicID(pack.TypeFunctionContext, target),
		Type:     pack.TypeFunctionContext,
		TargetID: target,
		Summary:  summary,
		KeyFacts: facts,
		Snippets: []pack.Snippet{{
			Path:      f.RelPath,
			StartLine: fn.StartLine,
			EndLine:   endLine,
			Text:      text,
			Language:  "go",
		}},
		RelatedFiles: []string{f.RelPath},
		Confidence:   confidence,
		CreatedAt:    now,
		Version:      1,
		Invalidators: []string{f.RelPath},
	}
}

func modulePack(dir string, files []goFile, now time.Time) (pack.ContextPack, bool) {
	if len(files) == 0 {
		return pack.ContextPack{}, false
	}
	sorted := make([]goFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	pkg := dominantPackage(sorted)
	symbolCount := 0
	var relPaths []string
	var exported []string
	var doc string
	for _, f := range sorted {
		relPaths = append(relPaths, f.RelPath)
		symbolCount += len(f.Symbols)
		if doc == "" {
			doc = firstParagraph(f.Doc)
		}
		for _, fn := range f.Functions {
			if fn.Exported {
				exported = append(exported, fn.Name)
			}
		}
		for _, t := range f.Types {
			if t.Exported {
				exported = append(exported, t.Name)
			}
		}
	}
	sort.Strings(exported)
	exported = dedupeStrings(exported)

	summary := doc
	if summary == "" {
		summary = fmt.Sprintf("Package %s (%s) with %d Go files and %d symbols.", pkg, dir, len(sorted), symbolCount)
	}

	facts := []string{
		fmt.Sprintf("Package %s in %s.", pkg, dir),
		fmt.Sprintf("%d Go files, %d symbols.", len(sorted), symbolCount),
	}
	if len(exported) > 0 {
		names := exported
		if len(names) > maxExportedNames {
			names = names[:maxExportedNames]
		}
		facts = append(facts, capLine("Exported: "+strings.Join(names, ", ")+".", maxFactChars))
	}

	related := relPaths
	if len(related) > maxRelatedFiles {
		related = related[:maxRelatedFiles]
	}

	return pack.ContextPack{
		ID:           pack.DeterministicID(pack.TypeModuleContext, dir),
		Type:         pack.TypeModuleContext,
		TargetID:     dir,
		Summary:      capLine(summary, maxFactChars*2),
		KeyFacts:     facts,
		RelatedFiles: related,
		Confidence:   moduleConfidence,
		CreatedAt:    now,
		Version:      1,
		Invalidators: relPaths,
	}, true
}

func dominantPackage(files []goFile) string {
	counts := map[string]int{}
	best := files[0].Package
	for _, f := range files {
		counts[f.Package]++
		if counts[f.Package] > counts[best] {
			best = f.Package
		}
	}
	return best
}

// snippetText joins the 1-based line range, capped at maxSnippetLines.
// Returns the text and the effective end line.
func snippetText(lines []string, startLine, endLine int) (string, int) {
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if endLine < startLine {
		endLine = startLine
	}
	if endLine-startLine+1 > maxSnippetLines {
		endLine = startLine + maxSnippetLines - 1
	}
	return strings.Join(lines[startLine-1:endLine], "\n"), endLine
}

func firstSentence(doc string) string {
	text := squashDoc(doc)
	if text == "" {
		return ""
	}
	if idx := strings.Index(text, ". "); idx >= 0 {
		return text[:idx+1]
	}
	return capLine(text, maxFactChars)
}

func firstParagraph(doc string) string {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return ""
	}
	if idx := strings.Index(doc, "\n\n"); idx >= 0 {
		doc = doc[:idx]
	}
	return strings.Join(strings.Fields(doc), " ")
}

func squashDoc(doc string) string {
	return strings.Join(strings.Fields(doc), " ")
}

func capLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndex(cut, " "); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func dedupeStrings(sorted []string) []string {
	out := sorted[:0]
	var prev string
	for i, s := range sorted {
		if i > 0 && s == prev {
			continue
		}
		out = append(out, s)
		prev = s
	}
	return out
}
