package app

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/nateschmiedehaus/librarian-sub018/internal/health"
)

func runDoctor(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repoOverride := fs.String("repo", "", "Override repo id or path")
	jsonOut := fs.Bool("json", false, "Output machine-readable JSON")
	repair := fs.Bool("repair", false, "Attempt repairs (migrations, FTS rebuild, missing dirs)")
	verbose := fs.Bool("verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts := health.Options{RepoOverride: strings.TrimSpace(*repoOverride)}
	var report health.Report
	var err error
	if *repair {
		report, err = health.Repair(context.Background(), opts.RepoOverride, opts)
	} else {
		report, err = health.Check(context.Background(), opts.RepoOverride, opts)
	}

	if *jsonOut {
		encoded, encErr := json.MarshalIndent(report, "", "  ")
		if encErr != nil {
			fmt.Fprintf(errOut, "json error: %v\n", encErr)
			return 1
		}
		fmt.Fprintln(out, string(encoded))
		if err != nil {
			fmt.Fprintln(errOut, err.Error())
			return 1
		}
		return 0
	}

	writeDoctorReport(out, report, *verbose)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 1
	}
	return 0
}

func writeDoctorReport(out io.Writer, report health.Report, verbose bool) {
	if report.OK {
		fmt.Fprintln(out, "librarian doctor: ok")
	} else if report.Error != "" {
		fmt.Fprintf(out, "librarian doctor: error: %s\n", report.Error)
	} else {
		fmt.Fprintln(out, "librarian doctor: error")
	}

	if report.Repo.ID != "" {
		fmt.Fprintf(out, "repo: %s\n", report.Repo.ID)
	}
	if verbose {
		if report.ActiveRepo != "" {
			fmt.Fprintf(out, "active_repo: %s\n", report.ActiveRepo)
		}
		if report.Repo.Source != "" {
			fmt.Fprintf(out, "repo_source: %s\n", report.Repo.Source)
		}
		if report.Repo.GitRoot != "" {
			fmt.Fprintf(out, "git_root: %s\n", report.Repo.GitRoot)
		}
	}

	if report.DB.Path != "" {
		fmt.Fprintf(out, "db: %s (exists=%t, %d bytes)\n", report.DB.Path, report.DB.Exists, report.DB.SizeBytes)
	}
	fmt.Fprintf(out, "schema: v%d (current v%d)\n", report.Schema.UserVersion, report.Schema.CurrentVersion)
	if verbose && report.Schema.LastMigrationAt != "" {
		fmt.Fprintf(out, "last_migration_at: %s\n", report.Schema.LastMigrationAt)
	}

	ftsState := "missing"
	if report.FTS.Packs {
		ftsState = "ok"
	}
	if report.FTS.Rebuilt {
		ftsState += " (rebuilt)"
	}
	fmt.Fprintf(out, "fts: %s\n", ftsState)

	fmt.Fprintf(out, "index: %d packs, %d symbols", report.Index.Packs, report.Index.Symbols)
	if report.Index.EmbedBacklog > 0 {
		fmt.Fprintf(out, ", %d embeddings queued", report.Index.EmbedBacklog)
	}
	fmt.Fprintln(out)
	if report.Index.StaleHead {
		fmt.Fprintf(out, "index is stale: last indexed at %s; run 'librarian index'\n", report.Index.IndexedHead)
	}

	if report.Suggestion != "" {
		fmt.Fprintf(out, "suggestion: %s\n", report.Suggestion)
	}
}
