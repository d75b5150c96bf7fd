package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/nateschmiedehaus/librarian-sub018/internal/librarian"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
)

func runFeedback(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("feedback", flag.ContinueOnError)
	fs.SetOutput(errOut)
	outcome := fs.String("outcome", "", "Outcome: success|failure")
	repoOverride := fs.String("repo", "", "Override repo id or path")
	workspace := fs.String("workspace", "", "Workspace name")
	positional, flagArgs, err := splitFlagArgs(args, map[string]flagSpec{
		"outcome":   {RequiresValue: true},
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
		fmt.Fprintln(errOut, "usage: librarian feedback <packId> --outcome success|failure")
		return 2
	}

	svc, _, _, closeSvc, err := openService(*repoOverride, *workspace)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 1
	}
	defer closeSvc()

	updated, err := svc.Feedback(positional[0], strings.ToLower(strings.TrimSpace(*outcome)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(errOut, "pack %s not found\n", positional[0])
			return 1
		}
		fmt.Fprintf(errOut, "%v\n", err)
		if errors.Is(err, librarian.ErrInvalidQuery) {
			return 2
		}
		return 1
	}

	fmt.Fprintf(out, "Recorded %s for %s (success=%d failure=%d)\n",
		updated.LastOutcome, updated.ID, updated.SuccessCount, updated.FailureCount)
	return 0
}
