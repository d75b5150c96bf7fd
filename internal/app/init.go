package app

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

func runInit(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repoOverride := fs.String("repo", "", "Override repo id or path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(errOut, "config error: %v\n", err)
		return 1
	}

	repoInfo, err := resolveRepo(&cfg, strings.TrimSpace(*repoOverride))
	if err != nil {
		fmt.Fprintf(errOut, "repo detection error: %v\n", err)
		return 1
	}

	st, err := openStore(cfg, repoInfo.ID)
	if err != nil {
		fmt.Fprintf(errOut, "store open error: %v\n", err)
		return 1
	}
	defer st.Close()

	if err := st.EnsureRepo(repoInfo); err != nil {
		fmt.Fprintf(errOut, "store repo error: %v\n", err)
		return 1
	}

	cfg.ActiveRepo = repoInfo.ID
	if err := cfg.SaveRepoState(); err != nil {
		fmt.Fprintf(errOut, "config save error: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "Initialized librarian for repo: %s\n", repoInfo.ID)
	fmt.Fprintf(out, "Root: %s\n", repoInfo.GitRoot)
	fmt.Fprintf(out, "Database: %s\n\n", cfg.RepoDBPath(repoInfo.ID))
	fmt.Fprintln(out, "Try these commands:")
	fmt.Fprintln(out, "  librarian index")
	fmt.Fprintln(out, "  librarian query \"how does retrieval work\"")
	fmt.Fprintln(out, "  librarian symbols MyType --kind type")
	return 0
}
