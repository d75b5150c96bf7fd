package app

import (
	"io"
	"os"
)

func writeUsage(w io.Writer) {
	useColor := shouldColorize(w)
	title := colorize(useColor, "librarian - repo question answering over context packs")
	usage := colorize(useColor, "Usage:")
	commands := colorize(useColor, "Commands:")

	io.WriteString(w, title+"\n\n")
	io.WriteString(w, usage+"\n")
	io.WriteString(w, "  librarian [--data-dir <path>] <command> [options]\n\n")
	io.WriteString(w, colorize(useColor, "Global options:")+"\n")
	io.WriteString(w, "  --data-dir <path>  Override data dir (LIBRARIAN_DATA_DIR)\n\n")
	io.WriteString(w, "Version:\n")
	io.WriteString(w, "  librarian version | librarian --version | librarian -v\n\n")
	io.WriteString(w, commands+"\n")
	io.WriteString(w, "  init      librarian init [--repo <id|path>]\n")
	io.WriteString(w, "  index     librarian index [path] [--workspace <name>] [--repo <id|path>]\n")
	io.WriteString(w, "  query     librarian query \"<intent>\" [--depth shallow|standard|deep] [--files a.go,b.go]\n")
	io.WriteString(w, "            [--max-tokens <n>] [--reserve <n>] [--priority relevance|recency|diversity]\n")
	io.WriteString(w, "            [--top-k <n>] [--format json|text] [--workspace <name>] [--repo <id|path>]\n")
	io.WriteString(w, "  symbols   librarian symbols <name> [--kind class|function|method|interface|type]\n")
	io.WriteString(w, "            [--workspace <name>] [--repo <id|path>] [--format json|text]\n")
	io.WriteString(w, "  feedback  librarian feedback <packId> --outcome success|failure [--workspace <name>] [--repo <id|path>]\n")
	io.WriteString(w, "  watch     librarian watch [path] [--workspace <name>] [--repo <id|path>] [--log <path>]\n")
	io.WriteString(w, "  embed     librarian embed status [--workspace <name>] [--repo <id|path>] [--json]\n")
	io.WriteString(w, "            librarian embed backfill [--limit <n>] [--workspace <name>] [--repo <id|path>]\n")
	io.WriteString(w, "  mcp       librarian mcp [--repo <id|path>] [--log <path>] [--debug] [--repair]\n")
	io.WriteString(w, "  doctor    librarian doctor [--repo <id|path>] [--json] [--repair] [--verbose]\n")
}

func shouldColorize(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func colorize(enabled bool, text string) string {
	if !enabled {
		return text
	}
	const purple = "\x1b[35m"
	const bold = "\x1b[1m"
	const reset = "\x1b[0m"
	return bold + purple + text + reset
}
