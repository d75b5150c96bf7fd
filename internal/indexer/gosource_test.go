package indexer

import (
	"strings"
	"testing"

	"github.com/nateschmiedehaus/librarian-sub018/internal/symbols"
)

const storeSource = `// Package kv is a tiny key-value layer.
package kv

// Conn wraps one open handle.
type Conn struct {
	path string
}

// Reader is the read-only view.
type Reader interface {
	Get(key string) (string, bool)
}

type key string

// Open returns a connection for path.
func Open(path string) (*Conn, error) {
	return &Conn{path: path}, nil
}

func (c *Conn) Close() error {
	return nil
}

func (c Conn) Path() string {
	return c.path
}
`

func TestParseGoFileExtractsDecls(t *testing.T) {
	parsed, err := parseGoFile("internal/kv/kv.go", []byte(storeSource))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Package != "kv" {
		t.Fatalf("package = %q", parsed.Package)
	}
	if !strings.Contains(parsed.Doc, "tiny key-value layer") {
		t.Fatalf("package doc = %q", parsed.Doc)
	}

	byName := map[string]symbols.Entry{}
	for _, e := range parsed.Symbols {
		byName[e.Name] = e
	}
	if len(byName) != 6 {
		t.Fatalf("symbols = %d, want 6: %v", len(byName), parsed.Symbols)
	}

	want := map[string]symbols.Kind{
		"Conn":       symbols.KindClass,
		"Reader":     symbols.KindInterface,
		"key":        symbols.KindType,
		"Open":       symbols.KindFunction,
		"Conn.Close": symbols.KindMethod,
		"Conn.Path":  symbols.KindMethod,
	}
	for name, kind := range want {
		entry, ok := byName[name]
		if !ok {
			t.Fatalf("missing symbol %q", name)
		}
		if entry.Kind != kind {
			t.Fatalf("%s kind = %q, want %q", name, entry.Kind, kind)
		}
		if entry.StartLine < 1 || entry.EndLine < entry.StartLine {
			t.Fatalf("%s lines = %d-%d", name, entry.StartLine, entry.EndLine)
		}
		if entry.File != "internal/kv/kv.go" {
			t.Fatalf("%s file = %q", name, entry.File)
		}
	}

	var open goFunction
	for _, fn := range parsed.Functions {
		if fn.Name == "Open" {
			open = fn
		}
	}
	if !open.Exported || !strings.Contains(open.Doc, "returns a connection") {
		t.Fatalf("Open = %+v", open)
	}

	var conn goType
	for _, typ := range parsed.Types {
		if typ.Name == "Conn" {
			conn = typ
		}
	}
	if !strings.Contains(conn.Doc, "one open handle") {
		t.Fatalf("Conn doc = %q (GenDecl doc should attach)", conn.Doc)
	}
}

func TestParseGoFileRejectsBrokenSource(t *testing.T) {
	if _, err := parseGoFile("broken.go", []byte("package {\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFirstSentence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Open returns a connection for path.\n", "Open returns a connection for path."},
		{"Open returns a connection. It never dials.", "Open returns a connection."},
		{"no terminal punctuation", "no terminal punctuation"},
	}
	for _, tc := range cases {
		if got := firstSentence(tc.in); got != tc.want {
			t.Fatalf("firstSentence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
