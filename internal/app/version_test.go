package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionString(t *testing.T) {
	got := VersionString()
	if !strings.HasPrefix(got, "librarian ") {
		t.Fatalf("unexpected version string: %q", got)
	}
	if !strings.Contains(got, Version) {
		t.Fatalf("version string %q missing version %q", got, Version)
	}
}

func TestVersionCommandAliases(t *testing.T) {
	for _, alias := range []string{"version", "--version", "-v"} {
		var out, errOut bytes.Buffer
		if code := Run([]string{alias}, &out, &errOut); code != 0 {
			t.Fatalf("%s exited %d: %s", alias, code, errOut.String())
		}
		if !strings.HasPrefix(out.String(), "librarian ") {
			t.Fatalf("%s output %q", alias, out.String())
		}
	}
}
