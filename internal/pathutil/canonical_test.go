package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRel(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "pkg", "store")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(sub, "store.go")
	if err := os.WriteFile(file, []byte("package store\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if got := Rel(root, file); got != "pkg/store/store.go" {
		t.Errorf("Rel absolute = %q, want pkg/store/store.go", got)
	}
	if got := Rel(root, filepath.Join("pkg", "store", "store.go")); got != "pkg/store/store.go" {
		t.Errorf("Rel relative = %q, want pkg/store/store.go", got)
	}
	if got := Rel(root, filepath.Dir(root)); got != "" {
		t.Errorf("Rel outside root = %q, want empty", got)
	}
}
