package symbols

import (
	"sort"
	"strings"
)

// Kind is the closed set of symbol kinds the table indexes.
type Kind string

const (
	KindClass     Kind = "class"
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
)

func (k Kind) Valid() bool {
	switch k {
	case KindClass, KindFunction, KindMethod, KindInterface, KindType:
		return true
	}
	return false
}

type Entry struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line,omitempty"`
}

// Table is an in-memory lookup structure over known symbols.
// It is immutable after Build and safe for concurrent readers.
type Table struct {
	entries []Entry
	byName  map[string][]int
}

func Build(entries []Entry) *Table {
	t := &Table{
		entries: make([]Entry, len(entries)),
		byName:  make(map[string][]int, len(entries)),
	}
	copy(t.entries, entries)
	sort.SliceStable(t.entries, func(i, j int) bool {
		if t.entries[i].Name != t.entries[j].Name {
			return t.entries[i].Name < t.entries[j].Name
		}
		if t.entries[i].File != t.entries[j].File {
			return t.entries[i].File < t.entries[j].File
		}
		return t.entries[i].StartLine < t.entries[j].StartLine
	})
	for i, entry := range t.entries {
		key := strings.ToLower(entry.Name)
		t.byName[key] = append(t.byName[key], i)
	}
	return t
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Table) byNameExact(name string) []Entry {
	if t == nil {
		return nil
	}
	idxs := t.byName[strings.ToLower(name)]
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, t.entries[i])
	}
	return out
}
