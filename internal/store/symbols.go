package store

import (
	"fmt"
	"strings"

	"github.com/nateschmiedehaus/librarian-sub018/internal/symbols"
)

// ReplaceFileSymbols swaps the symbol rows for one source file in a
// single transaction, so a re-index never leaves a file half-updated.
func (s *Store) ReplaceFileSymbols(repoID, workspace, file string, entries []symbols.Entry) error {
	if repoID == "" || strings.TrimSpace(file) == "" {
		return fmt.Errorf("symbol rows require repo_id and file")
	}
	workspace = normalizeWorkspace(workspace)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM symbols
		WHERE repo_id = ? AND workspace = ? AND file = ?
	`, repoID, workspace, file); err != nil {
		return err
	}
	for _, entry := range entries {
		if strings.TrimSpace(entry.Name) == "" {
			continue
		}
		kind := entry.Kind
		if !kind.Valid() {
			return fmt.Errorf("unknown symbol kind: %q", kind)
		}
		if _, err := tx.Exec(`
			INSERT INTO symbols (repo_id, workspace, name, kind, file, start_line, end_line)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, repoID, workspace, entry.Name, string(kind), file, entry.StartLine, entry.EndLine); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) DeleteSymbolsForFile(repoID, workspace, file string) error {
	workspace = normalizeWorkspace(workspace)
	_, err := s.db.Exec(`
		DELETE FROM symbols
		WHERE repo_id = ? AND workspace = ? AND file = ?
	`, repoID, workspace, file)
	return err
}

func (s *Store) LoadSymbols(repoID, workspace string) ([]symbols.Entry, error) {
	workspace = normalizeWorkspace(workspace)
	rows, err := s.db.Query(`
		SELECT name, kind, file, start_line, end_line
		FROM symbols
		WHERE repo_id = ? AND workspace = ?
		ORDER BY name, file, start_line
	`, repoID, workspace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []symbols.Entry
	for rows.Next() {
		var entry symbols.Entry
		var kind string
		if err := rows.Scan(&entry.Name, &kind, &entry.File, &entry.StartLine, &entry.EndLine); err != nil {
			return nil, err
		}
		entry.Kind = symbols.Kind(kind)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CountSymbols(repoID, workspace string) (int, error) {
	workspace = normalizeWorkspace(workspace)
	row := s.db.QueryRow(`
		SELECT COUNT(*) FROM symbols
		WHERE repo_id = ? AND workspace = ?
	`, repoID, workspace)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
