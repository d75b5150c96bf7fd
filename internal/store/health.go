package store

import "database/sql"

func SchemaVersion() int {
	return schemaVersion
}

func (s *Store) UserVersion() (int, error) {
	return getUserVersion(s.db)
}

func (s *Store) HasFTSTable() (bool, error) {
	row := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM sqlite_master
		WHERE type = 'table' AND name = 'packs_fts'
	`)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) RebuildFTS() error {
	return rebuildFTS(s.db)
}

func ensureMetaKey(db *sql.DB, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO meta (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, value)
	return err
}
