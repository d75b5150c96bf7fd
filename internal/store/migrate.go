package store

import (
	"database/sql"
	"fmt"
	"time"
)

const schemaVersion = 1

func migrate(db *sql.DB) error {
	version, err := getUserVersion(db)
	if err != nil {
		return err
	}

	if err := ensureEmbeddingsTable(db); err != nil {
		return err
	}
	if err := ensureEmbeddingsIndexes(db); err != nil {
		return err
	}
	if err := ensureEmbeddingQueueTable(db); err != nil {
		return err
	}
	if err := ensureEmbeddingQueueIndexes(db); err != nil {
		return err
	}

	if version < schemaVersion {
		if err := rebuildFTS(db); err != nil {
			return err
		}
		if err := setUserVersion(db, schemaVersion); err != nil {
			return err
		}
		if err := setLastMigrationAt(db); err != nil {
			return err
		}
	}

	return ensureMeta(db)
}

func getUserVersion(db *sql.DB) (int, error) {
	row := db.QueryRow("PRAGMA user_version;")
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d;", version))
	return err
}

func setLastMigrationAt(db *sql.DB) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := db.Exec(`
		INSERT INTO meta (key, value)
		VALUES ('last_migration_at', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, now)
	return err
}

func ensureMeta(db *sql.DB) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return ensureMetaKey(db, "last_migration_at", now)
}

func ensureEmbeddingsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS embeddings (
			repo_id TEXT NOT NULL,
			workspace TEXT NOT NULL DEFAULT 'default',
			pack_id TEXT NOT NULL,
			model TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			vector_json TEXT NOT NULL,
			vector_dim INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (repo_id, workspace, pack_id, model)
		)
	`)
	return err
}

func ensureEmbeddingsIndexes(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_embeddings_model
		ON embeddings (repo_id, workspace, model)
	`)
	return err
}

func ensureEmbeddingQueueTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS embedding_queue (
			queue_id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo_id TEXT NOT NULL,
			workspace TEXT NOT NULL DEFAULT 'default',
			pack_id TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

func ensureEmbeddingQueueIndexes(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_embedding_queue_unique
		ON embedding_queue (repo_id, workspace, pack_id, model)
	`)
	return err
}

func rebuildFTS(db *sql.DB) error {
	if err := recreateFTSTables(db); err != nil {
		return err
	}
	if _, err := db.Exec("DELETE FROM packs_fts"); err != nil {
		return err
	}
	_, err := db.Exec(`
		INSERT INTO packs_fts (rowid, target_id, summary, key_facts, repo_id, workspace, pack_id)
		SELECT rowid, target_id, summary, COALESCE(key_facts_text, ''), repo_id, workspace, pack_id
		FROM packs
		WHERE invalidated_at IS NULL
	`)
	return err
}

func recreateFTSTables(db *sql.DB) error {
	if _, err := db.Exec("DROP TABLE IF EXISTS packs_fts"); err != nil {
		return err
	}
	_, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS packs_fts USING fts5 (
			target_id,
			summary,
			key_facts,
			repo_id UNINDEXED,
			workspace UNINDEXED,
			pack_id UNINDEXED,
			tokenize = 'porter unicode61'
		)
	`)
	return err
}
