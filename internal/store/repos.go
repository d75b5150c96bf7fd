package store

import (
	"database/sql"
	"errors"
)

type RepoRow struct {
	RepoID     string
	GitRoot    string
	OriginHash string
	LastHead   string
	LastBranch string
	CreatedAt  string
	LastSeenAt string
}

func (s *Store) GetRepo(repoID string) (RepoRow, error) {
	row := s.db.QueryRow(`
		SELECT repo_id, git_root, COALESCE(origin_hash, ''), COALESCE(last_head, ''), COALESCE(last_branch, ''), created_at, last_seen_at
		FROM repos
		WHERE repo_id = ?
	`, repoID)

	var repo RepoRow
	if err := row.Scan(&repo.RepoID, &repo.GitRoot, &repo.OriginHash, &repo.LastHead, &repo.LastBranch, &repo.CreatedAt, &repo.LastSeenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RepoRow{}, ErrNotFound
		}
		return RepoRow{}, err
	}
	return repo, nil
}
