package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
)

var ErrNotFound = errors.New("not found")

type PackResult struct {
	Pack pack.ContextPack
	BM25 float64
}

type SearchStats struct {
	CandidateTime  time.Duration
	FetchTime      time.Duration
	CandidateCount int
	ResultCount    int
	BaselineCount  int
	SanitizedQuery string
	Rewritten      bool
	Rewrites       []string
	RewriteMatched bool
}

// SavePack inserts a pack or replaces an existing one by ID. Re-saving
// bumps the stored version and clears any earlier invalidation; the
// pack_files rows used for change-driven invalidation are rebuilt from
// the pack's invalidators, related files, and snippet paths.
func (s *Store) SavePack(repoID, workspace string, p pack.ContextPack) (pack.ContextPack, error) {
	if repoID == "" {
		return pack.ContextPack{}, fmt.Errorf("pack requires repo_id")
	}
	if !p.Type.Valid() {
		return pack.ContextPack{}, fmt.Errorf("unknown pack type: %q", p.Type)
	}
	if strings.TrimSpace(p.TargetID) == "" {
		return pack.ContextPack{}, fmt.Errorf("pack requires target_id")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return pack.ContextPack{}, fmt.Errorf("pack confidence %.3f outside [0,1]", p.Confidence)
	}
	workspace = normalizeWorkspace(workspace)
	if p.ID == "" {
		p.ID = NewID("P")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Version <= 0 {
		p.Version = 1
	}

	keyFactsJSON, err := marshalStrings(p.KeyFacts)
	if err != nil {
		return pack.ContextPack{}, err
	}
	snippetsJSON, err := json.Marshal(nonNilSnippets(p.Snippets))
	if err != nil {
		return pack.ContextPack{}, err
	}
	relatedJSON, err := marshalStrings(p.RelatedFiles)
	if err != nil {
		return pack.ContextPack{}, err
	}
	invalidatorsJSON, err := marshalStrings(p.Invalidators)
	if err != nil {
		return pack.ContextPack{}, err
	}
	createdAt := p.CreatedAt.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.Begin()
	if err != nil {
		return pack.ContextPack{}, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO packs (
			pack_id, repo_id, workspace, pack_type, target_id, summary,
			key_facts_json, key_facts_text, snippets_json, related_files_json, invalidators_json,
			confidence, success_count, failure_count, last_outcome, version, created_at, invalidated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(pack_id)
		DO UPDATE SET
			pack_type = excluded.pack_type,
			target_id = excluded.target_id,
			summary = excluded.summary,
			key_facts_json = excluded.key_facts_json,
			key_facts_text = excluded.key_facts_text,
			snippets_json = excluded.snippets_json,
			related_files_json = excluded.related_files_json,
			invalidators_json = excluded.invalidators_json,
			confidence = excluded.confidence,
			version = packs.version + 1,
			created_at = excluded.created_at,
			invalidated_at = NULL
	`, p.ID, repoID, workspace, string(p.Type), p.TargetID, p.Summary,
		keyFactsJSON, strings.Join(p.KeyFacts, " "), string(snippetsJSON), relatedJSON, invalidatorsJSON,
		p.Confidence, p.SuccessCount, p.FailureCount, nullableString(p.LastOutcome), p.Version, createdAt)
	if err != nil {
		return pack.ContextPack{}, err
	}

	if _, err := tx.Exec(`DELETE FROM pack_files WHERE pack_id = ?`, p.ID); err != nil {
		return pack.ContextPack{}, err
	}
	for _, path := range packWatchPaths(p) {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO pack_files (pack_id, repo_id, workspace, path)
			VALUES (?, ?, ?, ?)
		`, p.ID, repoID, workspace, path); err != nil {
			return pack.ContextPack{}, err
		}
	}

	row := tx.QueryRow(`SELECT version FROM packs WHERE pack_id = ?`, p.ID)
	if err := row.Scan(&p.Version); err != nil {
		return pack.ContextPack{}, err
	}

	if err := tx.Commit(); err != nil {
		return pack.ContextPack{}, err
	}
	return p, nil
}

func (s *Store) GetPack(repoID, workspace, packID string) (pack.ContextPack, error) {
	workspace = normalizeWorkspace(workspace)
	row := s.db.QueryRow(`
		SELECT pack_id, pack_type, target_id, summary,
			key_facts_json, snippets_json, related_files_json, invalidators_json,
			confidence, success_count, failure_count, last_outcome, version, created_at
		FROM packs
		WHERE pack_id = ? AND repo_id = ? AND workspace = ? AND invalidated_at IS NULL
	`, packID, repoID, workspace)
	p, err := scanPackFields(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pack.ContextPack{}, ErrNotFound
		}
		return pack.ContextPack{}, err
	}
	return p, nil
}

func (s *Store) PacksByWorkspace(repoID, workspace string, limit int) ([]pack.ContextPack, error) {
	if limit <= 0 {
		limit = 50
	}
	workspace = normalizeWorkspace(workspace)
	rows, err := s.db.Query(`
		SELECT pack_id, pack_type, target_id, summary,
			key_facts_json, snippets_json, related_files_json, invalidators_json,
			confidence, success_count, failure_count, last_outcome, version, created_at
		FROM packs
		WHERE repo_id = ? AND workspace = ? AND invalidated_at IS NULL
		ORDER BY created_at DESC, pack_id
		LIMIT ?
	`, repoID, workspace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packs []pack.ContextPack
	for rows.Next() {
		p, err := scanPackFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return packs, nil
}

func (s *Store) PacksByTarget(repoID, workspace, targetID string) ([]pack.ContextPack, error) {
	workspace = normalizeWorkspace(workspace)
	rows, err := s.db.Query(`
		SELECT pack_id, pack_type, target_id, summary,
			key_facts_json, snippets_json, related_files_json, invalidators_json,
			confidence, success_count, failure_count, last_outcome, version, created_at
		FROM packs
		WHERE repo_id = ? AND workspace = ? AND target_id = ? AND invalidated_at IS NULL
		ORDER BY created_at DESC, pack_id
	`, repoID, workspace, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packs []pack.ContextPack
	for rows.Next() {
		p, err := scanPackFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return packs, nil
}

// SearchPacks runs a keyword search over the pack FTS index. A query that
// finds nothing is retried once with segment-expanded token variants so
// identifier-style terms still match prose summaries.
func (s *Store) SearchPacks(repoID, workspace, query string, limit int) ([]PackResult, SearchStats, error) {
	if limit <= 0 {
		return nil, SearchStats{}, nil
	}
	workspace = normalizeWorkspace(workspace)
	parsed := ParseQuery(query)
	baseQuery, _ := buildQueryFromParsed(parsed, false)
	baseResults, baseStats, err := s.searchPacksWithQuery(repoID, workspace, baseQuery, limit)
	if err != nil {
		return nil, SearchStats{}, err
	}
	if baseStats.ResultCount > 0 {
		return baseResults, baseStats, nil
	}

	expandedQuery, rewriteMeta := buildQueryFromParsed(parsed, true)
	if !rewriteMeta.Rewritten || expandedQuery == baseQuery {
		return baseResults, baseStats, nil
	}

	expandedResults, expandedStats, err := s.searchPacksWithQuery(repoID, workspace, expandedQuery, limit)
	if err != nil {
		return nil, SearchStats{}, err
	}
	expandedStats.BaselineCount = baseStats.ResultCount
	expandedStats.Rewritten = rewriteMeta.Rewritten
	expandedStats.Rewrites = rewriteMeta.Rewrites
	expandedStats.RewriteMatched = baseStats.ResultCount == 0 && expandedStats.ResultCount > 0
	return expandedResults, expandedStats, nil
}

func (s *Store) searchPacksWithQuery(repoID, workspace, query string, limit int) ([]PackResult, SearchStats, error) {
	candidateLimit := limit
	if candidateLimit < 200 {
		candidateLimit = 200
	}

	candidateStart := time.Now()
	rows, err := s.db.Query(`
		SELECT rowid, bm25(packs_fts, 5.0, 3.0, 2.0, 0.0, 0.0, 0.0)
		FROM packs_fts
		WHERE packs_fts MATCH ?
		AND repo_id = ?
		AND workspace = ?
		ORDER BY bm25(packs_fts, 5.0, 3.0, 2.0, 0.0, 0.0, 0.0)
		LIMIT ?
	`, query, repoID, workspace, candidateLimit)
	if err != nil {
		return nil, SearchStats{}, err
	}
	defer rows.Close()

	rowIDs := make([]int64, 0, candidateLimit)
	scores := make(map[int64]float64)
	for rows.Next() {
		var rowid int64
		var bm25 float64
		if err := rows.Scan(&rowid, &bm25); err != nil {
			return nil, SearchStats{}, err
		}
		rowIDs = append(rowIDs, rowid)
		scores[rowid] = bm25
	}
	if err := rows.Err(); err != nil {
		return nil, SearchStats{}, err
	}
	stats := SearchStats{
		CandidateTime:  time.Since(candidateStart),
		CandidateCount: len(rowIDs),
		SanitizedQuery: query,
	}
	if len(rowIDs) == 0 {
		return nil, stats, nil
	}

	placeholders := strings.Repeat("?,", len(rowIDs))
	placeholders = strings.TrimSuffix(placeholders, ",")
	args := make([]any, 0, len(rowIDs)+2)
	for _, rowid := range rowIDs {
		args = append(args, rowid)
	}
	args = append(args, repoID)
	args = append(args, workspace)

	fetchStart := time.Now()
	querySQL := fmt.Sprintf(`
		SELECT rowid, pack_id, pack_type, target_id, summary,
			key_facts_json, snippets_json, related_files_json, invalidators_json,
			confidence, success_count, failure_count, last_outcome, version, created_at
		FROM packs
		WHERE rowid IN (%s)
		AND repo_id = ?
		AND workspace = ?
		AND invalidated_at IS NULL
	`, placeholders)
	fetchRows, err := s.db.Query(querySQL, args...)
	if err != nil {
		return nil, stats, err
	}
	defer fetchRows.Close()

	details := make(map[int64]pack.ContextPack, len(rowIDs))
	for fetchRows.Next() {
		var rowid int64
		p, err := scanPackFields(func(dest ...any) error {
			args := append([]any{&rowid}, dest...)
			return fetchRows.Scan(args...)
		})
		if err != nil {
			return nil, stats, err
		}
		details[rowid] = p
	}
	if err := fetchRows.Err(); err != nil {
		return nil, stats, err
	}
	stats.FetchTime = time.Since(fetchStart)

	results := make([]PackResult, 0, limit)
	for _, rowid := range rowIDs {
		p, ok := details[rowid]
		if !ok {
			continue
		}
		results = append(results, PackResult{Pack: p, BM25: scores[rowid]})
		if len(results) >= limit {
			break
		}
	}
	stats.ResultCount = len(results)
	return results, stats, nil
}

// RecordOutcome increments the pack's usage counters after a caller
// reports whether the delivered context helped. Counters and the last
// outcome are the only fields feedback may touch.
func (s *Store) RecordOutcome(repoID, workspace, packID, outcome string) (pack.ContextPack, error) {
	if !pack.ValidOutcome(outcome) {
		return pack.ContextPack{}, fmt.Errorf("unknown outcome: %q", outcome)
	}
	workspace = normalizeWorkspace(workspace)
	res, err := s.db.Exec(`
		UPDATE packs
		SET success_count = success_count + CASE WHEN ? = 'success' THEN 1 ELSE 0 END,
			failure_count = failure_count + CASE WHEN ? = 'failure' THEN 1 ELSE 0 END,
			last_outcome = ?
		WHERE pack_id = ? AND repo_id = ? AND workspace = ? AND invalidated_at IS NULL
	`, outcome, outcome, outcome, packID, repoID, workspace)
	if err != nil {
		return pack.ContextPack{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return pack.ContextPack{}, err
	}
	if affected == 0 {
		return pack.ContextPack{}, ErrNotFound
	}
	return s.GetPack(repoID, workspace, packID)
}

// InvalidatePacksForPath marks every pack watching the given path as
// invalidated and reports how many packs were affected. Invalidated
// packs disappear from reads and from the FTS index until re-saved.
func (s *Store) InvalidatePacksForPath(repoID, workspace, path string, at time.Time) (int, error) {
	workspace = normalizeWorkspace(workspace)
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		UPDATE packs
		SET invalidated_at = ?
		WHERE repo_id = ? AND workspace = ? AND invalidated_at IS NULL
		AND pack_id IN (
			SELECT pack_id FROM pack_files
			WHERE repo_id = ? AND workspace = ? AND path = ?
		)
	`, at.UTC().Format(time.RFC3339Nano), repoID, workspace, repoID, workspace, path)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) CountPacks(repoID, workspace string) (int, error) {
	workspace = normalizeWorkspace(workspace)
	row := s.db.QueryRow(`
		SELECT COUNT(*) FROM packs
		WHERE repo_id = ? AND workspace = ? AND invalidated_at IS NULL
	`, repoID, workspace)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func packWatchPaths(p pack.ContextPack) []string {
	seen := make(map[string]struct{})
	var paths []string
	add := func(path string) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	for _, path := range p.Invalidators {
		add(path)
	}
	for _, path := range p.RelatedFiles {
		add(path)
	}
	for _, snippet := range p.Snippets {
		add(snippet.Path)
	}
	return paths
}

func marshalStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func nonNilSnippets(snippets []pack.Snippet) []pack.Snippet {
	if snippets == nil {
		return []pack.Snippet{}
	}
	return snippets
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

const maxQueryLength = 4096

// EnsureValidQuery rejects queries the pipeline must not attempt:
// empty intent, over-length text, and control characters other than
// tabs and newlines.
func EnsureValidQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return errors.New("query must not be empty")
	}
	if len(trimmed) > maxQueryLength {
		return fmt.Errorf("query is too long (max %d characters)", maxQueryLength)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return errors.New("query must not contain control characters")
		}
	}
	return nil
}
