// Package librarian sequences the query pipeline: symbol short-circuit,
// hybrid retrieval, coherence-calibrated confidence, optional synthesis,
// and token budget enforcement. Collaborator failures degrade the response
// and add a disclosure; only malformed queries and context cancellation
// come back as errors.
package librarian

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nateschmiedehaus/librarian-sub018/internal/budget"
	"github.com/nateschmiedehaus/librarian-sub018/internal/coherence"
	"github.com/nateschmiedehaus/librarian-sub018/internal/config"
	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
	"github.com/nateschmiedehaus/librarian-sub018/internal/pathutil"
	"github.com/nateschmiedehaus/librarian-sub018/internal/retrieval"
	"github.com/nateschmiedehaus/librarian-sub018/internal/store"
	"github.com/nateschmiedehaus/librarian-sub018/internal/symbols"
	"github.com/nateschmiedehaus/librarian-sub018/internal/synthesis"
	"github.com/nateschmiedehaus/librarian-sub018/internal/token"
)

// Terminal pipeline states.
const (
	StateShortCircuited = "short-circuited"
	StateCompleted      = "completed"
	StateDegraded       = "completed-with-degradation"
)

// Depth levels scale how many candidates retrieval fetches.
const (
	DepthShallow  = "shallow"
	DepthStandard = "standard"
	DepthDeep     = "deep"
)

const (
	defaultTopK         = 8
	minShallowTopK      = 3
	maxDeepTopK         = 32
	affectedFileBoost   = 0.25
	snippetMaxLines     = 40
	snippetFallbackSpan = 12
	defaultQueryTimeout = 30 * time.Second
)

// ErrInvalidQuery marks validation failures, the only errors a caller can
// fix by changing the request. Everything else degrades into disclosures.
var ErrInvalidQuery = errors.New("invalid query")

// Query is the single public request shape.
type Query struct {
	Intent        string   `json:"intent"`
	Depth         string   `json:"depth,omitempty"`
	AffectedFiles []string `json:"affected_files,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	ReserveTokens int      `json:"reserve_tokens,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
}

// SymbolMatch reports what the symbol stage found, whether or not the
// lookup was strong enough to short-circuit.
type SymbolMatch struct {
	Name       string          `json:"name"`
	Kind       symbols.Kind    `json:"kind,omitempty"`
	Definition bool            `json:"definition,omitempty"`
	ExactMatch bool            `json:"exact_match"`
	Confidence float64         `json:"confidence"`
	Matches    []symbols.Entry `json:"matches"`
}

type Response struct {
	ID          string              `json:"id"`
	State       string              `json:"state"`
	Intent      string              `json:"intent"`
	RepoID      string              `json:"repo_id"`
	Workspace   string              `json:"workspace"`
	GeneratedAt time.Time           `json:"generated_at"`
	Packs       []pack.ContextPack  `json:"packs"`
	Synthesis   *pack.Synthesis     `json:"synthesis,omitempty"`
	Confidence  float64             `json:"confidence"`
	Coherence   *coherence.Analysis `json:"coherence,omitempty"`
	Symbols     *SymbolMatch        `json:"symbols,omitempty"`
	Retrieval   *retrieval.Status   `json:"retrieval,omitempty"`
	Truncation  budget.Result       `json:"truncation"`
	Disclosures []string            `json:"disclosures"`
	Warnings    []string            `json:"warnings,omitempty"`
}

type Params struct {
	Store     *store.Store
	Config    config.Config
	RepoID    string
	Workspace string
	// Root is the crawled repository root, used to enrich symbol hits with
	// source snippets. Empty disables snippet reads.
	Root string
	Now  func() time.Time
}

type Service struct {
	store       *store.Store
	cfg         config.Config
	repoID      string
	workspace   string
	root        string
	searcher    *retrieval.Searcher
	synth       synthesis.Synthesizer
	synthStatus synthesis.Status
	cache       *symbols.Cache
	estimator   budget.Estimator
	now         func() time.Time
}

func New(p Params) *Service {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		store:     p.Store,
		cfg:       p.Config,
		repoID:    p.RepoID,
		workspace: p.Workspace,
		root:      p.Root,
		searcher:  retrieval.New(p.Store, p.Config),
		estimator: resolveEstimator(p.Config),
		now:       now,
	}
	s.synth, s.synthStatus = synthesis.Resolve(p.Config)
	ttl := time.Duration(p.Config.SymbolCacheTTLSeconds) * time.Second
	s.cache = symbols.NewCache(s.loadSymbolTable, ttl, now)
	return s
}

// resolveEstimator prefers the exact tokenizer when it loads; a failed load
// is not worth failing the service over, the character heuristic is the
// documented default anyway.
func resolveEstimator(cfg config.Config) budget.Estimator {
	if name := strings.TrimSpace(cfg.Tokenizer); name != "" {
		if counter, err := token.New(name); err == nil {
			return counter
		}
	}
	return budget.NewCharEstimator(cfg.CharsPerToken)
}

func (s *Service) loadSymbolTable(_ context.Context, workspace string) (*symbols.Table, error) {
	entries, err := s.store.LoadSymbols(s.repoID, workspace)
	if err != nil {
		return nil, fmt.Errorf("load symbols: %w", err)
	}
	return symbols.Build(entries), nil
}

// InvalidateSymbols drops the cached symbol table so the next query reloads
// it. The watcher calls this after re-indexing a changed file.
func (s *Service) InvalidateSymbols() {
	s.cache.Invalidate(s.workspace)
}

func validateQuery(q Query) error {
	if err := store.EnsureValidQuery(q.Intent); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	switch q.Depth {
	case "", DepthShallow, DepthStandard, DepthDeep:
	default:
		return fmt.Errorf("%w: unknown depth %q", ErrInvalidQuery, q.Depth)
	}
	if q.MaxTokens < 0 || q.ReserveTokens < 0 {
		return fmt.Errorf("%w: token budget must not be negative", ErrInvalidQuery)
	}
	if q.MaxTokens > 0 && q.ReserveTokens >= q.MaxTokens {
		return fmt.Errorf("%w: reserve_tokens %d leaves no room under max_tokens %d", ErrInvalidQuery, q.ReserveTokens, q.MaxTokens)
	}
	if q.TopK < 0 {
		return fmt.Errorf("%w: top_k must not be negative", ErrInvalidQuery)
	}
	if q.Priority != "" && !budget.Priority(q.Priority).Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidQuery, q.Priority)
	}
	return nil
}

// Query runs the full pipeline. The returned error is non-nil only for
// invalid queries and context cancellation; collaborator failures show up
// as disclosures on a still-successful response.
func (s *Service) Query(ctx context.Context, q Query) (Response, error) {
	if err := validateQuery(q); err != nil {
		return Response{}, err
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()
	}

	resp := Response{
		ID:          uuid.NewString(),
		Intent:      q.Intent,
		RepoID:      s.repoID,
		Workspace:   s.workspace,
		GeneratedAt: s.now().UTC(),
		Packs:       []pack.ContextPack{},
		Disclosures: []string{},
	}
	degraded := false
	bud := s.budgetFor(q)

	if pattern, ok := symbols.Detect(q.Intent); ok {
		table, err := s.cache.Get(ctx, s.workspace)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			resp.Disclosures = append(resp.Disclosures, fmt.Sprintf("symbol lookup unavailable: %v", err))
			degraded = true
		} else {
			lookup := symbols.Lookup(table, pattern)
			if len(lookup.Symbols) > 0 {
				resp.Symbols = &SymbolMatch{
					Name:       pattern.Name,
					Kind:       pattern.Kind,
					Definition: pattern.Definition,
					ExactMatch: lookup.ExactMatch,
					Confidence: lookup.Confidence,
					Matches:    lookup.Symbols,
				}
			}
			if symbols.ShouldShortCircuit(lookup, pattern.Definition, s.shortCircuitConfidence()) {
				return s.shortCircuit(resp, bud, lookup), nil
			}
		}
	}

	searched, err := s.searcher.Search(ctx, s.repoID, s.workspace, q.Intent, retrieval.Options{
		Limit: s.effectiveTopK(q),
		Now:   s.now(),
	})
	if err != nil {
		return Response{}, err
	}
	status := searched.Status
	resp.Retrieval = &status
	resp.Disclosures = append(resp.Disclosures, status.Disclosures...)
	if status.Degraded {
		degraded = true
	}

	candidates := make([]pack.ContextPack, 0, len(searched.Candidates))
	for _, c := range searched.Candidates {
		candidates = append(candidates, c.Pack)
	}
	scores := searched.ScoreByPack
	if scores == nil {
		scores = map[string]float64{}
	}
	boostAffected(scores, candidates, q.AffectedFiles)

	params := s.coherenceParams()
	analysis := coherence.Analyze(candidates, q.Intent, params)
	resp.Coherence = &analysis
	resp.Warnings = append(resp.Warnings, analysis.Warnings...)

	if len(candidates) == 0 {
		resp.Confidence = 0
		resp.Disclosures = append(resp.Disclosures, "no context packs matched the query")
		outcome := budget.Enforce(budget.Request{Budget: bud}, s.estimator)
		resp.Truncation = outcome.Result
		resp.State = StateCompleted
		if degraded {
			resp.State = StateDegraded
		}
		return resp, nil
	}

	var rawSum float64
	for i := range candidates {
		raw := clamp01(candidates[i].Confidence)
		rawSum += raw
		candidates[i].Confidence = coherence.ApplyAdjustment(raw, analysis)
	}
	resp.Confidence = coherence.ApplyAdjustment(rawSum/float64(len(candidates)), analysis)

	var synthesized *pack.Synthesis
	if s.synth != nil {
		result, err := s.synth.Synthesize(ctx, q.Intent, candidates)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			resp.Disclosures = append(resp.Disclosures, fmt.Sprintf("synthesis unavailable: %v", err))
			degraded = true
		} else {
			synthesized = &result
		}
	} else if s.synthStatus.Error != "" {
		resp.Disclosures = append(resp.Disclosures, "synthesis unavailable: "+s.synthStatus.Error)
		degraded = true
	}

	outcome := budget.Enforce(budget.Request{
		Packs:       candidates,
		Synthesis:   synthesized,
		Budget:      bud,
		ScoreByPack: scores,
	}, s.estimator)
	resp.Packs = outcome.Packs
	if resp.Packs == nil {
		resp.Packs = []pack.ContextPack{}
	}
	resp.Synthesis = outcome.Synthesis
	resp.Truncation = outcome.Result

	resp.State = StateCompleted
	if degraded {
		resp.State = StateDegraded
	}
	return resp, nil
}

// shortCircuit emits symbol-derived packs directly, bypassing retrieval and
// coherence. Confidence is the lookup's own: an exact table hit needs no
// discounting.
func (s *Service) shortCircuit(resp Response, bud budget.Budget, lookup symbols.LookupResult) Response {
	packs := s.symbolPacks(lookup)
	outcome := budget.Enforce(budget.Request{Packs: packs, Budget: bud}, s.estimator)
	resp.Packs = outcome.Packs
	if resp.Packs == nil {
		resp.Packs = []pack.ContextPack{}
	}
	resp.Truncation = outcome.Result
	resp.Confidence = lookup.Confidence
	resp.State = StateShortCircuited
	return resp
}

func (s *Service) symbolPacks(lookup symbols.LookupResult) []pack.ContextPack {
	now := s.now().UTC()
	seen := make(map[string]struct{}, len(lookup.Symbols))
	packs := make([]pack.ContextPack, 0, len(lookup.Symbols))
	for _, entry := range lookup.Symbols {
		target := entry.File + "#" + entry.Name
		id := pack.DeterministicID(pack.TypeSymbolDefinition, target)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		location := fmt.Sprintf("%s:%d", entry.File, entry.StartLine)
		if entry.EndLine > entry.StartLine {
			location = fmt.Sprintf("%s:%d-%d", entry.File, entry.StartLine, entry.EndLine)
		}
		p := pack.ContextPack{
			ID:           id,
			Type:         pack.TypeSymbolDefinition,
			TargetID:     target,
			Summary:      fmt.Sprintf("Definition of %s %s in %s at line %d.", entry.Kind, entry.Name, entry.File, entry.StartLine),
			KeyFacts:     []string{fmt.Sprintf("Declared at %s.", location)},
			RelatedFiles: []string{entry.File},
			Invalidators: []string{entry.File},
			Confidence:   lookup.Confidence,
			CreatedAt:    now,
			Version:      1,
		}
		if snippet, ok := s.readSnippet(entry); ok {
			p.Snippets = []pack.Snippet{snippet}
		}
		packs = append(packs, p)
	}
	return packs
}

// readSnippet pulls the declaration's source text from the workspace root.
// Best-effort: unreadable files, paths outside the root, and stale line
// numbers all just mean no snippet.
func (s *Service) readSnippet(entry symbols.Entry) (pack.Snippet, bool) {
	if s.root == "" || entry.File == "" || entry.StartLine < 1 {
		return pack.Snippet{}, false
	}
	rel := pathutil.Rel(s.root, entry.File)
	if rel == "" {
		return pack.Snippet{}, false
	}
	content, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return pack.Snippet{}, false
	}
	lines := strings.Split(string(content), "\n")
	start := entry.StartLine
	if start > len(lines) {
		return pack.Snippet{}, false
	}
	end := entry.EndLine
	if end < start {
		end = start + snippetFallbackSpan
	}
	if end > len(lines) {
		end = len(lines)
	}
	if end-start+1 > snippetMaxLines {
		end = start + snippetMaxLines - 1
	}
	snippet := pack.Snippet{
		Path:      entry.File,
		StartLine: start,
		EndLine:   end,
		Text:      strings.Join(lines[start-1:end], "\n"),
	}
	if strings.HasSuffix(entry.File, ".go") {
		snippet.Language = "go"
	}
	return snippet, true
}

// boostAffected raises the relevance of packs touching the files the caller
// flagged as affected, then renormalizes only if the boost pushed the best
// score past 1 so the map stays a [0,1] ranking.
func boostAffected(scores map[string]float64, packs []pack.ContextPack, affected []string) {
	if len(affected) == 0 || len(packs) == 0 {
		return
	}
	boosted := false
	for _, p := range packs {
		if !packTouchesAny(p, affected) {
			continue
		}
		scores[p.ID] += affectedFileBoost
		boosted = true
	}
	if !boosted {
		return
	}
	var best float64
	for _, score := range scores {
		if score > best {
			best = score
		}
	}
	if best <= 1 {
		return
	}
	for id, score := range scores {
		scores[id] = score / best
	}
}

func packTouchesAny(p pack.ContextPack, files []string) bool {
	paths := make([]string, 0, len(p.RelatedFiles)+len(p.Invalidators)+len(p.Snippets))
	paths = append(paths, p.RelatedFiles...)
	paths = append(paths, p.Invalidators...)
	for _, snippet := range p.Snippets {
		paths = append(paths, snippet.Path)
	}
	for _, file := range files {
		for _, candidate := range paths {
			if samePath(candidate, file) {
				return true
			}
		}
	}
	return false
}

// samePath accepts repo-relative and bare-name mentions of the same file,
// so "auth.go" matches "internal/auth/auth.go" and vice versa.
func samePath(a, b string) bool {
	a = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(a)), "./")
	b = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(b)), "./")
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return strings.HasSuffix(a, "/"+b) || strings.HasSuffix(b, "/"+a)
}

// budgetFor resolves the effective budget. A caller-set max replaces the
// configured pair wholesale so a small request cap is not eaten by the
// default reserve.
func (s *Service) budgetFor(q Query) budget.Budget {
	b := budget.Budget{
		MaxTokens:     s.cfg.MaxTokens,
		ReserveTokens: s.cfg.ReserveTokens,
		Priority:      budget.Priority(s.cfg.Priority),
	}
	if q.MaxTokens > 0 {
		b.MaxTokens = q.MaxTokens
		b.ReserveTokens = q.ReserveTokens
	} else if q.ReserveTokens > 0 {
		b.ReserveTokens = q.ReserveTokens
	}
	if q.Priority != "" {
		b.Priority = budget.Priority(q.Priority)
	}
	return b
}

func (s *Service) effectiveTopK(q Query) int {
	topK := q.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	switch q.Depth {
	case DepthShallow:
		topK = (topK + 1) / 2
		if topK < minShallowTopK {
			topK = minShallowTopK
		}
	case DepthDeep:
		topK *= 2
		if topK > maxDeepTopK {
			topK = maxDeepTopK
		}
	}
	return topK
}

func (s *Service) coherenceParams() coherence.Params {
	return coherence.Params{
		Threshold:  s.cfg.CoherenceThreshold,
		MaxPenalty: s.cfg.CoherenceMaxPenalty,
	}
}

func (s *Service) shortCircuitConfidence() float64 {
	if s.cfg.ShortCircuitConfidence > 0 {
		return s.cfg.ShortCircuitConfidence
	}
	return symbols.DefaultMinShortCircuitConfidence
}

// Symbols answers a direct name/kind lookup against the cached table.
func (s *Service) Symbols(ctx context.Context, name string, kind symbols.Kind) (symbols.LookupResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return symbols.LookupResult{}, fmt.Errorf("%w: symbol name must not be empty", ErrInvalidQuery)
	}
	if kind != "" && !kind.Valid() {
		return symbols.LookupResult{}, fmt.Errorf("%w: unknown symbol kind %q", ErrInvalidQuery, kind)
	}
	table, err := s.cache.Get(ctx, s.workspace)
	if err != nil {
		return symbols.LookupResult{}, fmt.Errorf("load symbol table: %w", err)
	}
	return symbols.Lookup(table, symbols.Pattern{Name: name, Kind: kind}), nil
}

// Feedback records whether a delivered pack helped. Counters and the last
// outcome are the only fields touched; ranking keeps reading the evidence
// instead of being nudged per report.
func (s *Service) Feedback(packID, outcome string) (pack.ContextPack, error) {
	packID = strings.TrimSpace(packID)
	if packID == "" {
		return pack.ContextPack{}, fmt.Errorf("%w: pack id must not be empty", ErrInvalidQuery)
	}
	if !pack.ValidOutcome(outcome) {
		return pack.ContextPack{}, fmt.Errorf("%w: outcome must be %q or %q", ErrInvalidQuery, pack.OutcomeSuccess, pack.OutcomeFailure)
	}
	return s.store.RecordOutcome(s.repoID, s.workspace, packID, outcome)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
