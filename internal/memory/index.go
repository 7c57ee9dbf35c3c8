package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
)

// Ownership and scope values for stored chunks.
const (
	OwnerShared = "shared"

	ScopeGlobal = "global"
	ScopeUser   = "user"
	ScopeFamily = "family"
)

// Scope narrows search visibility to one user or one family.
type Scope struct {
	Kind string // "user" or "family"
	ID   string
}

// Result is one retrieved chunk with its relevance score.
type Result struct {
	Source    string
	Heading   string
	Content   string
	UpdatedAt time.Time
	Score     float64
}

const (
	// rrfK is the Reciprocal Rank Fusion constant.
	rrfK = 60
	// decayHalfLife is the temporal decay half-life for non-evergreen chunks.
	decayHalfLife = 30 * 24 * time.Hour
	// evergreenSource never decays.
	evergreenSource = "MEMORY.md"
)

// Index stores and retrieves memory chunks through the relational store.
// An embedder is optional; without one, hybrid search degrades to keyword.
type Index struct {
	conn     *sql.DB
	embedder Embedder
	now      func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithEmbedder enables the vector branch.
func WithEmbedder(e Embedder) Option {
	return func(ix *Index) { ix.embedder = e }
}

// WithNow overrides the clock, for decay tests.
func WithNow(now func() time.Time) Option {
	return func(ix *Index) { ix.now = now }
}

func NewIndex(conn *sql.DB, opts ...Option) *Index {
	ix := &Index{conn: conn, now: time.Now}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// IndexFile replaces all chunks for (source, owner, scope) with fresh ones
// split from content, in a single transaction.
func (ix *Index) IndexFile(ctx context.Context, source, content, owner, scope, scopeID string) error {
	return ix.indexFile(ctx, source, content, owner, scope, scopeID, false)
}

// IndexFileWithEmbeddings is IndexFile plus a stored vector per chunk.
func (ix *Index) IndexFileWithEmbeddings(ctx context.Context, source, content, owner, scope, scopeID string) error {
	if ix.embedder == nil {
		return ix.indexFile(ctx, source, content, owner, scope, scopeID, false)
	}
	return ix.indexFile(ctx, source, content, owner, scope, scopeID, true)
}

func (ix *Index) indexFile(ctx context.Context, source, content, owner, scope, scopeID string, embed bool) error {
	if owner == "" {
		owner = OwnerShared
	}
	if scope == "" {
		scope = ScopeGlobal
	}
	chunks := SplitMarkdown(source, content)

	// Embed outside the transaction; the write lock stays short.
	var vectors [][]byte
	if embed {
		vectors = make([][]byte, len(chunks))
		for i, c := range chunks {
			vec, err := ix.embedder.Embed(ctx, c.Heading+"\n"+c.Content)
			if err != nil {
				slog.Warn("embedding failed, storing chunk without vector",
					"source", source, "heading", c.Heading, "error", err)
				continue
			}
			vectors[i] = serializeEmbedding(vec)
		}
	}

	tx, err := ix.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_chunks WHERE source = ? AND owner = ? AND scope = ?`,
		source, owner, scope); err != nil {
		return fmt.Errorf("clear old chunks: %w", err)
	}

	now := ix.now().UnixMilli()
	for i, c := range chunks {
		var emb any
		if embed && vectors[i] != nil {
			emb = vectors[i]
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_chunks (source, heading, content, updated_at, embedding, owner, scope, scope_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			source, c.Heading, c.Content, now, emb, owner, scope, scopeID); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}

	slog.Debug("indexed memory file", "source", source, "owner", owner, "chunks", len(chunks))
	return nil
}

// scopeFilter builds the visibility predicate for a search. A nil scope
// sees everything; unknown kinds see only shared global chunks.
func scopeFilter(scope *Scope) (string, []any) {
	if scope == nil {
		return "1=1", nil
	}
	switch scope.Kind {
	case ScopeUser:
		return `((owner = 'shared' AND scope = 'global') OR
			(owner = ? AND scope = 'user' AND scope_id = ?))`, []any{scope.ID, scope.ID}
	case ScopeFamily:
		return `((owner = 'shared' AND scope = 'global') OR
			(owner = 'shared' AND scope = 'family' AND scope_id = ?))`, []any{scope.ID}
	default:
		return `(owner = 'shared' AND scope = 'global')`, nil
	}
}

// SearchKeyword runs a full-text match over heading+content, rescored with
// temporal decay. Chunks from MEMORY.md are evergreen and never decay.
func (ix *Index) SearchKeyword(ctx context.Context, query string, limit int, scope *Scope) ([]Result, error) {
	start := time.Now()
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	filter, args := scopeFilter(scope)
	q := fmt.Sprintf(`
		SELECT c.source, c.heading, c.content, c.updated_at, f.rank
		FROM memory_fts f
		JOIN memory_chunks c ON c.id = f.rowid
		WHERE memory_fts MATCH ? AND %s
		ORDER BY f.rank
		LIMIT ?`, filter)

	rows, err := ix.conn.QueryContext(ctx, q, append([]any{match}, append(args, limit*5)...)...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	now := ix.now()
	var results []Result
	for rows.Next() {
		var r Result
		var updatedMs int64
		var rank float64
		if err := rows.Scan(&r.Source, &r.Heading, &r.Content, &updatedMs, &rank); err != nil {
			return nil, err
		}
		r.UpdatedAt = time.UnixMilli(updatedMs)

		// FTS rank is bm25, lower is better. Negate so higher wins.
		base := -rank
		decay := 1.0
		if r.Source != evergreenSource {
			age := now.Sub(r.UpdatedAt)
			decay = math.Pow(0.5, float64(age)/float64(decayHalfLife))
		}
		r.Score = base * decay
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	slog.Debug("keyword search", "query", match, "results", len(results), "duration", time.Since(start))
	return results, nil
}

// SearchVector ranks all embedded chunks by cosine similarity to the query,
// keeping the top 2x limit.
func (ix *Index) SearchVector(ctx context.Context, query string, limit int, scope *Scope) ([]Result, error) {
	if ix.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filter, args := scopeFilter(scope)
	q := fmt.Sprintf(`
		SELECT source, heading, content, updated_at, embedding
		FROM memory_chunks
		WHERE embedding IS NOT NULL AND %s`, filter)

	rows, err := ix.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var updatedMs int64
		var blob []byte
		if err := rows.Scan(&r.Source, &r.Heading, &r.Content, &updatedMs, &blob); err != nil {
			return nil, err
		}
		vec, err := deserializeEmbedding(blob)
		if err != nil {
			continue
		}
		r.UpdatedAt = time.UnixMilli(updatedMs)
		r.Score = cosineSimilarity(queryVec, vec)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit*2 {
		results = results[:limit*2]
	}
	return results, nil
}

// SearchHybrid fuses the keyword and vector branches with Reciprocal Rank
// Fusion. A failing or absent vector branch degrades to keyword-only.
func (ix *Index) SearchHybrid(ctx context.Context, query string, limit int, scope *Scope) ([]Result, error) {
	keyword, err := ix.SearchKeyword(ctx, query, limit*2, scope)
	if err != nil {
		return nil, err
	}
	if ix.embedder == nil {
		if len(keyword) > limit {
			keyword = keyword[:limit]
		}
		return keyword, nil
	}

	vector, err := ix.SearchVector(ctx, query, limit, scope)
	if err != nil {
		slog.Warn("vector search failed, using keyword results", "error", err)
		if len(keyword) > limit {
			keyword = keyword[:limit]
		}
		return keyword, nil
	}

	fused := fuseRRF(keyword, vector)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// fuseRRF merges ranked lists by Reciprocal Rank Fusion:
// score(item) = sum over lists of 1 / (k + rank + 1).
func fuseRRF(lists ...[]Result) []Result {
	type fusedEntry struct {
		result Result
		score  float64
		order  int
	}
	byKey := make(map[string]*fusedEntry)
	order := 0
	for _, list := range lists {
		for rank, r := range list {
			key := r.Source + "\x00" + r.Heading + "\x00" + r.Content
			e, ok := byKey[key]
			if !ok {
				e = &fusedEntry{result: r, order: order}
				order++
				byKey[key] = e
			}
			e.score += 1 / float64(rrfK+rank+1)
		}
	}

	entries := make([]*fusedEntry, 0, len(byKey))
	for _, e := range byKey {
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	out := make([]Result, len(entries))
	for i, e := range entries {
		out[i] = e.result
		out[i].Score = e.score
	}
	return out
}

// buildMatchQuery sanitizes free text into an FTS OR-query of lowercased
// alphanumeric words with length >= 3. Empty output means nothing to match.
func buildMatchQuery(query string) string {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}
