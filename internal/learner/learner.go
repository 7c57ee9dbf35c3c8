// Package learner records per-request execution metrics and answers
// "how did similar tasks go?" with simple token-overlap retrieval.
package learner

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"
)

// Outcomes for a recorded execution.
const (
	OutcomeSuccess       = "success"
	OutcomeError         = "error"
	OutcomeMaxIterations = "max_iterations"
)

// Record is one agent run's metrics.
type Record struct {
	TaskExcerpt string        `json:"taskExcerpt"`
	Duration    time.Duration `json:"durationMs"`
	Iterations  int           `json:"iterations"`
	ToolCalls   int           `json:"toolCalls"`
	TokenUsage  int           `json:"tokenUsage"`
	Outcome     string        `json:"outcome"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Recommendation aggregates the most similar past runs.
type Recommendation struct {
	SampleSize    int
	AvgDuration   time.Duration
	AvgIterations float64 // 1 decimal
	AvgToolCalls  float64 // 1 decimal
	SuccessRate   float64 // 2 decimals
	Warnings      []string
}

// topN is how many similar records feed a recommendation.
const topN = 10

// Learner stores records in the relational store, falling back to an
// append-only JSONL file when no database is available.
type Learner struct {
	conn     *sql.DB
	filePath string
}

// New builds a database-backed learner.
func New(conn *sql.DB) *Learner { return &Learner{conn: conn} }

// NewFileBacked builds the JSONL fallback used when the database is down.
func NewFileBacked(path string) *Learner { return &Learner{filePath: path} }

// Record appends one execution record. Errors are returned but callers
// treat recording as fire-and-forget.
func (l *Learner) Record(ctx context.Context, r Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if l.conn != nil {
		_, err := l.conn.ExecContext(ctx,
			`INSERT INTO learner_records (task_excerpt, duration_ms, iterations, tool_calls, token_usage, outcome, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.TaskExcerpt, r.Duration.Milliseconds(), r.Iterations, r.ToolCalls,
			r.TokenUsage, r.Outcome, r.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert learner record: %w", err)
		}
		return nil
	}

	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open learner log: %w", err)
	}
	defer f.Close()
	line, err := json.Marshal(fileRecord{
		TaskExcerpt: r.TaskExcerpt,
		DurationMs:  r.Duration.Milliseconds(),
		Iterations:  r.Iterations,
		ToolCalls:   r.ToolCalls,
		TokenUsage:  r.TokenUsage,
		Outcome:     r.Outcome,
		CreatedAt:   r.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

type fileRecord struct {
	TaskExcerpt string `json:"taskExcerpt"`
	DurationMs  int64  `json:"durationMs"`
	Iterations  int    `json:"iterations"`
	ToolCalls   int    `json:"toolCalls"`
	TokenUsage  int    `json:"tokenUsage"`
	Outcome     string `json:"outcome"`
	CreatedAt   int64  `json:"createdAt"`
}

// Recommend aggregates the top similar records for a task. Returns nil when
// nothing relevant is stored.
func (l *Learner) Recommend(ctx context.Context, task string) (*Recommendation, error) {
	records, err := l.all(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	queryTokens := similarityTokens(task)
	type scored struct {
		rec     Record
		overlap int
	}
	var candidates []scored
	for _, r := range records {
		candidates = append(candidates, scored{rec: r, overlap: overlap(queryTokens, similarityTokens(r.TaskExcerpt))})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].rec.CreatedAt.After(candidates[j].rec.CreatedAt)
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	n := len(candidates)
	var durSum time.Duration
	var iterSum, toolSum, successes int
	for _, c := range candidates {
		durSum += c.rec.Duration
		iterSum += c.rec.Iterations
		toolSum += c.rec.ToolCalls
		if c.rec.Outcome == OutcomeSuccess {
			successes++
		}
	}

	rec := &Recommendation{
		SampleSize:    n,
		AvgDuration:   durSum / time.Duration(n),
		AvgIterations: round1(float64(iterSum) / float64(n)),
		AvgToolCalls:  round1(float64(toolSum) / float64(n)),
		SuccessRate:   round2(float64(successes) / float64(n)),
	}
	if rec.AvgIterations > 3 {
		rec.Warnings = append(rec.Warnings, "consider breaking into smaller steps")
	}
	if rec.SuccessRate < 0.7 {
		rec.Warnings = append(rec.Warnings, "low success rate - be careful")
	}
	return rec, nil
}

func (l *Learner) all(ctx context.Context) ([]Record, error) {
	if l.conn != nil {
		rows, err := l.conn.QueryContext(ctx,
			`SELECT task_excerpt, duration_ms, iterations, tool_calls, token_usage, outcome, created_at
			 FROM learner_records ORDER BY created_at DESC`)
		if err != nil {
			return nil, fmt.Errorf("load learner records: %w", err)
		}
		defer rows.Close()

		var out []Record
		for rows.Next() {
			var r Record
			var durMs, createdMs int64
			if err := rows.Scan(&r.TaskExcerpt, &durMs, &r.Iterations, &r.ToolCalls,
				&r.TokenUsage, &r.Outcome, &createdMs); err != nil {
				return nil, err
			}
			r.Duration = time.Duration(durMs) * time.Millisecond
			r.CreatedAt = time.UnixMilli(createdMs)
			out = append(out, r)
		}
		return out, rows.Err()
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Record
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var fr fileRecord
		if err := json.Unmarshal([]byte(line), &fr); err != nil {
			continue
		}
		out = append(out, Record{
			TaskExcerpt: fr.TaskExcerpt,
			Duration:    time.Duration(fr.DurationMs) * time.Millisecond,
			Iterations:  fr.Iterations,
			ToolCalls:   fr.ToolCalls,
			TokenUsage:  fr.TokenUsage,
			Outcome:     fr.Outcome,
			CreatedAt:   time.UnixMilli(fr.CreatedAt),
		})
	}
	return out, nil
}

// similarityTokens extracts lowercased alphanumeric tokens longer than two
// characters.
func similarityTokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 2 {
			out[cur.String()] = struct{}{}
		}
		cur.Reset()
	}
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
