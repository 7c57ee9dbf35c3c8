package learner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/januslabs/janus/internal/db"
)

func dbLearner(t *testing.T) *Learner {
	t.Helper()
	d, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "janus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return New(d.Conn())
}

func TestRecommendEmpty(t *testing.T) {
	l := dbLearner(t)
	rec, err := l.Recommend(context.Background(), "anything")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestRecommendAggregates(t *testing.T) {
	ctx := context.Background()
	l := dbLearner(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		outcome := OutcomeSuccess
		if i == 3 {
			outcome = OutcomeError
		}
		require.NoError(t, l.Record(ctx, Record{
			TaskExcerpt: "summarize the weekly report",
			Duration:    time.Duration(i+1) * time.Second,
			Iterations:  i + 1,
			ToolCalls:   i,
			Outcome:     outcome,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec, err := l.Recommend(ctx, "summarize report")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 4, rec.SampleSize)
	require.Equal(t, 2.5, rec.AvgIterations)
	require.Equal(t, 1.5, rec.AvgToolCalls)
	require.Equal(t, 0.75, rec.SuccessRate)
	require.InDelta(t, float64(2500*time.Millisecond), float64(rec.AvgDuration), float64(time.Millisecond))
}

func TestRecommendSimilarityRanking(t *testing.T) {
	ctx := context.Background()
	l := dbLearner(t)

	// Twelve unrelated quick successes, then slow matching failures. With
	// topN=10, similarity must pull the matching ones to the front.
	for i := 0; i < 12; i++ {
		require.NoError(t, l.Record(ctx, Record{
			TaskExcerpt: "water the garden plants",
			Duration:    time.Second,
			Iterations:  1,
			Outcome:     OutcomeSuccess,
		}))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Record(ctx, Record{
			TaskExcerpt: "deploy the billing service",
			Duration:    time.Minute,
			Iterations:  8,
			Outcome:     OutcomeError,
		}))
	}

	rec, err := l.Recommend(ctx, "deploy billing service update")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 10, rec.SampleSize)
	require.Equal(t, 8.0, rec.AvgIterations)
	require.Equal(t, 0.0, rec.SuccessRate)
	require.Contains(t, rec.Warnings, "consider breaking into smaller steps")
	require.Contains(t, rec.Warnings, "low success rate - be careful")
}

func TestFileFallback(t *testing.T) {
	ctx := context.Background()
	l := NewFileBacked(filepath.Join(t.TempDir(), "learner.jsonl"))

	require.NoError(t, l.Record(ctx, Record{
		TaskExcerpt: "check the mail",
		Duration:    2 * time.Second,
		Iterations:  2,
		Outcome:     OutcomeSuccess,
	}))
	require.NoError(t, l.Record(ctx, Record{
		TaskExcerpt: "check the mail again",
		Duration:    4 * time.Second,
		Iterations:  4,
		Outcome:     OutcomeSuccess,
	}))

	rec, err := l.Recommend(ctx, "check mail")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 2, rec.SampleSize)
	require.Equal(t, 3.0, rec.AvgIterations)
	require.Equal(t, 1.0, rec.SuccessRate)
}

func TestSimilarityTokens(t *testing.T) {
	tokens := similarityTokens("Fix the DB, fix it now!!")
	require.Contains(t, tokens, "fix")
	require.Contains(t, tokens, "the")
	require.Contains(t, tokens, "now")
	// Length <= 2 dropped.
	require.NotContains(t, tokens, "db")
	require.NotContains(t, tokens, "it")
}
