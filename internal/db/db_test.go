package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDirAndAppliesMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "janus.db")

	d, err := Open(ctx, path)
	require.NoError(t, err)
	defer d.Close()

	v, err := d.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, len(migrations), v)

	// Reopen: no migrations re-applied, version stable.
	require.NoError(t, d.Close())
	d2, err := Open(ctx, path)
	require.NoError(t, err)
	defer d2.Close()
	v2, err := d2.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, v, v2)
}

func TestForeignKeyCascade(t *testing.T) {
	ctx := context.Background()
	d, err := Open(ctx, filepath.Join(t.TempDir(), "janus.db"))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Conn().ExecContext(ctx,
		`INSERT INTO cron_jobs (id, name, schedule_kind, schedule_value, task, created_at) VALUES ('j1', 'test', 'every', '60000', 'do it', 0)`)
	require.NoError(t, err)
	_, err = d.Conn().ExecContext(ctx,
		`INSERT INTO cron_runs (job_id, status, started_at, duration_ms) VALUES ('j1', 'ok', 0, 5)`)
	require.NoError(t, err)

	_, err = d.Conn().ExecContext(ctx, `DELETE FROM cron_jobs WHERE id = 'j1'`)
	require.NoError(t, err)

	var n int
	require.NoError(t, d.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM cron_runs`).Scan(&n))
	require.Equal(t, 0, n)
}

func TestFTSTriggersStayInSync(t *testing.T) {
	ctx := context.Background()
	d, err := Open(ctx, filepath.Join(t.TempDir(), "janus.db"))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Conn().ExecContext(ctx,
		`INSERT INTO memory_chunks (source, heading, content, updated_at) VALUES ('MEMORY.md', 'Projects', 'janus runtime rewrite', 0)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, d.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_fts WHERE memory_fts MATCH 'runtime'`).Scan(&n))
	require.Equal(t, 1, n)

	_, err = d.Conn().ExecContext(ctx, `DELETE FROM memory_chunks`)
	require.NoError(t, err)
	require.NoError(t, d.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_fts WHERE memory_fts MATCH 'runtime'`).Scan(&n))
	require.Equal(t, 0, n)
}
