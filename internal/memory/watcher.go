package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces rapid editor write bursts into one reindex.
const watchDebounce = 500 * time.Millisecond

// Watcher reindexes memory files as they change on disk, so edits made
// outside the agent show up in search without a restart.
type Watcher struct {
	ix    *Index
	dir   string
	owner string
	scope string
	fsw   *fsnotify.Watcher
}

// NewWatcher watches dir for markdown changes, indexing as shared global.
func NewWatcher(ix *Index, dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{ix: ix, dir: dir, owner: OwnerShared, scope: ScopeGlobal, fsw: fsw}, nil
}

// Run blocks processing events until ctx cancels.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	pending := map[string]struct{}{}
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
				continue
			}
			pending[ev.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			for path := range pending {
				w.reindex(ctx, path)
			}
			pending = map[string]struct{}{}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("memory watcher error", "error", err)
		}
	}
}

func (w *Watcher) reindex(ctx context.Context, path string) {
	source := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted file: clear its chunks.
			if err := w.ix.IndexFile(ctx, source, "", w.owner, w.scope, ""); err != nil {
				slog.Warn("failed to clear deleted memory file", "source", source, "error", err)
			}
			return
		}
		slog.Warn("failed to read changed memory file", "source", source, "error", err)
		return
	}
	if err := w.ix.IndexFileWithEmbeddings(ctx, source, string(data), w.owner, w.scope, ""); err != nil {
		slog.Warn("failed to reindex memory file", "source", source, "error", err)
		return
	}
	slog.Debug("memory file reindexed", "source", source)
}
