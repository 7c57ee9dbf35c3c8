package sessions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/januslabs/janus/internal/providers"
)

// Store manages session transcripts under one directory. Loaded sessions
// are cached; disk is read at most once per key.
type Store struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Session
}

// NewStore opens a session store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{dir: dir, cache: make(map[string]*Session)}, nil
}

// GetOrCreate returns the cached session for key, loading its transcript
// from disk on first access or starting a fresh one.
func (s *Store) GetOrCreate(key string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.cache[key]; ok {
		return sess
	}
	sess := s.load(key)
	if sess == nil {
		now := time.Now()
		sess = &Session{Key: key, Created: now, Updated: now}
	}
	s.cache[key] = sess
	return sess
}

// Append adds a message to the session and persists the transcript.
func (s *Store) Append(key string, msg providers.Message) error {
	s.mu.Lock()
	sess, ok := s.cache[key]
	if !ok {
		if sess = s.load(key); sess == nil {
			now := time.Now()
			sess = &Session{Key: key, Created: now, Updated: now}
		}
		s.cache[key] = sess
	}
	sess.Messages = append(sess.Messages, msg)
	sess.Updated = time.Now()
	s.mu.Unlock()

	return s.Save(key)
}

// History returns a copy of the session's messages with any leading
// orphan tool results removed.
func (s *Store) History(key string) []providers.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.cache[key]
	if !ok {
		return nil
	}
	msgs := make([]providers.Message, len(sess.Messages))
	copy(msgs, sess.Messages)
	return StripOrphanToolMessages(msgs)
}

// Summary returns the stored rolling summary, empty if none.
func (s *Store) Summary(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.cache[key]; ok {
		return sess.Summary
	}
	return ""
}

// Summarize records a new rolling summary and compacts the transcript down
// to the most recent keepLast messages.
func (s *Store) Summarize(key, summary string, keepLast int) error {
	s.mu.Lock()
	sess, ok := s.cache[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	sess.Summary = summary
	if keepLast >= 0 && len(sess.Messages) > keepLast {
		kept := make([]providers.Message, keepLast)
		copy(kept, sess.Messages[len(sess.Messages)-keepLast:])
		sess.Messages = StripOrphanToolMessages(kept)
	}
	sess.Updated = time.Now()
	s.mu.Unlock()

	return s.Save(key)
}

// AccumulateTokens adds usage from a completed run to the session totals.
func (s *Store) AccumulateTokens(key string, input, output int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.cache[key]; ok {
		sess.InputTokens += input
		sess.OutputTokens += output
	}
}

// Reset clears a session's transcript and summary, keeping the file.
func (s *Store) Reset(key string) error {
	s.mu.Lock()
	if sess, ok := s.cache[key]; ok {
		sess.Messages = nil
		sess.Summary = ""
		sess.Updated = time.Now()
	}
	s.mu.Unlock()
	return s.Save(key)
}

// Delete removes a session from cache and disk.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Info is a lightweight session descriptor for listing.
type Info struct {
	Key          string
	MessageCount int
	Updated      time.Time
}

// List reads metadata from every transcript on disk, newest first.
func (s *Store) List() []Info {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var out []Info
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
			continue
		}
		meta, ok := readMetadata(filepath.Join(s.dir, f.Name()))
		if !ok {
			continue
		}
		out = append(out, Info{
			Key:          meta.Key,
			MessageCount: meta.MessageCount,
			Updated:      time.UnixMilli(meta.Updated),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Updated.After(out[j].Updated) })
	return out
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".jsonl")
}

// Save writes the full transcript atomically: metadata line, then one line
// per message, into a temp file renamed over the target.
func (s *Store) Save(key string) error {
	s.mu.RLock()
	sess, ok := s.cache[key]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	snapshot := *sess
	snapshot.Messages = make([]providers.Message, len(sess.Messages))
	copy(snapshot.Messages, sess.Messages)
	s.mu.RUnlock()

	tmp, err := os.CreateTemp(s.dir, sanitizeKey(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp transcript: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	meta := metadata{
		Type:         "metadata",
		Key:          snapshot.Key,
		Created:      snapshot.Created.UnixMilli(),
		Updated:      snapshot.Updated.UnixMilli(),
		MessageCount: len(snapshot.Messages),
		Summary:      snapshot.Summary,
		InputTokens:  snapshot.InputTokens,
		OutputTokens: snapshot.OutputTokens,
	}
	if err := enc.Encode(meta); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata: %w", err)
	}
	for _, m := range snapshot.Messages {
		if err := enc.Encode(m); err != nil {
			tmp.Close()
			return fmt.Errorf("write message: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		return fmt.Errorf("replace transcript: %w", err)
	}
	cleanup = false
	return nil
}

// load reads a transcript from disk. A missing file or corrupt metadata
// line yields nil so the caller starts fresh; individual bad message lines
// are skipped with a warning.
func (s *Store) load(key string) *Session {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	if !scanner.Scan() {
		return nil
	}
	var meta metadata
	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil || meta.Type != "metadata" {
		slog.Warn("corrupt session metadata, starting fresh", "key", key)
		return nil
	}

	sess := &Session{
		Key:          key,
		Summary:      meta.Summary,
		Created:      time.UnixMilli(meta.Created),
		Updated:      time.UnixMilli(meta.Updated),
		InputTokens:  meta.InputTokens,
		OutputTokens: meta.OutputTokens,
	}
	line := 1
	for scanner.Scan() {
		line++
		var msg providers.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			slog.Warn("skipping bad transcript line", "key", key, "line", line)
			continue
		}
		sess.Messages = append(sess.Messages, msg)
	}
	sess.Messages = StripOrphanToolMessages(sess.Messages)
	return sess
}

func readMetadata(path string) (metadata, bool) {
	f, err := os.Open(path)
	if err != nil {
		return metadata{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return metadata{}, false
	}
	var meta metadata
	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil || meta.Type != "metadata" {
		return metadata{}, false
	}
	return meta, true
}
