package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nudgeloop/internal/nudge"
	logx "nudgeloop/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <path>                (the collection, one JSON array, atomic rewrite)
//   - <prefix>.fires.jsonl  (append-only fire log)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	path     string
	fireFile *os.File
	firePath string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	firePath := prefix + ".fires.jsonl"
	ff, err := os.OpenFile(firePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:      log,
		path:     path,
		fireFile: ff,
		firePath: firePath,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fireFile == nil {
		return nil
	}
	err := s.fireFile.Close()
	s.fireFile = nil
	return err
}

// LoadNudges returns (nil, nil) when the document does not exist yet; the
// caller decides whether that means "seed defaults".
func (s *fileStore) LoadNudges(ctx context.Context) ([]nudge.Nudge, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []nudge.Nudge
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SaveNudges rewrites the whole document via temp file + rename, so a crash
// mid-write never leaves a truncated collection behind.
func (s *fileStore) SaveNudges(ctx context.Context, items []nudge.Nudge) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if items == nil {
		items = []nudge.Nudge{}
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) AppendFireEvent(ctx context.Context, e FireEvent) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fireFile == nil {
		return errors.New("fire log closed")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return json.NewEncoder(s.fireFile).Encode(e)
}

func (s *fileStore) FireEventsSince(ctx context.Context, since time.Time) ([]FireEvent, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.firePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []FireEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e FireEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn trailing line after a crash is expected; skip it.
			continue
		}
		if e.At.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
