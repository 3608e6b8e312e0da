// Package jsonlog keeps the opportunity journal as a bounded JSON array on
// local disk.
package jsonlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// MaxEntries caps the journal. Appending beyond it drops the oldest entry.
const MaxEntries = 1000

const (
	singleFile = "opportunities.json"
	multiFile  = "opportunities-multi.json"
)

// FileName returns the journal file name for a monitor watching assetCount
// assets.
func FileName(assetCount int) string {
	if assetCount > 1 {
		return multiFile
	}
	return singleFile
}

// Log is a file-backed domain.OpportunityLog. The whole array is rewritten
// on every append through a temp file and rename, so readers never observe a
// partially written journal.
type Log struct {
	mu      sync.RWMutex
	path    string
	max     int
	entries []domain.Opportunity
	logger  *slog.Logger
}

var _ domain.OpportunityLog = (*Log)(nil)

// Open loads (or starts) the journal at dir/name. An unreadable or corrupt
// file is logged and replaced by an empty journal on the next append.
func Open(dir, name string, logger *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonlog: create dir: %w", err)
	}
	l := &Log{
		path:   filepath.Join(dir, name),
		max:    MaxEntries,
		logger: logger.With(slog.String("component", "opportunity_log")),
	}

	data, err := os.ReadFile(l.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("jsonlog: read %s: %w", l.path, err)
	}
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		l.logger.Warn("opportunity log is corrupt, starting fresh",
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)
		l.entries = nil
	}
	l.trim()
	return l, nil
}

// Path returns the journal file location.
func (l *Log) Path() string { return l.path }

// Append adds opp as the newest entry and persists the journal.
func (l *Log) Append(_ context.Context, opp domain.Opportunity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, opp)
	l.trim()
	if err := l.flush(); err != nil {
		return fmt.Errorf("jsonlog: append: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (l *Log) Recent(_ context.Context, limit int) ([]domain.Opportunity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Opportunity, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Snapshot returns the serialized journal, oldest first, as stored on disk.
func (l *Log) Snapshot() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.encode()
}

func (l *Log) trim() {
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
}

func (l *Log) encode() ([]byte, error) {
	entries := l.entries
	if entries == nil {
		entries = []domain.Opportunity{}
	}
	return json.MarshalIndent(entries, "", "  ")
}

// flush must be called with mu held.
func (l *Log) flush() error {
	data, err := l.encode()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
