// Package statuslog is the append-only verification log: one JSON
// object per domain per run, newline-delimited, never rewritten.
package statuslog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/asoos/domain-sync/pkg/model"
)

type Log struct {
	mu sync.Mutex
	f  *os.File
}

// Open opens (or creates) the log file for appending. Appends are
// serialized through a single writer so concurrent domain results never
// interleave mid-line.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create statuslog directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open statuslog %s: %w", path, err)
	}

	return &Log{f: f}, nil
}

func (l *Log) Append(status model.Status) error {
	line, err := json.Marshal(status)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.f.Write(line)
	return err
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
