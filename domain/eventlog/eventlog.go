// Package eventlog appends HARMFUL judgments to a line-delimited JSON file.
package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soocke/guard-overlay-go/domain/classify"
)

// Record is one line of the log.
type Record struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Stream    string `json:"stream,omitempty"`
	Text      string `json:"text"`
	Judgment  string `json:"judgment"`
	Reason    string `json:"reason,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Log is safe for concurrent use by both streams.
type Log struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	enc     *json.Encoder
	now     func() time.Time
	written int
}

// Open appends to path, creating parent directories as needed.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("event log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	l := New(f)
	l.closer = f
	return l, nil
}

// New logs to an arbitrary writer.
func New(w io.Writer) *Log {
	l := &Log{w: w, now: time.Now}
	l.enc = json.NewEncoder(w)
	l.enc.SetEscapeHTML(false)
	return l
}

// Append records j if it is HARMFUL. SAFE judgments are ignored and report false.
func (l *Log) Append(stream string, j classify.Judgment) (bool, error) {
	if l == nil || !j.Harmful() {
		return false, nil
	}
	rec := Record{
		ID:       uuid.NewString(),
		Stream:   stream,
		Text:     j.Text,
		Judgment: string(j.Verdict),
		Reason:   j.Reason,
		Source:   j.Source,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	if err := l.enc.Encode(rec); err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	l.written++
	return true, nil
}

// Written counts records appended since open.
func (l *Log) Written() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

func (l *Log) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.closer.Close()
	l.closer = nil
	return err
}
