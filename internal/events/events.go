// Package events provides an append-only JSONL audit log for memory
// lifecycle transitions. Values are never logged, only keys, reasons,
// and counts.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event types emitted by the memory engine and background jobs.
const (
	TypeSave        = "save"
	TypeAsk         = "ask"
	TypeReject      = "reject"
	TypeExpire      = "expire"
	TypeConsolidate = "consolidate"
	TypeError       = "error"
)

// Record is a single log line.
type Record struct {
	TS     int64  `json:"ts"`
	Type   string `json:"type"`
	Person string `json:"person,omitempty"`
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason,omitempty"`
	Count  int    `json:"count,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Log appends records to a JSONL file. Safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Open prepares a log writing to path. The file is created on first
// append.
func Open(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Append writes one record, stamping it with the current time in
// milliseconds.
func (l *Log) Append(rec Record) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.TS = l.now().UnixMilli()
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ReadAll returns every record in the log, oldest first. A missing file
// yields an empty slice.
func (l *Log) ReadAll() ([]Record, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}

	var records []Record
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			// Skip a torn trailing line from an interrupted write.
			break
		}
		records = append(records, rec)
	}
	return records, nil
}
