package events

import (
	"path/filepath"
	"testing"
	"time"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	l := Open(filepath.Join(t.TempDir(), "events.jsonl"))
	base := time.Unix(1700000000, 0)
	l.now = func() time.Time { return base }
	return l
}

func TestAppendAndReadAll(t *testing.T) {
	l := testLog(t)
	if err := l.Append(Record{Type: TypeSave, Person: "lisa", Key: "wohnort"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(Record{Type: TypeReject, Person: "lisa", Reason: "pii"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := l.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Type != TypeSave || records[0].Key != "wohnort" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Reason != "pii" {
		t.Errorf("unexpected second record: %+v", records[1])
	}
	if records[0].TS == 0 {
		t.Error("timestamp not stamped")
	}
}

func TestReadAllMissingFile(t *testing.T) {
	l := testLog(t)
	records, err := l.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestNilLogIsSafe(t *testing.T) {
	var l *Log
	if err := l.Append(Record{Type: TypeSave}); err != nil {
		t.Errorf("nil log append: %v", err)
	}
	if _, err := l.ReadAll(); err != nil {
		t.Errorf("nil log read: %v", err)
	}
}
