package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ArchivedMemory is a consolidated source record retained for audit and
// export after its cluster was summarized.
type ArchivedMemory struct {
	ID         string    `json:"id"`
	Person     string    `json:"person"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Risk       string    `json:"risk_tier"`
	CreatedAt  time.Time `json:"created_at"`
	ArchivedAt time.Time `json:"archived_at"`
	SummaryID  string    `json:"summary_id"`
}

// Archive is the SQLite retention store for consolidated records.
type Archive struct {
	db   *sql.DB
	path string
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS archived_memories (
	id          TEXT PRIMARY KEY,
	person      TEXT NOT NULL,
	type        TEXT NOT NULL,
	key         TEXT NOT NULL,
	value       TEXT NOT NULL,
	confidence  REAL NOT NULL,
	risk_tier   TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	archived_at TEXT NOT NULL,
	summary_id  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archived_person ON archived_memories(person);

CREATE TABLE IF NOT EXISTS summaries (
	id           TEXT PRIMARY KEY,
	person       TEXT NOT NULL,
	summary_text TEXT NOT NULL,
	source_count INTEGER NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_person ON summaries(person);
`

// OpenArchive opens (or creates) the archive database.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive schema: %w", err)
	}
	return &Archive{db: db, path: path}, nil
}

// Close closes the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

type archiveTx struct {
	tx *sql.Tx
}

func (a *Archive) begin(ctx context.Context) (*archiveTx, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &archiveTx{tx: tx}, nil
}

func (t *archiveTx) insertSummary(rec *SummaryRecord) error {
	_, err := t.tx.Exec(
		`INSERT INTO summaries (id, person, summary_text, source_count, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Person, rec.SummaryText, len(rec.SourceIDs), rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (t *archiveTx) insertMemory(m *StoredMemory, summaryID string, archivedAt time.Time) error {
	_, err := t.tx.Exec(
		`INSERT INTO archived_memories (id, person, type, key, value, confidence, risk_tier, created_at, archived_at, summary_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Person, string(m.Type), m.Key, m.Value, m.Confidence, string(m.Risk),
		m.CreatedAt.UTC().Format(time.RFC3339Nano), archivedAt.UTC().Format(time.RFC3339Nano), summaryID,
	)
	return err
}

func (t *archiveTx) commit() error   { return t.tx.Commit() }
func (t *archiveTx) rollback() error { return t.tx.Rollback() }

// ListByPerson returns all archived rows for a person.
func (a *Archive) ListByPerson(ctx context.Context, person string) ([]ArchivedMemory, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, person, type, key, value, confidence, risk_tier, created_at, archived_at, summary_id
		 FROM archived_memories WHERE person = ? ORDER BY archived_at, id`,
		person,
	)
	if err != nil {
		return nil, fmt.Errorf("querying archived memories: %w", err)
	}
	defer rows.Close()

	var out []ArchivedMemory
	for rows.Next() {
		var m ArchivedMemory
		var createdAt, archivedAt string
		if err := rows.Scan(&m.ID, &m.Person, &m.Type, &m.Key, &m.Value, &m.Confidence, &m.Risk, &createdAt, &archivedAt, &m.SummaryID); err != nil {
			return nil, fmt.Errorf("scanning archived memory: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		m.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archivedAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating archived memories: %w", err)
	}
	return out, nil
}

// DeletePerson removes every archived row and summary for a person.
func (a *Archive) DeletePerson(ctx context.Context, person string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM archived_memories WHERE person = ?`, person); err != nil {
		return fmt.Errorf("deleting archived memories: %w", err)
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM summaries WHERE person = ?`, person); err != nil {
		return fmt.Errorf("deleting archived summaries: %w", err)
	}
	return nil
}

// Count returns the number of archived memory rows.
func (a *Archive) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting archived memories: %w", err)
	}
	return n, nil
}
