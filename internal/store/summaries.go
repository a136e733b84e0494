package store

import (
	"context"
	"fmt"
)

// ArchiveCluster atomically replaces a cluster of active memories with
// one summary record. The summary and the removal of its sources land in
// a single snapshot rename, so a summary never exists without its sources
// having been archived or vice versa. When the SQLite archive is enabled
// the source rows are retained there in the same operation.
func (s *Store) ArchiveCluster(ctx context.Context, person, summaryText string, sourceIDs []string) (SummaryRecord, error) {
	if len(sourceIDs) == 0 {
		return SummaryRecord{}, fmt.Errorf("no source ids")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.persons[person]
	if !ok {
		return SummaryRecord{}, fmt.Errorf("unknown person %q", person)
	}

	byID := make(map[string]*StoredMemory, len(data.Memories))
	for _, m := range data.Memories {
		byID[m.ID] = m
	}
	sources := make([]*StoredMemory, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		m, found := byID[id]
		if !found {
			return SummaryRecord{}, fmt.Errorf("source memory %s not active for %s", id, person)
		}
		sources = append(sources, m)
	}

	now := s.now()
	record := &SummaryRecord{
		ID:          s.newID(),
		Person:      person,
		SourceIDs:   append([]string(nil), sourceIDs...),
		SummaryText: summaryText,
		CreatedAt:   now,
	}

	var tx *archiveTx
	if s.archive != nil {
		var err error
		tx, err = s.archive.begin(ctx)
		if err != nil {
			return SummaryRecord{}, fmt.Errorf("beginning archive transaction: %w", err)
		}
		if err := tx.insertSummary(record); err != nil {
			tx.rollback()
			return SummaryRecord{}, fmt.Errorf("archiving summary: %w", err)
		}
		for _, m := range sources {
			if err := tx.insertMemory(m, record.ID, now); err != nil {
				tx.rollback()
				return SummaryRecord{}, fmt.Errorf("archiving memory %s: %w", m.ID, err)
			}
		}
	}

	for _, m := range sources {
		s.removeMemoryLocked(person, m)
	}
	data.Summaries = append(data.Summaries, record)

	if err := s.commitLocked(); err != nil {
		if tx != nil {
			tx.rollback()
		}
		return SummaryRecord{}, err
	}
	if tx != nil {
		if err := tx.commit(); err != nil {
			// The snapshot transition already happened; only the archive
			// retention copy is lost.
			return *record, fmt.Errorf("committing archive transaction: %w", err)
		}
	}
	return *record, nil
}

// ListSummaries returns copies of the person's summary records.
func (s *Store) ListSummaries(person string) []SummaryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.persons[person]
	if !ok {
		return nil
	}
	out := make([]SummaryRecord, 0, len(data.Summaries))
	for _, sum := range data.Summaries {
		out = append(out, *sum)
	}
	return out
}
