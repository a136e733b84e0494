// Package store persists personal memories, consent suggestions and
// summary records.
//
// The active state is an in-memory index keyed by person and normalized
// key, with a single JSON document as the durable snapshot. Every write
// builds the full new state and replaces the backing file atomically
// (write-temp-then-rename), so readers never observe a partially written
// file. Consolidated source records are retained in a separate SQLite
// archive. Single-writer discipline is assumed; all mutation goes through
// one mutex.
package store

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lumehq/recall/internal/extract"
	"github.com/lumehq/recall/internal/policy"
)

// ErrNotFound is returned when a fact or suggestion does not exist.
var ErrNotFound = errors.New("not found")

// StoredMemory is the durable unit. At most one active record exists per
// (person, type, normalized key); a new write to an existing key updates
// value and updatedAt rather than duplicating.
type StoredMemory struct {
	ID         string            `json:"id"`
	Person     string            `json:"person"`
	Type       policy.MemoryType `json:"type"`
	Key        string            `json:"key"`
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence"`
	Risk       policy.RiskTier   `json:"risk_tier"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// SuggestionStatus is the lifecycle state of a consent suggestion.
type SuggestionStatus string

const (
	StatusPending   SuggestionStatus = "pending"
	StatusConfirmed SuggestionStatus = "confirmed"
	StatusRejected  SuggestionStatus = "rejected"
)

// Suggestion is a candidate awaiting explicit approval. Risk and Score
// are carried along so confirmation does not re-run the pipeline.
type Suggestion struct {
	ID         string            `json:"id"`
	Person     string            `json:"person"`
	Candidate  extract.Candidate `json:"candidate"`
	Risk       policy.RiskTier   `json:"risk_tier"`
	Score      float64           `json:"score"`
	ProposedAt time.Time         `json:"proposed_at"`
	Status     SuggestionStatus  `json:"status"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// SummaryRecord is produced by the consolidator from a cluster of related
// memories. Its sources are archived in the same write.
type SummaryRecord struct {
	ID          string    `json:"id"`
	Person      string    `json:"person"`
	SourceIDs   []string  `json:"source_ids"`
	SummaryText string    `json:"summary_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Export is the data-subject portability bundle for one person.
type Export struct {
	Person      string           `json:"person"`
	ExportedAt  time.Time        `json:"exported_at"`
	Memories    []StoredMemory   `json:"memories"`
	Suggestions []Suggestion     `json:"suggestions,omitempty"`
	Summaries   []SummaryRecord  `json:"summaries,omitempty"`
	Archived    []ArchivedMemory `json:"archived,omitempty"`
}

// Stats holds maintenance counters.
type Stats struct {
	Persons            int   `json:"persons"`
	ActiveMemories     int   `json:"active_memories"`
	PendingSuggestions int   `json:"pending_suggestions"`
	Summaries          int   `json:"summaries"`
	ArchivedMemories   int64 `json:"archived_memories"`
}

type personData struct {
	Memories    []*StoredMemory  `json:"memories"`
	Suggestions []*Suggestion    `json:"suggestions,omitempty"`
	Summaries   []*SummaryRecord `json:"summaries,omitempty"`
}

type fileSnapshot struct {
	Persons map[string]*personData `json:"persons"`
}

// Config holds store configuration.
type Config struct {
	// Path is the JSON snapshot file. Required.
	Path string
	// ArchivePath enables the SQLite archive for consolidated records.
	// Empty disables archiving (sources are then simply removed).
	ArchivePath string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store owns all persisted records. Other components operate on copies
// and submit mutations through its write API.
type Store struct {
	mu      sync.Mutex
	path    string
	archive *Archive
	persons map[string]*personData
	// memIndex maps person -> type+"\x00"+normalized key -> record.
	memIndex map[string]map[string]*StoredMemory
	sugIndex map[string]*Suggestion
	entropy  *ulid.MonotonicEntropy
	now      func() time.Time
	closed   bool
}

// Open loads (or initializes) the snapshot at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		path:    cfg.Path,
		persons: make(map[string]*personData),
		entropy: ulid.Monotonic(crand.Reader, 0),
		now:     now,
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}

	if cfg.ArchivePath != "" {
		archive, err := OpenArchive(cfg.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		s.archive = archive
	}
	return s, nil
}

// Close releases the archive handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.archive != nil {
		return s.archive.Close()
	}
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.persons = make(map[string]*personData)
		s.rebuildIndex()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading store file: %w", err)
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding store file %s: %w", s.path, err)
	}
	if snap.Persons != nil {
		s.persons = snap.Persons
	} else {
		s.persons = make(map[string]*personData)
	}
	s.rebuildIndex()
	return nil
}

func (s *Store) rebuildIndex() {
	s.memIndex = make(map[string]map[string]*StoredMemory)
	s.sugIndex = make(map[string]*Suggestion)
	for person, data := range s.persons {
		idx := make(map[string]*StoredMemory, len(data.Memories))
		for _, m := range data.Memories {
			idx[indexKey(m.Type, m.Key)] = m
		}
		s.memIndex[person] = idx
		for _, sug := range data.Suggestions {
			s.sugIndex[sug.ID] = sug
		}
	}
}

// persistLocked writes the full snapshot to a temp file in the same
// directory and renames it over the old one.
func (s *Store) persistLocked() error {
	snap := fileSnapshot{Persons: s.persons}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".recall-store-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// commitLocked persists the mutated state. On failure the in-memory state
// is reloaded from the last good snapshot so callers never observe a
// half-applied mutation.
func (s *Store) commitLocked() error {
	if err := s.persistLocked(); err != nil {
		loadErr := s.load()
		if loadErr != nil {
			return fmt.Errorf("persisting store (reload also failed: %v): %w", loadErr, err)
		}
		return fmt.Errorf("persisting store: %w", err)
	}
	return nil
}

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// NormalizeKey lowercases, trims and collapses inner whitespace.
func NormalizeKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), " ")
}

func indexKey(t policy.MemoryType, key string) string {
	return string(t) + "\x00" + NormalizeKey(key)
}

func (s *Store) ensurePerson(person string) *personData {
	data, ok := s.persons[person]
	if !ok {
		data = &personData{}
		s.persons[person] = data
	}
	if _, ok := s.memIndex[person]; !ok {
		s.memIndex[person] = make(map[string]*StoredMemory)
	}
	return data
}

func expired(m *StoredMemory, now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Upsert writes a fact, enforcing the one-active-record-per-person+key
// invariant. Existing records keep their id and createdAt; value,
// confidence, risk, updatedAt and expiry are refreshed. ttl of zero means
// durable.
func (s *Store) Upsert(ctx context.Context, person string, t policy.MemoryType, key, value string, confidence float64, risk policy.RiskTier, ttl time.Duration) (StoredMemory, error) {
	if person == "" {
		return StoredMemory{}, fmt.Errorf("person is required")
	}
	if !policy.IsAllowedType(t) {
		return StoredMemory{}, fmt.Errorf("disallowed memory type %q", t)
	}
	if NormalizeKey(key) == "" {
		return StoredMemory{}, fmt.Errorf("key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expiresAt *time.Time
	if ttl > 0 {
		e := now.Add(ttl)
		expiresAt = &e
	}

	data := s.ensurePerson(person)
	ik := indexKey(t, key)
	if m, ok := s.memIndex[person][ik]; ok && !expired(m, now) {
		m.Value = value
		m.Confidence = confidence
		m.Risk = risk
		m.UpdatedAt = now
		m.ExpiresAt = expiresAt
		if err := s.commitLocked(); err != nil {
			return StoredMemory{}, err
		}
		return *m, nil
	}

	m := &StoredMemory{
		ID:         s.newID(),
		Person:     person,
		Type:       t,
		Key:        NormalizeKey(key),
		Value:      value,
		Confidence: confidence,
		Risk:       risk,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  expiresAt,
	}
	// An expired record under the same key is replaced in place.
	if old, ok := s.memIndex[person][ik]; ok {
		s.removeMemoryLocked(person, old)
	}
	data.Memories = append(data.Memories, m)
	s.memIndex[person][ik] = m
	if err := s.commitLocked(); err != nil {
		return StoredMemory{}, err
	}
	return *m, nil
}

func (s *Store) removeMemoryLocked(person string, m *StoredMemory) {
	data := s.persons[person]
	for i, cur := range data.Memories {
		if cur == m {
			data.Memories = append(data.Memories[:i], data.Memories[i+1:]...)
			break
		}
	}
	delete(s.memIndex[person], indexKey(m.Type, m.Key))
}

// ListByPerson returns copies of the person's active (non-expired) facts,
// sorted by key for deterministic output.
func (s *Store) ListByPerson(person string) []StoredMemory {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.persons[person]
	if !ok {
		return nil
	}
	now := s.now()
	out := make([]StoredMemory, 0, len(data.Memories))
	for _, m := range data.Memories {
		if expired(m, now) {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// FindFact looks up a single active fact by case-insensitive key,
// regardless of type.
func (s *Store) FindFact(person, key string) (StoredMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nk := NormalizeKey(key)
	now := s.now()
	for _, m := range s.personMemories(person) {
		if NormalizeKey(m.Key) == nk && !expired(m, now) {
			return *m, nil
		}
	}
	return StoredMemory{}, ErrNotFound
}

func (s *Store) personMemories(person string) []*StoredMemory {
	if data, ok := s.persons[person]; ok {
		return data.Memories
	}
	return nil
}

// DeleteAll erases every record for a person, including suggestions,
// summaries and archived rows (data-subject erasure). Returns the number
// of active memories removed.
func (s *Store) DeleteAll(ctx context.Context, person string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.persons[person]
	if !ok {
		return 0, nil
	}
	count := len(data.Memories)
	for _, sug := range data.Suggestions {
		delete(s.sugIndex, sug.ID)
	}
	delete(s.persons, person)
	delete(s.memIndex, person)
	if err := s.commitLocked(); err != nil {
		return 0, err
	}
	if s.archive != nil {
		if err := s.archive.DeletePerson(ctx, person); err != nil {
			return count, fmt.Errorf("erasing archive rows: %w", err)
		}
	}
	return count, nil
}

// ExportAll returns everything held about a person (data-subject
// portability), including archived records.
func (s *Store) ExportAll(ctx context.Context, person string) (Export, error) {
	s.mu.Lock()
	data := s.persons[person]
	export := Export{Person: person, ExportedAt: s.now()}
	if data != nil {
		for _, m := range data.Memories {
			export.Memories = append(export.Memories, *m)
		}
		for _, sug := range data.Suggestions {
			export.Suggestions = append(export.Suggestions, *sug)
		}
		for _, sum := range data.Summaries {
			export.Summaries = append(export.Summaries, *sum)
		}
	}
	archive := s.archive
	s.mu.Unlock()

	if archive != nil {
		rows, err := archive.ListByPerson(ctx, person)
		if err != nil {
			return Export{}, fmt.Errorf("exporting archive rows: %w", err)
		}
		export.Archived = rows
	}
	return export, nil
}

// ExpireSweep removes every record whose expiry has passed and returns
// the count removed.
func (s *Store) ExpireSweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for person, data := range s.persons {
		kept := data.Memories[:0]
		for _, m := range data.Memories {
			if expired(m, now) {
				delete(s.memIndex[person], indexKey(m.Type, m.Key))
				removed++
				continue
			}
			kept = append(kept, m)
		}
		data.Memories = kept
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.commitLocked(); err != nil {
		return 0, err
	}
	return removed, nil
}

// Persons returns all known person ids, sorted.
func (s *Store) Persons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.persons))
	for person := range s.persons {
		out = append(out, person)
	}
	sort.Strings(out)
	return out
}

// Stats returns maintenance counters across all persons.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	stats := Stats{Persons: len(s.persons)}
	now := s.now()
	for _, data := range s.persons {
		for _, m := range data.Memories {
			if !expired(m, now) {
				stats.ActiveMemories++
			}
		}
		for _, sug := range data.Suggestions {
			if sug.Status == StatusPending {
				stats.PendingSuggestions++
			}
		}
		stats.Summaries += len(data.Summaries)
	}
	archive := s.archive
	s.mu.Unlock()

	if archive != nil {
		n, err := archive.Count(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("counting archive rows: %w", err)
		}
		stats.ArchivedMemories = n
	}
	return stats, nil
}

// WriteExport streams an export as indented JSON.
func WriteExport(w io.Writer, export Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}
