package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lumehq/recall/internal/extract"
	"github.com/lumehq/recall/internal/policy"
)

// AddSuggestion records a candidate as pending consent. If a pending
// suggestion already exists for the same person, type and key, no
// duplicate is stacked: an identical value returns the existing
// suggestion unchanged, a new value refreshes the pending candidate,
// risk and score in place so the person always confirms the latest one.
func (s *Store) AddSuggestion(ctx context.Context, cand extract.Candidate, risk policy.RiskTier, score float64) (Suggestion, error) {
	if cand.Person == "" {
		return Suggestion{}, fmt.Errorf("candidate person is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.ensurePerson(cand.Person)
	nk := NormalizeKey(cand.Key)
	for _, sug := range data.Suggestions {
		if sug.Status != StatusPending || sug.Candidate.Type != cand.Type || NormalizeKey(sug.Candidate.Key) != nk {
			continue
		}
		if sug.Candidate.Value == cand.Value {
			return *sug, nil
		}
		sug.Candidate = cand
		sug.Risk = risk
		sug.Score = score
		sug.ProposedAt = s.now()
		if err := s.commitLocked(); err != nil {
			return Suggestion{}, err
		}
		return *sug, nil
	}

	sug := &Suggestion{
		ID:         s.newID(),
		Person:     cand.Person,
		Candidate:  cand,
		Risk:       risk,
		Score:      score,
		ProposedAt: s.now(),
		Status:     StatusPending,
	}
	data.Suggestions = append(data.Suggestions, sug)
	s.sugIndex[sug.ID] = sug
	if err := s.commitLocked(); err != nil {
		return Suggestion{}, err
	}
	return *sug, nil
}

// GetSuggestion returns a copy of the suggestion with the given id.
func (s *Store) GetSuggestion(id string) (Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sug, ok := s.sugIndex[id]
	if !ok {
		return Suggestion{}, ErrNotFound
	}
	return *sug, nil
}

// ListSuggestions returns copies of the person's pending suggestions.
func (s *Store) ListSuggestions(person string) []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.persons[person]
	if !ok {
		return nil
	}
	var out []Suggestion
	for _, sug := range data.Suggestions {
		if sug.Status == StatusPending {
			out = append(out, *sug)
		}
	}
	return out
}

// ConfirmSuggestion promotes a pending suggestion to a stored fact. The
// returned bool reports whether anything changed: confirming an already
// resolved suggestion is a no-op, not an error. Promotion and status
// change land in one snapshot write.
func (s *Store) ConfirmSuggestion(ctx context.Context, id string, ttl time.Duration) (*StoredMemory, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sug, ok := s.sugIndex[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if sug.Status != StatusPending {
		return nil, false, nil
	}

	now := s.now()
	cand := sug.Candidate
	var expiresAt *time.Time
	if ttl > 0 {
		e := now.Add(ttl)
		expiresAt = &e
	}

	data := s.ensurePerson(sug.Person)
	ik := indexKey(cand.Type, cand.Key)
	var m *StoredMemory
	if existing, found := s.memIndex[sug.Person][ik]; found && !expired(existing, now) {
		existing.Value = cand.Value
		existing.Confidence = cand.Confidence
		existing.Risk = sug.Risk
		existing.UpdatedAt = now
		existing.ExpiresAt = expiresAt
		m = existing
	} else {
		if existing, found := s.memIndex[sug.Person][ik]; found {
			s.removeMemoryLocked(sug.Person, existing)
		}
		m = &StoredMemory{
			ID:         s.newID(),
			Person:     sug.Person,
			Type:       cand.Type,
			Key:        NormalizeKey(cand.Key),
			Value:      cand.Value,
			Confidence: cand.Confidence,
			Risk:       sug.Risk,
			CreatedAt:  now,
			UpdatedAt:  now,
			ExpiresAt:  expiresAt,
		}
		data.Memories = append(data.Memories, m)
		s.memIndex[sug.Person][ik] = m
	}

	sug.Status = StatusConfirmed
	resolved := now
	sug.ResolvedAt = &resolved
	if err := s.commitLocked(); err != nil {
		return nil, false, err
	}
	copied := *m
	return &copied, true, nil
}

// RejectSuggestion discards a pending suggestion. Idempotent like
// ConfirmSuggestion.
func (s *Store) RejectSuggestion(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sug, ok := s.sugIndex[id]
	if !ok {
		return false, ErrNotFound
	}
	if sug.Status != StatusPending {
		return false, nil
	}
	sug.Status = StatusRejected
	resolved := s.now()
	sug.ResolvedAt = &resolved
	if err := s.commitLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// PruneSuggestions drops suggestions proposed before the retention
// window, whatever their status. Returns the count removed.
func (s *Store) PruneSuggestions(ctx context.Context, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-retention)
	removed := 0
	for _, data := range s.persons {
		kept := data.Suggestions[:0]
		for _, sug := range data.Suggestions {
			if sug.ProposedAt.Before(cutoff) {
				delete(s.sugIndex, sug.ID)
				removed++
				continue
			}
			kept = append(kept, sug)
		}
		data.Suggestions = kept
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.commitLocked(); err != nil {
		return 0, err
	}
	return removed, nil
}
