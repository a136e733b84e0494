package score

import (
	"testing"

	"github.com/lumehq/recall/internal/extract"
	"github.com/lumehq/recall/internal/policy"
	"github.com/lumehq/recall/internal/store"
)

func TestSimilarityIdentical(t *testing.T) {
	if sim := Similarity("berlin", "berlin"); sim != 1 {
		t.Errorf("identical strings: got %v, want 1", sim)
	}
}

func TestSimilarityDiacriticsAndCase(t *testing.T) {
	if sim := Similarity("Müller", "mueller"); sim == 0 {
		t.Error("expected partial overlap between Müller and mueller")
	}
	if sim := Similarity("Köln", "koln"); sim != 1 {
		t.Errorf("diacritic fold: got %v, want 1", sim)
	}
}

func TestSimilarityDisjoint(t *testing.T) {
	if sim := Similarity("berlin", "hamburg"); sim != 0 {
		t.Errorf("disjoint strings: got %v, want 0", sim)
	}
}

func TestSimilarityEmpty(t *testing.T) {
	if sim := Similarity("", ""); sim != 0 {
		t.Errorf("empty strings: got %v, want 0", sim)
	}
	if sim := Similarity("berlin", ""); sim != 0 {
		t.Errorf("one empty string: got %v, want 0", sim)
	}
}

func TestScoreNewProfileFactAutoStores(t *testing.T) {
	s := New(DefaultWeights())
	c := extract.Candidate{Person: "lisa", Type: policy.TypeProfileFact, Key: "wohnort", Value: "berlin"}
	got := s.Score(c, nil)
	if got < 0.8 {
		t.Errorf("fresh profile fact: got %v, want >= 0.8", got)
	}
}

func TestScoreDuplicateDropsIntoConsentBand(t *testing.T) {
	s := New(DefaultWeights())
	existing := []store.StoredMemory{
		{Person: "lisa", Type: policy.TypeProfileFact, Key: "wohnort", Value: "berlin"},
	}
	c := extract.Candidate{Person: "lisa", Type: policy.TypeProfileFact, Key: "wohnort", Value: "berlin"}
	got := s.Score(c, existing)
	if got >= 0.7 {
		t.Errorf("duplicate value: got %v, want below auto-store band", got)
	}
	if got < 0.3 {
		t.Errorf("duplicate value: got %v, want at least consent band", got)
	}
}

func TestScoreDifferentKeyKeepsNovelty(t *testing.T) {
	s := New(DefaultWeights())
	existing := []store.StoredMemory{
		{Person: "lisa", Type: policy.TypePreference, Key: "mag:sushi", Value: "sushi"},
	}
	c := extract.Candidate{Person: "lisa", Type: policy.TypePreference, Key: "mag:pizza", Value: "pizza"}
	got := s.Score(c, existing)
	base := s.Score(c, nil)
	if got != base {
		t.Errorf("unrelated key should not reduce score: got %v, want %v", got, base)
	}
}

func TestScoreTaskHintBelowProfileFact(t *testing.T) {
	s := New(DefaultWeights())
	hint := extract.Candidate{Person: "lisa", Type: policy.TypeTaskHint, Key: "aufgabe", Value: "zahnarzt anrufen"}
	fact := extract.Candidate{Person: "lisa", Type: policy.TypeProfileFact, Key: "beruf", Value: "ärztin"}
	if s.Score(hint, nil) >= s.Score(fact, nil) {
		t.Error("task hint should score below profile fact with equal novelty")
	}
}

func TestSpecificityVagueValue(t *testing.T) {
	if got := specificity("irgendwas mit computern"); got != 0.2 {
		t.Errorf("vague value: got %v, want 0.2", got)
	}
	if got := specificity("something"); got != 0.2 {
		t.Errorf("vague value: got %v, want 0.2", got)
	}
}

func TestSpecificityNumberBonus(t *testing.T) {
	plain := specificity("hauptstraße")
	numbered := specificity("hauptstraße 12")
	if numbered <= plain {
		t.Errorf("digit should raise specificity: %v <= %v", numbered, plain)
	}
}

func TestNewZeroWeightsFallsBack(t *testing.T) {
	s := New(Weights{})
	c := extract.Candidate{Person: "lisa", Type: policy.TypeProfileFact, Key: "wohnort", Value: "berlin"}
	if got := s.Score(c, nil); got <= 0 {
		t.Errorf("zero weights should fall back to defaults, got %v", got)
	}
}
