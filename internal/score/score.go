// Package score computes the worthiness of a memory candidate.
//
// The score is a weighted sum of three signals: specificity (concrete
// values beat vague placeholders — a pattern heuristic, not semantic
// analysis), stability (a type-based prior: profile facts outlive
// preferences outlive contact details outlive task hints), and novelty
// (penalized when a near-duplicate already exists for the same person
// and key, measured by trigram overlap after normalization). The result
// is clamped to [0,1]; the consent workflow applies the decision bands.
package score

import (
	"strings"

	"github.com/lumehq/recall/internal/extract"
	"github.com/lumehq/recall/internal/policy"
	"github.com/lumehq/recall/internal/store"
)

// Weights controls how the three signals combine.
type Weights struct {
	Specificity float64 `yaml:"specificity"`
	Stability   float64 `yaml:"stability"`
	Novelty     float64 `yaml:"novelty"`
}

// DefaultWeights returns the recommended signal weights.
func DefaultWeights() Weights {
	return Weights{Specificity: 0.4, Stability: 0.3, Novelty: 0.3}
}

// stabilityPrior maps memory types to how durable facts of that type
// tend to be.
var stabilityPrior = map[policy.MemoryType]float64{
	policy.TypeProfileFact: 0.9,
	policy.TypePreference:  0.75,
	policy.TypeContact:     0.6,
	policy.TypeTaskHint:    0.4,
}

// vagueWords cap specificity when the value carries no concrete signal.
var vagueWords = map[string]struct{}{
	"etwas": {}, "irgendwas": {}, "irgendetwas": {}, "dinge": {}, "zeug": {},
	"something": {}, "anything": {}, "stuff": {}, "things": {}, "whatever": {},
}

// Scorer scores candidates against a person's existing memories.
type Scorer struct {
	weights Weights
}

// New creates a Scorer. Zero weights fall back to the defaults.
func New(w Weights) *Scorer {
	if w.Specificity+w.Stability+w.Novelty <= 0 {
		w = DefaultWeights()
	}
	return &Scorer{weights: w}
}

// Score rates a candidate in [0,1] given the person's existing memories.
func (s *Scorer) Score(c extract.Candidate, existing []store.StoredMemory) float64 {
	spec := specificity(c.Value)
	stab := stabilityPrior[c.Type]
	nov := s.novelty(c, existing)

	total := s.weights.Specificity + s.weights.Stability + s.weights.Novelty
	raw := (s.weights.Specificity*spec + s.weights.Stability*stab + s.weights.Novelty*nov) / total

	return clamp01(raw)
}

// specificity is a concreteness heuristic over the value text.
func specificity(value string) float64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}
	tokens := strings.Fields(strings.ToLower(v))
	for _, tok := range tokens {
		if _, vague := vagueWords[tok]; vague {
			return 0.2
		}
	}

	var s float64
	switch {
	case len(tokens) == 1 && len([]rune(v)) >= 3:
		s = 0.7
	case len(tokens) == 1:
		s = 0.4 // very short single tokens carry little signal
	case len(tokens) <= 6:
		s = 0.8
	default:
		s = 0.6
	}
	if strings.ContainsAny(v, "0123456789") {
		s += 0.1
	}
	return clamp01(s)
}

// novelty is 1 minus the highest similarity to an existing value stored
// under the same normalized key for this person.
func (s *Scorer) novelty(c extract.Candidate, existing []store.StoredMemory) float64 {
	key := store.NormalizeKey(c.Key)
	maxSim := 0.0
	for _, m := range existing {
		if m.Person != "" && m.Person != c.Person {
			continue
		}
		if store.NormalizeKey(m.Key) != key {
			continue
		}
		if sim := Similarity(c.Value, m.Value); sim > maxSim {
			maxSim = sim
		}
	}
	return 1 - maxSim
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
