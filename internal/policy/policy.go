// Package policy holds the risk and retention rules for personal memories.
//
// Every candidate fact passes through here before anything is stored:
// disallowed categories are blocked outright, the rest is classified into
// a coarse risk tier that drives the consent workflow, and each memory
// type carries a default retention duration.
package policy

import (
	"strings"
	"time"
)

// MemoryType classifies what kind of fact a memory holds.
type MemoryType string

const (
	TypePreference  MemoryType = "preference"
	TypeProfileFact MemoryType = "profile_fact"
	TypeContact     MemoryType = "contact"
	TypeTaskHint    MemoryType = "task_hint"
)

// RiskTier is the coarse sensitivity classification of a stored value.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Disallowed categories. Facts in these categories must never be stored,
// regardless of which extraction strategy produced them.
const (
	CategorySecret    = "secret"
	CategoryHealth    = "health"
	CategoryBelief    = "belief"
	CategoryFinancial = "financial"
)

// IsAllowedType reports whether t is one of the four memory types the
// subsystem manages. Anything else is rejected before scoring.
func IsAllowedType(t MemoryType) bool {
	switch t {
	case TypePreference, TypeProfileFact, TypeContact, TypeTaskHint:
		return true
	}
	return false
}

// DefaultTTL returns the default retention duration for a memory type.
// Zero means durable (no expiry).
func DefaultTTL(t MemoryType) time.Duration {
	switch t {
	case TypeContact:
		return 90 * 24 * time.Hour
	case TypeTaskHint:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Signal lists for disallowed-category detection, German and English.
// Matching is substring-based on the lowercased text; the lists favor
// precision over recall since a miss only means the risk classifier has
// to catch it later.
var (
	secretSignals = []string{
		"passwort", "password", "passphrase", "geheimnummer", "zugangsdaten",
		"credentials", "api key", "api-key", "secret key", "private key",
		"mein pin ", "my pin ", "otp", "2fa code",
	}
	healthSignals = []string{
		"diabetes", "diagnose", "diagnosed", "krankheit", "chronisch",
		"chronic", "medikament", "medication", "allergie", "allergy",
		"depression", "therapie", "therapy", "krebs", "cancer", "asthma",
		"blutdruck", "blood pressure", "illness", "disease",
	}
	beliefSignals = []string{
		"religion", "religiös", "religious", "christ", "katholisch",
		"evangelisch", "muslim", "jüdisch", "jewish", "buddhist", "hindu",
		"atheist", "ich glaube an gott", "i believe in god", "ich wähle",
		"i vote", "partei", "political party", "politisch", "konservativ",
		"conservative", "sozialist",
	}
	financialSignals = []string{
		"iban", "kontonummer", "account number", "bankkonto", "bank account",
		"kreditkarte", "credit card", "kartennummer", "card number",
		"routing number", "bic", "swift",
	}
)

// DisallowedCategory reports whether text falls into a category that must
// never produce a stored memory, and which one.
func DisallowedCategory(text string) (string, bool) {
	t := strings.ToLower(text)
	if t == "" {
		return "", false
	}
	for _, s := range secretSignals {
		if strings.Contains(t, s) {
			return CategorySecret, true
		}
	}
	for _, s := range healthSignals {
		if strings.Contains(t, s) {
			return CategoryHealth, true
		}
	}
	for _, s := range beliefSignals {
		if strings.Contains(t, s) {
			return CategoryBelief, true
		}
	}
	for _, s := range financialSignals {
		if strings.Contains(t, s) {
			return CategoryFinancial, true
		}
	}
	return "", false
}

// ClassifierConfig controls risk classification.
type ClassifierConfig struct {
	// LongValueThreshold escalates values at or above this many bytes to
	// at least medium risk. Length correlates with embedded sensitive
	// content. 0 uses the default.
	LongValueThreshold int `yaml:"long_value_threshold"`
}

// DefaultClassifierConfig returns the recommended classifier settings.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{LongValueThreshold: 200}
}

// Classifier maps candidate content and type to a risk tier.
type Classifier struct {
	config ClassifierConfig
}

// NewClassifier creates a Classifier with the given config.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.LongValueThreshold <= 0 {
		cfg.LongValueThreshold = DefaultClassifierConfig().LongValueThreshold
	}
	return &Classifier{config: cfg}
}

// Classify evaluates the risk rules in order: disallowed content is high,
// contact-type facts are medium, everything else is low. Long values are
// escalated to at least medium regardless of content.
func (c *Classifier) Classify(value string, t MemoryType) RiskTier {
	if _, ok := DisallowedCategory(value); ok {
		return RiskHigh
	}
	tier := RiskLow
	if t == TypeContact {
		tier = RiskMedium
	}
	if len(value) >= c.config.LongValueThreshold && tier == RiskLow {
		tier = RiskMedium
	}
	return tier
}

// Decision is the outcome of scoring a candidate against the policy bands.
type Decision string

const (
	DecisionAutoStore  Decision = "auto_store"
	DecisionAskConsent Decision = "ask_consent"
	DecisionReject     Decision = "reject"
)

// Bands holds the score thresholds for the consent workflow. These are
// policy constants, not derived values.
type Bands struct {
	AutoStore float64 `yaml:"auto_store"` // score at or above: eligible for auto-store
	Consent   float64 `yaml:"consent"`    // score at or above: eligible for consent
}

// DefaultBands returns the default decision thresholds.
func DefaultBands() Bands {
	return Bands{AutoStore: 0.7, Consent: 0.3}
}

// Decide routes a scored candidate. High risk and sub-consent scores are
// rejected; low-risk candidates at or above the auto-store threshold are
// stored directly; everything in between requires explicit consent.
func (b Bands) Decide(score float64, risk RiskTier) Decision {
	if risk == RiskHigh {
		return DecisionReject
	}
	if score < b.Consent {
		return DecisionReject
	}
	if score >= b.AutoStore && risk == RiskLow {
		return DecisionAutoStore
	}
	return DecisionAskConsent
}
