package policy

import (
	"strings"
	"testing"
	"time"
)

func TestIsAllowedType(t *testing.T) {
	for _, typ := range []MemoryType{TypePreference, TypeProfileFact, TypeContact, TypeTaskHint} {
		if !IsAllowedType(typ) {
			t.Errorf("IsAllowedType(%q) = false, want true", typ)
		}
	}
	for _, typ := range []MemoryType{"", "document", "secret", "Preference"} {
		if IsAllowedType(typ) {
			t.Errorf("IsAllowedType(%q) = true, want false", typ)
		}
	}
}

func TestDefaultTTL(t *testing.T) {
	if got := DefaultTTL(TypeContact); got != 90*24*time.Hour {
		t.Errorf("contact TTL = %v, want 90 days", got)
	}
	if got := DefaultTTL(TypeTaskHint); got != 30*24*time.Hour {
		t.Errorf("task_hint TTL = %v, want 30 days", got)
	}
	if got := DefaultTTL(TypePreference); got != 0 {
		t.Errorf("preference TTL = %v, want 0 (durable)", got)
	}
	if got := DefaultTTL(TypeProfileFact); got != 0 {
		t.Errorf("profile_fact TTL = %v, want 0 (durable)", got)
	}
}

func TestDisallowedCategory(t *testing.T) {
	tests := []struct {
		text     string
		category string
	}{
		{"Mein Passwort ist geheim123", CategorySecret},
		{"my password is hunter2", CategorySecret},
		{"here are my credentials for the server", CategorySecret},
		{"I have diabetes", CategoryHealth},
		{"Ich nehme ein neues Medikament", CategoryHealth},
		{"she was diagnosed last week", CategoryHealth},
		{"Ich wähle immer dieselbe Partei", CategoryBelief},
		{"I am an atheist", CategoryBelief},
		{"Meine IBAN ist lang", CategoryFinancial},
		{"my credit card expires soon", CategoryFinancial},
	}
	for _, tt := range tests {
		cat, ok := DisallowedCategory(tt.text)
		if !ok {
			t.Errorf("DisallowedCategory(%q) = not disallowed, want %s", tt.text, tt.category)
			continue
		}
		if cat != tt.category {
			t.Errorf("DisallowedCategory(%q) = %s, want %s", tt.text, cat, tt.category)
		}
	}

	for _, text := range []string{"", "Ich wohne in Berlin", "I like sushi", "remind me to buy milk"} {
		if cat, ok := DisallowedCategory(text); ok {
			t.Errorf("DisallowedCategory(%q) = %s, want allowed", text, cat)
		}
	}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	if got := c.Classify("my password is abc", TypePreference); got != RiskHigh {
		t.Errorf("disallowed content = %s, want high", got)
	}
	if got := c.Classify("berlin hauptstrasse 5", TypeContact); got != RiskMedium {
		t.Errorf("contact fact = %s, want medium", got)
	}
	if got := c.Classify("sushi", TypePreference); got != RiskLow {
		t.Errorf("plain preference = %s, want low", got)
	}
	if got := c.Classify("berlin", TypeProfileFact); got != RiskLow {
		t.Errorf("plain profile fact = %s, want low", got)
	}

	long := strings.Repeat("x", 300)
	if got := c.Classify(long, TypePreference); got != RiskMedium {
		t.Errorf("long value = %s, want escalation to medium", got)
	}
}

func TestDecide(t *testing.T) {
	b := DefaultBands()

	tests := []struct {
		score float64
		risk  RiskTier
		want  Decision
	}{
		{0.9, RiskLow, DecisionAutoStore},
		{0.7, RiskLow, DecisionAutoStore},
		{0.69, RiskLow, DecisionAskConsent},
		{0.5, RiskLow, DecisionAskConsent},
		{0.9, RiskMedium, DecisionAskConsent},
		{0.3, RiskMedium, DecisionAskConsent},
		{0.29, RiskLow, DecisionReject},
		{0.2, RiskMedium, DecisionReject},
		{0.95, RiskHigh, DecisionReject},
		{0.1, RiskHigh, DecisionReject},
	}
	for _, tt := range tests {
		if got := b.Decide(tt.score, tt.risk); got != tt.want {
			t.Errorf("Decide(%v, %s) = %s, want %s", tt.score, tt.risk, got, tt.want)
		}
	}
}
