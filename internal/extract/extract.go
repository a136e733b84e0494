// Package extract turns sanitized utterances into typed memory candidates.
//
// Extraction is a two-strategy design: an optional LLM-assisted pass with a
// constrained JSON contract, and a deterministic rule table as the always
// available fallback. The rule table is declarative — an ordered list of
// (pattern, type, key, confidence) entries covering preference verbs,
// profile facts and contact-like statements in German and English — so the
// rule set stays auditable independently of the matching engine.
//
// Disallowed categories (secrets, health, political/religious stance,
// financial identifiers) yield zero candidates no matter which strategy
// ran: the whole utterance is checked before either pass, and LLM output
// is post-filtered again since an assisted pass could otherwise leak a
// disallowed fact through.
package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/lumehq/recall/internal/policy"
)

// Candidate is an ephemeral extracted fact. It is never persisted
// directly; the classifier, scorer and consent workflow consume it.
type Candidate struct {
	Person     string            `json:"person"`
	Type       policy.MemoryType `json:"type"`
	Key        string            `json:"key"`
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence"`
	Source     string            `json:"source"` // "rules" or "llm"
}

// Rule is one entry of the declarative pattern table. Exactly one of Key
// and KeyPrefix is set: KeyPrefix rules derive the final key from the
// captured value ("mag:sushi"), so independent preferences do not collide
// on a single key.
type Rule struct {
	Name       string
	Pattern    *regexp.Regexp
	Type       policy.MemoryType
	Key        string
	KeyPrefix  string
	Confidence float64
}

// initRules builds the pattern table. Order matters only for readability;
// every rule runs against the full text and independent matches yield
// independent candidates. Exact-phrase patterns carry higher confidence
// than generic ones.
func initRules() []Rule {
	return []Rule{
		// Profile facts: residence.
		{Name: "wohnort-de", Pattern: regexp.MustCompile(`(?i)\bich wohne (?:in|im) ([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "wohnort", Confidence: 0.9},
		{Name: "wohnort-en", Pattern: regexp.MustCompile(`(?i)\bi live in ([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "wohnort", Confidence: 0.9},
		{Name: "herkunft-de", Pattern: regexp.MustCompile(`(?i)\bich komme aus ([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "wohnort", Confidence: 0.7},
		{Name: "herkunft-en", Pattern: regexp.MustCompile(`(?i)\bi(?:'m| am) from ([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "wohnort", Confidence: 0.7},
		// Profile facts: occupation.
		{Name: "beruf-de", Pattern: regexp.MustCompile(`(?i)\bich arbeite als ([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "beruf", Confidence: 0.85},
		{Name: "beruf-de-2", Pattern: regexp.MustCompile(`(?i)\bich bin von beruf ([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "beruf", Confidence: 0.85},
		{Name: "beruf-en", Pattern: regexp.MustCompile(`(?i)\bi work as (?:a|an)? ?([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "beruf", Confidence: 0.85},
		// Profile facts: age.
		{Name: "alter-de", Pattern: regexp.MustCompile(`(?i)\bich bin (\d{1,3}) jahre alt`), Type: policy.TypeProfileFact, Key: "alter", Confidence: 0.9},
		{Name: "alter-en", Pattern: regexp.MustCompile(`(?i)\bi am (\d{1,3}) years old`), Type: policy.TypeProfileFact, Key: "alter", Confidence: 0.9},
		// Profile facts: name.
		{Name: "name-de", Pattern: regexp.MustCompile(`(?i)\bich heiße ([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "name", Confidence: 0.9},
		{Name: "name-de-2", Pattern: regexp.MustCompile(`(?i)\bmein name ist ([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "name", Confidence: 0.9},
		{Name: "name-en", Pattern: regexp.MustCompile(`(?i)\bmy name is ([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "name", Confidence: 0.9},
		{Name: "name-en-2", Pattern: regexp.MustCompile(`(?i)\bcall me ([\p{L}][\p{L} \-]{1,40})`), Type: policy.TypeProfileFact, Key: "name", Confidence: 0.6},
		// Preferences. Key derives from the object so "mag:sushi" and
		// "mag:pizza" live side by side.
		{Name: "vorliebe-de", Pattern: regexp.MustCompile(`(?i)\bich (?:mag|liebe|bevorzuge|esse gerne?|trinke gerne?) (.{2,60})`), Type: policy.TypePreference, KeyPrefix: "mag", Confidence: 0.8},
		{Name: "vorliebe-en", Pattern: regexp.MustCompile(`(?i)\bi (?:really )?(?:like|love|enjoy|prefer) (.{2,60})`), Type: policy.TypePreference, KeyPrefix: "mag", Confidence: 0.8},
		{Name: "abneigung-de", Pattern: regexp.MustCompile(`(?i)\bich (?:hasse|mag keine?n?) (.{2,60})`), Type: policy.TypePreference, KeyPrefix: "hasst", Confidence: 0.8},
		{Name: "abneigung-en", Pattern: regexp.MustCompile(`(?i)\bi (?:hate|dislike|can't stand) (.{2,60})`), Type: policy.TypePreference, KeyPrefix: "hasst", Confidence: 0.8},
		// Contact-like statements.
		{Name: "adresse-de", Pattern: regexp.MustCompile(`(?i)\bmeine adresse ist (.{3,60})`), Type: policy.TypeContact, Key: "adresse", Confidence: 0.8},
		{Name: "adresse-en", Pattern: regexp.MustCompile(`(?i)\bmy address is (.{3,60})`), Type: policy.TypeContact, Key: "adresse", Confidence: 0.8},
		{Name: "erreichbar-de", Pattern: regexp.MustCompile(`(?i)\bdu erreichst mich (?:unter|über) (.{2,60})`), Type: policy.TypeContact, Key: "erreichbarkeit", Confidence: 0.6},
		// Task hints.
		{Name: "aufgabe-de", Pattern: regexp.MustCompile(`(?i)\berinnere mich(?: bitte)?(?: daran)?,? (?:an |zu |dass )?(.{3,80})`), Type: policy.TypeTaskHint, KeyPrefix: "aufgabe", Confidence: 0.7},
		{Name: "aufgabe-en", Pattern: regexp.MustCompile(`(?i)\bremind me (?:to|about|of) (.{3,80})`), Type: policy.TypeTaskHint, KeyPrefix: "aufgabe", Confidence: 0.7},
		{Name: "aufgabe-de-2", Pattern: regexp.MustCompile(`(?i)\bich muss (?:noch |morgen |bald )?(.{3,80})`), Type: policy.TypeTaskHint, KeyPrefix: "aufgabe", Confidence: 0.5},
	}
}

// Assisted is the optional stage-one extractor. A nil error means its
// candidates are used as-is (after post-filtering); any error causes an
// explicit fallback to the rule table close to the call site, so the two
// strategies never run concurrently.
type Assisted interface {
	Extract(ctx context.Context, text string) ([]Candidate, error)
}

// Pipeline orchestrates assisted and rule-based extraction.
type Pipeline struct {
	rules    []Rule
	assisted Assisted
	limiter  *Limiter
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAssisted enables the LLM-assisted stage, guarded by the limiter.
// A nil limiter disables rate limiting.
func WithAssisted(a Assisted, l *Limiter) Option {
	return func(p *Pipeline) {
		p.assisted = a
		p.limiter = l
	}
}

// NewPipeline creates a Pipeline with the full rule table.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{rules: initRules()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Rules exposes the pattern table for auditing.
func (p *Pipeline) Rules() []Rule {
	return p.rules
}

// Extract produces candidates for one sanitized utterance. Utterances in
// a disallowed category yield zero candidates regardless of strategy.
func (p *Pipeline) Extract(ctx context.Context, person, text string) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if _, bad := policy.DisallowedCategory(text); bad {
		return nil
	}

	var cands []Candidate
	assisted := false
	if p.assisted != nil && (p.limiter == nil || p.limiter.Allow(person)) {
		if out, err := p.assisted.Extract(ctx, text); err == nil {
			cands = out
			assisted = true
		}
	}
	if !assisted {
		cands = p.applyRules(text)
	}
	return p.postFilter(person, cands)
}

func (p *Pipeline) applyRules(text string) []Candidate {
	var out []Candidate
	for _, rule := range p.rules {
		for _, m := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			value := cleanValue(m[1])
			if value == "" {
				continue
			}
			key := rule.Key
			if rule.KeyPrefix != "" {
				key = rule.KeyPrefix + ":" + slugify(value)
			}
			out = append(out, Candidate{
				Type:       rule.Type,
				Key:        key,
				Value:      value,
				Confidence: rule.Confidence,
				Source:     "rules",
			})
		}
	}
	return out
}

// postFilter enforces the policy gate on candidates from either strategy
// and deduplicates within the utterance. This is the safety net for LLM
// output, which is not bound by the rule table.
func (p *Pipeline) postFilter(person string, cands []Candidate) []Candidate {
	seen := make(map[string]int)
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if !policy.IsAllowedType(c.Type) {
			continue
		}
		c.Key = strings.ToLower(strings.TrimSpace(c.Key))
		c.Value = strings.TrimSpace(c.Value)
		if c.Key == "" || c.Value == "" {
			continue
		}
		if _, bad := policy.DisallowedCategory(c.Key + " " + c.Value); bad {
			continue
		}
		if c.Confidence < 0 {
			c.Confidence = 0
		}
		if c.Confidence > 1 {
			c.Confidence = 1
		}
		c.Person = person

		dedupKey := string(c.Type) + "\x00" + c.Key
		if idx, ok := seen[dedupKey]; ok {
			if c.Confidence > out[idx].Confidence {
				out[idx] = c
			}
			continue
		}
		seen[dedupKey] = len(out)
		out = append(out, c)
	}
	return out
}

// stopwords cut a captured value at the first conjunction, so "sushi und
// arbeite als bäcker" does not leak the second clause into the first
// candidate's value.
var valueStopwords = []string{" und ", " and ", " aber ", " but ", " oder ", " or ", ", ", ". ", "; "}

func cleanValue(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, stop := range valueStopwords {
		if i := strings.Index(v, stop); i > 0 {
			v = v[:i]
		}
	}
	v = strings.Trim(v, " .,!?;:")
	v = strings.Join(strings.Fields(v), " ")
	if r := []rune(v); len(r) > 80 {
		v = strings.TrimSpace(string(r[:80]))
	}
	return v
}

// slugify derives a short stable key segment from a value.
func slugify(v string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(v) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == 'ä', r == 'ö', r == 'ü', r == 'ß':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	if r := []rune(s); len(r) > 24 {
		s = strings.Trim(string(r[:24]), "-")
	}
	if s == "" {
		s = "wert"
	}
	return s
}
