// Package sanitize neutralizes adversarial instruction patterns in user
// utterances before any extraction step sees them.
//
// The filter is an ordered table of pattern matchers covering instruction
// overrides, role-play/system-message impersonation, format overrides,
// script/markup injection and escape-sequence encodings, in German and
// English. Whitespace is collapsed first, then matches are replaced with a
// fixed filler token, punctuation runs are capped and the result is
// clamped to a maximum length. Sanitize is a pure function and idempotent.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// Filler is the fixed token that replaces every matched adversarial span.
const Filler = "[gefiltert]"

// Config controls length clamping.
type Config struct {
	// MaxLength is the output clamp in runes. 0 uses the default.
	MaxLength int `yaml:"max_length"`
}

// DefaultConfig returns the recommended sanitizer settings.
func DefaultConfig() Config {
	return Config{MaxLength: 800}
}

// maxPunctRun caps consecutive identical punctuation characters.
const maxPunctRun = 3

// wordBoundaryWindow is the fraction of MaxLength at the end within which
// a cut prefers the last word boundary over a hard truncation.
const wordBoundaryWindow = 0.2

// adversarialPatterns is evaluated in order; each match is replaced with
// the filler token. Patterns are case-insensitive and cover German and
// English phrasings.
var adversarialPatterns = []*regexp.Regexp{
	// Instruction overrides.
	regexp.MustCompile(`(?i)ignore +(?:all +|any +)?(?:previous|prior|above|earlier) +(?:instructions|prompts|rules|messages)`),
	regexp.MustCompile(`(?i)ignoriere +(?:alle +|sämtliche +)?(?:vorherigen|bisherigen|obigen) +(?:anweisungen|regeln|nachrichten)`),
	regexp.MustCompile(`(?i)disregard +(?:all +|any +)?(?:previous|prior) +instructions`),
	regexp.MustCompile(`(?i)vergiss +(?:alles|deine +anweisungen)`),
	// Role-play / system-message impersonation.
	regexp.MustCompile(`(?i)\bsystem *(?:prompt|message|nachricht) *:`),
	regexp.MustCompile(`(?i)you +are +now +(?:a|an|the)?\b`),
	regexp.MustCompile(`(?i)du +bist +(?:jetzt|ab +sofort)\b`),
	regexp.MustCompile(`(?i)act +as +(?:a|an|the)? *(?:system|admin|root|developer)`),
	regexp.MustCompile(`(?i)pretend +(?:to +be|you +are)`),
	regexp.MustCompile(`(?i)tu +so,? +als +(?:ob|wärst)`),
	// Format overrides.
	regexp.MustCompile(`(?i)respond +only +(?:with|in)\b`),
	regexp.MustCompile(`(?i)antworte +(?:nur|ausschließlich) +(?:mit|im|auf)\b`),
	regexp.MustCompile(`(?i)output +format *:`),
	// Script / markup injection.
	regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)< */? *(?:script|iframe|svg|img|object|embed)\b[^>]*>`),
	regexp.MustCompile(`(?i)javascript *:`),
	regexp.MustCompile("(?s)```.*?```"),
	// Escape-sequence encodings.
	regexp.MustCompile(`\\x[0-9a-fA-F]{2}`),
	regexp.MustCompile(`\\u[0-9a-fA-F]{4}`),
	regexp.MustCompile(`(?i)&#x?[0-9a-f]{2,6};`),
}

// Sanitizer applies the adversarial-pattern table and length clamp.
type Sanitizer struct {
	config Config
}

// New creates a Sanitizer with the given config.
func New(cfg Config) *Sanitizer {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultConfig().MaxLength
	}
	return &Sanitizer{config: cfg}
}

// Sanitize filters adversarial patterns out of text and clamps its length.
// The second return value reports whether the input was modified. The
// function has no side effects; callers own any security-event logging.
//
// Whitespace is collapsed before the pattern table runs, so phrases split
// by newlines or tabs cannot slip past patterns written with plain spaces.
func (s *Sanitizer) Sanitize(text string) (string, bool) {
	out := collapseWhitespace(text)
	for _, re := range adversarialPatterns {
		out = re.ReplaceAllString(out, Filler)
	}
	out = capPunctRuns(out, maxPunctRun)
	out = s.truncate(out)
	return out, out != text
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// capPunctRuns limits runs of the same punctuation character to max
// repetitions. Go's RE2 has no backreferences, so this walks runes.
func capPunctRuns(s string, max int) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev && unicode.IsPunct(r) {
			run++
			if run > max {
				continue
			}
		} else {
			run = 1
			prev = r
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncate clamps text to MaxLength runes, preferring to cut at the last
// word boundary within the final 20% of the limit. Without a boundary
// there it hard-truncates and appends an ellipsis.
func (s *Sanitizer) truncate(text string) string {
	runes := []rune(text)
	max := s.config.MaxLength
	if len(runes) <= max {
		return text
	}

	window := int(float64(max) * (1 - wordBoundaryWindow))
	cut := -1
	for i := max - 1; i >= window; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	if cut > 0 {
		return strings.TrimRight(string(runes[:cut]), " ")
	}
	return string(runes[:max-1]) + "…"
}
