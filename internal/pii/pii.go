// Package pii detects and masks personally identifying information.
//
// Detection is a regex pass for structured patterns (email, phone, IBAN,
// payment cards) with checksum validation where the format defines one:
// card numbers must pass the Luhn check and IBANs the mod-97 check, so
// number-shaped noise does not trigger a privacy rejection.
package pii

import (
	"regexp"
	"strings"
)

// Kind classifies the kind of sensitive data found.
type Kind string

const (
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
	KindIBAN  Kind = "iban"
	KindCard  Kind = "card"
)

// Match is one detected PII span.
type Match struct {
	Kind  Kind `json:"kind"`
	Start int  `json:"start"`
	End   int  `json:"end"`
}

// Result is the outcome of a detection pass.
type Result struct {
	HasPII  bool    `json:"has_pii"`
	Matches []Match `json:"matches,omitempty"`
}

var (
	emailRE = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	ibanRE  = regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}(?:[ ]?[A-Za-z0-9]{2,4}){3,8}\b`)
	cardRE  = regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`)
	// International (+49 170 1234567, 0049...) and German local (030 1234567)
	// phone shapes. Digit count is validated separately.
	phoneRE = regexp.MustCompile(`(?:\+|00)[1-9][0-9]{0,2}[ \-/]?(?:\(0?\d{1,4}\)[ \-/]?)?\d(?:[ \-/]?\d){5,11}|\b0[1-9][0-9]{1,4}[ \-/]\d{3,8}(?:[ \-/]?\d{1,6})?\b|\b0[1-9][0-9]{8,11}\b`)
)

// detectors run in order; later matches overlapping an earlier span are
// dropped (an IBAN's digit tail must not re-trigger as a card or phone).
// An optional shrink step recovers spans where the greedy regex overran
// into following text, returning the valid byte length or -1.
var detectors = []struct {
	kind     Kind
	re       *regexp.Regexp
	validate func(string) bool
	shrink   func(string) int
}{
	{KindEmail, emailRE, nil, nil},
	{KindIBAN, ibanRE, validIBAN, shrinkIBAN},
	{KindCard, cardRE, validCard, nil},
	{KindPhone, phoneRE, validPhone, nil},
}

// Detect scans text for PII. It never fails: empty or malformed input
// simply yields HasPII=false.
func Detect(text string) Result {
	if text == "" {
		return Result{}
	}

	var matches []Match
	for _, d := range detectors {
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			span := text[loc[0]:loc[1]]
			end := loc[1]
			if d.validate != nil && !d.validate(span) {
				if d.shrink == nil {
					continue
				}
				n := d.shrink(span)
				if n < 0 {
					continue
				}
				end = loc[0] + n
			}
			if overlaps(matches, loc[0], end) {
				continue
			}
			matches = append(matches, Match{Kind: d.kind, Start: loc[0], End: end})
		}
	}
	return Result{HasPII: len(matches) > 0, Matches: matches}
}

// Mask replaces each detected PII span with a [KIND] placeholder,
// preserving all non-PII content.
func Mask(text string) string {
	res := Detect(text)
	if !res.HasPII {
		return text
	}

	// Replace right to left so earlier offsets stay valid.
	sorted := make([]Match, len(res.Matches))
	copy(sorted, res.Matches)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Start > sorted[i].Start {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	out := text
	for _, m := range sorted {
		out = out[:m.Start] + "[" + strings.ToUpper(string(m.Kind)) + "]" + out[m.End:]
	}
	return out
}

func overlaps(matches []Match, start, end int) bool {
	for _, m := range matches {
		if start < m.End && end > m.Start {
			return true
		}
	}
	return false
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validCard checks the Luhn check-digit algorithm over 13-19 digits.
func validCard(s string) bool {
	digits := digitsOf(s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// validIBAN checks length bounds and the ISO 13616 mod-97 checksum.
func validIBAN(s string) bool {
	iban := strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	// Move the country code and check digits to the end, then compute the
	// big-number remainder incrementally.
	rearranged := iban[4:] + iban[:4]
	rem := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			n := int(r-'A') + 10
			rem = (rem*100 + n) % 97
		default:
			return false
		}
	}
	return rem == 1
}

// shrinkIBAN recovers a valid IBAN from a span whose greedy match ran
// into following words ("GB29 ... 19 thanks"). It re-checks the mod-97
// sum on progressively shorter prefixes; the longest valid one wins.
func shrinkIBAN(span string) int {
	for n := len(span) - 1; n > 0; n-- {
		s := strings.TrimRight(span[:n], " ")
		if validIBAN(s) {
			return len(s)
		}
	}
	return -1
}

func validPhone(s string) bool {
	n := len(digitsOf(s))
	return n >= 7 && n <= 15
}
