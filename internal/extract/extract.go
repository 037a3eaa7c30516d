// Package extract turns one frame's recognized text into card-number and
// expiry-date candidates.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// CardNumber is a run of 14 to 16 digits read from a frame.
type CardNumber string

// Masked returns the number with all but the last four digits hidden.
func (c CardNumber) Masked() string {
	if len(c) <= 4 {
		return string(c)
	}
	return strings.Repeat("*", len(c)-4) + string(c[len(c)-4:])
}

// Expiry is a two-digit month and two-digit year pair.
type Expiry struct {
	Month string `json:"month"`
	Year  string `json:"year"`
}

func (e Expiry) String() string {
	return e.Month + "/" + e.Year
}

// Candidates holds what a single frame yielded. A nil field means the frame
// had no match for it.
type Candidates struct {
	CardNumber *CardNumber
	Expiry     *Expiry
}

// Empty reports whether the frame yielded nothing.
func (c Candidates) Empty() bool {
	return c.CardNumber == nil && c.Expiry == nil
}

// Options configures an Extractor. The zero value uses the loose card rule
// and the static 10-29 year window.
type Options struct {
	CardRule   CardRule
	YearWindow YearWindow

	// CardPattern replaces the rule-derived pattern. It must have exactly one
	// capture group holding the number.
	CardPattern string
	// ExpiryPattern replaces the window-derived pattern. It must have exactly
	// two capture groups: month then year.
	ExpiryPattern string
}

// Extractor holds the compiled patterns. It has no mutable state and is safe
// for concurrent use.
type Extractor struct {
	card   *regexp.Regexp
	expiry *regexp.Regexp
}

// New compiles the patterns described by opts. Any error here is a
// configuration error; callers should not start scanning.
func New(opts Options) (*Extractor, error) {
	cardPattern := opts.CardPattern
	if cardPattern == "" {
		p, err := cardPatternFor(opts.CardRule)
		if err != nil {
			return nil, err
		}
		cardPattern = p
	}

	window := opts.YearWindow
	if window == (YearWindow{}) {
		window = StaticYearWindow()
	}
	expiryPattern := opts.ExpiryPattern
	if expiryPattern == "" {
		p, err := expiryPatternFor(window)
		if err != nil {
			return nil, err
		}
		expiryPattern = p
	}

	card, err := compile("card", cardPattern, 1)
	if err != nil {
		return nil, err
	}
	expiry, err := compile("expiry", expiryPattern, 2)
	if err != nil {
		return nil, err
	}
	return &Extractor{card: card, expiry: expiry}, nil
}

func compile(name, pattern string, groups int) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling %s pattern: %w", name, err)
	}
	if re.NumSubexp() != groups {
		return nil, fmt.Errorf("%s pattern has %d capture groups, want %d", name, re.NumSubexp(), groups)
	}
	return re, nil
}

// Normalize joins the lines and drops every whitespace rune, so numbers split
// across lines or by stray spaces become contiguous.
func Normalize(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		for _, r := range line {
			if !unicode.IsSpace(r) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// Extract normalizes the lines and returns the candidates found in them.
func (e *Extractor) Extract(lines []string) Candidates {
	s := Normalize(lines)
	if s == "" {
		return Candidates{}
	}

	var c Candidates
	if n, ok := e.CardNumber(s); ok {
		c.CardNumber = &n
	}
	if x, ok := e.Expiry(s); ok {
		c.Expiry = &x
	}
	return c
}

// CardNumber returns the leftmost card number in a normalized string.
func (e *Extractor) CardNumber(s string) (CardNumber, bool) {
	m := e.card.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return CardNumber(m[1]), true
}

// Expiry returns the leftmost MM/YY in a normalized string.
func (e *Extractor) Expiry(s string) (Expiry, bool) {
	m := e.expiry.FindStringSubmatch(s)
	if m == nil {
		return Expiry{}, false
	}
	return Expiry{Month: m[1], Year: m[2]}, true
}
