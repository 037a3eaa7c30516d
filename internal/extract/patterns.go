package extract

import (
	"fmt"
	"strings"
	"time"
)

// CardRule selects the card-number pattern family.
type CardRule string

const (
	// RuleLoose accepts any 16-digit run, or a 15-digit run starting with 3.
	RuleLoose CardRule = "loose"
	// RuleIssuer accepts only known issuer prefixes and lengths.
	RuleIssuer CardRule = "issuer"
)

const (
	looseCardPattern = `[0-9]{16}|3[0-9]{14}`

	// Visa, MasterCard, Discover, Diners Club, American Express, JCB.
	issuerCardPattern = `4[0-9]{12}(?:[0-9]{3})?` +
		`|5[1-5][0-9]{14}` +
		`|6011[0-9]{12}` +
		`|3(?:0[0-5]|[68][0-9])[0-9]{11}` +
		`|3[47][0-9]{13}` +
		`|(?:2131|1800|35[0-9]{3})[0-9]{11}`

	monthPattern = `0[1-9]|1[0-2]`
)

// cardPatternFor wraps a rule's alternation so a match never starts or ends
// in the middle of a longer digit run. Whitespace removal glues the expiry
// to the number when the two lines are adjacent, so the number may also be
// followed by an MM/ or preceded by a /YY.
func cardPatternFor(rule CardRule) (string, error) {
	var body string
	switch rule {
	case RuleLoose, "":
		body = looseCardPattern
	case RuleIssuer:
		body = issuerCardPattern
	default:
		return "", fmt.Errorf("unknown card rule %q", rule)
	}
	return `(?:^|[^0-9]|/[0-9]{2})(` + body + `)(?:[^0-9]|$|(?:` + monthPattern + `)/)`, nil
}

// YearWindow is the inclusive range of accepted two-digit expiry years.
type YearWindow struct {
	Min int
	Max int
}

// StaticYearWindow accepts years 10 through 29.
func StaticYearWindow() YearWindow {
	return YearWindow{Min: 10, Max: 29}
}

// RollingYearWindow accepts the current year and the span years after it.
func RollingYearWindow(now time.Time, span int) YearWindow {
	lo := now.Year() % 100
	hi := lo + span
	if hi > 99 {
		hi = 99
	}
	return YearWindow{Min: lo, Max: hi}
}

// Validate reports whether the window describes a usable range.
func (w YearWindow) Validate() error {
	if w.Min < 0 || w.Max > 99 {
		return fmt.Errorf("year window %02d-%02d outside 00-99", w.Min, w.Max)
	}
	if w.Min > w.Max {
		return fmt.Errorf("year window min %02d greater than max %02d", w.Min, w.Max)
	}
	return nil
}

func (w YearWindow) String() string {
	return fmt.Sprintf("%02d-%02d", w.Min, w.Max)
}

// expiryPatternFor builds the MM/YY pattern for a window. The year must not
// run into more digits, so 12/2031 is not read as 12/20, unless those digits
// are long enough to be a card number that followed the expiry line.
func expiryPatternFor(w YearWindow) (string, error) {
	if err := w.Validate(); err != nil {
		return "", err
	}
	years := make([]string, 0, w.Max-w.Min+1)
	for y := w.Min; y <= w.Max; y++ {
		years = append(years, fmt.Sprintf("%02d", y))
	}
	return `(` + monthPattern + `)/(` + strings.Join(years, "|") + `)(?:[^0-9]|$|[0-9]{13})`, nil
}
