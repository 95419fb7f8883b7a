// Package speech prepares story text for a narration engine.
package speech

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Locale spells numbers and units in one spoken language.
type Locale interface {
	Tag() language.Tag
	// NumberToWords spells n, which is always within [0, MaxNumber()].
	NumberToWords(n int) string
	// UnitToWords returns the spoken unit, or the unit itself when unknown.
	UnitToWords(unit string) string
	DigitWord(d int) string
	MaxNumber() int
}

var locales = []Locale{Spanish{}}

// Sanitizer converts numerals, units and symbols into speakable words.
type Sanitizer struct {
	locale Locale
}

func New(locale Locale) *Sanitizer {
	return &Sanitizer{locale: locale}
}

// ForLanguage picks the closest known locale for a BCP 47 tag such as "es-MX".
// Unknown or unparseable tags fall back to Spanish.
func ForLanguage(tag string) *Sanitizer {
	tags := make([]language.Tag, len(locales))
	for i, l := range locales {
		tags[i] = l.Tag()
	}

	want, err := language.Parse(tag)
	if err != nil {
		return New(locales[0])
	}
	_, idx, conf := language.NewMatcher(tags).Match(want)
	if conf == language.No {
		return New(locales[0])
	}
	return New(locales[idx])
}

func (s *Sanitizer) Locale() Locale {
	return s.locale
}

var (
	numberWithUnit = regexp.MustCompile(`(\d+)([a-zA-Z%$]+)?`)
	notSpeakable   = regexp.MustCompile(`[^a-zA-ZÁÉÍÓÚáéíóúñÑüÜ¿¡!?,.\s]`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// Sanitize is deterministic and idempotent.
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}

	out := numberWithUnit.ReplaceAllStringFunc(text, func(match string) string {
		m := numberWithUnit.FindStringSubmatch(match)
		words := s.locale.NumberToWords(s.clamp(m[1]))
		if m[2] != "" {
			words += " " + s.locale.UnitToWords(m[2])
		}
		return words
	})

	out = s.spellStrayDigits(out)
	out = notSpeakable.ReplaceAllString(out, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(out, " "))
}

func (s *Sanitizer) clamp(digits string) int {
	max := s.locale.MaxNumber()
	n, err := strconv.Atoi(digits)
	if err != nil || n > max {
		// only overflow can fail here, the regexp guarantees digits
		return max
	}
	return n
}

// spellStrayDigits spells decimal digits from scripts other than ASCII one by one.
func (s *Sanitizer) spellStrayDigits(text string) string {
	var b strings.Builder
	for _, r := range text {
		d, ok := digitValue(r)
		if !ok {
			b.WriteRune(r)
			continue
		}
		b.WriteString(" " + s.locale.DigitWord(d) + " ")
	}
	return b.String()
}

// digitValue returns the value of a Unicode decimal digit. Nd ranges are
// runs of ten consecutive code points starting at zero.
func digitValue(r rune) (int, bool) {
	if !unicode.Is(unicode.Nd, r) {
		return 0, false
	}
	for _, rg := range unicode.Nd.R16 {
		if r >= rune(rg.Lo) && r <= rune(rg.Hi) && rg.Stride == 1 {
			return int(r-rune(rg.Lo)) % 10, true
		}
	}
	for _, rg := range unicode.Nd.R32 {
		if r >= rune(rg.Lo) && r <= rune(rg.Hi) && rg.Stride == 1 {
			return int(r-rune(rg.Lo)) % 10, true
		}
	}
	return 0, false
}
