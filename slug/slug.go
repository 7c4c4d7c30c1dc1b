// Package slug converts a vehicle identity (make, model, year) to and from
// a URL-safe, transliterated, lowercase token such as "lada-niva-2021".
//
// Encoding is lossy: transliteration and diacritic stripping cannot be
// reversed, so Decode returns the normalized parts, not the originals.
package slug

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Parts is the identity recovered from a slug.
type Parts struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
}

// cyrillic is the minimal RU->EN transliteration table.
var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
	yearTail = regexp.MustCompile(`^(.*)-(\d{4})$`)
)

func transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if latin, ok := cyrillic[r]; ok {
			b.WriteString(latin)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripMarks removes combining diacritical marks (U+0300..U+036F) left by
// NFKD decomposition.
func stripMarks(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0x0300 && r <= 0x036f {
			return -1
		}
		return r
	}, s)
}

// Part normalizes one free-text component (make or model) into slug form.
func Part(s string) string {
	s = transliterate(strings.ToLower(strings.TrimSpace(s)))
	s = stripMarks(norm.NFKD.String(s))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Encode builds the slug for make, model and year. Parts that normalize
// to the empty string are omitted.
func Encode(mk, model string, year int) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{Part(mk), Part(model), strconv.Itoa(year)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}

// Decode parses a slug produced by Encode. It reports false when the slug
// has no trailing four-digit year or fewer than two name segments.
func Decode(s string) (Parts, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	m := yearTail.FindStringSubmatch(s)
	if m == nil {
		return Parts{}, false
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return Parts{}, false
	}

	segments := strings.FieldsFunc(m[1], func(r rune) bool { return r == '-' })
	if len(segments) < 2 {
		return Parts{}, false
	}
	return Parts{
		Make:  segments[0],
		Model: strings.Join(segments[1:], "-"),
		Year:  year,
	}, true
}
