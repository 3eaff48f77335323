package action

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// lawAliases maps short law codes to canonical slugs. Targets must be
// canonical slugs themselves and never appear as keys.
var lawAliases = map[string]string{
	"lpac":         "ley-39-2015",
	"lrjsp":        "ley-40-2015",
	"ce":           "constitucion-espanola",
	"constitucion": "constitucion-espanola",
	"trebep":       "rdl-5-2015",
	"ebep":         "rdl-5-2015",
	"lopdgdd":      "lo-3-2018",
	"lcsp":         "ley-9-2017",
	"ltbg":         "ley-19-2013",
	"lbrl":         "ley-7-1985",
	"lopj":         "lo-6-1985",
	"lgt":          "ley-58-2003",
	"lgss":         "rdl-8-2015",
	"loreg":        "lo-5-1985",
	"tue":          "tratado-union-europea",
	"tfue":         "tratado-funcionamiento-union-europea",
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// LawSlug normalizes a law code or name into its URL slug, e.g.
// "Ley 39/2015" and "LPAC" both become "ley-39-2015". It is idempotent.
func LawSlug(s string) string {
	folded := strings.ToLower(foldAccents(s))

	var b strings.Builder
	dash := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case unicode.IsSpace(r), r == '/', r == '-', r == '_', r == '.':
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")

	if alias, ok := lawAliases[slug]; ok {
		return alias
	}
	return slug
}
