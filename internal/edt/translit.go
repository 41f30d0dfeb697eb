package edt

import (
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// vowelBase maps accented Latin vowels to their bare letter. Only vowels are
// folded: ç, ñ and other accented consonants are left alone.
var vowelBase = buildVowelBase(map[rune]string{
	'a': "àáâãäå",
	'e': "èéêë",
	'i': "ìíîï",
	'o': "òóôõö",
	'u': "ùúûü",
	'A': "ÀÁÂÃÄÅ",
	'E': "ÈÉÊË",
	'I': "ÌÍÎÏ",
	'O': "ÒÓÔÕÖ",
	'U': "ÙÚÛÜ",
})

func buildVowelBase(groups map[rune]string) map[rune]rune {
	m := make(map[rune]rune)
	for base, accented := range groups {
		for _, r := range accented {
			m[r] = base
		}
	}
	return m
}

func foldVowel(r rune) rune {
	if b, ok := vowelBase[r]; ok {
		return b
	}
	return r
}

// Transliterate replaces accented vowels in s with their unaccented form.
func Transliterate(s string) string {
	out, _, err := transform.String(runes.Map(foldVowel), s)
	if err != nil {
		return s
	}
	return out
}
