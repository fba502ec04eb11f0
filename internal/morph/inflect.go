package morph

import "strings"

// inflect produces up to maxVariantsPerWord surface forms for a lower-cased
// Russian token: the token itself, a guessed normal form, nominative and
// accusative case forms, the plural, and gender forms for adjectives. The
// rules are a compact declension heuristic, not a full morphological
// dictionary; for words the rules cannot handle the variant set degrades to
// the original token.
func inflect(word string) []string {
	out := []string{word}
	seen := map[string]struct{}{word: {}}
	add := func(forms ...string) {
		for _, f := range forms {
			if f == "" || len([]rune(f)) < minTokenRunes {
				continue
			}
			if _, ok := seen[f]; ok {
				continue
			}
			if len(out) >= maxVariantsPerWord {
				return
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}

	runes := []rune(word)
	stemOf := func(suffix string) string {
		return string(runes[:len(runes)-len([]rune(suffix))])
	}

	switch {
	// Adjectives: gender and number forms share a stem.
	case hasSuffix(word, "ый", "ой"):
		stem := stemOf("ый")
		add(stem+"ый", stem+"ая", stem+"ое", stem+"ые", stem+"ую", stem+"ого")
	case hasSuffix(word, "ий"):
		stem := stemOf("ий")
		add(stem+"ий", stem+"яя", stem+"ее", stem+"ие", stem+"юю", stem+"его")
	case hasSuffix(word, "ая"):
		stem := stemOf("ая")
		add(stem+"ая", stem+"ый", stem+"ое", stem+"ые", stem+"ую")
	case hasSuffix(word, "яя"):
		stem := stemOf("яя")
		add(stem+"яя", stem+"ий", stem+"ее", stem+"ие", stem+"юю")

	// Feminine nouns in -а / -я.
	case hasSuffix(word, "а"):
		stem := stemOf("а")
		add(stem+"у", pluralAfter(stem), stem+"е", stem+"ой")
	case hasSuffix(word, "я"):
		stem := stemOf("я")
		add(stem+"ю", stem+"и", stem+"е", stem+"ей")

	// Neuter nouns in -о / -е.
	case hasSuffix(word, "о"):
		stem := stemOf("о")
		add(stem+"а", stem+"е")
	case hasSuffix(word, "е"):
		stem := stemOf("е")
		add(stem+"я", stem+"и")

	// Soft-sign nouns: plural in -и.
	case hasSuffix(word, "ь"):
		stem := stemOf("ь")
		add(stem+"и", stem+"я", stem+"ю")

	// Plural-looking nouns in -ы / -и: recover the singular too.
	case hasSuffix(word, "ы"):
		stem := stemOf("ы")
		add(stem, stem+"а", stem+"у", stem+"ов")
	case hasSuffix(word, "и"):
		stem := stemOf("и")
		add(stem, stem+"а", stem+"у", stem+"ов", stem+"ь")

	// Consonant-final masculine nouns: accusative equals nominative for
	// inanimates, plural takes -ы/-и.
	default:
		if endsWithCyrillic(word) {
			add(pluralAfter(word), word+"а", word+"у", word+"ов", word+"е")
		}
	}
	return out
}

func hasSuffix(word string, suffixes ...string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(word, s) && len([]rune(word)) > len([]rune(s))+1 {
			return true
		}
	}
	return false
}

// pluralAfter appends the plural ending, using -и after velars and hushers
// per the spelling rule, -ы otherwise.
func pluralAfter(stem string) string {
	runes := []rune(stem)
	if len(runes) == 0 {
		return ""
	}
	switch runes[len(runes)-1] {
	case 'г', 'к', 'х', 'ж', 'ч', 'ш', 'щ':
		return stem + "и"
	}
	return stem + "ы"
}

func endsWithCyrillic(word string) bool {
	runes := []rune(word)
	if len(runes) == 0 {
		return false
	}
	r := runes[len(runes)-1]
	return r >= 'а' && r <= 'я' || r == 'ё'
}
