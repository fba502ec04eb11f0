// Package morph expands Russian procurement queries into inflected surface
// forms and judges result relevance against the original query. It is pure:
// no I/O, deterministic for a given input.
package morph

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// MaxExpandedQueries caps the expansion fan-out per request.
	MaxExpandedQueries = 15

	// maxVariantsPerWord caps surface forms per token.
	maxVariantsPerWord = 10

	minTokenRunes = 2
)

// WordVariants pairs a kept token with its inflected surface forms. The
// token itself is always the first variant.
type WordVariants struct {
	Word     string
	Variants []string
}

// Analysis is the result of expanding one query.
type Analysis struct {
	Original string
	Words    []WordVariants
	Expanded []string
}

// Engine performs expansion and relevance scoring. The zero value is not
// usable; construct with New.
type Engine struct {
	lower cases.Caser
}

func New() *Engine {
	return &Engine{lower: cases.Lower(language.Russian)}
}

// Expand tokenizes the query, inflects each kept token, and builds the
// expanded query list: the trimmed original first, then single tokens and
// single-substitution variants ordered by (token count desc, lexicographic),
// capped at MaxExpandedQueries.
func (e *Engine) Expand(query string) Analysis {
	original := strings.Join(strings.Fields(query), " ")
	a := Analysis{Original: original}
	tokens := e.keptTokens(original)
	for _, tok := range tokens {
		a.Words = append(a.Words, WordVariants{Word: tok, Variants: inflect(tok)})
	}

	seen := map[string]struct{}{}
	add := func(dst []string, q string) []string {
		q = strings.TrimSpace(q)
		if q == "" {
			return dst
		}
		if _, ok := seen[q]; ok {
			return dst
		}
		seen[q] = struct{}{}
		return append(dst, q)
	}

	if original != "" {
		a.Expanded = add(a.Expanded, original)
	}
	var rest []string
	if len(tokens) > 1 {
		for _, tok := range tokens {
			rest = add(rest, tok)
		}
	}
	fields := strings.Fields(original)
	occurrence := map[string]int{}
	for _, wv := range a.Words {
		// Position of this kept token within the full field list.
		pos := indexOfNth(fields, wv.Word, occurrence[wv.Word])
		occurrence[wv.Word]++
		if pos < 0 {
			continue
		}
		for _, variant := range wv.Variants {
			if variant == wv.Word {
				continue
			}
			sub := make([]string, len(fields))
			copy(sub, fields)
			sub[pos] = variant
			rest = add(rest, strings.Join(sub, " "))
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		ti, tj := len(strings.Fields(rest[i])), len(strings.Fields(rest[j]))
		if ti != tj {
			return ti > tj
		}
		return rest[i] < rest[j]
	})
	a.Expanded = append(a.Expanded, rest...)
	if len(a.Expanded) > MaxExpandedQueries {
		a.Expanded = a.Expanded[:MaxExpandedQueries]
	}
	return a
}

// IsRelevant reports whether any variant of any kept token of the original
// query appears in text. Queries with no kept tokens cannot discriminate,
// so everything passes.
func (e *Engine) IsRelevant(text, originalQuery string) bool {
	tokens := e.keptTokens(originalQuery)
	if len(tokens) == 0 {
		return true
	}
	folded := e.lower.String(text)
	for _, tok := range tokens {
		for _, variant := range inflect(tok) {
			if strings.Contains(folded, variant) {
				return true
			}
		}
	}
	return false
}

// keptTokens lower-cases and filters the query tokens: drop tokens shorter
// than two runes, purely numeric tokens, and purely Latin tokens.
func (e *Engine) keptTokens(query string) []string {
	var out []string
	for _, raw := range strings.Fields(query) {
		tok := strings.TrimFunc(e.lower.String(raw), func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		runes := []rune(tok)
		if len(runes) < minTokenRunes {
			continue
		}
		if allDigits(runes) || allLatin(runes) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func allDigits(rs []rune) bool {
	for _, r := range rs {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func allLatin(rs []rune) bool {
	for _, r := range rs {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func indexOfNth(fields []string, word string, n int) int {
	lower := cases.Lower(language.Russian)
	for i, f := range fields {
		if lower.String(strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})) == word {
			if n == 0 {
				return i
			}
			n--
		}
	}
	return -1
}
