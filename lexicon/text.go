package lexicon

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// MaxQueryTerms caps the number of keywords taken from one query.
const MaxQueryTerms = 12

// Words dropped from queries and the index on top of the English stop list.
// They carry no meaning in questions about legislation.
var extraStopWords = map[string]bool{
	"say": true, "says": true, "said": true, "mean": true, "means": true,
	"would": true, "could": true, "shall": true, "also": true,
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:[&'’][\p{L}\p{N}]+)*`)

// Words splits text into lowercase word tokens without filtering or stemming.
// Ampersands inside a token are kept so "R&D" stays one word.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// WordSpans returns the byte offsets of the word tokens of text, as pairs
// of start and end. Case is preserved.
func WordSpans(text string) [][]int {
	return wordRe.FindAllStringIndex(text, -1)
}

// Stem reduces a lowercase word to its index form.
// Tokens carrying digits or '&' are kept verbatim.
func Stem(word string) string {
	word = strings.TrimSuffix(strings.TrimSuffix(word, "'s"), "’s")
	for _, r := range word {
		if unicode.IsDigit(r) || r == '&' {
			return word
		}
	}
	return english.Stem(word, false)
}

// IsStopWord reports whether a lowercase word is ignored.
func IsStopWord(word string) bool {
	return english.IsStopWord(word) || extraStopWords[word]
}

// Terms tokenizes, drops stop words and stems. Duplicates are kept.
func Terms(text string) []string {
	words := Words(text)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if IsStopWord(w) {
			continue
		}
		if t := Stem(w); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// QueryTerms returns the distinct stemmed terms of a query in first-seen order,
// capped at MaxQueryTerms.
func QueryTerms(text string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, MaxQueryTerms)
	for _, t := range Terms(text) {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == MaxQueryTerms {
			break
		}
	}
	return out
}
