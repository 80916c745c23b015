package cognitive

import (
	"strings"
	"unicode"
)

// #region stopwords

// stopwords holds words excluded from episode matching. Beyond common
// English function words, the set drops the first-person request filler
// that dominates how operators phrase actions ("I just really need you to
// help me deploy..."), so overlap is measured on what the action touches.
var stopwords = map[string]bool{
	// articles, conjunctions, prepositions
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "if": true, "then": true, "than": true, "so": true,
	"as": true, "at": true, "by": true, "for": true, "from": true,
	"in": true, "into": true, "of": true, "on": true, "to": true,
	"with": true, "about": true, "up": true, "out": true,

	// pronouns and determiners
	"it": true, "its": true, "this": true, "that": true, "what": true,
	"which": true, "who": true, "how": true, "when": true, "where": true,
	"why": true, "you": true, "me": true, "i": true, "my": true,
	"your": true, "we": true, "they": true, "them": true, "us": true,
	"some": true, "any": true,

	// auxiliaries
	"is": true, "are": true, "was": true, "were": true, "do": true,
	"does": true, "did": true, "have": true, "has": true, "had": true,
	"be": true, "been": true, "being": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true,
	"can": true, "shall": true, "not": true, "no": true,

	// request filler
	"please": true, "just": true, "really": true, "need": true,
	"want": true, "help": true, "let": true, "lets": true, "get": true,
	"make": true, "going": true, "right": true, "now": true,
	"quickly": true, "asap": true,
}

// tokenize splits text into unique lowercase non-stopword tokens.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range words {
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// sharedKeywords returns the count of tokens present in both slices.
func sharedKeywords(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}

// #endregion stopwords
