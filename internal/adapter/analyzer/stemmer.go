package analyzer

import "strings"

// Stemmer folds English inflections so that "indexes", "indexed" and
// "indexing" share a feature. It strips one suffix at a time and never
// shortens a word below three letters.
type Stemmer struct{}

func NewStemmer() *Stemmer {
	return &Stemmer{}
}

type suffixRule struct {
	suffix  string
	replace string
}

// Longest suffixes first; the first rule that leaves a long enough stem wins.
var suffixRules = []suffixRule{
	{"ational", "ate"},
	{"ization", "ize"},
	{"fulness", "ful"},
	{"iveness", "ive"},
	{"ations", "ate"},
	{"nesses", ""},
	{"ation", "ate"},
	{"ness", ""},
	{"ingly", ""},
	{"edly", ""},
	{"ies", "y"},
	{"ied", "y"},
	{"ing", ""},
	{"ers", ""},
	{"est", ""},
	{"ly", ""},
	{"ed", ""},
	{"er", ""},
	{"es", ""},
	{"s", ""},
}

// Stem returns the stem of a lower-case word.
func (s *Stemmer) Stem(word string) string {
	if len(word) < 4 {
		return word
	}
	if strings.HasSuffix(word, "ss") || strings.HasSuffix(word, "us") || strings.HasSuffix(word, "is") {
		return word
	}

	for _, r := range suffixRules {
		if !strings.HasSuffix(word, r.suffix) {
			continue
		}
		stem := word[:len(word)-len(r.suffix)]
		if len(stem) < 3 || !hasVowel(stem) {
			continue
		}
		if r.suffix == "es" && !endsSibilant(stem) {
			stem = word[:len(word)-1]
		}
		stem += r.replace
		if r.replace == "" && (r.suffix == "ing" || r.suffix == "ed" || r.suffix == "er" || r.suffix == "est") {
			stem = undouble(stem)
		}
		return stem
	}
	return word
}

func hasVowel(s string) bool {
	return strings.ContainsAny(s, "aeiouy")
}

func endsSibilant(s string) bool {
	for _, suf := range []string{"s", "x", "z", "ch", "sh"} {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// undouble turns "runn" into "run" but leaves "fall" and "buzz" alone.
func undouble(s string) string {
	n := len(s)
	if n < 3 || s[n-1] != s[n-2] {
		return s
	}
	switch s[n-1] {
	case 'l', 's', 'z':
		return s
	case 'a', 'e', 'i', 'o', 'u':
		return s
	}
	return s[:n-1]
}
