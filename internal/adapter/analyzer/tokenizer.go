package analyzer

import (
	"strings"
	"unicode"

	"docqa/internal/port"
)

// Tokenizer splits text into normalised terms and estimates model token counts.
type Tokenizer struct {
	stemmer   *Stemmer
	stopwords map[string]struct{}
}

var _ port.Tokenizer = (*Tokenizer)(nil)

// NewTokenizer creates a new Tokenizer.
func NewTokenizer(useStemming bool) *Tokenizer {
	t := &Tokenizer{stopwords: defaultStopwords()}
	if useStemming {
		t.stemmer = NewStemmer()
	}
	return t
}

// Tokenize returns lower-cased terms with stopwords and one-letter words removed.
func (t *Tokenizer) Tokenize(text string) []string {
	words := Words(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.stemmer != nil {
			word = t.stemmer.Stem(word)
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// CountTokens returns an approximate token count for prompt budgeting.
// An average word costs about 1.3 tokens; punctuation-only text costs one
// token per four characters.
func (t *Tokenizer) CountTokens(text string) int {
	return HeuristicCount(text)
}

// HeuristicCount is the word-based token estimate used by CountTokens.
func HeuristicCount(text string) int {
	words := Words(text)
	if len(words) == 0 {
		return (len([]rune(strings.TrimSpace(text))) + 3) / 4
	}
	return int(float64(len(words))*1.3 + 0.5)
}

// Words splits text on anything that is not a letter, digit or underscore.
func Words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// defaultStopwords returns a set of common English stopwords.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"no", "can", "do", "does", "did", "been", "being", "would",
		"could", "should", "may", "might", "must", "shall", "which",
		"who", "whom", "what", "when", "where", "why", "how", "all",
		"each", "every", "both", "few", "more", "most", "other",
		"some", "such", "than", "too", "very", "just", "also",
		"there", "these", "those", "into", "about", "me", "my",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
