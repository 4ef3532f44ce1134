package store

import (
	"strings"
	"unicode"
)

// Tokenize splits prose into lowercase alphanumeric tokens of at least
// two characters. Hyphenated and slashed compounds split into parts.
func Tokenize(text string) []string {
	return tokenize(text, 2)
}

func tokenize(text string, minLen int) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		lower := strings.ToLower(f)
		if len([]rune(lower)) >= minLen {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
