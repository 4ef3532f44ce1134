package search

import (
	"regexp"
	"strings"
	"unicode"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// quotePairs are the accepted opening and closing quotes of a title query.
var quotePairs = [][2]string{
	{`"`, `"`},
	{`'`, `'`},
	{"“", "”"},
}

// Classify determines the query class. It is a pure function of query.
//
//   - a dataset UUID is ClassIdentifier
//   - text wrapped in matching quotes is ClassTitleLike
//   - at most two tokens is ClassShort
//   - anything else is ClassNormal
func Classify(query string) QueryClass {
	q := strings.TrimSpace(query)
	switch {
	case uuidPattern.MatchString(q):
		return ClassIdentifier
	case isQuoted(q):
		return ClassTitleLike
	case len(strings.Fields(q)) <= 2:
		return ClassShort
	default:
		return ClassNormal
	}
}

func isQuoted(q string) bool {
	_, ok := unquote(q)
	return ok
}

// unquote strips one pair of matching quotes. It reports false when q is
// not quoted or nothing remains inside the quotes.
func unquote(q string) (string, bool) {
	for _, p := range quotePairs {
		if len(q) > len(p[0])+len(p[1]) && strings.HasPrefix(q, p[0]) && strings.HasSuffix(q, p[1]) {
			inner := strings.TrimSpace(q[len(p[0]) : len(q)-len(p[1])])
			if inner != "" {
				return inner, true
			}
		}
	}
	return "", false
}

// searchText returns the text sent to the retrievers: quotes are removed
// from title queries.
func searchText(query string, class QueryClass) string {
	q := strings.TrimSpace(query)
	if class == ClassTitleLike {
		if inner, ok := unquote(q); ok {
			return inner
		}
	}
	return q
}

// tokens lowercases s and splits it on anything that is not a letter or digit.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
