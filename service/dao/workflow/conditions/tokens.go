package conditions

import (
	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

// Token codes
const (
	whitespaceCode = iota
	fieldPathCode
	operatorCode
	quotedValueCode
	literalValueCode
)

// Token definitions
var (
	whitespaceToken   = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	fieldPathToken    = parsly.NewToken(fieldPathCode, "FieldPath", newFieldPathMatcher())
	operatorToken     = parsly.NewToken(operatorCode, "Operator", newOperatorMatcher())
	quotedValueToken  = parsly.NewToken(quotedValueCode, "QuotedValue", newQuotedMatcher())
	literalValueToken = parsly.NewToken(literalValueCode, "LiteralValue", newLiteralMatcher())
)

func newFieldPathMatcher() parsly.Matcher {
	return &fieldPathMatcher{}
}

func newOperatorMatcher() parsly.Matcher {
	return &operatorMatcher{}
}

func newLiteralMatcher() parsly.Matcher {
	return &literalMatcher{}
}

func newQuotedMatcher() parsly.Matcher {
	return &quotedMatcher{}
}

// quotedMatcher matches a single-quoted string including the quotes.
type quotedMatcher struct{}

func (m *quotedMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize

	if pos >= size || input[pos] != '\'' {
		return 0
	}
	for i := pos + 1; i < size; i++ {
		if input[i] == '\'' {
			return i - pos + 1
		}
	}
	return 0
}

// fieldPathMatcher matches dotted context paths such as validation.confidence
// or reviews[0].score
type fieldPathMatcher struct{}

func (m *fieldPathMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize

	if pos >= size {
		return 0
	}
	if !isLetter(input[pos]) && input[pos] != '_' {
		return 0
	}

	matched := 1
	for i := pos + 1; i < size; i++ {
		c := input[i]
		if isLetter(c) || isDigit(c) || c == '_' || c == '.' || c == '[' || c == ']' {
			matched++
			continue
		}
		break
	}
	return matched
}

// operatorMatcher matches comparison operators; two-byte forms take priority
// over their one-byte prefixes.
type operatorMatcher struct{}

func (m *operatorMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize

	if pos >= size {
		return 0
	}
	if pos+1 < size {
		switch string(input[pos : pos+2]) {
		case "==", "!=", ">=", "<=":
			return 2
		}
	}
	switch input[pos] {
	case '>', '<':
		return 1
	}
	// word operator: contains
	const word = "contains"
	if pos+len(word) <= size && string(input[pos:pos+len(word)]) == word {
		return len(word)
	}
	return 0
}

// literalMatcher matches an unquoted literal: number, boolean or bare word.
type literalMatcher struct{}

func (m *literalMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize

	matched := 0
	for i := pos; i < size; i++ {
		c := input[i]
		if c == ' ' || c == '\t' {
			break
		}
		matched++
	}
	return matched
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
