// Package conditions parses the shorthand condition notation used in
// workflow definitions, e.g. "validation.confidence > 0.8".
package conditions

import (
	"strconv"
	"strings"

	"github.com/viant/parsly"
	"github.com/zerotoship/flow/model"
)

// Parse parses a shorthand condition in the format: fieldPath operator value
func Parse(input []byte) (*model.Condition, error) {
	cursor := parsly.NewCursor("", input, 0)
	condition := &model.Condition{}

	matched := cursor.MatchAfterOptional(whitespaceToken, fieldPathToken)
	if matched.Code != fieldPathToken.Code {
		return nil, cursor.NewError(fieldPathToken)
	}
	condition.Field = matched.Text(cursor)

	matched = cursor.MatchAfterOptional(whitespaceToken, operatorToken)
	if matched.Code != operatorToken.Code {
		return nil, cursor.NewError(operatorToken)
	}
	condition.Operator = matched.Text(cursor)

	matched = cursor.MatchAfterOptional(whitespaceToken, quotedValueToken, literalValueToken)
	switch matched.Code {
	case quotedValueToken.Code:
		text := matched.Text(cursor)
		condition.Value = strings.Trim(text, "'")
	case literalValueToken.Code:
		condition.Value = parseLiteral(matched.Text(cursor))
	default:
		return nil, cursor.NewError(literalValueToken)
	}
	return condition, nil
}

// parseLiteral decodes an unquoted literal into its Go value. Numbers become
// float64 to match JSON decoding semantics; booleans and null are typed,
// everything else stays a string.
func parseLiteral(text string) interface{} {
	switch strings.ToLower(text) {
	case "true":
		return true
	case "false":
		return false
	case "null", "nil":
		return nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	return text
}
