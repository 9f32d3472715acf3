package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zerotoship/flow/model"
)

func TestLookup(t *testing.T) {
	snapshot := map[string]interface{}{
		"validation": map[string]interface{}{
			"confidence": 0.85,
			"passed":     true,
		},
		"reviews": []interface{}{
			map[string]interface{}{"score": 4},
			map[string]interface{}{"score": 2},
		},
		"stage": "build",
	}

	testCases := []struct {
		description string
		path        string
		expect      interface{}
		found       bool
	}{
		{description: "top level", path: "stage", expect: "build", found: true},
		{description: "nested map", path: "validation.confidence", expect: 0.85, found: true},
		{description: "indexed element", path: "reviews[1].score", expect: 2, found: true},
		{description: "missing leaf", path: "validation.missing", found: false},
		{description: "missing root", path: "nothing.here", found: false},
		{description: "index out of range", path: "reviews[9].score", found: false},
	}
	for _, tc := range testCases {
		value, ok := Lookup(tc.path, snapshot)
		assert.Equal(t, tc.found, ok, tc.description)
		if tc.found {
			assert.Equal(t, tc.expect, value, tc.description)
		}
	}
}

func TestEvalCondition(t *testing.T) {
	snapshot := map[string]interface{}{
		"validation": map[string]interface{}{"confidence": 0.85, "status": "passed"},
		"tags":       []interface{}{"mvp", "beta"},
		"attempts":   3,
	}

	testCases := []struct {
		description string
		condition   *model.Condition
		expect      bool
	}{
		{
			description: "numeric greater",
			condition:   &model.Condition{Field: "validation.confidence", Operator: model.OpGreater, Value: 0.8},
			expect:      true,
		},
		{
			description: "numeric cross-type equality",
			condition:   &model.Condition{Field: "attempts", Operator: model.OpEqual, Value: 3.0},
			expect:      true,
		},
		{
			description: "string equality",
			condition:   &model.Condition{Field: "validation.status", Operator: model.OpEqual, Value: "passed"},
			expect:      true,
		},
		{
			description: "not equal",
			condition:   &model.Condition{Field: "validation.status", Operator: model.OpNotEqual, Value: "failed"},
			expect:      true,
		},
		{
			description: "less or equal fails",
			condition:   &model.Condition{Field: "attempts", Operator: model.OpLessEqual, Value: 2},
			expect:      false,
		},
		{
			description: "contains on slice",
			condition:   &model.Condition{Field: "tags", Operator: model.OpContains, Value: "beta"},
			expect:      true,
		},
		{
			description: "contains on string",
			condition:   &model.Condition{Field: "validation.status", Operator: model.OpContains, Value: "pass"},
			expect:      true,
		},
		{
			description: "missing field never matches",
			condition:   &model.Condition{Field: "absent.path", Operator: model.OpEqual, Value: nil},
			expect:      false,
		},
		{
			description: "unknown operator",
			condition:   &model.Condition{Field: "attempts", Operator: "~=", Value: 3},
			expect:      false,
		},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expect, EvalCondition(tc.condition, snapshot), tc.description)
	}
}

func TestEvalAll(t *testing.T) {
	snapshot := map[string]interface{}{"confidence": 0.9, "passed": true}

	ok, failed := EvalAll(nil, snapshot)
	assert.True(t, ok)
	assert.Nil(t, failed)

	failing := &model.Condition{Field: "confidence", Operator: model.OpGreater, Value: 0.95}
	ok, failed = EvalAll([]*model.Condition{
		{Field: "passed", Operator: model.OpEqual, Value: true},
		failing,
	}, snapshot)
	assert.False(t, ok)
	assert.Same(t, failing, failed)
}
