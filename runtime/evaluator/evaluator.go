// Package evaluator resolves dotted context paths and evaluates transition
// conditions against a context snapshot.
package evaluator

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/zerotoship/flow/model"
)

// Lookup navigates a dotted path such as "validation.confidence" or
// "reviews[0].score" through nested maps, slices and structs. A missing
// segment yields (nil, false).
func Lookup(path string, from map[string]interface{}) (interface{}, bool) {
	if path == "" || from == nil {
		return nil, false
	}
	segments := splitPath(path)
	var current interface{} = from
	for _, segment := range segments {
		if segment.index >= 0 {
			current = getElement(current, segment.index)
		} else {
			current = getProperty(current, segment.name)
		}
		if current == nil {
			return nil, false
		}
	}
	return current, true
}

// EvalCondition evaluates a single condition against the snapshot. A missing
// field never matches, whatever the operator.
func EvalCondition(condition *model.Condition, snapshot map[string]interface{}) bool {
	if condition == nil {
		return true
	}
	actual, ok := Lookup(condition.Field, snapshot)
	if !ok {
		return false
	}
	switch condition.Operator {
	case model.OpEqual:
		return looseEqual(actual, condition.Value)
	case model.OpNotEqual:
		return !looseEqual(actual, condition.Value)
	case model.OpGreater:
		return compareValues(actual, condition.Value) > 0
	case model.OpGreaterEqual:
		return compareValues(actual, condition.Value) >= 0
	case model.OpLess:
		return compareValues(actual, condition.Value) < 0
	case model.OpLessEqual:
		return compareValues(actual, condition.Value) <= 0
	case model.OpContains:
		return contains(actual, condition.Value)
	}
	return false
}

// EvalAll reports whether every condition holds. An empty list always passes.
// When a condition fails its pointer is returned so the caller can consult
// the escalation attached to it.
func EvalAll(conditions []*model.Condition, snapshot map[string]interface{}) (bool, *model.Condition) {
	for _, condition := range conditions {
		if !EvalCondition(condition, snapshot) {
			return false, condition
		}
	}
	return true, nil
}

type pathSegment struct {
	name  string
	index int
}

func splitPath(path string) []pathSegment {
	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		for {
			open := strings.Index(part, "[")
			if open < 0 {
				if part != "" {
					segments = append(segments, pathSegment{name: part, index: -1})
				}
				break
			}
			if open > 0 {
				segments = append(segments, pathSegment{name: part[:open], index: -1})
			}
			closing := strings.Index(part, "]")
			if closing < open {
				return segments
			}
			index, err := strconv.Atoi(part[open+1 : closing])
			if err != nil {
				return segments
			}
			segments = append(segments, pathSegment{index: index})
			part = part[closing+1:]
		}
	}
	return segments
}

// looseEqual compares across numeric types so that 1 == 1.0 and a YAML int
// matches a JSON float.
func looseEqual(x, y interface{}) bool {
	if isNumeric(x) && isNumeric(y) {
		return toFloat64(x) == toFloat64(y)
	}
	if reflect.DeepEqual(x, y) {
		return true
	}
	return fmt.Sprintf("%v", x) == fmt.Sprintf("%v", y)
}

// compareValues returns -1, 0 or 1. Non-numeric operands compare as strings.
func compareValues(x, y interface{}) int {
	if isNumeric(x) && isNumeric(y) {
		xFloat, yFloat := toFloat64(x), toFloat64(y)
		switch {
		case xFloat < yFloat:
			return -1
		case xFloat > yFloat:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprintf("%v", x), fmt.Sprintf("%v", y))
}

func contains(haystack, needle interface{}) bool {
	switch actual := haystack.(type) {
	case string:
		return strings.Contains(actual, fmt.Sprintf("%v", needle))
	case []interface{}:
		for _, item := range actual {
			if looseEqual(item, needle) {
				return true
			}
		}
	case []string:
		target := fmt.Sprintf("%v", needle)
		for _, item := range actual {
			if item == target {
				return true
			}
		}
	case map[string]interface{}:
		_, ok := actual[fmt.Sprintf("%v", needle)]
		return ok
	}
	return false
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	case string:
		_, err := strconv.ParseFloat(v.(string), 64)
		return err == nil
	}
	return false
}

func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	}
	return 0
}

// getProperty reads a named member from a map or, via reflection, an
// exported struct field. Field matching is case-insensitive to mirror the
// YAML decoding rules.
func getProperty(obj interface{}, prop string) interface{} {
	if obj == nil {
		return nil
	}
	if mapObj, ok := obj.(map[string]interface{}); ok {
		if val, exists := mapObj[prop]; exists {
			return val
		}
		return nil
	}
	val := reflect.ValueOf(obj)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}
	field := val.FieldByName(prop)
	if !field.IsValid() {
		typ := val.Type()
		for i := 0; i < typ.NumField(); i++ {
			if strings.EqualFold(typ.Field(i).Name, prop) {
				field = val.Field(i)
				break
			}
		}
		if !field.IsValid() {
			return nil
		}
	}
	if !field.CanInterface() {
		return nil
	}
	return field.Interface()
}

func getElement(obj interface{}, index int) interface{} {
	if obj == nil || index < 0 {
		return nil
	}
	switch arr := obj.(type) {
	case []interface{}:
		if index < len(arr) {
			return arr[index]
		}
	case []string:
		if index < len(arr) {
			return arr[index]
		}
	default:
		val := reflect.ValueOf(obj)
		if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
			return nil
		}
		if index >= val.Len() {
			return nil
		}
		element := val.Index(index)
		if !element.CanInterface() {
			return nil
		}
		return element.Interface()
	}
	return nil
}
