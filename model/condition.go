package model

// Operators recognised by condition evaluation.
const (
	OpEqual        = "=="
	OpNotEqual     = "!="
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpContains     = "contains"
)

type (
	// Condition compares a dotted-path field of the project payload against
	// an expected value. A step's condition list is AND-ed; a missing field
	// evaluates the condition as false, never as an error.
	Condition struct {
		Field    string      `json:"field" yaml:"field"`
		Operator string      `json:"operator" yaml:"operator"`
		Value    interface{} `json:"value" yaml:"value"`
		// OnFail optionally escalates the run to another workflow when the
		// condition fails.
		OnFail *Escalation `json:"onFail,omitempty" yaml:"onFail,omitempty"`
	}

	// Escalation switches the active workflow definition; the run resumes
	// from the target workflow's entry state.
	Escalation struct {
		Workflow string `json:"escalateTo" yaml:"escalateTo"`
	}
)

// knownOperators guards load-time validation.
var knownOperators = map[string]bool{
	OpEqual:        true,
	OpNotEqual:     true,
	OpGreater:      true,
	OpGreaterEqual: true,
	OpLess:         true,
	OpLessEqual:    true,
	OpContains:     true,
}

// IsKnownOperator reports whether op is part of the closed operator set.
func IsKnownOperator(op string) bool {
	return knownOperators[op]
}

// Clone creates a deep copy of the condition.
func (c *Condition) Clone() *Condition {
	if c == nil {
		return nil
	}
	clone := &Condition{Field: c.Field, Operator: c.Operator, Value: c.Value}
	if c.OnFail != nil {
		onFail := *c.OnFail
		clone.OnFail = &onFail
	}
	return clone
}
