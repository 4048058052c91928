// Package segmentation compiles dashboard filter state into the BI tool's
// structured query language: nested arrays such as
// ["and", ["=", ["field", 12, null], "CA"], [">", ["field", 14, null], 1000]].
package segmentation

import (
	"encoding/json"
	"fmt"
)

// ==========================================
// OPERATORS
// ==========================================

// Operator is the comparison a FilterValue applies to its field.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
	OpIsNull      Operator = "is_null"
	OpIsNotNull   Operator = "is_not_null"
)

// Operators lists every operator the dashboard offers, in menu order.
var Operators = []Operator{
	OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith,
	OpGreaterThan, OpLessThan, OpBetween, OpIsNull, OpIsNotNull,
}

// OperatorMetadata describes an operator for the filter UI.
type OperatorMetadata struct {
	Operator          Operator `json:"operator"`
	Label             string   `json:"label"`
	RequiresValue     bool     `json:"requires_value"`
	RequiresSecondary bool     `json:"requires_secondary"`
	AllowsMultiple    bool     `json:"allows_multiple"`
}

// GetOperatorMetadata returns metadata for all operators
func GetOperatorMetadata() []OperatorMetadata {
	return []OperatorMetadata{
		{OpEquals, "Equals", true, false, true},
		{OpNotEquals, "Does not equal", true, false, true},
		{OpContains, "Contains", true, false, true},
		{OpStartsWith, "Starts with", true, false, true},
		{OpEndsWith, "Ends with", true, false, true},
		{OpGreaterThan, "Greater than", true, false, false},
		{OpLessThan, "Less than", true, false, false},
		{OpBetween, "Between", true, true, false},
		{OpIsNull, "Is empty", false, false, false},
		{OpIsNotNull, "Is not empty", false, false, false},
	}
}

// inclusive reports whether stacking two filters with this operator on the
// same field should widen the match set (OR) rather than narrow it (AND).
func (o Operator) inclusive() bool {
	switch o {
	case OpEquals, OpContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// ==========================================
// FILTERS
// ==========================================

// FilterValue is one user-specified constraint on one field. Value, Values
// and ValueTo hold JSON scalars: string, float64, bool or nil.
type FilterValue struct {
	FieldID          int      `json:"fieldId" validate:"gt=0"`
	FieldName        string   `json:"fieldName,omitempty"`
	FieldDisplayName string   `json:"fieldDisplayName,omitempty"`
	Operator         Operator `json:"operator" validate:"required,oneof=equals not_equals contains starts_with ends_with greater_than less_than between is_null is_not_null"`
	Value            any      `json:"value"`
	Values           []any    `json:"values,omitempty"`
	ValueTo          any      `json:"valueTo,omitempty"`
}

// operands returns the values the filter compares against. With more than
// one entry in Values, Value is ignored; otherwise the sole Values entry or
// Value is used.
func (f FilterValue) operands() []any {
	switch {
	case len(f.Values) > 1:
		return f.Values
	case len(f.Values) == 1:
		return f.Values[:1]
	default:
		return []any{f.Value}
	}
}

// ==========================================
// CLAUSES
// ==========================================

// Clause is one node of the query-language filter tree. It marshals to the
// nested-array form the BI tool expects.
type Clause []any

// Clause kinds as they appear in the first array slot.
const (
	KindAnd        = "and"
	KindOr         = "or"
	KindEquals     = "="
	KindNotEquals  = "!="
	KindContains   = "contains"
	KindStartsWith = "starts-with"
	KindEndsWith   = "ends-with"
	KindGreater    = ">"
	KindLess       = "<"
	KindBetween    = "between"
	KindIsNull     = "is-null"
	KindNotNull    = "not-null"
)

// FieldRef is the query-language reference to a field id.
func FieldRef(fieldID int) []any {
	return []any{"field", fieldID, nil}
}

// Kind returns the clause's operator slot, or "" for an empty clause.
func (c Clause) Kind() string {
	if len(c) == 0 {
		return ""
	}
	k, _ := c[0].(string)
	return k
}

// Children returns the sub-clauses of an and/or clause.
func (c Clause) Children() []Clause {
	if c.Kind() != KindAnd && c.Kind() != KindOr {
		return nil
	}
	out := make([]Clause, 0, len(c)-1)
	for _, child := range c[1:] {
		if cl, ok := child.(Clause); ok {
			out = append(out, cl)
		}
	}
	return out
}

// FieldID returns the field a comparison clause targets, or 0.
func (c Clause) FieldID() int {
	if len(c) < 2 {
		return 0
	}
	ref, ok := c[1].([]any)
	if !ok || len(ref) < 2 {
		return 0
	}
	id, _ := ref[1].(int)
	return id
}

// Operands returns the comparison operands after the field reference.
func (c Clause) Operands() []any {
	if len(c) < 3 || c.Kind() == KindAnd || c.Kind() == KindOr {
		return nil
	}
	out := []any{}
	for _, v := range c[2:] {
		if _, isOpts := v.(map[string]any); isOpts {
			continue
		}
		out = append(out, v)
	}
	return out
}

// String renders the clause as JSON, mostly for logs and test failures.
func (c Clause) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%v", []any(c))
	}
	return string(b)
}
