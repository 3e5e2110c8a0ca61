// Package segment compiles declarative segment rules into customer-matching
// predicates and equivalent SQL filters for push-down evaluation at the store.
package segment

import (
	"encoding/json"
	"fmt"
)

// LogicOperator combines a rule's conditions.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// Operator represents a single condition's comparison operator.
type Operator string

const (
	// Numeric operators
	OpGt  Operator = ">"
	OpLt  Operator = "<"
	OpGte Operator = ">="
	OpLte Operator = "<="
	OpEq  Operator = "="
	OpNeq Operator = "!="

	// String operators
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"

	// Set operators
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"

	// Date-relative operators (evaluated against wall-clock now)
	OpInactiveDays Operator = "inactive_days"
	OpActiveDays   Operator = "active_days"

	// Range
	OpBetween Operator = "between"

	// Presence
	OpExists Operator = "exists"
)

// Field names a customer attribute a condition can target.
type Field string

const (
	FieldTotalSpends Field = "totalSpends"
	FieldVisits      Field = "visits"
	FieldLastVisit   Field = "lastVisit"
	FieldEmail       Field = "email"
	FieldName        Field = "name"
	FieldTags        Field = "tags"
	FieldCreatedAt   Field = "createdAt"
)

// fieldType is the coarse data type of a field, used to validate
// operator/field pairings at compile time.
type fieldType int

const (
	typeNumber fieldType = iota
	typeString
	typeDate
	typeTags
)

var fieldTypes = map[Field]fieldType{
	FieldTotalSpends: typeNumber,
	FieldVisits:      typeNumber,
	FieldLastVisit:   typeDate,
	FieldEmail:       typeString,
	FieldName:        typeString,
	FieldTags:        typeTags,
	FieldCreatedAt:   typeDate,
}

// columnFor maps a rule field to its crm_customers column.
var columnFor = map[Field]string{
	FieldTotalSpends: "total_spends",
	FieldVisits:      "visits",
	FieldLastVisit:   "last_visit",
	FieldEmail:       "email",
	FieldName:        "name",
	FieldTags:        "tags",
	FieldCreatedAt:   "created_at",
}

// Condition is one atomic comparison inside a rule. Value carries the
// operand as a string; typing happens during compilation.
type Condition struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Rule is a flat conjunction or disjunction of conditions. There is no
// nesting: the top-level operator applies to every condition.
type Rule struct {
	Operator   LogicOperator `json:"operator"`
	Conditions []Condition   `json:"conditions"`
}

// ParseRule decodes and validates a raw JSON rule document.
func ParseRule(raw []byte) (Rule, error) {
	var r Rule
	if err := json.Unmarshal(raw, &r); err != nil {
		return Rule{}, fmt.Errorf("parse rule: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks the rule's shape without compiling it.
func (r Rule) Validate() error {
	if r.Operator != LogicAnd && r.Operator != LogicOr {
		return fmt.Errorf("%w: operator must be AND or OR, got %q", ErrInvalidRule, r.Operator)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("%w: conditions must be a non-empty array", ErrInvalidRule)
	}
	for _, c := range r.Conditions {
		if _, ok := fieldTypes[c.Field]; !ok {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidRule, c.Field)
		}
		if !knownOperator(c.Operator) {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, c.Operator)
		}
		if c.Value == "" {
			return fmt.Errorf("%w: value is required for field %q", ErrInvalidRule, c.Field)
		}
	}
	return nil
}

func knownOperator(op Operator) bool {
	switch op {
	case OpGt, OpLt, OpGte, OpLte, OpEq, OpNeq,
		OpContains, OpNotContains, OpStartsWith, OpEndsWith,
		OpIn, OpNotIn, OpInactiveDays, OpActiveDays, OpBetween, OpExists:
		return true
	}
	return false
}
