package segment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/crm-engine/internal/domain"
)

// ErrInvalidRule is wrapped by every compile/validation failure.
var ErrInvalidRule = errors.New("invalid segment rule")

// CompiledRule is the result of compiling a Rule: an in-memory predicate and
// an equivalent SQL filter. Compilation is pure; date-relative conditions
// resolve their cutoff against the clock at each evaluation, not at compile
// time, so long-lived compiled rules stay correct.
type CompiledRule struct {
	op    LogicOperator
	conds []condition
}

// condition is the closed set of typed condition variants. Each variant
// carries a strongly-typed operand produced by Compile's validation step.
type condition interface {
	matches(c *domain.Customer, now time.Time) bool
	where(w *whereBuilder) string
}

// Compile validates the rule and builds its typed condition variants.
// Unknown fields, unknown operators, operator/field mismatches, and
// unparsable operands all fail compilation.
func Compile(r Rule) (*CompiledRule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	compiled := &CompiledRule{op: r.Operator}
	for _, c := range r.Conditions {
		cc, err := compileCondition(c)
		if err != nil {
			return nil, err
		}
		compiled.conds = append(compiled.conds, cc)
	}
	return compiled, nil
}

// Matches evaluates the rule against a customer in memory. Equivalent to the
// SQL filter produced by WhereClause for every valid rule.
func (cr *CompiledRule) Matches(c *domain.Customer) bool {
	now := time.Now()
	if cr.op == LogicOr {
		for _, cond := range cr.conds {
			if cond.matches(c, now) {
				return true
			}
		}
		return false
	}
	for _, cond := range cr.conds {
		if !cond.matches(c, now) {
			return false
		}
	}
	return true
}

// WhereClause renders the rule as a SQL boolean expression over the
// crm_customers columns. Placeholders start at $startIdx so callers can
// prepend their own arguments.
func (cr *CompiledRule) WhereClause(startIdx int) (string, []interface{}) {
	w := &whereBuilder{idx: startIdx}
	parts := make([]string, 0, len(cr.conds))
	for _, cond := range cr.conds {
		parts = append(parts, cond.where(w))
	}
	joiner := " AND "
	if cr.op == LogicOr {
		joiner = " OR "
	}
	return "(" + strings.Join(parts, joiner) + ")", w.args
}

// whereBuilder numbers SQL placeholders, mirroring the repository's
// positional-argument convention.
type whereBuilder struct {
	idx  int
	args []interface{}
}

func (w *whereBuilder) next(v interface{}) string {
	w.args = append(w.args, v)
	p := fmt.Sprintf("$%d", w.idx)
	w.idx++
	return p
}

func compileCondition(c Condition) (condition, error) {
	ft := fieldTypes[c.Field]

	switch c.Operator {
	case OpGt, OpLt, OpGte, OpLte:
		if ft != typeNumber {
			return nil, incompatible(c)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %q is not a number", ErrInvalidRule, c.Field, c.Value)
		}
		return numericCondition{field: c.Field, op: c.Operator, value: v}, nil

	case OpEq, OpNeq:
		switch ft {
		case typeNumber:
			v, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %q is not a number", ErrInvalidRule, c.Field, c.Value)
			}
			return numericCondition{field: c.Field, op: c.Operator, value: v}, nil
		case typeString:
			return equalityCondition{field: c.Field, negate: c.Operator == OpNeq, value: c.Value}, nil
		default:
			return nil, incompatible(c)
		}

	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		if ft != typeString && ft != typeTags {
			return nil, incompatible(c)
		}
		return substringCondition{field: c.Field, op: c.Operator, value: c.Value}, nil

	case OpIn, OpNotIn:
		if ft != typeString && ft != typeTags {
			return nil, incompatible(c)
		}
		values := splitList(c.Value)
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: field %q: empty value list", ErrInvalidRule, c.Field)
		}
		return setCondition{field: c.Field, negate: c.Operator == OpNotIn, values: values}, nil

	case OpInactiveDays, OpActiveDays:
		if ft != typeDate {
			return nil, incompatible(c)
		}
		days, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil || days < 0 {
			return nil, fmt.Errorf("%w: field %q: %q is not a day count", ErrInvalidRule, c.Field, c.Value)
		}
		return dayWindowCondition{field: c.Field, active: c.Operator == OpActiveDays, days: days}, nil

	case OpBetween:
		if ft != typeNumber {
			return nil, incompatible(c)
		}
		bounds := splitList(c.Value)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("%w: field %q: between wants \"min,max\", got %q", ErrInvalidRule, c.Field, c.Value)
		}
		min, err1 := strconv.ParseFloat(bounds[0], 64)
		max, err2 := strconv.ParseFloat(bounds[1], 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: field %q: %q is not a numeric range", ErrInvalidRule, c.Field, c.Value)
		}
		return rangeCondition{field: c.Field, min: min, max: max}, nil

	case OpExists:
		want, err := strconv.ParseBool(strings.TrimSpace(c.Value))
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: exists wants true/false, got %q", ErrInvalidRule, c.Field, c.Value)
		}
		return existsCondition{field: c.Field, want: want}, nil
	}

	return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, c.Operator)
}

func incompatible(c Condition) error {
	return fmt.Errorf("%w: operator %q is not valid for field %q", ErrInvalidRule, c.Operator, c.Field)
}

func splitList(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// CONDITION VARIANTS
// =============================================================================

type numericCondition struct {
	field Field
	op    Operator
	value float64
}

func (n numericCondition) matches(c *domain.Customer, _ time.Time) bool {
	got := numberOf(c, n.field)
	switch n.op {
	case OpGt:
		return got > n.value
	case OpLt:
		return got < n.value
	case OpGte:
		return got >= n.value
	case OpLte:
		return got <= n.value
	case OpEq:
		return got == n.value
	case OpNeq:
		return got != n.value
	}
	return false
}

func (n numericCondition) where(w *whereBuilder) string {
	op := string(n.op)
	if n.op == OpNeq {
		op = "<>"
	}
	return fmt.Sprintf("%s %s %s", columnFor[n.field], op, w.next(n.value))
}

type equalityCondition struct {
	field  Field
	negate bool
	value  string
}

func (e equalityCondition) matches(c *domain.Customer, _ time.Time) bool {
	eq := stringOf(c, e.field) == e.value
	return eq != e.negate
}

func (e equalityCondition) where(w *whereBuilder) string {
	if e.negate {
		return fmt.Sprintf("COALESCE(%s, '') <> %s", columnFor[e.field], w.next(e.value))
	}
	return fmt.Sprintf("%s = %s", columnFor[e.field], w.next(e.value))
}

type substringCondition struct {
	field Field
	op    Operator
	value string
}

func (s substringCondition) matchesOne(got string) bool {
	got = strings.ToLower(got)
	want := strings.ToLower(s.value)
	switch s.op {
	case OpContains:
		return strings.Contains(got, want)
	case OpNotContains:
		return !strings.Contains(got, want)
	case OpStartsWith:
		return strings.HasPrefix(got, want)
	case OpEndsWith:
		return strings.HasSuffix(got, want)
	}
	return false
}

func (s substringCondition) matches(c *domain.Customer, _ time.Time) bool {
	if s.field == FieldTags {
		// not_contains over an array means no element contains the value
		if s.op == OpNotContains {
			for _, t := range c.Tags {
				if strings.Contains(strings.ToLower(t), strings.ToLower(s.value)) {
					return false
				}
			}
			return true
		}
		for _, t := range c.Tags {
			if s.matchesOne(t) {
				return true
			}
		}
		return false
	}
	return s.matchesOne(stringOf(c, s.field))
}

func (s substringCondition) where(w *whereBuilder) string {
	var pattern string
	switch s.op {
	case OpContains, OpNotContains:
		pattern = "%" + escapeLike(s.value) + "%"
	case OpStartsWith:
		pattern = escapeLike(s.value) + "%"
	case OpEndsWith:
		pattern = "%" + escapeLike(s.value)
	}

	if s.field == FieldTags {
		frag := fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE %s)", w.next(pattern))
		if s.op == OpNotContains {
			return "NOT " + frag
		}
		return frag
	}

	col := columnFor[s.field]
	if s.op == OpNotContains {
		return fmt.Sprintf("COALESCE(%s, '') NOT ILIKE %s", col, w.next(pattern))
	}
	return fmt.Sprintf("%s ILIKE %s", col, w.next(pattern))
}

func escapeLike(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "%", `\%`)
	return strings.ReplaceAll(v, "_", `\_`)
}

type setCondition struct {
	field  Field
	negate bool
	values []string
}

func (s setCondition) matches(c *domain.Customer, _ time.Time) bool {
	var hit bool
	if s.field == FieldTags {
		for _, t := range c.Tags {
			for _, v := range s.values {
				if t == v {
					hit = true
				}
			}
		}
	} else {
		got := stringOf(c, s.field)
		for _, v := range s.values {
			if got == v {
				hit = true
			}
		}
	}
	return hit != s.negate
}

func (s setCondition) where(w *whereBuilder) string {
	if s.field == FieldTags {
		frag := fmt.Sprintf("tags && %s", w.next(pq.Array(s.values)))
		if s.negate {
			return "NOT (" + frag + ")"
		}
		return frag
	}
	col := columnFor[s.field]
	if s.negate {
		return fmt.Sprintf("NOT (COALESCE(%s, '') = ANY(%s))", col, w.next(pq.Array(s.values)))
	}
	return fmt.Sprintf("%s = ANY(%s)", col, w.next(pq.Array(s.values)))
}

// dayWindowCondition implements inactive_days / active_days: the field is
// more (inactive) or less-or-equal (active) than N days in the past. The
// cutoff is derived from the clock at evaluation time.
type dayWindowCondition struct {
	field  Field
	active bool
	days   int
}

func (d dayWindowCondition) matches(c *domain.Customer, now time.Time) bool {
	ts := timeOf(c, d.field)
	if ts == nil {
		return false
	}
	cutoff := now.AddDate(0, 0, -d.days)
	if d.active {
		return !ts.Before(cutoff)
	}
	return ts.Before(cutoff)
}

func (d dayWindowCondition) where(_ *whereBuilder) string {
	// days is validated at compile time, safe to interpolate
	if d.active {
		return fmt.Sprintf("%s >= NOW() - INTERVAL '%d days'", columnFor[d.field], d.days)
	}
	return fmt.Sprintf("%s < NOW() - INTERVAL '%d days'", columnFor[d.field], d.days)
}

type existsCondition struct {
	field Field
	want  bool
}

func (e existsCondition) matches(c *domain.Customer, _ time.Time) bool {
	var present bool
	switch fieldTypes[e.field] {
	case typeString:
		present = stringOf(c, e.field) != ""
	case typeDate:
		present = timeOf(c, e.field) != nil
	case typeTags:
		present = len(c.Tags) > 0
	default:
		// numeric counters always exist (they default to zero)
		present = true
	}
	return present == e.want
}

func (e existsCondition) where(_ *whereBuilder) string {
	col := columnFor[e.field]
	var frag string
	switch fieldTypes[e.field] {
	case typeString:
		frag = fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", col, col)
	case typeDate:
		frag = fmt.Sprintf("%s IS NOT NULL", col)
	case typeTags:
		frag = "(tags IS NOT NULL AND array_length(tags, 1) > 0)"
	default:
		frag = "TRUE"
	}
	if !e.want {
		return "NOT " + frag
	}
	return frag
}

type rangeCondition struct {
	field    Field
	min, max float64
}

func (r rangeCondition) matches(c *domain.Customer, _ time.Time) bool {
	got := numberOf(c, r.field)
	return got >= r.min && got <= r.max
}

func (r rangeCondition) where(w *whereBuilder) string {
	return fmt.Sprintf("%s BETWEEN %s AND %s", columnFor[r.field], w.next(r.min), w.next(r.max))
}

// =============================================================================
// FIELD ACCESSORS
// =============================================================================

func numberOf(c *domain.Customer, f Field) float64 {
	switch f {
	case FieldTotalSpends:
		return c.TotalSpends
	case FieldVisits:
		return float64(c.Visits)
	}
	return 0
}

func stringOf(c *domain.Customer, f Field) string {
	switch f {
	case FieldEmail:
		return c.Email
	case FieldName:
		return c.Name
	}
	return ""
}

func timeOf(c *domain.Customer, f Field) *time.Time {
	switch f {
	case FieldLastVisit:
		return c.LastVisit
	case FieldCreatedAt:
		if c.CreatedAt.IsZero() {
			return nil
		}
		t := c.CreatedAt
		return &t
	}
	return nil
}
