package rules

import (
	"fmt"
	"strconv"
	"strings"

	"signalpipe/internal/types"
)

// Evaluator matches a hook's conditions against a signal payload. It is a
// pure decision component: it never mutates its inputs and never returns an
// error. Ambiguous configuration fails open (the hook fires) so a typo in an
// operator degrades a filter instead of silencing a notification entirely.
type Evaluator struct {
	logger types.Logger
}

// NewEvaluator creates an Evaluator that logs fail-open decisions to the
// given logger.
func NewEvaluator(logger types.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Matches reports whether every condition holds against the payload. An
// empty or nil condition list always matches: the hook fires for every
// signal of its type.
func (e *Evaluator) Matches(conditions types.HookConditions, payload types.Payload) bool {
	for _, cond := range conditions {
		if !e.matchOne(cond, payload) {
			return false
		}
	}
	return true
}

// matchOne evaluates a single condition. A field missing from the payload
// makes the condition false for every supported operator; an unsupported
// operator makes it true (fail open) with a warning.
func (e *Evaluator) matchOne(cond types.HookCondition, payload types.Payload) bool {
	switch cond.Operator {
	case types.OpEq, types.OpNe, types.OpGt, types.OpLt, types.OpContains:
	default:
		e.logger.Warn("unsupported condition operator, failing open",
			"operator", string(cond.Operator),
			"field", cond.Field,
		)
		return true
	}

	value, ok := Lookup(payload, cond.Field)
	if !ok {
		return false
	}

	switch cond.Operator {
	case types.OpEq:
		return looseEqual(value, cond.Value)
	case types.OpNe:
		return !looseEqual(value, cond.Value)
	case types.OpGt:
		a, b, ok := bothNumeric(value, cond.Value)
		return ok && a > b
	case types.OpLt:
		a, b, ok := bothNumeric(value, cond.Value)
		return ok && a < b
	case types.OpContains:
		s, ok := value.(string)
		return ok && strings.Contains(s, stringify(cond.Value))
	}
	return false
}

// looseEqual compares payload and condition values the way a dynamically
// typed config expects: numerically when both sides are numeric, otherwise
// by string form. JSON decoding hands us float64 for every number, so 150
// in a payload must equal 150.0 in a condition.
func looseEqual(a, b any) bool {
	if fa, fb, ok := bothNumeric(a, b); ok {
		return fa == fb
	}
	return stringify(a) == stringify(b)
}

// bothNumeric coerces both values to float64, accepting Go numeric types and
// numeric strings.
func bothNumeric(a, b any) (float64, float64, bool) {
	fa, ok := toFloat(a)
	if !ok {
		return 0, 0, false
	}
	fb, ok := toFloat(b)
	if !ok {
		return 0, 0, false
	}
	return fa, fb, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
