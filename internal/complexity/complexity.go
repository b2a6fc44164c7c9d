// Package complexity computes the static cost and depth of a validated plan
// and rejects plans over the configured limits before any resolver runs.
package complexity

import (
	"errors"
	"fmt"
	"math"

	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
	validator "github.com/hanpama/gqlcore/internal/validator"
)

const (
	CodeComplexityExceeded = "COMPLEXITY_EXCEEDED"
	CodeDepthExceeded      = "DEPTH_EXCEEDED"
)

var (
	ErrComplexityExceeded = errors.New("query complexity exceeded")
	ErrDepthExceeded      = errors.New("query depth exceeded")
)

// DefaultMultipliers are the arguments scaling child cost on fields without
// an explicit @cost(multipliers:) list.
var DefaultMultipliers = []string{"first", "last", "limit"}

// Limits configures Analyze. Zero disables a check.
type Limits struct {
	MaxComplexity int
	MaxDepth      int
}

// Analyze checks plan against limits. The returned error is a *gqlerror.Error
// wrapping ErrComplexityExceeded or ErrDepthExceeded.
func Analyze(plan *validator.Plan, limits Limits) error {
	if limits.MaxDepth > 0 {
		if depth := Depth(plan); depth > limits.MaxDepth {
			return exceeded(ErrDepthExceeded, CodeDepthExceeded, plan,
				"Query depth of %d exceeds the limit of %d.", depth, limits.MaxDepth)
		}
	}
	if limits.MaxComplexity > 0 {
		if cost := Cost(plan); cost > limits.MaxComplexity {
			return exceeded(ErrComplexityExceeded, CodeComplexityExceeded, plan,
				"Query complexity of %d exceeds the limit of %d.", cost, limits.MaxComplexity)
		}
	}
	return nil
}

func exceeded(cause error, code string, plan *validator.Plan, format string, args ...any) *gqlerror.Error {
	err := &gqlerror.Error{
		Err:        cause,
		Message:    fmt.Sprintf(format, args...),
		Extensions: map[string]any{"code": code},
	}
	if pos := plan.Operation.Position; pos != nil {
		err.Locations = []language.Location{{Line: pos.Line, Column: pos.Column}}
	}
	return err
}

// Cost returns the total cost of plan.
//
// A field costs its @cost weight (default 1) plus the cost of its children.
// When the field carries a multiplier argument (first, last, limit or the
// names listed in @cost(multipliers:)), the product of those argument values
// replaces the addition: children cost product times their sum, and a leaf
// costs weight times product. __typename is free. Selections that only apply
// to different concrete types are all counted. The arithmetic saturates at
// math.MaxInt, so a cost too large to represent still exceeds every limit.
func Cost(plan *validator.Plan) int {
	return setCost(plan.SelectionSet)
}

func setCost(set validator.SelectionSet) int {
	total := 0
	for _, sel := range set {
		total = add(total, fieldCost(sel))
	}
	return total
}

func fieldCost(sel *validator.Selection) int {
	if sel.Definition == nil {
		return 0
	}
	weight, names := costDirective(sel.Definition)
	product, scaled := multiplier(sel.Arguments, names)
	children := setCost(sel.SelectionSet)
	switch {
	case !scaled:
		return add(weight, children)
	case len(sel.SelectionSet) == 0:
		return mul(weight, product)
	default:
		return mul(product, children)
	}
}

// add and mul work on non-negative operands and clamp at math.MaxInt.
func add(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func mul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}

func costDirective(f *schema.Field) (int, []string) {
	d := f.Directive("cost")
	if d == nil {
		return 1, DefaultMultipliers
	}
	weight := 1
	if w, ok := toInt(d.Arg("weight")); ok {
		weight = max(w, 0)
	}
	names := DefaultMultipliers
	if list, ok := d.Arg("multipliers").([]any); ok {
		names = make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
	} else if list, ok := d.Arg("multipliers").([]string); ok {
		names = list
	}
	return weight, names
}

// multiplier multiplies the values of the named arguments present in args.
func multiplier(args map[string]any, names []string) (int, bool) {
	product, scaled := 1, false
	for _, name := range names {
		n, ok := toInt(args[name])
		if !ok {
			continue
		}
		product = mul(product, max(n, 0))
		scaled = true
	}
	return product, scaled
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n >= math.MaxInt {
			return math.MaxInt, true
		}
		return int(n), true
	}
	return 0, false
}

// Depth returns the maximum selection nesting of plan. Root fields are at
// depth 1 and an empty plan has depth 0.
func Depth(plan *validator.Plan) int {
	return setDepth(plan.SelectionSet)
}

func setDepth(set validator.SelectionSet) int {
	deepest := 0
	for _, sel := range set {
		if d := 1 + setDepth(sel.SelectionSet); d > deepest {
			deepest = d
		}
	}
	return deepest
}
