package validator

import (
	"fmt"

	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

// CodeValidationFailed is reported in extensions["code"] of every error
// produced by Validate. The finer rule name is in extensions["rule"].
const CodeValidationFailed = "GRAPHQL_VALIDATION_FAILED"

// Rule names reported in extensions["rule"].
const (
	RuleDuplicateOperation     = "DuplicateOperation"
	RuleLoneAnonymousOperation = "LoneAnonymousOperation"
	RuleOperationNotFound      = "OperationNotFound"
	RuleUnsupportedOperation   = "UnsupportedOperation"
	RuleSingleRootField        = "SingleRootField"
	RuleDuplicateFragment      = "DuplicateFragment"
	RuleUnknownFragment        = "UnknownFragment"
	RuleUnusedFragment         = "UnusedFragment"
	RuleFragmentCycle          = "FragmentCycle"
	RuleFragmentOnNonComposite = "FragmentOnNonComposite"
	RuleInvalidFragmentSpread  = "InvalidFragmentSpread"
	RuleUnknownType            = "UnknownType"
	RuleUnknownField           = "UnknownField"
	RuleLeafSelection          = "LeafSelection"
	RuleUnknownArgument        = "UnknownArgument"
	RuleDuplicateArgument      = "DuplicateArgument"
	RuleMissingArgument        = "MissingArgument"
	RuleCoercionError          = "CoercionError"
	RuleMissingVariable        = "MissingVariable"
	RuleDuplicateVariable      = "DuplicateVariable"
	RuleVariableNotInputType   = "VariableNotInputType"
	RuleUnknownVariable        = "UnknownVariable"
	RuleUnusedVariable         = "UnusedVariable"
	RuleVariableTypeMismatch   = "VariableTypeMismatch"
	RuleUnknownDirective       = "UnknownDirective"
	RuleMisplacedDirective     = "MisplacedDirective"
	RuleDuplicateDirective     = "DuplicateDirective"
	RuleFieldsConflict         = "FieldsConflict"
)

// Plan is a validated operation ready for execution. Fragments are inlined,
// variables are coerced and @skip/@include are already applied. A plan is
// owned by one execution and must not be mutated once built.
type Plan struct {
	Schema    *schema.Schema
	Document  *language.QueryDocument
	Operation *language.OperationDefinition
	RootType  *schema.Type
	Variables map[string]any

	SelectionSet SelectionSet
}

// SelectionSet is an ordered list of planned field selections.
type SelectionSet []*Selection

// Selection is one field selection after fragment expansion. Fields with the
// same response key and the same type conditions are merged into a single
// Selection whose Nodes lists every contributing AST field.
type Selection struct {
	ResponseKey string
	Name        string
	// Conditions are the type conditions of the fragments enclosing the
	// field, outermost first. The field applies to a concrete object type
	// only if that type satisfies every condition.
	Conditions []string
	// ParentType is the type the field was selected on.
	ParentType *schema.Type
	// Definition is nil for __typename.
	Definition   *schema.Field
	Arguments    map[string]any
	Nodes        []*language.Field
	SelectionSet SelectionSet
}

// Position returns the location of the first contributing AST field.
func (s *Selection) Position() *language.Position {
	if len(s.Nodes) == 0 {
		return nil
	}
	return s.Nodes[0].Position
}

// AppliesTo reports whether the selection is part of the response for an
// object of the given concrete type.
func (s *Selection) AppliesTo(sch *schema.Schema, objectType string) bool {
	for _, cond := range s.Conditions {
		if !sch.IsPossibleType(cond, objectType) {
			return false
		}
	}
	return true
}

// Validate checks doc against sch and, when it is valid, builds the plan for
// the selected operation using the supplied variable values. Validation never
// stops at the first problem: all errors are returned together and no plan is
// produced unless the list is empty.
func Validate(sch *schema.Schema, doc *language.QueryDocument, operationName string, variables map[string]any) (*Plan, language.ErrorList) {
	v := newValidator(sch, doc)

	v.checkOperations()
	v.checkFragments()
	for _, op := range doc.Operations {
		v.visitOperation(op)
	}
	for _, frag := range doc.Fragments {
		v.visitFragment(frag)
	}
	for _, op := range doc.Operations {
		v.checkVariableUsages(op)
	}

	op := v.selectOperation(operationName)
	var coerced map[string]any
	if op != nil {
		coerced = v.coerceVariableValues(op, variables)
	}
	if len(v.errs) > 0 || op == nil {
		return nil, v.errs
	}

	plan := v.buildPlan(op, coerced)
	if len(v.errs) > 0 {
		return nil, v.errs
	}
	return plan, nil
}

type validator struct {
	schema *schema.Schema
	doc    *language.QueryDocument
	errs   language.ErrorList
	seen   map[string]bool

	// variable usages and direct spreads recorded per operation or fragment
	usages  map[any][]variableUsage
	spreads map[any][]string
	scope   any
}

func newValidator(sch *schema.Schema, doc *language.QueryDocument) *validator {
	return &validator{
		schema:  sch,
		doc:     doc,
		seen:    map[string]bool{},
		usages:  map[any][]variableUsage{},
		spreads: map[any][]string{},
	}
}

// report records a validation error. Identical errors (same rule, message and
// location) are reported once, which happens when a fragment is reached
// through several spreads.
func (v *validator) report(rule string, pos *language.Position, format string, args ...any) {
	err := newError(rule, pos, format, args...)
	key := rule + "\x00" + err.Message
	if pos != nil {
		key += fmt.Sprintf("\x00%d:%d", pos.Line, pos.Column)
	}
	if v.seen[key] {
		return
	}
	v.seen[key] = true
	v.errs = append(v.errs, err)
}

func newError(rule string, pos *language.Position, format string, args ...any) *language.Error {
	err := &language.Error{
		Message: fmt.Sprintf(format, args...),
		Rule:    rule,
		Extensions: map[string]any{
			"code": CodeValidationFailed,
			"rule": rule,
		},
	}
	if pos != nil {
		err.Locations = []language.Location{{Line: pos.Line, Column: pos.Column}}
	}
	return err
}

func operationLabel(op *language.OperationDefinition) string {
	if op.Name == "" {
		return "anonymous operation"
	}
	return fmt.Sprintf("operation %q", op.Name)
}

func (v *validator) rootType(op *language.OperationDefinition) *schema.Type {
	switch op.Operation {
	case language.Mutation:
		return v.schema.GetMutationType()
	case language.Subscription:
		return v.schema.GetSubscriptionType()
	default:
		return v.schema.GetQueryType()
	}
}
