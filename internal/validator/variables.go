package validator

import (
	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

// checkVariableUsages checks every variable use reachable from op, including
// uses inside spread fragments, against op's variable definitions.
func (v *validator) checkVariableUsages(op *language.OperationDefinition) {
	usages := append([]variableUsage{}, v.usages[op]...)
	visited := map[string]bool{}
	queue := append([]string{}, v.spreads[op]...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true
		frag := v.doc.Fragments.ForName(name)
		if frag == nil {
			continue
		}
		usages = append(usages, v.usages[frag]...)
		queue = append(queue, v.spreads[frag]...)
	}

	used := map[string]bool{}
	for _, u := range usages {
		used[u.name] = true
		def := op.VariableDefinitions.ForName(u.name)
		if def == nil {
			v.report(RuleUnknownVariable, u.pos, "Variable \"$%s\" is not defined by %s.", u.name, operationLabel(op))
			continue
		}
		varType := schema.TypeRefFromAST(def.Type)
		varDefault := def.DefaultValue != nil && def.DefaultValue.Kind != language.NullValue
		if !allowedInPosition(varType, varDefault, u.typ, u.hasDefault) {
			v.report(RuleVariableTypeMismatch, u.pos, "Variable \"$%s\" of type %q used in position expecting type %q.", u.name, varType.String(), u.typ.String())
		}
	}
	for _, def := range op.VariableDefinitions {
		if !used[def.Variable] {
			v.report(RuleUnusedVariable, def.Position, "Variable \"$%s\" is never used in %s.", def.Variable, operationLabel(op))
		}
	}
}

// allowedInPosition reports whether a variable of varType may flow into a
// location of locType. A nullable variable may feed a non-null location when
// either side provides a default.
func allowedInPosition(varType *schema.TypeRef, varDefault bool, locType *schema.TypeRef, locDefault bool) bool {
	if locType.IsNonNull() && !varType.IsNonNull() {
		if !varDefault && !locDefault {
			return false
		}
		return isInputSubType(varType, locType.OfType)
	}
	return isInputSubType(varType, locType)
}

func isInputSubType(sub, super *schema.TypeRef) bool {
	if super.IsNonNull() {
		return sub.IsNonNull() && isInputSubType(sub.OfType, super.OfType)
	}
	if sub.IsNonNull() {
		return isInputSubType(sub.OfType, super)
	}
	if super.Kind == schema.TypeRefKindList {
		return sub.Kind == schema.TypeRefKindList && isInputSubType(sub.OfType, super.OfType)
	}
	if sub.Kind == schema.TypeRefKindList {
		return false
	}
	return sub.Named == super.Named
}
