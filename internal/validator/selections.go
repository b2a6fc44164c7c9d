package validator

import (
	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

const typenameField = "__typename"

func (v *validator) visitOperation(op *language.OperationDefinition) {
	v.scope = op

	names := map[string]bool{}
	for _, def := range op.VariableDefinitions {
		if names[def.Variable] {
			v.report(RuleDuplicateVariable, def.Position, "There can be only one variable named \"$%s\".", def.Variable)
		}
		names[def.Variable] = true

		ref := schema.TypeRefFromAST(def.Type)
		t := v.schema.Type(ref.GetNamedType())
		switch {
		case t == nil:
			v.report(RuleUnknownType, def.Type.Position, "Unknown type %q.", ref.GetNamedType())
		case !t.IsInputType():
			v.report(RuleVariableNotInputType, def.Position, "Variable \"$%s\" cannot be non-input type %q.", def.Variable, ref.String())
		case def.DefaultValue != nil:
			v.validateLiteral(def.DefaultValue, ref, false)
		}
		v.checkDirectives(def.Directives, language.LocationVariableDefinition)
	}

	switch op.Operation {
	case language.Mutation:
		v.checkDirectives(op.Directives, language.LocationMutation)
	case language.Subscription:
		v.checkDirectives(op.Directives, language.LocationSubscription)
	default:
		v.checkDirectives(op.Directives, language.LocationQuery)
	}

	root := v.rootType(op)
	if root == nil {
		return
	}
	if op.Operation == language.Subscription {
		v.checkSingleRootField(op, root)
	}
	v.visitSelectionSet(root, op.SelectionSet)
}

func (v *validator) visitFragment(frag *language.FragmentDefinition) {
	v.scope = frag
	v.checkDirectives(frag.Directives, language.LocationFragmentDefinition)

	t := v.schema.Type(frag.TypeCondition)
	if t == nil {
		v.report(RuleUnknownType, frag.Position, "Unknown type %q.", frag.TypeCondition)
		return
	}
	if !t.IsComposite() {
		v.report(RuleFragmentOnNonComposite, frag.Position, "Fragment %q cannot condition on non composite type %q.", frag.Name, frag.TypeCondition)
		return
	}
	v.visitSelectionSet(t, frag.SelectionSet)
}

func (v *validator) checkSingleRootField(op *language.OperationDefinition, root *schema.Type) {
	fields := v.collectFields(root, op.SelectionSet, map[string]bool{})
	keys := 0
	for _, key := range fields.keys {
		keys++
		for _, f := range fields.byKey[key] {
			if len(f.node.Name) >= 2 && f.node.Name[:2] == "__" {
				v.report(RuleSingleRootField, f.node.Position, "Subscription %q must not select an introspection top level field.", op.Name)
			}
		}
	}
	if keys > 1 {
		pos := fields.byKey[fields.keys[1]][0].node.Position
		if op.Name == "" {
			v.report(RuleSingleRootField, pos, "Anonymous Subscription must select only one top level field.")
		} else {
			v.report(RuleSingleRootField, pos, "Subscription %q must select only one top level field.", op.Name)
		}
	}
}

func (v *validator) visitSelectionSet(parent *schema.Type, set language.SelectionSet) {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			v.visitField(parent, sel)
		case *language.InlineFragment:
			v.checkDirectives(sel.Directives, language.LocationInlineFragment)
			target := parent
			if sel.TypeCondition != "" {
				t := v.schema.Type(sel.TypeCondition)
				if t == nil {
					v.report(RuleUnknownType, sel.Position, "Unknown type %q.", sel.TypeCondition)
					continue
				}
				if !t.IsComposite() {
					v.report(RuleFragmentOnNonComposite, sel.Position, "Fragment cannot condition on non composite type %q.", sel.TypeCondition)
					continue
				}
				if !v.schema.Overlaps(parent.Name, t.Name) {
					v.report(RuleInvalidFragmentSpread, sel.Position, "Fragment cannot be spread here as objects of type %q can never be of type %q.", parent.Name, t.Name)
				}
				target = t
			}
			v.visitSelectionSet(target, sel.SelectionSet)
		case *language.FragmentSpread:
			v.checkDirectives(sel.Directives, language.LocationFragmentSpread)
			v.spreads[v.scope] = append(v.spreads[v.scope], sel.Name)
			frag := v.doc.Fragments.ForName(sel.Name)
			if frag == nil {
				v.report(RuleUnknownFragment, sel.Position, "Unknown fragment %q.", sel.Name)
				continue
			}
			if t := v.schema.Type(frag.TypeCondition); t != nil && t.IsComposite() && !v.schema.Overlaps(parent.Name, t.Name) {
				v.report(RuleInvalidFragmentSpread, sel.Position, "Fragment %q cannot be spread here as objects of type %q can never be of type %q.", sel.Name, parent.Name, t.Name)
			}
		}
	}
	v.checkOverlaps(parent, set)
}

func (v *validator) visitField(parent *schema.Type, field *language.Field) {
	v.checkDirectives(field.Directives, language.LocationField)

	if field.Name == typenameField {
		v.checkArguments(nil, field.Arguments, "field \""+parent.Name+"."+typenameField+"\"", field.Position)
		if len(field.SelectionSet) > 0 {
			v.report(RuleLeafSelection, field.Position, "Field %q must not have a selection since type %q has no subfields.", typenameField, "String!")
		}
		return
	}

	def := v.fieldDefinition(parent, field.Name)
	if def == nil {
		v.report(RuleUnknownField, field.Position, "Cannot query field %q on type %q.", field.Name, parent.Name)
		return
	}
	v.checkArguments(def.Arguments, field.Arguments, "field \""+parent.Name+"."+def.Name+"\"", field.Position)

	named := v.schema.Type(def.Type.GetNamedType())
	if named == nil {
		return
	}
	if named.IsLeaf() {
		if len(field.SelectionSet) > 0 {
			v.report(RuleLeafSelection, field.Position, "Field %q must not have a selection since type %q has no subfields.", field.Name, def.Type.String())
		}
		return
	}
	if len(field.SelectionSet) == 0 {
		v.report(RuleLeafSelection, field.Position, "Field %q of type %q must have a selection of subfields. Did you mean \"%s { ... }\"?", field.Name, def.Type.String(), field.Name)
		return
	}
	v.visitSelectionSet(named, field.SelectionSet)
}

func (v *validator) fieldDefinition(parent *schema.Type, name string) *schema.Field {
	if parent.Kind != schema.TypeKindObject && parent.Kind != schema.TypeKindInterface {
		return nil
	}
	return v.schema.Field(parent.Name, name)
}

func (v *validator) checkArguments(defs []*schema.InputValue, args language.ArgumentList, owner string, pos *language.Position) {
	seen := map[string]bool{}
	for _, arg := range args {
		if seen[arg.Name] {
			v.report(RuleDuplicateArgument, arg.Position, "There can be only one argument named %q.", arg.Name)
			continue
		}
		seen[arg.Name] = true
		def := findInputValue(defs, arg.Name)
		if def == nil {
			v.report(RuleUnknownArgument, arg.Position, "Unknown argument %q on %s.", arg.Name, owner)
			continue
		}
		v.validateLiteral(arg.Value, def.Type, def.HasDefault())
	}
	for _, def := range defs {
		if def.Type.IsNonNull() && !def.HasDefault() && !seen[def.Name] {
			v.report(RuleMissingArgument, pos, "Argument %q of type %q is required on %s, but it was not provided.", def.Name, def.Type.String(), owner)
		}
	}
}

func (v *validator) checkDirectives(directives language.DirectiveList, location language.DirectiveLocation) {
	seen := map[string]bool{}
	for _, d := range directives {
		def := v.schema.Directives[d.Name]
		if def == nil {
			v.report(RuleUnknownDirective, d.Position, "Unknown directive \"@%s\".", d.Name)
			continue
		}
		if !def.HasLocation(string(location)) {
			v.report(RuleMisplacedDirective, d.Position, "Directive \"@%s\" may not be used on %s.", d.Name, location)
		}
		if seen[d.Name] && !def.IsRepeatable {
			v.report(RuleDuplicateDirective, d.Position, "The directive \"@%s\" can only be used once at this location.", d.Name)
		}
		seen[d.Name] = true
		v.checkArguments(def.Arguments, d.Arguments, "directive \"@"+d.Name+"\"", d.Position)
	}
}

func findInputValue(defs []*schema.InputValue, name string) *schema.InputValue {
	for _, d := range defs {
		if d.Name == name {
			return d
		}
	}
	return nil
}
