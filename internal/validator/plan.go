package validator

import (
	"strings"

	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

func (v *validator) buildPlan(op *language.OperationDefinition, vars map[string]any) *Plan {
	root := v.rootType(op)
	return &Plan{
		Schema:       v.schema,
		Document:     v.doc,
		Operation:    op,
		RootType:     root,
		Variables:    vars,
		SelectionSet: v.planSelectionSet(root, []language.SelectionSet{op.SelectionSet}, vars),
	}
}

// planSelectionSet expands the given selection sets (several when fields
// were merged) into planned selections, then plans each field's children.
func (v *validator) planSelectionSet(parent *schema.Type, sets []language.SelectionSet, vars map[string]any) SelectionSet {
	var out SelectionSet
	index := map[string]*Selection{}
	for _, set := range sets {
		v.planInto(parent, set, nil, vars, map[string]bool{}, &out, index)
	}
	for _, sel := range out {
		if sel.Definition == nil {
			continue
		}
		named := v.schema.Type(sel.Definition.Type.GetNamedType())
		if named == nil || !named.IsComposite() {
			continue
		}
		children := make([]language.SelectionSet, 0, len(sel.Nodes))
		for _, node := range sel.Nodes {
			children = append(children, node.SelectionSet)
		}
		sel.SelectionSet = v.planSelectionSet(named, children, vars)
	}
	return out
}

func (v *validator) planInto(
	parent *schema.Type,
	set language.SelectionSet,
	conditions []string,
	vars map[string]any,
	visiting map[string]bool,
	out *SelectionSet,
	index map[string]*Selection,
) {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			if !v.included(sel.Directives, vars) {
				continue
			}
			key := sel.Alias
			if key == "" {
				key = sel.Name
			}
			mergeKey := key + "\x00" + strings.Join(conditions, "\x00")
			if existing := index[mergeKey]; existing != nil {
				existing.Nodes = append(existing.Nodes, sel)
				continue
			}
			planned := &Selection{
				ResponseKey: key,
				Name:        sel.Name,
				Conditions:  conditions,
				ParentType:  parent,
				Nodes:       []*language.Field{sel},
			}
			if sel.Name != typenameField {
				planned.Definition = v.fieldDefinition(parent, sel.Name)
				if planned.Definition != nil {
					planned.Arguments = v.coerceArguments(planned.Definition.Arguments, sel.Arguments, vars)
				}
			}
			index[mergeKey] = planned
			*out = append(*out, planned)
		case *language.InlineFragment:
			if !v.included(sel.Directives, vars) {
				continue
			}
			target, conds := v.narrow(parent, sel.TypeCondition, conditions)
			if target == nil {
				continue
			}
			v.planInto(target, sel.SelectionSet, conds, vars, visiting, out, index)
		case *language.FragmentSpread:
			if !v.included(sel.Directives, vars) || visiting[sel.Name] {
				continue
			}
			frag := v.doc.Fragments.ForName(sel.Name)
			if frag == nil {
				continue
			}
			target, conds := v.narrow(parent, frag.TypeCondition, conditions)
			if target == nil {
				continue
			}
			visiting[sel.Name] = true
			v.planInto(target, frag.SelectionSet, conds, vars, visiting, out, index)
			delete(visiting, sel.Name)
		}
	}
}

// narrow returns the type selections inside a fragment are made on, and the
// condition list extended by the fragment's type condition when it actually
// restricts the parent type.
func (v *validator) narrow(parent *schema.Type, condition string, conditions []string) (*schema.Type, []string) {
	if condition == "" || condition == parent.Name {
		return parent, conditions
	}
	t := v.schema.Type(condition)
	if t == nil {
		return nil, nil
	}
	conds := make([]string, 0, len(conditions)+1)
	conds = append(conds, conditions...)
	return t, append(conds, condition)
}

// included evaluates @skip and @include.
func (v *validator) included(directives language.DirectiveList, vars map[string]any) bool {
	if d := directives.ForName("skip"); d != nil && v.directiveIf(d, vars) {
		return false
	}
	if d := directives.ForName("include"); d != nil && !v.directiveIf(d, vars) {
		return false
	}
	return true
}

func (v *validator) directiveIf(d *language.Directive, vars map[string]any) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	val, err := v.coerceLiteral(arg.Value, schema.NonNullType(schema.NamedType("Boolean")), vars)
	if err != nil {
		v.report(RuleCoercionError, arg.Position, "Argument \"if\" of directive \"@%s\" has invalid value %s; %v", d.Name, arg.Value.String(), err)
		return false
	}
	b, _ := val.(bool)
	return b
}
