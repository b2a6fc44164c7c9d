package validator

import (
	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

var typenameType = schema.NonNullType(schema.NamedType("String"))

type collectedField struct {
	parent *schema.Type
	def    *schema.Field
	node   *language.Field
}

func (f collectedField) typ() *schema.TypeRef {
	if f.node.Name == typenameField {
		return typenameType
	}
	if f.def == nil {
		return nil
	}
	return f.def.Type
}

type collectedFields struct {
	keys  []string
	byKey map[string][]collectedField
}

// collectFields flattens a selection set by response key, expanding inline
// fragments and fragment spreads. visited guards against spread cycles.
func (v *validator) collectFields(parent *schema.Type, set language.SelectionSet, visited map[string]bool) *collectedFields {
	out := &collectedFields{byKey: map[string][]collectedField{}}
	v.collectInto(parent, set, visited, out)
	return out
}

func (v *validator) collectInto(parent *schema.Type, set language.SelectionSet, visited map[string]bool, out *collectedFields) {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			key := sel.Alias
			if key == "" {
				key = sel.Name
			}
			if _, ok := out.byKey[key]; !ok {
				out.keys = append(out.keys, key)
			}
			out.byKey[key] = append(out.byKey[key], collectedField{
				parent: parent,
				def:    v.fieldDefinition(parent, sel.Name),
				node:   sel,
			})
		case *language.InlineFragment:
			target := parent
			if sel.TypeCondition != "" {
				target = v.schema.Type(sel.TypeCondition)
			}
			if target == nil || !target.IsComposite() {
				continue
			}
			v.collectInto(target, sel.SelectionSet, visited, out)
		case *language.FragmentSpread:
			if visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true
			frag := v.doc.Fragments.ForName(sel.Name)
			if frag == nil {
				continue
			}
			target := v.schema.Type(frag.TypeCondition)
			if target == nil || !target.IsComposite() {
				continue
			}
			v.collectInto(target, frag.SelectionSet, visited, out)
		}
	}
}

// checkOverlaps reports fields sharing a response key that cannot be merged.
func (v *validator) checkOverlaps(parent *schema.Type, set language.SelectionSet) {
	fields := v.collectFields(parent, set, map[string]bool{})
	for _, key := range fields.keys {
		list := fields.byKey[key]
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				v.checkPair(key, list[i], list[j], false)
			}
		}
	}
}

func (v *validator) checkPair(key string, a, b collectedField, parentsExclusive bool) {
	if a.node == b.node {
		return
	}
	exclusive := parentsExclusive ||
		(a.parent != b.parent && a.parent.Kind == schema.TypeKindObject && b.parent.Kind == schema.TypeKindObject)

	if !exclusive {
		if a.node.Name != b.node.Name {
			v.report(RuleFieldsConflict, b.node.Position,
				"Fields %q conflict because %q and %q are different fields. Use different aliases on the fields to fetch both if this was intentional.",
				key, a.node.Name, b.node.Name)
			return
		}
		if !sameArguments(a.node.Arguments, b.node.Arguments) {
			v.report(RuleFieldsConflict, b.node.Position,
				"Fields %q conflict because they have differing arguments. Use different aliases on the fields to fetch both if this was intentional.",
				key)
			return
		}
	}

	ta, tb := a.typ(), b.typ()
	if ta == nil || tb == nil {
		return
	}
	if v.typesConflict(ta, tb) {
		v.report(RuleFieldsConflict, b.node.Position,
			"Fields %q conflict because they return conflicting types %q and %q. Use different aliases on the fields to fetch both if this was intentional.",
			key, ta.String(), tb.String())
		return
	}

	na, nb := v.schema.Type(ta.GetNamedType()), v.schema.Type(tb.GetNamedType())
	if na == nil || nb == nil || !na.IsComposite() || !nb.IsComposite() {
		return
	}
	subA := v.collectFields(na, a.node.SelectionSet, map[string]bool{})
	subB := v.collectFields(nb, b.node.SelectionSet, map[string]bool{})
	for _, subKey := range subA.keys {
		for _, x := range subA.byKey[subKey] {
			for _, y := range subB.byKey[subKey] {
				v.checkPair(subKey, x, y, exclusive)
			}
		}
	}
}

// typesConflict reports whether two field types produce incompatible
// response shapes.
func (v *validator) typesConflict(a, b *schema.TypeRef) bool {
	if a.Kind == schema.TypeRefKindList {
		if b.Kind != schema.TypeRefKindList {
			return true
		}
		return v.typesConflict(a.OfType, b.OfType)
	}
	if b.Kind == schema.TypeRefKindList {
		return true
	}
	if a.IsNonNull() {
		if !b.IsNonNull() {
			return true
		}
		return v.typesConflict(a.OfType, b.OfType)
	}
	if b.IsNonNull() {
		return true
	}
	ta, tb := v.schema.Type(a.Named), v.schema.Type(b.Named)
	if (ta != nil && ta.IsLeaf()) || (tb != nil && tb.IsLeaf()) {
		return a.Named != b.Named
	}
	return false
}

func sameArguments(a, b language.ArgumentList) bool {
	if len(a) != len(b) {
		return false
	}
	for _, arg := range a {
		other := b.ForName(arg.Name)
		if other == nil || arg.Value.String() != other.Value.String() {
			return false
		}
	}
	return true
}
