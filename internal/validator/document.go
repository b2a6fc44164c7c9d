package validator

import (
	"strings"

	language "github.com/hanpama/gqlcore/internal/language"
)

func (v *validator) checkOperations() {
	names := map[string]bool{}
	anonymous := 0
	for _, op := range v.doc.Operations {
		if op.Name == "" {
			anonymous++
			continue
		}
		if names[op.Name] {
			v.report(RuleDuplicateOperation, op.Position, "There can be only one operation named %q.", op.Name)
		}
		names[op.Name] = true
	}
	if anonymous > 0 && len(v.doc.Operations) > 1 {
		for _, op := range v.doc.Operations {
			if op.Name == "" {
				v.report(RuleLoneAnonymousOperation, op.Position, "This anonymous operation must be the only defined operation.")
			}
		}
	}
	for _, op := range v.doc.Operations {
		if v.rootType(op) == nil {
			v.report(RuleUnsupportedOperation, op.Position, "Schema is not configured for %ss.", op.Operation)
		}
	}
}

// selectOperation picks the operation to plan, by name or by being the only one.
func (v *validator) selectOperation(name string) *language.OperationDefinition {
	ops := v.doc.Operations
	if len(ops) == 0 {
		v.report(RuleOperationNotFound, nil, "Document does not contain any operation.")
		return nil
	}
	if name == "" {
		if len(ops) > 1 {
			v.report(RuleOperationNotFound, nil, "Must provide operation name if query contains multiple operations.")
			return nil
		}
		return ops[0]
	}
	for _, op := range ops {
		if op.Name == name {
			return op
		}
	}
	v.report(RuleOperationNotFound, nil, "Unknown operation named %q.", name)
	return nil
}

func (v *validator) checkFragments() {
	names := map[string]bool{}
	for _, frag := range v.doc.Fragments {
		if names[frag.Name] {
			v.report(RuleDuplicateFragment, frag.Position, "There can be only one fragment named %q.", frag.Name)
		}
		names[frag.Name] = true
	}
	v.checkFragmentCycles()
	v.checkUnusedFragments()
}

// checkFragmentCycles runs a depth-first search over the spread graph. The
// graph is indexed by fragment position in the document; the spread path
// on the stack names the fragments forming each cycle.
func (v *validator) checkFragmentCycles() {
	frags := v.doc.Fragments
	index := make(map[string]int, len(frags))
	for i, f := range frags {
		if _, dup := index[f.Name]; !dup {
			index[f.Name] = i
		}
	}
	edges := make([][]*language.FragmentSpread, len(frags))
	for i, f := range frags {
		edges[i] = collectSpreads(f.SelectionSet, nil)
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(frags))
	var stack []*language.FragmentSpread
	stackIndex := map[string]int{}

	var visit func(i int)
	visit = func(i int) {
		state[i] = onStack
		stackIndex[frags[i].Name] = len(stack)
		for _, spread := range edges[i] {
			j, ok := index[spread.Name]
			if !ok {
				continue
			}
			switch state[j] {
			case unvisited:
				stack = append(stack, spread)
				visit(j)
				stack = stack[:len(stack)-1]
			case onStack:
				start := stackIndex[spread.Name]
				path := append(append([]*language.FragmentSpread{}, stack[start:]...), spread)
				var via []string
				for _, s := range path[:len(path)-1] {
					via = append(via, `"`+s.Name+`"`)
				}
				if len(via) == 0 {
					v.report(RuleFragmentCycle, spread.Position, "Cannot spread fragment %q within itself.", spread.Name)
				} else {
					v.report(RuleFragmentCycle, spread.Position, "Cannot spread fragment %q within itself via %s.", spread.Name, strings.Join(via, ", "))
				}
			}
		}
		delete(stackIndex, frags[i].Name)
		state[i] = done
	}
	for i := range frags {
		if state[i] == unvisited {
			visit(i)
		}
	}
}

func collectSpreads(set language.SelectionSet, out []*language.FragmentSpread) []*language.FragmentSpread {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			out = collectSpreads(sel.SelectionSet, out)
		case *language.InlineFragment:
			out = collectSpreads(sel.SelectionSet, out)
		case *language.FragmentSpread:
			out = append(out, sel)
		}
	}
	return out
}

func (v *validator) checkUnusedFragments() {
	used := map[string]bool{}
	var mark func(set language.SelectionSet)
	mark = func(set language.SelectionSet) {
		for _, spread := range collectSpreads(set, nil) {
			if used[spread.Name] {
				continue
			}
			used[spread.Name] = true
			if frag := v.doc.Fragments.ForName(spread.Name); frag != nil {
				mark(frag.SelectionSet)
			}
		}
	}
	for _, op := range v.doc.Operations {
		mark(op.SelectionSet)
	}
	for _, frag := range v.doc.Fragments {
		if !used[frag.Name] {
			v.report(RuleUnusedFragment, frag.Position, "Fragment %q is never used.", frag.Name)
		}
	}
}
