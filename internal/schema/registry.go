package schema

import "fmt"

// RegisterOptions configure Register.
type RegisterOptions struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Description      string
	// AllowReservedNames disables the "__" prefix check. Only the
	// introspection types use it.
	AllowReservedNames bool
	// Types and Directives are registered ahead of the definitions passed
	// to Register.
	Types      []*Type
	Directives []*Directive
}

type RegisterOption func(*RegisterOptions)

// WithRootTypes names the operation root types. Empty names fall back to
// "Query", "Mutation" and "Subscription" when types with those names exist.
func WithRootTypes(query, mutation, subscription string) RegisterOption {
	return func(o *RegisterOptions) {
		if query != "" {
			o.QueryType = query
		}
		if mutation != "" {
			o.MutationType = mutation
		}
		if subscription != "" {
			o.SubscriptionType = subscription
		}
	}
}

func WithDescription(description string) RegisterOption {
	return func(o *RegisterOptions) { o.Description = description }
}

func AllowReservedNames() RegisterOption {
	return func(o *RegisterOptions) { o.AllowReservedNames = true }
}

// WithDefinitions adds types and directives supplied by a library, such as
// the federation directives, to a schema built from SDL or builders.
func WithDefinitions(types []*Type, directives []*Directive) RegisterOption {
	return func(o *RegisterOptions) {
		o.Types = append(o.Types, types...)
		o.Directives = append(o.Directives, directives...)
	}
}

// Register builds an immutable schema from type and directive definitions.
//
// Built-in scalars and directives are always present. Every consistency
// problem is collected and returned together as a RegistryError; the
// returned schema is nil in that case.
func Register(types []*Type, directives []*Directive, opts ...RegisterOption) (*Schema, error) {
	var o RegisterOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.Types) > 0 {
		types = append(append([]*Type{}, o.Types...), types...)
	}
	if len(o.Directives) > 0 {
		directives = append(append([]*Directive{}, o.Directives...), directives...)
	}

	s := &Schema{
		Types:       make(map[string]*Type, len(types)+len(builtinTypes)),
		Directives:  make(map[string]*Directive, len(directives)+len(builtinDirectives)),
		Description: o.Description,
	}
	r := &registrar{schema: s, allowReserved: o.AllowReservedNames}

	for _, t := range builtinTypes {
		s.Types[t.Name] = t
		s.order = append(s.order, t.Name)
	}
	for _, t := range types {
		if _, exists := s.Types[t.Name]; exists {
			r.add(violationDuplicateType(t.Name))
			continue
		}
		s.Types[t.Name] = t
		s.order = append(s.order, t.Name)
	}
	for _, d := range builtinDirectives {
		s.Directives[d.Name] = d
		s.directiveOrder = append(s.directiveOrder, d.Name)
	}
	for _, d := range directives {
		if _, exists := s.Directives[d.Name]; exists {
			r.add(violationDuplicateDirective(d.Name))
			continue
		}
		s.Directives[d.Name] = d
		s.directiveOrder = append(s.directiveOrder, d.Name)
	}

	s.QueryType = rootName(s, o.QueryType, "Query")
	s.MutationType = rootName(s, o.MutationType, "Mutation")
	s.SubscriptionType = rootName(s, o.SubscriptionType, "Subscription")

	s.index()

	r.checkRoots()
	for _, d := range directives {
		r.checkDirectiveDefinition(d)
	}
	for _, t := range types {
		r.checkType(t)
	}

	if len(r.violations) > 0 {
		return nil, r.violations
	}
	return s, nil
}

// Definitions returns the schema's own types and directives in registration
// order, leaving out the built-ins Register adds. Passing them back to
// Register (possibly with additions) rebuilds an equivalent schema.
func (s *Schema) Definitions() ([]*Type, []*Directive) {
	var types []*Type
	for _, name := range s.TypeNames() {
		if t := s.Types[name]; t != builtinType(name) {
			types = append(types, t)
		}
	}
	var directives []*Directive
	for _, name := range s.DirectiveNames() {
		if d := s.Directives[name]; d != builtinDirective(name) {
			directives = append(directives, d)
		}
	}
	return types, directives
}

func rootName(s *Schema, requested, fallback string) string {
	if requested != "" {
		return requested
	}
	if _, ok := s.Types[fallback]; ok {
		return fallback
	}
	return ""
}

// index precomputes possible types and field lookups.
func (s *Schema) index() {
	s.possible = make(map[string][]*Type)
	s.fields = make(map[string]map[string]*Field)
	for _, name := range s.order {
		t := s.Types[name]
		switch t.Kind {
		case TypeKindObject:
			s.possible[name] = []*Type{t}
			for _, iface := range t.Interfaces {
				s.possible[iface] = append(s.possible[iface], t)
			}
		case TypeKindUnion:
			for _, member := range t.PossibleTypes {
				if m := s.Types[member]; m != nil && m.Kind == TypeKindObject {
					s.possible[name] = append(s.possible[name], m)
				}
			}
		}
		if t.Kind == TypeKindObject || t.Kind == TypeKindInterface {
			byName := make(map[string]*Field, len(t.Fields))
			for _, f := range t.Fields {
				if _, dup := byName[f.Name]; !dup {
					byName[f.Name] = f
				}
			}
			s.fields[name] = byName
		}
	}
	for name, t := range s.Types {
		if t.Kind == TypeKindInterface {
			if _, ok := s.possible[name]; !ok {
				s.possible[name] = nil
			}
		}
	}
}

type registrar struct {
	schema        *Schema
	violations    RegistryError
	allowReserved bool
}

func (r *registrar) reserved(name string) bool {
	return !r.allowReserved && len(name) >= 2 && name[:2] == "__"
}

func (r *registrar) add(v *Violation) {
	r.violations = append(r.violations, v)
}

func (r *registrar) checkRoots() {
	s := r.schema
	roots := []struct {
		kind     string
		name     string
		required bool
	}{
		{"Query", s.QueryType, true},
		{"Mutation", s.MutationType, false},
		{"Subscription", s.SubscriptionType, false},
	}
	for _, root := range roots {
		if root.name == "" {
			if root.required {
				r.add(violationMissingRootType(root.kind))
			}
			continue
		}
		t := s.Types[root.name]
		if t == nil {
			r.add(violationRootTypeNotFound(root.kind, root.name))
			continue
		}
		if t.Kind != TypeKindObject {
			r.add(violationRootTypeNotObject(root.kind, root.name))
		}
	}
}

func (r *registrar) checkDirectiveDefinition(d *Directive) {
	if r.reserved(d.Name) {
		r.add(violationReservedName("Directive", d.Name))
	}
	if len(d.Locations) == 0 {
		r.add(violationNoLocations(d.Name))
	}
	for _, loc := range d.Locations {
		if !knownLocations[loc] {
			r.add(violationUnknownLocation(d.Name, loc))
		}
	}
	where := "directive @" + d.Name
	seen := map[string]bool{}
	for _, arg := range d.Arguments {
		if seen[arg.Name] {
			r.add(violationDuplicateMember("argument", arg.Name, "@"+d.Name))
		}
		seen[arg.Name] = true
		r.checkInputRef(arg.Type, where+"("+arg.Name+":)")
	}
}

func (r *registrar) checkType(t *Type) {
	if r.reserved(t.Name) {
		r.add(violationReservedName("Type", t.Name))
	}
	r.checkApplied(t.Directives, string(t.Kind), fmt.Sprintf("type %s", t.Name))

	switch t.Kind {
	case TypeKindObject, TypeKindInterface:
		if len(t.Fields) == 0 {
			r.add(violationEmptyType(t.Kind, t.Name))
		}
		r.checkFields(t)
		r.checkInterfaces(t)
	case TypeKindUnion:
		if len(t.PossibleTypes) == 0 {
			r.add(violationEmptyType(t.Kind, t.Name))
		}
		seen := map[string]bool{}
		for _, member := range t.PossibleTypes {
			if seen[member] {
				r.add(violationDuplicateMember("member", member, t.Name))
			}
			seen[member] = true
			m := r.schema.Types[member]
			if m == nil {
				r.add(violationTypeNotFound(member, "union "+t.Name))
				continue
			}
			if m.Kind != TypeKindObject {
				r.add(violationNotObjectMember(t.Name, member))
			}
		}
	case TypeKindEnum:
		if len(t.EnumValues) == 0 {
			r.add(violationEmptyType(t.Kind, t.Name))
		}
		seen := map[string]bool{}
		for _, v := range t.EnumValues {
			if seen[v.Name] {
				r.add(violationDuplicateMember("enum value", v.Name, t.Name))
			}
			seen[v.Name] = true
		}
	case TypeKindInputObject:
		if len(t.InputFields) == 0 {
			r.add(violationEmptyType(t.Kind, t.Name))
		}
		seen := map[string]bool{}
		for _, f := range t.InputFields {
			if seen[f.Name] {
				r.add(violationDuplicateMember("input field", f.Name, t.Name))
			}
			seen[f.Name] = true
			r.checkInputRef(f.Type, t.Name+"."+f.Name)
			if t.OneOf && (f.Type.IsNonNull() || f.HasDefault()) {
				r.add(violationOneOfField(t.Name, f.Name))
			}
		}
	}
}

func (r *registrar) checkFields(t *Type) {
	seen := map[string]bool{}
	for _, f := range t.Fields {
		where := t.Name + "." + f.Name
		if seen[f.Name] {
			r.add(violationDuplicateMember("field", f.Name, t.Name))
		}
		seen[f.Name] = true
		if r.reserved(f.Name) {
			r.add(violationReservedName("Field", where))
		}
		r.checkOutputRef(f.Type, where)
		r.checkApplied(f.Directives, "FIELD_DEFINITION", "field "+where)

		args := map[string]bool{}
		for _, arg := range f.Arguments {
			if args[arg.Name] {
				r.add(violationDuplicateMember("argument", arg.Name, where))
			}
			args[arg.Name] = true
			r.checkInputRef(arg.Type, where+"("+arg.Name+":)")
		}
	}
}

func (r *registrar) checkInterfaces(t *Type) {
	s := r.schema
	for _, name := range t.Interfaces {
		iface := s.Types[name]
		if iface == nil {
			r.add(violationTypeNotFound(name, "implements clause of "+t.Name))
			continue
		}
		if iface.Kind != TypeKindInterface {
			r.add(violationNotInterface(t.Name, name))
			continue
		}
		for _, transitive := range iface.Interfaces {
			if transitive != t.Name && !t.Implements(transitive) {
				r.add(violationTransitiveInterface(t.Name, name, transitive))
			}
		}
		for _, want := range iface.Fields {
			got := t.Field(want.Name)
			if got == nil {
				r.add(violationMissingInterfaceField(t.Name, name, want.Name))
				continue
			}
			if !s.isSubType(got.Type, want.Type) {
				r.add(violationInterfaceFieldType(t.Name, name, want.Name, want.Type, got.Type))
			}
			for _, wantArg := range want.Arguments {
				gotArg := got.Argument(wantArg.Name)
				if gotArg == nil || !gotArg.Type.Equal(wantArg.Type) {
					r.add(violationInterfaceArgument(t.Name, name, want.Name, wantArg.Name))
				}
			}
			for _, gotArg := range got.Arguments {
				if want.Argument(gotArg.Name) == nil && gotArg.Type.IsNonNull() && !gotArg.HasDefault() {
					r.add(violationExtraRequiredArgument(t.Name, name, got.Name, gotArg.Name))
				}
			}
		}
	}
}

func (r *registrar) checkOutputRef(ref *TypeRef, where string) {
	name := ref.GetNamedType()
	t := r.schema.Types[name]
	if t == nil {
		r.add(violationTypeNotFound(name, where))
		return
	}
	if t.Kind == TypeKindInputObject {
		r.add(violationTypeNotOutput(name, where))
	}
}

func (r *registrar) checkInputRef(ref *TypeRef, where string) {
	name := ref.GetNamedType()
	t := r.schema.Types[name]
	if t == nil {
		r.add(violationTypeNotFound(name, where))
		return
	}
	if !t.IsInputType() {
		r.add(violationTypeNotInput(name, where))
	}
}

func (r *registrar) checkApplied(applied []*AppliedDirective, location, where string) {
	seen := map[string]bool{}
	for _, a := range applied {
		def := r.schema.Directives[a.Name]
		if def == nil {
			r.add(violationUnknownDirective(a.Name, where))
			continue
		}
		if !def.HasLocation(location) {
			r.add(violationMisplacedDirective(a.Name, location, where))
		}
		if seen[a.Name] && !def.IsRepeatable {
			r.add(violationRepeatedDirective(a.Name, where))
		}
		seen[a.Name] = true
		for arg := range a.Args {
			if def.argument(arg) == nil {
				r.add(violationUnknownDirectiveArgument(a.Name, arg, where))
			}
		}
	}
}

// isSubType reports whether sub may be used where super is declared
// (covariant field types for interface implementations).
func (s *Schema) isSubType(sub, super *TypeRef) bool {
	if super.IsNonNull() {
		return sub.IsNonNull() && s.isSubType(sub.OfType, super.OfType)
	}
	if sub.IsNonNull() {
		return s.isSubType(sub.OfType, super)
	}
	if super.Kind == TypeRefKindList {
		return sub.Kind == TypeRefKindList && s.isSubType(sub.OfType, super.OfType)
	}
	if sub.Kind == TypeRefKindList {
		return false
	}
	if sub.Named == super.Named {
		return true
	}
	st := s.Types[super.Named]
	return st != nil && st.IsAbstract() && s.IsPossibleType(super.Named, sub.Named)
}

func (d *Directive) argument(name string) *InputValue {
	for _, a := range d.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

var knownLocations = map[string]bool{
	"QUERY": true, "MUTATION": true, "SUBSCRIPTION": true, "FIELD": true,
	"FRAGMENT_DEFINITION": true, "FRAGMENT_SPREAD": true, "INLINE_FRAGMENT": true,
	"VARIABLE_DEFINITION": true, "SCHEMA": true, "SCALAR": true, "OBJECT": true,
	"FIELD_DEFINITION": true, "ARGUMENT_DEFINITION": true, "INTERFACE": true,
	"UNION": true, "ENUM": true, "ENUM_VALUE": true, "INPUT_OBJECT": true,
	"INPUT_FIELD_DEFINITION": true,
}
