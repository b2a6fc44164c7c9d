package schema

// NewSchema starts an empty schema. Types and directives are added with
// AddType and AddDirective and the result is checked by Build.
func NewSchema(description string) *Schema {
	return &Schema{
		Types:       map[string]*Type{},
		Directives:  map[string]*Directive{},
		Description: description,
	}
}

func (s *Schema) SetQueryType(name string) *Schema {
	s.QueryType = name
	return s
}

func (s *Schema) SetMutationType(name string) *Schema {
	s.MutationType = name
	return s
}

func (s *Schema) SetSubscriptionType(name string) *Schema {
	s.SubscriptionType = name
	return s
}

// AddType adds a named type. Adding the same name twice is reported by Build.
func (s *Schema) AddType(t *Type) *Schema {
	if _, exists := s.Types[t.Name]; exists {
		s.pending = append(s.pending, t)
		return s
	}
	s.Types[t.Name] = t
	s.order = append(s.order, t.Name)
	return s
}

func (s *Schema) AddDirective(d *Directive) *Schema {
	if _, exists := s.Directives[d.Name]; exists {
		s.pendingDirectives = append(s.pendingDirectives, d)
		return s
	}
	s.Directives[d.Name] = d
	s.directiveOrder = append(s.directiveOrder, d.Name)
	return s
}

// Build registers the accumulated definitions and returns the checked,
// indexed schema. Built-in scalars and directives are added automatically.
func (s *Schema) Build(opts ...RegisterOption) (*Schema, error) {
	types := make([]*Type, 0, len(s.order)+len(s.pending))
	for _, name := range s.order {
		if IsBuiltinType(name) && s.Types[name] == builtinType(name) {
			continue
		}
		types = append(types, s.Types[name])
	}
	types = append(types, s.pending...)

	directives := make([]*Directive, 0, len(s.directiveOrder)+len(s.pendingDirectives))
	for _, name := range s.directiveOrder {
		if IsBuiltinDirective(name) && s.Directives[name] == builtinDirective(name) {
			continue
		}
		directives = append(directives, s.Directives[name])
	}
	directives = append(directives, s.pendingDirectives...)

	base := []RegisterOption{
		WithRootTypes(s.QueryType, s.MutationType, s.SubscriptionType),
		WithDescription(s.Description),
	}
	return Register(types, directives, append(base, opts...)...)
}

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddInterface(name string) *Type {
	t.Interfaces = append(t.Interfaces, name)
	return t
}

func (t *Type) AddField(f *Field) *Type {
	t.Fields = append(t.Fields, f)
	return t
}

func (t *Type) AddEnumValue(v *EnumValue) *Type {
	t.EnumValues = append(t.EnumValues, v)
	return t
}

func (t *Type) AddInputField(v *InputValue) *Type {
	t.InputFields = append(t.InputFields, v)
	return t
}

func (t *Type) AddPossibleType(name string) *Type {
	t.PossibleTypes = append(t.PossibleTypes, name)
	return t
}

func (t *Type) SetOneOf(oneOf bool) *Type {
	t.OneOf = oneOf
	return t
}

func (t *Type) SetSpecifiedBy(url string) *Type {
	t.SpecifiedByURL = &url
	return t
}

// AddDirective applies a type system directive to the type.
func (t *Type) AddDirective(name string, args map[string]any) *Type {
	t.Directives = append(t.Directives, &AppliedDirective{Name: name, Args: args})
	return t
}

func (t *Type) SetResolveType(fn TypeResolveFunc) *Type {
	t.ResolveType = fn
	return t
}

func (t *Type) SetIsTypeOf(fn IsTypeOfFunc) *Type {
	t.IsTypeOf = fn
	return t
}

func (t *Type) SetResolveReference(fn ReferenceResolveFunc) *Type {
	t.ResolveReference = fn
	return t
}

func (t *Type) SetScalar(funcs *ScalarFuncs) *Type {
	t.Scalar = funcs
	return t
}

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) Deprecate(reason string) *Field {
	f.IsDeprecated = true
	f.DeprecationReason = reason
	return f
}

func (f *Field) AddArgument(arg *InputValue) *Field {
	f.Arguments = append(f.Arguments, arg)
	return f
}

func (f *Field) AddDirective(name string, args map[string]any) *Field {
	f.Directives = append(f.Directives, &AppliedDirective{Name: name, Args: args})
	return f
}

func (f *Field) SetResolve(fn ResolveFunc) *Field {
	f.Resolve = fn
	return f
}

func (f *Field) SetSubscribe(fn SubscribeFunc) *Field {
	f.Subscribe = fn
	return f
}

func NewEnumValue(name, description string) *EnumValue {
	return &EnumValue{Name: name, Description: description}
}

func (e *EnumValue) Deprecate(reason string) *EnumValue {
	e.IsDeprecated = true
	e.DeprecationReason = reason
	return e
}

// SetValue sets the internal value used in place of the name when the enum
// is passed to resolvers and when resolver results are serialized.
func (e *EnumValue) SetValue(v any) *EnumValue {
	e.Value = v
	return e
}

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func (v *InputValue) SetDefault(value any) *InputValue {
	v.DefaultValue = value
	return v
}

func (v *InputValue) Deprecate(reason string) *InputValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

func NewDirective(name, description string) *Directive {
	return &Directive{Name: name, Description: description}
}

func (d *Directive) SetRepeatable(repeatable bool) *Directive {
	d.IsRepeatable = repeatable
	return d
}

func (d *Directive) AddLocation(locations ...string) *Directive {
	d.Locations = append(d.Locations, locations...)
	return d
}

func (d *Directive) AddArgument(arg *InputValue) *Directive {
	d.Arguments = append(d.Arguments, arg)
	return d
}

func builtinType(name string) *Type {
	for _, t := range builtinTypes {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func builtinDirective(name string) *Directive {
	for _, d := range builtinDirectives {
		if d.Name == name {
			return d
		}
	}
	return nil
}
