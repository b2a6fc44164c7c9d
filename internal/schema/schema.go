package schema

// Schema represents the complete GraphQL schema.
//
// A Schema returned by Register (or Build) is immutable: lookups may run
// concurrently from any number of requests without locking.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type // All named types keyed by name
	Directives       map[string]*Directive
	Description      string

	order          []string
	directiveOrder []string
	possible       map[string][]*Type
	fields         map[string]map[string]*Field

	// duplicates collected by AddType and AddDirective, reported by Build
	pending           []*Type
	pendingDirectives []*Directive
}

// GetQueryType returns the root query type (may be nil if absent)
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// GetMutationType returns the root mutation type (may be nil if absent)
func (s *Schema) GetMutationType() *Type { return s.Types[s.MutationType] }

// GetSubscriptionType returns the root subscription type (may be nil if absent)
func (s *Schema) GetSubscriptionType() *Type { return s.Types[s.SubscriptionType] }

// Type returns the named type or nil.
func (s *Schema) Type(name string) *Type { return s.Types[name] }

// TypeNames returns type names in registration order. Schemas that were not
// registered fall back to map order.
func (s *Schema) TypeNames() []string {
	if s.order != nil {
		return s.order
	}
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	return names
}

// DirectiveNames returns directive names in registration order.
func (s *Schema) DirectiveNames() []string {
	if s.directiveOrder != nil {
		return s.directiveOrder
	}
	names := make([]string, 0, len(s.Directives))
	for name := range s.Directives {
		names = append(names, name)
	}
	return names
}

// Field looks up a field on an object or interface type.
func (s *Schema) Field(typeName, fieldName string) *Field {
	if byName, ok := s.fields[typeName]; ok {
		return byName[fieldName]
	}
	if t := s.Types[typeName]; t != nil {
		return t.Field(fieldName)
	}
	return nil
}

// PossibleTypes returns the object types that may appear where the abstract
// type is expected. For an object type it returns the type itself.
func (s *Schema) PossibleTypes(name string) []*Type {
	if s.possible != nil {
		if pt, ok := s.possible[name]; ok {
			return pt
		}
	}
	t := s.Types[name]
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TypeKindObject:
		return []*Type{t}
	case TypeKindUnion:
		out := make([]*Type, 0, len(t.PossibleTypes))
		for _, n := range t.PossibleTypes {
			if m := s.Types[n]; m != nil {
				out = append(out, m)
			}
		}
		return out
	case TypeKindInterface:
		var out []*Type
		for _, n := range s.TypeNames() {
			if m := s.Types[n]; m.Kind == TypeKindObject && m.Implements(name) {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// IsPossibleType reports whether object type objectName satisfies typeName
// (same type, implemented interface, or union member).
func (s *Schema) IsPossibleType(typeName, objectName string) bool {
	if typeName == objectName {
		return true
	}
	for _, t := range s.PossibleTypes(typeName) {
		if t.Name == objectName {
			return true
		}
	}
	return false
}

// Overlaps reports whether two composite types share a possible object type.
func (s *Schema) Overlaps(a, b string) bool {
	if a == b {
		return true
	}
	for _, t := range s.PossibleTypes(a) {
		if s.IsPossibleType(b, t.Name) {
			return true
		}
	}
	return false
}

// Type is a named GraphQL type (object, interface, union, scalar, enum, input)
type Type struct {
	Name           string
	Kind           TypeKind
	Description    string
	Fields         []*Field      // For OBJECT and INTERFACE
	Interfaces     []string      // For OBJECT and INTERFACE (implemented/extended)
	PossibleTypes  []string      // For UNION
	EnumValues     []*EnumValue  // For ENUM
	InputFields    []*InputValue // For INPUT_OBJECT
	SpecifiedByURL *string
	OneOf          bool
	Directives     []*AppliedDirective

	// ResolveType picks the concrete object type for INTERFACE and UNION values.
	ResolveType TypeResolveFunc `json:"-"`
	// IsTypeOf is consulted for OBJECT types when the abstract type has no ResolveType.
	IsTypeOf IsTypeOfFunc `json:"-"`
	// ResolveReference loads an entity from a federation representation.
	ResolveReference ReferenceResolveFunc `json:"-"`
	// Scalar overrides coercion for SCALAR types.
	Scalar *ScalarFuncs `json:"-"`
}

// Field returns the named field or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// InputField returns the named input field or nil.
func (t *Type) InputField(name string) *InputValue {
	for _, f := range t.InputFields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// EnumValue returns the named enum value or nil.
func (t *Type) EnumValue(name string) *EnumValue {
	for _, v := range t.EnumValues {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Implements reports whether the type declares the interface.
func (t *Type) Implements(iface string) bool {
	for _, n := range t.Interfaces {
		if n == iface {
			return true
		}
	}
	return false
}

// Directive returns the first applied directive with the given name.
func (t *Type) Directive(name string) *AppliedDirective {
	return findDirective(t.Directives, name)
}

// IsComposite reports whether selections can be made on the type.
func (t *Type) IsComposite() bool {
	return t.Kind == TypeKindObject || t.Kind == TypeKindInterface || t.Kind == TypeKindUnion
}

// IsAbstract reports whether the type is an interface or union.
func (t *Type) IsAbstract() bool {
	return t.Kind == TypeKindInterface || t.Kind == TypeKindUnion
}

// IsLeaf reports whether the type is a scalar or enum.
func (t *Type) IsLeaf() bool {
	return t.Kind == TypeKindScalar || t.Kind == TypeKindEnum
}

// IsInputType reports whether values of the type may appear in input positions.
func (t *Type) IsInputType() bool {
	return t.Kind == TypeKindScalar || t.Kind == TypeKindEnum || t.Kind == TypeKindInputObject
}

// Field represents a field on an object or interface
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	IsDeprecated      bool
	DeprecationReason string
	Directives        []*AppliedDirective

	// Resolve produces the field value. Nil fields use the default resolver.
	Resolve ResolveFunc `json:"-"`
	// Subscribe produces the source stream for subscription root fields.
	Subscribe SubscribeFunc `json:"-"`
}

// Argument returns the named argument definition or nil.
func (f *Field) Argument(name string) *InputValue {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Directive returns the first applied directive with the given name.
func (f *Field) Directive(name string) *AppliedDirective {
	return findDirective(f.Directives, name)
}

// TypeKind represents the kind of GraphQL type
type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef represents a reference to a type (can be wrapped)
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef // For List and NonNull
	Named  string   // For named types
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

// Helper functions for TypeRef
func (t *TypeRef) IsNonNull() bool {
	return t != nil && t.Kind == TypeRefKindNonNull
}

func (t *TypeRef) IsList() bool {
	if t.Kind == TypeRefKindList {
		return true
	}
	if t.Kind == TypeRefKindNonNull && t.OfType != nil {
		return t.OfType.Kind == TypeRefKindList
	}
	return false
}

func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindNonNull || t.Kind == TypeRefKindList {
		return t.OfType
	}
	return t
}

// Nullable strips a Non-Null wrapper if present.
func (t *TypeRef) Nullable() *TypeRef {
	if t.IsNonNull() {
		return t.OfType
	}
	return t
}

func (t *TypeRef) GetNamedType() string {
	current := t
	for current != nil {
		if current.Named != "" {
			return current.Named
		}
		current = current.OfType
	}
	return ""
}

// String renders the reference in SDL notation, e.g. "[User!]!".
func (t *TypeRef) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindNamed:
		return t.Named
	case TypeRefKindList:
		return "[" + t.OfType.String() + "]"
	case TypeRefKindNonNull:
		return t.OfType.String() + "!"
	}
	return ""
}

// Equal reports structural equality of two references.
func (t *TypeRef) Equal(o *TypeRef) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind || t.Named != o.Named {
		return false
	}
	if t.OfType == nil || o.OfType == nil {
		return t.OfType == o.OfType
	}
	return t.OfType.Equal(o.OfType)
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
	// Value is the internal representation; nil means the name itself.
	Value any `json:"-"`
}

type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      any
	IsDeprecated      bool
	DeprecationReason string
}

// HasDefault reports whether a default value was declared.
func (v *InputValue) HasDefault() bool { return v.DefaultValue != nil }

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}

// HasLocation reports whether the directive may be applied at loc.
func (d *Directive) HasLocation(loc string) bool {
	for _, l := range d.Locations {
		if l == loc {
			return true
		}
	}
	return false
}

// AppliedDirective is a directive use on a type system element.
type AppliedDirective struct {
	Name string
	Args map[string]any
}

// Arg returns an argument value, or nil when absent.
func (d *AppliedDirective) Arg(name string) any {
	if d == nil {
		return nil
	}
	return d.Args[name]
}

func findDirective(list []*AppliedDirective, name string) *AppliedDirective {
	for _, d := range list {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }

// IsNonNull reports whether the type is wrapped with Non-Null.
func IsNonNull(t *TypeRef) bool { return t != nil && t.IsNonNull() }

// IsList reports whether the type is (or is wrapped by) a list type.
func IsList(t *TypeRef) bool { return t != nil && t.IsList() }

// Unwrap removes one layer of Non-Null or List wrapping and returns the inner type.
func Unwrap(t *TypeRef) *TypeRef { return t.Unwrap() }

// GetNamedType returns the innermost named type for the given reference.
func GetNamedType(t *TypeRef) string { return t.GetNamedType() }
