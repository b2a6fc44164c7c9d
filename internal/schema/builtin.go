package schema

var stringType = &Type{
	Name:        "String",
	Kind:        TypeKindScalar,
	Description: "The `String` scalar type represents textual data, represented as UTF-8 character sequences.",
	Scalar:      &ScalarFuncs{Serialize: serializeString, ParseValue: parseStringValue, ParseLiteral: parseStringLiteral},
}

var intType = &Type{
	Name:        "Int",
	Kind:        TypeKindScalar,
	Description: "The `Int` scalar type represents non-fractional signed whole numeric values.",
	Scalar:      &ScalarFuncs{Serialize: serializeInt, ParseValue: parseIntValue, ParseLiteral: parseIntLiteral},
}

var floatType = &Type{
	Name:        "Float",
	Kind:        TypeKindScalar,
	Description: "The `Float` scalar type represents signed double-precision fractional values.",
	Scalar:      &ScalarFuncs{Serialize: serializeFloat, ParseValue: parseFloatValue, ParseLiteral: parseFloatLiteral},
}

var booleanType = &Type{
	Name:        "Boolean",
	Kind:        TypeKindScalar,
	Description: "The `Boolean` scalar type represents `true` or `false`.",
	Scalar:      &ScalarFuncs{Serialize: serializeBoolean, ParseValue: parseBooleanValue, ParseLiteral: parseBooleanLiteral},
}

var idType = &Type{
	Name:        "ID",
	Kind:        TypeKindScalar,
	Description: "The `ID` scalar type represents a unique identifier, often used to refetch an object or as a key for caching.",
	Scalar:      &ScalarFuncs{Serialize: serializeID, ParseValue: parseIDValue, ParseLiteral: parseIDLiteral},
}

var builtinTypes = []*Type{stringType, intType, floatType, booleanType, idType}

var includeDirective = &Directive{
	Name:        "include",
	Description: "Directs the executor to include this field or fragment only when the `if` argument is true.",
	Arguments: []*InputValue{
		{
			Name:        "if",
			Description: "Included when true.",
			Type:        NonNullType(NamedType("Boolean")),
		},
	},
	Locations:    []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
	IsRepeatable: false,
}

var skipDirective = &Directive{
	Name:        "skip",
	Description: "Directs the executor to skip this field or fragment when the `if` argument is true.",
	Arguments: []*InputValue{
		{
			Name:        "if",
			Description: "Skipped when true.",
			Type:        NonNullType(NamedType("Boolean")),
		},
	},
	Locations:    []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
	IsRepeatable: false,
}

var deprecatedDirective = &Directive{
	Name:        "deprecated",
	Description: "Marks an element of a GraphQL schema as no longer supported.",
	Arguments: []*InputValue{
		{
			Name:         "reason",
			Type:         NamedType("String"),
			DefaultValue: "No longer supported",
		},
	},
	Locations: []string{"FIELD_DEFINITION", "ARGUMENT_DEFINITION", "INPUT_FIELD_DEFINITION", "ENUM_VALUE"},
}

var specifiedByDirective = &Directive{
	Name:        "specifiedBy",
	Description: "Exposes a URL that specifies the behavior of this scalar.",
	Arguments: []*InputValue{
		{Name: "url", Type: NonNullType(NamedType("String"))},
	},
	Locations: []string{"SCALAR"},
}

var oneOfDirective = &Directive{
	Name:        "oneOf",
	Description: "Indicates exactly one field must be supplied and this field must not be `null`.",
	Locations:   []string{"INPUT_OBJECT"},
}

// costDirective feeds the complexity analyzer: weight replaces the default
// field cost of 1 and multipliers name the arguments whose values scale the
// cost of the field's children.
var costDirective = &Directive{
	Name:        "cost",
	Description: "Declares the static cost of a field for query complexity analysis.",
	Arguments: []*InputValue{
		{Name: "weight", Type: NamedType("Int")},
		{Name: "multipliers", Type: ListType(NonNullType(NamedType("String")))},
	},
	Locations: []string{"FIELD_DEFINITION"},
}

var builtinDirectives = []*Directive{
	includeDirective,
	skipDirective,
	deprecatedDirective,
	specifiedByDirective,
	oneOfDirective,
	costDirective,
}

// IsBuiltinType reports whether name is one of the specified scalars.
func IsBuiltinType(name string) bool {
	for _, t := range builtinTypes {
		if t.Name == name {
			return true
		}
	}
	return false
}

// IsBuiltinDirective reports whether name is a directive every schema defines.
func IsBuiltinDirective(name string) bool {
	for _, d := range builtinDirectives {
		if d.Name == name {
			return true
		}
	}
	return false
}
