package schema

import (
	"fmt"

	language "github.com/hanpama/gqlcore/internal/language"
)

// BuildFromSDL parses SDL and registers the types it declares. Resolvers are
// attached afterwards with SetResolver and friends.
func BuildFromSDL(sdl string, opts ...RegisterOption) (*Schema, error) {
	return BuildFromSources([]*language.Source{{Name: "schema.graphql", Input: sdl}}, opts...)
}

// BuildFromSources parses and merges several SDL sources, folding type
// extensions into their base definitions, then registers the result.
func BuildFromSources(sources []*language.Source, opts ...RegisterOption) (*Schema, error) {
	doc, err := language.ParseSchemas(sources...)
	if err != nil {
		return nil, err
	}
	return BuildFromDocument(doc, opts...)
}

// BuildFromDocument registers the definitions of a parsed schema document.
func BuildFromDocument(doc *language.SchemaDocument, opts ...RegisterOption) (*Schema, error) {
	var violations RegistryError

	defs := make(map[string]*language.Definition, len(doc.Definitions))
	var ordered []*language.Definition
	for _, def := range doc.Definitions {
		if def.BuiltIn || IsBuiltinType(def.Name) {
			continue
		}
		if _, exists := defs[def.Name]; exists {
			violations = append(violations, violationDuplicateType(def.Name))
			continue
		}
		merged := *def
		defs[def.Name] = &merged
		ordered = append(ordered, &merged)
	}
	for _, ext := range doc.Extensions {
		base := defs[ext.Name]
		if base == nil {
			violations = append(violations, violationTypeNotFound(ext.Name, "type extension"))
			continue
		}
		if base.Kind != ext.Kind {
			violations = append(violations, violationf(ErrInvalidType, "Type %q of kind %s cannot be extended as %s", ext.Name, base.Kind, ext.Kind))
			continue
		}
		base.Directives = append(append(language.DirectiveList{}, base.Directives...), ext.Directives...)
		base.Interfaces = append(append([]string{}, base.Interfaces...), ext.Interfaces...)
		base.Fields = append(append([]*language.FieldDefinition{}, base.Fields...), ext.Fields...)
		base.Types = append(append([]string{}, base.Types...), ext.Types...)
		base.EnumValues = append(append([]*language.EnumValueDefinition{}, base.EnumValues...), ext.EnumValues...)
	}

	types := make([]*Type, 0, len(ordered))
	for _, def := range ordered {
		t, err := buildType(def)
		if err != nil {
			violations = append(violations, violationf(ErrInvalidType, "%v", err))
			continue
		}
		types = append(types, t)
	}

	var directives []*Directive
	for _, def := range doc.Directives {
		if IsBuiltinDirective(def.Name) {
			continue
		}
		d, err := buildDirective(def)
		if err != nil {
			violations = append(violations, violationf(ErrInvalidType, "%v", err))
			continue
		}
		directives = append(directives, d)
	}

	var query, mutation, subscription, description string
	schemaDefs := append(append([]*language.SchemaDefinition{}, doc.Schema...), doc.SchemaExtension...)
	for _, sd := range schemaDefs {
		if sd.Description != "" {
			description = sd.Description
		}
		for _, op := range sd.OperationTypes {
			switch op.Operation {
			case language.Query:
				query = op.Type
			case language.Mutation:
				mutation = op.Type
			case language.Subscription:
				subscription = op.Type
			}
		}
	}

	if len(violations) > 0 {
		return nil, violations
	}
	base := []RegisterOption{
		WithRootTypes(query, mutation, subscription),
		WithDescription(description),
	}
	return Register(types, directives, append(base, opts...)...)
}

func buildType(def *language.Definition) (*Type, error) {
	var kind TypeKind
	switch def.Kind {
	case language.Object:
		kind = TypeKindObject
	case language.Interface:
		kind = TypeKindInterface
	case language.Union:
		kind = TypeKindUnion
	case language.Enum:
		kind = TypeKindEnum
	case language.Scalar:
		kind = TypeKindScalar
	case language.InputObject:
		kind = TypeKindInputObject
	default:
		return nil, fmt.Errorf("unsupported definition kind %s for %q", def.Kind, def.Name)
	}
	t := NewType(def.Name, kind, def.Description)

	for _, d := range def.Directives {
		switch d.Name {
		case "specifiedBy":
			url, err := stringArg(d, "url")
			if err != nil {
				return nil, err
			}
			t.SetSpecifiedBy(url)
		case "oneOf":
			t.SetOneOf(true)
		default:
			args, err := directiveArgs(d)
			if err != nil {
				return nil, err
			}
			t.AddDirective(d.Name, args)
		}
	}

	switch kind {
	case TypeKindObject, TypeKindInterface:
		for _, name := range def.Interfaces {
			t.AddInterface(name)
		}
		for _, fd := range def.Fields {
			f, err := buildField(fd)
			if err != nil {
				return nil, err
			}
			t.AddField(f)
		}
	case TypeKindUnion:
		for _, name := range def.Types {
			t.AddPossibleType(name)
		}
	case TypeKindEnum:
		for _, ev := range def.EnumValues {
			v := NewEnumValue(ev.Name, ev.Description)
			if reason, ok, err := deprecation(ev.Directives); err != nil {
				return nil, err
			} else if ok {
				v.Deprecate(reason)
			}
			t.AddEnumValue(v)
		}
	case TypeKindInputObject:
		for _, fd := range def.Fields {
			in, err := buildInputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue, fd.Directives)
			if err != nil {
				return nil, err
			}
			t.AddInputField(in)
		}
	}
	return t, nil
}

func buildField(fd *language.FieldDefinition) (*Field, error) {
	f := NewField(fd.Name, fd.Description, TypeRefFromAST(fd.Type))
	for _, ad := range fd.Arguments {
		arg, err := buildInputValue(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			return nil, err
		}
		f.AddArgument(arg)
	}
	for _, d := range fd.Directives {
		if d.Name == "deprecated" {
			continue
		}
		args, err := directiveArgs(d)
		if err != nil {
			return nil, err
		}
		f.AddDirective(d.Name, args)
	}
	if reason, ok, err := deprecation(fd.Directives); err != nil {
		return nil, err
	} else if ok {
		f.Deprecate(reason)
	}
	return f, nil
}

func buildInputValue(name, description string, typ *language.Type, def *language.Value, directives language.DirectiveList) (*InputValue, error) {
	in := NewInputValue(name, description, TypeRefFromAST(typ))
	if def != nil {
		v, err := ConstValue(def)
		if err != nil {
			return nil, fmt.Errorf("default value of %s: %w", name, err)
		}
		in.SetDefault(v)
	}
	if reason, ok, err := deprecation(directives); err != nil {
		return nil, err
	} else if ok {
		in.Deprecate(reason)
	}
	return in, nil
}

func buildDirective(def *language.DirectiveDefinition) (*Directive, error) {
	d := NewDirective(def.Name, def.Description).SetRepeatable(def.IsRepeatable)
	for _, loc := range def.Locations {
		d.AddLocation(string(loc))
	}
	for _, ad := range def.Arguments {
		arg, err := buildInputValue(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			return nil, err
		}
		d.AddArgument(arg)
	}
	return d, nil
}

// TypeRefFromAST converts a parsed type reference.
func TypeRefFromAST(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(TypeRefFromAST(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		ref = NonNullType(ref)
	}
	return ref
}

// ConstValue converts a constant AST value (no variables) to its Go form:
// int64, float64, string, bool, nil, []any or map[string]any. Enum values
// become their name.
func ConstValue(v *language.Value) (any, error) {
	return v.Value(nil)
}

func deprecation(directives language.DirectiveList) (string, bool, error) {
	d := directives.ForName("deprecated")
	if d == nil {
		return "", false, nil
	}
	if d.Arguments.ForName("reason") == nil {
		return deprecatedDirective.Arguments[0].DefaultValue.(string), true, nil
	}
	reason, err := stringArg(d, "reason")
	return reason, true, err
}

func stringArg(d *language.Directive, name string) (string, error) {
	arg := d.Arguments.ForName(name)
	if arg == nil {
		return "", fmt.Errorf("@%s requires argument %q", d.Name, name)
	}
	v, err := ConstValue(arg.Value)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("@%s(%s:) expects a string, got %s", d.Name, name, language.Describe(arg.Value))
	}
	return s, nil
}

func directiveArgs(d *language.Directive) (map[string]any, error) {
	if len(d.Arguments) == 0 {
		return nil, nil
	}
	args := make(map[string]any, len(d.Arguments))
	for _, a := range d.Arguments {
		v, err := ConstValue(a.Value)
		if err != nil {
			return nil, fmt.Errorf("@%s(%s:): %w", d.Name, a.Name, err)
		}
		args[a.Name] = v
	}
	return args, nil
}
