package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateType            = errors.New("duplicate type")
	ErrUnknownTypeReference     = errors.New("unknown type reference")
	ErrInvalidDirectiveLocation = errors.New("invalid directive location")
	ErrInvalidType              = errors.New("invalid type definition")
)

// Violation is one registry consistency failure. Code is one of the Err*
// sentinels above.
type Violation struct {
	Code    error  `json:"-"`
	Message string `json:"message"`
}

func (v *Violation) Error() string { return v.Message }

func (v *Violation) Unwrap() error { return v.Code }

// RegistryError aggregates every violation found while registering a schema.
// It is fatal: a schema that fails registration must not serve requests.
type RegistryError []*Violation

func (e RegistryError) Error() string {
	var b strings.Builder
	b.WriteString("violations found:\n")
	for _, v := range e {
		b.WriteString("- ")
		b.WriteString(v.Message)
		b.WriteString("\n")
	}
	return b.String()
}

// Unwrap exposes each violation so errors.Is matches any of their codes.
func (e RegistryError) Unwrap() []error {
	out := make([]error, len(e))
	for i, v := range e {
		out[i] = v
	}
	return out
}

func violationf(code error, format string, args ...any) *Violation {
	return &Violation{Code: code, Message: fmt.Sprintf(format, args...)}
}

func violationDuplicateType(name string) *Violation {
	return violationf(ErrDuplicateType, "Type %q is defined more than once", name)
}

func violationDuplicateDirective(name string) *Violation {
	return violationf(ErrDuplicateType, "Directive @%s is defined more than once", name)
}

func violationDuplicateMember(kind, member, typeName string) *Violation {
	return violationf(ErrDuplicateType, "Duplicate %s %q found in %q", kind, member, typeName)
}

func violationTypeNotFound(typeName, where string) *Violation {
	return violationf(ErrUnknownTypeReference, "Type %q referenced by %s is not defined", typeName, where)
}

func violationUnknownDirective(name, where string) *Violation {
	return violationf(ErrUnknownTypeReference, "Unknown directive @%s on %s", name, where)
}

func violationUnknownDirectiveArgument(directive, arg, where string) *Violation {
	return violationf(ErrUnknownTypeReference, "Unknown argument %q in @%s directive on %s", arg, directive, where)
}

func violationMisplacedDirective(name, location, where string) *Violation {
	return violationf(ErrInvalidDirectiveLocation, "Directive @%s may not be used on %s (%s)", name, location, where)
}

func violationRepeatedDirective(name, where string) *Violation {
	return violationf(ErrInvalidDirectiveLocation, "Directive @%s is not repeatable but is used more than once on %s", name, where)
}

func violationUnknownLocation(directive, location string) *Violation {
	return violationf(ErrInvalidDirectiveLocation, "Directive @%s declares unknown location %s", directive, location)
}

func violationNoLocations(directive string) *Violation {
	return violationf(ErrInvalidDirectiveLocation, "Directive @%s must declare at least one location", directive)
}

func violationTypeNotInput(typeName, where string) *Violation {
	return violationf(ErrInvalidType, "Type %q used by %s is not an input type", typeName, where)
}

func violationTypeNotOutput(typeName, where string) *Violation {
	return violationf(ErrInvalidType, "Type %q used by %s is not an output type", typeName, where)
}

func violationReservedName(kind, name string) *Violation {
	return violationf(ErrInvalidType, "%s name %q cannot start with '__' (reserved prefix)", kind, name)
}

func violationEmptyType(kind TypeKind, typeName string) *Violation {
	return violationf(ErrInvalidType, "%s type %q must define at least one member", kind, typeName)
}

func violationNotInterface(typeName, iface string) *Violation {
	return violationf(ErrInvalidType, "Type %q can only implement interfaces, %q is not one", typeName, iface)
}

func violationNotObjectMember(union, member string) *Violation {
	return violationf(ErrInvalidType, "Union %q can only include object types, %q is not one", union, member)
}

func violationMissingInterfaceField(typeName, iface, field string) *Violation {
	return violationf(ErrInvalidType, "Interface field %s.%s expected but %s does not provide it", iface, field, typeName)
}

func violationInterfaceFieldType(typeName, iface, field string, want, got *TypeRef) *Violation {
	return violationf(ErrInvalidType, "Interface field %s.%s expects type %s but %s.%s is type %s", iface, field, want, typeName, field, got)
}

func violationInterfaceArgument(typeName, iface, field, arg string) *Violation {
	return violationf(ErrInvalidType, "Interface field argument %s.%s(%s:) is missing or has a different type on %s", iface, field, arg, typeName)
}

func violationExtraRequiredArgument(typeName, iface, field, arg string) *Violation {
	return violationf(ErrInvalidType, "Argument %s.%s(%s:) must be nullable because it is not defined by interface %s", typeName, field, arg, iface)
}

func violationTransitiveInterface(typeName, iface, missing string) *Violation {
	return violationf(ErrInvalidType, "Type %q must also implement %q because %q implements it", typeName, missing, iface)
}

func violationOneOfField(typeName, field string) *Violation {
	return violationf(ErrInvalidType, "OneOf input field %s.%s must be nullable and have no default value", typeName, field)
}

func violationMissingRootType(kind string) *Violation {
	return violationf(ErrInvalidType, "Schema must define a %s root type", kind)
}

func violationRootTypeNotFound(kind, typeName string) *Violation {
	return violationf(ErrUnknownTypeReference, "%s root type %q is not defined", kind, typeName)
}

func violationRootTypeNotObject(kind, typeName string) *Violation {
	return violationf(ErrInvalidType, "%s root type %q must be an object type", kind, typeName)
}
