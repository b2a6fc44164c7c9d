package schema

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Render prints s as SDL. Built-in scalars and directives are left out.
// Types and directive definitions are sorted by name, so the output only
// depends on the schema's contents.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	w := &sdlWriter{}
	w.schemaBlock(s)

	for _, name := range sortedKeys(s.Types, func(name string, t *Type) bool { return t != builtinType(name) }) {
		w.typeDefinition(s.Types[name])
	}
	for _, name := range sortedKeys(s.Directives, func(name string, d *Directive) bool { return d != builtinDirective(name) }) {
		w.directiveDefinition(s.Directives[name])
	}
	return strings.TrimRight(w.String(), "\n") + "\n"
}

// RenderValue prints a Go value as a GraphQL literal, the way default values
// appear in SDL.
func RenderValue(value any) string { return literal(value) }

func sortedKeys[V any](m map[string]V, keep func(string, V) bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if keep(k, v) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

type sdlWriter struct {
	strings.Builder
}

func (w *sdlWriter) put(parts ...string) {
	for _, p := range parts {
		w.WriteString(p)
	}
}

// schemaBlock is only written when a root type has an unconventional name.
func (w *sdlWriter) schemaBlock(s *Schema) {
	roots := [...]struct{ op, name, conventional string }{
		{"query", s.QueryType, "Query"},
		{"mutation", s.MutationType, "Mutation"},
		{"subscription", s.SubscriptionType, "Subscription"},
	}
	custom := false
	for _, r := range roots {
		custom = custom || (r.name != "" && r.name != r.conventional)
	}
	if !custom {
		return
	}
	w.description("", s.Description)
	w.put("schema {\n")
	for _, r := range roots {
		if r.name != "" {
			w.put("  ", r.op, ": ", r.name, "\n")
		}
	}
	w.put("}\n\n")
}

func (w *sdlWriter) typeDefinition(t *Type) {
	w.description("", t.Description)
	switch t.Kind {
	case TypeKindScalar:
		w.put("scalar ", t.Name)
		if t.SpecifiedByURL != nil {
			w.put(` @specifiedBy(url: `, strconv.Quote(*t.SpecifiedByURL), ")")
		}
		w.applied(t.Directives)
		w.put("\n\n")

	case TypeKindObject, TypeKindInterface:
		keyword := "type "
		if t.Kind == TypeKindInterface {
			keyword = "interface "
		}
		w.put(keyword, t.Name)
		if len(t.Interfaces) > 0 {
			w.put(" implements ", strings.Join(t.Interfaces, " & "))
		}
		w.applied(t.Directives)
		w.put(" {\n")
		for _, f := range t.Fields {
			w.description("  ", f.Description)
			w.put("  ", f.Name)
			w.arguments(f.Arguments)
			w.put(": ", f.Type.String())
			w.deprecation(f.IsDeprecated, f.DeprecationReason)
			w.applied(f.Directives)
			w.put("\n")
		}
		w.put("}\n\n")

	case TypeKindUnion:
		w.put("union ", t.Name)
		w.applied(t.Directives)
		w.put(" = ", strings.Join(t.PossibleTypes, " | "), "\n\n")

	case TypeKindEnum:
		w.put("enum ", t.Name)
		w.applied(t.Directives)
		w.put(" {\n")
		for _, v := range t.EnumValues {
			w.description("  ", v.Description)
			w.put("  ", v.Name)
			w.deprecation(v.IsDeprecated, v.DeprecationReason)
			w.put("\n")
		}
		w.put("}\n\n")

	case TypeKindInputObject:
		w.put("input ", t.Name)
		if t.OneOf {
			w.put(" @oneOf")
		}
		w.applied(t.Directives)
		w.put(" {\n")
		for _, f := range t.InputFields {
			w.description("  ", f.Description)
			w.put("  ")
			w.inputValue(f)
			w.deprecation(f.IsDeprecated, f.DeprecationReason)
			w.put("\n")
		}
		w.put("}\n\n")
	}
}

func (w *sdlWriter) directiveDefinition(d *Directive) {
	w.description("", d.Description)
	w.put("directive @", d.Name)
	w.arguments(d.Arguments)
	if d.IsRepeatable {
		w.put(" repeatable")
	}
	w.put(" on ")
	for i, loc := range d.Locations {
		if i > 0 {
			w.put(" | ")
		}
		w.put(string(loc))
	}
	w.put("\n\n")
}

func (w *sdlWriter) description(indent, desc string) {
	if desc == "" {
		return
	}
	w.put(indent, `"""`, "\n", indent, strings.ReplaceAll(desc, `"""`, `\"""`), "\n", indent, `"""`, "\n")
}

func (w *sdlWriter) arguments(args []*InputValue) {
	if len(args) == 0 {
		return
	}
	w.put("(")
	for i, a := range args {
		if i > 0 {
			w.put(", ")
		}
		w.inputValue(a)
	}
	w.put(")")
}

func (w *sdlWriter) inputValue(v *InputValue) {
	w.put(v.Name, ": ", v.Type.String())
	if v.DefaultValue != nil {
		w.put(" = ", literal(v.DefaultValue))
	}
}

func (w *sdlWriter) deprecation(deprecated bool, reason string) {
	if !deprecated {
		return
	}
	w.put(" @deprecated")
	if reason != "" {
		w.put("(reason: ", strconv.Quote(reason), ")")
	}
}

// applied writes directive applications with their arguments sorted by name.
func (w *sdlWriter) applied(directives []*AppliedDirective) {
	for _, d := range directives {
		w.put(" @", d.Name)
		if len(d.Args) == 0 {
			continue
		}
		w.put("(")
		for i, name := range sortedKeys(d.Args, func(string, any) bool { return true }) {
			if i > 0 {
				w.put(", ")
			}
			w.put(name, ": ", literal(d.Args[name]))
		}
		w.put(")")
	}
}

// literal prints value as a GraphQL input literal. Strings are quoted;
// values of other types, such as enum names held in a named string type,
// are printed bare.
func literal(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		items := make([]string, len(v))
		for i, item := range v {
			items[i] = literal(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case map[string]any:
		var fields []string
		for _, k := range sortedKeys(v, func(string, any) bool { return true }) {
			fields = append(fields, k+": "+literal(v[k]))
		}
		return "{" + strings.Join(fields, ", ") + "}"
	}
	return fmt.Sprint(value)
}
