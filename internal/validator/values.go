package validator

import (
	"encoding/json"
	"fmt"
	"sort"

	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

type variableUsage struct {
	name string
	typ  *schema.TypeRef
	// hasDefault is true when the argument or input field receiving the
	// variable declares a default value.
	hasDefault bool
	pos        *language.Position
}

// validateLiteral checks an input literal against its declared type. Variable
// references are recorded for the usage checks instead of being validated.
func (v *validator) validateLiteral(value *language.Value, ref *schema.TypeRef, locationDefault bool) {
	if value == nil || ref == nil {
		return
	}
	if value.Kind == language.Variable {
		if v.scope != nil {
			v.usages[v.scope] = append(v.usages[v.scope], variableUsage{
				name:       value.Raw,
				typ:        ref,
				hasDefault: locationDefault,
				pos:        value.Position,
			})
		}
		return
	}
	if ref.IsNonNull() {
		if value.Kind == language.NullValue {
			v.report(RuleCoercionError, value.Position, "Expected value of type %q, found null.", ref.String())
			return
		}
		v.validateLiteral(value, ref.OfType, false)
		return
	}
	if value.Kind == language.NullValue {
		return
	}
	if ref.Kind == schema.TypeRefKindList {
		if value.Kind == language.ListValue {
			for _, child := range value.Children {
				v.validateLiteral(child.Value, ref.OfType, false)
			}
			return
		}
		v.validateLiteral(value, ref.OfType, false)
		return
	}

	t := v.schema.Type(ref.Named)
	if t == nil {
		return
	}
	switch t.Kind {
	case schema.TypeKindInputObject:
		v.validateObjectLiteral(value, t, ref)
	case schema.TypeKindEnum:
		if value.Kind != language.EnumValue {
			v.report(RuleCoercionError, value.Position, "Enum %q cannot represent non-enum value: %s.", t.Name, value.String())
			return
		}
		if t.EnumValue(value.Raw) == nil {
			v.report(RuleCoercionError, value.Position, "Value %q does not exist in %q enum.", value.Raw, t.Name)
		}
	case schema.TypeKindScalar:
		if value.Kind == language.ListValue || value.Kind == language.ObjectValue {
			if t.Scalar == nil || t.Scalar.ParseLiteral == nil {
				if schema.IsBuiltinType(t.Name) {
					v.report(RuleCoercionError, value.Position, "Expected value of type %q, found %s.", ref.String(), value.String())
				}
				return
			}
		}
		if _, err := parseLiteral(t, value, nil); err != nil {
			v.report(RuleCoercionError, value.Position, "Expected value of type %q, found %s; %v", ref.String(), value.String(), err)
		}
	}
}

func (v *validator) validateObjectLiteral(value *language.Value, t *schema.Type, ref *schema.TypeRef) {
	if value.Kind != language.ObjectValue {
		v.report(RuleCoercionError, value.Position, "Expected value of type %q, found %s.", ref.String(), value.String())
		return
	}
	seen := map[string]bool{}
	for _, child := range value.Children {
		if seen[child.Name] {
			v.report(RuleCoercionError, child.Position, "There can be only one input field named %q.", child.Name)
			continue
		}
		seen[child.Name] = true
		field := t.InputField(child.Name)
		if field == nil {
			v.report(RuleCoercionError, child.Position, "Field %q is not defined by type %q.", child.Name, t.Name)
			continue
		}
		if t.OneOf && child.Value.Kind == language.Variable {
			v.validateLiteral(child.Value, schema.NonNullType(field.Type), false)
			continue
		}
		v.validateLiteral(child.Value, field.Type, field.HasDefault())
	}
	for _, field := range t.InputFields {
		if field.Type.IsNonNull() && !field.HasDefault() && !seen[field.Name] {
			v.report(RuleCoercionError, value.Position, "Field \"%s.%s\" of required type %q was not provided.", t.Name, field.Name, field.Type.String())
		}
	}
	if t.OneOf {
		if len(value.Children) != 1 {
			v.report(RuleCoercionError, value.Position, "OneOf Input Object %q must specify exactly one key.", t.Name)
			return
		}
		if child := value.Children[0]; child.Value.Kind == language.NullValue {
			v.report(RuleCoercionError, child.Position, "Field \"%s.%s\" must be non-null.", t.Name, child.Name)
		}
	}
}

// coerceVariableValues coerces request variables against the operation's
// variable definitions. Absent required variables are reported as
// MissingVariable and other problems as CoercionError.
func (v *validator) coerceVariableValues(op *language.OperationDefinition, inputs map[string]any) map[string]any {
	coerced := make(map[string]any, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		name := def.Variable
		ref := schema.TypeRefFromAST(def.Type)
		if t := v.schema.Type(ref.GetNamedType()); t == nil || !t.IsInputType() {
			continue
		}
		val, ok := inputs[name]
		if !ok {
			if def.DefaultValue != nil {
				if cv, err := v.coerceLiteral(def.DefaultValue, ref, nil); err == nil {
					coerced[name] = cv
				}
			} else if ref.IsNonNull() {
				v.report(RuleMissingVariable, def.Position, "Variable \"$%s\" of required type %q was not provided.", name, ref.String())
			}
			continue
		}
		if val == nil && ref.IsNonNull() {
			v.report(RuleCoercionError, def.Position, "Variable \"$%s\" of non-null type %q must not be null.", name, ref.String())
			continue
		}
		cv, err := v.coerceInputValue(val, ref)
		if err != nil {
			v.report(RuleCoercionError, def.Position, "Variable \"$%s\" got invalid value %s; %v", name, describe(val), err)
			continue
		}
		coerced[name] = cv
	}
	return coerced
}

// coerceArguments produces the argument map passed to a resolver. Absent
// arguments take their default value, if any.
func (v *validator) coerceArguments(defs []*schema.InputValue, args language.ArgumentList, vars map[string]any) map[string]any {
	out := make(map[string]any, len(defs))
	for _, def := range defs {
		arg := args.ForName(def.Name)
		absent := arg == nil
		if !absent && arg.Value.Kind == language.Variable {
			_, provided := vars[arg.Value.Raw]
			absent = !provided
		}
		if absent {
			if def.HasDefault() {
				cv, err := v.coerceInputValue(def.DefaultValue, def.Type)
				if err != nil {
					v.report(RuleCoercionError, nil, "Default value of argument %q is invalid; %v", def.Name, err)
					continue
				}
				out[def.Name] = cv
			} else if def.Type.IsNonNull() && arg != nil {
				v.report(RuleMissingVariable, arg.Position, "Argument %q of required type %q was provided the variable \"$%s\" which was not provided a runtime value.", def.Name, def.Type.String(), arg.Value.Raw)
			}
			continue
		}
		cv, err := v.coerceLiteral(arg.Value, def.Type, vars)
		if err != nil {
			v.report(RuleCoercionError, arg.Position, "Argument %q has invalid value %s; %v", def.Name, arg.Value.String(), err)
			continue
		}
		out[def.Name] = cv
	}
	return out
}

// coerceLiteral converts a query literal to its runtime value, substituting
// already coerced variables.
func (v *validator) coerceLiteral(value *language.Value, ref *schema.TypeRef, vars map[string]any) (any, error) {
	if value.Kind == language.Variable {
		val, ok := vars[value.Raw]
		if !ok || val == nil {
			if ref.IsNonNull() {
				return nil, fmt.Errorf("Expected non-nullable type %q not to be null.", ref.String())
			}
			return nil, nil
		}
		return val, nil
	}
	if ref.IsNonNull() {
		if value.Kind == language.NullValue {
			return nil, fmt.Errorf("Expected non-nullable type %q not to be null.", ref.String())
		}
		return v.coerceLiteral(value, ref.OfType, vars)
	}
	if value.Kind == language.NullValue {
		return nil, nil
	}
	if ref.Kind == schema.TypeRefKindList {
		if value.Kind != language.ListValue {
			item, err := v.coerceLiteral(value, ref.OfType, vars)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, len(value.Children))
		for i, child := range value.Children {
			item, err := v.coerceLiteral(child.Value, ref.OfType, vars)
			if err != nil {
				return nil, fmt.Errorf("At index %d: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	}

	t := v.schema.Type(ref.Named)
	if t == nil {
		return nil, fmt.Errorf("Unknown type %q.", ref.Named)
	}
	switch t.Kind {
	case schema.TypeKindInputObject:
		if value.Kind != language.ObjectValue {
			return nil, fmt.Errorf("Expected type %q to be an object.", t.Name)
		}
		out := make(map[string]any, len(t.InputFields))
		for _, field := range t.InputFields {
			fv := value.Children.ForName(field.Name)
			absent := fv == nil
			if !absent && fv.Kind == language.Variable {
				_, provided := vars[fv.Raw]
				absent = !provided
			}
			if absent {
				if field.HasDefault() {
					cv, err := v.coerceInputValue(field.DefaultValue, field.Type)
					if err != nil {
						return nil, err
					}
					out[field.Name] = cv
				} else if field.Type.IsNonNull() {
					return nil, fmt.Errorf("Field \"%s.%s\" of required type %q was not provided.", t.Name, field.Name, field.Type.String())
				}
				continue
			}
			cv, err := v.coerceLiteral(fv, field.Type, vars)
			if err != nil {
				return nil, fmt.Errorf("In field %q: %w", field.Name, err)
			}
			out[field.Name] = cv
		}
		if err := checkOneOf(t, out); err != nil {
			return nil, err
		}
		return out, nil
	case schema.TypeKindEnum:
		if value.Kind != language.EnumValue {
			return nil, fmt.Errorf("Enum %q cannot represent non-enum value: %s.", t.Name, value.String())
		}
		ev := t.EnumValue(value.Raw)
		if ev == nil {
			return nil, fmt.Errorf("Value %q does not exist in %q enum.", value.Raw, t.Name)
		}
		return enumInternal(ev), nil
	case schema.TypeKindScalar:
		return parseLiteral(t, value, vars)
	}
	return nil, fmt.Errorf("Type %q is not an input type.", t.Name)
}

// coerceInputValue coerces an external (JSON decoded) value to its declared
// input type, applying input object defaults and list promotion.
func (v *validator) coerceInputValue(value any, ref *schema.TypeRef) (any, error) {
	if ref.IsNonNull() {
		if value == nil {
			return nil, fmt.Errorf("Expected non-nullable type %q not to be null.", ref.String())
		}
		return v.coerceInputValue(value, ref.OfType)
	}
	if value == nil {
		return nil, nil
	}
	if ref.Kind == schema.TypeRefKindList {
		items, ok := value.([]any)
		if !ok {
			item, err := v.coerceInputValue(value, ref.OfType)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			cv, err := v.coerceInputValue(item, ref.OfType)
			if err != nil {
				return nil, fmt.Errorf("At index %d: %w", i, err)
			}
			out[i] = cv
		}
		return out, nil
	}

	t := v.schema.Type(ref.Named)
	if t == nil {
		return nil, fmt.Errorf("Unknown type %q.", ref.Named)
	}
	switch t.Kind {
	case schema.TypeKindScalar:
		return parseValue(t, value)
	case schema.TypeKindEnum:
		name, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("Enum %q cannot represent non-string value: %s.", t.Name, describe(value))
		}
		ev := t.EnumValue(name)
		if ev == nil {
			return nil, fmt.Errorf("Value %q does not exist in %q enum.", name, t.Name)
		}
		return enumInternal(ev), nil
	case schema.TypeKindInputObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("Expected type %q to be an object.", t.Name)
		}
		out := make(map[string]any, len(t.InputFields))
		for _, field := range t.InputFields {
			fv, present := obj[field.Name]
			if !present {
				if field.HasDefault() {
					cv, err := v.coerceInputValue(field.DefaultValue, field.Type)
					if err != nil {
						return nil, err
					}
					out[field.Name] = cv
				} else if field.Type.IsNonNull() {
					return nil, fmt.Errorf("Field \"%s.%s\" of required type %q was not provided.", t.Name, field.Name, field.Type.String())
				}
				continue
			}
			cv, err := v.coerceInputValue(fv, field.Type)
			if err != nil {
				return nil, fmt.Errorf("In field %q: %w", field.Name, err)
			}
			out[field.Name] = cv
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if t.InputField(k) == nil {
				return nil, fmt.Errorf("Field %q is not defined by type %q.", k, t.Name)
			}
		}
		if err := checkOneOf(t, out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("Type %q is not an input type.", t.Name)
}

func checkOneOf(t *schema.Type, fields map[string]any) error {
	if !t.OneOf {
		return nil
	}
	if len(fields) != 1 {
		return fmt.Errorf("Exactly one key must be specified for OneOf type %q.", t.Name)
	}
	for name, value := range fields {
		if value == nil {
			return fmt.Errorf("Field \"%s.%s\" must be non-null.", t.Name, name)
		}
	}
	return nil
}

func enumInternal(ev *schema.EnumValue) any {
	if ev.Value != nil {
		return ev.Value
	}
	return ev.Name
}

// parseValue applies the scalar's ParseValue hook. Scalars without hooks
// accept any value unchanged.
func parseValue(t *schema.Type, value any) (any, error) {
	if t.Scalar == nil || t.Scalar.ParseValue == nil {
		return value, nil
	}
	return t.Scalar.ParseValue(value)
}

// parseLiteral applies the scalar's ParseLiteral hook, falling back to
// ParseValue on the literal's plain Go form.
func parseLiteral(t *schema.Type, value *language.Value, vars map[string]any) (any, error) {
	if t.Scalar != nil && t.Scalar.ParseLiteral != nil {
		return t.Scalar.ParseLiteral(value, vars)
	}
	plain, err := value.Value(vars)
	if err != nil {
		return nil, err
	}
	return parseValue(t, plain)
}

func describe(value any) string {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}
