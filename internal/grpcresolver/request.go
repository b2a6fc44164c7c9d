package grpcresolver

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// setFields assigns values to the fields of msg with the same JSON name.
// Keys without a matching field and null values are ignored.
func setFields(msg protoreflect.Message, values map[string]any) error {
	fields := msg.Descriptor().Fields()
	for k, v := range values {
		fd := fields.ByJSONName(k)
		if fd == nil {
			fd = fields.ByName(protoreflect.Name(k))
		}
		if fd == nil || v == nil {
			continue
		}
		switch {
		case fd.IsList():
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				rv = reflect.ValueOf([]any{v})
			}
			list := msg.Mutable(fd).List()
			for i := 0; i < rv.Len(); i++ {
				pv, err := protoValue(fd, rv.Index(i).Interface())
				if err != nil {
					return err
				}
				list.Append(pv)
			}
		case fd.IsMap():
			m, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("field %s expects an object, got %T", fd.JSONName(), v)
			}
			pm := msg.Mutable(fd).Map()
			for mk, mv := range m {
				key, err := protoValue(fd.MapKey(), mk)
				if err != nil {
					return err
				}
				val, err := protoValue(fd.MapValue(), mv)
				if err != nil {
					return err
				}
				pm.Set(key.MapKey(), val)
			}
		default:
			pv, err := protoValue(fd, v)
			if err != nil {
				return err
			}
			msg.Set(fd, pv)
		}
	}
	return nil
}

// protoValue converts a coerced GraphQL input value to a singular value of fd.
func protoValue(fd protoreflect.FieldDescriptor, v any) (protoreflect.Value, error) {
	bad := func() (protoreflect.Value, error) {
		return protoreflect.Value{}, fmt.Errorf("field %s: cannot use %T as %s", fd.JSONName(), v, fd.Kind())
	}
	switch fd.Kind() {
	case protoreflect.BoolKind:
		if b, ok := v.(bool); ok {
			return protoreflect.ValueOfBool(b), nil
		}
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		if n, ok := toInt(v); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return protoreflect.ValueOfInt32(int32(n)), nil
		}
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		if n, ok := toInt(v); ok {
			return protoreflect.ValueOfInt64(n), nil
		}
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		if n, ok := toInt(v); ok && n >= 0 && n <= math.MaxUint32 {
			return protoreflect.ValueOfUint32(uint32(n)), nil
		}
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		if n, ok := toInt(v); ok && n >= 0 {
			return protoreflect.ValueOfUint64(uint64(n)), nil
		}
	case protoreflect.FloatKind:
		if f, ok := toFloat(v); ok {
			return protoreflect.ValueOfFloat32(float32(f)), nil
		}
	case protoreflect.DoubleKind:
		if f, ok := toFloat(v); ok {
			return protoreflect.ValueOfFloat64(f), nil
		}
	case protoreflect.StringKind:
		if s, ok := v.(string); ok {
			return protoreflect.ValueOfString(s), nil
		}
	case protoreflect.BytesKind:
		switch b := v.(type) {
		case []byte:
			return protoreflect.ValueOfBytes(b), nil
		case string:
			raw, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return protoreflect.Value{}, fmt.Errorf("field %s: %w", fd.JSONName(), err)
			}
			return protoreflect.ValueOfBytes(raw), nil
		}
	case protoreflect.EnumKind:
		switch e := v.(type) {
		case string:
			if ev := fd.Enum().Values().ByName(protoreflect.Name(e)); ev != nil {
				return protoreflect.ValueOfEnum(ev.Number()), nil
			}
		default:
			if n, ok := toInt(v); ok {
				return protoreflect.ValueOfEnum(protoreflect.EnumNumber(n)), nil
			}
		}
	case protoreflect.MessageKind, protoreflect.GroupKind:
		switch m := v.(type) {
		case protoreflect.Message:
			return protoreflect.ValueOfMessage(m), nil
		case map[string]any:
			msg := dynamicpb.NewMessage(fd.Message())
			if err := setFields(msg, m); err != nil {
				return protoreflect.Value{}, err
			}
			return protoreflect.ValueOfMessage(msg), nil
		}
	}
	return bad()
}

func toInt(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return 0, false
		}
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}
