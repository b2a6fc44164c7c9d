package executor

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// DefaultResolve reads field from source. It understands maps keyed by
// string, protobuf messages (by JSON name, then proto name), struct fields
// (by `json` tag, then case-insensitive name) and exported methods taking
// no arguments and returning a value and optionally an error. Anything else
// resolves to null.
func DefaultResolve(source any, field string) (any, error) {
	switch src := source.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return src[field], nil
	case protoreflect.Message:
		return resolveProtoField(src, field), nil
	case proto.Message:
		return resolveProtoField(src.ProtoReflect(), field), nil
	}

	rv := reflect.ValueOf(source)
	if v, ok, err := callMethod(rv, field); ok {
		return v, err
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, nil
		}
		v := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case reflect.Struct:
		if v, ok := structField(rv, field); ok {
			return v.Interface(), nil
		}
	}
	return nil, nil
}

func callMethod(rv reflect.Value, field string) (any, bool, error) {
	if !rv.IsValid() || field == "" {
		return nil, false, nil
	}
	m := rv.MethodByName(strings.ToUpper(field[:1]) + field[1:])
	if !m.IsValid() || m.Type().NumIn() != 0 {
		return nil, false, nil
	}
	errType := reflect.TypeOf((*error)(nil)).Elem()
	switch m.Type().NumOut() {
	case 1:
		return m.Call(nil)[0].Interface(), true, nil
	case 2:
		if !m.Type().Out(1).Implements(errType) {
			return nil, false, nil
		}
		out := m.Call(nil)
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, true, err
		}
		return out[0].Interface(), true, nil
	}
	return nil, false, nil
}

func structField(rv reflect.Value, field string) (reflect.Value, bool) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag == field {
			return rv.Field(i), true
		}
	}
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.IsExported() && strings.EqualFold(sf.Name, field) {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func resolveProtoField(msg protoreflect.Message, field string) any {
	fields := msg.Descriptor().Fields()
	fd := fields.ByJSONName(field)
	if fd == nil {
		fd = fields.ByName(protoreflect.Name(field))
	}
	if fd == nil {
		return nil
	}
	if fd.Kind() == protoreflect.MessageKind && !fd.IsList() && !fd.IsMap() && !msg.Has(fd) {
		return nil
	}
	v := msg.Get(fd)
	if fd.IsList() {
		list := v.List()
		out := make([]any, list.Len())
		for i := range out {
			out[i] = protoValue(fd, list.Get(i))
		}
		return out
	}
	if fd.IsMap() {
		out := map[string]any{}
		v.Map().Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
			out[k.String()] = protoValue(fd.MapValue(), mv)
			return true
		})
		return out
	}
	return protoValue(fd, v)
}

// protoValue converts a singular protobuf value to the Go value the leaf
// serializers understand. Messages stay messages so nested selections keep
// resolving through DefaultResolve.
func protoValue(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return v.Bool()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return int32(v.Int())
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return uint32(v.Uint())
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return v.Uint()
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return v.Float()
	case protoreflect.StringKind:
		return v.String()
	case protoreflect.BytesKind:
		return base64.StdEncoding.EncodeToString(v.Bytes())
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return string(ev.Name())
		}
		return fmt.Sprint(int32(v.Enum()))
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return v.Message()
	}
	return nil
}
