package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	language "github.com/hanpama/gqlcore/internal/language"
)

func serializeInt(value any) (any, error) {
	switch v := value.(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("Int cannot represent non-integer value: %q", v)
		}
		return int(n), nil
	case bool:
		return nil, fmt.Errorf("Int cannot represent non-integer value: %v", v)
	}
	return toInt32(value)
}

func parseIntValue(value any) (any, error) {
	switch value.(type) {
	case string, bool:
		return nil, fmt.Errorf("Int cannot represent non-integer value: %v", describe(value))
	}
	return toInt32(value)
}

func parseIntLiteral(value *language.Value, _ map[string]any) (any, error) {
	if value.Kind != language.IntValue {
		return nil, fmt.Errorf("Int cannot represent non-integer value: %s", language.Describe(value))
	}
	n, err := strconv.ParseInt(value.Raw, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %s", value.Raw)
	}
	return int(n), nil
}

func toInt32(value any) (any, error) {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("Int cannot represent non-integer value: %s", v)
		}
		f = n
	default:
		return nil, fmt.Errorf("Int cannot represent non-integer value: %v", describe(value))
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("Int cannot represent non-integer value: %v", f)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %v", f)
	}
	return int(f), nil
}

func serializeFloat(value any) (any, error) {
	if s, ok := value.(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("Float cannot represent non numeric value: %q", s)
		}
		return f, nil
	}
	return toFloat(value)
}

func parseFloatValue(value any) (any, error) {
	return toFloat(value)
}

func parseFloatLiteral(value *language.Value, _ map[string]any) (any, error) {
	if value.Kind != language.IntValue && value.Kind != language.FloatValue {
		return nil, fmt.Errorf("Float cannot represent non numeric value: %s", language.Describe(value))
	}
	f, err := strconv.ParseFloat(value.Raw, 64)
	if err != nil {
		return nil, fmt.Errorf("Float cannot represent non numeric value: %s", value.Raw)
	}
	return f, nil
}

func toFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("Float cannot represent non numeric value: %v", v)
		}
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("Float cannot represent non numeric value: %s", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("Float cannot represent non numeric value: %v", describe(value))
}

func serializeString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	}
	return nil, fmt.Errorf("String cannot represent value: %v", describe(value))
}

func parseStringValue(value any) (any, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return nil, fmt.Errorf("String cannot represent a non string value: %v", describe(value))
}

func parseStringLiteral(value *language.Value, _ map[string]any) (any, error) {
	if value.Kind != language.StringValue && value.Kind != language.BlockValue {
		return nil, fmt.Errorf("String cannot represent a non string value: %s", language.Describe(value))
	}
	return value.Raw, nil
}

func serializeBoolean(value any) (any, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	return nil, fmt.Errorf("Boolean cannot represent a non boolean value: %v", describe(value))
}

func parseBooleanValue(value any) (any, error) {
	return serializeBoolean(value)
}

func parseBooleanLiteral(value *language.Value, _ map[string]any) (any, error) {
	if value.Kind != language.BooleanValue {
		return nil, fmt.Errorf("Boolean cannot represent a non boolean value: %s", language.Describe(value))
	}
	return value.Raw == "true", nil
}

func serializeID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return nil, fmt.Errorf("ID cannot represent value: %v", describe(value))
}

func parseIDValue(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int, int32, int64:
		return fmt.Sprint(v), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return v.String(), nil
		}
	}
	return nil, fmt.Errorf("ID cannot represent value: %v", describe(value))
}

func parseIDLiteral(value *language.Value, _ map[string]any) (any, error) {
	if value.Kind != language.StringValue && value.Kind != language.IntValue {
		return nil, fmt.Errorf("ID cannot represent a non-string and non-integer value: %s", language.Describe(value))
	}
	return value.Raw, nil
}

func describe(value any) string {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}
