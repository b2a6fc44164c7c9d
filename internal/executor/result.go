package executor

import (
	"bytes"
	"encoding/json"

	language "github.com/hanpama/gqlcore/internal/language"
)

// ExecutionResult represents the result of executing a GraphQL operation.
// Data is an Object, or nil when a non-null violation reached the root or
// execution was cancelled.
type ExecutionResult struct {
	Data       any                `json:"data"`
	Errors     language.ErrorList `json:"errors,omitempty"`
	Extensions map[string]any     `json:"extensions,omitempty"`
}

// Object is a response object. Entries keep selection order, which is also
// the order MarshalJSON writes them in.
type Object []KeyValue

type KeyValue struct {
	Key   string
	Value any
}

// Get returns the value stored under key.
func (o Object) Get(key string) (any, bool) {
	for _, kv := range o {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Map converts o and every nested Object into plain maps. Ordering is lost.
func (o Object) Map() map[string]any {
	out := make(map[string]any, len(o))
	for _, kv := range o {
		out[kv.Key] = plain(kv.Value)
	}
	return out
}

func plain(v any) any {
	switch v := v.(type) {
	case Object:
		return v.Map()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plain(item)
		}
		return out
	}
	return v
}

func (o Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
