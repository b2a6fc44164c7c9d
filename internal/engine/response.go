package engine

import (
	"encoding/json"

	language "github.com/hanpama/gqlcore/internal/language"
)

// Request is a GraphQL request as sent by clients.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// Response is the result of a request. Executed reports whether execution
// started; only then does the JSON form carry a data entry.
type Response struct {
	Data       any
	Errors     language.ErrorList
	Extensions map[string]any
	Executed   bool
}

type executedResponse struct {
	Data       any                `json:"data"`
	Errors     language.ErrorList `json:"errors,omitempty"`
	Extensions map[string]any     `json:"extensions,omitempty"`
}

type rejectedResponse struct {
	Errors     language.ErrorList `json:"errors"`
	Extensions map[string]any     `json:"extensions,omitempty"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	if r.Executed {
		return json.Marshal(executedResponse{Data: r.Data, Errors: r.Errors, Extensions: r.Extensions})
	}
	return json.Marshal(rejectedResponse{Errors: r.Errors, Extensions: r.Extensions})
}

// HasErrors reports whether any error was raised.
func (r Response) HasErrors() bool { return len(r.Errors) > 0 }
