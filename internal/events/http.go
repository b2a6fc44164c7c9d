package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when a GraphQL HTTP request is received, before the
// body is read. Context carries the request context and its request id.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted once the response is written.
//
// Operations counts the operations handed to the engine: 0 when the request
// was rejected before execution (bad body, preflight, GraphiQL), 1 for a
// single request and the array length for a batch.
type HTTPFinish struct {
	Request    *http.Request
	Status     int
	Batch      bool
	Operations int
	Duration   time.Duration
}
