package events

import "time"

// GraphQLStart is emitted before a GraphQL request enters the pipeline.
type GraphQLStart struct {
	Query         string
	OperationName string
}

// GraphQLFinish is emitted once a GraphQL request has produced its response.
// Stage names the pipeline stage that ended the request: "parse",
// "validate", "analyze" or "execute". OperationType is empty when the
// request failed before an operation was selected.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Stage         string
	Complexity    int
	Errors        []error
	Duration      time.Duration
}
