package events

import "time"

// SubscriptionStart is emitted once the source stream of a subscription is open.
type SubscriptionStart struct {
	OperationName string
	Field         string
}

// SubscriptionEvent is emitted after each source event has been executed.
type SubscriptionEvent struct {
	OperationName string
	Field         string
	Sequence      int
	Errors        []error
	Duration      time.Duration
}

// SubscriptionFinish is emitted when a subscription reaches a terminal state.
// Err is set when the source stream failed.
type SubscriptionFinish struct {
	OperationName string
	Field         string
	State         string
	Events        int
	Err           error
	Duration      time.Duration
}
