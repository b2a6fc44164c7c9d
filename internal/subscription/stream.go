package subscription

import (
	"context"
	"io"
	"sync"

	schema "github.com/hanpama/gqlcore/internal/schema"
)

// StreamFromChannel adapts a channel to an EventStream. A closed channel
// completes the stream; a received value that is an error fails it. Close
// unblocks pending Next calls but does not close ch, which stays owned by the
// producer. Producers should select on done to stop sending once the stream
// is closed.
func StreamFromChannel[T any](ch <-chan T) (stream schema.EventStream, done <-chan struct{}) {
	s := &chanStream[T]{ch: ch, closed: make(chan struct{})}
	return s, s.closed
}

type chanStream[T any] struct {
	ch     <-chan T
	once   sync.Once
	closed chan struct{}
}

func (s *chanStream[T]) Next(ctx context.Context) (any, error) {
	select {
	case <-s.closed:
		return nil, io.EOF
	default:
	}
	select {
	case v, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		if err, isErr := any(v).(error); isErr {
			return nil, err
		}
		return v, nil
	case <-s.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanStream[T]) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// StreamFromFunc adapts a pull function to an EventStream. next is called
// with the context of each Next call.
func StreamFromFunc(next func(ctx context.Context) (any, error), closeFn func() error) schema.EventStream {
	return &funcStream{next: next, close: closeFn}
}

type funcStream struct {
	next  func(ctx context.Context) (any, error)
	close func() error
	once  sync.Once
	err   error
}

func (s *funcStream) Next(ctx context.Context) (any, error) { return s.next(ctx) }

func (s *funcStream) Close() error {
	s.once.Do(func() {
		if s.close != nil {
			s.err = s.close()
		}
	})
	return s.err
}
