// Package stream is a cancellable, channel-backed pull sequence.
//
// DESIGN: a producer goroutine pushes elements through a Writer; the
// consumer pulls with Next. Elements are delivered strictly in production
// order and never buffered beyond the channel window, so per-element
// transforms see chunks as they arrive. The producer's terminal error is
// published before the channel closes, which makes reading it after Next
// reports exhaustion race-free.
package stream

import (
	"context"
	"io"
)

// Stream is the consumer side of a produced sequence.
type Stream[T any] struct {
	items chan T
	err   error
}

// Writer is the producer side.
type Writer[T any] struct {
	s *Stream[T]
}

// New creates a connected Stream/Writer pair.
func New[T any]() (*Stream[T], *Writer[T]) {
	s := &Stream[T]{items: make(chan T)}
	return s, &Writer[T]{s: s}
}

// Send delivers one element, honoring cancellation. Returns false when the
// context was done before the element could be handed over; the producer
// should stop.
func (w *Writer[T]) Send(ctx context.Context, v T) bool {
	select {
	case w.s.items <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close ends the sequence. A non-nil err is surfaced by the consumer's
// next call to Next after the remaining elements drain.
func (w *Writer[T]) Close(err error) {
	w.s.err = err
	close(w.s.items)
}

// Next pulls the next element. It returns io.EOF when the sequence ended
// cleanly, the producer's error when it failed, or ctx.Err() on
// cancellation.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-s.items:
		if !ok {
			if s.err != nil {
				return zero, s.err
			}
			return zero, io.EOF
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Empty returns an immediately-exhausted stream.
func Empty[T any]() *Stream[T] {
	s, w := New[T]()
	w.Close(nil)
	return s
}

// Of returns a stream that yields the given elements and ends. The elements
// are buffered up front, so an abandoned stream holds no producer goroutine.
func Of[T any](items ...T) *Stream[T] {
	s := &Stream[T]{items: make(chan T, len(items))}
	for _, v := range items {
		s.items <- v
	}
	close(s.items)
	return s
}

// Map applies fn to each element of src, in order, stopping at the first
// error. Transformation is per-element; nothing is batched or reordered.
func Map[T, U any](ctx context.Context, src *Stream[T], fn func(T) (U, error)) *Stream[U] {
	out, w := New[U]()
	go func() {
		for {
			v, err := src.Next(ctx)
			if err == io.EOF {
				w.Close(nil)
				return
			}
			if err != nil {
				w.Close(err)
				return
			}
			u, err := fn(v)
			if err != nil {
				w.Close(err)
				return
			}
			if !w.Send(ctx, u) {
				w.Close(ctx.Err())
				return
			}
		}
	}()
	return out
}

// Collect drains the stream into a slice, mainly for tests.
func Collect[T any](ctx context.Context, s *Stream[T]) ([]T, error) {
	var out []T
	for {
		v, err := s.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}
