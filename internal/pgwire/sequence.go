package pgwire

import "context"

// Sequence is a lazy, pull-based cursor over a stream of decoded
// messages of type T. Nothing is read from the transport until Next is
// called; the caller decides the pace, which is what lets a role
// adapter stop pulling the instant it sees a terminal message
// (ReadyForQuery, Termination) without having to drain or buffer
// anything beyond it.
type Sequence[T any] struct {
	next func(ctx context.Context) (T, bool, error)
	done bool
}

// NewSequence wraps a pull function as a Sequence. next should return
// (value, true, nil) for each item, and (zero, false, nil) once the
// sequence has reached its natural end — a done signal observed in the
// decoded message itself, not an I/O error.
func NewSequence[T any](next func(ctx context.Context) (T, bool, error)) *Sequence[T] {
	return &Sequence[T]{next: next}
}

// Next pulls the next item. Once it has returned ok=false or a non-nil
// error, every subsequent call returns ok=false with a nil error without
// touching the underlying transport again.
func (s *Sequence[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if s.done {
		return zero, false, nil
	}
	v, ok, err := s.next(ctx)
	if err != nil || !ok {
		s.done = true
	}
	return v, ok, err
}

// Collect drains the sequence into a slice. Intended for tests and small
// bounded sequences (startup exchange, a handful of result rows); a long
// running query loop should call Next directly instead.
func (s *Sequence[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		v, ok, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}
