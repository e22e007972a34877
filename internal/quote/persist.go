package quote

import "context"

// Persister stores the current state of a quote after every mutation.
type Persister interface {
	Save(ctx context.Context, q *Quote) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, q *Quote) error

// Save implements Persister.
func (f PersisterFunc) Save(ctx context.Context, q *Quote) error {
	return f(ctx, q)
}

// Discard is a Persister that stores nothing.
var Discard Persister = PersisterFunc(func(context.Context, *Quote) error { return nil })
