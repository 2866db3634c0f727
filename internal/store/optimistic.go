package store

import (
	"context"

	"go.uber.org/zap"
)

// Optimistic is a local mutation confirmed by a remote call.
//
// Apply captures the pre-image and writes the tentative post-image. Commit
// replaces the post-image with the confirmed result. Rollback undoes only
// what Apply changed, so mutations confirmed while Remote was in flight
// survive. All three run under the store lock; Remote runs outside it.
type Optimistic[T any] struct {
	Name     string
	Apply    func()
	Remote   func(ctx context.Context) (T, error)
	Commit   func(result T)
	Rollback func()
}

// Run executes the command against the store.
func (o Optimistic[T]) Run(ctx context.Context, s *Store) (T, error) {
	s.mu.Lock()
	if o.Apply != nil {
		o.Apply()
	}
	s.mu.Unlock()

	result, err := o.Remote(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if o.Rollback != nil {
			o.Rollback()
		}
		s.logger.Warn("optimistic mutation rolled back",
			zap.String("operation", o.Name),
			zap.Error(err))
		var zero T
		return zero, err
	}
	if o.Commit != nil {
		o.Commit(result)
	}
	return result, nil
}

// Done is the result type of remote calls that return nothing.
type Done struct{}

func noResult(call func(ctx context.Context) error) func(ctx context.Context) (Done, error) {
	return func(ctx context.Context) (Done, error) {
		return Done{}, call(ctx)
	}
}

// insertAt returns a copy of items with item placed at position, clamped to
// the current length. Rollbacks use it to restore a single removed element
// without disturbing confirmed changes made meanwhile.
func insertAt[T any](items []T, item T, position int) []T {
	if position < 0 {
		position = 0
	}
	if position > len(items) {
		position = len(items)
	}
	restored := make([]T, 0, len(items)+1)
	restored = append(restored, items[:position]...)
	restored = append(restored, item)
	return append(restored, items[position:]...)
}
