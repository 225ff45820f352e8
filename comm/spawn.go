package comm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Spawn runs fn once per rank of a fresh in-process group of the given
// size, each rank on its own goroutine, and waits for all of them. The
// first non-nil error cancels the shared context, which unblocks ranks
// parked in collectives.
func Spawn(ctx context.Context, size int, fn func(ctx context.Context, g Group) error) error {
	hub, err := NewHub(size)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		g, err := hub.Join(rank)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			return fn(ctx, g)
		})
	}
	return eg.Wait()
}
