package source

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// result holds the outcome of one task run by gatherAll
type result[T any] struct {
	Value T
	Err   error
}

// gatherAll runs every task concurrently and waits for all of them.
// Each task reports into its own slot and returns nil to the group, so a
// failing or panicking task never cancels its siblings.
func gatherAll[T any](ctx context.Context, tasks ...func(context.Context) (T, error)) []result[T] {
	results := make([]result[T], len(tasks))

	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = fmt.Errorf("task panicked: %v", r)
				}
			}()
			v, err := task(ctx)
			results[i] = result[T]{Value: v, Err: err}
			return nil
		})
	}
	g.Wait()

	return results
}
