// Package worker runs a bounded pool of goroutines over a fixed set of items.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ItemError reports which item a worker failed on.
type ItemError[T any] struct {
	Item T
	Err  error
}

func (e *ItemError[T]) Error() string {
	return fmt.Sprintf("%v: %v", e.Item, e.Err)
}

func (e *ItemError[T]) Unwrap() error { return e.Err }

// Run hands every item to fn exactly once using at most limit concurrent
// workers, numbered from 1. It waits for all items and returns their errors
// joined. Items not yet started when ctx is cancelled fail with ctx.Err().
func Run[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, workerID int, item T) error) error {
	if limit < 1 {
		limit = 1
	}
	limit = min(limit, len(items))

	queue := make(chan T, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	record := func(item T, err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, &ItemError[T]{Item: item, Err: err})
	}

	for id := 1; id <= limit; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for item := range queue {
				if err := ctx.Err(); err != nil {
					record(item, err)
					continue
				}
				if err := fn(ctx, id, item); err != nil {
					record(item, err)
				}
			}
		}(id)
	}
	wg.Wait()

	return errors.Join(errs...)
}
