package parallel

import (
	"context"
	"sync"
)

// ForEach executes a for loop with a limited number of concurrent goroutines.
// Each goroutine processes one integer, from 0 to length.
func ForEach(length, limit int, body func(i int)) {
	_ = ForEachContext(context.Background(), length, limit, body)
}

// ForEachContext is ForEach that stops starting new iterations once ctx is
// done. Iterations already running are waited for; ctx.Err() is returned if
// any iteration was skipped.
func ForEachContext(ctx context.Context, length, limit int, body func(i int)) error {
	if limit <= 0 {
		limit = 1
	}
	if length <= 0 {
		return nil
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i := 0; i < length; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			body(i)
		}(i)
	}

	wg.Wait()
	return nil
}
