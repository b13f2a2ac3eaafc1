package parallel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForEachVisitsAll(t *testing.T) {
	seen := make([]int32, 100)
	ForEach(len(seen), 4, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})
	for i, n := range seen {
		assert.Equal(t, int32(1), n, "index %d", i)
	}
}

func TestForEachRespectsLimit(t *testing.T) {
	var running, peak int32
	ForEach(32, 3, func(int) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	})
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestForEachEdgeCases(t *testing.T) {
	called := false
	ForEach(0, 4, func(int) { called = true })
	assert.False(t, called)

	var n int32
	ForEach(5, 0, func(int) { atomic.AddInt32(&n, 1) })
	assert.Equal(t, int32(5), n)
}

func TestForEachContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n int32
	err := ForEachContext(ctx, 1000, 1, func(i int) {
		if atomic.AddInt32(&n, 1) == 10 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, atomic.LoadInt32(&n), int32(1000))
}
