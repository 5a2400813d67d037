package util

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFutureBroadcast(t *testing.T) {
	assert := require.New(t)
	future := NewFuture()

	select {
	case <-future.Done():
		assert.Fail("future should not be done yet")
	default:
	}

	var wg sync.WaitGroup
	results := make(chan interface{}, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if v, err := future.Wait(context.Background()); err == nil {
				results <- v
			}
		}()
	}

	assert.True(future.Resolve(`value`, nil))
	assert.False(future.Resolve(`other`, fmt.Errorf("ignored")))

	wg.Wait()
	close(results)

	n := 0

	for v := range results {
		assert.Equal(`value`, v)
		n += 1
	}

	assert.Equal(10, n)

	// late joiners see the same outcome
	v, err := future.Wait(context.Background())
	assert.Nil(err)
	assert.Equal(`value`, v)
}

func TestFutureError(t *testing.T) {
	assert := require.New(t)
	future := NewFuture()
	future.Resolve(nil, fmt.Errorf("failed"))

	_, err := future.Wait(context.Background())
	assert.EqualError(err, `failed`)

	select {
	case <-future.Done():
	default:
		assert.Fail("future should be done")
	}
}

func TestFutureWaitDeadline(t *testing.T) {
	assert := require.New(t)
	future := NewFuture()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := future.Wait(ctx)
	assert.Equal(context.DeadlineExceeded, err)
}
