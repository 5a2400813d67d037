package opendata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fandreuz/opendata/dal"
	"github.com/stretchr/testify/require"
)

func TestCreationPoolDistinctKeys(t *testing.T) {
	assert := require.New(t)
	pool := NewCreationPool()
	release := make(chan struct{})
	var started int32

	var wg sync.WaitGroup

	// a slow key must not hold up another one
	wg.Add(1)
	go func() {
		defer wg.Done()

		_, _, err := pool.Do(context.Background(), `slow`, func() (interface{}, error) {
			atomic.AddInt32(&started, 1)
			<-release
			return `slow`, nil
		})

		assert.Nil(err)
	}()

	value, leader, err := pool.Do(context.Background(), `fast`, func() (interface{}, error) {
		return `fast`, nil
	})

	assert.Nil(err)
	assert.True(leader)
	assert.Equal(`fast`, value)

	close(release)
	wg.Wait()

	assert.Equal(int32(1), atomic.LoadInt32(&started))
	assert.Equal(2, pool.Len())

	value, leader, err = pool.Do(context.Background(), `slow`, func() (interface{}, error) {
		return nil, fmt.Errorf("should not run")
	})

	assert.Nil(err)
	assert.False(leader)
	assert.Equal(`slow`, value)
}

func TestCreationPoolFailures(t *testing.T) {
	assert := require.New(t)
	pool := NewCreationPool()

	_, _, err := pool.Do(context.Background(), `k`, func() (interface{}, error) {
		return nil, fmt.Errorf("boom")
	})

	assert.True(dal.IsConcurrentOperationErr(err))
	assert.Contains(err.Error(), `boom`)
	assert.Equal(0, pool.Len())

	_, _, err = pool.Do(context.Background(), `k`, func() (interface{}, error) {
		panic("exploded")
	})

	assert.True(dal.IsConcurrentOperationErr(err))
	assert.Contains(err.Error(), `exploded`)

	value, leader, err := pool.Do(context.Background(), `k`, func() (interface{}, error) {
		return 42, nil
	})

	assert.Nil(err)
	assert.True(leader)
	assert.Equal(42, value)
}

func TestCreationPoolWaitDeadline(t *testing.T) {
	assert := require.New(t)
	pool := NewCreationPool()
	release := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := pool.Do(ctx, `k`, func() (interface{}, error) {
		<-release
		return `done`, nil
	})

	assert.True(dal.IsConcurrentOperationErr(err))
	close(release)

	value, _, err := pool.Do(context.Background(), `k`, func() (interface{}, error) {
		return `again`, nil
	})

	assert.Nil(err)
	assert.Equal(`done`, value)
}
