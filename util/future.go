package util

import (
	"context"
	"sync"
)

// A value that becomes available once. Any number of goroutines may Wait on
// it; waiters arriving after it resolved return immediately.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value interface{}
	err   error
}

func NewFuture() *Future {
	return &Future{
		done: make(chan struct{}),
	}
}

// Sets the outcome of the future. Only the first call has any effect; it
// reports whether it was that call.
func (self *Future) Resolve(value interface{}, err error) bool {
	resolved := false

	self.once.Do(func() {
		self.value = value
		self.err = err
		close(self.done)
		resolved = true
	})

	return resolved
}

// Blocks until the future resolves or ctx is done, whichever happens first.
func (self *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-self.done:
		return self.value, self.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (self *Future) Done() <-chan struct{} {
	return self.done
}
