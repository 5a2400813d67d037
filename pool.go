package opendata

import (
	"context"
	"fmt"

	"github.com/fandreuz/opendata/dal"
	"github.com/fandreuz/opendata/util"
	"github.com/ghetzel/go-stockutil/log"
	"github.com/orcaman/concurrent-map"
)

// Deduplicates concurrent creations of the same dataset. The first caller to
// claim a key runs the work; everyone else on that key waits for its outcome.
type CreationPool struct {
	// keep failed outcomes around instead of letting the next caller retry
	RetainFailures bool
	entries        cmap.ConcurrentMap
}

func NewCreationPool() *CreationPool {
	return &CreationPool{
		entries: cmap.New(),
	}
}

// Runs fn at most once per key among concurrent callers and returns its
// result to all of them. fn runs detached from ctx, which only bounds how long
// this caller waits. The second return value reports whether this caller was
// the one that ran fn.
func (self *CreationPool) Do(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, bool, error) {
	for {
		future := util.NewFuture()

		if self.entries.SetIfAbsent(key, future) {
			log.Debugf("Running creation of %s", key)
			go self.run(key, future, fn)

			value, err := self.wait(ctx, future)
			return value, true, err
		}

		if existing, ok := self.entries.Get(key); ok {
			if f, ok := existing.(*util.Future); ok {
				log.Debugf("Waiting for the creation of %s", key)

				value, err := self.wait(ctx, f)
				return value, false, err
			}
		}

		// evicted between the two calls; claim it again
	}
}

func (self *CreationPool) Len() int {
	return self.entries.Count()
}

func (self *CreationPool) run(key string, future *util.Future, fn func() (interface{}, error)) {
	var value interface{}
	var err error

	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("creation of %s panicked: %v", key, r)
		}

		if err != nil && !self.RetainFailures {
			self.entries.Remove(key)
		}

		future.Resolve(value, err)
	}()

	value, err = fn()
}

func (self *CreationPool) wait(ctx context.Context, future *util.Future) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	value, err := future.Wait(ctx)

	if err != nil {
		return nil, &dal.ConcurrentOperationError{
			Cause: err,
		}
	}

	return value, nil
}
