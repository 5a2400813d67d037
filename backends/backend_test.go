package backends

import (
	"fmt"
	"testing"

	"github.com/fandreuz/opendata/dal"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

func makeBackend(t *testing.T, conn string) Backend {
	assert := require.New(t)

	cs, err := dal.ParseConnectionString(conn)
	assert.Nil(err)

	backend, err := MakeBackend(cs)
	assert.Nil(err)
	assert.Nil(backend.Initialize())

	return backend
}

// Exercises the behavior every backend implementation must share.
func testBackendConformance(t *testing.T, backend Backend) {
	assert := require.New(t)

	// strict insert and retrieval
	assert.Nil(backend.Insert(`things`, dal.Record{`_id`: `a`, `name`: `first`}))
	assert.Error(backend.Insert(`things`, dal.Record{`_id`: `a`, `name`: `again`}))

	record, err := backend.Retrieve(`things`, `a`)
	assert.Nil(err)
	assert.Equal(`first`, record.String(`name`))

	_, err = backend.Retrieve(`things`, `missing`)
	assert.True(dal.IsNotFoundErr(err))

	// ensure keeps existing documents untouched
	assert.Nil(backend.Ensure(`things`, dal.Record{`_id`: `a`, `name`: `other`}, dal.Record{`_id`: `b`, `name`: `second`}))

	record, err = backend.Retrieve(`things`, `a`)
	assert.Nil(err)
	assert.Equal(`first`, record.String(`name`))

	n, err := backend.Count(`things`, Query{})
	assert.Nil(err)
	assert.Equal(2, n)

	// committed transactions apply every write
	assert.Nil(WithTransaction(backend, func(tx Transaction) error {
		if err := tx.Insert(`things`, dal.Record{`_id`: `c`, `name`: `third`}); err != nil {
			return err
		}

		return tx.Ensure(`others`, dal.Record{`_id`: `x`, `value`: 1})
	}))

	_, err = backend.Retrieve(`things`, `c`)
	assert.Nil(err)
	_, err = backend.Retrieve(`others`, `x`)
	assert.Nil(err)

	// a failing body leaves nothing applied
	err = WithTransaction(backend, func(tx Transaction) error {
		if err := tx.Insert(`things`, dal.Record{`_id`: `d`, `name`: `fourth`}); err != nil {
			return err
		}

		return fmt.Errorf("boom")
	})

	assert.Error(err)
	_, err = backend.Retrieve(`things`, `d`)
	assert.True(dal.IsNotFoundErr(err))

	// a conflicting strict insert aborts the whole commit
	tx, err := backend.Begin()
	assert.Nil(err)
	assert.Nil(tx.Insert(`things`, dal.Record{`_id`: `e`, `name`: `fifth`}))
	assert.Nil(tx.Insert(`things`, dal.Record{`_id`: `a`, `name`: `dup`}))
	assert.Error(tx.Commit())
	assert.Nil(tx.Close())

	_, err = backend.Retrieve(`things`, `e`)
	assert.True(dal.IsNotFoundErr(err))

	// finding is ordered by identity and supports projection
	rows := []dal.Record{}

	for i := 0; i < 5; i++ {
		rows = append(rows, dal.Record{
			`_id`:   bson.NewObjectId(),
			`n`:     int64(i),
			`label`: fmt.Sprintf("row-%d", i),
		})
	}

	assert.Nil(backend.Insert(`staging`, rows...))
	assert.Nil(backend.RenameCollection(`staging`, `rows`))

	names, err := backend.ListCollections()
	assert.Nil(err)
	assert.Contains(names, `rows`)
	assert.NotContains(names, `staging`)

	results, err := backend.Find(`rows`, Query{`n`: Query{`$gte`: 2}}, []string{`label`}, 0)
	assert.Nil(err)
	assert.Len(results, 3)

	for i, result := range results {
		assert.Equal(fmt.Sprintf("row-%d", i+2), result.String(`label`))
		assert.False(result.Has(`n`))
		assert.True(result.Has(`_id`))
	}

	results, err = backend.Find(`rows`, Query{}, nil, 2)
	assert.Nil(err)
	assert.Len(results, 2)

	removed, err := backend.DeleteQuery(`rows`, Query{`n`: Query{`$lt`: 3}})
	assert.Nil(err)
	assert.Equal(3, removed)

	n, err = backend.Count(`rows`, Query{})
	assert.Nil(err)
	assert.Equal(2, n)

	assert.Nil(backend.DropCollection(`rows`))
	assert.Nil(backend.DropCollection(`rows`))

	n, err = backend.Count(`rows`, Query{})
	assert.Nil(err)
	assert.Equal(0, n)
}

func TestMemoryBackend(t *testing.T) {
	testBackendConformance(t, makeBackend(t, `memory://`))
}

func TestMakeBackendUnknown(t *testing.T) {
	assert := require.New(t)

	_, err := MakeBackend(dal.MustParseConnectionString(`nope://`))
	assert.Error(err)
}

func TestMemoryTransactionClose(t *testing.T) {
	assert := require.New(t)
	backend := NewMemoryBackend(dal.MustParseConnectionString(`memory://`))

	tx, err := backend.Begin()
	assert.Nil(err)
	assert.Nil(tx.Insert(`things`, dal.Record{`_id`: `a`}))

	// staged writes are not visible before commit
	_, err = backend.Retrieve(`things`, `a`)
	assert.True(dal.IsNotFoundErr(err))

	assert.Nil(tx.Close())
	assert.Nil(tx.Close())
	assert.Error(tx.Commit())
	assert.Error(tx.Insert(`things`, dal.Record{`_id`: `b`}))

	_, err = backend.Retrieve(`things`, `a`)
	assert.True(dal.IsNotFoundErr(err))

	tx, err = backend.Begin()
	assert.Nil(err)
	assert.Nil(tx.Insert(`things`, dal.Record{`_id`: `a`}))
	assert.Nil(tx.Commit())
	assert.Nil(tx.Close())
	assert.Error(tx.Abort())

	_, err = backend.Retrieve(`things`, `a`)
	assert.Nil(err)
}

func TestInsertRequiresIdentity(t *testing.T) {
	assert := require.New(t)
	backend := NewMemoryBackend(dal.MustParseConnectionString(`memory://`))

	assert.Error(backend.Insert(`things`, dal.Record{`name`: `x`}))
	assert.Error(backend.Insert(`things`, dal.Record{`_id`: ``}))
}

func TestFindBadQuery(t *testing.T) {
	assert := require.New(t)
	backend := NewMemoryBackend(dal.MustParseConnectionString(`memory://`))

	_, err := backend.Find(`things`, Query{`a`: Query{`$bogus`: 1}}, nil, 0)
	assert.True(dal.IsBadQueryErr(err))
}
