package backends

import (
	"fmt"

	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/log"
)

// A MongoDB-style query document.
type Query map[string]interface{}

// Writer is the write surface shared by backends and transactions.
type Writer interface {
	// Inserts records, failing if any of their identities already exist.
	Insert(collection string, records ...dal.Record) error

	// Inserts the records whose identities are not already present and
	// leaves the others untouched.
	Ensure(collection string, records ...dal.Record) error
}

type Transaction interface {
	Writer
	Commit() error
	Abort() error

	// Aborts the transaction unless it was already committed or aborted.
	// Safe to call more than once.
	Close() error
}

type TransactionStarter interface {
	Begin() (Transaction, error)
}

type Backend interface {
	Writer
	TransactionStarter
	Initialize() error
	GetConnectionString() *dal.ConnectionString
	Retrieve(collection string, id string) (dal.Record, error)
	Find(collection string, query Query, fields []string, limit int) ([]dal.Record, error)
	Count(collection string, query Query) (int, error)
	DeleteQuery(collection string, query Query) (int, error)
	RenameCollection(from string, to string) error
	DropCollection(collection string) error
	ListCollections() ([]string, error)
	Close() error
}

func MakeBackend(connection dal.ConnectionString) (Backend, error) {
	log.Debugf("Creating backend for connection string %q", connection.String())

	switch connection.Backend() {
	case `mongodb`, `mongo`:
		return NewMongoBackend(connection), nil
	case `memory`:
		return NewMemoryBackend(connection), nil
	default:
		return nil, fmt.Errorf("Unknown backend type %q", connection.Backend())
	}
}

// Runs fn inside a transaction started from starter. The transaction is
// committed when fn succeeds and closed in every case, so a failing fn (or a
// panic) leaves nothing applied.
func WithTransaction(starter TransactionStarter, fn func(tx Transaction) error) error {
	tx, err := starter.Begin()

	if err != nil {
		return err
	}

	defer func() {
		if err := tx.Close(); err != nil {
			log.Warningf("transaction close: %v", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func recordID(record dal.Record) (interface{}, error) {
	if id, ok := record[dal.IdentityField]; ok && id != nil {
		if s, ok := id.(string); ok && s == `` {
			return nil, fmt.Errorf("record has an empty %s", dal.IdentityField)
		}

		return id, nil
	}

	return nil, fmt.Errorf("record is missing %s", dal.IdentityField)
}
