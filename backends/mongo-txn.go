package backends

import (
	"fmt"
	"sync"

	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/log"
	"github.com/pkg/errors"
	"gopkg.in/mgo.v2/bson"
	"gopkg.in/mgo.v2/txn"
)

// A client-side multi-document transaction. Writes are buffered as txn
// operations and handed to an mgo/txn runner on Commit, which applies all of
// them or none.
type MongoTransaction struct {
	backend   *MongoBackend
	ops       []txn.Op
	committed bool
	aborted   bool
	lock      sync.Mutex
}

func newMongoTransaction(backend *MongoBackend) *MongoTransaction {
	return &MongoTransaction{
		backend: backend,
		ops:     make([]txn.Op, 0),
	}
}

func (self *MongoTransaction) Insert(collection string, records ...dal.Record) error {
	return self.push(collection, true, records)
}

func (self *MongoTransaction) Ensure(collection string, records ...dal.Record) error {
	return self.push(collection, false, records)
}

func (self *MongoTransaction) push(collection string, strict bool, records []dal.Record) error {
	self.lock.Lock()
	defer self.lock.Unlock()

	if err := self.checkOpen(); err != nil {
		return err
	}

	for _, record := range records {
		if id, err := recordID(record); err == nil {
			op := txn.Op{
				C:      collection,
				Id:     id,
				Insert: bson.M(record.Fields()),
			}

			// without an assertion an insert over an existing document is a no-op
			if strict {
				op.Assert = txn.DocMissing
			}

			self.ops = append(self.ops, op)
		} else {
			return err
		}
	}

	return nil
}

func (self *MongoTransaction) Commit() error {
	self.lock.Lock()
	defer self.lock.Unlock()

	if err := self.checkOpen(); err != nil {
		return err
	}

	self.committed = true

	if len(self.ops) == 0 {
		return nil
	}

	session := self.backend.session.Copy()
	defer session.Close()

	runner := txn.NewRunner(session.DB(self.backend.dbname).C(TransactionCollection))

	if err := runner.Run(self.ops, ``, nil); err == txn.ErrAborted {
		return errors.Wrap(err, `a strict insert targeted an existing document`)
	} else if err != nil {
		return errors.Wrap(err, `commit failed`)
	}

	log.Debugf("[mongodb] committed %d operations", len(self.ops))
	return nil
}

func (self *MongoTransaction) Abort() error {
	self.lock.Lock()
	defer self.lock.Unlock()

	if err := self.checkOpen(); err != nil {
		return err
	}

	self.aborted = true
	self.ops = nil
	return nil
}

func (self *MongoTransaction) Close() error {
	self.lock.Lock()
	done := self.committed || self.aborted
	self.lock.Unlock()

	if done {
		return nil
	}

	return self.Abort()
}

func (self *MongoTransaction) checkOpen() error {
	if self.committed {
		return fmt.Errorf("transaction already committed")
	} else if self.aborted {
		return fmt.Errorf("transaction already aborted")
	}

	return nil
}
