package backends

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fandreuz/opendata/dal"
)

// A process-local document store with the same write semantics as the
// MongoDB backend. Transactions stage their writes and apply them under a
// single lock on Commit.
type MemoryBackend struct {
	conn        *dal.ConnectionString
	collections map[string]map[string]dal.Record
	lock        sync.RWMutex
}

func NewMemoryBackend(connection dal.ConnectionString) *MemoryBackend {
	return &MemoryBackend{
		conn:        &connection,
		collections: make(map[string]map[string]dal.Record),
	}
}

func (self *MemoryBackend) Initialize() error {
	return nil
}

func (self *MemoryBackend) GetConnectionString() *dal.ConnectionString {
	return self.conn
}

func (self *MemoryBackend) Close() error {
	return nil
}

func (self *MemoryBackend) Insert(name string, records ...dal.Record) error {
	self.lock.Lock()
	defer self.lock.Unlock()

	return self.apply([]memoryOp{{collection: name, strict: true, records: records}})
}

func (self *MemoryBackend) Ensure(name string, records ...dal.Record) error {
	self.lock.Lock()
	defer self.lock.Unlock()

	return self.apply([]memoryOp{{collection: name, records: records}})
}

func (self *MemoryBackend) Retrieve(name string, id string) (dal.Record, error) {
	self.lock.RLock()
	defer self.lock.RUnlock()

	if collection, ok := self.collections[name]; ok {
		if record, ok := collection[id]; ok {
			return record.Copy(), nil
		}
	}

	return nil, dal.NewNotFoundError("Record %v does not exist in %v", id, name)
}

func (self *MemoryBackend) Find(name string, query Query, fields []string, limit int) ([]dal.Record, error) {
	match, err := compileQuery(query)

	if err != nil {
		return nil, &dal.BadQueryError{
			Query: fmt.Sprintf("%v", map[string]interface{}(query)),
			Cause: err,
		}
	}

	self.lock.RLock()
	defer self.lock.RUnlock()

	collection := self.collections[name]
	records := make([]dal.Record, 0)

	for _, id := range sortedIDs(collection) {
		record := collection[id]

		if match(record) {
			records = append(records, project(record, fields))

			if limit > 0 && len(records) >= limit {
				break
			}
		}
	}

	return records, nil
}

func (self *MemoryBackend) Count(name string, query Query) (int, error) {
	if records, err := self.Find(name, query, []string{dal.IdentityField}, 0); err == nil {
		return len(records), nil
	} else {
		return 0, err
	}
}

func (self *MemoryBackend) DeleteQuery(name string, query Query) (int, error) {
	match, err := compileQuery(query)

	if err != nil {
		return 0, &dal.BadQueryError{
			Query: fmt.Sprintf("%v", map[string]interface{}(query)),
			Cause: err,
		}
	}

	self.lock.Lock()
	defer self.lock.Unlock()

	removed := 0

	for id, record := range self.collections[name] {
		if match(record) {
			delete(self.collections[name], id)
			removed += 1
		}
	}

	return removed, nil
}

func (self *MemoryBackend) RenameCollection(from string, to string) error {
	self.lock.Lock()
	defer self.lock.Unlock()

	if collection, ok := self.collections[from]; ok {
		self.collections[to] = collection
		delete(self.collections, from)
		return nil
	}

	return dal.NewNotFoundError("Collection %v does not exist", from)
}

func (self *MemoryBackend) DropCollection(name string) error {
	self.lock.Lock()
	defer self.lock.Unlock()

	delete(self.collections, name)
	return nil
}

func (self *MemoryBackend) ListCollections() ([]string, error) {
	self.lock.RLock()
	defer self.lock.RUnlock()

	names := make([]string, 0, len(self.collections))

	for name := range self.collections {
		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}

func (self *MemoryBackend) Begin() (Transaction, error) {
	return &MemoryTransaction{
		backend: self,
	}, nil
}

type memoryOp struct {
	collection string
	strict     bool
	records    []dal.Record
}

// Validates every operation first and only then writes, so a batch is applied
// entirely or not at all. Callers hold the write lock.
func (self *MemoryBackend) apply(ops []memoryOp) error {
	pending := make(map[string]map[string]bool)

	for _, op := range ops {
		if _, ok := pending[op.collection]; !ok {
			pending[op.collection] = make(map[string]bool)
		}

		for _, record := range op.records {
			id, err := recordID(record)

			if err != nil {
				return err
			}

			key := dal.Stringify(id)
			_, exists := self.collections[op.collection][key]

			if op.strict && (exists || pending[op.collection][key]) {
				return fmt.Errorf("duplicate key %v in %v", key, op.collection)
			}

			pending[op.collection][key] = true
		}
	}

	for _, op := range ops {
		collection, ok := self.collections[op.collection]

		if !ok {
			collection = make(map[string]dal.Record)
			self.collections[op.collection] = collection
		}

		for _, record := range op.records {
			key := record.ID()

			if _, exists := collection[key]; !exists {
				collection[key] = record.Copy()
			}
		}
	}

	return nil
}

type MemoryTransaction struct {
	backend   *MemoryBackend
	ops       []memoryOp
	committed bool
	aborted   bool
	lock      sync.Mutex
}

func (self *MemoryTransaction) Insert(collection string, records ...dal.Record) error {
	return self.push(memoryOp{collection: collection, strict: true, records: copyRecords(records)})
}

func (self *MemoryTransaction) Ensure(collection string, records ...dal.Record) error {
	return self.push(memoryOp{collection: collection, records: copyRecords(records)})
}

func (self *MemoryTransaction) push(op memoryOp) error {
	self.lock.Lock()
	defer self.lock.Unlock()

	if err := self.checkOpen(); err != nil {
		return err
	}

	self.ops = append(self.ops, op)
	return nil
}

func (self *MemoryTransaction) Commit() error {
	self.lock.Lock()
	defer self.lock.Unlock()

	if err := self.checkOpen(); err != nil {
		return err
	}

	self.committed = true

	self.backend.lock.Lock()
	defer self.backend.lock.Unlock()

	return self.backend.apply(self.ops)
}

func (self *MemoryTransaction) Abort() error {
	self.lock.Lock()
	defer self.lock.Unlock()

	if err := self.checkOpen(); err != nil {
		return err
	}

	self.aborted = true
	self.ops = nil
	return nil
}

func (self *MemoryTransaction) Close() error {
	self.lock.Lock()
	done := self.committed || self.aborted
	self.lock.Unlock()

	if done {
		return nil
	}

	return self.Abort()
}

func (self *MemoryTransaction) checkOpen() error {
	if self.committed {
		return fmt.Errorf("transaction already committed")
	} else if self.aborted {
		return fmt.Errorf("transaction already aborted")
	}

	return nil
}

func copyRecords(records []dal.Record) []dal.Record {
	out := make([]dal.Record, len(records))

	for i, record := range records {
		out[i] = record.Copy()
	}

	return out
}

func sortedIDs(collection map[string]dal.Record) []string {
	ids := make([]string, 0, len(collection))

	for id := range collection {
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids
}

func project(record dal.Record, fields []string) dal.Record {
	if len(fields) == 0 {
		return record.Copy()
	}

	out := dal.NewRecord(record[dal.IdentityField])

	for _, field := range fields {
		if value, ok := record[field]; ok {
			out[field] = value
		}
	}

	return out
}
