package backends

import (
	"fmt"
	"sort"
	"time"

	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/log"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

var DefaultConnectTimeout = 10 * time.Second
var TransactionCollection = `txns`

// server error codes reported for malformed query documents
var mongoBadQueryCodes = map[int]bool{
	2:  true,
	9:  true,
	51: true,
}

type MongoBackend struct {
	conn    *dal.ConnectionString
	session *mgo.Session
	dbname  string
}

func NewMongoBackend(connection dal.ConnectionString) *MongoBackend {
	return &MongoBackend{
		conn: &connection,
	}
}

func (self *MongoBackend) Initialize() error {
	cstring := fmt.Sprintf("mongodb://%s/%s", self.conn.Host(), self.conn.Dataset())
	timeout := self.conn.OptDuration(`timeout`, DefaultConnectTimeout)

	log.Debugf("[mongodb] dialing %s", cstring)

	if session, err := mgo.DialWithTimeout(cstring, timeout); err == nil {
		self.session = session

		if u, p, ok := self.conn.Credentials(); ok {
			credentials := &mgo.Credential{
				Username:    u,
				Password:    p,
				Source:      self.conn.OptString(`authdb`, ``),
				Service:     self.conn.OptString(`authService`, ``),
				ServiceHost: self.conn.OptString(`authHost`, ``),
			}

			switch self.conn.Protocol() {
			case `scram`, `scram-sha1`:
				credentials.Mechanism = `SCRAM-SHA-1`
			case `cr`:
				credentials.Mechanism = `MONGODB-CR`
			}

			if err := self.session.Login(credentials); err != nil {
				return fmt.Errorf("auth failed: %v", err)
			}
		}

		self.session.SetMode(mgo.Strong, true)
		self.dbname = self.conn.Dataset()

		if self.dbname == `` {
			self.dbname = `opendata`
		}

		return nil
	} else {
		return err
	}
}

func (self *MongoBackend) GetConnectionString() *dal.ConnectionString {
	return self.conn
}

func (self *MongoBackend) Close() error {
	if self.session != nil {
		self.session.Close()
	}

	return nil
}

// Returns a handle on the named collection backed by a copy of the root
// session, along with the function that releases it.
func (self *MongoBackend) c(name string) (*mgo.Collection, func()) {
	session := self.session.Copy()
	return session.DB(self.dbname).C(name), session.Close
}

func (self *MongoBackend) Insert(name string, records ...dal.Record) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(records))

	for _, record := range records {
		if _, err := recordID(record); err != nil {
			return err
		}

		docs = append(docs, bson.M(record))
	}

	collection, done := self.c(name)
	defer done()

	return collection.Insert(docs...)
}

func (self *MongoBackend) Ensure(name string, records ...dal.Record) error {
	collection, done := self.c(name)
	defer done()

	for _, record := range records {
		if id, err := recordID(record); err == nil {
			fields := bson.M(record.Fields())
			update := bson.M{}

			if len(fields) > 0 {
				update[`$setOnInsert`] = fields
			} else {
				update[`$setOnInsert`] = bson.M{dal.IdentityField: id}
			}

			if _, err := collection.UpsertId(id, update); err != nil {
				return err
			}
		} else {
			return err
		}
	}

	return nil
}

func (self *MongoBackend) Retrieve(name string, id string) (dal.Record, error) {
	collection, done := self.c(name)
	defer done()

	var data bson.M

	if err := collection.FindId(id).One(&data); err == nil {
		return dal.Record(data), nil
	} else if err == mgo.ErrNotFound {
		return nil, dal.NewNotFoundError("Record %v does not exist in %v", id, name)
	} else {
		return nil, err
	}
}

func (self *MongoBackend) Find(name string, query Query, fields []string, limit int) ([]dal.Record, error) {
	collection, done := self.c(name)
	defer done()

	q := collection.Find(bson.M(query)).Sort(dal.IdentityField)

	if len(fields) > 0 {
		selector := bson.M{}

		for _, field := range fields {
			selector[field] = 1
		}

		q = q.Select(selector)
	}

	if limit > 0 {
		q = q.Limit(limit)
	}

	var results []bson.M

	if err := q.All(&results); err != nil {
		return nil, self.queryError(query, err)
	}

	records := make([]dal.Record, len(results))

	for i, result := range results {
		records[i] = dal.Record(result)
	}

	return records, nil
}

func (self *MongoBackend) Count(name string, query Query) (int, error) {
	collection, done := self.c(name)
	defer done()

	if n, err := collection.Find(bson.M(query)).Count(); err == nil {
		return n, nil
	} else {
		return 0, self.queryError(query, err)
	}
}

func (self *MongoBackend) DeleteQuery(name string, query Query) (int, error) {
	collection, done := self.c(name)
	defer done()

	if info, err := collection.RemoveAll(bson.M(query)); err == nil {
		return info.Removed, nil
	} else if err == mgo.ErrNotFound {
		return 0, nil
	} else {
		return 0, self.queryError(query, err)
	}
}

// Renames a collection, replacing the target if it exists. The server applies
// renames atomically.
func (self *MongoBackend) RenameCollection(from string, to string) error {
	session := self.session.Copy()
	defer session.Close()

	return session.DB(`admin`).Run(bson.D{
		{Name: `renameCollection`, Value: self.dbname + `.` + from},
		{Name: `to`, Value: self.dbname + `.` + to},
		{Name: `dropTarget`, Value: true},
	}, nil)
}

func (self *MongoBackend) DropCollection(name string) error {
	collection, done := self.c(name)
	defer done()

	if err := collection.DropCollection(); err != nil {
		if qe, ok := err.(*mgo.QueryError); ok && qe.Code == 26 {
			return nil
		} else if err.Error() == `ns not found` {
			return nil
		}

		return err
	}

	return nil
}

func (self *MongoBackend) ListCollections() ([]string, error) {
	session := self.session.Copy()
	defer session.Close()

	if names, err := session.DB(self.dbname).CollectionNames(); err == nil {
		sort.Strings(names)
		return names, nil
	} else {
		return nil, err
	}
}

func (self *MongoBackend) Begin() (Transaction, error) {
	if self.session == nil {
		return nil, fmt.Errorf("backend is not initialized")
	}

	return newMongoTransaction(self), nil
}

func (self *MongoBackend) queryError(query Query, err error) error {
	if qe, ok := err.(*mgo.QueryError); ok && mongoBadQueryCodes[qe.Code] {
		return &dal.BadQueryError{
			Query: fmt.Sprintf("%v", map[string]interface{}(query)),
			Cause: err,
		}
	}

	return err
}
