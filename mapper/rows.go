package mapper

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/deckarep/golang-set"
	"github.com/fandreuz/opendata/backends"
	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/log"
	"gopkg.in/mgo.v2/bson"
)

const utf8BOM = "\ufeff"

// Stores the rows of each dataset as one document per CSV record, in a row
// collection of their own. Values are kept as the strings read from the file.
type RowStore struct {
	db        backends.Backend
	BatchSize int
}

func NewRowStore(db backends.Backend) *RowStore {
	return &RowStore{
		db:        db,
		BatchSize: DefaultBatchSize,
	}
}

func (self *RowStore) CollectionName(datasetID string) string {
	return RowCollectionPrefix + datasetID
}

// Streams every record of the CSV file at the given coordinates into a
// staging collection and publishes it as the dataset's row collection with a
// single rename. If anything fails midway the staging collection is dropped,
// so readers never observe a partial dataset.
func (self *RowStore) Create(coordinates dal.DatasetCoordinates) (int, error) {
	live := self.CollectionName(coordinates.ID)
	staging := live + StagingInfix + bson.NewObjectId().Hex()

	log.Infof("Storing dataset %v in the DB", coordinates)

	count, err := self.stage(staging, coordinates.LocalFileLocation)

	if err != nil {
		self.discard(staging)
		return 0, databaseError(err, "An error occurred while transferring CSV records of %s to the DB", coordinates.ID)
	}

	if count == 0 {
		self.discard(staging)

		if err := self.db.DropCollection(live); err != nil {
			return 0, databaseError(err, "Could not clear rows of %s", coordinates.ID)
		}

		log.Infof("Dataset %s has no rows", coordinates.ID)
		return 0, nil
	}

	if err := self.db.RenameCollection(staging, live); err != nil {
		self.discard(staging)
		return 0, databaseError(err, "Could not publish rows of %s", coordinates.ID)
	}

	log.Infof("Stored %d rows of dataset %s", count, coordinates.ID)
	return count, nil
}

func (self *RowStore) stage(collection string, path string) (int, error) {
	file, err := os.Open(path)

	if err != nil {
		return 0, err
	}

	defer file.Close()

	reader := csv.NewReader(bufio.NewReader(file))
	header, err := reader.Read()

	if err == io.EOF {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	header[0] = strings.TrimPrefix(header[0], utf8BOM)

	for _, name := range header {
		if name == dal.IdentityField {
			log.Warningf("Column %q collides with the row identity and will not be stored", name)
		}
	}

	batchSize := self.BatchSize

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	batch := make([]dal.Record, 0, batchSize)
	count := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		if err := self.db.Insert(collection, batch...); err != nil {
			return err
		}

		count += len(batch)
		batch = make([]dal.Record, 0, batchSize)
		return nil
	}

	for {
		row, err := reader.Read()

		if err == io.EOF {
			break
		} else if err != nil {
			return count, err
		}

		// ObjectIds grow monotonically, so ordering by identity is source order
		record := dal.NewRecord(bson.NewObjectId())

		for i, name := range header {
			if name == dal.IdentityField || i >= len(row) {
				continue
			}

			record[name] = row[i]
		}

		batch = append(batch, record)

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}

	if err := flush(); err != nil {
		return count, err
	}

	return count, nil
}

func (self *RowStore) discard(staging string) {
	if err := self.db.DropCollection(staging); err != nil {
		log.Warningf("Could not drop staging collection %s: %v", staging, err)

		if n, err := self.db.DeleteQuery(staging, backends.Query{}); err == nil {
			log.Warningf("Cleaned %d entries", n)
		}
	}
}

// Returns the column names (the union over all rows) and row count of a dataset.
func (self *RowStore) Get(id string) (*dal.StoredDataset, error) {
	records, err := self.db.Find(self.CollectionName(id), backends.Query{}, nil, 0)

	if err != nil {
		return nil, databaseError(err, "Could not read dataset %s", id)
	} else if len(records) == 0 {
		return nil, datasetNotFound(id)
	}

	columns := mapset.NewSet()

	for _, record := range records {
		for key := range record {
			if key != dal.IdentityField {
				columns.Add(key)
			}
		}
	}

	return &dal.StoredDataset{
		ID:          id,
		ColumnNames: sortedStrings(columns),
		Rows:        len(records),
	}, nil
}

// Projects one column across every row, ordered by row ID.
func (self *RowStore) Column(id string, name string) (*dal.Column, error) {
	log.Infof("Querying dataset with ID=%s, column: '%s'", id, name)

	records, err := self.db.Find(self.CollectionName(id), backends.Query{}, []string{name}, 0)

	if err != nil {
		return nil, databaseError(err, "Could not read dataset %s", id)
	} else if len(records) == 0 {
		return nil, datasetNotFound(id)
	}

	column := &dal.Column{
		Name:    name,
		Entries: make([]dal.ColumnEntry, 0, len(records)),
	}

	seen := mapset.NewSet()

	for _, record := range records {
		rowID := record.ID()

		if !seen.Add(rowID) {
			return nil, dal.NewDatabaseError(nil, "Duplicate key %s in dataset %s", rowID, id)
		}

		if value, ok := record[name]; ok {
			column.Entries = append(column.Entries, dal.ColumnEntry{
				RowID: rowID,
				Value: dal.Stringify(value),
			})
		}
	}

	if len(column.Entries) == 0 {
		return nil, dal.NewNotFoundError("Column '%s' not found in dataset with ID=%s", name, id)
	}

	sort.SliceStable(column.Entries, func(i, j int) bool {
		return column.Entries[i].RowID < column.Entries[j].RowID
	})

	return column, nil
}

// Returns every row matching the given predicate as field -> string value.
func (self *RowStore) EntriesMatching(id string, expr string) ([]map[string]string, error) {
	records, err := self.match(id, expr, nil)

	if err != nil {
		return nil, err
	}

	entries := make([]map[string]string, len(records))

	for i, record := range records {
		entries[i] = record.Strings()
	}

	return entries, nil
}

// Returns the sorted IDs of the rows matching the given predicate.
func (self *RowStore) IdsWhere(id string, expr string) ([]string, error) {
	records, err := self.match(id, expr, []string{dal.IdentityField})

	if err != nil {
		return nil, err
	}

	ids := mapset.NewSet()

	for _, record := range records {
		ids.Add(record.ID())
	}

	return sortedStrings(ids), nil
}

func (self *RowStore) match(id string, expr string, fields []string) ([]dal.Record, error) {
	collection := self.CollectionName(id)

	log.Infof("Querying dataset with ID=%s, query: '%s'", id, expr)

	// existence is checked before the expression, so a bad query on a
	// missing dataset is still reported as not found
	if n, err := self.db.Count(collection, backends.Query{}); err != nil {
		return nil, databaseError(err, "Could not read dataset %s", id)
	} else if n == 0 {
		return nil, datasetNotFound(id)
	}

	query, err := backends.ParseQuery(expr)

	if err != nil {
		return nil, err
	}

	if records, err := self.db.Find(collection, query, fields, 0); err == nil {
		return records, nil
	} else {
		return nil, databaseError(err, "Could not query dataset %s", id)
	}
}

// Removes the published rows of a dataset. Staging collections belong to
// the import that created them and are left alone.
func (self *RowStore) Delete(id string) error {
	if err := self.db.DropCollection(self.CollectionName(id)); err != nil {
		return databaseError(err, "Could not delete rows of dataset %s", id)
	}

	log.Infof("Deleted rows of dataset %s", id)
	return nil
}

func datasetNotFound(id string) error {
	return dal.NewNotFoundError("Dataset with ID=%s not found", id)
}

func sortedStrings(set mapset.Set) []string {
	out := make([]string, 0, set.Cardinality())

	for _, v := range set.ToSlice() {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}

	sort.Strings(out)
	return out
}
