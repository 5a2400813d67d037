package mapper

import (
	"github.com/fandreuz/opendata/backends"
	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/log"
)

type DatasetMetadataStore struct {
	db         backends.Backend
	collection string
}

func NewDatasetMetadataStore(db backends.Backend) *DatasetMetadataStore {
	return &DatasetMetadataStore{
		db:         db,
		collection: DatasetMetadataCollection,
	}
}

// Writes dataset metadata, failing if a dataset with the same ID exists.
func (self *DatasetMetadataStore) Create(writer backends.Writer, metadata *dal.DatasetMetadata) error {
	if metadata == nil || metadata.DatasetID == `` {
		return dal.NewDatabaseError(nil, "Cannot store dataset metadata without an ID")
	}

	log.Debugf("Storing dataset metadata %v", metadata)

	if err := writer.Insert(self.collection, metadata.ToRecord()); err != nil {
		return databaseError(err, "Could not store dataset metadata %s", metadata.DatasetID)
	}

	return nil
}

// Returns the stored metadata without its collection attached.
func (self *DatasetMetadataStore) Get(id string) (*dal.DatasetMetadata, error) {
	if record, err := self.db.Retrieve(self.collection, id); err == nil {
		if metadata, err := dal.DatasetMetadataFromRecord(record); err == nil {
			return metadata, nil
		} else {
			return nil, databaseError(err, "Malformed dataset metadata %s", id)
		}
	} else if dal.IsNotFoundErr(err) {
		return nil, dal.NewNotFoundError("Dataset metadata with ID=%s not found", id)
	} else {
		return nil, databaseError(err, "Could not retrieve dataset metadata %s", id)
	}
}

func (self *DatasetMetadataStore) All() ([]*dal.DatasetMetadata, error) {
	records, err := self.db.Find(self.collection, backends.Query{}, nil, 0)

	if err != nil {
		return nil, databaseError(err, "Could not list dataset metadata")
	}

	out := make([]*dal.DatasetMetadata, 0, len(records))

	for _, record := range records {
		if metadata, err := dal.DatasetMetadataFromRecord(record); err == nil {
			out = append(out, metadata)
		} else {
			return nil, databaseError(err, "Malformed dataset metadata %s", record.ID())
		}
	}

	dal.SortDatasets(out)
	return out, nil
}
