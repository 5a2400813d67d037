package mapper

import (
	"github.com/fandreuz/opendata/backends"
	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/log"
	lru "github.com/hashicorp/golang-lru"
)

var DefaultCollectionCacheSize = 256

type CollectionReader interface {
	Get(id string) (*dal.CollectionMetadata, error)
	All() ([]*dal.CollectionMetadata, error)
}

// Stores collection metadata. A collection is written once and shared by
// every dataset imported from it.
type CollectionStore struct {
	db         backends.Backend
	collection string
}

func NewCollectionStore(db backends.Backend) *CollectionStore {
	return &CollectionStore{
		db:         db,
		collection: CollectionMetadataCollection,
	}
}

// Writes the metadata unless a collection with the same ID already exists.
func (self *CollectionStore) Create(writer backends.Writer, metadata *dal.CollectionMetadata) error {
	if metadata == nil || metadata.ID == `` {
		return dal.NewDatabaseError(nil, "Cannot store collection metadata without an ID")
	}

	log.Debugf("Storing collection metadata %s", metadata.ID)

	if err := writer.Ensure(self.collection, metadata.ToRecord()); err != nil {
		return databaseError(err, "Could not store collection metadata %s", metadata.ID)
	}

	return nil
}

func (self *CollectionStore) Get(id string) (*dal.CollectionMetadata, error) {
	if record, err := self.db.Retrieve(self.collection, id); err == nil {
		if metadata, err := dal.CollectionMetadataFromRecord(record); err == nil {
			return metadata, nil
		} else {
			return nil, databaseError(err, "Malformed collection metadata %s", id)
		}
	} else if dal.IsNotFoundErr(err) {
		return nil, dal.NewNotFoundError("Collection with ID=%s not found", id)
	} else {
		return nil, databaseError(err, "Could not retrieve collection metadata %s", id)
	}
}

func (self *CollectionStore) All() ([]*dal.CollectionMetadata, error) {
	records, err := self.db.Find(self.collection, backends.Query{}, nil, 0)

	if err != nil {
		return nil, databaseError(err, "Could not list collection metadata")
	}

	out := make([]*dal.CollectionMetadata, 0, len(records))

	for _, record := range records {
		if metadata, err := dal.CollectionMetadataFromRecord(record); err == nil {
			out = append(out, metadata)
		} else {
			return nil, databaseError(err, "Malformed collection metadata %s", record.ID())
		}
	}

	dal.SortCollections(out)
	return out, nil
}

// Read-through LRU cache of collection metadata. Collection metadata never
// changes once written, so cached entries are never invalidated; misses are
// not cached.
type CachingCollectionStore struct {
	*CollectionStore
	cache *lru.Cache
}

func NewCachingCollectionStore(store *CollectionStore, size int) (*CachingCollectionStore, error) {
	if size <= 0 {
		size = DefaultCollectionCacheSize
	}

	if cache, err := lru.New(size); err == nil {
		return &CachingCollectionStore{
			CollectionStore: store,
			cache:           cache,
		}, nil
	} else {
		return nil, err
	}
}

func (self *CachingCollectionStore) Get(id string) (*dal.CollectionMetadata, error) {
	if v, ok := self.cache.Get(id); ok {
		if metadata, ok := v.(*dal.CollectionMetadata); ok {
			copied := *metadata
			return &copied, nil
		}
	}

	if metadata, err := self.CollectionStore.Get(id); err == nil {
		copied := *metadata
		self.cache.Add(id, &copied)
		return metadata, nil
	} else {
		return nil, err
	}
}
