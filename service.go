package opendata

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alexcesaro/statsd"
	"github.com/fandreuz/opendata/backends"
	"github.com/fandreuz/opendata/conversion"
	"github.com/fandreuz/opendata/dal"
	"github.com/fandreuz/opendata/fetch"
	"github.com/fandreuz/opendata/mapper"
	"github.com/ghetzel/go-stockutil/log"
	"github.com/ghetzel/go-stockutil/utils"
)

type ConversionOrchestrator interface {
	GetConversionService(datasetType dal.DatasetType) (conversion.Converter, error)
}

type CollectionStore interface {
	mapper.CollectionReader
	Create(writer backends.Writer, metadata *dal.CollectionMetadata) error
}

type DatasetMetadataStore interface {
	Create(writer backends.Writer, metadata *dal.DatasetMetadata) error
	Get(id string) (*dal.DatasetMetadata, error)
	All() ([]*dal.DatasetMetadata, error)
}

type RowStore interface {
	Create(coordinates dal.DatasetCoordinates) (int, error)
	Get(id string) (*dal.StoredDataset, error)
	Column(id string, name string) (*dal.Column, error)
	EntriesMatching(id string, expr string) ([]map[string]string, error)
	IdsWhere(id string, expr string) ([]string, error)
	Delete(id string) error
}

type ServiceOptions struct {
	CacheSize           int
	BatchSize           int
	RetainFailures      bool
	CreateTimeout       time.Duration
	ConversionDirectory string
	Stats               *statsd.Client
}

// Creates datasets from a source and answers queries over the stored ones.
type DatasetService struct {
	Fetcher      fetch.Fetcher
	Converters   ConversionOrchestrator
	Collections  CollectionStore
	Datasets     DatasetMetadataStore
	Rows         RowStore
	Transactions backends.TransactionStarter
	Pool         *CreationPool

	// serializes writes of files that map onto the same dataset ID
	DatasetPool *CreationPool

	// bounds how long a caller waits on a creation, zero waits forever
	CreateTimeout time.Duration
	stats         *statsd.Client
}

func NewDatasetService(db backends.Backend, fetcher fetch.Fetcher, options ServiceOptions) (*DatasetService, error) {
	cacheSize := options.CacheSize

	if cacheSize <= 0 {
		cacheSize = mapper.DefaultCollectionCacheSize
	}

	collections, err := mapper.NewCachingCollectionStore(mapper.NewCollectionStore(db), cacheSize)

	if err != nil {
		return nil, err
	}

	rows := mapper.NewRowStore(db)

	if options.BatchSize > 0 {
		rows.BatchSize = options.BatchSize
	}

	pool := NewCreationPool()
	pool.RetainFailures = options.RetainFailures

	service := &DatasetService{
		Fetcher:       fetcher,
		Converters:    conversion.NewOrchestrator(options.ConversionDirectory),
		Collections:   collections,
		Datasets:      mapper.NewDatasetMetadataStore(db),
		Rows:          rows,
		Transactions:  db,
		Pool:          pool,
		DatasetPool:   NewCreationPool(),
		CreateTimeout: options.CreateTimeout,
		stats:         options.Stats,
	}

	if service.stats == nil {
		service.stats = mutedStats()
	}

	return service, nil
}

// Imports the given file of a collection, returning its metadata with the
// collection attached. Concurrent calls for the same file share one import.
func (self *DatasetService) CreateDataset(ctx context.Context, collectionID string, fileName string) (*dal.DatasetMetadata, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if self.CreateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, self.CreateTimeout)
		defer cancel()
	}

	value, leader, err := self.Pool.Do(ctx, dal.LockKey(collectionID, fileName), func() (interface{}, error) {
		return self.ingest(collectionID, fileName)
	})

	if err != nil {
		if leader {
			log.Errorf("Creation of %s/%s failed: %v", collectionID, fileName, err)
		}

		return nil, err
	}

	if metadata, ok := value.(*dal.DatasetMetadata); ok {
		return metadata, nil
	}

	return nil, &dal.ConcurrentOperationError{
		Cause: dal.NewDatabaseError(nil, "Unexpected creation result %T", value),
	}
}

func (self *DatasetService) ingest(collectionID string, fileName string) (*dal.DatasetMetadata, error) {
	timing := self.stats.NewTiming()
	defer timing.Send(`datasets.create`)

	log.Infof("Creating dataset %s of collection %s", fileName, collectionID)

	result, err := self.Fetcher.Fetch(context.Background(), collectionID, fileName)

	if err != nil {
		self.stats.Increment(`datasets.failed`)
		return nil, err
	}

	// different files (e.g. data.csv and data.json) can share a dataset ID
	value, leader, err := self.DatasetPool.Do(context.Background(), result.Dataset.DatasetID, func() (interface{}, error) {
		return self.store(result)
	})

	if coe, ok := err.(*dal.ConcurrentOperationError); ok {
		err = coe.Cause
	}

	if err != nil {
		self.stats.Increment(`datasets.failed`)
		return nil, err
	} else if !leader {
		self.stats.Increment(`datasets.reused`)
	}

	if metadata, ok := value.(*dal.DatasetMetadata); ok {
		return metadata, nil
	}

	return nil, dal.NewDatabaseError(nil, "Unexpected creation result %T", value)
}

func (self *DatasetService) store(result *fetch.Result) (*dal.DatasetMetadata, error) {
	datasetID := result.Dataset.DatasetID

	if existing, err := self.Datasets.Get(datasetID); err == nil {
		log.Infof("Dataset %s already exists", datasetID)
		self.stats.Increment(`datasets.reused`)
		return self.join(existing)
	} else if !dal.IsNotFoundErr(err) {
		return nil, err
	}

	dataset, err := self.convert(result)

	if err != nil {
		return nil, err
	}

	if path := dataset.Coordinates.LocalFileLocation; filepath.Clean(path) != filepath.Clean(result.LocalFile) {
		defer removeConverted(path)
	}

	if err := self.persist(result.Collection, dataset); err != nil {
		return nil, err
	}

	log.Infof("Created dataset %v", dataset)
	self.stats.Increment(`datasets.created`)

	return dataset.Metadata.WithCollection(result.Collection), nil
}

type convertedDataset struct {
	Metadata    *dal.DatasetMetadata
	Coordinates dal.DatasetCoordinates
}

func (self convertedDataset) String() string {
	return self.Metadata.String()
}

func (self *DatasetService) convert(result *fetch.Result) (*convertedDataset, error) {
	converter, err := self.Converters.GetConversionService(result.Dataset.Type)

	if err != nil {
		return nil, err
	}

	path, err := converter.Convert(result.LocalFile)

	if err != nil {
		return nil, err
	}

	metadata := result.Dataset

	if columns, names, ok := csvHeader(path); ok {
		metadata = metadata.WithCsvMetadata(columns, names)
	}

	return &convertedDataset{
		Metadata: metadata,
		Coordinates: dal.DatasetCoordinates{
			ID:                metadata.DatasetID,
			LocalFileLocation: path,
		},
	}, nil
}

// Stores rows, dataset metadata and collection metadata as one unit. Rows are
// published before the metadata transaction and removed again if it fails.
// Row reads are answered only once the metadata is committed.
func (self *DatasetService) persist(collection *dal.CollectionMetadata, dataset *convertedDataset) error {
	published, err := self.Rows.Create(dataset.Coordinates)

	if err != nil {
		// the row store drops its own staging collection on failure
		return &dal.TransactionError{
			Cause: err,
		}
	}

	if err := backends.WithTransaction(self.Transactions, func(tx backends.Transaction) error {
		if err := self.Datasets.Create(tx, dataset.Metadata); err != nil {
			return err
		}

		return self.Collections.Create(tx, collection)
	}); err != nil {
		if published > 0 {
			if cerr := self.compensate(dataset.Coordinates.ID, err); cerr != nil {
				err = utils.AppendError(err, cerr)
			}
		}

		return &dal.TransactionError{
			Cause: err,
		}
	}

	return nil
}

// Removes the rows this import published.
func (self *DatasetService) compensate(datasetID string, cause error) error {
	log.Warningf("Removing rows of %s after a failed import: %v", datasetID, cause)

	if err := self.Rows.Delete(datasetID); err != nil {
		log.Errorf("Could not remove rows of %s: %v", datasetID, err)
		return err
	}

	return nil
}

func (self *DatasetService) GetMetadata(id string) (*dal.DatasetMetadata, error) {
	if metadata, err := self.Datasets.Get(id); err == nil {
		return self.join(metadata)
	} else {
		return nil, err
	}
}

func (self *DatasetService) GetAllMetadata() ([]*dal.DatasetMetadata, error) {
	all, err := self.Datasets.All()

	if err != nil {
		return nil, err
	}

	joined := make([]*dal.DatasetMetadata, 0, len(all))

	for _, metadata := range all {
		if m, err := self.join(metadata); err == nil {
			joined = append(joined, m)
		} else {
			return nil, err
		}
	}

	dal.SortDatasets(joined)
	return joined, nil
}

func (self *DatasetService) GetColumnNames(id string) ([]string, error) {
	if err := self.committed(id); err != nil {
		return nil, err
	}

	if dataset, err := self.Rows.Get(id); err == nil {
		return dataset.ColumnNames, nil
	} else {
		return nil, err
	}
}

func (self *DatasetService) GetColumn(id string, name string) (*dal.Column, error) {
	if err := self.committed(id); err != nil {
		return nil, err
	}

	return self.Rows.Column(id, name)
}

func (self *DatasetService) GetIdsWhere(id string, expr string) ([]string, error) {
	if err := self.committed(id); err != nil {
		return nil, err
	}

	return self.Rows.IdsWhere(id, expr)
}

func (self *DatasetService) GetEntriesMatching(id string, expr string) ([]map[string]string, error) {
	if err := self.committed(id); err != nil {
		return nil, err
	}

	return self.Rows.EntriesMatching(id, expr)
}

// Rows of a dataset are visible once its metadata is committed.
func (self *DatasetService) committed(id string) error {
	if _, err := self.Datasets.Get(id); err == nil {
		return nil
	} else if dal.IsNotFoundErr(err) {
		return dal.NewNotFoundError("Dataset with ID=%s not found", id)
	} else {
		return err
	}
}

// Attaches the collection a dataset belongs to. A dataset whose collection is
// missing is returned without one.
func (self *DatasetService) join(metadata *dal.DatasetMetadata) (*dal.DatasetMetadata, error) {
	collectionID := dal.CollectionIDFromDatasetID(metadata.DatasetID)

	if collection, err := self.Collections.Get(collectionID); err == nil {
		return metadata.WithCollection(collection), nil
	} else if dal.IsNotFoundErr(err) {
		log.Warningf("Collection %s of dataset %s not found", collectionID, metadata.DatasetID)
		return metadata.WithCollection(nil), nil
	} else {
		return nil, err
	}
}

// Reads the header line of a CSV file. Reports false for files that are empty
// or not valid text.
func csvHeader(path string) (int64, string, bool) {
	file, err := os.Open(path)

	if err != nil {
		log.Debugf("Cannot read header of %s: %v", path, err)
		return 0, ``, false
	}

	defer file.Close()

	line, err := bufio.NewReader(file).ReadString('\n')

	if err != nil && err != io.EOF {
		log.Debugf("Cannot read header of %s: %v", path, err)
		return 0, ``, false
	}

	line = strings.TrimPrefix(strings.TrimRight(line, "\r\n"), "\ufeff")

	if line == `` || !utf8.ValidString(line) {
		return 0, ``, false
	}

	return int64(strings.Count(line, `,`) + 1), line, true
}

func removeConverted(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warningf("Could not remove converted file %s: %v", path, err)
	}
}

func mutedStats() *statsd.Client {
	client, _ := statsd.New(statsd.Mute(true))
	return client
}
