// The fetch package resolves a dataset from its source into a local file,
// together with the metadata of the dataset and of the collection it belongs to.
package fetch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fandreuz/opendata/dal"
)

type Result struct {
	Collection *dal.CollectionMetadata
	Dataset    *dal.DatasetMetadata
	LocalFile  string
}

type Fetcher interface {
	// The URN namespace of the datasets this fetcher produces.
	Source() string
	Fetch(ctx context.Context, collectionID string, fileName string) (*Result, error)
}

// Builds dataset metadata from a file that has already been fetched.
type MetadataBuilder struct {
	Source string
	Now    func() time.Time
}

func NewMetadataBuilder(source string) *MetadataBuilder {
	return &MetadataBuilder{
		Source: source,
		Now:    time.Now,
	}
}

func (self *MetadataBuilder) Build(collectionID string, path string) (*dal.DatasetMetadata, error) {
	fileName := filepath.Base(path)

	datasetType, err := dal.DatasetTypeForFile(fileName)

	if err != nil {
		return nil, err
	}

	datasetID, err := dal.MakeDatasetID(self.Source, collectionID, fileName)

	if err != nil {
		return nil, dal.NewFetchError(err, "Invalid dataset identity")
	}

	info, err := os.Stat(path)

	if err != nil {
		return nil, dal.NewFetchError(err, "An exception occurred while building metadata")
	}

	now := self.Now

	if now == nil {
		now = time.Now
	}

	return &dal.DatasetMetadata{
		DatasetID:       datasetID,
		FileName:        fileName,
		Type:            datasetType,
		SizeInBytes:     info.Size(),
		ImportTimestamp: now().UnixNano() / int64(time.Millisecond),
	}, nil
}

func validateCollectionID(source string, collectionID string) error {
	if collectionID == `` || collectionID != filepath.Base(collectionID) || collectionID == `..` {
		return dal.NewFetchError(nil, "Invalid collection '%s'", collectionID)
	} else if _, err := dal.MakeCollectionID(source, collectionID); err != nil {
		return dal.NewFetchError(err, "Invalid collection '%s'", collectionID)
	}

	return nil
}

// Rejects file names that would escape the collection they are fetched from.
func validateFileName(fileName string) error {
	if fileName == `` || fileName != filepath.Base(fileName) || fileName == `.` || fileName == `..` {
		return dal.NewFetchError(nil, "Invalid file name '%s'", fileName)
	}

	_, err := dal.DatasetTypeForFile(fileName)
	return err
}
