package fetch

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/fileutil"
	"github.com/ghetzel/go-stockutil/log"
	"github.com/ghetzel/go-stockutil/pathutil"
	"github.com/ghodss/yaml"
)

const LocalSource = `local`

var CollectionMetadataFile = `collection.yml`

// Serves datasets from a directory tree laid out as <root>/<collection>/<file>,
// with each collection described by a collection.yml next to its files.
type LocalFetcher struct {
	Root    string
	builder *MetadataBuilder
}

func NewLocalFetcher(root string) *LocalFetcher {
	return &LocalFetcher{
		Root:    fileutil.MustExpandUser(root),
		builder: NewMetadataBuilder(LocalSource),
	}
}

func (self *LocalFetcher) Source() string {
	return LocalSource
}

func (self *LocalFetcher) Fetch(ctx context.Context, collectionID string, fileName string) (*Result, error) {
	if err := validateCollectionID(LocalSource, collectionID); err != nil {
		return nil, err
	} else if err := validateFileName(fileName); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, dal.NewFetchError(err, "Fetch of %s/%s cancelled", collectionID, fileName)
	}

	dir := filepath.Join(self.Root, collectionID)

	if !pathutil.DirExists(dir) {
		return nil, dal.NewFetchError(nil, "Collection '%s' does not exist under %s", collectionID, self.Root)
	}

	path := filepath.Join(dir, fileName)

	if info, err := os.Stat(path); err != nil {
		return nil, dal.NewFetchError(err, "An error occurred while reading the file at '%s'", path)
	} else if info.IsDir() {
		return nil, dal.NewFetchError(nil, "'%s' is a directory", path)
	}

	collection, err := self.collectionMetadata(collectionID, dir)

	if err != nil {
		return nil, err
	}

	dataset, err := self.builder.Build(collectionID, path)

	if err != nil {
		return nil, err
	}

	log.Debugf("Resolved %s from %s", dataset.DatasetID, path)

	return &Result{
		Collection: collection,
		Dataset:    dataset,
		LocalFile:  path,
	}, nil
}

func (self *LocalFetcher) collectionMetadata(collectionID string, dir string) (*dal.CollectionMetadata, error) {
	id, err := dal.MakeCollectionID(LocalSource, collectionID)

	if err != nil {
		return nil, dal.NewFetchError(err, "Invalid collection identity")
	}

	collection := &dal.CollectionMetadata{
		Name: collectionID,
	}

	if path := filepath.Join(dir, CollectionMetadataFile); pathutil.IsNonemptyFile(path) {
		if data, err := ioutil.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, collection); err != nil {
				return nil, dal.NewFetchError(err, "Malformed collection metadata in %s", path)
			}
		} else {
			return nil, dal.NewFetchError(err, "An error occurred while reading %s", path)
		}
	}

	collection.ID = id
	return collection, nil
}
