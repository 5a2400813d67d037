package opendata

import (
	"github.com/fandreuz/opendata/backends"
	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/log"
)

// Connects to and initializes the document store at the given connection string.
func NewDatabase(connection string) (backends.Backend, error) {
	if cs, err := dal.ParseConnectionString(connection); err == nil {
		if backend, err := backends.MakeBackend(cs); err == nil {
			if err := backend.Initialize(); err == nil {
				log.Infof("Connected to %s", cs.String())
				return backend, nil
			} else {
				return nil, err
			}
		} else {
			return nil, err
		}
	} else {
		return nil, err
	}
}

// Builds a dataset service from a configuration, connecting to its database.
func NewServiceFromConfig(config Configuration) (*DatasetService, backends.Backend, error) {
	db, err := NewDatabase(config.Database)

	if err != nil {
		return nil, nil, err
	}

	fetcher, err := config.Fetcher()

	if err != nil {
		db.Close()
		return nil, nil, err
	}

	options, err := config.ServiceOptions()

	if err != nil {
		db.Close()
		return nil, nil, err
	}

	if service, err := NewDatasetService(db, fetcher, options); err == nil {
		return service, db, nil
	} else {
		db.Close()
		return nil, nil, err
	}
}
