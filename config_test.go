package opendata

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fandreuz/opendata/fetch"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	assert := require.New(t)
	dir, err := ioutil.TempDir(``, `opendata-config-`)
	assert.Nil(err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, `opendata.yml`)
	assert.Nil(ioutil.WriteFile(path, []byte(`
database: memory://
source: local
source_directory: /srv/data
create_timeout: 30s
batch_size: 100
conversion_directory: /var/tmp/opendata
environments:
  production:
    database: mongodb://db:27017/opendata
    retain_failures: true
`), 0644))

	config, err := LoadConfigFile(path)
	assert.Nil(err)
	assert.Equal(`memory://`, config.Database)
	assert.Equal(fetch.LocalSource, config.Source)
	assert.Equal(fetch.DefaultCernURL, config.SourceURL)
	assert.Equal(100, config.BatchSize)

	options, err := config.ServiceOptions()
	assert.Nil(err)
	assert.Equal(30*time.Second, options.CreateTimeout)
	assert.Equal(100, options.BatchSize)
	assert.Equal(`/var/tmp/opendata`, options.ConversionDirectory)
	assert.False(options.RetainFailures)
	assert.Nil(options.Stats)

	fetcher, err := config.Fetcher()
	assert.Nil(err)
	assert.Equal(fetch.LocalSource, fetcher.Source())

	production := config.ForEnv(`production`)
	assert.Equal(`mongodb://db:27017/opendata`, production.Database)
	assert.True(production.RetainFailures)
	assert.Equal(`/srv/data`, production.SourceDirectory)
	assert.Nil(production.Environments)

	assert.Equal(config.Database, config.ForEnv(``).Database)
	assert.Equal(config.Database, config.ForEnv(`staging`).Database)

	_, err = LoadConfigFile(filepath.Join(dir, `missing.yml`))
	assert.True(os.IsNotExist(err))
}

func TestConfigurationErrors(t *testing.T) {
	assert := require.New(t)

	config := DefaultConfiguration()
	config.CreateTimeout = `soon`
	_, err := config.ServiceOptions()
	assert.NotNil(err)

	config = DefaultConfiguration()
	config.Source = `ftp`
	_, err = config.Fetcher()
	assert.NotNil(err)

	config.Source = fetch.LocalSource
	_, err = config.Fetcher()
	assert.NotNil(err)

	config = DefaultConfiguration()
	fetcher, err := config.Fetcher()
	assert.Nil(err)
	assert.Equal(fetch.CernSource, fetcher.Source())
}

func TestNewServiceFromConfig(t *testing.T) {
	assert := require.New(t)
	root := newTestSource(t)
	defer os.RemoveAll(root)

	config := DefaultConfiguration()
	config.Database = `memory://`
	config.Source = fetch.LocalSource
	config.SourceDirectory = root

	service, db, err := NewServiceFromConfig(config)
	assert.Nil(err)
	defer db.Close()

	metadata, err := service.CreateDataset(context.Background(), `c2`, `data.csv`)
	assert.Nil(err)
	assert.Equal(`local:c2:data`, metadata.DatasetID)
	assert.Equal(`c2`, metadata.CollectionMetadata.Name)

	config.Database = `nosuchdb://`
	_, _, err = NewServiceFromConfig(config)
	assert.NotNil(err)
}
