package fetch

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fandreuz/opendata/dal"
	"github.com/stretchr/testify/require"
)

var testCernRecord = `{
	"id": "1",
	"metadata": {
		"title": "Test collection",
		"abstract": {"description": "Short"},
		"methodology": {"description": "Long"},
		"date_published": "2012",
		"experiment": ["CMS"],
		"type": {"primary": "Dataset", "secondary": ["Collision"]},
		"keywords": ["higgs", "muons"],
		"collections": ["CMS-Primary-Datasets"],
		"doi": "10.7483/OPENDATA.CMS.TEST",
		"license": {"attribution": "CC0"},
		"distribution": {"number_events": 12345}
	}
}`

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir(``, `opendata-fetch-`)
	require.Nil(t, err)
	return dir
}

func TestMetadataBuilder(t *testing.T) {
	assert := require.New(t)
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, `events.json`)
	assert.Nil(ioutil.WriteFile(path, []byte(`[]`), 0644))

	builder := NewMetadataBuilder(`local`)
	builder.Now = func() time.Time {
		return time.Unix(1500000000, 0)
	}

	metadata, err := builder.Build(`c1`, path)
	assert.Nil(err)
	assert.Equal(`local:c1:events`, metadata.DatasetID)
	assert.Equal(`events.json`, metadata.FileName)
	assert.Equal(dal.JsonType, metadata.Type)
	assert.Equal(int64(2), metadata.SizeInBytes)
	assert.Equal(int64(1500000000000), metadata.ImportTimestamp)
	assert.False(metadata.HasCsvMetadata())

	_, err = builder.Build(`c1`, filepath.Join(dir, `missing.csv`))
	assert.True(dal.IsFetchErr(err))

	_, err = builder.Build(`c1`, filepath.Join(dir, `file.xyz`))
	assert.True(dal.IsFetchErr(err))
}

func TestCernFetcher(t *testing.T) {
	assert := require.New(t)
	var downloads int32

	mux := http.NewServeMux()
	mux.HandleFunc(`/api/records/1`, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, testCernRecord)
	})
	mux.HandleFunc(`/record/1/files/`, func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&downloads, 1)

		switch filepath.Base(req.URL.Path) {
		case `data.csv`:
			fmt.Fprint(w, "a,b\n1,2\n")
		default:
			http.NotFound(w, req)
		}
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	dir := tempDir(t)
	defer os.RemoveAll(dir)

	fetcher := NewCernFetcher(server.URL+`/`, dir)
	fetcher.Client.RetryMax = 0
	assert.Equal(CernSource, fetcher.Source())

	result, err := fetcher.Fetch(context.Background(), `1`, `data.csv`)
	assert.Nil(err)

	assert.Equal(`cern-open-data:1:`, result.Collection.ID)
	assert.Equal(`Test collection`, result.Collection.Name)
	assert.Equal(`Short`, result.Collection.ShortDescription)
	assert.Equal(`Long`, result.Collection.LongDescription)
	assert.Equal(2012, result.Collection.Year)
	assert.Equal(`CMS`, result.Collection.ExperimentName)
	assert.Equal(`Dataset, Collision`, result.Collection.Type)
	assert.Equal(`higgs, muons`, result.Collection.Keyword)
	assert.Equal(`CC0`, result.Collection.License)
	assert.Equal(int64(12345), *result.Collection.EventsCount)

	assert.Equal(`cern-open-data:1:data`, result.Dataset.DatasetID)
	assert.Equal(dal.CsvType, result.Dataset.Type)
	assert.Equal(int64(8), result.Dataset.SizeInBytes)
	assert.Equal(filepath.Join(dir, `1`, `data.csv`), result.LocalFile)

	data, err := ioutil.ReadFile(result.LocalFile)
	assert.Nil(err)
	assert.Equal("a,b\n1,2\n", string(data))

	// unknown extensions fail before any download
	before := atomic.LoadInt32(&downloads)
	_, err = fetcher.Fetch(context.Background(), `1`, `data.xyz`)
	assert.True(dal.IsFetchErr(err))
	assert.Equal(before, atomic.LoadInt32(&downloads))

	// failed downloads leave nothing behind
	_, err = fetcher.Fetch(context.Background(), `1`, `missing.csv`)
	assert.True(dal.IsFetchErr(err))

	entries, err := ioutil.ReadDir(filepath.Join(dir, `1`))
	assert.Nil(err)
	assert.Len(entries, 1)
	assert.Equal(`data.csv`, entries[0].Name())

	_, err = fetcher.Fetch(context.Background(), `2`, `data.csv`)
	assert.True(dal.IsFetchErr(err))

	_, err = fetcher.Fetch(context.Background(), `a:b`, `data.csv`)
	assert.True(dal.IsFetchErr(err))
}

func TestLocalFetcher(t *testing.T) {
	assert := require.New(t)
	root := tempDir(t)
	defer os.RemoveAll(root)

	assert.Nil(os.MkdirAll(filepath.Join(root, `c1`), 0755))
	assert.Nil(ioutil.WriteFile(filepath.Join(root, `c1`, `data.csv`), []byte("a\n1\n"), 0644))
	assert.Nil(ioutil.WriteFile(filepath.Join(root, `c1`, CollectionMetadataFile), []byte("name: Local test\nyear: 2020\neventsCount: 5\nlicense: MIT\n"), 0644))

	assert.Nil(os.MkdirAll(filepath.Join(root, `bare`), 0755))
	assert.Nil(ioutil.WriteFile(filepath.Join(root, `bare`, `x.json`), []byte("[]"), 0644))

	fetcher := NewLocalFetcher(root)
	assert.Equal(LocalSource, fetcher.Source())

	result, err := fetcher.Fetch(context.Background(), `c1`, `data.csv`)
	assert.Nil(err)
	assert.Equal(`local:c1:`, result.Collection.ID)
	assert.Equal(`Local test`, result.Collection.Name)
	assert.Equal(2020, result.Collection.Year)
	assert.Equal(int64(5), *result.Collection.EventsCount)
	assert.Equal(`MIT`, result.Collection.License)
	assert.Equal(`local:c1:data`, result.Dataset.DatasetID)
	assert.Equal(int64(4), result.Dataset.SizeInBytes)

	result, err = fetcher.Fetch(context.Background(), `bare`, `x.json`)
	assert.Nil(err)
	assert.Equal(`local:bare:`, result.Collection.ID)
	assert.Equal(`bare`, result.Collection.Name)
	assert.Equal(dal.JsonType, result.Dataset.Type)

	for _, args := range [][]string{
		{`c1`, `missing.csv`},
		{`c1`, `data.txt`},
		{`c1`, `../c1/data.csv`},
		{`nope`, `data.csv`},
		{`..`, `data.csv`},
		{``, `data.csv`},
	} {
		_, err := fetcher.Fetch(context.Background(), args[0], args[1])
		assert.True(dal.IsFetchErr(err), fmt.Sprintf("%v", args))
	}
}
