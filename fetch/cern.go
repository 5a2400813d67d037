package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/log"
	"github.com/ghetzel/go-stockutil/maputil"
	"github.com/ghetzel/go-stockutil/sliceutil"
	"github.com/ghetzel/go-stockutil/stringutil"
	"github.com/ghetzel/go-stockutil/typeutil"
	"github.com/hashicorp/go-retryablehttp"
)

const CernSource = `cern-open-data`

var DefaultCernURL = `https://opendata.cern.ch`
var DefaultRetryMax = 3

// Fetches datasets from the CERN Open Data portal.
type CernFetcher struct {
	BaseURL           string
	DownloadDirectory string
	Client            *retryablehttp.Client
	builder           *MetadataBuilder
}

func NewCernFetcher(baseURL string, downloadDirectory string) *CernFetcher {
	if baseURL == `` {
		baseURL = DefaultCernURL
	}

	client := retryablehttp.NewClient()
	client.RetryMax = DefaultRetryMax
	client.Logger = &leveledLogger{}

	return &CernFetcher{
		BaseURL:           strings.TrimSuffix(baseURL, `/`),
		DownloadDirectory: downloadDirectory,
		Client:            client,
		builder:           NewMetadataBuilder(CernSource),
	}
}

func (self *CernFetcher) Source() string {
	return CernSource
}

func (self *CernFetcher) Fetch(ctx context.Context, collectionID string, fileName string) (*Result, error) {
	if err := validateCollectionID(CernSource, collectionID); err != nil {
		return nil, err
	} else if err := validateFileName(fileName); err != nil {
		return nil, err
	}

	collection, err := self.collectionMetadata(ctx, collectionID)

	if err != nil {
		return nil, err
	}

	path, err := self.download(ctx, collectionID, fileName)

	if err != nil {
		return nil, err
	}

	dataset, err := self.builder.Build(collectionID, path)

	if err != nil {
		return nil, err
	}

	return &Result{
		Collection: collection,
		Dataset:    dataset,
		LocalFile:  path,
	}, nil
}

func (self *CernFetcher) recordURL(collectionID string) string {
	return fmt.Sprintf("%s/api/records/%s", self.BaseURL, url.PathEscape(collectionID))
}

func (self *CernFetcher) fileURL(collectionID string, fileName string) string {
	return fmt.Sprintf("%s/record/%s/files/%s", self.BaseURL, url.PathEscape(collectionID), url.PathEscape(fileName))
}

func (self *CernFetcher) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, u, nil)

	if err != nil {
		return nil, dal.NewFetchError(err, "An error occurred while parsing the URL")
	}

	response, err := self.Client.Do(req.WithContext(ctx))

	if err != nil {
		return nil, dal.NewFetchError(err, "An error occurred while reading '%s'", u)
	} else if response.StatusCode >= 400 {
		response.Body.Close()
		return nil, dal.NewFetchError(nil, "An error occurred while reading '%s': HTTP %s", u, response.Status)
	}

	return response, nil
}

func (self *CernFetcher) collectionMetadata(ctx context.Context, collectionID string) (*dal.CollectionMetadata, error) {
	u := self.recordURL(collectionID)
	log.Infof("Reading collection metadata from '%s'", u)

	response, err := self.get(ctx, u)

	if err != nil {
		return nil, err
	}

	defer response.Body.Close()

	var record map[string]interface{}

	if err := json.NewDecoder(response.Body).Decode(&record); err != nil {
		return nil, dal.NewFetchError(err, "Malformed collection metadata at '%s'", u)
	}

	return CollectionMetadataFromCernRecord(CernSource, collectionID, record)
}

// Downloads into <download directory>/<collection>/<file>. The body is written
// to a temporary file that is renamed into place once complete, and removed
// if anything goes wrong.
func (self *CernFetcher) download(ctx context.Context, collectionID string, fileName string) (string, error) {
	u := self.fileURL(collectionID, fileName)
	dir := filepath.Join(self.DownloadDirectory, collectionID)
	target := filepath.Join(dir, fileName)

	log.Infof("Downloading URL '%s'", u)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return ``, dal.NewFetchError(err, "An error occurred while creating the directory: %s", dir)
	}

	response, err := self.get(ctx, u)

	if err != nil {
		return ``, err
	}

	defer response.Body.Close()

	partial, err := ioutil.TempFile(dir, fileName+`.part-`)

	if err != nil {
		return ``, dal.NewFetchError(err, "An error occurred while creating the file: %s", target)
	}

	_, err = io.Copy(partial, response.Body)

	if cerr := partial.Close(); err == nil {
		err = cerr
	}

	if err == nil {
		err = os.Rename(partial.Name(), target)
	}

	if err != nil {
		if rerr := os.Remove(partial.Name()); rerr == nil {
			log.Infof("The file '%s' was removed", partial.Name())
		} else if !os.IsNotExist(rerr) {
			log.Warningf("Could not delete the partially downloaded file '%s' (URL='%s')", partial.Name(), u)
		}

		return ``, dal.NewFetchError(err, "An error occurred while reading the file at '%s'", u)
	}

	log.Infof("Download completed: '%s'", u)
	return target, nil
}

// Maps a CERN Open Data record (as returned by /api/records/<id>) onto
// collection metadata.
func CollectionMetadataFromCernRecord(source string, collectionID string, record map[string]interface{}) (*dal.CollectionMetadata, error) {
	id, err := dal.MakeCollectionID(source, collectionID)

	if err != nil {
		return nil, dal.NewFetchError(err, "Invalid collection identity")
	}

	metadata, ok := record[`metadata`].(map[string]interface{})

	if !ok {
		return nil, dal.NewFetchError(nil, "Collection record %s has no metadata", collectionID)
	}

	collection := &dal.CollectionMetadata{
		ID:               id,
		Name:             firstString(metadata, `title`),
		ShortDescription: firstString(metadata, `abstract.description`, `title_additional`),
		LongDescription:  firstString(metadata, `methodology.description`, `abstract.description`),
		ExperimentName:   firstString(metadata, `experiment`),
		Type:             joinStrings(metadata, `type.primary`, `type.secondary`),
		Keyword:          joinStrings(metadata, `keywords`),
		Tag:              joinStrings(metadata, `collections`),
		CiteText:         firstString(metadata, `usage.description`, `note.description`),
		DOI:              firstString(metadata, `doi`),
		License:          firstString(metadata, `license.attribution`),
	}

	if year := firstString(metadata, `date_published`, `date_created`); len(year) >= 4 {
		if v, err := stringutil.ConvertToInteger(year[0:4]); err == nil {
			collection.Year = int(v)
		}
	}

	if events := maputil.DeepGet(metadata, []string{`distribution`, `number_events`}, nil); events != nil {
		if v, err := stringutil.ConvertToInteger(events); err == nil {
			collection.EventsCount = &v
		}
	}

	return collection, nil
}

func valuesAt(data map[string]interface{}, path string) []string {
	value := maputil.DeepGet(data, strings.Split(path, `.`), nil)

	if value == nil {
		return nil
	} else if typeutil.IsArray(value) {
		return sliceutil.CompactString(sliceutil.Stringify(value))
	} else if s := typeutil.String(value); s != `` {
		return []string{s}
	}

	return nil
}

func firstString(data map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if values := valuesAt(data, path); len(values) > 0 {
			return values[0]
		}
	}

	return ``
}

func joinStrings(data map[string]interface{}, paths ...string) string {
	out := make([]string, 0)

	for _, path := range paths {
		out = append(out, valuesAt(data, path)...)
	}

	return strings.Join(out, `, `)
}

// Routes retryablehttp's leveled logging onto the application logger.
type leveledLogger struct{}

func (self *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Errorf("[http] %s %v", msg, keysAndValues)
}

func (self *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Infof("[http] %s %v", msg, keysAndValues)
}

func (self *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Debugf("[http] %s %v", msg, keysAndValues)
}

func (self *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warningf("[http] %s %v", msg, keysAndValues)
}
