package dal

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

type DatasetType string

const (
	RootType DatasetType = `ROOT`
	CsvType  DatasetType = `CSV`
	JsonType DatasetType = `JSON`
)

var DatasetTypes = []DatasetType{RootType, CsvType, JsonType}

func (self DatasetType) Extension() string {
	return strings.ToLower(string(self))
}

func (self DatasetType) String() string {
	return string(self)
}

func ParseDatasetType(value string) (DatasetType, error) {
	for _, t := range DatasetTypes {
		if strings.EqualFold(value, string(t)) {
			return t, nil
		}
	}

	return ``, fmt.Errorf("Unknown dataset type %q", value)
}

// Returns the dataset type matching the extension of the given file name.
func DatasetTypeForFile(fileName string) (DatasetType, error) {
	ext := strings.TrimPrefix(filepath.Ext(fileName), `.`)

	for _, t := range DatasetTypes {
		if ext != `` && ext == t.Extension() {
			return t, nil
		}
	}

	return ``, NewFileTypeNotRecognizedError(fileName)
}

type CollectionMetadata struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription"`
	LongDescription  string `json:"longDescription"`
	Year             int    `json:"year"`
	ExperimentName   string `json:"experimentName"`
	EventsCount      *int64 `json:"eventsCount,omitempty"`
	// Collision, derived or simulated; left free-form.
	Type     string `json:"type"`
	Keyword  string `json:"keyword"`
	Tag      string `json:"tag"`
	CiteText string `json:"citeText"`
	DOI      string `json:"doi"`
	License  string `json:"license"`
}

func SortCollections(collections []*CollectionMetadata) {
	sort.SliceStable(collections, func(i, j int) bool {
		return collections[i].ID < collections[j].ID
	})
}

type DatasetMetadata struct {
	DatasetID   string      `json:"datasetId"`
	FileName    string      `json:"fileName"`
	Type        DatasetType `json:"type"`
	SizeInBytes int64       `json:"sizeInBytes"`

	// only set when the converted file is a non-empty CSV
	NumberOfColumns           *int64  `json:"numberOfColumns,omitempty"`
	CommaSeparatedColumnNames *string `json:"commaSeparatedColumnNames,omitempty"`

	ImportTimestamp int64 `json:"importTimestamp"`

	// joined at read time, never persisted with the dataset
	CollectionMetadata *CollectionMetadata `json:"collectionMetadata,omitempty"`
}

// Returns a shallow copy of this metadata with the given collection attached.
func (self DatasetMetadata) WithCollection(collection *CollectionMetadata) *DatasetMetadata {
	self.CollectionMetadata = collection
	return &self
}

// Returns a shallow copy of this metadata carrying the given CSV header information.
func (self DatasetMetadata) WithCsvMetadata(numberOfColumns int64, columnNames string) *DatasetMetadata {
	self.NumberOfColumns = &numberOfColumns
	self.CommaSeparatedColumnNames = &columnNames
	return &self
}

func (self *DatasetMetadata) HasCsvMetadata() bool {
	return self.NumberOfColumns != nil && self.CommaSeparatedColumnNames != nil
}

func (self *DatasetMetadata) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", self.DatasetID, self.Type, self.SizeInBytes)
}

// Orders by dataset ID, empty IDs and nil entries last.
func SortDatasets(datasets []*DatasetMetadata) {
	sort.SliceStable(datasets, func(i, j int) bool {
		a, b := datasets[i], datasets[j]

		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		case a.DatasetID == ``:
			return false
		case b.DatasetID == ``:
			return true
		default:
			return a.DatasetID < b.DatasetID
		}
	})
}

// Points at the converted content of a dataset on the local filesystem.
type DatasetCoordinates struct {
	ID                string
	LocalFileLocation string
}

func (self DatasetCoordinates) String() string {
	return fmt.Sprintf("%s@%s", self.ID, self.LocalFileLocation)
}

type StoredDataset struct {
	ID          string   `json:"id"`
	ColumnNames []string `json:"columnNames"`
	Rows        int      `json:"rows"`
}

type ColumnEntry struct {
	RowID string `json:"id"`
	Value string `json:"value"`
}

// A single field projected across all rows, ordered by row ID.
type Column struct {
	Name    string        `json:"name"`
	Entries []ColumnEntry `json:"entries"`
}

func (self *Column) Len() int {
	return len(self.Entries)
}

func (self *Column) Values() []string {
	values := make([]string, len(self.Entries))

	for i, entry := range self.Entries {
		values[i] = entry.Value
	}

	return values
}

func (self *Column) Map() map[string]string {
	rv := make(map[string]string, len(self.Entries))

	for _, entry := range self.Entries {
		rv[entry.RowID] = entry.Value
	}

	return rv
}
