package dal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatasetTypeForFile(t *testing.T) {
	assert := require.New(t)

	dt, err := DatasetTypeForFile(`events.root`)
	assert.NoError(err)
	assert.Equal(RootType, dt)

	dt, err = DatasetTypeForFile(`/tmp/x/events.csv`)
	assert.NoError(err)
	assert.Equal(CsvType, dt)

	dt, err = DatasetTypeForFile(`events.json`)
	assert.NoError(err)
	assert.Equal(JsonType, dt)

	_, err = DatasetTypeForFile(`events.xlsx`)
	assert.True(IsFetchErr(err))

	_, err = DatasetTypeForFile(`events`)
	assert.True(IsFetchErr(err))
}

func TestSortDatasets(t *testing.T) {
	assert := require.New(t)

	datasets := []*DatasetMetadata{
		{DatasetID: `c`},
		nil,
		{DatasetID: ``},
		{DatasetID: `a`},
		{DatasetID: `b`},
	}

	SortDatasets(datasets)

	assert.Equal(`a`, datasets[0].DatasetID)
	assert.Equal(`b`, datasets[1].DatasetID)
	assert.Equal(`c`, datasets[2].DatasetID)
	assert.Equal(``, datasets[3].DatasetID)
	assert.Nil(datasets[4])
}

func TestDatasetMetadataCopies(t *testing.T) {
	assert := require.New(t)

	original := &DatasetMetadata{
		DatasetID: `s:1:f`,
		FileName:  `f.csv`,
		Type:      CsvType,
	}

	withCsv := original.WithCsvMetadata(2, `a,b`)
	assert.False(original.HasCsvMetadata())
	assert.True(withCsv.HasCsvMetadata())
	assert.EqualValues(2, *withCsv.NumberOfColumns)
	assert.Equal(`a,b`, *withCsv.CommaSeparatedColumnNames)

	collection := &CollectionMetadata{ID: `s:1:`}
	joined := withCsv.WithCollection(collection)
	assert.Nil(withCsv.CollectionMetadata)
	assert.Equal(collection, joined.CollectionMetadata)
	assert.True(joined.HasCsvMetadata())
}

func TestDatasetMetadataRecord(t *testing.T) {
	assert := require.New(t)

	metadata := (&DatasetMetadata{
		DatasetID:       `s:1:f`,
		FileName:        `f.csv`,
		Type:            CsvType,
		SizeInBytes:     42,
		ImportTimestamp: 1500000000000,
	}).WithCsvMetadata(3, `x,y,z`).WithCollection(&CollectionMetadata{ID: `s:1:`})

	record := metadata.ToRecord()
	assert.Equal(`s:1:f`, record.ID())
	_, hasCollection := record[`collectionMetadata`]
	assert.False(hasCollection)

	// backends may hand integers back as a different width
	record[`sizeInBytes`] = float64(42)

	back, err := DatasetMetadataFromRecord(record)
	assert.NoError(err)
	assert.Nil(back.CollectionMetadata)
	assert.EqualValues(42, back.SizeInBytes)
	assert.EqualValues(3, *back.NumberOfColumns)
	assert.Equal(metadata.WithCollection(nil), back)

	bare, err := DatasetMetadataFromRecord((&DatasetMetadata{DatasetID: `s:1:g`, Type: JsonType}).ToRecord())
	assert.NoError(err)
	assert.False(bare.HasCsvMetadata())

	_, err = DatasetMetadataFromRecord(Record{`type`: `CSV`})
	assert.Error(err)
}

func TestColumn(t *testing.T) {
	assert := require.New(t)

	column := &Column{
		Name: `a`,
		Entries: []ColumnEntry{
			{RowID: `01`, Value: `1`},
			{RowID: `02`, Value: `3`},
		},
	}

	assert.Equal(2, column.Len())
	assert.Equal([]string{`1`, `3`}, column.Values())
	assert.Equal(map[string]string{`01`: `1`, `02`: `3`}, column.Map())
}

func TestErrorCategories(t *testing.T) {
	assert := require.New(t)

	cause := NewDatabaseError(nil, "insert failed")
	err := &ConcurrentOperationError{Cause: &TransactionError{Cause: cause}}

	assert.True(IsConcurrentOperationErr(err))
	assert.True(IsTransactionErr(err))
	assert.True(IsDatabaseErr(err))
	assert.False(IsNotFoundErr(err))
	assert.False(IsBadQueryErr(err))

	assert.True(IsBadQueryErr(&BadQueryError{Query: `{`}))
	assert.False(IsNotFoundErr(&BadQueryError{Query: `{`}))
	assert.True(IsConversionUnavailableErr(&ConversionUnavailableError{Type: RootType}))
	assert.Contains((&ConversionUnavailableError{Type: RootType}).Error(), `ROOT`)
}
