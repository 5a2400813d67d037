package dal

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

func TestRecord(t *testing.T) {
	assert := require.New(t)
	oid := bson.NewObjectId()

	record := NewRecord(oid)
	record[`name`] = `alice`
	record[`energy`] = int64(42)
	record[`missing`] = nil

	assert.Equal(oid.Hex(), record.ID())
	assert.True(record.Has(`name`))
	assert.False(record.Has(`missing`))
	assert.False(record.Has(`nope`))
	assert.Equal(int64(42), record.Int(`energy`))
	assert.Equal(int64(0), record.Int(`nope`))
	assert.Nil(record.OptInt(`missing`))
	assert.Nil(record.OptString(`nope`))
	assert.Equal(`alice`, *record.OptString(`name`))

	assert.Equal([]string{IdentityField, `energy`, `missing`, `name`}, record.Keys())
	assert.Equal([]string{`energy`, `missing`, `name`}, record.Fields().Keys())

	strings := record.Strings()
	assert.Equal(oid.Hex(), strings[IdentityField])
	assert.Equal(`42`, strings[`energy`])
	assert.Equal(``, strings[`missing`])

	copied := record.Copy()
	copied[`name`] = `bob`
	assert.Equal(`alice`, record.String(`name`))

	assert.Empty(NewRecord(nil))
}

func TestCollectionMetadataRecord(t *testing.T) {
	assert := require.New(t)
	events := int64(1000)

	metadata := &CollectionMetadata{
		ID:          `cern-open-data:1:`,
		Name:        `Run2011A`,
		Year:        2011,
		EventsCount: &events,
		DOI:         `10.7483/X`,
	}

	record := metadata.ToRecord()
	assert.Equal(`cern-open-data:1:`, record.ID())

	back, err := CollectionMetadataFromRecord(record)
	assert.Nil(err)
	assert.Equal(metadata, back)

	metadata.EventsCount = nil
	record = metadata.ToRecord()
	assert.False(record.Has(`eventsCount`))

	back, err = CollectionMetadataFromRecord(record)
	assert.Nil(err)
	assert.Nil(back.EventsCount)

	_, err = CollectionMetadataFromRecord(Record{`name`: `x`})
	assert.NotNil(err)
}

func TestDatasetMetadataRecordFromRecord(t *testing.T) {
	assert := require.New(t)

	metadata := (&DatasetMetadata{
		DatasetID:       `local:c:d`,
		FileName:        `d.json`,
		Type:            JsonType,
		SizeInBytes:     10,
		ImportTimestamp: 1500000000000,
	}).WithCsvMetadata(3, `a,b,c`)

	attached := metadata.WithCollection(&CollectionMetadata{ID: `local:c:`})

	record := attached.ToRecord()
	assert.False(record.Has(`collectionMetadata`))
	assert.Equal(`JSON`, record.String(`type`))

	back, err := DatasetMetadataFromRecord(record)
	assert.Nil(err)
	assert.Equal(metadata, back)

	record[`type`] = `XLS`
	_, err = DatasetMetadataFromRecord(record)
	assert.NotNil(err)

	_, err = DatasetMetadataFromRecord(Record{`type`: `CSV`})
	assert.NotNil(err)
}
