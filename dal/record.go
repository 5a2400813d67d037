package dal

import (
	"fmt"
	"sort"

	"github.com/ghetzel/go-stockutil/stringutil"
	"github.com/ghetzel/go-stockutil/typeutil"
)

var IdentityField = `_id`

// A single document as it is exchanged with a backend.
type Record map[string]interface{}

type hexer interface {
	Hex() string
}

func NewRecord(id interface{}) Record {
	record := make(Record)

	if id != nil {
		record[IdentityField] = id
	}

	return record
}

func (self Record) ID() string {
	return Stringify(self[IdentityField])
}

func (self Record) Has(key string) bool {
	v, ok := self[key]
	return ok && v != nil
}

func (self Record) String(key string) string {
	return Stringify(self[key])
}

func (self Record) Int(key string) int64 {
	if v, ok := self[key]; ok && v != nil {
		if i, err := stringutil.ConvertToInteger(v); err == nil {
			return i
		}
	}

	return 0
}

func (self Record) OptInt(key string) *int64 {
	if self.Has(key) {
		v := self.Int(key)
		return &v
	}

	return nil
}

func (self Record) OptString(key string) *string {
	if self.Has(key) {
		v := self.String(key)
		return &v
	}

	return nil
}

// Returns a copy of this record without the identity field.
func (self Record) Fields() Record {
	fields := make(Record, len(self))

	for k, v := range self {
		if k != IdentityField {
			fields[k] = v
		}
	}

	return fields
}

func (self Record) Copy() Record {
	out := make(Record, len(self))

	for k, v := range self {
		out[k] = v
	}

	return out
}

func (self Record) Keys() []string {
	keys := make([]string, 0, len(self))

	for k := range self {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

// Every field (identity included) rendered as a string.
func (self Record) Strings() map[string]string {
	out := make(map[string]string, len(self))

	for k, v := range self {
		out[k] = Stringify(v)
	}

	return out
}

func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ``
	case string:
		return v
	case hexer:
		return v.Hex()
	case fmt.Stringer:
		return v.String()
	default:
		return typeutil.String(v)
	}
}

func (self *CollectionMetadata) ToRecord() Record {
	record := NewRecord(self.ID)
	record[`name`] = self.Name
	record[`shortDescription`] = self.ShortDescription
	record[`longDescription`] = self.LongDescription
	record[`year`] = self.Year
	record[`experimentName`] = self.ExperimentName
	record[`type`] = self.Type
	record[`keyword`] = self.Keyword
	record[`tag`] = self.Tag
	record[`citeText`] = self.CiteText
	record[`doi`] = self.DOI
	record[`license`] = self.License

	if self.EventsCount != nil {
		record[`eventsCount`] = *self.EventsCount
	}

	return record
}

func CollectionMetadataFromRecord(record Record) (*CollectionMetadata, error) {
	if record.ID() == `` {
		return nil, fmt.Errorf("Collection metadata record has no %s", IdentityField)
	}

	return &CollectionMetadata{
		ID:               record.ID(),
		Name:             record.String(`name`),
		ShortDescription: record.String(`shortDescription`),
		LongDescription:  record.String(`longDescription`),
		Year:             int(record.Int(`year`)),
		ExperimentName:   record.String(`experimentName`),
		EventsCount:      record.OptInt(`eventsCount`),
		Type:             record.String(`type`),
		Keyword:          record.String(`keyword`),
		Tag:              record.String(`tag`),
		CiteText:         record.String(`citeText`),
		DOI:              record.String(`doi`),
		License:          record.String(`license`),
	}, nil
}

// The persisted form never carries the attached collection metadata.
func (self *DatasetMetadata) ToRecord() Record {
	record := NewRecord(self.DatasetID)
	record[`fileName`] = self.FileName
	record[`type`] = string(self.Type)
	record[`sizeInBytes`] = self.SizeInBytes
	record[`importTimestamp`] = self.ImportTimestamp

	if self.NumberOfColumns != nil {
		record[`numberOfColumns`] = *self.NumberOfColumns
	}

	if self.CommaSeparatedColumnNames != nil {
		record[`commaSeparatedColumnNames`] = *self.CommaSeparatedColumnNames
	}

	return record
}

func DatasetMetadataFromRecord(record Record) (*DatasetMetadata, error) {
	if record.ID() == `` {
		return nil, fmt.Errorf("Dataset metadata record has no %s", IdentityField)
	}

	if datasetType, err := ParseDatasetType(record.String(`type`)); err == nil {
		return &DatasetMetadata{
			DatasetID:                 record.ID(),
			FileName:                  record.String(`fileName`),
			Type:                      datasetType,
			SizeInBytes:               record.Int(`sizeInBytes`),
			NumberOfColumns:           record.OptInt(`numberOfColumns`),
			CommaSeparatedColumnNames: record.OptString(`commaSeparatedColumnNames`),
			ImportTimestamp:           record.Int(`importTimestamp`),
		}, nil
	} else {
		return nil, err
	}
}
