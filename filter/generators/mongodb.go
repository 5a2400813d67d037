package generators

import (
	"encoding/json"
	"fmt"

	"github.com/ghetzel/go-stockutil/stringutil"
	"github.com/fandreuz/opendata/filter"
)

var MongoIdentityField = `_id`

// MongoDB Query Generator

type MongoDB struct {
	filter.Generator
	collection string
	fields     []string
	criteria   []map[string]interface{}
	options    map[string]interface{}
	values     []interface{}
}

func NewMongoDBGenerator() *MongoDB {
	return &MongoDB{}
}

func (self *MongoDB) Initialize(collectionName string) error {
	self.Reset()
	self.collection = collectionName
	self.fields = make([]string, 0)
	self.criteria = make([]map[string]interface{}, 0)
	self.options = make(map[string]interface{})
	self.values = make([]interface{}, 0)

	return nil
}

func (self *MongoDB) Finalize(flt *filter.Filter) error {
	var query map[string]interface{}

	switch {
	case flt.IsMatchAll(), len(self.criteria) == 0:
		query = map[string]interface{}{}
	case len(self.criteria) == 1:
		query = self.criteria[0]
	default:
		query = map[string]interface{}{
			`$and`: self.criteria,
		}
	}

	if data, err := json.MarshalIndent(query, ``, `    `); err == nil {
		self.Push(data)
	} else {
		return err
	}

	return nil
}

func (self *MongoDB) WithField(field string) error {
	self.fields = append(self.fields, mongoField(field))
	return nil
}

func (self *MongoDB) Fields() []string {
	return self.fields
}

func (self *MongoDB) SetOption(key string, value interface{}) error {
	self.options[key] = value
	return nil
}

func (self *MongoDB) GetValues() []interface{} {
	return self.values
}

func (self *MongoDB) WithCriterion(criterion filter.Criterion) error {
	var c map[string]interface{}
	var err error

	criterion.Field = mongoField(criterion.Field)
	values := make([]interface{}, len(criterion.Values))

	for i, value := range criterion.Values {
		switch value.(type) {
		case string:
			if criterion.Type == `str` {
				values[i] = value
			} else {
				values[i] = stringutil.Autotype(value)
			}
		default:
			values[i] = value
		}
	}

	criterion.Values = values

	switch criterion.Operator {
	case `is`, ``:
		c, err = mongoCriterionOperatorIs(self, criterion)
	case `not`:
		c, err = mongoCriterionOperatorNot(self, criterion)
	case `contains`, `prefix`, `suffix`:
		c, err = mongoCriterionOperatorPattern(self, criterion.Operator, criterion)
	case `gt`, `gte`, `lt`, `lte`, `range`:
		c, err = mongoCriterionOperatorRange(self, criterion, criterion.Operator)
	default:
		return fmt.Errorf("Unimplemented operator '%s'", criterion.Operator)
	}

	if err != nil {
		return err
	} else {
		self.criteria = append(self.criteria, c)
	}

	return nil
}

func mongoField(field string) string {
	if field == `id` {
		return MongoIdentityField
	}

	return field
}
