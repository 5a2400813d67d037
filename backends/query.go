package backends

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fandreuz/opendata/dal"
	"github.com/fandreuz/opendata/filter"
	"github.com/fandreuz/opendata/filter/generators"
	"github.com/ghetzel/go-stockutil/log"
	"gopkg.in/mgo.v2/bson"
)

var DefaultFilterType = `str`

// Parses a predicate into a query document. Expressions starting with "{" are
// MongoDB extended JSON query documents, anything else is read as a filter
// expression (e.g. "energy/gt:10/run/prefix:2011"). Operators are not checked
// here; the backend running the query reports the ones it cannot evaluate.
//
// Row values are stored as the strings read from the CSV file, so filter
// values are compared as strings unless a type is given (e.g. "int:run/3").
func ParseQuery(expr string) (Query, error) {
	expr = strings.TrimSpace(expr)

	if expr == `` {
		return nil, &dal.BadQueryError{Query: expr, Cause: fmt.Errorf("empty query")}
	}

	query := make(Query)

	if strings.HasPrefix(expr, `{`) {
		if err := bson.UnmarshalJSON([]byte(expr), &query); err != nil {
			return nil, &dal.BadQueryError{Query: expr, Cause: err}
		}
	} else if flt, err := filter.Parse(expr); err == nil {
		for i, criterion := range flt.Criteria {
			if criterion.Type == `` {
				flt.Criteria[i].Type = DefaultFilterType
			}
		}

		if data, err := filter.Render(generators.NewMongoDBGenerator(), ``, flt); err == nil {
			log.Debugf("query %q rendered as: %s", expr, string(data))

			if err := json.Unmarshal(data, &query); err != nil {
				return nil, &dal.BadQueryError{Query: expr, Cause: err}
			}
		} else {
			return nil, &dal.BadQueryError{Query: expr, Cause: err}
		}
	} else {
		return nil, &dal.BadQueryError{Query: expr, Cause: err}
	}

	return query, nil
}
