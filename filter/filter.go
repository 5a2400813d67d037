package filter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var CriteriaSeparator = `/`
var ModifierDelimiter = `:`
var ValueSeparator = `|`
var QueryUnescapeValues = false
var AllValue = `all`

type Criterion struct {
	Type     string        `json:"type,omitempty"`
	Length   int           `json:"length,omitempty"`
	Field    string        `json:"field"`
	Operator string        `json:"operator,omitempty"`
	Values   []interface{} `json:"values"`
}

type Filter struct {
	Spec          string
	MatchAll      bool
	Criteria      []Criterion
	Sort          []string
	Fields        []string
	Options       map[string]interface{}
	IdentityField string
}

func MakeFilter(spec string) *Filter {
	return &Filter{
		Spec:     spec,
		Criteria: make([]Criterion, 0),
		Sort:     make([]string, 0),
		Fields:   make([]string, 0),
		Options:  make(map[string]interface{}),
	}
}

func All() *Filter {
	f := MakeFilter(AllValue)
	f.MatchAll = true
	return f
}

func (self *Filter) IsMatchAll() bool {
	return self.MatchAll || self.Spec == AllValue
}

func (self *Filter) String() string {
	if self.Spec != `` {
		return self.Spec
	}

	return AllValue
}

// Filter syntax definition
//
// filter     ::= ([sort]field/value | [sort]type:field/value | [sort]type:field/comparator:value)+
// sort       ::= ASCII plus (+), minus (-)
// field      ::= ? US-ASCII field name ?;
// value      ::= ? UTF-8 field value ?;
// type       ::= str | bool | int | float | date
// comparator :=  is | not | gt | gte | lt | lte | prefix | suffix | contains | range
//
func Parse(spec string) (*Filter, error) {
	spec = strings.TrimPrefix(spec, CriteriaSeparator)

	switch spec {
	case ``:
		return nil, fmt.Errorf("Empty filter spec")
	case AllValue:
		return All(), nil
	}

	rv := MakeFilter(spec)
	criteria := strings.Split(spec, CriteriaSeparator)

	if len(criteria)%2 != 0 {
		return nil, fmt.Errorf("Invalid filter spec %q: expected field/value pairs", spec)
	}

	for i := 0; i < len(criteria); i += 2 {
		if criterion, err := parseCriterion(criteria[i], criteria[i+1], rv); err == nil {
			rv.Criteria = append(rv.Criteria, criterion)
		} else {
			return nil, err
		}
	}

	return rv, nil
}

func parseCriterion(fieldToken string, valueToken string, rv *Filter) (Criterion, error) {
	var criterion Criterion
	var sortAsc *bool

	if strings.HasPrefix(fieldToken, `+`) {
		v := true
		sortAsc = &v
		fieldToken = fieldToken[1:]
	} else if strings.HasPrefix(fieldToken, `-`) {
		v := false
		sortAsc = &v
		fieldToken = fieldToken[1:]
	}

	if parts := strings.SplitN(fieldToken, ModifierDelimiter, 2); len(parts) == 1 {
		criterion.Field = parts[0]
	} else if typeLength := strings.SplitN(parts[0], `#`, 2); len(typeLength) == 1 {
		criterion.Type = parts[0]
		criterion.Field = parts[1]
	} else if v, err := strconv.ParseUint(typeLength[1], 10, 32); err == nil {
		criterion.Type = typeLength[0]
		criterion.Length = int(v)
		criterion.Field = parts[1]
	} else {
		return criterion, err
	}

	if criterion.Field == `` {
		return criterion, fmt.Errorf("Criterion is missing a field name")
	}

	if sortAsc != nil {
		if *sortAsc {
			rv.Sort = append(rv.Sort, criterion.Field)
		} else {
			rv.Sort = append(rv.Sort, `-`+criterion.Field)
		}
	}

	var values []string

	if parts := strings.SplitN(valueToken, ModifierDelimiter, 2); len(parts) == 1 {
		values = strings.Split(parts[0], ValueSeparator)
	} else {
		criterion.Operator = parts[0]
		values = strings.Split(parts[1], ValueSeparator)
	}

	for _, value := range values {
		if QueryUnescapeValues {
			if v, err := url.QueryUnescape(value); err == nil {
				value = v
			} else {
				return criterion, err
			}
		}

		criterion.Values = append(criterion.Values, value)
	}

	return criterion, nil
}
