package backends

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fandreuz/opendata/dal"
	"gopkg.in/mgo.v2/bson"
)

// Evaluates a compiled query document against a single record.
type matcher func(record dal.Record) bool

// Compiles a MongoDB-style query document into a matcher. Unsupported or
// malformed operators are reported here rather than at evaluation time.
func compileQuery(query map[string]interface{}) (matcher, error) {
	return compileDocument(query)
}

func compileDocument(doc map[string]interface{}) (matcher, error) {
	matchers := make([]matcher, 0, len(doc))

	for _, key := range sortedKeys(doc) {
		value := doc[key]

		switch key {
		case `$and`, `$or`, `$nor`:
			clauses, ok := asList(value)

			if !ok || len(clauses) == 0 {
				return nil, fmt.Errorf("%s requires a non-empty array of documents", key)
			}

			subs := make([]matcher, 0, len(clauses))

			for _, clause := range clauses {
				if subdoc, ok := asDocument(clause); ok {
					if m, err := compileDocument(subdoc); err == nil {
						subs = append(subs, m)
					} else {
						return nil, err
					}
				} else {
					return nil, fmt.Errorf("%s entries must be documents", key)
				}
			}

			switch key {
			case `$and`:
				matchers = append(matchers, allOf(subs))
			case `$or`:
				matchers = append(matchers, anyOf(subs))
			default:
				or := anyOf(subs)
				matchers = append(matchers, func(r dal.Record) bool {
					return !or(r)
				})
			}

		default:
			if strings.HasPrefix(key, `$`) {
				return nil, fmt.Errorf("unknown top level operator: %s", key)
			}

			if m, err := compileField(key, value); err == nil {
				matchers = append(matchers, m)
			} else {
				return nil, err
			}
		}
	}

	return allOf(matchers), nil
}

func compileField(field string, condition interface{}) (matcher, error) {
	if doc, ok := asDocument(condition); ok && isOperatorDocument(doc) {
		return compileOperators(field, doc)
	}

	if re, ok := condition.(bson.RegEx); ok {
		return compileRegex(field, re.Pattern, re.Options)
	}

	return func(r dal.Record) bool {
		value, present := lookup(r, field)
		return valueEquals(value, present, condition)
	}, nil
}

func compileOperators(field string, ops map[string]interface{}) (matcher, error) {
	matchers := make([]matcher, 0, len(ops))

	for _, op := range sortedKeys(ops) {
		arg := ops[op]

		switch op {
		case `$eq`:
			matchers = append(matchers, func(r dal.Record) bool {
				value, present := lookup(r, field)
				return valueEquals(value, present, arg)
			})

		case `$ne`:
			matchers = append(matchers, func(r dal.Record) bool {
				value, present := lookup(r, field)
				return !valueEquals(value, present, arg)
			})

		case `$gt`, `$gte`, `$lt`, `$lte`:
			cmpop := op

			matchers = append(matchers, func(r dal.Record) bool {
				if value, present := lookup(r, field); present {
					return anyElement(value, func(v interface{}) bool {
						return compareValues(cmpop, v, arg)
					})
				}

				return false
			})

		case `$in`, `$nin`:
			candidates, ok := asList(arg)

			if !ok {
				return nil, fmt.Errorf("%s needs an array", op)
			}

			negate := (op == `$nin`)

			matchers = append(matchers, func(r dal.Record) bool {
				value, present := lookup(r, field)

				for _, candidate := range candidates {
					if valueEquals(value, present, candidate) {
						return !negate
					}
				}

				return negate
			})

		case `$exists`:
			want, err := truthy(arg)

			if err != nil {
				return nil, err
			}

			matchers = append(matchers, func(r dal.Record) bool {
				_, present := lookup(r, field)
				return present == want
			})

		case `$not`:
			var inner matcher
			var err error

			if re, ok := arg.(bson.RegEx); ok {
				inner, err = compileRegex(field, re.Pattern, re.Options)
			} else if doc, ok := asDocument(arg); ok && isOperatorDocument(doc) {
				inner, err = compileOperators(field, doc)
			} else {
				err = fmt.Errorf("$not needs a regex or a document")
			}

			if err != nil {
				return nil, err
			}

			matchers = append(matchers, func(r dal.Record) bool {
				return !inner(r)
			})

		case `$regex`:
			var pattern string
			var options string

			switch v := arg.(type) {
			case string:
				pattern = v
			case bson.RegEx:
				pattern = v.Pattern
				options = v.Options
			default:
				return nil, fmt.Errorf("$regex has to be a string")
			}

			if o, ok := ops[`$options`]; ok {
				if s, ok := o.(string); ok {
					options = s
				} else {
					return nil, fmt.Errorf("$options has to be a string")
				}
			}

			if m, err := compileRegex(field, pattern, options); err == nil {
				matchers = append(matchers, m)
			} else {
				return nil, err
			}

		case `$options`:
			if _, ok := ops[`$regex`]; !ok {
				return nil, fmt.Errorf("$options needs a $regex")
			}

		default:
			return nil, fmt.Errorf("unknown operator: %s", op)
		}
	}

	return allOf(matchers), nil
}

func compileRegex(field string, pattern string, options string) (matcher, error) {
	flags := ``

	for _, opt := range options {
		switch opt {
		case 'i', 'm', 's':
			flags += string(opt)
		default:
			return nil, fmt.Errorf("unsupported regex option %q", opt)
		}
	}

	if flags != `` {
		pattern = `(?` + flags + `)` + pattern
	}

	rx, err := regexp.Compile(pattern)

	if err != nil {
		return nil, err
	}

	return func(r dal.Record) bool {
		if value, present := lookup(r, field); present {
			return anyElement(value, func(v interface{}) bool {
				if s, ok := v.(string); ok {
					return rx.MatchString(s)
				}

				return false
			})
		}

		return false
	}, nil
}

func allOf(matchers []matcher) matcher {
	return func(r dal.Record) bool {
		for _, m := range matchers {
			if !m(r) {
				return false
			}
		}

		return true
	}
}

func anyOf(matchers []matcher) matcher {
	return func(r dal.Record) bool {
		for _, m := range matchers {
			if m(r) {
				return true
			}
		}

		return false
	}
}

// Resolves a field (dotted paths descend into subdocuments) and reports
// whether it is present.
func lookup(record dal.Record, field string) (interface{}, bool) {
	if value, ok := record[field]; ok {
		return value, true
	}

	var current interface{} = map[string]interface{}(record)

	for _, part := range strings.Split(field, `.`) {
		if doc, ok := asDocument(current); ok {
			if value, ok := doc[part]; ok {
				current = value
				continue
			}
		}

		return nil, false
	}

	return current, true
}

func valueEquals(value interface{}, present bool, expected interface{}) bool {
	if expected == nil {
		return !present || value == nil
	} else if !present {
		return false
	}

	want := normalize(expected)

	if reflect.DeepEqual(normalize(value), want) {
		return true
	}

	if list, ok := asList(value); ok {
		for _, item := range list {
			if reflect.DeepEqual(normalize(item), want) {
				return true
			}
		}
	}

	return false
}

func compareValues(op string, value interface{}, bound interface{}) bool {
	var cmp int

	switch a := normalize(value).(type) {
	case float64:
		if b, ok := normalize(bound).(float64); ok {
			switch {
			case a < b:
				cmp = -1
			case a > b:
				cmp = 1
			}
		} else {
			return false
		}
	case string:
		if b, ok := normalize(bound).(string); ok {
			cmp = strings.Compare(a, b)
		} else {
			return false
		}
	case time.Time:
		if b, ok := normalize(bound).(time.Time); ok {
			switch {
			case a.Before(b):
				cmp = -1
			case a.After(b):
				cmp = 1
			}
		} else {
			return false
		}
	default:
		return false
	}

	switch op {
	case `$gt`:
		return cmp > 0
	case `$gte`:
		return cmp >= 0
	case `$lt`:
		return cmp < 0
	default:
		return cmp <= 0
	}
}

func anyElement(value interface{}, fn func(interface{}) bool) bool {
	if list, ok := asList(value); ok {
		for _, item := range list {
			if fn(item) {
				return true
			}
		}

		return false
	}

	return fn(value)
}

func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	case bson.ObjectId:
		return v.Hex()
	case string, float64, bool, time.Time:
		return v
	}

	if doc, ok := asDocument(value); ok {
		out := make(map[string]interface{}, len(doc))

		for k, v := range doc {
			out[k] = normalize(v)
		}

		return out
	}

	if list, ok := asList(value); ok {
		out := make([]interface{}, len(list))

		for i, v := range list {
			out[i] = normalize(v)
		}

		return out
	}

	return value
}

func truthy(value interface{}) (bool, error) {
	switch v := normalize(value).(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %T", value)
	}
}

func isOperatorDocument(doc map[string]interface{}) bool {
	for key := range doc {
		if strings.HasPrefix(key, `$`) {
			return true
		}
	}

	return false
}

func asDocument(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, true
	case bson.M:
		return map[string]interface{}(v), true
	case dal.Record:
		return map[string]interface{}(v), true
	case Query:
		return map[string]interface{}(v), true
	}

	return nil, false
}

func asList(value interface{}) ([]interface{}, bool) {
	if value == nil {
		return nil, false
	} else if list, ok := value.([]interface{}); ok {
		return list, true
	} else if _, ok := value.([]byte); ok {
		return nil, false
	}

	rv := reflect.ValueOf(value)

	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	out := make([]interface{}, rv.Len())

	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}

	return out, true
}

func sortedKeys(doc map[string]interface{}) []string {
	keys := make([]string, 0, len(doc))

	for k := range doc {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}
