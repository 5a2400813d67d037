package generators

import (
	"fmt"
	"regexp"

	"github.com/fandreuz/opendata/filter"
)

func isNullValue(criterion filter.Criterion) bool {
	return len(criterion.Values) == 1 && (criterion.Values[0] == nil || criterion.Values[0] == `null`)
}

func mongoCriterionOperatorIs(gen *MongoDB, criterion filter.Criterion) (map[string]interface{}, error) {
	c := make(map[string]interface{})

	if len(criterion.Values) == 0 {
		return nil, fmt.Errorf("No values given for criterion %v", criterion.Field)
	} else if isNullValue(criterion) {
		gen.values = append(gen.values, nil)

		c[`$or`] = []map[string]interface{}{
			{
				criterion.Field: map[string]interface{}{
					`$exists`: false,
				},
			}, {
				criterion.Field: nil,
			},
		}
	} else {
		gen.values = append(gen.values, criterion.Values...)

		if len(criterion.Values) == 1 {
			c[criterion.Field] = criterion.Values[0]
		} else {
			c[criterion.Field] = map[string]interface{}{
				`$in`: criterion.Values,
			}
		}
	}

	return c, nil
}

func mongoCriterionOperatorNot(gen *MongoDB, criterion filter.Criterion) (map[string]interface{}, error) {
	c := make(map[string]interface{})

	if len(criterion.Values) == 0 {
		return nil, fmt.Errorf("The not criterion must have at least one value")
	} else if isNullValue(criterion) {
		gen.values = append(gen.values, nil)

		c[`$and`] = []map[string]interface{}{
			{
				criterion.Field: map[string]interface{}{
					`$exists`: true,
				},
			}, {
				criterion.Field: map[string]interface{}{
					`$ne`: nil,
				},
			},
		}
	} else {
		gen.values = append(gen.values, criterion.Values...)

		if len(criterion.Values) == 1 {
			c[criterion.Field] = map[string]interface{}{
				`$ne`: criterion.Values[0],
			}
		} else {
			c[criterion.Field] = map[string]interface{}{
				`$nin`: criterion.Values,
			}
		}
	}

	return c, nil
}

func mongoCriterionOperatorPattern(gen *MongoDB, opname string, criterion filter.Criterion) (map[string]interface{}, error) {
	if len(criterion.Values) == 0 {
		return nil, fmt.Errorf("The %s criterion must have at least one value", opname)
	}

	orRegexp := make([]map[string]interface{}, 0)

	for _, value := range criterion.Values {
		gen.values = append(gen.values, value)
		quoted := regexp.QuoteMeta(fmt.Sprintf("%v", value))
		var valueClause string

		switch opname {
		case `contains`:
			valueClause = fmt.Sprintf(".*%s.*", quoted)
		case `prefix`:
			valueClause = fmt.Sprintf("^%s.*", quoted)
		case `suffix`:
			valueClause = fmt.Sprintf(".*%s$", quoted)
		default:
			return nil, fmt.Errorf("Unsupported pattern operator %q", opname)
		}

		orRegexp = append(orRegexp, map[string]interface{}{
			criterion.Field: map[string]interface{}{
				`$regex`:   valueClause,
				`$options`: `si`,
			},
		})
	}

	if len(orRegexp) == 1 {
		return orRegexp[0], nil
	}

	return map[string]interface{}{
		`$or`: orRegexp,
	}, nil
}

func mongoCriterionOperatorRange(gen *MongoDB, criterion filter.Criterion, operator string) (map[string]interface{}, error) {
	switch operator {
	case `range`:
		if l := len(criterion.Values); l > 0 && (l%2 == 0) {
			orClauses := make([]map[string]interface{}, 0)

			for i := 0; i < l; i += 2 {
				gen.values = append(gen.values, criterion.Values[i], criterion.Values[i+1])

				orClauses = append(orClauses, map[string]interface{}{
					criterion.Field: map[string]interface{}{
						`$gte`: criterion.Values[i],
						`$lt`:  criterion.Values[i+1],
					},
				})
			}

			if len(orClauses) == 1 {
				return orClauses[0], nil
			}

			return map[string]interface{}{
				`$or`: orClauses,
			}, nil
		} else {
			return nil, fmt.Errorf("Ranging criteria can only accept pairs of values, %d given", l)
		}

	default:
		switch l := len(criterion.Values); l {
		case 0:
			return nil, fmt.Errorf("No values given for criterion %v", criterion.Field)
		case 1:
			gen.values = append(gen.values, criterion.Values[0])

			return map[string]interface{}{
				criterion.Field: map[string]interface{}{
					`$` + operator: criterion.Values[0],
				},
			}, nil
		default:
			return nil, fmt.Errorf("Numeric comparators can only accept one value, %d given", l)
		}
	}
}
