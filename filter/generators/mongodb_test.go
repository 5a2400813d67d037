package generators

import (
	"encoding/json"
	"testing"

	"github.com/fandreuz/opendata/filter"
	"github.com/stretchr/testify/require"
)

func renderMongo(t *testing.T, expr string) map[string]interface{} {
	assert := require.New(t)

	f, err := filter.Parse(expr)
	assert.Nil(err, expr)

	data, err := filter.Render(NewMongoDBGenerator(), `test`, f)
	assert.Nil(err, expr)

	var query map[string]interface{}
	assert.Nil(json.Unmarshal(data, &query), expr)

	return query
}

func TestMongodb(t *testing.T) {
	assert := require.New(t)

	tests := map[string]map[string]interface{}{
		`all`: {},
		`id/abc`: {
			`_id`: `abc`,
		},
		`age/21`: {
			`age`: float64(21),
		},
		`str:age/21`: {
			`age`: `21`,
		},
		`enabled/true`: {
			`enabled`: true,
		},
		`name/not:Bob`: {
			`name`: map[string]interface{}{
				`$ne`: `Bob`,
			},
		},
		`name/Bob|Alice`: {
			`name`: map[string]interface{}{
				`$in`: []interface{}{`Bob`, `Alice`},
			},
		},
		`age/gte:21`: {
			`age`: map[string]interface{}{
				`$gte`: float64(21),
			},
		},
		`name/prefix:Bo`: {
			`name`: map[string]interface{}{
				`$regex`:   `^Bo.*`,
				`$options`: `si`,
			},
		},
		`age/range:1|10`: {
			`age`: map[string]interface{}{
				`$gte`: float64(1),
				`$lt`:  float64(10),
			},
		},
		`a/1/b/2`: {
			`$and`: []interface{}{
				map[string]interface{}{`a`: float64(1)},
				map[string]interface{}{`b`: float64(2)},
			},
		},
	}

	for expr, expected := range tests {
		assert.Equal(expected, renderMongo(t, expr), expr)
	}
}

func TestMongodbErrors(t *testing.T) {
	assert := require.New(t)

	for _, expr := range []string{
		`age/bogus:1`,
		`age/range:1`,
		`age/gt:1|2`,
	} {
		f, err := filter.Parse(expr)
		assert.Nil(err, expr)

		_, err = filter.Render(NewMongoDBGenerator(), `test`, f)
		assert.Error(err, expr)
	}
}
