package backends

import (
	"fmt"
	"os"
	"testing"

	"github.com/fandreuz/opendata/dal"
	"github.com/ory/dockertest"
	"github.com/stretchr/testify/require"
)

// Runs the backend conformance suite against a throwaway MongoDB container.
// Needs a reachable Docker daemon, so it only runs when OPENDATA_DOCKER_TESTS
// is set.
func TestMongoBackend(t *testing.T) {
	if os.Getenv(`OPENDATA_DOCKER_TESTS`) == `` {
		t.Skip("OPENDATA_DOCKER_TESTS not set")
	}

	assert := require.New(t)

	pool, err := dockertest.NewPool(``)
	assert.Nil(err)

	resource, err := pool.Run(`mongo`, `3.6`, nil)
	assert.Nil(err)

	defer pool.Purge(resource)

	var backend *MongoBackend

	assert.Nil(pool.Retry(func() error {
		backend = NewMongoBackend(dal.MustParseConnectionString(
			fmt.Sprintf("mongodb://localhost:%s/opendata_test", resource.GetPort(`27017/tcp`)),
		))

		return backend.Initialize()
	}))

	defer backend.Close()

	testBackendConformance(t, backend)
}
