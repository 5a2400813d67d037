// The mapper package provides typed stores for the documents persisted by the
// ingestion pipeline: collection metadata, dataset metadata and the per-row
// documents of each dataset.
package mapper

import (
	"github.com/fandreuz/opendata/dal"
)

var CollectionMetadataCollection = `metadata.collections`
var DatasetMetadataCollection = `metadata.datasets`
var RowCollectionPrefix = `dataset.`
var StagingInfix = `.staging.`
var DefaultBatchSize = 500

// Passes through categorized errors and wraps everything else as a database
// error.
func databaseError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	} else if dal.IsNotFoundErr(err) || dal.IsBadQueryErr(err) || dal.IsDatabaseErr(err) {
		return err
	}

	return dal.NewDatabaseError(err, format, args...)
}
