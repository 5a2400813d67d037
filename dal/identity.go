package dal

import (
	"fmt"
	"path/filepath"
	"strings"
)

var URNSeparator = `:`
var LockKeySeparator = `-`

// Builds the URN of a collection: <source>:<collectionId>:
func MakeCollectionID(source string, collectionID string) (string, error) {
	if err := validateURNSegment(`source`, source); err != nil {
		return ``, err
	}

	if err := validateURNSegment(`collection ID`, collectionID); err != nil {
		return ``, err
	}

	return source + URNSeparator + collectionID + URNSeparator, nil
}

// Builds the URN of a dataset: <source>:<collectionId>:<fileNameWithoutExtension>
func MakeDatasetID(source string, collectionID string, fileName string) (string, error) {
	if prefix, err := MakeCollectionID(source, collectionID); err == nil {
		name := FileNameWithoutExtension(filepath.Base(fileName))

		if name == `` {
			return ``, fmt.Errorf("Cannot derive a dataset ID from file name %q", fileName)
		}

		return prefix + name, nil
	} else {
		return ``, err
	}
}

// Recovers the collection URN from a dataset URN by truncating it right after
// its second separator.  Returns the input unchanged if it has fewer than two.
func CollectionIDFromDatasetID(datasetID string) string {
	first := strings.Index(datasetID, URNSeparator)

	if first < 0 {
		return datasetID
	}

	second := strings.Index(datasetID[first+1:], URNSeparator)

	if second < 0 {
		return datasetID
	}

	return datasetID[:first+1+second+1]
}

// The in-flight deduplication key of a dataset creation.
func LockKey(collectionID string, fileName string) string {
	return collectionID + LockKeySeparator + fileName
}

func FileNameWithoutExtension(fileName string) string {
	if i := strings.LastIndex(fileName, `.`); i > 0 {
		return fileName[:i]
	}

	return fileName
}

func validateURNSegment(name string, value string) error {
	if value == `` {
		return fmt.Errorf("URN %s cannot be empty", name)
	} else if strings.Contains(value, URNSeparator) {
		return fmt.Errorf("URN %s %q cannot contain %q", name, value, URNSeparator)
	}

	return nil
}
