package conversion

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/deckarep/golang-set"
	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/log"
	"github.com/ghetzel/go-stockutil/typeutil"
)

var NestedFieldSeparator = `.`

// Converts a JSON array of objects (or a single object) into a CSV file with
// one row per object. Nested objects are flattened into dotted column names,
// and the header is the sorted union of every object's columns.
type JsonConverter struct {
	// Where converted files are written; the system temporary directory when
	// empty. Every conversion gets a file name of its own.
	OutputDirectory string
}

func (self *JsonConverter) Convert(source string) (string, error) {
	columns := mapset.NewSet()

	if err := eachObject(source, func(row map[string]string) error {
		for key := range row {
			columns.Add(key)
		}

		return nil
	}); err != nil {
		return ``, &dal.ConversionError{Source: source, Cause: err}
	}

	header := make([]string, 0, columns.Cardinality())

	for _, c := range columns.ToSlice() {
		header = append(header, c.(string))
	}

	sort.Strings(header)

	pattern := dal.FileNameWithoutExtension(filepath.Base(source)) + `-*.` + dal.CsvType.Extension()
	out, err := ioutil.TempFile(self.OutputDirectory, pattern)

	if err != nil {
		return ``, &dal.ConversionError{Source: source, Cause: err}
	}

	if err := self.write(out, source, header); err != nil {
		os.Remove(out.Name())
		return ``, &dal.ConversionError{Source: source, Cause: err}
	}

	log.Infof("Converted '%s' into '%s' (%d columns)", source, out.Name(), len(header))
	return out.Name(), nil
}

func (self *JsonConverter) write(out *os.File, source string, header []string) error {
	buffered := bufio.NewWriter(out)
	writer := csv.NewWriter(buffered)

	err := func() error {
		if len(header) == 0 {
			return nil
		}

		if err := writer.Write(header); err != nil {
			return err
		}

		if err := eachObject(source, func(row map[string]string) error {
			record := make([]string, len(header))

			for i, column := range header {
				record[i] = row[column]
			}

			return writer.Write(record)
		}); err != nil {
			return err
		}

		writer.Flush()

		if err := writer.Error(); err != nil {
			return err
		}

		return buffered.Flush()
	}()

	if cerr := out.Close(); err == nil {
		err = cerr
	}

	return err
}

// Streams the objects of a JSON document, calling fn with each one flattened.
func eachObject(path string, fn func(map[string]string) error) error {
	file, err := os.Open(path)

	if err != nil {
		return err
	}

	defer file.Close()

	decoder := json.NewDecoder(bufio.NewReader(file))
	decoder.UseNumber()

	token, err := decoder.Token()

	if err == io.EOF {
		return nil
	} else if err != nil {
		return err
	}

	switch token {
	case json.Delim('['):
		for decoder.More() {
			var object map[string]interface{}

			if err := decoder.Decode(&object); err != nil {
				return err
			}

			if err := fn(flatten(object)); err != nil {
				return err
			}
		}

		if _, err := decoder.Token(); err != nil {
			return err
		}

	case json.Delim('{'):
		object, err := decodeObjectBody(decoder)

		if err != nil {
			return err
		}

		if err := fn(flatten(object)); err != nil {
			return err
		}

	default:
		return fmt.Errorf("expected an array of objects or an object, got %v", token)
	}

	return nil
}

// Decodes the remainder of an object whose opening brace was already consumed.
func decodeObjectBody(decoder *json.Decoder) (map[string]interface{}, error) {
	object := make(map[string]interface{})

	for decoder.More() {
		token, err := decoder.Token()

		if err != nil {
			return nil, err
		}

		key, ok := token.(string)

		if !ok {
			return nil, fmt.Errorf("expected an object key, got %v", token)
		}

		var value interface{}

		if err := decoder.Decode(&value); err != nil {
			return nil, err
		}

		object[key] = value
	}

	if _, err := decoder.Token(); err != nil {
		return nil, err
	}

	return object, nil
}

func flatten(object map[string]interface{}) map[string]string {
	out := make(map[string]string)
	flattenInto(out, ``, object)
	return out
}

func flattenInto(out map[string]string, prefix string, object map[string]interface{}) {
	for key, value := range object {
		if prefix != `` {
			key = prefix + NestedFieldSeparator + key
		}

		switch v := value.(type) {
		case map[string]interface{}:
			flattenInto(out, key, v)
		case nil:
			out[key] = ``
		case string:
			out[key] = v
		case json.Number:
			out[key] = v.String()
		case []interface{}:
			if data, err := json.Marshal(v); err == nil {
				out[key] = string(data)
			} else {
				out[key] = typeutil.String(v)
			}
		default:
			out[key] = typeutil.String(v)
		}
	}
}
