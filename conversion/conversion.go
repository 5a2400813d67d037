// The conversion package turns fetched datasets of any supported type into
// CSV files ready to be stored.
package conversion

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fandreuz/opendata/dal"
	"github.com/ghetzel/go-stockutil/log"
)

type Converter interface {
	// Converts the file at source into CSV and returns the path of the result.
	// A result other than source belongs to the caller, who removes it.
	Convert(source string) (string, error)
}

type ConverterFunc func(source string) (string, error)

func (self ConverterFunc) Convert(source string) (string, error) {
	return self(source)
}

// CSV files are stored as they are.
type CsvConverter struct{}

func (self CsvConverter) Convert(source string) (string, error) {
	if info, err := os.Stat(source); err != nil {
		return ``, &dal.ConversionError{Source: source, Cause: err}
	} else if info.IsDir() {
		return ``, &dal.ConversionError{Source: source, Cause: os.ErrInvalid}
	}

	return filepath.Clean(source), nil
}

type Orchestrator struct {
	converters map[dal.DatasetType]Converter
	lock       sync.RWMutex
}

// Returns an orchestrator with converters for every type with a known CSV
// representation: CSV and JSON. ROOT files have none. Converted files are
// written into outputDirectory, or the system temporary directory if empty.
func NewOrchestrator(outputDirectory string) *Orchestrator {
	orchestrator := &Orchestrator{
		converters: make(map[dal.DatasetType]Converter),
	}

	orchestrator.Register(dal.CsvType, CsvConverter{})
	orchestrator.Register(dal.JsonType, &JsonConverter{
		OutputDirectory: outputDirectory,
	})

	return orchestrator
}

func (self *Orchestrator) Register(datasetType dal.DatasetType, converter Converter) {
	self.lock.Lock()
	defer self.lock.Unlock()

	log.Debugf("Registering converter %T for %v", converter, datasetType)
	self.converters[datasetType] = converter
}

func (self *Orchestrator) GetConversionService(datasetType dal.DatasetType) (Converter, error) {
	self.lock.RLock()
	defer self.lock.RUnlock()

	if converter, ok := self.converters[datasetType]; ok {
		return converter, nil
	}

	return nil, &dal.ConversionUnavailableError{Type: datasetType}
}
