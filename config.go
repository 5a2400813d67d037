package opendata

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/alexcesaro/statsd"
	"github.com/fandreuz/opendata/fetch"
	"github.com/fandreuz/opendata/util"
	"github.com/ghetzel/go-stockutil/fileutil"
	"github.com/ghodss/yaml"
)

var DefaultAddress = `127.0.0.1`
var DefaultPort = 29029
var DefaultDatabase = `mongodb://localhost:27017/opendata`
var DefaultDownloadDirectory = `~/.cache/opendata`

type Configuration struct {
	Address             string                   `json:"address"`
	Database            string                   `json:"database"`
	Source              string                   `json:"source"`
	SourceURL           string                   `json:"source_url"`
	SourceDirectory     string                   `json:"source_directory"`
	DownloadDirectory   string                   `json:"download_directory"`
	ConversionDirectory string                   `json:"conversion_directory"`
	CacheSize           int                      `json:"cache_size"`
	CreateTimeout       string                   `json:"create_timeout"`
	RetainFailures      bool                     `json:"retain_failures"`
	Statsd              string                   `json:"statsd"`
	StatsdPrefix        string                   `json:"statsd_prefix"`
	BatchSize           int                      `json:"batch_size"`
	Environments        map[string]Configuration `json:"environments,omitempty"`
}

func DefaultConfiguration() Configuration {
	return Configuration{
		Address:           fmt.Sprintf("%s:%d", DefaultAddress, DefaultPort),
		Database:          DefaultDatabase,
		Source:            fetch.CernSource,
		SourceURL:         fetch.DefaultCernURL,
		DownloadDirectory: DefaultDownloadDirectory,
		StatsdPrefix:      util.ApplicationName,
	}
}

// Loads a YAML configuration file on top of the defaults.
func LoadConfigFile(path string) (Configuration, error) {
	config := DefaultConfiguration()

	if data, err := ioutil.ReadFile(fileutil.MustExpandUser(path)); err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, err
		}
	} else {
		return config, err
	}

	return config, nil
}

// Returns this configuration with the non-empty values of the named
// environment applied over it.
func (self Configuration) ForEnv(env string) Configuration {
	override, ok := self.Environments[env]

	if env == `` || !ok {
		return self
	}

	if override.Address != `` {
		self.Address = override.Address
	}

	if override.Database != `` {
		self.Database = override.Database
	}

	if override.Source != `` {
		self.Source = override.Source
	}

	if override.SourceURL != `` {
		self.SourceURL = override.SourceURL
	}

	if override.SourceDirectory != `` {
		self.SourceDirectory = override.SourceDirectory
	}

	if override.DownloadDirectory != `` {
		self.DownloadDirectory = override.DownloadDirectory
	}

	if override.ConversionDirectory != `` {
		self.ConversionDirectory = override.ConversionDirectory
	}

	if override.CacheSize > 0 {
		self.CacheSize = override.CacheSize
	}

	if override.CreateTimeout != `` {
		self.CreateTimeout = override.CreateTimeout
	}

	if override.RetainFailures {
		self.RetainFailures = true
	}

	if override.Statsd != `` {
		self.Statsd = override.Statsd
	}

	if override.StatsdPrefix != `` {
		self.StatsdPrefix = override.StatsdPrefix
	}

	if override.BatchSize > 0 {
		self.BatchSize = override.BatchSize
	}

	self.Environments = nil
	return self
}

func (self Configuration) Fetcher() (fetch.Fetcher, error) {
	switch self.Source {
	case fetch.CernSource, ``:
		return fetch.NewCernFetcher(self.SourceURL, fileutil.MustExpandUser(self.DownloadDirectory)), nil
	case fetch.LocalSource:
		if self.SourceDirectory == `` {
			return nil, fmt.Errorf("Source %q requires source_directory", self.Source)
		}

		return fetch.NewLocalFetcher(fileutil.MustExpandUser(self.SourceDirectory)), nil
	default:
		return nil, fmt.Errorf("Unknown source %q", self.Source)
	}
}

func (self Configuration) ServiceOptions() (ServiceOptions, error) {
	options := ServiceOptions{
		CacheSize:      self.CacheSize,
		BatchSize:      self.BatchSize,
		RetainFailures: self.RetainFailures,
	}

	if self.ConversionDirectory != `` {
		options.ConversionDirectory = fileutil.MustExpandUser(self.ConversionDirectory)
	}

	if self.CreateTimeout != `` {
		if timeout, err := time.ParseDuration(self.CreateTimeout); err == nil {
			options.CreateTimeout = timeout
		} else {
			return options, fmt.Errorf("invalid create_timeout: %v", err)
		}
	}

	if self.Statsd != `` {
		if client, err := statsd.New(
			statsd.Address(self.Statsd),
			statsd.Prefix(self.StatsdPrefix),
		); err == nil {
			options.Stats = client
		} else {
			return options, fmt.Errorf("statsd: %v", err)
		}
	}

	return options, nil
}
