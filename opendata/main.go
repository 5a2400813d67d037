package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fandreuz/opendata"
	"github.com/fandreuz/opendata/fetch"
	"github.com/fandreuz/opendata/util"
	"github.com/ghetzel/cli"
	"github.com/ghetzel/go-stockutil/log"
)

func main() {
	app := cli.NewApp()
	app.Name = util.ApplicationName
	app.Usage = util.ApplicationSummary
	app.Version = util.ApplicationVersion
	app.EnableBashCompletion = false

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   `log-level, L`,
			Usage:  `Level of log output verbosity`,
			Value:  `info`,
			EnvVar: `LOGLEVEL`,
		},
		cli.StringFlag{
			Name:   `config, c`,
			Usage:  `Path to the configuration file to load.`,
			Value:  `opendata.yml`,
			EnvVar: `OPENDATA_CONFIG`,
		},
		cli.StringFlag{
			Name:   `database, d`,
			Usage:  `The connection string of the document store.`,
			EnvVar: `OPENDATA_DATABASE`,
		},
		cli.StringFlag{
			Name:   `source, s`,
			Usage:  fmt.Sprintf("Where datasets are fetched from (%s or %s).", fetch.CernSource, fetch.LocalSource),
			EnvVar: `OPENDATA_SOURCE`,
		},
		cli.StringFlag{
			Name:   `source-directory`,
			Usage:  `The root directory of the local source.`,
			EnvVar: `OPENDATA_SOURCE_DIRECTORY`,
		},
	}

	app.Before = func(c *cli.Context) error {
		log.SetLevelString(c.String(`log-level`))
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:  `web`,
			Usage: `Start the HTTP API server.`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  `address, a`,
					Usage: `The local address the server should listen on.`,
				},
			},
			Action: func(c *cli.Context) {
				config := loadConfig(c)

				if v := c.String(`address`); v != `` {
					config.Address = v
				}

				service, db, err := opendata.NewServiceFromConfig(config)

				if err != nil {
					log.Fatalf("Failed to start service: %v", err)
				}

				defer db.Close()

				server := opendata.NewServer(service, db)
				server.Address = config.Address

				if err := server.ListenAndServe(); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			},
		}, {
			Name:      `import`,
			Usage:     `Import a single dataset and print its metadata.`,
			ArgsUsage: `COLLECTION FILE`,
			Action: func(c *cli.Context) {
				collectionID := c.Args().Get(0)
				fileName := c.Args().Get(1)

				if collectionID == `` || fileName == `` {
					log.Fatalf("Must specify a collection and a file name")
				}

				service, db, err := opendata.NewServiceFromConfig(loadConfig(c))

				if err != nil {
					log.Fatalf("Failed to start service: %v", err)
				}

				defer db.Close()

				if metadata, err := service.CreateDataset(context.Background(), collectionID, fileName); err == nil {
					if data, err := json.MarshalIndent(metadata, ``, `  `); err == nil {
						fmt.Println(string(data))
					} else {
						log.Fatalf("%v", err)
					}
				} else {
					log.Fatalf("Import failed: %v", err)
				}
			},
		}, {
			Name:  `version`,
			Usage: `Print the version and exit.`,
			Action: func(c *cli.Context) {
				fmt.Println(util.ApplicationVersion)
			},
		},
	}

	app.Run(os.Args)
}

// Loads the configuration file, if any, and applies the global flags over it.
func loadConfig(c *cli.Context) opendata.Configuration {
	config := opendata.DefaultConfiguration()

	if loaded, err := opendata.LoadConfigFile(c.GlobalString(`config`)); err == nil {
		config = loaded.ForEnv(os.Getenv(`OPENDATA_ENV`))
	} else if !os.IsNotExist(err) {
		log.Fatalf("Configuration error: %v", err)
	}

	if v := c.GlobalString(`database`); v != `` {
		config.Database = v
	}

	if v := c.GlobalString(`source`); v != `` {
		config.Source = v
	}

	if v := c.GlobalString(`source-directory`); v != `` {
		config.SourceDirectory = v
	}

	return config
}
