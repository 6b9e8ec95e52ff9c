package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/mchmarny/vcpulse/pkg/cache"
	"github.com/mchmarny/vcpulse/pkg/config"
	"github.com/mchmarny/vcpulse/pkg/engine"
	"github.com/mchmarny/vcpulse/pkg/logging"
	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	dirMode      = 0700
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"

	cacheTTLDefault = 24 * time.Hour
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat = formatJSON

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	configDirFlag = &urfave.StringFlag{
		Name:  "config",
		Usage: "Directory with config overrides (registry, weights, verdicts, models)",
	}

	cacheDBFlag = &urfave.StringFlag{
		Name:  "cache-db",
		Usage: "Path to the Sqlite result cache file",
	}

	noCacheFlag = &urfave.BoolFlag{
		Name:  "no-cache",
		Usage: "Disables the result cache",
	}

	cacheTTLFlag = &urfave.DurationFlag{
		Name:  "cache-ttl",
		Usage: "How long cached results stay valid",
		Value: cacheTTLDefault,
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(false)

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Debug  bool
	Config *config.Config
	Engine *engine.Engine
	Cache  *cache.Store
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 "vcpulse",
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "CLI for model-ensemble assessment of startup records",
		Flags: []urfave.Flag{
			debugFlag,
			configDirFlag,
			cacheDBFlag,
			noCacheFlag,
			cacheTTLFlag,
			formatFlag,
		},
		Commands: []*urfave.Command{
			predictCmd,
			schemaCmd,
			weightsCmd,
			cacheCmd,
		},
		Before: func(c *urfave.Context) error {
			if c.Bool(debugFlag.Name) {
				initLogging(true)
			}

			f := c.String(formatFlag.Name)
			if f == formatYAML || f == "yml" {
				outputFormat = formatYAML
			}

			cfg, err := config.Load(c.String(configDirFlag.Name))
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			ac := &appConfig{
				Debug:  c.Bool(debugFlag.Name),
				Config: cfg,
			}

			opts := []engine.Option{engine.WithLogger(slog.Default())}
			if !c.Bool(noCacheFlag.Name) {
				dbPath := c.String(cacheDBFlag.Name)
				if dbPath == "" {
					dbPath = path.Join(getHomeDir(), cache.DataFileName)
				}
				store, err := cache.OpenSQLite(dbPath)
				if err != nil {
					return fmt.Errorf("opening result cache: %w", err)
				}
				ac.Cache = store
				opts = append(opts, engine.WithCache(store, c.Duration(cacheTTLFlag.Name)))
			}

			eng, err := engine.New(cfg, opts...)
			if err != nil {
				return fmt.Errorf("initializing engine: %w", err)
			}
			ac.Engine = eng

			c.App.Metadata[appConfigKey] = ac
			return nil
		},
		After: func(c *urfave.Context) error {
			if cfg, ok := c.App.Metadata[appConfigKey].(*appConfig); ok && cfg.Cache != nil {
				cfg.Cache.Close()
			}
			return nil
		},
	}
}

func initLogging(debug bool) {
	level := "info"
	if debug {
		level = "debug"
	}
	logging.SetDefaultCLILogger(level)
}

func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}

	dirPath := filepath.Join(home, ".vcpulse")
	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dirPath)
		if err := os.Mkdir(dirPath, dirMode); err != nil {
			slog.Debug("error creating dir", "path", dirPath, "error", err)
			return home
		}
	}
	return dirPath
}

func encode(v any) error {
	if outputFormat == formatYAML {
		return yaml.NewEncoder(os.Stdout).Encode(v)
	}
	e := json.NewEncoder(os.Stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
