package cli

import (
	"fmt"

	"github.com/mchmarny/vcpulse/pkg/schema"
	"github.com/urfave/cli/v2"
)

var (
	featureNameFlag = &cli.StringFlag{
		Name:     "name",
		Usage:    "Feature name",
		Required: true,
	}

	schemaCmd = &cli.Command{
		Name:    "schema",
		Aliases: []string{"s"},
		Usage:   "List feature schema operations",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Usage:   "List all features in canonical order",
				Aliases: []string{"l"},
				Action:  cmdSchemaList,
			},
			{
				Name:    "explain",
				Usage:   "Show the full spec for one feature",
				Aliases: []string{"e"},
				Flags: []cli.Flag{
					featureNameFlag,
				},
				Action: cmdSchemaExplain,
			},
		},
	}
)

type schemaListResult struct {
	Version  string               `json:"version" yaml:"version"`
	Features []schema.FeatureSpec `json:"features" yaml:"features"`
}

func cmdSchemaList(c *cli.Context) error {
	reg := getConfig(c).Config.Registry
	return encode(&schemaListResult{
		Version:  reg.Version,
		Features: reg.Ordered(),
	})
}

func cmdSchemaExplain(c *cli.Context) error {
	reg := getConfig(c).Config.Registry
	spec, err := reg.Get(c.String(featureNameFlag.Name))
	if err != nil {
		return fmt.Errorf("unknown feature: %w", err)
	}
	return encode(spec)
}
