package cli

import (
	"github.com/mchmarny/vcpulse/pkg/config"
	"github.com/mchmarny/vcpulse/pkg/model"
	"github.com/urfave/cli/v2"
)

var (
	stageFlag = &cli.StringFlag{
		Name:  "stage",
		Usage: "Funding stage used to resolve verdict thresholds",
	}

	sectorFlag = &cli.StringFlag{
		Name:  "sector",
		Usage: "Sector used to resolve verdict thresholds",
	}

	weightsCmd = &cli.Command{
		Name:    "weights",
		Aliases: []string{"w"},
		Usage:   "Show effective category weights and verdict thresholds",
		Flags: []cli.Flag{
			stageFlag,
			sectorFlag,
		},
		Action: cmdWeights,
	}
)

type weightsResult struct {
	Version    string                     `json:"version" yaml:"version"`
	Categories map[model.Category]float64 `json:"categories" yaml:"categories"`
	Disabled   []model.Category           `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Thresholds config.Thresholds          `json:"thresholds" yaml:"thresholds"`
}

func cmdWeights(c *cli.Context) error {
	cfg := getConfig(c).Config
	return encode(&weightsResult{
		Version:    cfg.Weights.Version,
		Categories: cfg.Weights.Categories,
		Disabled:   cfg.Weights.Disabled,
		Thresholds: cfg.Verdicts.For(c.String(stageFlag.Name), c.String(sectorFlag.Name)),
	})
}
