package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var (
	cacheCmd = &cli.Command{
		Name:  "cache",
		Usage: "List result cache operations",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show cache entry counts",
				Action: cmdCacheStats,
			},
			{
				Name:   "purge",
				Usage:  "Delete expired cache entries",
				Action: cmdCachePurge,
			},
		},
	}
)

func cmdCacheStats(c *cli.Context) error {
	ac := getConfig(c)
	if ac.Cache == nil {
		return fmt.Errorf("cache is disabled")
	}
	st, err := ac.Cache.GetStats(c.Context)
	if err != nil {
		return err
	}
	return encode(st)
}

func cmdCachePurge(c *cli.Context) error {
	ac := getConfig(c)
	if ac.Cache == nil {
		return fmt.Errorf("cache is disabled")
	}
	n, err := ac.Cache.Purge(c.Context)
	if err != nil {
		return err
	}
	return encode(map[string]int64{"purged": n})
}
