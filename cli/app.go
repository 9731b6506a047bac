// Package cli contains the meshprune command line tool.
package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/urfave/cli/v2"
)

const (
	generalFlagConfig = "config"
	generalFlagDebug  = "debug"

	pruneFlagOut       = "out"
	pruneFlagOutDir    = "out-dir"
	pruneFlagNeighbors = "neighbors"
	pruneFlagQuantile  = "quantile"
	pruneFlagParallel  = "parallel"

	reconstructFlagBinary = "poisson-binary"
	reconstructFlagDepth  = "depth"

	filterFlagASCII = "ascii"

	densityFlagHistogram = "histogram"
)

func neighborsFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  pruneFlagNeighbors,
		Usage: "number of nearest neighbors that score each vertex",
	}
}

func quantileFlag() cli.Flag {
	return &cli.Float64Flag{
		Name:  pruneFlagQuantile,
		Usage: "fraction of lowest-density vertices to mark, in [0, 1)",
	}
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "meshprune",
		Usage:           "reconstruct and prune surface meshes from point clouds",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    generalFlagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "prune",
				Usage:     "drop polygons touching low-density vertices",
				UsageText: fmt.Sprintf("meshprune prune [--%s FILE | --%s DIR] [other options] MESH...", pruneFlagOut, pruneFlagOutDir),
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  pruneFlagOut,
						Usage: "output mesh `FILE` when pruning a single mesh",
					},
					&cli.PathFlag{
						Name:  pruneFlagOutDir,
						Usage: "output `DIR` for pruned meshes, named after their inputs",
					},
					neighborsFlag(),
					quantileFlag(),
					&cli.IntFlag{
						Name:  pruneFlagParallel,
						Value: runtime.NumCPU(),
						Usage: "number of meshes pruned at once",
					},
				},
				Action: PruneAction,
			},
			{
				Name:      "reconstruct",
				Usage:     "run the full pipeline from a point cloud to a pruned mesh",
				UsageText: fmt.Sprintf("meshprune reconstruct --%s FILE [other options] CLOUD", pruneFlagOut),
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     pruneFlagOut,
						Required: true,
						Usage:    "output mesh `FILE`",
					},
					&cli.StringFlag{
						Name:  reconstructFlagBinary,
						Usage: "poisson reconstruction executable",
					},
					&cli.IntFlag{
						Name:  reconstructFlagDepth,
						Usage: "poisson octree depth",
					},
					neighborsFlag(),
					quantileFlag(),
				},
				Action: ReconstructAction,
			},
			{
				Name:      "filter",
				Usage:     "remove statistical outliers from a point cloud",
				UsageText: fmt.Sprintf("meshprune filter --%s FILE [--%s] CLOUD", pruneFlagOut, filterFlagASCII),
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     pruneFlagOut,
						Required: true,
						Usage:    "output point cloud `FILE` (.pcd or .las)",
					},
					&cli.BoolFlag{
						Name:  filterFlagASCII,
						Usage: "write pcd as ascii instead of binary",
					},
				},
				Action: FilterAction,
			},
			{
				Name:      "density",
				Usage:     "print density statistics and what pruning would remove",
				UsageText: "meshprune density [other options] MESH",
				Flags: []cli.Flag{
					neighborsFlag(),
					quantileFlag(),
					&cli.PathFlag{
						Name:  densityFlagHistogram,
						Usage: "also plot the density distribution to `FILE` (.png, .svg, .pdf)",
					},
				},
				Action: DensityAction,
			},
			{
				Name:   "config-schema",
				Usage:  "print the JSON schema of the configuration file",
				Action: ConfigSchemaAction,
			},
		},
	}
}
