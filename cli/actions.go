package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"go.viam.com/meshprune/config"
	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/mesh"
	"go.viam.com/meshprune/meshio"
	"go.viam.com/meshprune/pointcloud"
	"go.viam.com/meshprune/prune"
	"go.viam.com/meshprune/reconstruction"
)

// loadConfig reads the --config file, if any, and applies command line overrides on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(generalFlagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(pruneFlagNeighbors) {
		cfg.Prune.NeighborCount = c.Int(pruneFlagNeighbors)
	}
	if c.IsSet(pruneFlagQuantile) {
		cfg.Prune.Quantile = c.Float64(pruneFlagQuantile)
	}
	if c.IsSet(reconstructFlagBinary) {
		cfg.Poisson.Binary = c.String(reconstructFlagBinary)
	}
	if c.IsSet(reconstructFlagDepth) {
		cfg.Poisson.Depth = c.Int(reconstructFlagDepth)
	}
	// command line values reach the pruner unwrapped so their errors keep their type.
	if _, err := prune.NewPruner(cfg.Prune, nil); err != nil {
		return nil, err
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns a logger writing to the app's error writer so command output stays
// clean.
func newLogger(c *cli.Context, cfg *config.Config) logging.Logger {
	logger := logging.NewBlankLogger("meshprune")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if c.Bool(generalFlagDebug) {
		logger.SetLevel(logging.DEBUG)
	} else {
		logger.SetLevel(cfg.Level())
	}
	return logger
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// PruneAction prunes every mesh named on the command line.
func PruneAction(c *cli.Context) error {
	inputs := c.Args().Slice()
	if len(inputs) == 0 {
		return errors.New("need at least one mesh to prune")
	}
	out, outDir := c.Path(pruneFlagOut), c.Path(pruneFlagOutDir)
	switch {
	case out != "" && outDir != "":
		return errors.Errorf("--%s and --%s are mutually exclusive", pruneFlagOut, pruneFlagOutDir)
	case out == "" && outDir == "":
		return errors.Errorf("one of --%s or --%s is required", pruneFlagOut, pruneFlagOutDir)
	case out != "" && len(inputs) > 1:
		return errors.Errorf("--%s takes a single input mesh, got %d; use --%s", pruneFlagOut, len(inputs), pruneFlagOutDir)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(c, cfg)

	outputs := make([]string, len(inputs))
	for i, in := range inputs {
		if out != "" {
			outputs[i] = out
		} else {
			base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
			outputs[i] = filepath.Join(outDir, base+".obj")
		}
	}
	if err := checkOutputs(inputs, outputs); err != nil {
		return err
	}

	results := make([]*prune.Result, len(inputs))
	g, ctx := errgroup.WithContext(c.Context)
	if parallel := c.Int(pruneFlagParallel); parallel > 0 {
		g.SetLimit(parallel)
	}
	for i := range inputs {
		i := i
		g.Go(func() error {
			fileLogger := logger.WithFields("input", inputs[i])
			m, err := meshio.ReadMeshFile(inputs[i])
			if err != nil {
				return err
			}
			res, err := prune.Prune(ctx, m, cfg.Prune, fileLogger)
			if err != nil {
				return errors.Wrapf(err, "pruning %q", inputs[i])
			}
			if err := (meshio.OBJWriter{Logger: fileLogger}).WriteMesh(outputs[i], res.Mesh); err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, res := range results {
		printf(c.App.Writer, "%s -> %s: %d of %d polygons kept, %d vertices marked (threshold %g)",
			inputs[i], outputs[i], res.PolygonsAfter, res.PolygonsBefore, res.Removed.Len(), res.Threshold)
	}
	return nil
}

// checkOutputs rejects runs where two inputs would write the same file.
func checkOutputs(inputs, outputs []string) error {
	written := make(map[string]int, len(outputs))
	for i, out := range outputs {
		key := cleanPath(out)
		if prev, ok := written[key]; ok {
			return errors.Errorf("%q and %q would both be written to %q; prune them into different directories",
				inputs[prev], inputs[i], out)
		}
		written[key] = i
	}
	return nil
}

func cleanPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// ReconstructAction runs the full pipeline over one point cloud file.
func ReconstructAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("need exactly one point cloud")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(c, cfg)

	pipeline, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	cloud, err := pointcloud.NewFromFile(c.Args().First(), logger)
	if err != nil {
		return err
	}
	report, err := pipeline.Run(c.Context, cloud, c.Path(pruneFlagOut))
	if err != nil {
		return err
	}
	printf(c.App.Writer, "run %s: %d points, %d after outlier removal, %d of %d polygons kept, wrote %s",
		report.RunID, report.InputPoints, report.FilteredPoints, report.PolygonsAfter, report.PolygonsBefore, report.OutputPath)
	return nil
}

func newPipeline(cfg *config.Config, logger logging.Logger) (*reconstruction.Pipeline, error) {
	outliers, err := pointcloud.NewStatisticalOutlierFilter(cfg.Outlier.MeanK, cfg.Outlier.StdDevMulThresh, logger)
	if err != nil {
		return nil, err
	}
	normals, err := pointcloud.NewNormalEstimator(cfg.Normals.K, logger)
	if err != nil {
		return nil, err
	}
	surface, err := reconstruction.NewPoissonCommand(cfg.Poisson.Binary, cfg.Poisson.Depth, cfg.Poisson.ExtraArgs, logger)
	if err != nil {
		return nil, err
	}
	pruner, err := prune.NewPruner(cfg.Prune, logger)
	if err != nil {
		return nil, err
	}
	return &reconstruction.Pipeline{
		Outliers: outliers,
		Normals:  normals,
		Surface:  surface,
		Pruner:   pruner,
		Writer:   meshio.OBJWriter{Logger: logger},
		Logger:   logger,
	}, nil
}

// FilterAction removes outliers from a point cloud and writes the inliers.
func FilterAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("need exactly one point cloud")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(c, cfg)

	cloud, err := pointcloud.NewFromFile(c.Args().First(), logger)
	if err != nil {
		return err
	}
	filter, err := pointcloud.NewStatisticalOutlierFilter(cfg.Outlier.MeanK, cfg.Outlier.StdDevMulThresh, logger)
	if err != nil {
		return err
	}
	kept, err := filter.RemoveOutliers(c.Context, cloud)
	if err != nil {
		return err
	}

	out := c.Path(pruneFlagOut)
	if err := writeCloud(out, kept, c.Bool(filterFlagASCII)); err != nil {
		return err
	}
	printf(c.App.Writer, "kept %d of %d points, wrote %s", len(kept), len(cloud), out)
	return nil
}

func writeCloud(path string, pts []r3.Vector, ascii bool) (err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".las":
		return pointcloud.WriteToLASFile(pts, path)
	case ".pcd":
	default:
		return errors.Errorf("do not know how to write point cloud file %q", path)
	}

	pcdType := pointcloud.PCDBinary
	if ascii {
		pcdType = pointcloud.PCDAscii
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return pointcloud.WritePCD(f, pts, pcdType)
}

// DensityAction prints how a mesh's vertex densities are distributed and what pruning it
// with the current settings would drop. The pruned mesh is not written; only the optional
// histogram is.
func DensityAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("need exactly one mesh")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(c, cfg)

	m, err := meshio.ReadMeshFile(c.Args().First())
	if err != nil {
		return err
	}
	res, err := prune.Prune(c.Context, m, cfg.Prune, logger)
	if err != nil {
		return err
	}
	before, after := mesh.ComputeTopology(m), mesh.ComputeTopology(res.Mesh)
	stats := res.Densities.Stats()

	densityTable := table.NewWriter()
	densityTable.SetOutputMirror(c.App.Writer)
	densityTable.AppendHeader(table.Row{"Density", "Value"})
	densityTable.AppendRows([]table.Row{
		{"vertices", m.NumVertices()},
		{"neighbor count", cfg.Prune.NeighborCount},
		{"quantile", cfg.Prune.Quantile},
		{"density min", stats.Min},
		{"density p50", stats.P50},
		{"density p90", stats.P90},
		{"density max", stats.Max},
		{"density mean", stats.Mean},
		{"density stddev", stats.StdDev},
		{"degenerate vertices", len(res.Densities.Warnings())},
		{"threshold", res.Threshold},
		{"marked vertices", res.Removed.Len()},
	})
	densityTable.Render()

	topologyTable := table.NewWriter()
	topologyTable.SetOutputMirror(c.App.Writer)
	topologyTable.AppendHeader(table.Row{"Topology", "Before", "After"})
	topologyTable.AppendRows([]table.Row{
		{"polygons", before.Polygons, after.Polygons},
		{"referenced vertices", before.ReferencedVertices, after.ReferencedVertices},
		{"boundary edges", before.BoundaryEdges, after.BoundaryEdges},
		{"non-manifold edges", before.NonManifoldEdges, after.NonManifoldEdges},
		{"components", before.Components, after.Components},
	})
	topologyTable.Render()

	if path := c.Path(densityFlagHistogram); path != "" {
		if err := writeDensityHistogram(path, res); err != nil {
			return err
		}
		printf(c.App.Writer, "wrote histogram %s", path)
	}
	return nil
}

// ConfigSchemaAction prints the JSON schema of the config file.
func ConfigSchemaAction(c *cli.Context) error {
	out, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}
