// Package prune removes the poorly supported parts of a reconstructed surface mesh.
//
// Every vertex is scored by how tightly its nearest neighbors crowd it (the sum of inverse
// distances to its k nearest neighbors). The score at the q-quantile of all scores becomes
// a threshold; vertices scoring strictly below it are marked, and every polygon touching a
// marked vertex is dropped. Vertices themselves are never deleted or re-indexed, so the
// pruned mesh can be written next to the original vertex list unchanged.
//
// Dropping whole polygons is deliberate and can open holes or split a surface into
// fragments. Nothing is repaired.
package prune

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/utils"

	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/mesh"
	"go.viam.com/meshprune/pointcloud"
)

// Config holds the tunable parameters of a pruning run.
type Config struct {
	NeighborCount int     `json:"neighbor_count"`
	Quantile      float64 `json:"quantile"`
}

// DefaultConfig returns the parameters used when none are given.
func DefaultConfig() Config {
	return Config{NeighborCount: DefaultNeighborCount, Quantile: DefaultQuantile}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if err := cfg.check(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

func (cfg *Config) check() error {
	if cfg.NeighborCount <= 0 {
		return &InvalidParameterError{Name: "neighbor_count", Value: cfg.NeighborCount, Reason: "must be positive"}
	}
	return validateQuantile(cfg.Quantile)
}

// Result is the outcome of a pruning run.
type Result struct {
	// Mesh shares the input's vertex slice and holds only the surviving polygons.
	Mesh           *mesh.Mesh
	Threshold      float64
	Removed        *RemovalMask
	Densities      *DensityMap
	PolygonsBefore int
	PolygonsAfter  int
}

// PolygonsRemoved returns how many polygons the run dropped.
func (r *Result) PolygonsRemoved() int {
	return r.PolygonsBefore - r.PolygonsAfter
}

// A Pruner runs density-based pruning with a fixed configuration. It holds no state
// between runs.
type Pruner struct {
	cfg    Config
	logger logging.Logger
}

// NewPruner returns a Pruner for cfg, or an *InvalidParameterError if cfg is out of range.
func NewPruner(cfg Config, logger logging.Logger) (*Pruner, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("prune")
	}
	return &Pruner{cfg: cfg, logger: logger}, nil
}

// Config returns the parameters the pruner runs with.
func (p *Pruner) Config() Config {
	return p.cfg
}

// Prune scores the vertices of m, selects the threshold, and drops every polygon touching a
// vertex under it. m is not modified.
func (p *Pruner) Prune(ctx context.Context, m *mesh.Mesh) (*Result, error) {
	ctx, span := trace.StartSpan(ctx, "prune::Pruner::Prune")
	defer span.End()

	if m == nil {
		return nil, &EmptyMeshError{}
	}
	if len(m.Vertices) == 0 || len(m.Polygons) == 0 {
		return nil, &EmptyMeshError{Vertices: len(m.Vertices), Polygons: len(m.Polygons)}
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid mesh")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	index, err := pointcloud.NewKDTree(m.Vertices)
	if err != nil {
		if errors.Is(err, pointcloud.ErrEmptyCloud) {
			return nil, &EmptyMeshError{Vertices: len(m.Vertices), Polygons: len(m.Polygons)}
		}
		return nil, errors.Wrap(err, "building spatial index")
	}
	p.logger.Debugw("built spatial index", "vertices", index.Len(), "took", time.Since(start))

	densities, err := EstimateDensity(ctx, index, m.Vertices, p.cfg.NeighborCount, p.logger)
	if err != nil {
		return nil, err
	}

	threshold, err := SelectThreshold(densities, p.cfg.Quantile)
	if err != nil {
		return nil, err
	}

	removed := ClassifyVertices(densities, threshold)
	kept := FilterPolygons(m.Polygons, removed)
	pruned := m.WithPolygons(kept)

	result := &Result{
		Mesh:           pruned,
		Threshold:      threshold,
		Removed:        removed,
		Densities:      densities,
		PolygonsBefore: len(m.Polygons),
		PolygonsAfter:  len(kept),
	}

	p.logger.Infow("pruned mesh",
		"vertices", len(m.Vertices),
		"marked_vertices", removed.Len(),
		"threshold", threshold,
		"polygons_before", result.PolygonsBefore,
		"polygons_after", result.PolygonsAfter,
		"took", time.Since(start))
	if p.logger.GetLevel() == logging.DEBUG {
		before, after := mesh.ComputeTopology(m), mesh.ComputeTopology(pruned)
		p.logger.Debugw("pruning changed topology",
			"boundary_edges_before", before.BoundaryEdges, "boundary_edges_after", after.BoundaryEdges,
			"components_before", before.Components, "components_after", after.Components)
	}
	return result, nil
}

// Prune runs a single pruning pass over m with cfg.
func Prune(ctx context.Context, m *mesh.Mesh, cfg Config, logger logging.Logger) (*Result, error) {
	p, err := NewPruner(cfg, logger)
	if err != nil {
		return nil, err
	}
	return p.Prune(ctx, m)
}
