package prune

import (
	"context"
	"sort"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/pointcloud"
	"go.viam.com/meshprune/utils"
)

// DefaultNeighborCount is the number of neighbors that score a vertex unless configured.
const DefaultNeighborCount = 10

// maxLoggedDegenerate caps how many degenerate vertex indices go into the warning log line.
const maxLoggedDegenerate = 20

// DensityMap holds one non-negative density score per mesh vertex, indexed like the
// vertices it was computed from.
type DensityMap struct {
	values   []float64
	warnings []DegenerateNeighborhoodWarning
}

// NewDensityMap returns a map over a copy of the given scores.
func NewDensityMap(values []float64) *DensityMap {
	return &DensityMap{values: append([]float64(nil), values...)}
}

// Len returns the number of scored vertices.
func (dm *DensityMap) Len() int {
	return len(dm.values)
}

// At returns the density of vertex i.
func (dm *DensityMap) At(i int) float64 {
	return dm.values[i]
}

// Values returns a copy of all scores.
func (dm *DensityMap) Values() []float64 {
	return append([]float64(nil), dm.values...)
}

// Warnings returns the vertices whose density is 0 because no neighbor sits at a non-zero
// distance, in vertex order.
func (dm *DensityMap) Warnings() []DegenerateNeighborhoodWarning {
	return append([]DegenerateNeighborhoodWarning(nil), dm.warnings...)
}

// DensityStats summarizes a DensityMap.
type DensityStats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	P50    float64
	P90    float64
}

// Stats summarizes the distribution of scores. The zero value is returned for an empty
// map; StdDev is 0 for a single score.
func (dm *DensityMap) Stats() DensityStats {
	if len(dm.values) == 0 {
		return DensityStats{}
	}
	sorted := dm.Values()
	sort.Float64s(sorted)

	s := DensityStats{
		Count: len(sorted),
		Min:   floats.Min(sorted),
		Max:   floats.Max(sorted),
		P50:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:   stat.Quantile(0.9, stat.Empirical, sorted, nil),
	}
	if len(sorted) == 1 {
		s.Mean = sorted[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(sorted, nil)
	return s
}

// EstimateDensity scores every vertex by summing the inverse distances to its k nearest
// neighbors, the vertex itself excluded. Neighbors at distance 0 add nothing. index must
// have been built over vertices. The work is spread over utils.ParallelFactor goroutines;
// if ctx is canceled before every vertex is scored, no map is returned.
func EstimateDensity(
	ctx context.Context,
	index *pointcloud.KDTree,
	vertices []r3.Vector,
	k int,
	logger logging.Logger,
) (*DensityMap, error) {
	if k <= 0 {
		return nil, &InvalidParameterError{Name: "neighbor_count", Value: k, Reason: "must be positive"}
	}
	if len(vertices) == 0 || index == nil {
		return nil, &EmptyMeshError{Vertices: len(vertices)}
	}
	if index.Len() != len(vertices) {
		return nil, errors.Errorf("index has %d points but mesh has %d vertices", index.Len(), len(vertices))
	}

	ctx, span := trace.StartSpan(ctx, "prune::EstimateDensity")
	defer span.End()

	start := time.Now()
	values := make([]float64, len(vertices))
	degenerate := make([]bool, len(vertices))
	neighborCounts := make([]int, len(vertices))

	var numGroups int
	err := utils.GroupWorkParallel(
		ctx,
		len(vertices),
		func(groups int) { numGroups = groups },
		func(_, _, _, _ int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(_, v int) {
				neighbors := index.KNearestNeighborsOf(v, k)
				var density float64
				var contributing int
				for _, n := range neighbors {
					if n.Distance == 0 {
						// coincident points carry no distance information
						continue
					}
					density += 1 / n.Distance
					contributing++
				}
				values[v] = density
				if contributing == 0 {
					degenerate[v] = true
					neighborCounts[v] = len(neighbors)
				}
			}, nil
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "estimating vertex density")
	}

	dm := &DensityMap{values: values}
	for v, isDegenerate := range degenerate {
		if isDegenerate {
			dm.warnings = append(dm.warnings, DegenerateNeighborhoodWarning{Vertex: v, Neighbors: neighborCounts[v]})
		}
	}

	if logger != nil {
		if len(dm.warnings) > 0 {
			sample := make([]int, 0, maxLoggedDegenerate)
			for _, w := range dm.warnings {
				if len(sample) == maxLoggedDegenerate {
					break
				}
				sample = append(sample, w.Vertex)
			}
			logger.Warnw("vertices with degenerate neighborhoods scored as zero density",
				"count", len(dm.warnings), "vertices", sample)
		}
		logger.Debugw("estimated vertex density",
			"vertices", len(vertices), "neighbor_count", k, "workers", numGroups, "took", time.Since(start))
	}
	return dm, nil
}
