// Package reconstruction chains the stages that turn a raw point cloud into a pruned
// surface mesh on disk: outlier removal, normal estimation, surface reconstruction,
// density pruning and export.
package reconstruction

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/meshprune/mesh"
	"go.viam.com/meshprune/prune"
)

// ErrReconstructionFailed is returned when surface reconstruction produced no polygons.
var ErrReconstructionFailed = errors.New("mesh generation failed")

// An OutlierRemover drops points that do not belong to the sampled surface.
type OutlierRemover interface {
	RemoveOutliers(ctx context.Context, pts []r3.Vector) ([]r3.Vector, error)
}

// A NormalEstimator returns one normal per point.
type NormalEstimator interface {
	EstimateNormals(ctx context.Context, pts []r3.Vector) ([]r3.Vector, error)
}

// A SurfaceReconstructor builds a polygon mesh from oriented points.
type SurfaceReconstructor interface {
	Reconstruct(ctx context.Context, pts, normals []r3.Vector) (*mesh.Mesh, error)
}

// A MeshPruner removes poorly supported polygons from a mesh.
type MeshPruner interface {
	Prune(ctx context.Context, m *mesh.Mesh) (*prune.Result, error)
}

// A MeshWriter persists a mesh.
type MeshWriter interface {
	WriteMesh(path string, m *mesh.Mesh) error
}
