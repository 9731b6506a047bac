package pointcloud

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/utils"
)

// NormalEstimator fits a plane to the K nearest neighbors of every point (the point itself
// included) and reports the plane normal, flipped to face Viewpoint.
type NormalEstimator struct {
	K         int
	Viewpoint r3.Vector

	logger logging.Logger
}

// NewNormalEstimator returns an estimator looking at k neighbors and orienting normals
// toward the origin.
func NewNormalEstimator(k int, logger logging.Logger) (*NormalEstimator, error) {
	if k <= 0 {
		return nil, errors.Errorf("normal estimation k must be positive, got %d", k)
	}
	return &NormalEstimator{K: k, logger: logger}, nil
}

// EstimateNormals returns one unit normal per point. Points with fewer than three
// neighbors, or whose neighborhood cannot be factorized, get the zero vector.
func (ne *NormalEstimator) EstimateNormals(ctx context.Context, pts []r3.Vector) ([]r3.Vector, error) {
	kd, err := NewKDTree(pts)
	if err != nil {
		return nil, err
	}

	normals := make([]r3.Vector, len(pts))
	err = utils.GroupWorkParallel(ctx, len(pts), nil, func(_, _, _, _ int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		neighborhood := make([]r3.Vector, 0, ne.K)
		return func(_, i int) {
			neighborhood = neighborhood[:0]
			for _, n := range kd.KNearestNeighbors(pts[i], ne.K) {
				neighborhood = append(neighborhood, kd.Point(n.Index))
			}
			normal, ok := planeNormal(neighborhood)
			if !ok {
				return
			}
			if normal.Dot(ne.Viewpoint.Sub(pts[i])) < 0 {
				normal = normal.Mul(-1)
			}
			normals[i] = normal
		}, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "estimating normals")
	}

	if ne.logger != nil {
		var missing int
		for _, n := range normals {
			if n == (r3.Vector{}) {
				missing++
			}
		}
		ne.logger.Debugw("estimated normals", "points", len(pts), "k", ne.K, "without_normal", missing)
	}
	return normals, nil
}

// planeNormal returns the eigenvector of the smallest eigenvalue of the neighborhood's
// covariance.
func planeNormal(pts []r3.Vector) (r3.Vector, bool) {
	if len(pts) < 3 {
		return r3.Vector{}, false
	}
	c := Centroid(pts)

	var xx, xy, xz, yy, yz, zz float64
	for _, p := range pts {
		d := p.Sub(c)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
		zz += d.Z * d.Z
	}
	if xx+yy+zz == 0 {
		// every neighbor coincides; there is no plane to fit.
		return r3.Vector{}, false
	}
	n := float64(len(pts))
	cov := mat.NewSymDense(3, []float64{
		xx / n, xy / n, xz / n,
		xy / n, yy / n, yz / n,
		xz / n, yz / n, zz / n,
	})

	var eigen mat.EigenSym
	if ok := eigen.Factorize(cov, true); !ok {
		return r3.Vector{}, false
	}
	var vecs mat.Dense
	eigen.VectorsTo(&vecs)

	// eigenvalues are ascending, so column 0 belongs to the smallest.
	normal := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	if normal.Norm2() == 0 {
		return r3.Vector{}, false
	}
	return normal.Normalize(), true
}
